package scan

import (
	"context"
	"io"
	"math"
	"runtime"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/traverse"
	"github.com/kvarq/kvarq-go/fastq"
	"github.com/kvarq/kvarq-go/kerrors"
	"github.com/kvarq/kvarq-go/match"
)

// Scan runs the engine over the FASTQ input at path. For a plain (non-gzip)
// file it dispatches Config.NThreads workers (runtime.NumCPU() when unset)
// across independent byte ranges: each worker opens its own fastq.Reader,
// resyncs to its shard's start offset, and reads until the next record
// would start at or past its shard's end. Gzip input cannot be randomly
// resynced (fastq.Reader.CanSeek) and is read by a single sequential
// worker.
//
// A "<stem>_1.fastq[.gz]" input with a "<stem>_2.fastq[.gz]" sibling
// (fastq.DiscoverPair) is scanned as one logical stream: the worker budget
// is split between the two files in proportion to their size, and both
// sides feed the same Stats and coverage buffers.
//
// Coverage is folded in directly by whichever worker finds a hit, guarded
// by one mutex per forward template, rather than deferred to a second
// by-offset re-read pass: gzip inputs couldn't support that pass's random
// seeks, and gating on a per-template lock costs nothing extra.
func (e *Engine) Scan(ctx context.Context, path string) (*Result, error) {
	if err := e.Config.validate(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, &kerrors.Cancelled{}
	}
	amin, err := e.resolveAmin(ctx, path)
	if err != nil {
		return nil, err
	}
	policy := e.policy()
	policy.Amin = amin

	nThreads := e.Config.NThreads
	if nThreads <= 0 {
		nThreads = runtime.NumCPU()
	}

	if sibling, ok := fastq.DiscoverPair(ctx, path); ok {
		return e.scanPair(ctx, path, sibling, nThreads, policy)
	}
	return e.scanSingle(ctx, path, nThreads, policy)
}

func (e *Engine) resolveAmin(ctx context.Context, path string) (byte, error) {
	if e.Config.Amin != 0 {
		return e.Config.Amin, nil
	}
	enc, err := fastq.DetectEncoding(ctx, path)
	if err != nil {
		return 0, err
	}
	return DefaultAmin(enc.Azero), nil
}

func (e *Engine) scanSingle(ctx context.Context, path string, nThreads int, policy match.Policy) (*Result, error) {
	size, gz, err := statFastq(ctx, path)
	if err != nil {
		return nil, err
	}
	stats := newStats(size)
	e.setStats(stats)
	hits, err := e.scanFile(ctx, path, nThreads, size, gz, policy, stats)
	if err != nil {
		return nil, err
	}
	return &Result{Hits: hits, Stats: stats, Cancelled: e.cancelled()}, nil
}

func (e *Engine) scanPair(ctx context.Context, path1, path2 string, nThreads int, policy match.Policy) (*Result, error) {
	size1, gz1, err := statFastq(ctx, path1)
	if err != nil {
		return nil, err
	}
	size2, gz2, err := statFastq(ctx, path2)
	if err != nil {
		return nil, err
	}
	stats := newStats(size1 + size2)
	e.setStats(stats)

	n1 := int(int64(nThreads) * size1 / (size1 + size2))
	if n1 < 1 {
		n1 = 1
	}
	if n1 > nThreads-1 {
		n1 = nThreads - 1
	}
	n2 := nThreads - n1

	var hits1, hits2 []match.Hit
	errOnce := errors.Once{}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h, err := e.scanFile(ctx, path1, n1, size1, gz1, policy, stats)
		errOnce.Set(err)
		hits1 = h
	}()
	go func() {
		defer wg.Done()
		h, err := e.scanFile(ctx, path2, n2, size2, gz2, policy, stats)
		errOnce.Set(err)
		hits2 = h
	}()
	wg.Wait()
	if err := errOnce.Err(); err != nil {
		return nil, err
	}
	return &Result{Hits: append(hits1, hits2...), Stats: stats, Cancelled: e.cancelled()}, nil
}

func statFastq(ctx context.Context, path string) (size int64, gz bool, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return 0, false, &kerrors.IoError{Op: "scan: open " + path, Err: err}
	}
	info, statErr := f.Stat(ctx)
	if closeErr := f.Close(ctx); statErr == nil {
		statErr = closeErr
	}
	if statErr != nil {
		return 0, false, &kerrors.IoError{Op: "scan: stat " + path, Err: statErr}
	}
	if info.Size() == 0 {
		return 0, false, &kerrors.EmptyInput{Path: path}
	}
	return info.Size(), fastq.IsGzip(path), nil
}

// scanFile dispatches size bytes of path across nThreads workers (or a
// single sequential worker for gzip input) and returns every hit found.
func (e *Engine) scanFile(ctx context.Context, path string, nThreads int, size int64, gz bool, policy match.Policy, stats *Stats) ([]match.Hit, error) {
	if gz {
		// Record offsets in a gzip stream are decompressed positions, which
		// run past the compressed file size; the single sequential worker
		// reads to EOF rather than to a byte bound. Progress for a gzip scan
		// is correspondingly approximate (decompressed bytes against the
		// compressed total, clamped by Stats.Progress).
		return e.scanWorker(ctx, path, 0, math.MaxInt64, false, policy, stats)
	}
	if nThreads < 1 {
		nThreads = 1
	}
	bounds := partitionRanges(size, nThreads)
	allHits := make([][]match.Hit, nThreads)
	err := traverse.Each(nThreads, func(jobIdx int) error {
		hits, err := e.scanWorker(ctx, path, bounds[jobIdx].start, bounds[jobIdx].end, jobIdx > 0, policy, stats)
		if err != nil {
			return err
		}
		allHits[jobIdx] = hits
		return nil
	})
	if err != nil {
		return nil, err
	}
	var out []match.Hit
	for _, h := range allHits {
		out = append(out, h...)
	}
	return out, nil
}

type byteRange struct{ start, end int64 }

// partitionRanges splits [0, size) into n roughly-equal half-open ranges.
func partitionRanges(size int64, n int) []byteRange {
	out := make([]byteRange, n)
	for i := 0; i < n; i++ {
		out[i] = byteRange{
			start: size * int64(i) / int64(n),
			end:   size * int64(i+1) / int64(n),
		}
	}
	return out
}

// scanWorker reads records starting at or after offset start up to (but not
// including) the first record whose own start offset is at or past end,
// resyncing to a record boundary first when resync is true (every shard but
// the file's first). A single-shard scan passes resync=false and, for gzip,
// an unbounded end.
func (e *Engine) scanWorker(ctx context.Context, path string, start, end int64, resync bool, policy match.Policy, stats *Stats) ([]match.Hit, error) {
	r, err := fastq.NewReader(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if resync {
		if err := r.SeekAndResync(start); err != nil {
			// A shard too small to contain a record boundary near EOF is not
			// fatal: it simply contributes nothing.
			return nil, nil
		}
	}

	shard := newWorkerShard()
	var hits []match.Hit
	prevPos := r.Pos()
	for {
		if e.cancelled() {
			break
		}
		if ctx.Err() != nil {
			return nil, &kerrors.Cancelled{}
		}
		rec, err := r.ReadRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rec.Offset >= end {
			// The next shard's worker resyncs to exactly this record; leave
			// its bytes out of this worker's progress so they count once.
			break
		}
		pos := r.Pos()
		stats.addProgress(pos - prevPos)
		prevPos = pos

		shard.recordRead(len(rec.Bases))
		recHits := match.FindHits(rec, e.index, policy)
		for _, h := range recHits {
			fwdNum := e.index.ForwardNumber(h.TemplateNum)
			tmpl, _ := e.index.At(h.TemplateNum)
			shard.recordHit(fwdNum, match.BaseHits(tmpl, h))
			e.applyHit(h, rec.Bases)
		}
		hits = append(hits, recHits...)
	}
	stats.mergeShard(shard)
	return hits, nil
}

// applyHit folds one hit into its forward template's coverage buffers,
// taking that template's mutex so concurrent workers hitting the same
// template don't race.
func (e *Engine) applyHit(hit match.Hit, readBases []byte) {
	_, reverse := e.index.At(hit.TemplateNum)
	fwdNum := e.index.ForwardNumber(hit.TemplateNum)
	fwdTmpl, _ := e.index.At(fwdNum)
	e.covMu[fwdNum].Lock()
	e.coverages[fwdNum].ApplyHit(fwdTmpl, hit, readBases, reverse)
	e.covMu[fwdNum].Unlock()
}
