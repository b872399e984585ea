package scan

import (
	"sync"
	"sync/atomic"
)

// Stats aggregates progress information for one scan. It is created fresh
// at scan start and its counts are monotonically non-decreasing until the
// next scan. Small numeric fields are atomic counters shared across workers
// (cheap fetch-add); the per-readlength histogram and per-template tallies
// are sharded per worker and merged at the end, keeping map writes and
// their false sharing off the per-record path.
type Stats struct {
	bytesTotal int64
	bytesDone  int64 // atomic
	sigints    int32 // atomic

	mu              sync.Mutex
	recordsParsed   int64
	readLengthHist  map[int]int64
	templateHits    map[int]int64
	templateBaseHit map[int]int64
}

// newStats allocates a Stats for a scan over bytesTotal bytes of input
// (summed across both files of a paired scan).
func newStats(bytesTotal int64) *Stats {
	return &Stats{
		bytesTotal:      bytesTotal,
		readLengthHist:  map[int]int64{},
		templateHits:    map[int]int64{},
		templateBaseHit: map[int]int64{},
	}
}

// workerShard is the per-worker, unsynchronized accumulator a scan worker
// folds its records into; Stats.mergeShard folds it into the shared Stats
// once the worker finishes, so the hot per-record path touches no shared
// state beyond a single atomic add for progress.
type workerShard struct {
	recordsParsed  int64
	readLengthHist map[int]int64
	templateHits   map[int]int64
	templateBase   map[int]int64
}

func newWorkerShard() *workerShard {
	return &workerShard{
		readLengthHist: map[int]int64{},
		templateHits:   map[int]int64{},
		templateBase:   map[int]int64{},
	}
}

func (w *workerShard) recordRead(length int) {
	w.recordsParsed++
	w.readLengthHist[length]++
}

func (w *workerShard) recordHit(templateNum, baseHits int) {
	w.templateHits[templateNum]++
	w.templateBase[templateNum] += int64(baseHits)
}

// addProgress reports delta additional bytes consumed since the last call,
// from any worker.
func (s *Stats) addProgress(delta int64) { atomic.AddInt64(&s.bytesDone, delta) }

// Progress returns bytes consumed so far divided by the total input size;
// monotonic, clamped to 1.
func (s *Stats) Progress() float64 {
	if s.bytesTotal <= 0 {
		return 1
	}
	frac := float64(atomic.LoadInt64(&s.bytesDone)) / float64(s.bytesTotal)
	if frac > 1 {
		frac = 1
	}
	return frac
}

// mergeShard folds a finished worker's shard into s.
func (s *Stats) mergeShard(w *workerShard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordsParsed += w.recordsParsed
	for length, n := range w.readLengthHist {
		s.readLengthHist[length] += n
	}
	for num, n := range w.templateHits {
		s.templateHits[num] += n
	}
	for num, n := range w.templateBase {
		s.templateBaseHit[num] += n
	}
}

// RecordsParsed returns the number of records consumed by workers that have
// finished and merged their shards; once Scan returns it is the scan's
// total.
func (s *Stats) RecordsParsed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordsParsed
}

// ReadLengthHistogram returns a snapshot copy of the read-length histogram.
func (s *Stats) ReadLengthHistogram() map[int]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int64, len(s.readLengthHist))
	for k, v := range s.readLengthHist {
		out[k] = v
	}
	return out
}

// TemplateHits returns a snapshot of per-template-number hit counts.
func (s *Stats) TemplateHits() map[int]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int64, len(s.templateHits))
	for k, v := range s.templateHits {
		out[k] = v
	}
	return out
}

// TemplateBaseHits returns a snapshot of per-template-number base-hit
// counts (the number of non-wildcard template positions covered).
func (s *Stats) TemplateBaseHits() map[int]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int64, len(s.templateBaseHit))
	for k, v := range s.templateBaseHit {
		out[k] = v
	}
	return out
}

// Sigints returns the number of interrupt signals observed during the scan.
func (s *Stats) Sigints() int32 { return atomic.LoadInt32(&s.sigints) }

func (s *Stats) recordSigint() { atomic.AddInt32(&s.sigints, 1) }
