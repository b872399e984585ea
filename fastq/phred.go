package fastq

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
	"github.com/kvarq/kvarq-go/kerrors"
)

// asciiMin and asciiMax bound the printable-ASCII alphabet PHRED scores are
// encoded in: '!' (33) through '~' (126), 94 characters.
const (
	asciiMin = 33
	asciiMax = 126
)

// Variant describes one vendor FASTQ quality encoding. Min and Max bound the
// raw (position-in-ASCII-alphabet minus DQ) PHRED score range the vendor is
// documented to emit; DQ is the offset subtracted to recover Q from a
// quality byte's ASCII-alphabet position.
type Variant struct {
	Name     string
	Min, Max int
	DQ       int
}

// VendorVariants lists the known vendor encodings: Sanger and Illumina
// 1.8+ use Phred+33 (DQ=0); Solexa and Illumina 1.3+/1.5+ use Phred+64
// (DQ=31 relative to the 94-char alphabet starting at '!'=33, i.e.
// absolute ASCII offset 64).
var VendorVariants = []Variant{
	{Name: "Sanger", Min: 0, Max: 49, DQ: 0},
	{Name: "Solexa", Min: -5, Max: 40, DQ: 31},
	{Name: "Illumina 1.3+", Min: 0, Max: 40, DQ: 31},
	{Name: "Illumina 1.5+", Min: 3, Max: 41, DQ: 31},
	{Name: "Illumina 1.8+", Min: 0, Max: 41, DQ: 0},
}

// Encoding is the result of quality-variant detection.
type Encoding struct {
	// Variants lists every vendor variant compatible with the sampled
	// quality bytes.
	Variants []string
	// DQ is the resolved PHRED offset relative to the ASCII alphabet's
	// first character ('!' = 33).
	DQ int
	// Azero is the ASCII byte representing Q=0 under the resolved
	// encoding; it is EngineConfig.Azero's source value.
	Azero byte
	// ReadLength is the base length of the first sampled record.
	ReadLength int
	// RecordsApprox estimates the total record count in the file.
	RecordsApprox int64
}

const (
	detectMaxSamples = 1000
	detectPoints     = 10
)

// DetectEncoding samples path and deduces its PHRED offset, validating
// record structure as it goes. For uncompressed files it samples up to
// detectMaxSamples records spread across detectPoints
// equally-spaced byte offsets (oversampling small files, since later points
// that run out of file simply contribute fewer records); for gzip files it
// samples sequentially from the head only.
func DetectEncoding(ctx context.Context, path string) (*Encoding, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, &kerrors.IoError{Op: "fastq: open " + path, Err: err}
	}
	info, err := f.Stat(ctx)
	if err != nil {
		_ = f.Close(ctx)
		return nil, &kerrors.IoError{Op: "fastq: stat " + path, Err: err}
	}
	size := info.Size()
	if err := f.Close(ctx); err != nil {
		return nil, &kerrors.IoError{Op: "fastq: close " + path, Err: err}
	}
	if size == 0 {
		return nil, &kerrors.EmptyInput{Path: path}
	}

	r, err := NewReader(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	nPoints := 1
	if r.CanSeek() {
		nPoints = detectPoints
	}
	perPoint := detectMaxSamples / nPoints
	if perPoint == 0 {
		perPoint = 1
	}

	minPos, maxPos := 999, -999
	var firstRec *Record

	for point := 0; point < nPoints; point++ {
		if point > 0 {
			target := size * int64(point) / int64(nPoints)
			if err := r.SeekAndResync(target); err != nil {
				// Fewer records than sample points: later points legitimately
				// run past EOF on small files.
				break
			}
		}
		for i := 0; i < perPoint; i++ {
			rec, err := r.ReadRecord()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			if firstRec == nil {
				firstRec = rec
			}
			for _, q := range rec.Qual {
				if q < asciiMin || q > asciiMax {
					return nil, &kerrors.MalformedRecord{
						Offset: rec.Offset,
						Reason: fmt.Sprintf("quality byte %q outside printable ASCII range", q),
					}
				}
				pos := int(q) - asciiMin
				if pos < minPos {
					minPos = pos
				}
				if pos > maxPos {
					maxPos = pos
				}
			}
		}
	}
	if firstRec == nil {
		return nil, &kerrors.EmptyInput{Path: path}
	}

	enc, err := resolveVariants(minPos, maxPos)
	if err != nil {
		return nil, err
	}
	enc.ReadLength = len(firstRec.Bases)
	enc.RecordsApprox = estimateRecordCount(ctx, path, size, r.gzip)
	return enc, nil
}

func resolveVariants(minPos, maxPos int) (*Encoding, error) {
	var matched []Variant
	for _, v := range VendorVariants {
		if inRange(minPos-v.DQ, v.Min, v.Max) && inRange(maxPos-v.DQ, v.Min, v.Max) {
			matched = append(matched, v)
		}
	}
	if len(matched) == 0 {
		return nil, &kerrors.UnknownEncoding{Min: byte(asciiMin + minPos), Max: byte(asciiMin + maxPos)}
	}
	dq := matched[0].DQ
	names := make([]string, len(matched))
	for i, v := range matched {
		names[i] = v.Name
	}
	for _, v := range matched {
		if v.DQ != dq {
			return nil, &kerrors.AmbiguousEncoding{Variants: names}
		}
	}
	return &Encoding{Variants: names, DQ: dq, Azero: byte(asciiMin + dq)}, nil
}

func inRange(x, lo, hi int) bool { return x >= lo && x <= hi }

// estimateRecordCount approximates the number of records in path. For gzip
// it decompresses a small prefix of the *compressed* stream, counts
// decompressed records, and extrapolates a compressed-bytes-per-record
// ratio against the full file size. For plain files the first record's
// byte length divides the file size directly.
func estimateRecordCount(ctx context.Context, path string, size int64, isGzip bool) int64 {
	if !isGzip {
		r, err := NewReader(ctx, path)
		if err != nil {
			return 0
		}
		defer r.Close()
		rec, err := r.ReadRecord()
		if err != nil || rec == nil {
			return 0
		}
		recordBytes := r.pos
		if recordBytes <= 0 {
			return 0
		}
		return size / recordBytes
	}

	f, err := file.Open(ctx, path)
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close(ctx) }()
	const prefixLen = 100 << 10
	limit := prefixLen
	if int64(limit) > size {
		limit = int(size)
	}
	raw, ok := f.Reader(ctx).(seekReader)
	if !ok {
		return 0
	}
	gz, err := gzip.NewReader(&io.LimitedReader{R: raw, N: int64(limit)})
	if err != nil {
		return 0
	}
	defer gz.Close()

	nLines := 0
	buf := make([]byte, 1<<16)
	brk := false
	for !brk {
		n, err := gz.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				nLines++
			}
		}
		if err != nil {
			brk = true
		}
	}
	nRead := nLines / 4
	if nRead == 0 {
		return 0
	}
	approxCompressedBytesPerRead := float64(limit) / float64(nRead)
	return int64(float64(size) / approxCompressedBytesPerRead)
}
