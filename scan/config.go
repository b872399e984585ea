// Package scan implements the scan driver: orchestrating record reading,
// fuzzy matching, and coverage application across a worker pool.
package scan

import "fmt"

// EngineConfig holds the scanning engine's tunables. It is a plain struct
// with documented defaults; flag parsing, config files, and the like are
// the calling layer's business.
type EngineConfig struct {
	// NThreads is the worker pool size. 0 or negative means "use
	// runtime.NumCPU()".
	NThreads int
	// MaxErrors bounds the longest run of consecutive mismatches inside a
	// hit's aligned span.
	MaxErrors int
	// MinReadLength is the minimum quality-trimmed run length a read must
	// have to be considered at all.
	MinReadLength int
	// MinOverlap is the minimum number of in-template positions a hit must
	// cover.
	MinOverlap int
	// Amin is the ASCII quality byte cutoff: quality[i] >= Amin is
	// "accepted".
	Amin byte
	// Azero is the ASCII byte representing Q=0 under the input's PHRED
	// encoding. Zero means "unset". Scan reads it only to check Amin >=
	// Azero when both are set; when Amin is zero, Scan derives the cutoff
	// from the Q=0 byte fastq.DetectEncoding reports, leaving this field
	// as it is.
	Azero byte
	// ReverseScan enables matching against each template's
	// reverse-complement in addition to its forward orientation.
	ReverseScan bool
}

// DefaultEngineConfig: Q13 quality cutoff, 2 consecutive mismatches,
// minimum overlap and read length of 25. Amin is left zero here (meaning
// "resolve from the input's detected encoding"); callers scanning directly
// should set it via DefaultAmin.
var DefaultEngineConfig = EngineConfig{
	NThreads:      8,
	MaxErrors:     2,
	MinReadLength: 25,
	MinOverlap:    25,
	ReverseScan:   true,
}

// DefaultQuality is the minimum PHRED score (not ASCII byte) a position
// must reach to be accepted.
const DefaultQuality = 13

// DefaultAmin resolves DefaultQuality to an absolute ASCII cutoff byte once
// azero (the detected or configured Q=0 byte) is known.
func DefaultAmin(azero byte) byte { return azero + DefaultQuality }

// validate enforces the config's internal consistency: a hit can never
// span more positions than the quality-trimmed run it came from, and the
// quality cutoff cannot sit below the encoding's own zero.
func (c EngineConfig) validate() error {
	if c.MinOverlap > c.MinReadLength {
		return fmt.Errorf("scan: minoverlap %d exceeds minreadlength %d", c.MinOverlap, c.MinReadLength)
	}
	if c.Amin != 0 && c.Azero != 0 && c.Amin < c.Azero {
		return fmt.Errorf("scan: quality cutoff %q below the encoding's Q=0 byte %q", c.Amin, c.Azero)
	}
	return nil
}
