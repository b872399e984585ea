package coverage

import (
	"math"

	"github.com/kvarq/kvarq-go/template"
)

// MinorityFractionMixedThreshold is the dominant-base-fraction floor below
// which a sample is flagged "mixed" by the interpretation layer.
// TODO: promote to an EngineConfig tunable; 0.9 has never been calibrated
// against real mixed-sample data.
const MinorityFractionMixedThreshold = 0.9

// Range is a half-open [Start, End) position interval into a Buffers.
type Range struct{ Start, End int }

// View computes derived metrics from a template's Buffers on demand; it
// caches nothing, so it is always consistent with the Buffers it wraps even
// if the buffers mutate between calls (which does not happen after the
// parallel scan phase completes, but the type makes no assumption either
// way).
type View struct {
	Tmpl *template.Template
	Buf  *Buffers
}

// NewView pairs a template with its coverage buffers.
func NewView(t *template.Template, b *Buffers) *View { return &View{Tmpl: t, Buf: b} }

// NonFlankRange returns [left flank, length-right flank), the default range
// every derived metric below excludes flank padding from.
func (v *View) NonFlankRange() Range {
	return Range{v.Tmpl.LeftFlank, v.Tmpl.Len() - v.Tmpl.RightFlank}
}

// FullRange returns the entire buffer, flanks included.
func (v *View) FullRange() Range { return Range{0, len(v.Buf.Depth)} }

// Mean returns the average depth over r.
func (v *View) Mean(r Range) float64 {
	n := r.End - r.Start
	if n <= 0 {
		return 0
	}
	sum := 0
	for i := r.Start; i < r.End; i++ {
		sum += v.Buf.Depth[i]
	}
	return float64(sum) / float64(n)
}

// Std returns the population standard deviation of depth over r. The mean
// and the sum of squared deviations both honor r.
func (v *View) Std(r Range) float64 {
	n := r.End - r.Start
	if n <= 0 {
		return 0
	}
	m := v.Mean(r)
	var sumSq float64
	for i := r.Start; i < r.End; i++ {
		d := float64(v.Buf.Depth[i]) - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}

// SeqMean returns the mean, over the non-flank range, of depth minus mutant
// count at each position, i.e. the coverage supporting the template's own
// base.
func (v *View) SeqMean() float64 {
	r := v.NonFlankRange()
	n := r.End - r.Start
	if n <= 0 {
		return 0
	}
	sum := 0
	for i := r.Start; i < r.End; i++ {
		sum += v.Buf.Depth[i] - len(v.Buf.Mut[i])
	}
	return float64(sum) / float64(n)
}

// BasesAt returns base -> observed-count at position i, with the template's
// own base credited depth[i] minus the mutant count.
func (v *View) BasesAt(i int) map[byte]int {
	out := map[byte]int{}
	mutCount := len(v.Buf.Mut[i])
	out[v.Tmpl.Bases[i]] = v.Buf.Depth[i] - mutCount
	for _, b := range v.Buf.Mut[i] {
		out[b]++
	}
	return out
}

// MinorityFraction returns the minimum, across the non-flank range, of the
// dominant-base fraction at each position. Positions with zero depth carry
// no information and are excluded from the minimum.
func (v *View) MinorityFraction() float64 {
	r := v.NonFlankRange()
	best := 1.0
	seen := false
	for i := r.Start; i < r.End; i++ {
		depth := v.Buf.Depth[i]
		if depth == 0 {
			continue
		}
		dominant := 0
		for _, count := range v.BasesAt(i) {
			if count > dominant {
				dominant = count
			}
		}
		frac := float64(dominant) / float64(depth)
		if !seen || frac < best {
			best, seen = frac, true
		}
	}
	if !seen {
		return 1.0
	}
	return best
}

// Validate reports whether the template is considered present in the
// sample: for generic templates, non-flank mean depth of at least 2; for
// SNPs (a template whose sequence is reference flank + mutant allele +
// reference flank), depth at the mutant position ("anchor") of at least 2
// with the dominant base supported by at least half of that depth.
func (v *View) Validate() bool {
	if v.Tmpl.IsSnp() {
		anchor := v.Tmpl.LeftFlank
		depth := v.Buf.Depth[anchor]
		if depth < 2 {
			return false
		}
		dominant := 0
		for _, count := range v.BasesAt(anchor) {
			if count > dominant {
				dominant = count
			}
		}
		return float64(dominant) >= float64(depth)/2
	}
	return v.Mean(v.NonFlankRange()) >= 2
}
