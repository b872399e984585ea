// Package coverage folds match.Hit values into per-template depth and
// mutation tallies, and exposes derived statistics used by the
// interpretation layer to call SNPs, region mutations, and spoligotype
// fingerprints.
//
// Buffers owns the raw depth vector and mutation multiset, mutated only
// through ApplyHit (serialized per template by the scan driver's
// per-template mutex, so concurrent workers hitting the same template never
// race). View computes every derived metric on demand instead of caching
// it, so a metric can never go stale against the buffers it reads.
package coverage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kvarq/kvarq-go/match"
	"github.com/kvarq/kvarq-go/template"
)

// Buffers holds one template's raw per-position depth and mutation tallies.
// It is created once per template at scan start and mutated only by
// ApplyHit; everything else in this package treats it as read-only.
type Buffers struct {
	Depth []int
	Mut   [][]byte
}

// NewBuffers allocates a zeroed Buffers sized for a template of length n.
func NewBuffers(n int) *Buffers {
	return &Buffers{Depth: make([]int, n), Mut: make([][]byte, n)}
}

// ApplyHit folds hit into b, which must belong to fwd (the forward-oriented
// template the hit's coordinates are expressed against when !reverse, or
// whose reverse-complement frame the hit was matched in when reverse).
//
// readBases are the record's bases; they are read, never retained.
//
// For reverse-strand hits, per-position read bases are complemented (not
// the whole slice reversed) and indexed at n-1-i, folding the hit into the
// same forward coordinate frame every other hit uses.
func (b *Buffers) ApplyHit(fwd *template.Template, hit match.Hit, readBases []byte, reverse bool) {
	n := fwd.Len()
	lo, hi := clampToTemplate(hit, n)
	for i := lo; i < hi; i++ {
		readIdx := i - hit.SeqPos
		if readIdx < 0 || readIdx >= len(readBases) {
			continue
		}
		rb := readBases[readIdx]
		j := i
		if reverse {
			j = n - 1 - i
			rb = template.ComplementBase(rb)
		}
		b.Depth[j]++
		if rb != fwd.Bases[j] {
			b.Mut[j] = append(b.Mut[j], rb)
		}
	}
}

func clampToTemplate(hit match.Hit, templateLen int) (lo, hi int) {
	lo = hit.SeqPos
	if lo < 0 {
		lo = 0
	}
	hi = lo + hit.Length
	if hi > templateLen {
		hi = templateLen
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Serialize renders b as "<dash-separated depths> <dash-separated
// pos[bases]>".
func Serialize(b *Buffers) string {
	depths := make([]string, len(b.Depth))
	for i, d := range b.Depth {
		depths[i] = strconv.Itoa(d)
	}
	var positions []int
	for i, m := range b.Mut {
		if len(m) > 0 {
			positions = append(positions, i)
		}
	}
	sort.Ints(positions)
	muts := make([]string, len(positions))
	for k, pos := range positions {
		bases := append([]byte(nil), b.Mut[pos]...)
		sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })
		muts[k] = fmt.Sprintf("%d[%s]", pos, string(bases))
	}
	return strings.Join(depths, "-") + " " + strings.Join(muts, "-")
}

// Deserialize is the inverse of Serialize.
func Deserialize(s string) (*Buffers, error) {
	covPart, mutPart, _ := strings.Cut(s, " ")
	if covPart == "" {
		return nil, fmt.Errorf("coverage: empty depth section")
	}
	depthStrs := strings.Split(covPart, "-")
	depth := make([]int, len(depthStrs))
	for i, ds := range depthStrs {
		d, err := strconv.Atoi(ds)
		if err != nil {
			return nil, fmt.Errorf("coverage: invalid depth %q: %w", ds, err)
		}
		depth[i] = d
	}
	mut := make([][]byte, len(depth))
	if mutPart != "" {
		for _, entry := range strings.Split(mutPart, "-") {
			open := strings.IndexByte(entry, '[')
			shut := strings.IndexByte(entry, ']')
			if open < 0 || shut < open {
				return nil, fmt.Errorf("coverage: malformed mutation entry %q", entry)
			}
			pos, err := strconv.Atoi(entry[:open])
			if err != nil {
				return nil, fmt.Errorf("coverage: invalid mutation position in %q: %w", entry, err)
			}
			if pos < 0 || pos >= len(mut) {
				return nil, fmt.Errorf("coverage: mutation position %d out of range", pos)
			}
			mut[pos] = []byte(entry[open+1 : shut])
		}
	}
	return &Buffers{Depth: depth, Mut: mut}, nil
}
