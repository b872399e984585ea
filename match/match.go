// Package match implements the fuzzy alignment of a single FASTQ read
// against a template.Index: quality trimming, bounded-consecutive-mismatch
// alignment search, and the one-hit-per-template-per-strand tie-break.
//
// Alignments are ungapped. The mismatch budget bounds the longest run of
// consecutive mismatching positions, not their total count, which is why
// edit distance is the wrong metric here.
package match

import (
	"github.com/kvarq/kvarq-go/fastq"
	"github.com/kvarq/kvarq-go/template"
)

// Policy bounds what counts as an acceptable hit. Azero is not needed here:
// by the time a read reaches the matcher its quality bytes are compared
// directly against Amin, both already resolved to absolute ASCII bytes by
// the caller.
type Policy struct {
	MaxErrors     int
	MinReadLength int
	MinOverlap    int
	Amin          byte
}

// Hit is a single alignment of a read against one template.Index entry.
//
// SeqPos is the template-coordinate position aligned to the read's position
// 0; it is negative when the read begins to the left of the template's
// start. A read covering the whole template may extend past both edges; a
// read that only partially overlaps the template may extend past an edge
// only when the template declares that edge open. Length is the count of
// positions actually compared against the template (the intersection of the
// alignment with [0, template length)); overhang past a template edge is not
// counted here, matching template.ParseStaticSeq's "uncounted toward the
// match" rule.
type Hit struct {
	TemplateNum int
	FileOffset  int64
	SeqPos      int
	Length      int
	ReadLength  int
}

// BaseHits returns the number of non-wildcard template positions hit
// covers, the per-template "base hits" statistic.
func BaseHits(t *template.Template, hit Hit) int {
	n := 0
	lo, hi := clampToTemplate(hit, t.Len())
	for i := lo; i < hi; i++ {
		if template.ASCIIToBase(t.Bases[i]) != template.BaseWildcard {
			n++
		}
	}
	return n
}

func clampToTemplate(hit Hit, templateLen int) (lo, hi int) {
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

// qualityRun finds the longest contiguous run of positions with qual[i] >=
// amin, returning its bounds as a half-open [start, end) interval.
func qualityRun(qual []byte, amin byte) (start, end int) {
	bestStart, bestLen := 0, 0
	curStart, curLen := 0, 0
	for i, q := range qual {
		if q >= amin {
			if curLen == 0 {
				curStart = i
			}
			curLen++
			if curLen > bestLen {
				bestLen, bestStart = curLen, curStart
			}
		} else {
			curLen = 0
		}
	}
	return bestStart, bestStart + bestLen
}

// FindHits runs the matcher for one read against idx, returning at most one
// Hit per (template, strand) index number: among alignments satisfying the
// policy, the longest wins, and among those of equal length the one with
// the smallest SeqPos. Every index entry is verified directly; see
// template.Index for why there is no anchor-hash pre-filter.
func FindHits(rec *fastq.Record, idx *template.Index, policy Policy) []Hit {
	runStart, runEnd := qualityRun(rec.Qual, policy.Amin)
	if runEnd-runStart < policy.MinReadLength {
		return nil
	}

	hits := make([]Hit, 0, idx.Size())
	for num := 0; num < idx.Size(); num++ {
		tmpl, _ := idx.At(num)
		best, ok := bestAlignment(rec.Bases, runStart, runEnd, tmpl, policy)
		if !ok {
			continue
		}
		hits = append(hits, Hit{
			TemplateNum: num,
			FileOffset:  rec.Offset,
			SeqPos:      best.seqPos,
			Length:      best.length,
			ReadLength:  len(rec.Bases),
		})
	}
	return hits
}

type alignment struct {
	seqPos int
	length int
}

// bestAlignment searches every ungapped offset S of tmpl against
// bases[runStart:runEnd] and returns the one with maximum overlap length,
// tie-broken by the smallest S, among those satisfying policy's overlap,
// consecutive-mismatch, and open-flank constraints.
func bestAlignment(bases []byte, runStart, runEnd int, tmpl *template.Template, policy Policy) (alignment, bool) {
	tn := tmpl.Len()
	found := false
	var best alignment

	sLo := -(runEnd)
	sHi := tn
	for s := sLo; s <= sHi; s++ {
		lo, hi := max(0, s+runStart), min(tn, s+runEnd)
		if hi <= lo {
			continue
		}
		overlap := hi - lo
		// A read that covers the whole template may run past either edge; a
		// partial overlap may run past an edge only where that edge is open.
		if overlap < tn {
			if s+runStart < 0 && !tmpl.LeftOpen {
				continue
			}
			if s+runEnd > tn && !tmpl.RightOpen {
				continue
			}
		}
		if overlap < policy.MinOverlap {
			continue
		}
		if !withinMismatchBudget(bases, tmpl.Bases, s, lo, hi, policy.MaxErrors) {
			continue
		}
		cand := alignment{seqPos: s, length: overlap}
		if !found || better(cand, best) {
			best, found = cand, true
		}
	}
	return best, found
}

// better reports whether a improves on b under the tie-break: longer wins;
// equal length, smaller SeqPos wins.
func better(a, b alignment) bool {
	if a.length != b.length {
		return a.length > b.length
	}
	return a.seqPos < b.seqPos
}

// withinMismatchBudget reports whether the longest run of consecutive
// mismatching positions in template range [lo, hi) is at most maxErrors.
// Template position t compares against read position t-seqPos.
func withinMismatchBudget(readBases, tmplBases []byte, seqPos, lo, hi, maxErrors int) bool {
	run, worst := 0, 0
	for t := lo; t < hi; t++ {
		r := readBases[t-seqPos]
		tb := tmplBases[t]
		if basesMatch(r, tb) {
			run = 0
		} else {
			run++
			if run > worst {
				worst = run
			}
		}
	}
	return worst <= maxErrors
}

// basesMatch reports whether read base r and template base tb agree, with
// 'N' on either side and '.' in the template matching unconditionally.
func basesMatch(r, tb byte) bool {
	rBase := template.ASCIIToBase(r)
	tBase := template.ASCIIToBase(tb)
	if rBase == template.BaseWildcard || tBase == template.BaseWildcard {
		return true
	}
	return rBase == tBase
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
