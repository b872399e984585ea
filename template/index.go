package template

// Index exposes a set of templates as an ordered list numbered 0..K-1
// (forward) and, when reverse scanning is enabled, K..2K-1 (the
// reverse-complement of the same K templates).
//
// There is deliberately no anchor-k-mer hash in front of the matcher. The
// error model bounds only the longest run of *consecutive* mismatches, so a
// valid hit can carry an isolated mismatch inside every fixed-length window
// of the template; no single registered window can be guaranteed hash-exact,
// and a pre-filter built on one silently drops recall. Template sets run
// tens to a few hundred entries, so verifying each entry directly per read
// stays cheap without one.
type Index struct {
	entries      []indexEntry
	numTemplates int
}

type indexEntry struct {
	tmpl    *Template
	reverse bool
}

// NewIndex builds an Index over templates. When reverseScan is true, the
// index additionally carries each template's reverse complement at number
// K+i.
func NewIndex(templates []*Template, reverseScan bool) *Index {
	n := len(templates)
	total := n
	if reverseScan {
		total = 2 * n
	}
	ix := &Index{
		entries:      make([]indexEntry, total),
		numTemplates: n,
	}
	for i, t := range templates {
		ix.entries[i] = indexEntry{tmpl: t}
	}
	if reverseScan {
		for i, t := range templates {
			rc := ReverseComplement(t.Bases)
			rt := &Template{
				ID:         t.ID,
				Bases:      rc,
				LeftFlank:  t.RightFlank,
				RightFlank: t.LeftFlank,
				LeftOpen:   t.RightOpen,
				RightOpen:  t.LeftOpen,
				snp:        t.snp,
			}
			num := n + i
			ix.entries[num] = indexEntry{tmpl: rt, reverse: true}
		}
	}
	return ix
}

// Size returns the number of entries in the index (K, or 2K with reverse
// scanning enabled).
func (ix *Index) Size() int { return len(ix.entries) }

// NumTemplates returns K, the number of distinct templates (forward count).
func (ix *Index) NumTemplates() int { return ix.numTemplates }

// At returns the template at the given index number and whether it is the
// reverse-complement half of the index.
func (ix *Index) At(num int) (t *Template, reverse bool) {
	e := ix.entries[num]
	return e.tmpl, e.reverse
}

// ForwardNumber maps a (possibly reverse-half) index number back to its
// forward template number in [0, NumTemplates).
func (ix *Index) ForwardNumber(num int) int {
	if num < ix.numTemplates {
		return num
	}
	return num - ix.numTemplates
}
