package template

import (
	"fmt"
	"strings"

	"github.com/kvarq/kvarq-go/kerrors"
)

// Kind discriminates the three ways a template's bases can be produced: a
// literal sequence, a region of a reference genome, or a point mutation of
// one.
type Kind int

const (
	KindStaticSeq Kind = iota
	KindGenomeRegion
	KindSnp
)

// Direction is the strand a GenomeRegion or Snp template is transcribed
// from.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

// Spec is a template declaration prior to binding against a GenomeSource:
// everything a test-suite author writes down, independent of any particular
// reference genome instance.
type Spec struct {
	ID   string
	Kind Kind

	// KindStaticSeq
	Bases               []byte
	LeftOpen, RightOpen bool

	// KindGenomeRegion, KindSnp
	GenomeRef   string
	Start, Stop int // 1-based inclusive
	Dir         Direction

	// KindSnp only
	NewBase, OrigBase byte
}

// IsSnp reports whether the spec describes a single-nucleotide
// polymorphism, whose matched sequence is the *mutant* allele: the template
// is present in a sample only if the mutation occurred.
func (s *Spec) IsSnp() bool { return s.Kind == KindSnp }

// ParseStaticSeq parses a textual template declaration into a Spec of kind
// KindStaticSeq. The grammar is the template's base sequence, in which '.'
// or 'N' denotes a wildcard flank position that matches any base with no
// penalty, optionally preceded and/or followed by a literal "..." marking
// that edge "open", permitting read overhang past the template's
// conceptual end, uncounted toward the match. The open marker matters only
// for reads that partially overlap the template; a read covering the whole
// template may extend past either edge.
//
// Examples: "CAGCATGT" (closed on both ends), "...NACTT" (left-open, one
// wildcard flank base), "ACGT..." (right-open).
func ParseStaticSeq(id, text string) (*Spec, error) {
	s := &Spec{ID: id, Kind: KindStaticSeq}
	if strings.HasPrefix(text, "...") {
		s.LeftOpen = true
		text = text[3:]
	}
	if strings.HasSuffix(text, "...") {
		s.RightOpen = true
		text = text[:len(text)-3]
	}
	if len(text) == 0 {
		return nil, fmt.Errorf("template %q: empty base sequence", id)
	}
	bases := make([]byte, len(text))
	for i := 0; i < len(text); i++ {
		b := text[i]
		switch ASCIIToBase(b) {
		case BaseA, BaseC, BaseG, BaseT, BaseWildcard:
			bases[i] = b
		default:
			return nil, fmt.Errorf("template %q: invalid base %q at position %d", id, b, i)
		}
	}
	s.Bases = bases
	return s, nil
}

// GenomeRegionSpec builds a Spec that derives its bases from [start, stop]
// (1-based, inclusive) of a GenomeSource at Build time.
func GenomeRegionSpec(id, genomeRef string, start, stop int, dir Direction) *Spec {
	return &Spec{ID: id, Kind: KindGenomeRegion, GenomeRef: genomeRef, Start: start, Stop: stop, Dir: dir}
}

// SnpSpec builds a Spec for a single point mutation at pos (1-based) of
// genomeRef, substituting newBase for whatever the reference holds there.
// origBase, if non-zero, is asserted against the reference base at Build
// time as a sanity check.
func SnpSpec(id, genomeRef string, pos int, newBase, origBase byte) *Spec {
	return &Spec{ID: id, Kind: KindSnp, GenomeRef: genomeRef, Start: pos, Stop: pos, NewBase: newBase, OrigBase: origBase}
}

// Template is a Spec bound to concrete bases: the literal sequence for
// KindStaticSeq, or bases read from a GenomeSource for KindGenomeRegion and
// KindSnp.
type Template struct {
	ID                    string
	Bases                 []byte
	LeftFlank, RightFlank int // count of leading/trailing flank positions: wildcards for a literal sequence, reference padding for a genome-derived template
	LeftOpen, RightOpen   bool
	snp                   bool
}

// IsSnp reports whether t represents a single-nucleotide polymorphism.
func (t *Template) IsSnp() bool { return t.snp }

// Len returns the number of positions in t's base sequence, flanks
// included.
func (t *Template) Len() int { return len(t.Bases) }

// DefaultSpacing is the number of bases of real reference sequence added on
// either side of a genome-derived template. It widens the window a read can
// align against without itself being scored: the padding is genuine
// reference sequence (not a wildcard), and coverage metrics exclude it via
// the template's flank bounds.
const DefaultSpacing = 25

// Build resolves spec into a Template. genome may be nil if spec is of kind
// KindStaticSeq. spacing bases of genuine reference sequence are added on
// either side of a KindGenomeRegion or KindSnp template (clamped at the
// reference's ends); pass template.DefaultSpacing absent an
// engine-configured override.
func Build(spec *Spec, genome GenomeSource, spacing int) (*Template, error) {
	switch spec.Kind {
	case KindStaticSeq:
		return buildStatic(spec), nil
	case KindGenomeRegion:
		return buildGenomeRegion(spec, genome, spacing)
	case KindSnp:
		return buildSnp(spec, genome, spacing)
	default:
		return nil, fmt.Errorf("template %q: unknown kind %d", spec.ID, spec.Kind)
	}
}

func buildStatic(spec *Spec) *Template {
	return &Template{
		ID:         spec.ID,
		Bases:      append([]byte(nil), spec.Bases...),
		LeftFlank:  countFlank(spec.Bases, false),
		RightFlank: countFlank(spec.Bases, true),
		LeftOpen:   spec.LeftOpen,
		RightOpen:  spec.RightOpen,
	}
}

// flankedRegion computes the [start, stop] (1-based, inclusive) reference
// window spanning [spec.Start, spec.Stop] padded by spacing bases on either
// side, clamped to the reference's own length, and reports how much padding
// survived the clamp on each side.
func flankedRegion(genome GenomeSource, ref string, start, stop, spacing int) (winStart, winStop, leftFlank, rightFlank int, err error) {
	length, err := genome.Len(ref)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	leftFlank, rightFlank = spacing, spacing
	winStart = start - spacing
	if winStart < 1 {
		leftFlank = start - 1
		winStart = 1
	}
	winStop = stop + spacing
	if winStop > length {
		rightFlank = length - stop
		winStop = length
	}
	return winStart, winStop, leftFlank, rightFlank, nil
}

func buildGenomeRegion(spec *Spec, genome GenomeSource, spacing int) (*Template, error) {
	winStart, winStop, leftFlank, rightFlank, err := flankedRegion(genome, spec.GenomeRef, spec.Start, spec.Stop, spacing)
	if err != nil {
		return nil, err
	}
	bases, err := genome.Bases(spec.GenomeRef, winStart, winStop)
	if err != nil {
		return nil, err
	}
	if spec.Dir == Reverse {
		bases = ReverseComplement(bases)
		leftFlank, rightFlank = rightFlank, leftFlank
	}
	return &Template{
		ID:         spec.ID,
		Bases:      bases,
		LeftFlank:  leftFlank,
		RightFlank: rightFlank,
	}, nil
}

func buildSnp(spec *Spec, genome GenomeSource, spacing int) (*Template, error) {
	winStart, winStop, leftFlank, rightFlank, err := flankedRegion(genome, spec.GenomeRef, spec.Start, spec.Stop, spacing)
	if err != nil {
		return nil, err
	}
	region, err := genome.Bases(spec.GenomeRef, winStart, winStop)
	if err != nil {
		return nil, err
	}
	pos := leftFlank // index of spec.Start within region
	if spec.OrigBase != 0 && region[pos] != spec.OrigBase {
		return nil, fmt.Errorf("template %q: expected reference base %q at position %d, found %q", spec.ID, spec.OrigBase, spec.Start, region[pos])
	}
	if region[pos] == spec.NewBase {
		return nil, fmt.Errorf("template %q: mutant base %q equals reference base", spec.ID, spec.NewBase)
	}
	bases := append([]byte(nil), region...)
	bases[pos] = spec.NewBase
	return &Template{ID: spec.ID, Bases: bases, LeftFlank: leftFlank, RightFlank: rightFlank, snp: true}, nil
}

func countFlank(bases []byte, fromEnd bool) int {
	n := 0
	if !fromEnd {
		for i := 0; i < len(bases); i++ {
			if ASCIIToBase(bases[i]) != BaseWildcard {
				break
			}
			n++
		}
	} else {
		for i := len(bases) - 1; i >= 0; i-- {
			if ASCIIToBase(bases[i]) != BaseWildcard {
				break
			}
			n++
		}
	}
	return n
}

// MergeConflictCheck verifies that two specs sharing an ID denote the same
// base sequence, the contract templates must uphold across repeated
// registration (e.g. when several test suites declare an overlapping
// template).
func MergeConflictCheck(a, b *Spec) error {
	if a.Kind != b.Kind {
		return &kerrors.TemplateConflict{ID: a.ID}
	}
	if a.Kind == KindStaticSeq && string(a.Bases) != string(b.Bases) {
		return &kerrors.TemplateConflict{ID: a.ID}
	}
	if a.Kind != KindStaticSeq && (a.GenomeRef != b.GenomeRef || a.Start != b.Start || a.Stop != b.Stop) {
		return &kerrors.TemplateConflict{ID: a.ID}
	}
	return nil
}
