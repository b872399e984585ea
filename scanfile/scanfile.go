// Package scanfile persists a scan.Engine run to disk: an "info" header
// (engine config, input file name(s)/size(s), detected readlength,
// approximate record count, wall-clock duration, timestamp, engine
// version, flank spacing, and the active test-suite versions), paired with
// the per-template coverage blob and, optionally, the raw hits.
//
// The engine itself (package scan) neither reads nor writes this format;
// it only supplies the values this package arranges into a container.
package scanfile

import (
	"encoding/json"
	"io"
	"time"

	"github.com/kvarq/kvarq-go/coverage"
	"github.com/kvarq/kvarq-go/match"
	"github.com/kvarq/kvarq-go/scan"
	"github.com/kvarq/kvarq-go/template"
)

// Version identifies the engine implementation that produced a File, for
// the interpretation layer to decide whether to trust or recompute an old
// scan's coverage blob.
const Version = "1.0.0"

// TestSuiteVersion names one test suite active when the scan ran.
type TestSuiteVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// TemplateCoverage pairs a template identifier with its serialized
// coverage.Buffers.
type TemplateCoverage struct {
	TemplateID string `json:"template_id"`
	Coverage   string `json:"coverage"`
}

// Info is the persisted scan header.
type Info struct {
	EngineConfig  scan.EngineConfig  `json:"engine_config"`
	Files         []string           `json:"files"`
	FileSizes     []int64            `json:"file_sizes"`
	ReadLength    int                `json:"read_length"`
	RecordsApprox int64              `json:"records_approx"`
	ScanDuration  time.Duration      `json:"scan_duration_ns"`
	Timestamp     time.Time          `json:"timestamp"`
	EngineVersion string             `json:"engine_version"`
	FlankSpacing  int                `json:"flank_spacing"`
	TestSuites    []TestSuiteVersion `json:"test_suites"`
}

// File is the complete persisted unit: header, coverage blob, and
// optionally the raw hit list.
type File struct {
	Info      Info               `json:"info"`
	Coverages []TemplateCoverage `json:"coverages"`
	Hits      []match.Hit        `json:"hits,omitempty"`
}

// BuildCoverages renders idx's forward templates and bufs (as returned by
// scan.Engine.Coverages) into the ordered (template_id, serialized) list
// File.Coverages expects.
func BuildCoverages(idx *template.Index, bufs []*coverage.Buffers) []TemplateCoverage {
	out := make([]TemplateCoverage, idx.NumTemplates())
	for i := range out {
		t, _ := idx.At(i)
		out[i] = TemplateCoverage{TemplateID: t.ID, Coverage: coverage.Serialize(bufs[i])}
	}
	return out
}

// RestoreCoverages is the inverse of BuildCoverages: it parses each
// persisted entry back into a coverage.Buffers, matched to idx's forward
// templates by ID. A template present in idx but missing from f (e.g. a
// test suite added after the scan ran) is left as a freshly zeroed
// coverage.Buffers; whether that absence is a warning or an error is the
// interpretation layer's call, not this package's.
func RestoreCoverages(idx *template.Index, tcs []TemplateCoverage) ([]*coverage.Buffers, error) {
	byID := make(map[string]string, len(tcs))
	for _, tc := range tcs {
		byID[tc.TemplateID] = tc.Coverage
	}
	out := make([]*coverage.Buffers, idx.NumTemplates())
	for i := range out {
		t, _ := idx.At(i)
		serialized, ok := byID[t.ID]
		if !ok {
			out[i] = coverage.NewBuffers(t.Len())
			continue
		}
		b, err := coverage.Deserialize(serialized)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// Write encodes f as indented JSON.
func Write(w io.Writer, f *File) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

// Read decodes a File previously produced by Write.
func Read(r io.Reader) (*File, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}
