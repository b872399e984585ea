package scan

import (
	"sync"
	"sync/atomic"

	"github.com/kvarq/kvarq-go/coverage"
	"github.com/kvarq/kvarq-go/match"
	"github.com/kvarq/kvarq-go/template"
)

// Engine carries one scan's config, template index, coverage buffers, and
// cancellation handle. It is an explicit value rather than process-wide
// state, so multiple independent engines can run concurrently (e.g. inside
// a server process).
type Engine struct {
	Config EngineConfig
	index  *template.Index

	stopped int32
	aborted int32

	statsMu sync.Mutex
	stats   *Stats // the running (or most recent) scan's stats

	coverages []*coverage.Buffers // one per forward template, index 0..K-1
	covMu     []sync.Mutex        // guards coverages[i] against concurrent ApplyHit calls
}

// NewEngine builds an Engine over templates. Templates are bound once here
// and are immutable for the engine's lifetime.
func NewEngine(cfg EngineConfig, templates []*template.Template) *Engine {
	idx := template.NewIndex(templates, cfg.ReverseScan)
	covs := make([]*coverage.Buffers, idx.NumTemplates())
	for i := 0; i < idx.NumTemplates(); i++ {
		t, _ := idx.At(i)
		covs[i] = coverage.NewBuffers(t.Len())
	}
	return &Engine{Config: cfg, index: idx, coverages: covs, covMu: make([]sync.Mutex, idx.NumTemplates())}
}

// Index returns the engine's template index.
func (e *Engine) Index() *template.Index { return e.index }

// Coverages returns the per-forward-template coverage buffers, populated by
// Scan. They are exposed read-only to the interpretation layer: call this
// only after Scan returns.
func (e *Engine) Coverages() []*coverage.Buffers { return e.coverages }

// CoverageViews wraps each forward template and its buffers in a
// coverage.View for convenient derived-metric access.
func (e *Engine) CoverageViews() []*coverage.View {
	out := make([]*coverage.View, e.index.NumTemplates())
	for i := range out {
		t, _ := e.index.At(i)
		out[i] = coverage.NewView(t, e.coverages[i])
	}
	return out
}

// Stop requests cooperative cancellation: workers finish their current
// record and return, yielding partial hits and coverages with
// Result.Cancelled set. Safe to call concurrently with Scan, any number of
// times, from any goroutine.
func (e *Engine) Stop() { atomic.StoreInt32(&e.stopped, 1) }

// Abort has the same semantics as Stop; it exists as a distinct signal for
// operator-driven cancellation. Escalation policies like "two Ctrl-C within
// 2s" belong to the caller, which combines Interrupt, Stats, and Abort as
// it sees fit.
func (e *Engine) Abort() { atomic.StoreInt32(&e.aborted, 1) }

// Stats returns the running scan's statistics, or the most recently
// completed scan's once Scan has returned; nil before the first Scan. A
// monitoring goroutine polls this to display progress or to enforce
// wall-clock and coverage-threshold limits by calling Stop.
func (e *Engine) Stats() *Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

func (e *Engine) setStats(s *Stats) {
	e.statsMu.Lock()
	e.stats = s
	e.statsMu.Unlock()
}

// Interrupt records one interrupt-signal event (e.g. a single Ctrl-C) in the
// running scan's stats for diagnostics, without itself cancelling anything.
// A monitoring loop calls this on every signal and decides separately
// whether and when to also call Stop or Abort.
func (e *Engine) Interrupt() {
	if s := e.Stats(); s != nil {
		s.recordSigint()
	}
}

func (e *Engine) cancelled() bool {
	return atomic.LoadInt32(&e.stopped) == 1 || atomic.LoadInt32(&e.aborted) == 1
}

func (e *Engine) policy() match.Policy {
	return match.Policy{
		MaxErrors:     e.Config.MaxErrors,
		MinReadLength: e.Config.MinReadLength,
		MinOverlap:    e.Config.MinOverlap,
		Amin:          e.Config.Amin,
	}
}
