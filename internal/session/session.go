// Package session sequences the metadata fetch and the enrichment call for
// each load cycle and owns the resulting ViewState.
//
// Only one cycle is current at a time. Each cycle gets a generation number
// and its own context; starting a new cycle cancels the previous context.
// A result is committed only while its generation is current and its
// context has not fired, so late results from superseded cycles are dropped.
package session

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/TobiSchelling/adhara/internal/apod"
	"github.com/TobiSchelling/adhara/internal/model"
)

// MetadataSource fetches feed items. *apod.Client implements it.
type MetadataSource interface {
	FetchByDate(ctx context.Context, date string) (model.FeedItem, error)
	FetchRandom(ctx context.Context) (model.FeedItem, error)
}

// Enricher produces an Insight. *insight.Analyzer implements it.
type Enricher interface {
	Analyze(ctx context.Context, title, explanation string) (model.Insight, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOnChange registers fn to receive a copy of the state after every
// change. fn runs with the orchestrator lock held and must not call back
// into the Orchestrator.
func WithOnChange(fn func(ViewState)) Option {
	return func(o *Orchestrator) { o.onChange = fn }
}

type request struct {
	date   string
	random bool
}

// Orchestrator runs load cycles.
type Orchestrator struct {
	metadata MetadataSource
	enricher Enricher
	onChange func(ViewState)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   ViewState
	gen     uint64
	current *Cycle
	last    request
	started bool
	closed  bool
}

// New creates an orchestrator whose lifetime is bound to ctx. enricher may
// be nil, in which case cycles settle right after the item is committed.
func New(ctx context.Context, metadata MetadataSource, enricher Enricher, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(ctx)
	o := &Orchestrator{
		metadata: metadata,
		enricher: enricher,
		ctx:      ctx,
		cancel:   cancel,
		state:    ViewState{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start runs the initial cycle for the default date. Only the first call
// does anything; later calls return nil.
func (o *Orchestrator) Start() *Cycle {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.mu.Unlock()
	return o.Load("", false)
}

// Load starts a new cycle for date (empty means the default date) or for a
// random item, superseding any cycle in flight.
func (o *Orchestrator) Load(date string, random bool) *Cycle {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return finishedCycle()
	}
	o.started = true

	if o.current != nil {
		o.current.cancel()
	}
	o.gen++
	ctx, cancel := context.WithCancel(o.ctx)
	c := &Cycle{ID: o.gen, done: make(chan struct{}), cancel: cancel}
	o.current = c
	o.last = request{date: date, random: random}

	o.state.Insight = nil
	o.state.Error = nil
	o.state.ItemLoading = true
	o.state.InsightLoading = false
	o.state.Cycle = c.ID
	o.state.Phase = PhaseLoadingItem
	o.notify()

	log.Debug("Load cycle started", "cycle", c.ID, "date", date, "random", random)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(c.done)
		defer cancel()
		o.run(ctx, c, date, random)
	}()
	return c
}

// Retry reloads the committed item's date when the last cycle succeeded,
// otherwise it repeats the last attempted request.
func (o *Orchestrator) Retry() *Cycle {
	o.mu.Lock()
	req := o.last
	if o.state.Item != nil && o.state.Error == nil {
		req = request{date: o.state.Item.Date}
	}
	o.mu.Unlock()
	return o.Load(req.date, req.random)
}

// State returns a copy of the current view state.
func (o *Orchestrator) State() ViewState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Close cancels every cycle in flight and waits for them to finish.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, c *Cycle, date string, random bool) {
	var (
		item model.FeedItem
		err  error
	)
	if random {
		item, err = o.metadata.FetchRandom(ctx)
	} else {
		item, err = o.metadata.FetchByDate(ctx, date)
	}

	if err != nil {
		if apod.IsCancelled(err) || ctx.Err() != nil {
			log.Debug("Load cycle cancelled", "cycle", c.ID)
			return
		}
		info := classify(err)
		if o.commit(ctx, c, func(s *ViewState) {
			s.Error = info
			s.ItemLoading = false
			s.InsightLoading = false
			s.Phase = PhaseErrored
		}) {
			log.Warn("Metadata fetch failed", "cycle", c.ID, "kind", info.Kind, "err", err)
		}
		return
	}

	enrich := o.enricher != nil
	if !o.commit(ctx, c, func(s *ViewState) {
		s.Item = &item
		s.ItemLoading = false
		s.InsightLoading = enrich
		s.SelectedDate = item.Date
		s.Phase = PhaseItemReady
		if !enrich {
			s.Phase = PhaseSettled
		}
	}) || !enrich {
		return
	}

	// Enrichment is not tied to the cycle context; a superseded cycle's
	// result is computed and then dropped by commit.
	insight, err := o.enricher.Analyze(o.ctx, item.Title, item.Explanation)
	if err != nil {
		log.Warn("Enrichment failed", "cycle", c.ID, "date", item.Date, "err", err)
		o.commit(ctx, c, func(s *ViewState) {
			s.InsightLoading = false
			s.Phase = PhaseSettled
		})
		return
	}

	if !o.commit(ctx, c, func(s *ViewState) {
		s.Insight = &insight
		s.InsightLoading = false
		s.Phase = PhaseSettled
	}) {
		log.Debug("Discarded stale insight", "cycle", c.ID, "date", item.Date)
	}
}

// commit applies fn if c is still the current cycle and its context has not
// fired. It reports whether fn was applied.
func (o *Orchestrator) commit(ctx context.Context, c *Cycle, fn func(*ViewState)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if c.ID != o.gen || ctx.Err() != nil {
		return false
	}
	fn(&o.state)
	o.notify()
	return true
}

// notify must be called with o.mu held.
func (o *Orchestrator) notify() {
	if o.onChange != nil {
		o.onChange(o.state.clone())
	}
}

// Cycle is a handle on one load cycle.
type Cycle struct {
	ID     uint64
	done   chan struct{}
	cancel context.CancelFunc
}

func finishedCycle() *Cycle {
	c := &Cycle{done: make(chan struct{}), cancel: func() {}}
	close(c.done)
	return c
}

// Done is closed once the cycle has finished its work, whether its results
// were committed or discarded.
func (c *Cycle) Done() <-chan struct{} { return c.done }

// Cancel fires the cycle's context. Results not yet committed are dropped.
func (c *Cycle) Cancel() { c.cancel() }

// Wait blocks until the cycle is done or ctx fires.
func (c *Cycle) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
