package browse

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/catalog-browser/pkg/catalog"
	"github.com/Sternrassler/catalog-browser/pkg/logging"
	"github.com/rs/zerolog"
)

var (
	// ErrStopped is returned by intents sent after Run has returned.
	ErrStopped = errors.New("orchestrator stopped")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("orchestrator already running")
)

// Source is the remote side of the view. *catalog.Service implements it.
type Source interface {
	ListEntries(ctx context.Context, limit int) ([]catalog.Entry, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	ListEntriesByCategory(ctx context.Context, name string) ([]catalog.Entry, error)
}

var _ Source = (*catalog.Service)(nil)

type intentKind int

const (
	intentSelect intentKind = iota
	intentMore
)

type intent struct {
	kind intentKind
	name string
	done chan struct{}
}

// Orchestrator runs a State on a single goroutine and performs the fetches
// it asks for.
type Orchestrator struct {
	source   Source
	reporter Reporter
	logger   zerolog.Logger
	pageSize int

	intents chan intent
	results chan Response
	stopped chan struct{}
	running atomic.Bool

	// wg tracks fetch goroutines. Only the Run goroutine calls Add.
	wg sync.WaitGroup

	mu   sync.RWMutex
	snap Snapshot

	subsMu  sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
	closed  bool
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithReporter replaces the default LogReporter.
func WithReporter(r Reporter) OrchestratorOption {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithPageSize sets the initial limit and the load-more increment.
func WithPageSize(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// New creates an Orchestrator fetching from source. Call Run to start it.
func New(source Source, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		source:   source,
		logger:   logging.NewLogger("browse"),
		pageSize: DefaultPageSize,
		intents:  make(chan intent),
		results:  make(chan Response),
		stopped:  make(chan struct{}),
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.reporter == nil {
		o.reporter = NewLogReporter(o.logger)
	}
	o.snap = NewState(o.pageSize).Snapshot()
	return o
}

// Run mounts the view and processes intents and fetch completions until
// ctx is cancelled. It returns after every fetch goroutine has exited.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		o.wg.Wait()
		close(o.stopped)
		o.closeSubscribers()
		o.logger.Debug().Msg("Orchestrator stopped")
	}()

	state := NewState(o.pageSize)

	o.fetch(fetchCtx, Request{Lineage: LineageCategories})
	if req, ok := state.Mount(); ok {
		o.fetch(fetchCtx, req)
	}
	o.publish(state)

	o.logger.Debug().Int("limit", state.limit).Msg("Orchestrator mounted")

	for {
		select {
		case <-ctx.Done():
			return nil

		case in := <-o.intents:
			switch in.kind {
			case intentMore:
				req := state.IncreaseLimit()
				o.logger.Debug().Int("limit", req.Limit).Msg("Limit increased")
				o.fetch(fetchCtx, req)
			case intentSelect:
				req, ok := state.SelectCategory(in.name)
				o.logger.Debug().
					Str("category", in.name).
					Bool("fetch", ok).
					Msg("Category selected")
				if ok {
					o.fetch(fetchCtx, req)
				}
			}
			o.publish(state)
			close(in.done)

		case resp := <-o.results:
			outcome := state.Complete(resp)
			count := len(resp.Entries)
			if resp.Lineage == LineageCategories {
				count = len(resp.Categories)
			}
			o.reporter.Report(Report{
				Lineage:  resp.Lineage,
				Outcome:  outcome,
				Err:      resp.Err,
				Duration: resp.Duration,
				Count:    count,
				Limit:    resp.Limit,
				Category: resp.Category,
			})
			if resp.Lineage == LineageCategories && outcome == OutcomeCommitted {
				o.logger.Info().Int("count", count).Msg("Categories loaded")
			}
			if outcome != OutcomeSuperseded {
				o.publish(state)
			}
		}
	}
}

// fetch runs req on its own goroutine and posts the Response back to Run.
func (o *Orchestrator) fetch(ctx context.Context, req Request) {
	gauge := fetchesInFlight.WithLabelValues(string(req.Lineage))
	gauge.Inc()
	o.wg.Add(1)

	go func() {
		defer o.wg.Done()
		defer gauge.Dec()

		start := time.Now()
		resp := Response{Request: req}
		switch req.Lineage {
		case LineageLimit:
			resp.Entries, resp.Err = o.source.ListEntries(ctx, req.Limit)
		case LineageCategory:
			resp.Entries, resp.Err = o.source.ListEntriesByCategory(ctx, req.Category)
		case LineageCategories:
			resp.Categories, resp.Err = o.source.ListCategories(ctx)
		}
		resp.Duration = time.Since(start)

		select {
		case o.results <- resp:
		case <-ctx.Done():
		}
	}()
}

// SelectCategory sets the category filter; "" clears it. It returns once
// the change is reflected in Snapshot.
func (o *Orchestrator) SelectCategory(ctx context.Context, name string) error {
	return o.send(ctx, intent{kind: intentSelect, name: name})
}

// IncreaseLimit widens the unfiltered window by one page. It returns once
// the change is reflected in Snapshot.
func (o *Orchestrator) IncreaseLimit(ctx context.Context) error {
	return o.send(ctx, intent{kind: intentMore})
}

func (o *Orchestrator) send(ctx context.Context, in intent) error {
	in.done = make(chan struct{})
	select {
	case o.intents <- in:
	case <-o.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-in.done:
		return nil
	case <-o.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap.clone()
}

// Subscribe returns a channel that receives the current view and then
// every change. Slow readers only see the latest view. The channel is
// closed by the returned cancel func or when Run returns.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	o.subsMu.Lock()
	defer o.subsMu.Unlock()

	if o.closed {
		close(ch)
		return ch, func() {}
	}

	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.Snapshot()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subsMu.Lock()
			defer o.subsMu.Unlock()
			if c, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(c)
			}
		})
	}
}

func (o *Orchestrator) publish(state *State) {
	snap := state.Snapshot()

	o.mu.Lock()
	o.snap = snap
	o.mu.Unlock()

	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap.clone()
	}
}

func (o *Orchestrator) closeSubscribers() {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	o.closed = true
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
}
