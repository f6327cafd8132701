package browse

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-browser/pkg/catalog"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource serves canned data. Calls whose key has a gate block until the
// gate is released or the fetch context ends.
type fakeSource struct {
	mu         sync.Mutex
	catalog    []catalog.Entry
	members    map[string][]catalog.Entry
	categories []catalog.Category
	gates      map[string]chan struct{}
	errs       map[string]error
	calls      map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		catalog:    entries("p", 200),
		members:    map[string][]catalog.Entry{"water": named("p3", "p9"), "fire": named("p4", "p5", "p6")},
		categories: []catalog.Category{{Name: "normal"}, {Name: "fire"}, {Name: "water"}},
		gates:      make(map[string]chan struct{}),
		errs:       make(map[string]error),
		calls:      make(map[string]int),
	}
}

func limitKey(n int) string       { return "limit:" + strconv.Itoa(n) }
func categoryKey(n string) string { return "category:" + n }

const categoriesKey = "categories"

func (f *fakeSource) hold(key string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[key] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeSource) fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key] = err
}

func (f *fakeSource) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeSource) enter(ctx context.Context, key string) error {
	f.mu.Lock()
	f.calls[key]++
	gate := f.gates[key]
	err := f.errs[key]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeSource) ListEntries(ctx context.Context, limit int) ([]catalog.Entry, error) {
	if err := f.enter(ctx, limitKey(limit)); err != nil {
		return nil, err
	}
	if limit > len(f.catalog) {
		limit = len(f.catalog)
	}
	return f.catalog[:limit], nil
}

func (f *fakeSource) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	if err := f.enter(ctx, categoriesKey); err != nil {
		return nil, err
	}
	return f.categories, nil
}

func (f *fakeSource) ListEntriesByCategory(ctx context.Context, name string) ([]catalog.Entry, error) {
	if err := f.enter(ctx, categoryKey(name)); err != nil {
		return nil, err
	}
	return f.members[name], nil
}

// recorder collects reports in order.
type recorder struct {
	mu      sync.Mutex
	reports []Report
}

func (r *recorder) Report(rep Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

func (r *recorder) find(lineage Lineage, outcome Outcome) (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.reports {
		if rep.Lineage == lineage && rep.Outcome == outcome {
			return rep, true
		}
	}
	return Report{}, false
}

type harness struct {
	o   *Orchestrator
	src *fakeSource
	rec *recorder
}

func start(t *testing.T, src *fakeSource) *harness {
	t.Helper()

	rec := &recorder{}
	o := New(src, WithReporter(rec), WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- o.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run() did not return after cancel")
		}
	})

	return &harness{o: o, src: src, rec: rec}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) waitSnapshot(t *testing.T, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var snap Snapshot
	waitFor(t, what, func() bool {
		snap = h.o.Snapshot()
		return cond(snap)
	})
	return snap
}

func (h *harness) waitReport(t *testing.T, lineage Lineage, outcome Outcome) Report {
	t.Helper()
	var rep Report
	waitFor(t, string(lineage)+" "+string(outcome)+" report", func() bool {
		var found bool
		rep, found = h.rec.find(lineage, outcome)
		return found
	})
	return rep
}

func settled(snap Snapshot) bool { return !snap.Loading && len(snap.Entries) > 0 }

func TestOrchestrator_Scenario(t *testing.T) {
	h := start(t, newFakeSource())
	ctx := context.Background()

	snap := h.waitSnapshot(t, "initial limit", settled)
	if !reflect.DeepEqual(snap.Entries, entries("p", 20)) {
		t.Fatalf("Entries = %v, want p1..p20", entryNames(snap.Entries))
	}

	release := h.src.hold(limitKey(40))
	if err := h.o.IncreaseLimit(ctx); err != nil {
		t.Fatalf("IncreaseLimit() error = %v", err)
	}
	if snap := h.o.Snapshot(); !snap.Loading || snap.Limit != 40 {
		t.Errorf("after IncreaseLimit: loading=%v limit=%d", snap.Loading, snap.Limit)
	}
	release()

	snap = h.waitSnapshot(t, "limit 40", func(s Snapshot) bool { return !s.Loading && len(s.Entries) == 40 })
	if !reflect.DeepEqual(snap.Entries, entries("p", 40)) {
		t.Fatalf("Entries = %v, want p1..p40", entryNames(snap.Entries))
	}

	if err := h.o.SelectCategory(ctx, "water"); err != nil {
		t.Fatalf("SelectCategory() error = %v", err)
	}
	snap = h.waitSnapshot(t, "water", func(s Snapshot) bool { return !s.Loading && len(s.Entries) == 2 })
	if got := entryNames(snap.Entries); !reflect.DeepEqual(got, []string{"p3", "p9"}) {
		t.Fatalf("Entries = %v, want [p3 p9]", got)
	}

	if err := h.o.SelectCategory(ctx, ""); err != nil {
		t.Fatalf("SelectCategory(\"\") error = %v", err)
	}
	snap = h.o.Snapshot()
	if got := entryNames(snap.Entries); !reflect.DeepEqual(got, []string{"p3", "p9"}) {
		t.Errorf("after clear: Entries = %v, want [p3 p9]", got)
	}
	if snap.Loading {
		t.Error("after clear: loading should be false")
	}
	if n := h.src.count(limitKey(40)); n != 1 {
		t.Errorf("limit 40 fetched %d times, want 1", n)
	}
}

func TestOrchestrator_Categories(t *testing.T) {
	h := start(t, newFakeSource())

	snap := h.waitSnapshot(t, "category list", func(s Snapshot) bool { return len(s.Categories) == 4 })
	want := []Option{
		{Label: SelectPrompt, Value: ""},
		{Label: "normal", Value: "normal"},
		{Label: "fire", Value: "fire"},
		{Label: "water", Value: "water"},
	}
	if !reflect.DeepEqual(snap.Categories, want) {
		t.Errorf("Categories = %v, want %v", snap.Categories, want)
	}
	if n := h.src.count(categoriesKey); n != 1 {
		t.Errorf("category list fetched %d times, want 1", n)
	}
}

func TestOrchestrator_CategoriesFailure(t *testing.T) {
	src := newFakeSource()
	src.fail(categoriesKey, errors.New("no route to host"))
	h := start(t, src)

	rep := h.waitReport(t, LineageCategories, OutcomeFailed)
	if rep.Failure() != FailureNetwork {
		t.Errorf("Failure() = %q, want network", rep.Failure())
	}
	snap := h.waitSnapshot(t, "initial limit", settled)
	if !reflect.DeepEqual(snap.Categories, []Option{{Label: SelectPrompt, Value: ""}}) {
		t.Errorf("Categories = %v, want sentinel only", snap.Categories)
	}
}

func TestOrchestrator_LimitRace(t *testing.T) {
	src := newFakeSource()
	release20 := src.hold(limitKey(20))
	defer release20()
	h := start(t, src)
	ctx := context.Background()

	waitFor(t, "limit 20 issued", func() bool { return src.count(limitKey(20)) == 1 })
	if err := h.o.IncreaseLimit(ctx); err != nil {
		t.Fatalf("IncreaseLimit() error = %v", err)
	}
	h.waitSnapshot(t, "limit 40", func(s Snapshot) bool { return len(s.Entries) == 40 })

	release20()
	h.waitReport(t, LineageLimit, OutcomeSuperseded)

	snap := h.o.Snapshot()
	if !reflect.DeepEqual(snap.Entries, entries("p", 40)) {
		t.Errorf("Entries = %v, want p1..p40", entryNames(snap.Entries))
	}
	if snap.Loading {
		t.Error("loading should be false")
	}
}

func TestOrchestrator_Reselection(t *testing.T) {
	h := start(t, newFakeSource())
	ctx := context.Background()
	h.waitSnapshot(t, "initial limit", settled)

	for _, name := range []string{"water", "water"} {
		if err := h.o.SelectCategory(ctx, name); err != nil {
			t.Fatalf("SelectCategory(%q) error = %v", name, err)
		}
	}
	// Loading clears only once the latest water request has settled, so
	// every issued fetch has been counted by then.
	h.waitSnapshot(t, "water settled", func(s Snapshot) bool { return !s.Loading })
	if n := h.src.count(categoryKey("water")); n != 1 {
		t.Errorf("identical reselection: water fetched %d times, want 1", n)
	}

	for _, name := range []string{"fire", "water"} {
		if err := h.o.SelectCategory(ctx, name); err != nil {
			t.Fatalf("SelectCategory(%q) error = %v", name, err)
		}
	}
	snap := h.waitSnapshot(t, "water settled again", func(s Snapshot) bool { return !s.Loading })
	if n := h.src.count(categoryKey("water")); n != 2 {
		t.Errorf("reselection after fire: water fetched %d times, want 2", n)
	}
	if got := entryNames(snap.Entries); !reflect.DeepEqual(got, []string{"p3", "p9"}) {
		t.Errorf("Entries = %v, want [p3 p9]", got)
	}
}

func TestOrchestrator_ClearWhileCategoryInFlight(t *testing.T) {
	src := newFakeSource()
	h := start(t, src)
	ctx := context.Background()
	h.waitSnapshot(t, "initial limit", settled)

	release := src.hold(categoryKey("fire"))
	defer release()

	if err := h.o.SelectCategory(ctx, "fire"); err != nil {
		t.Fatalf("SelectCategory() error = %v", err)
	}
	if !h.o.Snapshot().Loading {
		t.Error("expected loading while fire is outstanding")
	}

	if err := h.o.SelectCategory(ctx, ""); err != nil {
		t.Fatalf("SelectCategory(\"\") error = %v", err)
	}
	if h.o.Snapshot().Loading {
		t.Error("clearing should stop the category lineage loading")
	}

	release()
	h.waitReport(t, LineageCategory, OutcomeSuperseded)

	snap := h.o.Snapshot()
	if !reflect.DeepEqual(snap.Entries, entries("p", 20)) {
		t.Errorf("Entries = %v, want p1..p20", entryNames(snap.Entries))
	}
	if snap.Loading {
		t.Error("superseded arrival changed loading")
	}
}

func TestOrchestrator_FailureIsReportedNotSurfaced(t *testing.T) {
	src := newFakeSource()
	src.fail(categoryKey("fire"), errors.New("connection reset by peer"))
	h := start(t, src)
	ctx := context.Background()
	h.waitSnapshot(t, "initial limit", settled)

	if err := h.o.SelectCategory(ctx, "fire"); err != nil {
		t.Fatalf("SelectCategory() error = %v", err)
	}
	rep := h.waitReport(t, LineageCategory, OutcomeFailed)
	if rep.Err == nil || rep.Category != "fire" {
		t.Errorf("report = %+v", rep)
	}

	snap := h.waitSnapshot(t, "fire settled", func(s Snapshot) bool { return !s.Loading })
	if !reflect.DeepEqual(snap.Entries, entries("p", 20)) {
		t.Errorf("Entries = %v, want p1..p20", entryNames(snap.Entries))
	}
	if snap.SelectedCategory != "fire" {
		t.Errorf("SelectedCategory = %q, want fire", snap.SelectedCategory)
	}
}

func TestOrchestrator_LimitWhileCategorySelected(t *testing.T) {
	h := start(t, newFakeSource())
	ctx := context.Background()
	h.waitSnapshot(t, "initial limit", settled)

	h.o.SelectCategory(ctx, "water")
	h.waitSnapshot(t, "water", func(s Snapshot) bool { return !s.Loading && len(s.Entries) == 2 })

	if err := h.o.IncreaseLimit(ctx); err != nil {
		t.Fatalf("IncreaseLimit() error = %v", err)
	}
	h.waitReport(t, LineageLimit, OutcomeShadowed)

	snap := h.waitSnapshot(t, "limit settled", func(s Snapshot) bool { return !s.Loading })
	if got := entryNames(snap.Entries); !reflect.DeepEqual(got, []string{"p3", "p9"}) {
		t.Errorf("Entries = %v, want [p3 p9]", got)
	}
	if snap.Limit != 40 {
		t.Errorf("Limit = %d, want 40", snap.Limit)
	}
}

func TestOrchestrator_HungRequestKeepsLoading(t *testing.T) {
	src := newFakeSource()
	src.hold(limitKey(20))
	h := start(t, src)

	waitFor(t, "limit 20 issued", func() bool { return src.count(limitKey(20)) == 1 })
	time.Sleep(20 * time.Millisecond)
	if !h.o.Snapshot().Loading {
		t.Error("hung request should keep loading set")
	}
	// Cleanup cancels Run; the gated fetch must exit through its context.
}

func TestOrchestrator_Subscribe(t *testing.T) {
	h := start(t, newFakeSource())
	ctx := context.Background()

	updates, cancel := h.o.Subscribe()
	defer cancel()

	h.waitSnapshot(t, "initial limit", settled)
	h.o.SelectCategory(ctx, "fire")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				t.Fatal("subscription closed early")
			}
			if !snap.Loading && snap.SelectedCategory == "fire" && len(snap.Entries) == 3 {
				return
			}
		case <-deadline:
			t.Fatal("no fire snapshot delivered")
		}
	}
}

func TestOrchestrator_Unsubscribe(t *testing.T) {
	h := start(t, newFakeSource())

	updates, cancel := h.o.Subscribe()
	cancel()
	cancel()

	for range updates {
	}
}

func TestOrchestrator_Lifecycle(t *testing.T) {
	src := newFakeSource()
	o := New(src, WithReporter(&recorder{}), WithLogger(zerolog.Nop()), WithPageSize(5))

	if snap := o.Snapshot(); snap.Limit != 5 || snap.Loading {
		t.Errorf("before Run: limit=%d loading=%v", snap.Limit, snap.Loading)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- o.Run(ctx) }()

	waitFor(t, "limit 5", func() bool { return len(o.Snapshot().Entries) == 5 })

	if err := o.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}

	updates, _ := o.Subscribe()

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for range updates {
	}

	if err := o.IncreaseLimit(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("IncreaseLimit() after stop = %v, want ErrStopped", err)
	}
	if err := o.SelectCategory(context.Background(), "fire"); !errors.Is(err, ErrStopped) {
		t.Errorf("SelectCategory() after stop = %v, want ErrStopped", err)
	}

	late, _ := o.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after stop should be closed")
	}
}

func TestOrchestrator_IntentRespectsContext(t *testing.T) {
	o := New(newFakeSource(), WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := o.IncreaseLimit(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("IncreaseLimit() = %v, want context.Canceled", err)
	}
}
