package search

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"testing"
	"time"

	"nyaymitra/client/internal/clock"
	"nyaymitra/client/internal/fault"
	"nyaymitra/client/internal/remote"
)

// gatedSearcher blocks each query until its gate is released.
type gatedSearcher struct {
	mu      sync.Mutex
	queries []string
	gates   map[string]chan struct{}
	results map[string][]remote.RightCard
	errs    map[string]error
}

func newGatedSearcher() *gatedSearcher {
	return &gatedSearcher{
		gates:   make(map[string]chan struct{}),
		results: make(map[string][]remote.RightCard),
		errs:    make(map[string]error),
	}
}

func (g *gatedSearcher) gate(query string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[query]
	if !ok {
		ch = make(chan struct{})
		g.gates[query] = ch
	}
	return ch
}

func (g *gatedSearcher) release(query string) {
	close(g.gate(query))
}

func (g *gatedSearcher) SearchLaws(ctx context.Context, query string) ([]remote.RightCard, error) {
	g.mu.Lock()
	g.queries = append(g.queries, query)
	g.mu.Unlock()

	select {
	case <-g.gate(query):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.errs[query]; err != nil {
		return nil, err
	}
	if cards, ok := g.results[query]; ok {
		return cards, nil
	}
	return []remote.RightCard{{Title: "Result for " + query, Type: remote.CardInfo}}, nil
}

func (g *gatedSearcher) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.queries...)
}

// instantSearcher answers immediately.
type instantSearcher struct{ *gatedSearcher }

func newInstantSearcher() *instantSearcher {
	return &instantSearcher{gatedSearcher: newGatedSearcher()}
}

func (s *instantSearcher) SearchLaws(ctx context.Context, query string) ([]remote.RightCard, error) {
	s.mu.Lock()
	ch, ok := s.gates[query]
	if !ok {
		ch = make(chan struct{})
		close(ch)
		s.gates[query] = ch
	}
	s.mu.Unlock()
	return s.gatedSearcher.SearchLaws(ctx, query)
}

func newTestController(s Searcher, opts Options) (*Controller, *clock.Fake) {
	fake := clock.NewFake(time.Unix(0, 0))
	opts.Clock = fake
	return NewController(s, opts), fake
}

// awaitInFlight waits until exactly want requests are still outstanding.
func awaitInFlight(t *testing.T, ctrl *Controller, want int) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := ctrl.Snapshot()
		if snap.InFlight == want {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("in-flight = %d, want %d", snap.InFlight, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTypingBurstDispatchesOnce(t *testing.T) {
	searcher := newInstantSearcher()
	ctrl, fake := newTestController(searcher, Options{})

	ctrl.OnQueryChange("b")
	fake.Advance(200 * time.Millisecond)
	ctrl.OnQueryChange("ba")
	fake.Advance(200 * time.Millisecond)
	ctrl.OnQueryChange("bai")

	if got := ctrl.Snapshot().State; got != StateDebouncing {
		t.Fatalf("state = %s, want debouncing", got)
	}
	fake.Advance(999 * time.Millisecond)
	if calls := searcher.calls(); len(calls) != 0 {
		t.Fatalf("dispatched before the quiet period elapsed: %v", calls)
	}

	fake.Advance(time.Millisecond)
	awaitInFlight(t, ctrl, 0)
	ctrl.Wait()

	calls := searcher.calls()
	if len(calls) != 1 || calls[0] != "bai" {
		t.Fatalf("calls = %v, want [bai]", calls)
	}
	snap := ctrl.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("state = %s, want idle", snap.State)
	}
	if snap.ResultQuery != "bai" || len(snap.Results) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRescheduleCoalescesLongQueries(t *testing.T) {
	searcher := newInstantSearcher()
	ctrl, fake := newTestController(searcher, Options{Debounce: 500 * time.Millisecond})

	for _, text := range []string{"bail", "bail a", "bail ap", "bail app"} {
		ctrl.OnQueryChange(text)
		fake.Advance(400 * time.Millisecond)
	}
	fake.Advance(100 * time.Millisecond)
	awaitInFlight(t, ctrl, 0)
	ctrl.Wait()

	calls := searcher.calls()
	if len(calls) != 1 || calls[0] != "bail app" {
		t.Fatalf("calls = %v, want [bail app]", calls)
	}
	if fake.Pending() != 0 {
		t.Errorf("pending timers = %d, want 0", fake.Pending())
	}
}

func TestStaleResponseIsDropped(t *testing.T) {
	searcher := newGatedSearcher()
	ctrl, fake := newTestController(searcher, Options{})

	ctrl.OnQueryChange("bail")
	fake.Advance(time.Second)
	ctrl.OnQueryChange("fir")
	fake.Advance(time.Second)

	if got := ctrl.Snapshot().State; got != StateRequesting {
		t.Fatalf("state = %s, want requesting", got)
	}

	searcher.release("fir")
	if first := awaitInFlight(t, ctrl, 1); first.Generation != 2 || first.ResultQuery != "fir" {
		t.Fatalf("after fir returned: %+v, want generation 2 applied", first)
	}

	searcher.release("bail")
	awaitInFlight(t, ctrl, 0)
	ctrl.Wait()

	snap := ctrl.Snapshot()
	if snap.ResultQuery != "fir" || snap.Results[0].Title != "Result for fir" {
		t.Fatalf("results reflect %q, want fir: %+v", snap.ResultQuery, snap.Results)
	}
	if snap.Generation != 2 {
		t.Errorf("generation = %d, want 2", snap.Generation)
	}
	if snap.State != StateIdle {
		t.Errorf("state = %s, want idle", snap.State)
	}
}

func TestNewestGenerationWinsInAnyCompletionOrder(t *testing.T) {
	const n = 6
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		searcher := newGatedSearcher()
		ctrl, fake := newTestController(searcher, Options{})

		queries := make([]string, n)
		for i := range queries {
			queries[i] = fmt.Sprintf("query %d", i+1)
			ctrl.OnQueryChange(queries[i])
			fake.Advance(time.Second)
		}

		var lastApplied uint64
		for k, i := range rng.Perm(n) {
			ticket := uint64(i + 1)
			searcher.release(queries[i])
			snap := awaitInFlight(t, ctrl, n-k-1)
			if ticket > lastApplied {
				if snap.Generation != ticket || snap.ResultQuery != queries[i] {
					t.Fatalf("trial %d: newer ticket %d not applied, snapshot gen %d %q", trial, ticket, snap.Generation, snap.ResultQuery)
				}
				lastApplied = ticket
			} else if snap.Generation != lastApplied {
				t.Fatalf("trial %d: stale ticket %d moved generation to %d (newest %d)", trial, ticket, snap.Generation, lastApplied)
			}
		}
		ctrl.Wait()

		snap := ctrl.Snapshot()
		if snap.ResultQuery != queries[n-1] || snap.Generation != n {
			t.Fatalf("trial %d: final snapshot = %q gen %d, want %q gen %d",
				trial, snap.ResultQuery, snap.Generation, queries[n-1], n)
		}
	}
}

func TestShortInputClearsAndOrphansInflight(t *testing.T) {
	searcher := newGatedSearcher()
	ctrl, fake := newTestController(searcher, Options{})

	searcher.release("bail")
	ctrl.OnQueryChange("bail")
	fake.Advance(time.Second)
	awaitInFlight(t, ctrl, 0)

	ctrl.OnQueryChange("arrest")
	fake.Advance(time.Second)
	ctrl.OnQueryChange("ar")

	snap := ctrl.Snapshot()
	if len(snap.Results) != 0 || snap.ResultQuery != "" {
		t.Fatalf("short input left results behind: %+v", snap)
	}
	if snap.State != StateIdle {
		t.Errorf("state = %s, want idle", snap.State)
	}

	if got := ctrl.Snapshot().InFlight; got != 1 {
		t.Fatalf("in-flight = %d, want the orphaned request still running", got)
	}
	searcher.release("arrest")
	if snap := awaitInFlight(t, ctrl, 0); snap.ResultQuery == "arrest" {
		t.Fatal("orphaned request was applied")
	}
	ctrl.Wait()
	if got := ctrl.Snapshot(); len(got.Results) != 0 {
		t.Errorf("results = %+v, want empty", got.Results)
	}
}

func TestShortInputCancelsPendingSearch(t *testing.T) {
	searcher := newInstantSearcher()
	ctrl, fake := newTestController(searcher, Options{})

	ctrl.OnQueryChange("bail")
	fake.Advance(500 * time.Millisecond)
	ctrl.OnQueryChange("  b ")
	fake.Advance(5 * time.Second)
	ctrl.Wait()

	if calls := searcher.calls(); len(calls) != 0 {
		t.Fatalf("calls = %v, want none", calls)
	}
	if got := ctrl.Snapshot().Input; got != "  b " {
		t.Errorf("input = %q, want the raw text", got)
	}
}

func TestFailureRetainsLastResults(t *testing.T) {
	searcher := newInstantSearcher()
	searcher.errs["custody"] = &fault.RemoteError{StatusCode: http.StatusInternalServerError}
	ctrl, fake := newTestController(searcher, Options{})

	ctrl.OnQueryChange("bail")
	fake.Advance(time.Second)
	awaitInFlight(t, ctrl, 0)

	ctrl.OnQueryChange("custody")
	fake.Advance(time.Second)
	awaitInFlight(t, ctrl, 0)
	ctrl.Wait()

	snap := ctrl.Snapshot()
	if snap.ResultQuery != "bail" || len(snap.Results) != 1 {
		t.Fatalf("last good results were not retained: %+v", snap)
	}
	if snap.Status == "" {
		t.Error("expected a status message after a failed search")
	}
	if snap.State != StateIdle {
		t.Errorf("state = %s, want idle", snap.State)
	}
}

func TestFailedGenerationSupersedesOlderInflight(t *testing.T) {
	searcher := newGatedSearcher()
	searcher.errs["custody"] = errors.Join(fault.ErrNetwork, errors.New("connection reset"))
	ctrl, fake := newTestController(searcher, Options{})

	ctrl.OnQueryChange("bail")
	fake.Advance(time.Second)
	ctrl.OnQueryChange("custody")
	fake.Advance(time.Second)

	searcher.release("custody")
	failed := awaitInFlight(t, ctrl, 1)
	if failed.Status == "" || failed.State != StateIdle {
		t.Fatalf("failed generation should settle with a status: %+v", failed)
	}
	searcher.release("bail")
	awaitInFlight(t, ctrl, 0)
	ctrl.Wait()

	if snap := ctrl.Snapshot(); snap.ResultQuery == "bail" || len(snap.Results) != 0 {
		t.Fatalf("older generation applied after a newer failure: %+v", snap)
	}
}

func TestCapacitySentinelShowsBusyMessage(t *testing.T) {
	searcher := newInstantSearcher()
	searcher.errs["bail"] = fault.ErrCapacity
	ctrl, fake := newTestController(searcher, Options{})

	ctrl.OnQueryChange("bail")
	fake.Advance(time.Second)
	awaitInFlight(t, ctrl, 0)
	ctrl.Wait()

	snap := ctrl.Snapshot()
	if len(snap.Results) != 0 {
		t.Errorf("results = %+v, want empty", snap.Results)
	}
	if snap.Status != BusyMessage {
		t.Errorf("status = %q, want %q", snap.Status, BusyMessage)
	}
}

func TestEmptyResultSetIsApplied(t *testing.T) {
	searcher := newInstantSearcher()
	searcher.results["zzzz"] = nil
	ctrl, fake := newTestController(searcher, Options{})

	ctrl.OnQueryChange("zzzz")
	fake.Advance(time.Second)
	awaitInFlight(t, ctrl, 0)
	ctrl.Wait()

	snap := ctrl.Snapshot()
	if snap.Results == nil || len(snap.Results) != 0 {
		t.Fatalf("results = %#v, want an empty slice", snap.Results)
	}
	if snap.ResultQuery != "zzzz" {
		t.Errorf("result query = %q", snap.ResultQuery)
	}
}

func TestFlushDispatchesImmediately(t *testing.T) {
	searcher := newInstantSearcher()
	ctrl, _ := newTestController(searcher, Options{})

	if ctrl.Flush() {
		t.Fatal("Flush() on an idle controller should report false")
	}
	ctrl.OnQueryChange("anticipatory bail")
	if !ctrl.Flush() {
		t.Fatal("Flush() should report the pending search")
	}
	awaitInFlight(t, ctrl, 0)
	ctrl.Wait()

	if calls := searcher.calls(); len(calls) != 1 || calls[0] != "anticipatory bail" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestCloseCancelsPending(t *testing.T) {
	searcher := newInstantSearcher()
	ctrl, fake := newTestController(searcher, Options{})

	ctrl.OnQueryChange("bail")
	ctrl.Close()
	fake.Advance(2 * time.Second)
	ctrl.Wait()

	if calls := searcher.calls(); len(calls) != 0 {
		t.Fatalf("calls = %v, want none after Close", calls)
	}
}

type fakeRecognizer struct {
	transcript string
	err        error
	lang       remote.Language
}

func (f *fakeRecognizer) Listen(_ context.Context, lang remote.Language) (string, error) {
	f.lang = lang
	return f.transcript, f.err
}

func TestListenWithoutRecognizer(t *testing.T) {
	ctrl, _ := newTestController(newInstantSearcher(), Options{})

	_, err := ctrl.Listen(context.Background())
	if !errors.Is(err, fault.ErrUnsupportedCapability) {
		t.Fatalf("Listen() error = %v, want ErrUnsupportedCapability", err)
	}
}

func TestListenFeedsQueryPath(t *testing.T) {
	searcher := newInstantSearcher()
	rec := &fakeRecognizer{transcript: "जमानत के नियम"}
	ctrl, fake := newTestController(searcher, Options{Recognizer: rec})

	got, err := ctrl.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if got != rec.transcript {
		t.Errorf("transcript = %q", got)
	}
	if rec.lang != remote.Hindi {
		t.Errorf("recognizer language = %s, want hi", rec.lang)
	}
	if snap := ctrl.Snapshot(); snap.Input != rec.transcript || snap.State != StateDebouncing {
		t.Fatalf("snapshot after voice input = %+v", snap)
	}

	fake.Advance(time.Second)
	awaitInFlight(t, ctrl, 0)
	ctrl.Wait()
	if calls := searcher.calls(); len(calls) != 1 || calls[0] != rec.transcript {
		t.Fatalf("calls = %v", calls)
	}
}

func TestListenErrorSetsStatus(t *testing.T) {
	rec := &fakeRecognizer{err: fault.ErrUnsupportedCapability}
	ctrl, _ := newTestController(newInstantSearcher(), Options{Recognizer: rec})

	if _, err := ctrl.Listen(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	snap := ctrl.Snapshot()
	if snap.Listening {
		t.Error("still listening after the recognizer returned")
	}
	if snap.Status == "" {
		t.Error("expected a status message")
	}
}
