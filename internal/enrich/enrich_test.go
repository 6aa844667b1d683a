package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	details map[string]*MatchDetails
	err     error
	block   chan struct{} // when set, FetchMatchDetails waits on it
}

func (f *fakeFetcher) FetchMatchDetails(ctx context.Context, matchID string) (*MatchDetails, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.details[matchID], nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func bareEvent(matchID string) *events.Event {
	return &events.Event{
		Source:     "scorefeed",
		ReceivedAt: time.Now(),
		Type:       events.TypeGoal,
		MatchID:    matchID,
	}
}

func TestApplyBackfillsOnSubsequentEvents(t *testing.T) {
	fetcher := &fakeFetcher{details: map[string]*MatchDetails{
		"m1": {HomeTeam: "Arsenal", AwayTeam: "Chelsea", Tournament: "Premier League"},
	}}
	r := NewResolver(fetcher)
	ctx := context.Background()

	// First event triggers the async lookup but passes through unresolved.
	first := bareEvent("m1")
	r.Apply(ctx, first)
	if first.HomeTeam != nil {
		t.Error("first event was backfilled synchronously; lookup must be async")
	}

	// Wait for the background fetch to land.
	deadline := time.Now().Add(2 * time.Second)
	for fetcher.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	second := bareEvent("m1")
	r.Apply(ctx, second)
	if second.HomeTeam == nil || *second.HomeTeam != "Arsenal" {
		t.Errorf("second event home team = %v, want Arsenal", second.HomeTeam)
	}
	if second.AwayTeam == nil || *second.AwayTeam != "Chelsea" {
		t.Errorf("second event away team = %v, want Chelsea", second.AwayTeam)
	}
}

func TestApplyNeverBlocksOnSlowFetcher(t *testing.T) {
	fetcher := &fakeFetcher{block: make(chan struct{})}
	defer close(fetcher.block)
	r := NewResolver(fetcher)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Apply(context.Background(), bareEvent("m1"))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Apply() blocked on a slow fetcher")
	}
}

func TestApplyRetriesAfterFetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("enrichment service down")}
	r := NewResolver(fetcher)
	ctx := context.Background()

	r.Apply(ctx, bareEvent("m1"))
	waitCalls(t, fetcher, 1)

	// Error cleared pending: the next event retries.
	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.details = map[string]*MatchDetails{"m1": {HomeTeam: "Lyon", AwayTeam: "Lille"}}
	fetcher.mu.Unlock()

	r.Apply(ctx, bareEvent("m1"))
	waitCalls(t, fetcher, 2)

	ev := bareEvent("m1")
	r.Apply(ctx, ev)
	if ev.HomeTeam == nil {
		t.Error("event not backfilled after successful retry")
	}
}

func TestApplyDoesNotDuplicateInflightLookups(t *testing.T) {
	fetcher := &fakeFetcher{block: make(chan struct{})}
	r := NewResolver(fetcher)
	ctx := context.Background()

	r.Apply(ctx, bareEvent("m1"))
	r.Apply(ctx, bareEvent("m1"))
	r.Apply(ctx, bareEvent("m1"))
	close(fetcher.block)

	waitCalls(t, fetcher, 1)
	time.Sleep(20 * time.Millisecond)
	if got := fetcher.callCount(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (in-flight lookups coalesce)", got)
	}
}

func TestApplyPreservesProviderSuppliedNames(t *testing.T) {
	fetcher := &fakeFetcher{details: map[string]*MatchDetails{
		"m1": {HomeTeam: "Wrong", AwayTeam: "Names"},
	}}
	r := NewResolver(fetcher)
	ctx := context.Background()

	r.Apply(ctx, bareEvent("m1"))
	waitCalls(t, fetcher, 1)
	time.Sleep(10 * time.Millisecond)

	ev := bareEvent("m1")
	ev.HomeTeam = events.StringPtr("Arsenal")
	r.Apply(ctx, ev)
	if *ev.HomeTeam != "Arsenal" {
		t.Errorf("provider-supplied home team overwritten: %s", *ev.HomeTeam)
	}
	if ev.AwayTeam == nil || *ev.AwayTeam != "Names" {
		t.Errorf("missing away team not backfilled: %v", ev.AwayTeam)
	}
}

func TestForgetEvictsCache(t *testing.T) {
	fetcher := &fakeFetcher{details: map[string]*MatchDetails{
		"m1": {HomeTeam: "Arsenal", AwayTeam: "Chelsea"},
	}}
	r := NewResolver(fetcher)
	ctx := context.Background()

	r.Apply(ctx, bareEvent("m1"))
	waitCalls(t, fetcher, 1)
	time.Sleep(10 * time.Millisecond)

	r.Forget("m1")

	ev := bareEvent("m1")
	r.Apply(ctx, ev)
	if ev.HomeTeam != nil {
		t.Error("event backfilled from evicted cache entry")
	}
}

func TestNilFetcherDisablesEnrichment(t *testing.T) {
	r := NewResolver(nil)
	ev := bareEvent("m1")
	r.Apply(context.Background(), ev) // must not panic
	if ev.HomeTeam != nil {
		t.Error("nil fetcher should leave events untouched")
	}
}

func waitCalls(t *testing.T, f *fakeFetcher, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.callCount() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("fetcher calls = %d, want >= %d", f.callCount(), want)
}
