// Package enrich backfills match metadata (team names, tournament) from a
// slow, unreliable lookup service without ever blocking the streaming path.
package enrich

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

// MatchDetails is the lookup result for one match.
type MatchDetails struct {
	HomeTeam   string
	AwayTeam   string
	Tournament string
}

// Fetcher is the external enrichment boundary. Implementations may be slow or
// return an error; the resolver tolerates both.
type Fetcher interface {
	FetchMatchDetails(ctx context.Context, matchID string) (*MatchDetails, error)
}

// Resolver caches match details and backfills events as they pass through.
// Lookups run asynchronously: an event that arrives before its match is
// resolved goes through with absent fields, and later events for the same
// match get the cached names.
type Resolver struct {
	fetcher Fetcher

	mu      sync.Mutex
	cache   map[string]MatchDetails
	pending map[string]bool
}

// NewResolver creates a resolver over the given fetcher. A nil fetcher
// disables enrichment entirely.
func NewResolver(fetcher Fetcher) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		cache:   make(map[string]MatchDetails),
		pending: make(map[string]bool),
	}
}

// Apply backfills missing team names on the event from the cache, kicking off
// an async lookup on a cache miss. Never blocks on the fetcher.
func (r *Resolver) Apply(ctx context.Context, ev *events.Event) {
	if r.fetcher == nil {
		return
	}
	if ev.HomeTeam != nil && ev.AwayTeam != nil {
		return
	}

	r.mu.Lock()
	details, hit := r.cache[ev.MatchID]
	if !hit && !r.pending[ev.MatchID] {
		r.pending[ev.MatchID] = true
		go r.fetch(ctx, ev.MatchID)
	}
	r.mu.Unlock()

	if !hit {
		return
	}
	if ev.HomeTeam == nil && details.HomeTeam != "" {
		ev.HomeTeam = events.StringPtr(details.HomeTeam)
	}
	if ev.AwayTeam == nil && details.AwayTeam != "" {
		ev.AwayTeam = events.StringPtr(details.AwayTeam)
	}
}

// Forget drops the cached details for a finished match.
func (r *Resolver) Forget(matchID string) {
	r.mu.Lock()
	delete(r.cache, matchID)
	delete(r.pending, matchID)
	r.mu.Unlock()
}

func (r *Resolver) fetch(ctx context.Context, matchID string) {
	details, err := r.fetcher.FetchMatchDetails(ctx, matchID)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, matchID)
	if err != nil {
		// Failed lookups are retried on the next event for this match.
		slog.Debug("Match details lookup failed", "match_id", matchID, "error", err)
		return
	}
	if details != nil {
		r.cache[matchID] = *details
	}
}
