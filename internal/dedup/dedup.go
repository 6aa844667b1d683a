// Package dedup provides a stateful gate that suppresses retransmitted wire
// records within a sliding time window.
//
// The fingerprint deliberately includes receivedAt: this gate dedups
// retransmission of the identical record, not semantically-identical events
// observed at different times. Semantic dedup across sources is a rule-engine
// concern. Distinct events derived from one wire record (a multi-goal score
// jump) must each pass, so goal fingerprints carry the per-goal score.
package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

// Gate filters events whose fingerprint has already been admitted within the
// TTL window. Safe for concurrent admission from multiple connectors.
type Gate struct {
	mu     sync.Mutex
	ttl    time.Duration
	seen   map[string]*time.Timer
	closed bool
}

// NewGate creates a gate with the given entry time-to-live.
func NewGate(ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Gate{
		ttl:  ttl,
		seen: make(map[string]*time.Timer),
	}
}

// Fingerprint builds the composite dedup key for an event. Goal events also
// key on the scoring team and the post-goal score: the goals derived from a
// single multi-goal score jump share source, match, minute and receivedAt,
// and only those two fields tell them apart.
func Fingerprint(ev *events.Event) string {
	key := fmt.Sprintf("%s|%s|%s|%d|%d",
		ev.Source, ev.MatchID, ev.Type, ev.MinuteOrDefault(-1), ev.ReceivedAt.UnixNano())
	if ev.Type != events.TypeGoal {
		return key
	}
	team := ""
	if ev.Goal != nil {
		team = ev.Goal.Team
	}
	score := "?"
	if ev.Score != nil {
		score = fmt.Sprintf("%d-%d", ev.Score.Home, ev.Score.Away)
	}
	return fmt.Sprintf("%s|%s|%s", key, team, score)
}

// Admit returns true and records the event's fingerprint the first time it is
// seen, false for any repeat within the TTL window. The check-and-insert is
// atomic: concurrent admission of the same fingerprint admits exactly one.
func (g *Gate) Admit(ev *events.Event) bool {
	key := Fingerprint(ev)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	if _, dup := g.seen[key]; dup {
		return false
	}

	// Each entry schedules its own lazy removal after the TTL. The live
	// fingerprint set is small and short-lived, so no batch sweep is needed.
	g.seen[key] = time.AfterFunc(g.ttl, func() {
		g.mu.Lock()
		delete(g.seen, key)
		g.mu.Unlock()
	})
	return true
}

// Len reports the number of live fingerprints.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Close stops all pending expiry timers and rejects further admissions.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	for key, timer := range g.seen {
		timer.Stop()
		delete(g.seen, key)
	}
}
