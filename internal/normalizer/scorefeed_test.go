package normalizer

import (
	"fmt"
	"testing"
	"time"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

func snapshot(matchID string, home, away int) []byte {
	return []byte(fmt.Sprintf(
		`{"match_id":%q,"home":"Arsenal","away":"Chelsea","score":{"home":%d,"away":%d},"period":1,"elapsed":600,"status":"live"}`,
		matchID, home, away))
}

func TestScoreFeedFirstObservationProducesNoGoal(t *testing.T) {
	n := NewScoreFeed("scorefeed")

	// Match first observed already at 2-1: no synthetic goals.
	evs, err := n.Normalize(snapshot("m1", 2, 1), time.Now())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(evs) != 0 {
		t.Fatalf("first observation produced %d events, want 0", len(evs))
	}
}

func TestScoreFeedDetectsGoalFromScoreDiff(t *testing.T) {
	n := NewScoreFeed("scorefeed")
	now := time.Now()

	n.Normalize(snapshot("m1", 0, 0), now)

	evs, err := n.Normalize(snapshot("m1", 1, 0), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("Normalize() after 0-0 -> 1-0 = %d events, want 1", len(evs))
	}
	ev := evs[0]
	if ev.Type != events.TypeGoal {
		t.Errorf("event type = %s, want goal", ev.Type)
	}
	if ev.Goal == nil || ev.Goal.Team != "home" {
		t.Errorf("goal detail = %+v, want home team goal", ev.Goal)
	}
	if ev.Goal != nil && !ev.Goal.Derived {
		t.Error("score-diff goal not marked as derived")
	}

	// Unchanged score produces nothing, and is not an error.
	evs, err = n.Normalize(snapshot("m1", 1, 0), now.Add(2*time.Minute))
	if err != nil {
		t.Errorf("unchanged score returned error %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("unchanged score produced %d events, want 0", len(evs))
	}
}

func TestScoreFeedMultipleIncrements(t *testing.T) {
	n := NewScoreFeed("scorefeed")
	now := time.Now()

	n.Normalize(snapshot("m1", 1, 0), now)

	// Missed frames: score jumps 1-0 -> 2-2.
	evs, err := n.Normalize(snapshot("m1", 2, 2), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("Normalize() after 1-0 -> 2-2 = %d events, want 3", len(evs))
	}
	var home, away int
	for _, ev := range evs {
		if ev.Type != events.TypeGoal || ev.Goal == nil {
			t.Fatalf("unexpected event %+v", ev)
		}
		switch ev.Goal.Team {
		case "home":
			home++
		case "away":
			away++
		}
	}
	if home != 1 || away != 2 {
		t.Errorf("goals home/away = %d/%d, want 1/2", home, away)
	}
}

func TestScoreFeedJumpStampsCumulativeScores(t *testing.T) {
	n := NewScoreFeed("scorefeed")
	now := time.Now()

	n.Normalize(snapshot("m1", 0, 0), now)

	// A 0-0 -> 2-1 jump must yield three goals each carrying the score as it
	// stood after that goal, not three copies of the final 2-1.
	evs, err := n.Normalize(snapshot("m1", 2, 1), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("Normalize() after 0-0 -> 2-1 = %d events, want 3", len(evs))
	}

	want := []events.Score{{Home: 1, Away: 0}, {Home: 2, Away: 0}, {Home: 2, Away: 1}}
	for i, ev := range evs {
		if ev.Score == nil {
			t.Fatalf("goal %d has no score", i)
		}
		if *ev.Score != want[i] {
			t.Errorf("goal %d score = %+v, want %+v", i, *ev.Score, want[i])
		}
	}
}

func TestScoreFeedMatchesAreIndependent(t *testing.T) {
	n := NewScoreFeed("scorefeed")
	now := time.Now()

	n.Normalize(snapshot("m1", 0, 0), now)
	// m2 has never been seen; its first frame must not emit goals.
	if evs, _ := n.Normalize(snapshot("m2", 3, 0), now); len(evs) != 0 {
		t.Errorf("first observation of m2 produced %d events, want 0", len(evs))
	}
	// m1 memory is unaffected.
	if evs, _ := n.Normalize(snapshot("m1", 0, 1), now.Add(time.Second)); len(evs) != 1 {
		t.Errorf("m1 score change produced %d events, want 1", len(evs))
	}
}

func TestScoreFeedFinishedReleasesMemory(t *testing.T) {
	n := NewScoreFeed("scorefeed")
	now := time.Now()

	n.Normalize(snapshot("m1", 1, 0), now)

	finished := []byte(`{"match_id":"m1","score":{"home":1,"away":0},"status":"finished"}`)
	evs, err := n.Normalize(finished, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(evs) != 1 || evs[0].Type != events.TypeMatchEnd {
		t.Fatalf("finished frame = %+v, want one match_end event", evs)
	}

	// Memory was released: the next sighting is a first observation again.
	if evs, _ := n.Normalize(snapshot("m1", 2, 0), now.Add(2*time.Minute)); len(evs) != 0 {
		t.Errorf("post-reset first observation produced %d events, want 0", len(evs))
	}
}

func TestScoreFeedMalformedPayloads(t *testing.T) {
	n := NewScoreFeed("scorefeed")
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"match_id":`},
		{"missing match id", `{"score":{"home":1,"away":0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := n.Normalize([]byte(tt.raw), time.Now()); err == nil {
				t.Errorf("Normalize(%q) = nil error, want malformed", tt.raw)
			}
		})
	}
}

func TestScoreFeedScorelessSnapshotIsIgnorable(t *testing.T) {
	n := NewScoreFeed("scorefeed")
	evs, err := n.Normalize([]byte(`{"match_id":"m1","status":"live"}`), time.Now())
	if err != nil {
		t.Errorf("scoreless live snapshot returned error %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("scoreless live snapshot produced %d events, want 0", len(evs))
	}
}

func TestNewFactory(t *testing.T) {
	if _, err := New("statsfeed", "a"); err != nil {
		t.Errorf("New(statsfeed) error: %v", err)
	}
	if _, err := New("scorefeed", "b"); err != nil {
		t.Errorf("New(scorefeed) error: %v", err)
	}
	if _, err := New("teletext", "c"); err == nil {
		t.Error("New(teletext) = nil error, want unknown kind error")
	}
}
