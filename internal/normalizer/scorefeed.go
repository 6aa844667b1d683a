package normalizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

// scoreFeedMessage is the wire shape of a scorefeed snapshot frame. The
// provider never tags goals explicitly; goals are inferred from score deltas
// against the last known score per match.
type scoreFeedMessage struct {
	MatchID string        `json:"match_id"`
	Home    *string       `json:"home,omitempty"`
	Away    *string       `json:"away,omitempty"`
	Score   *events.Score `json:"score,omitempty"`
	Minute  *int          `json:"minute,omitempty"`
	Period  int           `json:"period,omitempty"`
	Elapsed int           `json:"elapsed,omitempty"`
	Status  string        `json:"status,omitempty"` // "live", "finished", "scheduled"
}

// ScoreFeed infers goal events from score changes. It keeps per-match score
// memory: the first observation of a match only initializes that memory and
// never produces a synthetic goal, no matter what the score already is.
type ScoreFeed struct {
	source     string
	lastScores map[string]events.Score
}

// NewScoreFeed creates a scorefeed normalizer stamping events with the given
// source tag.
func NewScoreFeed(source string) *ScoreFeed {
	return &ScoreFeed{
		source:     source,
		lastScores: make(map[string]events.Score),
	}
}

func (s *ScoreFeed) Source() string { return s.source }

// Normalize parses one scorefeed snapshot. It emits one derived goal event per
// score increment since the last observation, and a match_end event when the
// match finishes (which also releases the per-match memory). Snapshots that
// advance nothing (first observation, unchanged score) are healthy traffic and
// return no events and no error.
func (s *ScoreFeed) Normalize(raw []byte, receivedAt time.Time) ([]*events.Event, error) {
	var msg scoreFeedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("malformed scorefeed payload: %w", err)
	}
	if msg.MatchID == "" {
		return nil, fmt.Errorf("scorefeed snapshot missing match_id")
	}

	minute := msg.Minute
	if minute == nil {
		minute = deriveMinute(msg.Period, msg.Elapsed)
	}

	base := func(t events.EventType) *events.Event {
		return &events.Event{
			Source:     s.source,
			ReceivedAt: receivedAt,
			Type:       t,
			MatchID:    msg.MatchID,
			HomeTeam:   msg.Home,
			AwayTeam:   msg.Away,
			Score:      msg.Score,
			Minute:     minute,
		}
	}

	if msg.Status == "finished" {
		delete(s.lastScores, msg.MatchID)
		return []*events.Event{base(events.TypeMatchEnd)}, nil
	}

	if msg.Score == nil {
		return nil, nil
	}

	last, known := s.lastScores[msg.MatchID]
	s.lastScores[msg.MatchID] = *msg.Score
	if !known {
		// First sighting: remember the score, emit nothing. A match first
		// observed at 2-1 must not produce three synthetic goals.
		return nil, nil
	}

	// Each derived goal carries the cumulative score after that goal rather
	// than the frame's final score, so the goals of a multi-goal jump stay
	// distinguishable downstream (and in the dedup gate).
	run := last
	var out []*events.Event
	addGoal := func(team string) {
		ev := base(events.TypeGoal)
		sc := run
		ev.Score = &sc
		ev.Goal = &events.GoalDetail{Team: team, Derived: true}
		out = append(out, ev)
	}
	for run.Home < msg.Score.Home {
		run.Home++
		addGoal("home")
	}
	for run.Away < msg.Score.Away {
		run.Away++
		addGoal("away")
	}
	return out, nil
}
