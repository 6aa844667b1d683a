package normalizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

// statsFeedMessage is the wire shape of a statsfeed incident frame.
// Frames with type "ping" are keep-alives; everything interesting arrives as
// type "incident" with a three-digit incident code.
type statsFeedMessage struct {
	MsgType string `json:"type"`
	MatchID string `json:"match_id"`
	Code    int    `json:"code"`

	Minute  *int `json:"minute,omitempty"`
	Period  int  `json:"period,omitempty"`
	Elapsed int  `json:"elapsed,omitempty"` // seconds into the current period

	Home  *string       `json:"home,omitempty"`
	Away  *string       `json:"away,omitempty"`
	Score *events.Score `json:"score,omitempty"`

	Team     string  `json:"team,omitempty"` // "home" or "away"
	Player   *string `json:"player,omitempty"`
	Assist   *string `json:"assist,omitempty"`
	Reason   *string `json:"reason,omitempty"`
	OwnGoal  bool    `json:"own_goal,omitempty"`
	Penalty  bool    `json:"penalty,omitempty"`
	AddedMin *int    `json:"added,omitempty"`
}

// Incident code ranges. The leading digit selects the family; within the card
// family the tens digit distinguishes yellow from red (4_0x yellow, 4_5x red).
const (
	codeFamilyGoal    = 1
	codeFamilyControl = 2
	codeFamilyCard    = 4

	codeMatchStart   = 201
	codeMatchEnd     = 202
	codePeriodChange = 203
)

// StatsFeed parses the statsfeed provider's explicitly tagged incident frames.
// It is stateless: every frame carries its own incident code.
type StatsFeed struct {
	source string
}

// NewStatsFeed creates a statsfeed normalizer stamping events with the given
// source tag.
func NewStatsFeed(source string) *StatsFeed {
	return &StatsFeed{source: source}
}

func (s *StatsFeed) Source() string { return s.source }

// Normalize parses one statsfeed frame. Keep-alives and uninteresting control
// codes are healthy traffic and produce no events; frames the parser cannot
// make sense of return an error.
func (s *StatsFeed) Normalize(raw []byte, receivedAt time.Time) ([]*events.Event, error) {
	var msg statsFeedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("malformed statsfeed payload: %w", err)
	}

	switch msg.MsgType {
	case "incident":
	case "ping", "keepalive":
		return nil, nil
	default:
		return nil, fmt.Errorf("unrecognized statsfeed frame type %q", msg.MsgType)
	}
	if msg.MatchID == "" {
		return nil, fmt.Errorf("statsfeed incident missing match_id")
	}

	ev := &events.Event{
		Source:     s.source,
		ReceivedAt: receivedAt,
		MatchID:    msg.MatchID,
		HomeTeam:   msg.Home,
		AwayTeam:   msg.Away,
		Score:      msg.Score,
		AddedTime:  msg.AddedMin,
	}

	// Explicit minute beats the derived two-half clock.
	if msg.Minute != nil {
		ev.Minute = msg.Minute
	} else {
		ev.Minute = deriveMinute(msg.Period, msg.Elapsed)
	}

	switch {
	case msg.Code/100 == codeFamilyGoal:
		ev.Type = events.TypeGoal
		ev.Goal = &events.GoalDetail{
			Team:      msg.Team,
			Player:    msg.Player,
			AssistBy:  msg.Assist,
			IsOwnGoal: msg.OwnGoal,
			IsPenalty: msg.Penalty,
		}
	case msg.Code/100 == codeFamilyCard:
		// Tens digit: 0x yellow, 5x red.
		if (msg.Code/10)%10 >= 5 {
			ev.Type = events.TypeRedCard
		} else {
			ev.Type = events.TypeYellowCard
		}
		ev.Card = &events.CardDetail{
			Team:   msg.Team,
			Player: msg.Player,
			Reason: msg.Reason,
		}
	case msg.Code == codeMatchStart:
		ev.Type = events.TypeMatchStart
	case msg.Code == codeMatchEnd:
		ev.Type = events.TypeMatchEnd
	case msg.Code == codePeriodChange:
		ev.Type = events.TypePeriodChange
	case msg.Code/100 == codeFamilyControl:
		// Control code we don't care about (lineups, delays).
		return nil, nil
	default:
		// Unrecognized incident code: degrade to unknown rather than drop,
		// so volume anomalies stay observable downstream.
		ev.Type = events.TypeUnknown
	}

	return []*events.Event{ev}, nil
}
