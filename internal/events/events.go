// Package events defines the canonical event and alert structures shared by
// every pipeline stage. Raw provider payloads are normalized into Event; rules
// turn admitted Events into Alerts.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of in-match occurrence an Event describes.
type EventType string

const (
	TypeGoal         EventType = "goal"
	TypeRedCard      EventType = "red_card"
	TypeYellowCard   EventType = "yellow_card"
	TypeMatchStart   EventType = "match_start"
	TypeMatchEnd     EventType = "match_end"
	TypePeriodChange EventType = "period_change"
	TypeUnknown      EventType = "unknown"
)

// Severity levels for alerts.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Score is a snapshot of the match score at event time.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// GoalDetail is the payload variant carried by goal events.
// Derived marks goals inferred from a score change rather than an explicit
// provider tag, so downstream consumers can tell the two paths apart.
type GoalDetail struct {
	Team      string  `json:"team"` // "home" or "away"
	Player    *string `json:"player,omitempty"`
	AssistBy  *string `json:"assist_by,omitempty"`
	IsOwnGoal bool    `json:"is_own_goal"`
	IsPenalty bool    `json:"is_penalty"`
	Derived   bool    `json:"derived"`
}

// CardDetail is the payload variant carried by card events.
type CardDetail struct {
	Team   string  `json:"team"`
	Player *string `json:"player,omitempty"`
	Reason *string `json:"reason,omitempty"`
}

// Event is the canonical representation of one in-match occurrence.
// It is immutable once constructed: stages read it but never modify it.
// Optional fields are nil pointers when the provider did not supply them,
// never placeholder strings that could be mistaken for real data.
type Event struct {
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
	Type       EventType `json:"type"`
	MatchID    string    `json:"match_id"`

	HomeTeam *string `json:"home_team,omitempty"`
	AwayTeam *string `json:"away_team,omitempty"`
	Score    *Score  `json:"score,omitempty"`

	Minute    *int `json:"minute,omitempty"`
	AddedTime *int `json:"added_time,omitempty"`

	Goal *GoalDetail `json:"goal,omitempty"`
	Card *CardDetail `json:"card,omitempty"`
}

// Validate checks that the event carries the fields required for dedup
// eligibility. Events failing validation are rejected before the dedup gate.
func (e *Event) Validate() error {
	if e.Source == "" {
		return fmt.Errorf("event missing source")
	}
	if e.MatchID == "" {
		return fmt.Errorf("event missing match_id")
	}
	if e.Type == "" {
		return fmt.Errorf("event missing type")
	}
	if e.ReceivedAt.IsZero() {
		return fmt.Errorf("event missing received_at")
	}
	return nil
}

// MinuteOrDefault returns the in-match minute, or def when unknown.
func (e *Event) MinuteOrDefault(def int) int {
	if e.Minute == nil {
		return def
	}
	return *e.Minute
}

// TeamName resolves a "home"/"away" side tag against the event's team names.
// Returns the display name and true, or "" and false when unresolved.
func (e *Event) TeamName(side string) (string, bool) {
	switch side {
	case "home":
		if e.HomeTeam != nil {
			return *e.HomeTeam, true
		}
	case "away":
		if e.AwayTeam != nil {
			return *e.AwayTeam, true
		}
	}
	return "", false
}

// Alert is the pipeline's output: one notification-worthy finding produced by
// a rule. Message is fully rendered text; Data mirrors the triggering event's
// relevant fields for sinks that want to re-render.
type Alert struct {
	ID        string         `json:"alert_id"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	MatchID   string         `json:"match_id"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewAlert creates an alert for the given triggering event.
func NewAlert(alertType, severity, message string, ev *Event) *Alert {
	data := map[string]any{
		"event_type": string(ev.Type),
	}
	if ev.Score != nil {
		data["score"] = *ev.Score
	}
	if ev.Minute != nil {
		data["minute"] = *ev.Minute
	}
	if ev.HomeTeam != nil {
		data["home_team"] = *ev.HomeTeam
	}
	if ev.AwayTeam != nil {
		data["away_team"] = *ev.AwayTeam
	}
	return &Alert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		MatchID:   ev.MatchID,
		Source:    ev.Source,
		Timestamp: ev.ReceivedAt,
		Message:   message,
		Data:      data,
	}
}

// StringPtr returns a pointer to s. Convenience for building optional fields.
func StringPtr(s string) *string { return &s }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
