package rules

import (
	"fmt"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

// Alert types produced by the built-in rules.
const (
	AlertGoal         = "goal"
	AlertEarlyGoal    = "early_goal"
	AlertLateGoal     = "late_goal"
	AlertRedCard      = "red_card"
	AlertCardStorm    = "card_storm"
	AlertHatTrick     = "hat_trick"
	AlertGoalAfterRed = "goal_after_red"
)

// matchLabel renders a human-readable match reference, falling back to the
// match ID when team names are still unresolved.
func matchLabel(ev *events.Event) string {
	if ev.HomeTeam != nil && ev.AwayTeam != nil {
		return *ev.HomeTeam + " vs " + *ev.AwayTeam
	}
	return "match " + ev.MatchID
}

// scorerLabel names the goal scorer, or the scoring side when unknown.
func scorerLabel(ev *events.Event) string {
	if ev.Goal != nil && ev.Goal.Player != nil {
		return *ev.Goal.Player
	}
	if ev.Goal != nil {
		if name, ok := ev.TeamName(ev.Goal.Team); ok {
			return name
		}
		return ev.Goal.Team + " side"
	}
	return "unknown scorer"
}

// GoalRule is the base notifier: every goal event produces one goal alert
// with a fully rendered message.
type GoalRule struct{}

// NewGoalRule creates the base goal notifier.
func NewGoalRule() *GoalRule { return &GoalRule{} }

func (r *GoalRule) Evaluate(ev *events.Event) ([]*events.Alert, error) {
	if ev.Type != events.TypeGoal {
		return nil, nil
	}
	msg := fmt.Sprintf("GOAL! %s - %s scores", matchLabel(ev), scorerLabel(ev))
	if ev.Score != nil {
		msg += fmt.Sprintf(" (%d-%d)", ev.Score.Home, ev.Score.Away)
	}
	if ev.Minute != nil {
		msg += fmt.Sprintf(" at %d'", *ev.Minute)
	}
	return []*events.Alert{events.NewAlert(AlertGoal, events.SeverityMedium, msg, ev)}, nil
}

// RedCardRule notifies on every red card.
type RedCardRule struct{}

// NewRedCardRule creates the red card notifier.
func NewRedCardRule() *RedCardRule { return &RedCardRule{} }

func (r *RedCardRule) Evaluate(ev *events.Event) ([]*events.Alert, error) {
	if ev.Type != events.TypeRedCard {
		return nil, nil
	}
	who := "a player"
	if ev.Card != nil && ev.Card.Player != nil {
		who = *ev.Card.Player
	}
	msg := fmt.Sprintf("RED CARD! %s - %s is sent off", matchLabel(ev), who)
	if ev.Minute != nil {
		msg += fmt.Sprintf(" at %d'", *ev.Minute)
	}
	return []*events.Alert{events.NewAlert(AlertRedCard, events.SeverityHigh, msg, ev)}, nil
}

// MinuteThresholdRule fires when an event of the configured type lands on the
// configured side of a minute boundary. Pure: no state.
type MinuteThresholdRule struct {
	eventType events.EventType
	boundary  int
	before    bool // fire when minute < boundary; otherwise minute > boundary
	alertType string
	severity  string
}

// NewEarlyGoalRule alerts on goals before minute 15.
func NewEarlyGoalRule() *MinuteThresholdRule {
	return &MinuteThresholdRule{
		eventType: events.TypeGoal,
		boundary:  15,
		before:    true,
		alertType: AlertEarlyGoal,
		severity:  events.SeverityMedium,
	}
}

// NewLateGoalRule alerts on goals after minute 80.
func NewLateGoalRule() *MinuteThresholdRule {
	return &MinuteThresholdRule{
		eventType: events.TypeGoal,
		boundary:  80,
		before:    false,
		alertType: AlertLateGoal,
		severity:  events.SeverityHigh,
	}
}

func (r *MinuteThresholdRule) Evaluate(ev *events.Event) ([]*events.Alert, error) {
	if ev.Type != r.eventType || ev.Minute == nil {
		return nil, nil
	}
	minute := *ev.Minute
	if r.before && minute >= r.boundary {
		return nil, nil
	}
	if !r.before && minute <= r.boundary {
		return nil, nil
	}

	var msg string
	if r.before {
		msg = fmt.Sprintf("Early drama: %s in %s at %d' (before %d')", ev.Type, matchLabel(ev), minute, r.boundary)
	} else {
		msg = fmt.Sprintf("Late drama: %s in %s at %d' (after %d')", ev.Type, matchLabel(ev), minute, r.boundary)
	}
	return []*events.Alert{events.NewAlert(r.alertType, r.severity, msg, ev)}, nil
}

// CardStormRule fires when the number of card events inside a trailing
// match-minute window reaches the threshold. State is keyed by match and
// evicted on match_end. It fires on the transition to exactly threshold
// cards, not on every card after it.
type CardStormRule struct {
	windowMinutes int
	threshold     int
	cardMinutes   map[string][]int
}

// NewCardStormRule creates a card storm rule: threshold cards within a
// trailing windowMinutes match-minute window.
func NewCardStormRule(windowMinutes, threshold int) *CardStormRule {
	return &CardStormRule{
		windowMinutes: windowMinutes,
		threshold:     threshold,
		cardMinutes:   make(map[string][]int),
	}
}

func (r *CardStormRule) Evaluate(ev *events.Event) ([]*events.Alert, error) {
	switch ev.Type {
	case events.TypeMatchEnd:
		delete(r.cardMinutes, ev.MatchID)
		return nil, nil
	case events.TypeYellowCard, events.TypeRedCard:
	default:
		return nil, nil
	}
	if ev.Minute == nil {
		return nil, nil
	}
	minute := *ev.Minute

	// Keep only cards inside the trailing window, then count this one.
	kept := r.cardMinutes[ev.MatchID][:0]
	for _, m := range r.cardMinutes[ev.MatchID] {
		if minute-m <= r.windowMinutes {
			kept = append(kept, m)
		}
	}
	kept = append(kept, minute)
	r.cardMinutes[ev.MatchID] = kept

	if len(kept) != r.threshold {
		return nil, nil
	}

	msg := fmt.Sprintf("Card storm in %s: %d cards within %d minutes", matchLabel(ev), len(kept), r.windowMinutes)
	alert := events.NewAlert(AlertCardStorm, events.SeverityMedium, msg, ev)
	alert.Data["count"] = len(kept)
	alert.Data["window_minutes"] = r.windowMinutes
	return []*events.Alert{alert}, nil
}

// HatTrickRule fires exactly once per match and player, on the transition to
// the third counted goal. Per-match state is evicted on match_end.
type HatTrickRule struct {
	goals map[string]map[string]int // matchID -> player -> goals
}

// NewHatTrickRule creates the hat-trick rule.
func NewHatTrickRule() *HatTrickRule {
	return &HatTrickRule{goals: make(map[string]map[string]int)}
}

func (r *HatTrickRule) Evaluate(ev *events.Event) ([]*events.Alert, error) {
	if ev.Type == events.TypeMatchEnd {
		delete(r.goals, ev.MatchID)
		return nil, nil
	}
	if ev.Type != events.TypeGoal || ev.Goal == nil || ev.Goal.Player == nil || ev.Goal.IsOwnGoal {
		return nil, nil
	}
	player := *ev.Goal.Player

	byPlayer := r.goals[ev.MatchID]
	if byPlayer == nil {
		byPlayer = make(map[string]int)
		r.goals[ev.MatchID] = byPlayer
	}
	byPlayer[player]++

	if byPlayer[player] != 3 {
		return nil, nil
	}

	msg := fmt.Sprintf("HAT-TRICK! %s completes a hat-trick in %s", player, matchLabel(ev))
	if ev.Minute != nil {
		msg += fmt.Sprintf(" at %d'", *ev.Minute)
	}
	alert := events.NewAlert(AlertHatTrick, events.SeverityHigh, msg, ev)
	alert.Data["player"] = player
	return []*events.Alert{alert}, nil
}

// GoalAfterRedRule correlates across events: it fires when a team scores
// within the configured number of match-minutes after the opposing team
// received a red card. Per-match state is evicted on match_end.
type GoalAfterRedRule struct {
	withinMinutes int
	redCards      map[string]map[string]int // matchID -> side -> red card minute
}

// NewGoalAfterRedRule creates the correlation rule with the given window.
func NewGoalAfterRedRule(withinMinutes int) *GoalAfterRedRule {
	return &GoalAfterRedRule{
		withinMinutes: withinMinutes,
		redCards:      make(map[string]map[string]int),
	}
}

func (r *GoalAfterRedRule) Evaluate(ev *events.Event) ([]*events.Alert, error) {
	switch ev.Type {
	case events.TypeMatchEnd:
		delete(r.redCards, ev.MatchID)
		return nil, nil
	case events.TypeRedCard:
		if ev.Card == nil || ev.Minute == nil {
			return nil, nil
		}
		bySide := r.redCards[ev.MatchID]
		if bySide == nil {
			bySide = make(map[string]int)
			r.redCards[ev.MatchID] = bySide
		}
		bySide[ev.Card.Team] = *ev.Minute
		return nil, nil
	case events.TypeGoal:
	default:
		return nil, nil
	}

	if ev.Goal == nil || ev.Minute == nil {
		return nil, nil
	}
	opponent := "away"
	if ev.Goal.Team == "away" {
		opponent = "home"
	}
	redMinute, ok := r.redCards[ev.MatchID][opponent]
	if !ok {
		return nil, nil
	}
	elapsed := *ev.Minute - redMinute
	if elapsed < 0 || elapsed > r.withinMinutes {
		return nil, nil
	}

	msg := fmt.Sprintf("%s capitalize on the red card: goal %d minute(s) after %s went down to ten in %s",
		sideLabel(ev, ev.Goal.Team), elapsed, sideLabel(ev, opponent), matchLabel(ev))
	alert := events.NewAlert(AlertGoalAfterRed, events.SeverityMedium, msg, ev)
	alert.Data["minutes_after_red"] = elapsed
	return []*events.Alert{alert}, nil
}

func sideLabel(ev *events.Event, side string) string {
	if name, ok := ev.TeamName(side); ok {
		return name
	}
	return "the " + side + " side"
}

// RegisterDefaults registers the built-in rule set on an engine in the
// standard order.
func RegisterDefaults(e *Engine) {
	e.AddRule("goal", NewGoalRule())
	e.AddRule("early_goal", NewEarlyGoalRule())
	e.AddRule("late_goal", NewLateGoalRule())
	e.AddRule("red_card", NewRedCardRule())
	e.AddRule("card_storm", NewCardStormRule(10, 3))
	e.AddRule("hat_trick", NewHatTrickRule())
	e.AddRule("goal_after_red", NewGoalAfterRedRule(10))
}
