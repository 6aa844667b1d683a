// Package rules provides the alerting rule engine: an ordered, mutable
// registry of rule evaluators, each consuming one event and emitting zero or
// more alerts.
package rules

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

// Rule evaluates one event and returns any alerts it produces. Rules may be
// pure or carry private keyed state; stateful rules own their memory's
// eviction (typically on match_end).
type Rule interface {
	Evaluate(ev *events.Event) ([]*events.Alert, error)
}

// RuleFunc adapts a plain function to the Rule interface.
type RuleFunc func(ev *events.Event) ([]*events.Alert, error)

// Evaluate calls f.
func (f RuleFunc) Evaluate(ev *events.Event) ([]*events.Alert, error) {
	return f(ev)
}

type namedRule struct {
	name string
	rule Rule
}

// Engine holds the rule registry and evaluates events against it in
// registration order. Each Engine owns its registry: there are no process-wide
// rule singletons, so independent pipelines stay independent in tests.
type Engine struct {
	mu    sync.RWMutex
	rules []namedRule
}

// NewEngine creates an empty rule engine.
func NewEngine() *Engine {
	return &Engine{}
}

// AddRule registers a rule under the given name. Registering an existing name
// replaces the rule in place, keeping its position in evaluation order; new
// names append.
func (e *Engine) AddRule(name string, rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].name == name {
			e.rules[i].rule = rule
			slog.Info("Replaced rule", "name", name, "position", i)
			return
		}
	}
	e.rules = append(e.rules, namedRule{name: name, rule: rule})
	slog.Info("Registered rule", "name", name, "position", len(e.rules)-1)
}

// RemoveRule unregisters the named rule. Removing an unknown name is a no-op.
func (e *Engine) RemoveRule(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].name == name {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			slog.Info("Removed rule", "name", name)
			return
		}
	}
}

// RuleNames returns the registered rule names in evaluation order.
func (e *Engine) RuleNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.rules))
	for i, nr := range e.rules {
		names[i] = nr.name
	}
	return names
}

// Evaluate runs every registered rule against the event in registration order
// and returns the collected alerts in that order. A rule that errors or
// panics is logged and skipped; it never prevents the remaining rules from
// seeing the event.
func (e *Engine) Evaluate(ev *events.Event) []*events.Alert {
	e.mu.RLock()
	snapshot := make([]namedRule, len(e.rules))
	copy(snapshot, e.rules)
	e.mu.RUnlock()

	var out []*events.Alert
	for _, nr := range snapshot {
		alerts, err := evaluateOne(nr, ev)
		if err != nil {
			slog.Error("Rule evaluation failed",
				"rule", nr.name,
				"match_id", ev.MatchID,
				"event_type", ev.Type,
				"error", err,
			)
			continue
		}
		out = append(out, alerts...)
	}
	return out
}

// evaluateOne runs a single rule, converting panics into errors so one bad
// rule cannot blind the others.
func evaluateOne(nr namedRule, ev *events.Event) (alerts []*events.Alert, err error) {
	defer func() {
		if r := recover(); r != nil {
			alerts = nil
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return nr.rule.Evaluate(ev)
}
