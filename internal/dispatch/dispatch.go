// Package dispatch hands completed alerts to downstream notification sinks
// through a bounded async queue. A stuck or failing sink is the sink's
// problem: delivery failures are logged and dropped, and event processing is
// never blocked on dispatch.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/retry"
)

// Sink receives alerts. Implementations exist for webhooks, Slack, email and
// Pub/Sub; tests use in-memory fakes.
type Sink interface {
	// Type returns the sink's name for logging.
	Type() string

	// Send delivers one alert. Transient failures may be retried by the
	// dispatcher; a final error means the alert is dropped for this sink.
	Send(ctx context.Context, alert *events.Alert) error
}

// Dispatcher fans alerts out to every registered sink. Each alert is handed
// to each sink exactly once (retries happen inside one handoff).
type Dispatcher struct {
	sinks    []Sink
	queue    chan *events.Alert
	retryCfg retry.Config

	onDrop func() // invoked when the queue is full and an alert is discarded

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRetryConfig overrides the per-sink retry behavior.
func WithRetryConfig(cfg retry.Config) Option {
	return func(d *Dispatcher) { d.retryCfg = cfg }
}

// WithDropCallback registers a callback counted on queue-full drops.
func WithDropCallback(fn func()) Option {
	return func(d *Dispatcher) { d.onDrop = fn }
}

// NewDispatcher creates a dispatcher with the given queue capacity and sinks.
func NewDispatcher(queueSize int, sinks []Sink, opts ...Option) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		sinks:    sinks,
		queue:    make(chan *events.Alert, queueSize),
		retryCfg: retry.DefaultConfig(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the delivery worker. The worker drains the queue completely
// on Stop: alerts already accepted are not discarded on shutdown.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go func() {
			defer close(d.done)
			for alert := range d.queue {
				d.deliver(ctx, alert)
			}
		}()
	})
}

// Dispatch enqueues one alert for delivery. Never blocks: when the queue is
// full the alert is logged and dropped so a stuck sink cannot stall the
// processing path. Returns false when the alert was dropped.
func (d *Dispatcher) Dispatch(alert *events.Alert) bool {
	select {
	case d.queue <- alert:
		return true
	default:
		slog.Warn("Dispatch queue full, dropping alert",
			"alert_id", alert.ID,
			"type", alert.Type,
			"match_id", alert.MatchID,
		)
		if d.onDrop != nil {
			d.onDrop()
		}
		return false
	}
}

// Stop closes the queue and waits for the worker to drain it.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.queue) })
	<-d.done
}

// deliver hands one alert to every sink, isolating failures per sink.
func (d *Dispatcher) deliver(ctx context.Context, alert *events.Alert) {
	for _, sink := range d.sinks {
		operation := fmt.Sprintf("dispatch_%s_%s", sink.Type(), alert.ID)
		err := retry.WithRetry(ctx, d.retryCfg, operation, func() error {
			return sink.Send(ctx, alert)
		})
		if err != nil {
			slog.Error("Sink delivery failed, alert dropped for this sink",
				"sink", sink.Type(),
				"alert_id", alert.ID,
				"type", alert.Type,
				"error", err,
			)
			continue
		}
		slog.Debug("Alert delivered",
			"sink", sink.Type(),
			"alert_id", alert.ID,
			"type", alert.Type,
		)
	}
}
