// Package pipeline wires the stages together: connectors fan raw messages
// into one bounded queue, a single consumer normalizes, enriches, dedups and
// evaluates them, and resulting alerts go to the dispatcher. Owning the whole
// lifecycle here keeps startup and shutdown ordering in one place.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/config"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/connector"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/dedup"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/dispatch"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/enrich"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/metrics"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/normalizer"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/rules"
)

// AlertStore is the optional persistence boundary for emitted alerts.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert *events.Alert) error
}

// Options carries the pipeline's collaborators. Engine, Dedup and Dispatcher
// are required; Enricher, Collector and Store are optional.
type Options struct {
	Engine     *rules.Engine
	Dedup      *dedup.Gate
	Dispatcher *dispatch.Dispatcher
	Enricher   *enrich.Resolver
	Collector  *metrics.Collector
	Store      AlertStore

	// SessionFactories overrides transport construction per source name.
	// Used by tests; production sources build their factory from config.
	SessionFactories map[string]connector.SessionFactory
}

type managedConnector struct {
	conn *connector.Connector
	done chan struct{}
}

// Pipeline owns the connectors, the fan-in queue and the processing loop.
type Pipeline struct {
	cfg     config.Config
	sources *config.SourcesFile
	opts    Options

	engine      *rules.Engine
	gate        *dedup.Gate
	dispatcher  *dispatch.Dispatcher
	enricher    *enrich.Resolver
	collector   *metrics.Collector
	normalizers map[string]normalizer.Normalizer

	fanIn chan connector.RawMessage

	mu         sync.Mutex
	connectors map[string]*managedConnector
	running    bool
	stopped    bool

	ctx       context.Context
	cancel    context.CancelFunc
	consumerD chan struct{}
}

// New builds a pipeline from configuration. Each source gets its own
// connector and normalizer; all sources share one fan-in queue.
func New(cfg config.Config, sources *config.SourcesFile, opts Options) (*Pipeline, error) {
	if opts.Engine == nil || opts.Dedup == nil || opts.Dispatcher == nil {
		return nil, fmt.Errorf("pipeline requires engine, dedup gate and dispatcher")
	}

	p := &Pipeline{
		cfg:         cfg,
		sources:     sources,
		opts:        opts,
		engine:      opts.Engine,
		gate:        opts.Dedup,
		dispatcher:  opts.Dispatcher,
		enricher:    opts.Enricher,
		collector:   opts.Collector,
		normalizers: make(map[string]normalizer.Normalizer, len(sources.Sources)),
		fanIn:       make(chan connector.RawMessage, cfg.QueueSize),
		connectors:  make(map[string]*managedConnector, len(sources.Sources)),
	}

	for _, sc := range sources.Sources {
		norm, err := normalizer.New(sc.Normalizer, sc.Name)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", sc.Name, err)
		}
		p.normalizers[sc.Name] = norm

		factory, ok := opts.SessionFactories[sc.Name]
		if !ok {
			factory, err = connector.NewSessionFactory(sc)
			if err != nil {
				return nil, fmt.Errorf("source %q: %w", sc.Name, err)
			}
		}

		conn := connector.New(connector.NewConfig(sc.Name, sources.Supervision, sc.Subscribe), factory)
		p.connectors[sc.Name] = &managedConnector{conn: conn}
	}

	return p, nil
}

// Start launches every connector plus the single processing consumer.
// Calling Start on a running pipeline is a no-op. A stopped pipeline cannot
// be started again: Stop closed the fan-in queue, so build a fresh pipeline
// instead.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return fmt.Errorf("pipeline already stopped")
	}
	if p.running {
		return nil
	}
	p.running = true

	p.ctx, p.cancel = context.WithCancel(ctx)
	dropOldest := p.cfg.QueuePolicy == config.PolicyDropOldest

	for name, mc := range p.connectors {
		mc.done = make(chan struct{})
		go func(name string, mc *managedConnector) {
			defer close(mc.done)
			mc.conn.Run(p.ctx, p.fanIn, dropOldest)
		}(name, mc)
	}

	p.consumerD = make(chan struct{})
	go p.consume()

	// The dispatcher outlives ctx cancellation so alerts produced while
	// draining the shutdown backlog still reach the sinks.
	p.dispatcher.Start(context.WithoutCancel(p.ctx))

	slog.Info("Pipeline started",
		"sources", len(p.connectors),
		"queue_size", p.cfg.QueueSize,
		"queue_policy", p.cfg.QueuePolicy,
	)
	return nil
}

// Stop shuts the pipeline down in order: connectors first, then the consumer
// drains whatever the connectors already emitted, then the dispatcher drains
// its accepted alerts. No accepted work is discarded.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	for _, mc := range p.connectors {
		if mc.done != nil {
			<-mc.done
		}
	}

	// All producers are stopped; closing fan-in lets the consumer finish the
	// backlog and exit.
	close(p.fanIn)
	<-p.consumerD

	p.dispatcher.Stop()
	p.gate.Close()

	slog.Info("Pipeline stopped")
}

// AddRule registers or replaces a rule on the live engine.
func (p *Pipeline) AddRule(name string, rule rules.Rule) {
	p.engine.AddRule(name, rule)
}

// RemoveRule unregisters a rule from the live engine.
func (p *Pipeline) RemoveRule(name string) {
	p.engine.RemoveRule(name)
}

// RestartConnector clears a Failed connector and runs it again. It is the
// only way back from the terminal Failed state.
func (p *Pipeline) RestartConnector(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	mc, ok := p.connectors[name]
	if !ok {
		return fmt.Errorf("unknown connector %q", name)
	}
	if !p.running {
		return fmt.Errorf("pipeline is not running")
	}
	if mc.done != nil {
		if mc.conn.Failed() {
			// Run exits promptly once Failed; wait for the goroutine.
			<-mc.done
		} else {
			select {
			case <-mc.done:
			default:
				return fmt.Errorf("connector %q is still running", name)
			}
		}
	}

	mc.conn.Reset()
	mc.done = make(chan struct{})
	dropOldest := p.cfg.QueuePolicy == config.PolicyDropOldest
	go func(mc *managedConnector) {
		defer close(mc.done)
		mc.conn.Run(p.ctx, p.fanIn, dropOldest)
	}(mc)

	slog.Info("Connector restarted", "connector", name)
	return nil
}

// Stats is a point-in-time view of the pipeline for operators.
type Stats struct {
	Connectors map[string]connector.Status `json:"connectors"`
	Metrics    *metrics.Snapshot           `json:"metrics,omitempty"`
	DedupSize  int                         `json:"dedup_size"`
	Rules      []string                    `json:"rules"`
}

// Stats returns per-connector status plus pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	conns := make(map[string]connector.Status, len(p.connectors))
	for name, mc := range p.connectors {
		conns[name] = mc.conn.Status()
	}
	p.mu.Unlock()

	s := Stats{
		Connectors: conns,
		DedupSize:  p.gate.Len(),
		Rules:      p.engine.RuleNames(),
	}
	if p.collector != nil {
		s.Metrics = p.collector.GetSnapshot()
	}
	return s
}

// consume is the single processing loop: normalize, enrich, validate, dedup,
// evaluate, dispatch. Running it on one goroutine keeps stateful normalizers
// and rules lock-free and makes event ordering deterministic per source.
func (p *Pipeline) consume() {
	defer close(p.consumerD)

	for msg := range p.fanIn {
		p.process(msg)
	}
}

func (p *Pipeline) process(msg connector.RawMessage) {
	if p.collector != nil {
		p.collector.RecordReceived()
	}

	norm, ok := p.normalizers[msg.Source]
	if !ok {
		slog.Warn("Message from unknown source", "source", msg.Source)
		return
	}

	evs, err := norm.Normalize(msg.Payload, msg.ReceivedAt)
	if err != nil {
		if p.collector != nil {
			p.collector.RecordMalformed()
		}
		slog.Debug("Dropping malformed payload", "source", msg.Source, "error", err)
		return
	}

	for _, ev := range evs {
		p.processEvent(ev)
	}
}

func (p *Pipeline) processEvent(ev *events.Event) {
	if p.enricher != nil {
		p.enricher.Apply(p.ctx, ev)
	}

	if err := ev.Validate(); err != nil {
		if p.collector != nil {
			p.collector.RecordInvalid()
		}
		slog.Warn("Rejected invalid event",
			"source", ev.Source,
			"match_id", ev.MatchID,
			"error", err,
		)
		return
	}

	if !p.gate.Admit(ev) {
		if p.collector != nil {
			p.collector.RecordDuplicate()
		}
		slog.Debug("Suppressed duplicate event",
			"source", ev.Source,
			"match_id", ev.MatchID,
			"event_type", ev.Type,
		)
		return
	}

	alerts := p.engine.Evaluate(ev)
	if p.collector != nil {
		p.collector.RecordProcessed()
	}

	for _, alert := range alerts {
		if p.collector != nil {
			p.collector.RecordAlert()
		}
		if p.opts.Store != nil {
			// WithoutCancel so alerts produced while draining the shutdown
			// backlog still reach the history table.
			if err := p.opts.Store.InsertAlert(context.WithoutCancel(p.ctx), alert); err != nil {
				slog.Error("Failed to persist alert", "alert_id", alert.ID, "error", err)
			}
		}
		if !p.dispatcher.Dispatch(alert) && p.collector != nil {
			p.collector.RecordDropped()
		}
	}

	// A finished match no longer needs cached metadata.
	if ev.Type == events.TypeMatchEnd && p.enricher != nil {
		p.enricher.Forget(ev.MatchID)
	}
}
