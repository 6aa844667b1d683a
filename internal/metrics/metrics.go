// Package metrics collects pipeline counters and periodically reports them to
// Redis for centralized access. The pipeline also exposes the same numbers
// synchronously through its Stats() control surface; the Redis reporter is
// for external dashboards.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for pipeline metrics.
	KeyPrefix = "metrics:"
	// TTL is how long metrics stay in Redis if not refreshed.
	TTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot is the reported metrics document.
type Snapshot struct {
	ServiceName string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`

	EventsReceived       uint64 `json:"events_received"`
	EventsProcessed      uint64 `json:"events_processed"`
	AlertsEmitted        uint64 `json:"alerts_emitted"`
	DuplicatesSuppressed uint64 `json:"duplicates_suppressed"`
	InvalidEvents        uint64 `json:"invalid_events"`
	MalformedPayloads    uint64 `json:"malformed_payloads"`
	EventsDropped        uint64 `json:"events_dropped"`

	EventsPerSecond float64 `json:"events_per_second"`
}

// Collector accumulates counters and reports them to Redis on an interval.
// A nil Redis client disables reporting; counting still works.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	eventsReceived       atomic.Uint64
	eventsProcessed      atomic.Uint64
	alertsEmitted        atomic.Uint64
	duplicatesSuppressed atomic.Uint64
	invalidEvents        atomic.Uint64
	malformedPayloads    atomic.Uint64
	eventsDropped        atomic.Uint64

	mu                 sync.Mutex
	lastReportTime     time.Time
	lastProcessedCount uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a metrics collector. redisClient may be nil.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		lastReportTime: time.Now().UTC(),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins periodic reporting. No-op when no Redis client is configured.
func (c *Collector) Start(ctx context.Context) {
	if c.redis == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.write(context.Background()) // final write
				return
			case <-c.stopCh:
				c.write(context.Background())
				return
			case <-ticker.C:
				c.write(ctx)
			}
		}
	}()
}

// Stop stops the reporter and flushes a final snapshot.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// RecordReceived counts one raw message received from a connector.
func (c *Collector) RecordReceived() { c.eventsReceived.Add(1) }

// RecordProcessed counts one event that completed the rule-engine pass.
func (c *Collector) RecordProcessed() { c.eventsProcessed.Add(1) }

// RecordAlert counts one alert handed to the dispatcher.
func (c *Collector) RecordAlert() { c.alertsEmitted.Add(1) }

// RecordDuplicate counts one event suppressed by the dedup gate.
func (c *Collector) RecordDuplicate() { c.duplicatesSuppressed.Add(1) }

// RecordInvalid counts one event rejected by validation.
func (c *Collector) RecordInvalid() { c.invalidEvents.Add(1) }

// RecordMalformed counts one raw payload the normalizer could not parse.
func (c *Collector) RecordMalformed() { c.malformedPayloads.Add(1) }

// RecordDropped counts one alert dropped because the dispatch queue was full.
func (c *Collector) RecordDropped() { c.eventsDropped.Add(1) }

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *Snapshot {
	now := time.Now().UTC()
	processed := c.eventsProcessed.Load()

	c.mu.Lock()
	elapsed := now.Sub(c.lastReportTime).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(processed-c.lastProcessedCount) / elapsed
	}
	c.mu.Unlock()

	return &Snapshot{
		ServiceName:          c.serviceName,
		StartedAt:            c.startedAt,
		LastUpdated:          now,
		EventsReceived:       c.eventsReceived.Load(),
		EventsProcessed:      processed,
		AlertsEmitted:        c.alertsEmitted.Load(),
		DuplicatesSuppressed: c.duplicatesSuppressed.Load(),
		InvalidEvents:        c.invalidEvents.Load(),
		MalformedPayloads:    c.malformedPayloads.Load(),
		EventsDropped:        c.eventsDropped.Load(),
		EventsPerSecond:      rate,
	}
}

func (c *Collector) write(ctx context.Context) {
	snapshot := c.GetSnapshot()

	c.mu.Lock()
	c.lastReportTime = snapshot.LastUpdated
	c.lastProcessedCount = snapshot.EventsProcessed
	c.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal metrics", "error", err)
		return
	}

	key := KeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, TTL).Err(); err != nil {
		slog.Warn("Failed to write metrics to Redis", "key", key, "error", err)
	}
}
