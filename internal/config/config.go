// Package config provides configuration parsing and validation for the
// scraper pipeline.
package config

import (
	"fmt"
	"time"
)

// Config holds all runtime configuration for the pipeline process.
// Service-level settings come from flags/env; the source list is a separate
// YAML file (see sources.go).
type Config struct {
	SourcesFile string

	// RedisAddr enables the Redis metrics reporter when non-empty.
	RedisAddr string

	// PostgresDSN enables the alert history store when non-empty.
	PostgresDSN string

	// Fan-in queue between connectors and the processing loop.
	QueueSize   int
	QueuePolicy string // "block" or "drop_oldest"

	// Dispatch handoff queue between the rule engine and sinks.
	DispatchQueueSize int

	DedupTTL        time.Duration
	MetricsInterval time.Duration

	// MatchDetailsURL enables metadata enrichment when non-empty.
	MatchDetailsURL string
}

// QueuePolicy values.
const (
	PolicyBlock      = "block"
	PolicyDropOldest = "drop_oldest"
)

// Validate checks that all required configuration fields are set and have
// valid values. Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.SourcesFile == "" {
		return fmt.Errorf("sources-file cannot be empty")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue-size must be > 0")
	}
	if c.QueuePolicy != PolicyBlock && c.QueuePolicy != PolicyDropOldest {
		return fmt.Errorf("queue-policy must be %q or %q, got %q", PolicyBlock, PolicyDropOldest, c.QueuePolicy)
	}
	if c.DispatchQueueSize <= 0 {
		return fmt.Errorf("dispatch-queue-size must be > 0")
	}
	if c.DedupTTL <= 0 {
		return fmt.Errorf("dedup-ttl must be > 0")
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("metrics-interval must be > 0")
	}
	return nil
}
