package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceConfig describes one upstream source: which transport carries it,
// which normalizer understands its payloads, and transport-specific settings.
type SourceConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`       // "kafka" or "redis"
	Normalizer string `yaml:"normalizer"` // "statsfeed" or "scorefeed"

	// Kafka settings.
	Brokers string `yaml:"brokers,omitempty"`
	Topic   string `yaml:"topic,omitempty"`
	GroupID string `yaml:"group_id,omitempty"`

	// Redis Pub/Sub settings.
	Addr    string `yaml:"addr,omitempty"`
	Channel string `yaml:"channel,omitempty"`

	// Optional subscription handshake payload sent after connecting.
	Subscribe string `yaml:"subscribe,omitempty"`
}

// SupervisionConfig holds the connector supervision knobs shared by all
// sources.
type SupervisionConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffCap        int           `yaml:"backoff_cap"`
	MaxAttempts       int           `yaml:"max_attempts"`
}

// SourcesFile is the on-disk shape of the source list.
type SourcesFile struct {
	Sources     []SourceConfig    `yaml:"sources"`
	Supervision SupervisionConfig `yaml:"supervision"`
}

// LoadSources reads and validates the YAML source list at path.
func LoadSources(path string) (*SourcesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var sf SourcesFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	if len(sf.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s defines no sources", path)
	}
	seen := make(map[string]bool, len(sf.Sources))
	for i, sc := range sf.Sources {
		if err := sc.validate(); err != nil {
			return nil, fmt.Errorf("source %d (%q): %w", i, sc.Name, err)
		}
		if seen[sc.Name] {
			return nil, fmt.Errorf("duplicate source name %q", sc.Name)
		}
		seen[sc.Name] = true
	}

	sf.Supervision.applyDefaults()
	return &sf, nil
}

func (sc SourceConfig) validate() error {
	if sc.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if sc.Normalizer == "" {
		return fmt.Errorf("normalizer cannot be empty")
	}
	switch sc.Type {
	case "kafka":
		if sc.Brokers == "" {
			return fmt.Errorf("kafka source requires brokers")
		}
		if sc.Topic == "" {
			return fmt.Errorf("kafka source requires topic")
		}
	case "redis":
		if sc.Addr == "" {
			return fmt.Errorf("redis source requires addr")
		}
		if sc.Channel == "" {
			return fmt.Errorf("redis source requires channel")
		}
	default:
		return fmt.Errorf("unknown source type %q", sc.Type)
	}
	return nil
}

func (s *SupervisionConfig) applyDefaults() {
	if s.HeartbeatInterval <= 0 {
		s.HeartbeatInterval = 30 * time.Second
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = 2 * time.Second
	}
	if s.BackoffCap <= 0 {
		s.BackoffCap = 5
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 10
	}
}
