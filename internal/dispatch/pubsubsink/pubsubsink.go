// Package pubsubsink publishes alerts to Google Cloud Pub/Sub as CloudEvents,
// for downstream consumers that subscribe to the alert stream instead of
// receiving pushes.
package pubsubsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

// Config holds Pub/Sub sink settings.
type Config struct {
	ProjectID    string
	TopicName    string
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
}

// DefaultConfig returns publish batching defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:    100,
		BatchBytes:   1000000, // 1MB
		BatchTimeout: 100 * time.Millisecond,
	}
}

// Sink publishes each alert as one CloudEvent on a Pub/Sub topic.
type Sink struct {
	cfg    Config
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewSink creates the Pub/Sub client and ensures the topic exists.
func NewSink(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.ProjectID == "" || cfg.TopicName == "" {
		return nil, fmt.Errorf("pubsub project ID and topic name are required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check if topic exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, cfg.TopicName)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create topic: %w", err)
		}
	}

	topic.PublishSettings = pubsub.PublishSettings{
		ByteThreshold:  cfg.BatchBytes,
		CountThreshold: cfg.BatchSize,
		DelayThreshold: cfg.BatchTimeout,
	}

	return &Sink{cfg: cfg, client: client, topic: topic}, nil
}

// Type returns the endpoint type this sink handles.
func (s *Sink) Type() string {
	return "pubsub"
}

// ToCloudEvent wraps an alert in a CloudEvents v1 envelope.
func ToCloudEvent(alert *events.Alert) (*cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(alert.ID)
	ce.SetType(fmt.Sprintf("com.sports.alert.%s", alert.Type))
	ce.SetSource(fmt.Sprintf("sports://%s/%s", alert.Source, alert.MatchID))
	ce.SetSubject(alert.MatchID)
	ce.SetTime(alert.Timestamp)
	ce.SetSpecVersion(cloudevents.VersionV1)
	ce.SetExtension("severity", alert.Severity)
	ce.SetExtension("matchid", alert.MatchID)

	payload, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := ce.SetData(cloudevents.ApplicationJSON, payload); err != nil {
		return nil, fmt.Errorf("failed to set event data: %w", err)
	}
	return &ce, nil
}

// Send publishes one alert and waits for the publish result.
func (s *Sink) Send(ctx context.Context, alert *events.Alert) error {
	ce, err := ToCloudEvent(alert)
	if err != nil {
		return err
	}

	data, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("failed to marshal CloudEvent: %w", err)
	}

	attrs := map[string]string{
		"ce-id":          ce.ID(),
		"ce-source":      ce.Source(),
		"ce-type":        ce.Type(),
		"ce-specversion": ce.SpecVersion(),
		"content-type":   "application/cloudevents+json; charset=UTF-8",
	}
	for name, value := range ce.Extensions() {
		if str, ok := value.(string); ok {
			attrs[name] = str
		}
	}

	result := s.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	slog.Debug("Published alert to Pub/Sub",
		"alert_id", alert.ID,
		"message_id", id,
		"topic", s.cfg.TopicName,
	)
	return nil
}

// Close flushes pending publishes and releases the client.
func (s *Sink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}
