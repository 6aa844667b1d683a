package connector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// kafkaSession streams raw match-event frames from a Kafka topic. Reconnect
// policy lives in the Connector, so each session owns exactly one reader: a
// dead reader means a dead session.
type kafkaSession struct {
	brokers []string
	topic   string
	groupID string

	mu     sync.Mutex
	reader *kafka.Reader
}

func newKafkaSession(brokers, topic, groupID string) *kafkaSession {
	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}
	return &kafkaSession{
		brokers: brokerList,
		topic:   topic,
		groupID: groupID,
	}
}

// Open verifies broker reachability and creates the reader. Configured for
// at-least-once delivery; StartOffset FirstOffset only applies when no
// committed offset exists for the group.
func (s *kafkaSession) Open(ctx context.Context) error {
	if len(s.brokers) == 0 || s.brokers[0] == "" {
		return fmt.Errorf("brokers cannot be empty")
	}
	if s.topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	// kafka.NewReader never touches the network, so dial one broker first to
	// surface connectivity errors at Open time where the reconnect policy
	// expects them.
	conn, err := kafka.DialContext(ctx, "tcp", s.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial Kafka broker %s: %w", s.brokers[0], err)
	}
	conn.Close()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        s.brokers,
		Topic:          s.topic,
		GroupID:        s.groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	s.mu.Lock()
	s.reader = reader
	s.mu.Unlock()

	slog.Info("Kafka session opened",
		"brokers", s.brokers,
		"topic", s.topic,
		"group_id", s.groupID,
	)
	return nil
}

// ReadMessage blocks for the next record and returns its value.
func (s *kafkaSession) ReadMessage(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return nil, fmt.Errorf("kafka session not open")
	}

	msg, err := reader.ReadMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read message from Kafka: %w", err)
	}
	return msg.Value, nil
}

// Send is unsupported: Kafka subscriptions are expressed through topic and
// group membership, not an in-band handshake.
func (s *kafkaSession) Send(ctx context.Context, payload []byte) error {
	return fmt.Errorf("kafka session does not support outbound messages")
}

// Close releases the reader. Safe to call twice and concurrently with
// ReadMessage (closing unblocks a pending read with an error).
func (s *kafkaSession) Close() error {
	s.mu.Lock()
	reader := s.reader
	s.reader = nil
	s.mu.Unlock()

	if reader == nil {
		return nil
	}
	return reader.Close()
}
