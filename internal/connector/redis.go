package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// redisSession streams raw frames from a Redis Pub/Sub channel. Some
// providers push live score frames over Redis; the control channel carries
// provider-specific subscription commands sent via Send.
type redisSession struct {
	addr    string
	channel string

	mu     sync.Mutex
	client *redis.Client
	pubsub *redis.PubSub
}

func newRedisSession(addr, channel string) *redisSession {
	return &redisSession{addr: addr, channel: channel}
}

// Open connects, pings, and subscribes to the configured channel.
func (s *redisSession) Open(ctx context.Context) error {
	if s.addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if s.channel == "" {
		return fmt.Errorf("channel cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr: s.addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to Redis at %s: %w", s.addr, err)
	}

	pubsub := client.Subscribe(ctx, s.channel)
	// Wait for the subscription confirmation so Open failures surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	s.mu.Lock()
	s.client = client
	s.pubsub = pubsub
	s.mu.Unlock()

	slog.Info("Redis session opened", "addr", s.addr, "channel", s.channel)
	return nil
}

// ReadMessage blocks for the next published frame.
func (s *redisSession) ReadMessage(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	pubsub := s.pubsub
	s.mu.Unlock()
	if pubsub == nil {
		return nil, fmt.Errorf("redis session not open")
	}

	msg, err := pubsub.ReceiveMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}
	return []byte(msg.Payload), nil
}

// Send publishes a provider command on the session's control channel.
func (s *redisSession) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return fmt.Errorf("redis session not open")
	}
	return client.Publish(ctx, s.channel+":control", payload).Err()
}

// Close releases the subscription and connection. Safe to call twice.
func (s *redisSession) Close() error {
	s.mu.Lock()
	pubsub := s.pubsub
	client := s.client
	s.pubsub = nil
	s.client = nil
	s.mu.Unlock()

	if pubsub != nil {
		pubsub.Close()
	}
	if client != nil {
		return client.Close()
	}
	return nil
}
