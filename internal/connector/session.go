// Package connector maintains one supervised streaming session per upstream
// source: it converts transport failures into a bounded reconnect loop with
// heartbeat liveness checks, and surfaces raw provider payloads to the fan-in
// queue.
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/config"
)

// Session is the externally-supplied streaming session abstraction. The
// connector treats it as a black box that yields raw messages and may be
// told to (re)subscribe. Implementations for sources that need an
// already-authenticated browser/cookie session wrap that state behind this
// same interface.
type Session interface {
	// Open establishes the session. It must be called before ReadMessage.
	Open(ctx context.Context) error

	// ReadMessage blocks until the next raw message arrives or the session
	// fails. A returned error means the session is no longer usable.
	ReadMessage(ctx context.Context) ([]byte, error)

	// Send transmits a provider-specific payload, e.g. a subscription
	// handshake after connecting.
	Send(ctx context.Context, payload []byte) error

	// Close releases the underlying transport. Must be safe to call twice
	// and safe to call concurrently with ReadMessage.
	Close() error
}

// SessionFactory produces a fresh Session for each connection attempt.
type SessionFactory func() Session

// RawMessage is one raw provider payload tagged with its origin and receipt
// time, as handed to the fan-in queue.
type RawMessage struct {
	Source     string
	Payload    []byte
	ReceivedAt time.Time
}

// NewSessionFactory builds the session factory described by a source config
// entry.
func NewSessionFactory(sc config.SourceConfig) (SessionFactory, error) {
	switch sc.Type {
	case "kafka":
		return func() Session {
			return newKafkaSession(sc.Brokers, sc.Topic, sc.GroupID)
		}, nil
	case "redis":
		return func() Session {
			return newRedisSession(sc.Addr, sc.Channel)
		}, nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", sc.Type)
	}
}
