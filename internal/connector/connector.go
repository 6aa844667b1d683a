package connector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/config"
)

// State is the connector lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosing      State = "closing"
	StateFailed       State = "failed"
)

// Config holds per-connector supervision settings.
type Config struct {
	Name string

	// HeartbeatInterval is how often liveness is checked. A session silent
	// for longer than 2x this interval is force-reconnected even if the
	// transport still looks open.
	HeartbeatInterval time.Duration

	// Reconnect backoff: delay = BackoffBase * min(attempt, BackoffCap).
	BackoffBase time.Duration
	BackoffCap  int

	// MaxAttempts is the number of consecutive failed connection attempts
	// after which the connector transitions to Failed and stops retrying.
	MaxAttempts int

	// Subscribe, when non-empty, is sent over the session right after a
	// successful open (provider-specific subscription handshake).
	Subscribe []byte
}

// NewConfig builds a connector Config from the shared supervision settings.
func NewConfig(name string, sup config.SupervisionConfig, subscribe string) Config {
	return Config{
		Name:              name,
		HeartbeatInterval: sup.HeartbeatInterval,
		BackoffBase:       sup.BackoffBase,
		BackoffCap:        sup.BackoffCap,
		MaxAttempts:       sup.MaxAttempts,
		Subscribe:         []byte(subscribe),
	}
}

// Status is a point-in-time snapshot of a connector for getStats.
type Status struct {
	Name          string    `json:"name"`
	State         State     `json:"state"`
	Attempts      int       `json:"attempts"`
	Messages      uint64    `json:"messages"`
	Reconnects    uint64    `json:"reconnects"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
}

// Connector supervises one long-lived streaming session. Each Connector runs
// as an independent goroutine; connectors share no mutable state with each
// other, so a stalled or Failed connector never affects the rest.
type Connector struct {
	cfg     Config
	factory SessionFactory

	mu          sync.Mutex
	state       State
	attempts    int
	messages    uint64
	reconnects  uint64
	lastMessage time.Time
	session     Session
}

// New creates a connector over the given session factory.
func New(cfg Config, factory SessionFactory) *Connector {
	return &Connector{
		cfg:     cfg,
		factory: factory,
		state:   StateDisconnected,
	}
}

// Name returns the connector's source tag.
func (c *Connector) Name() string { return c.cfg.Name }

// Status returns a snapshot of the connector's current state and counters.
func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Name:          c.cfg.Name,
		State:         c.state,
		Attempts:      c.attempts,
		Messages:      c.messages,
		Reconnects:    c.reconnects,
		LastMessageAt: c.lastMessage,
	}
}

// Failed reports whether the connector has reached its terminal state.
func (c *Connector) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateFailed
}

// Reset clears the Failed state and attempt counter so Run can be called
// again. It is the external restart required after MaxAttempts is exceeded.
func (c *Connector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDisconnected
	c.attempts = 0
}

// backoffDelay computes the reconnect delay for the given 1-based attempt:
// base * min(attempt, cap). Non-decreasing up to the cap.
func (c *Connector) backoffDelay(attempt int) time.Duration {
	if attempt > c.cfg.BackoffCap {
		attempt = c.cfg.BackoffCap
	}
	if attempt < 1 {
		attempt = 1
	}
	return c.cfg.BackoffBase * time.Duration(attempt)
}

// Run drives the connect/read/reconnect loop until ctx is cancelled or the
// connector reaches Failed. Received payloads are emitted to out, honoring
// the configured backpressure policy. The channel is bidirectional because
// the drop_oldest policy evicts the head of the queue to make room.
func (c *Connector) Run(ctx context.Context, out chan RawMessage, dropOldest bool) {
	logger := slog.With("connector", c.cfg.Name)
	logger.Info("Connector starting",
		"heartbeat_interval", c.cfg.HeartbeatInterval,
		"backoff_base", c.cfg.BackoffBase,
		"max_attempts", c.cfg.MaxAttempts,
	)

	for {
		if ctx.Err() != nil {
			c.disconnect(StateDisconnected)
			logger.Info("Connector stopped")
			return
		}

		sess, ok := c.connect(ctx, logger)
		if !ok {
			if c.Failed() {
				logger.Error("Connector failed permanently",
					"attempts", c.cfg.MaxAttempts,
				)
				return
			}
			continue // backoff already waited, or ctx cancelled
		}

		c.readLoop(ctx, sess, out, dropOldest, logger)

		// Session died (read error, heartbeat stall, or shutdown). Release
		// it on every exit path, then loop back to reconnect.
		c.disconnect(StateDisconnected)
		if ctx.Err() == nil {
			c.mu.Lock()
			c.reconnects++
			c.mu.Unlock()
			logger.Warn("Session lost, reconnecting")
		}
	}
}

// connect performs one connection attempt, including the subscription
// handshake. On failure it waits out the backoff delay. Returns the open
// session and true on success.
func (c *Connector) connect(ctx context.Context, logger *slog.Logger) (Session, bool) {
	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()

	sess := c.factory()
	err := sess.Open(ctx)
	if err == nil && len(c.cfg.Subscribe) > 0 {
		// Handshake failure counts as a failed attempt: the session is not
		// usable without its subscription.
		err = sess.Send(ctx, c.cfg.Subscribe)
	}

	if err != nil {
		sess.Close()

		c.mu.Lock()
		c.attempts++
		attempt := c.attempts
		if attempt >= c.cfg.MaxAttempts {
			c.state = StateFailed
			c.mu.Unlock()
			return nil, false
		}
		c.state = StateDisconnected
		c.mu.Unlock()

		delay := c.backoffDelay(attempt)
		logger.Warn("Connection attempt failed",
			"attempt", attempt,
			"max_attempts", c.cfg.MaxAttempts,
			"backoff", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
		return nil, false
	}

	c.mu.Lock()
	c.state = StateConnected
	c.attempts = 0
	c.lastMessage = time.Now()
	c.session = sess
	c.mu.Unlock()

	logger.Info("Connected")
	return sess, true
}

// readLoop pumps messages from the session until it fails. A watchdog
// goroutine force-closes sessions that have gone silent for longer than twice
// the heartbeat interval, which surfaces here as a read error.
func (c *Connector) readLoop(ctx context.Context, sess Session, out chan RawMessage, dropOldest bool, logger *slog.Logger) {
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go c.watchdog(sess, watchdogDone, logger)

	for {
		payload, err := sess.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("Read failed", "error", err)
			}
			return
		}

		c.mu.Lock()
		c.lastMessage = time.Now()
		c.messages++
		c.mu.Unlock()

		c.emit(ctx, out, RawMessage{
			Source:     c.cfg.Name,
			Payload:    payload,
			ReceivedAt: time.Now(),
		}, dropOldest, logger)
	}
}

// watchdog periodically compares time-since-last-message against the
// liveness threshold (2x heartbeat interval) and force-closes a stalled
// session even if the transport believes it is still open.
func (c *Connector) watchdog(sess Session, done <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	threshold := 2 * c.cfg.HeartbeatInterval
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			silence := time.Since(c.lastMessage)
			c.mu.Unlock()
			if silence > threshold {
				logger.Warn("Session stalled, forcing reconnect",
					"silence", silence,
					"threshold", threshold,
				)
				sess.Close()
				return
			}
		}
	}
}

// emit hands one raw message to the fan-in queue. With dropOldest the oldest
// queued message is discarded to make room instead of blocking the read loop.
func (c *Connector) emit(ctx context.Context, out chan RawMessage, msg RawMessage, dropOldest bool, logger *slog.Logger) {
	if !dropOldest {
		select {
		case out <- msg:
		case <-ctx.Done():
		}
		return
	}

	select {
	case out <- msg:
		return
	default:
	}
	// Queue full: evict the head and retry once.
	select {
	case <-out:
		logger.Warn("Fan-in queue full, dropped oldest message")
	default:
	}
	select {
	case out <- msg:
	case <-ctx.Done():
	default:
		logger.Warn("Fan-in queue still full, dropped message")
	}
}

// disconnect releases the current session if any and records the new state.
// Idempotent: releasing twice is safe.
func (c *Connector) disconnect(next State) {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.state = next
	c.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			slog.Debug("Error closing session", "connector", c.cfg.Name, "error", err)
		}
	}
}
