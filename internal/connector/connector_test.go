package connector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSession is a scripted in-memory session for supervision tests.
type fakeSession struct {
	openErr error
	sendErr error

	msgs      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSession(openErr error) *fakeSession {
	return &fakeSession{
		openErr: openErr,
		msgs:    make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeSession) Open(ctx context.Context) error { return f.openErr }

func (f *fakeSession) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-f.msgs:
		return msg, nil
	case <-f.closed:
		return nil, errors.New("session closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSession) Send(ctx context.Context, payload []byte) error { return f.sendErr }

func (f *fakeSession) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// fakeFactory hands out one scripted session per connection attempt.
type fakeFactory struct {
	mu       sync.Mutex
	openErrs []error // error for attempt i; nil beyond the slice
	sessions []*fakeSession
}

func (ff *fakeFactory) factory() Session {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	var openErr error
	if len(ff.sessions) < len(ff.openErrs) {
		openErr = ff.openErrs[len(ff.sessions)]
	}
	sess := newFakeSession(openErr)
	ff.sessions = append(ff.sessions, sess)
	return sess
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.sessions)
}

func (ff *fakeFactory) session(i int) *fakeSession {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.sessions[i]
}

func testConfig(name string) Config {
	return Config{
		Name:              name,
		HeartbeatInterval: time.Hour, // watchdog inert unless a test lowers it
		BackoffBase:       time.Millisecond,
		BackoffCap:        5,
		MaxAttempts:       3,
	}
}

func TestFailedAfterMaxConsecutiveAttempts(t *testing.T) {
	boom := errors.New("connection refused")
	ff := &fakeFactory{openErrs: []error{boom, boom, boom, boom, boom}}
	c := New(testConfig("test"), ff.factory)

	out := make(chan RawMessage, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(context.Background(), out, false)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not terminate after exhausting attempts")
	}

	st := c.Status()
	if st.State != StateFailed {
		t.Errorf("state = %s, want %s", st.State, StateFailed)
	}
	if got := ff.count(); got != 3 {
		t.Errorf("connection attempts = %d, want exactly MaxAttempts (3)", got)
	}
	if !c.Failed() {
		t.Error("Failed() = false, want true")
	}
}

func TestBackoffDelayNonDecreasingUpToCap(t *testing.T) {
	c := New(Config{BackoffBase: 2 * time.Second, BackoffCap: 5}, nil)

	var prev time.Duration
	for attempt := 1; attempt <= 10; attempt++ {
		d := c.backoffDelay(attempt)
		if d < prev {
			t.Errorf("backoffDelay(%d) = %v, decreased from %v", attempt, d, prev)
		}
		prev = d
	}
	if got, want := c.backoffDelay(5), 10*time.Second; got != want {
		t.Errorf("backoffDelay(5) = %v, want %v", got, want)
	}
	// Capped: attempt 10 pays the same delay as the cap.
	if got, want := c.backoffDelay(10), 10*time.Second; got != want {
		t.Errorf("backoffDelay(10) = %v, want %v", got, want)
	}
}

func TestConnectResetsAttemptCounterAndForwardsMessages(t *testing.T) {
	boom := errors.New("connection refused")
	ff := &fakeFactory{openErrs: []error{boom, boom}} // third attempt succeeds
	c := New(testConfig("test"), ff.factory)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan RawMessage, 16)
	go c.Run(ctx, out, false)

	waitFor(t, func() bool { return ff.count() == 3 && c.Status().State == StateConnected })

	st := c.Status()
	if st.Attempts != 0 {
		t.Errorf("attempts after successful connect = %d, want 0", st.Attempts)
	}

	ff.session(2).msgs <- []byte(`{"type":"ping"}`)
	select {
	case msg := <-out:
		if msg.Source != "test" {
			t.Errorf("message source = %s, want test", msg.Source)
		}
		if string(msg.Payload) != `{"type":"ping"}` {
			t.Errorf("payload = %s", msg.Payload)
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("ReceivedAt not stamped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was not forwarded")
	}

	if got := c.Status().Messages; got != 1 {
		t.Errorf("message counter = %d, want 1", got)
	}
}

func TestReadFailureTriggersReconnect(t *testing.T) {
	ff := &fakeFactory{}
	c := New(testConfig("test"), ff.factory)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan RawMessage, 16)
	go c.Run(ctx, out, false)

	waitFor(t, func() bool { return ff.count() == 1 })
	ff.session(0).Close() // simulate transport drop

	waitFor(t, func() bool { return ff.count() == 2 && c.Status().State == StateConnected })
	if got := c.Status().Reconnects; got != 1 {
		t.Errorf("reconnects = %d, want 1", got)
	}
}

func TestWatchdogForcesReconnectOnSilentSession(t *testing.T) {
	cfg := testConfig("test")
	cfg.HeartbeatInterval = 20 * time.Millisecond
	ff := &fakeFactory{}
	c := New(cfg, ff.factory)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan RawMessage, 16)
	go c.Run(ctx, out, false)

	// First session never produces a message; the watchdog must kill it.
	waitFor(t, func() bool { return ff.count() >= 2 })
	if got := c.Status().Reconnects; got < 1 {
		t.Errorf("reconnects = %d, want >= 1", got)
	}
}

func TestHandshakeFailureCountsAsFailedAttempt(t *testing.T) {
	cfg := testConfig("test")
	cfg.Subscribe = []byte(`{"op":"subscribe"}`)
	cfg.MaxAttempts = 2

	ff := &fakeFactory{}
	c := New(cfg, func() Session {
		sess := ff.factory().(*fakeSession)
		sess.sendErr = errors.New("subscribe rejected")
		return sess
	})

	out := make(chan RawMessage, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(context.Background(), out, false)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not reach Failed on repeated handshake failures")
	}
	if c.Status().State != StateFailed {
		t.Errorf("state = %s, want %s", c.Status().State, StateFailed)
	}
}

func TestShutdownReleasesSession(t *testing.T) {
	ff := &fakeFactory{}
	c := New(testConfig("test"), ff.factory)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan RawMessage, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, out, false)
	}()

	waitFor(t, func() bool { return c.Status().State == StateConnected })
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop on context cancellation")
	}

	sess := ff.session(0)
	select {
	case <-sess.closed:
	default:
		t.Error("session was not closed on shutdown")
	}
	if st := c.Status().State; st != StateDisconnected {
		t.Errorf("state after shutdown = %s, want %s", st, StateDisconnected)
	}
}

func TestResetClearsFailedState(t *testing.T) {
	boom := errors.New("down")
	ff := &fakeFactory{openErrs: []error{boom, boom, boom}}
	c := New(testConfig("test"), ff.factory)

	out := make(chan RawMessage, 16)
	c.Run(context.Background(), out, false) // runs to Failed synchronously

	if !c.Failed() {
		t.Fatal("connector should be Failed")
	}
	c.Reset()
	if c.Failed() {
		t.Error("Failed() after Reset() = true, want false")
	}
	if st := c.Status(); st.Attempts != 0 || st.State != StateDisconnected {
		t.Errorf("status after Reset() = %+v", st)
	}
}

func TestEmitDropOldest(t *testing.T) {
	c := New(testConfig("test"), nil)
	out := make(chan RawMessage, 1)

	ctx := context.Background()
	logger := testLogger()
	c.emit(ctx, out, RawMessage{Payload: []byte("old")}, true, logger)
	c.emit(ctx, out, RawMessage{Payload: []byte("new")}, true, logger)

	msg := <-out
	if string(msg.Payload) != "new" {
		t.Errorf("queued payload = %s, want new (oldest dropped)", msg.Payload)
	}
	select {
	case extra := <-out:
		t.Errorf("unexpected extra message %s", extra.Payload)
	default:
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
