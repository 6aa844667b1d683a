package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/retry"
)

type fakeSink struct {
	name string

	mu      sync.Mutex
	alerts  []*events.Alert
	fail    int // number of sends that fail before succeeding
	failErr error
	block   chan struct{} // when set, Send blocks until closed
}

func (s *fakeSink) Type() string { return s.name }

func (s *fakeSink) Send(ctx context.Context, alert *events.Alert) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		if s.failErr != nil {
			return s.failErr
		}
		return errors.New("send failed: connection refused")
	}
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *fakeSink) received() []*events.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*events.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

func testAlert(alertType string) *events.Alert {
	ev := &events.Event{
		Type:       events.TypeGoal,
		MatchID:    "m1",
		Source:     "statsfeed-a",
		ReceivedAt: time.Now(),
	}
	return events.NewAlert(alertType, events.SeverityHigh, "test alert", ev)
}

func fastRetry() retry.Config {
	return retry.Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b"}
	d := NewDispatcher(8, []Sink{a, b}, WithRetryConfig(fastRetry()))
	d.Start(context.Background())

	alert := testAlert("goal")
	if !d.Dispatch(alert) {
		t.Fatal("Dispatch returned false on empty queue")
	}
	d.Stop()

	for _, sink := range []*fakeSink{a, b} {
		got := sink.received()
		if len(got) != 1 {
			t.Fatalf("sink %s received %d alerts, want 1", sink.name, len(got))
		}
		if got[0].ID != alert.ID {
			t.Errorf("sink %s received alert %s, want %s", sink.name, got[0].ID, alert.ID)
		}
	}
}

func TestDispatcherRetriesTransientFailure(t *testing.T) {
	s := &fakeSink{name: "flaky", fail: 2}
	d := NewDispatcher(8, []Sink{s}, WithRetryConfig(fastRetry()))
	d.Start(context.Background())

	d.Dispatch(testAlert("red_card"))
	d.Stop()

	if got := len(s.received()); got != 1 {
		t.Fatalf("received %d alerts after retries, want 1", got)
	}
}

func TestDispatcherSinkFailureIsolated(t *testing.T) {
	// A sink that always fails must not keep the alert from other sinks.
	broken := &fakeSink{name: "broken", fail: 100, failErr: errors.New("invalid endpoint")}
	healthy := &fakeSink{name: "healthy"}
	d := NewDispatcher(8, []Sink{broken, healthy}, WithRetryConfig(fastRetry()))
	d.Start(context.Background())

	d.Dispatch(testAlert("goal"))
	d.Stop()

	if got := len(healthy.received()); got != 1 {
		t.Fatalf("healthy sink received %d alerts, want 1", got)
	}
	if got := len(broken.received()); got != 0 {
		t.Fatalf("broken sink received %d alerts, want 0", got)
	}
}

func TestDispatchDropsNewestWhenFull(t *testing.T) {
	release := make(chan struct{})
	s := &fakeSink{name: "slow", block: release}

	var drops int
	var mu sync.Mutex
	d := NewDispatcher(1, []Sink{s},
		WithRetryConfig(fastRetry()),
		WithDropCallback(func() {
			mu.Lock()
			drops++
			mu.Unlock()
		}),
	)
	d.Start(context.Background())

	// The first alert is picked up by the worker and blocks in Send, the
	// second fills the queue. A further Dispatch must drop without blocking.
	dropped := false
	for i := 0; i < 10; i++ {
		if !d.Dispatch(testAlert("goal")) {
			dropped = true
			break
		}
	}
	if !dropped {
		t.Fatal("Dispatch never reported a full queue")
	}

	mu.Lock()
	gotDrops := drops
	mu.Unlock()
	if gotDrops == 0 {
		t.Error("drop callback never invoked")
	}

	close(release)
	d.Stop()
}

func TestStopDrainsAcceptedAlerts(t *testing.T) {
	s := &fakeSink{name: "a"}
	d := NewDispatcher(16, []Sink{s}, WithRetryConfig(fastRetry()))
	d.Start(context.Background())

	for i := 0; i < 10; i++ {
		d.Dispatch(testAlert("goal"))
	}
	d.Stop()

	if got := len(s.received()); got != 10 {
		t.Fatalf("received %d alerts after Stop, want 10", got)
	}
}
