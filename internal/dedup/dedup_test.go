package dedup

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/normalizer"
)

func goalEvent(receivedAt time.Time) *events.Event {
	return &events.Event{
		Source:     "statsfeed",
		ReceivedAt: receivedAt,
		Type:       events.TypeGoal,
		MatchID:    "match-1",
		Minute:     events.IntPtr(23),
	}
}

func TestAdmitSuppressesRepeats(t *testing.T) {
	gate := NewGate(time.Minute)
	defer gate.Close()

	now := time.Now()
	ev := goalEvent(now)

	if !gate.Admit(ev) {
		t.Fatal("first Admit() = false, want true")
	}
	if gate.Admit(ev) {
		t.Error("second Admit() of identical fingerprint = true, want false")
	}

	// Any component difference makes a distinct fingerprint.
	other := goalEvent(now)
	other.Minute = events.IntPtr(24)
	if !gate.Admit(other) {
		t.Error("Admit() of event with different minute = false, want true")
	}

	retimed := goalEvent(now.Add(time.Millisecond))
	if !gate.Admit(retimed) {
		t.Error("Admit() of event with different receivedAt = false, want true")
	}
}

func TestAdmitAllGoalsOfScoreJump(t *testing.T) {
	gate := NewGate(5 * time.Second)
	defer gate.Close()

	// A missed-frames score jump produces several goals sharing source,
	// match, minute and receivedAt. Every one must pass the gate.
	n := normalizer.NewScoreFeed("scorefeed")
	now := time.Now()
	frame := func(home, away int) []byte {
		return []byte(fmt.Sprintf(
			`{"match_id":"m1","score":{"home":%d,"away":%d},"minute":10,"status":"live"}`,
			home, away))
	}

	n.Normalize(frame(0, 0), now)
	evs, err := n.Normalize(frame(2, 1), now.Add(time.Second))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("Normalize() = %d events, want 3", len(evs))
	}

	admitted := 0
	for _, ev := range evs {
		if gate.Admit(ev) {
			admitted++
		}
	}
	if admitted != 3 {
		t.Errorf("gate admitted %d of 3 distinct goals, want 3", admitted)
	}

	// The same events again are retransmissions and stay suppressed.
	for _, ev := range evs {
		if gate.Admit(ev) {
			t.Errorf("gate re-admitted fingerprint %s", Fingerprint(ev))
		}
	}
}

func TestAdmitAfterTTLExpiry(t *testing.T) {
	gate := NewGate(20 * time.Millisecond)
	defer gate.Close()

	ev := goalEvent(time.Now())
	if !gate.Admit(ev) {
		t.Fatal("first Admit() = false, want true")
	}
	if gate.Admit(ev) {
		t.Fatal("Admit() within TTL = true, want false")
	}

	time.Sleep(60 * time.Millisecond)

	if gate.Len() != 0 {
		t.Errorf("Len() after expiry = %d, want 0", gate.Len())
	}
	if !gate.Admit(ev) {
		t.Error("Admit() after TTL expiry = false, want true")
	}
}

func TestConcurrentAdmitIsAtomic(t *testing.T) {
	gate := NewGate(time.Minute)
	defer gate.Close()

	ev := goalEvent(time.Now())

	const workers = 32
	var wg sync.WaitGroup
	admitted := make(chan bool, workers)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			admitted <- gate.Admit(ev)
		}()
	}
	close(start)
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("concurrent Admit() admitted %d times, want exactly 1", count)
	}
}

func TestCloseRejectsAdmission(t *testing.T) {
	gate := NewGate(time.Minute)
	ev := goalEvent(time.Now())

	gate.Admit(ev)
	gate.Close()

	if gate.Admit(goalEvent(time.Now().Add(time.Second))) {
		t.Error("Admit() after Close() = true, want false")
	}
	if gate.Len() != 0 {
		t.Errorf("Len() after Close() = %d, want 0", gate.Len())
	}
}
