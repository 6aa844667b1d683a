// Package normalizer translates provider-specific raw payloads into the
// canonical event shape. One normalizer per provider wire format. Recognized
// frames that carry nothing of interest (keep-alives, unchanged score
// snapshots) yield no events; payloads the parser cannot make sense of yield
// an error so callers can count genuine garbage separately from quiet
// traffic.
package normalizer

import (
	"fmt"
	"time"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

// Normalizer converts one raw provider message into zero or more canonical
// events. Implementations must never panic on malformed input.
//
// Normalizers run on the single fan-in consumption path, so per-match memory
// held by stateful implementations needs no locking.
type Normalizer interface {
	// Source returns the connector tag stamped on produced events.
	Source() string

	// Normalize parses raw and returns the resulting events. A non-nil
	// error marks a malformed payload; a nil error with no events marks a
	// healthy frame that carries nothing of interest.
	Normalize(raw []byte, receivedAt time.Time) ([]*events.Event, error)
}

// New builds a normalizer of the named kind for the given source tag.
func New(kind, source string) (Normalizer, error) {
	switch kind {
	case "statsfeed":
		return NewStatsFeed(source), nil
	case "scorefeed":
		return NewScoreFeed(source), nil
	default:
		return nil, fmt.Errorf("unknown normalizer kind: %s", kind)
	}
}

// deriveMinute maps a two-half match clock onto a 0-90 minute scale.
// First-half minutes are clamped to 0-45; second-half minutes are 45+elapsed,
// clamped to 90. Providers that send an explicit minute bypass this entirely.
func deriveMinute(period, elapsedSeconds int) *int {
	elapsed := elapsedSeconds / 60
	var minute int
	switch period {
	case 1:
		minute = elapsed
		if minute > 45 {
			minute = 45
		}
	case 2:
		minute = 45 + elapsed
		if minute > 90 {
			minute = 90
		}
	default:
		return nil
	}
	if minute < 0 {
		minute = 0
	}
	return &minute
}
