package collector

import (
	"context"
	"errors"
	"time"
)

// ErrSessionExpired names the condition in which the portal no longer
// accepts the direct-HTTP collector's forwarded session cookies. No
// collector in this module returns it: the direct-HTTP collector
// reports that condition as a WARN EXCEPTION event once
// AuthFailuresMax consecutive auth failures are reached, and stops
// itself.
var ErrSessionExpired = errors.New("collector: portal session expired")

// Collector watches one current auction and publishes the events it
// observes onto its Bus. Implementations: internal/collector/browser
// (chromedp-driven), internal/collector/directhttp (HTTP/2 polling),
// internal/collector/mock (scripted, for tests/demos).
type Collector interface {
	// Start begins collection in the background and returns once the
	// first capture has completed (or ctx is cancelled / Start fails).
	Start(ctx context.Context) error
	// Stop halts collection. Idempotent: calling Stop more than once,
	// or before Start, is a no-op.
	Stop() error
	// SetCadence changes the pause between polling cycles, in both
	// relaxed and intensive mode.
	SetCadence(d time.Duration)
	// SetIntensive switches between the relaxed and intensive polling
	// cadence/concurrency profile.
	SetIntensive(on bool)
	// Bus returns the event bus this collector publishes onto.
	Bus() *Bus
}
