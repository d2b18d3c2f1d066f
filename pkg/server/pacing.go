package server

import (
	"context"
	"time"
)

// Pacer spaces out the sub-steps of cascading operations (recursive delete,
// occupant eviction, batch update) so one request does not burst the
// broadcast fan-out. Pacing smooths traffic only; it provides no atomicity.
type Pacer interface {
	Pace(ctx context.Context)
}

// sleepPacer waits a fixed delay between sub-steps.
type sleepPacer struct {
	delay time.Duration
}

// NewSleepPacer returns the production pacer with the given inter-step delay.
func NewSleepPacer(delay time.Duration) Pacer {
	return &sleepPacer{delay: delay}
}

func (p *sleepPacer) Pace(ctx context.Context) {
	if p.delay <= 0 {
		return
	}
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// NopPacer runs cascades back-to-back. Used in tests for determinism.
type NopPacer struct{}

func (NopPacer) Pace(context.Context) {}
