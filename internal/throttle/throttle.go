// Package throttle spaces out ledger submissions.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalnine/rollbench/internal/clock"
)

type Config struct {
	// Delay follows every submission.
	Delay time.Duration
	// SharedDelay replaces Delay after a submission that wrote a shared object.
	SharedDelay time.Duration
	// MaxRPS caps the submission rate when positive.
	MaxRPS float64
}

// Throttle holds the post-submission delays and an optional rate cap. It is
// used from a single goroutine.
type Throttle struct {
	cfg     Config
	limiter *rate.Limiter
	clock   clock.Clock
}

func New(cfg Config, clk clock.Clock) *Throttle {
	t := &Throttle{cfg: cfg, clock: clk}
	if cfg.MaxRPS > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), 1)
	}
	return t
}

// Before waits for the rate cap, if one is configured.
func (t *Throttle) Before(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

// After suspends for the delay owed by the submission that just completed.
func (t *Throttle) After(ctx context.Context, touchedShared bool) error {
	if t == nil {
		return nil
	}
	return t.clock.Sleep(ctx, t.DelayFor(touchedShared))
}

// DelayFor returns the delay that follows a submission.
func (t *Throttle) DelayFor(touchedShared bool) time.Duration {
	if touchedShared && t.cfg.SharedDelay > t.cfg.Delay {
		return t.cfg.SharedDelay
	}
	return t.cfg.Delay
}
