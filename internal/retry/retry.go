// Package retry holds the exponential backoff policy shared by the remote API
// client and the sync service, and the clock abstraction both use to wait.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Clock is the time source used for backoff waits. Tests substitute a fake
// that fires immediately or under manual control.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now().UTC() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// System is the wall clock.
var System Clock = systemClock{}

// Policy describes exponential backoff: the delay before retry n is
// Base * 2^n, spread by ±Jitter and capped at Max.
type Policy struct {
	Base     time.Duration
	Max      time.Duration
	Jitter   float64 // fraction in [0,1]
	Attempts int     // total attempts made by Do, first call included

	// Rand returns a value in [0,1); defaults to math/rand/v2.
	Rand func() float64
}

// DefaultPolicy is 1s, 2s, 4s... capped at one minute with 20% jitter.
func DefaultPolicy() Policy {
	return Policy{Base: time.Second, Max: time.Minute, Jitter: 0.2, Attempts: 3}
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	d := float64(base) * math.Pow(2, float64(attempt))
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	if j := p.Jitter; j > 0 {
		if j > 1 {
			j = 1
		}
		rnd := p.Rand
		if rnd == nil {
			rnd = rand.Float64
		}
		d += d * j * (2*rnd() - 1)
	}
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Sleep waits for d on clk, returning early with ctx's error.
func Sleep(ctx context.Context, clk Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if clk == nil {
		clk = System
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(d):
		return nil
	}
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// policy's attempts are used up. The last error is returned.
func Do(ctx context.Context, p Policy, clk Clock, retryable func(error) bool, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if retryable == nil || !retryable(err) || attempt == attempts-1 {
			return err
		}
		if serr := Sleep(ctx, clk, p.Delay(attempt)); serr != nil {
			return err
		}
	}
	return err
}
