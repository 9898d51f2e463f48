package backoff

import (
	"context"
	"time"
)

// Policy is a sequence of retry delays followed by a steady-state delay
// repeated forever.
type Policy struct {
	Delays []time.Duration
	Steady time.Duration
}

// DefaultPolicy is the key-initialisation retry schedule.
func DefaultPolicy() Policy {
	return Policy{
		Delays: []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second},
		Steady: 30 * time.Second,
	}
}

// Delay returns the wait before retry number attempt (zero based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt < len(p.Delays) {
		return p.Delays[attempt]
	}
	return p.Steady
}

// Retry calls fn until it succeeds or ctx is done, sleeping on clock between
// attempts. onRetry, if non-nil, is called with each failure and the delay
// before the next attempt.
func Retry(ctx context.Context, p Policy, clock Clock, fn func(ctx context.Context) error, onRetry func(attempt int, err error, next time.Duration)) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}

		fired := make(chan struct{})
		timer := clock.AfterFunc(delay, func() { close(fired) })
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-fired:
		}
	}
}
