package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy is a capped exponential backoff: the delay doubles from
// InitialDelay on each failed attempt, never exceeding MaxDelay, for at most
// MaxAttempts attempts.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Do runs op until it succeeds, the attempt budget is exhausted, or ctx is
// done. The backoff sleep is cooperative: cancellation interrupts it.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.InitialDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}

		if err = op(); err == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}
