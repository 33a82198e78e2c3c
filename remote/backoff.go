package remote

import (
	"context"
	"time"

	"sbr_monitor/config"
)

// Backoff retries an operation a bounded number of times with increasing delay
type Backoff struct {
	MaxAttempts int
	Initial     time.Duration
	Multiplier  float64
	Max         time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewBackoff builds a Backoff from configuration, filling unset fields
func NewBackoff(cfg config.RetryConfig) Backoff {
	b := Backoff{
		MaxAttempts: cfg.MaxAttempts,
		Initial:     cfg.InitialBackoff(),
		Multiplier:  cfg.Multiplier,
		Max:         30 * time.Second,
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 3
	}
	if b.Initial <= 0 {
		b.Initial = 500 * time.Millisecond
	}
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	return b
}

// Do calls op until it succeeds or MaxAttempts is reached. It returns the
// number of attempts made and the last error.
func (b Backoff) Do(ctx context.Context, op func(attempt int) error) (int, error) {
	sleep := b.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	delay := b.Initial
	var err error
	for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
		if err = op(attempt); err == nil {
			return attempt, nil
		}
		if attempt == b.MaxAttempts {
			break
		}
		if serr := sleep(ctx, delay); serr != nil {
			return attempt, serr
		}
		delay = time.Duration(float64(delay) * b.Multiplier)
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
	return b.MaxAttempts, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
