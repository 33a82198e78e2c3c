package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"sbr_monitor/config"
)

func recordingBackoff(attempts int) (Backoff, *[]time.Duration) {
	var slept []time.Duration
	b := NewBackoff(config.RetryConfig{MaxAttempts: attempts, InitialBackoffMs: 100, Multiplier: 2})
	b.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return b, &slept
}

func TestBackoffStopsAtMaxAttempts(t *testing.T) {
	b, slept := recordingBackoff(3)
	calls := 0
	fail := errors.New("fail")

	attempts, err := b.Do(context.Background(), func(int) error {
		calls++
		return fail
	})
	if !errors.Is(err, fail) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 || attempts != 3 {
		t.Fatalf("calls=%d attempts=%d, want 3", calls, attempts)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("slept %v, want %v", *slept, want)
		}
	}
}

func TestBackoffReturnsOnSuccess(t *testing.T) {
	b, slept := recordingBackoff(5)
	attempts, err := b.Do(context.Background(), func(attempt int) error {
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || attempts != 2 {
		t.Fatalf("attempts=%d err=%v", attempts, err)
	}
	if len(*slept) != 1 {
		t.Fatalf("slept %v", *slept)
	}
}

func TestBackoffHonoursCancellation(t *testing.T) {
	b, _ := recordingBackoff(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := b.Do(ctx, func(int) error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestNewBackoffDefaults(t *testing.T) {
	b := NewBackoff(config.RetryConfig{})
	if b.MaxAttempts != 3 || b.Initial != 500*time.Millisecond || b.Multiplier != 2 {
		t.Fatalf("defaults = %+v", b)
	}
}
