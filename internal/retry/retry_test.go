package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttemptBudget(t *testing.T) {
	p := Policy{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	boom := errors.New("boom")
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return boom
	})
	if err == nil {
		t.Fatal("expected an error after exhaustion")
	}
	if calls != 4 {
		t.Errorf("expected exactly 4 calls, got %d", calls)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped original error, got %v", err)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	p := Policy{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func() error {
		calls++
		return errors.New("always fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected cancellation during first backoff, got %d calls", calls)
	}
}

func TestDoZeroAttemptsStillRunsOnce(t *testing.T) {
	p := Policy{}

	calls := 0
	if err := p.Do(context.Background(), func() error { calls++; return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
