package util

import (
	"context"
	"errors"
	"testing"
)

func TestRetryPolicyDo(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := ConstantRetry(5, 0).Do(context.Background(), func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Do called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryPolicyAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := ConstantRetry(uint64(maxAttempts), 0).Do(context.Background(), func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Do should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Do called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPolicyZeroAttempts(t *testing.T) {
	// A zero-attempt policy still runs fn once.
	attempts := 0
	err := ConstantRetry(0, 0).Do(context.Background(), func() error {
		attempts++
		return errors.New("nope")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("Do called fn %d times, want 1", attempts)
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait should not block or fail: %v", err)
	}
}

func TestRateLimiterCancelled(t *testing.T) {
	rl := NewRateLimiter(1, 1) // one op per minute
	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := rl.Wait(cancelled); err == nil {
		t.Fatal("Wait should fail once the context is cancelled")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		if NewLogger(level, "json", nil) == nil {
			t.Fatalf("NewLogger(%q) returned nil", level)
		}
	}
	if NewLogger("info", "text", nil) == nil {
		t.Fatal("NewLogger text format returned nil")
	}
}
