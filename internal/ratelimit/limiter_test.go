package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiterSpacesCalls(t *testing.T) {
	t.Parallel()

	l := New(20)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	// 5 calls at 20 rps need at least 4 intervals of 50ms.
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Fatalf("calls were not spaced: %s", elapsed)
	}
}

func TestLimiterDisabledAndCancelled(t *testing.T) {
	t.Parallel()

	unlimited := New(0)
	for i := 0; i < 100; i++ {
		if err := unlimited.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	slow := New(0.01)
	_ = slow.Wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := slow.Wait(ctx); err == nil {
		t.Fatalf("expected cancellation error")
	}

	var nilLimiter *Limiter
	if err := nilLimiter.Wait(context.Background()); err != nil {
		t.Fatalf("nil limiter must not block: %v", err)
	}
}
