package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAcquireWithinBurstIsImmediate(t *testing.T) {
	l := New(10, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := l.Acquire(ctx, 1); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("burst acquires took %v, expected near-immediate", elapsed)
	}
}

func TestAcquireBlocksUntilRefill(t *testing.T) {
	l := New(100, 1)
	ctx := context.Background()

	if err := l.Acquire(ctx, 1); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Acquire(ctx, 1); err != nil {
		t.Fatal(err)
	}
	// At 100/s the second token needs roughly 10ms.
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("second acquire returned after %v, expected a refill wait", elapsed)
	}
}

func TestAcquireHonorsCancellation(t *testing.T) {
	l := New(0.1, 1)
	if err := l.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, 1); err == nil {
		t.Fatal("expected error when context expires before refill")
	}
}

func TestAllowDoesNotBlock(t *testing.T) {
	l := New(1, 1)
	if !l.Allow(1) {
		t.Fatal("first token should be available")
	}
	if l.Allow(1) {
		t.Fatal("bucket should be empty")
	}
}

func TestDefaultsCoerced(t *testing.T) {
	l := New(-1, 0)
	if err := l.Acquire(context.Background(), 0); err != nil {
		t.Fatalf("coerced limiter should grant a token: %v", err)
	}
}
