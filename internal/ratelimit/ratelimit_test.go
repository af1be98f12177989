package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucket_BurstThenBlocks(t *testing.T) {
	tb := NewTokenBucket(1000, 2)

	ctx := context.Background()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	// Third request must wait for a refill, but at 1000/s not for long.
	start := time.Now()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("third wait: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("refill took too long")
	}
}

func TestTokenBucket_ContextCancel(t *testing.T) {
	tb := NewTokenBucket(0.001, 1)
	ctx := context.Background()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("initial token: %v", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := tb.Wait(cctx); err == nil {
		t.Fatal("want context error while starved")
	}
}

func TestPerMinute(t *testing.T) {
	tb := PerMinute(5)
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
