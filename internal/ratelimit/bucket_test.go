package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestBucketAllowsBurstThenThrottles(t *testing.T) {
	b := New(2, 1) // burst of 2, refill 1/sec

	ctx := context.Background()
	start := time.Now()
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatalf("burst tokens should not block")
	}

	if err := b.Wait(ctx); err != nil {
		t.Fatalf("third wait: %v", err)
	}
	if time.Since(start) < 400*time.Millisecond {
		t.Fatalf("third token should have required waiting for refill")
	}
}

func TestBucketRespectsCancellation(t *testing.T) {
	b := New(1, 0.1) // slow refill
	ctx := context.Background()
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("drain burst: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Wait(cancelCtx); err == nil {
		t.Fatalf("expected context deadline error")
	}
}
