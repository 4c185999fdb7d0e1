package server

import (
	"testing"
	"time"
)

// TestTokenBucketExhaustion verifies the bucket denies once drained and
// recovers as time passes.
func TestTokenBucketExhaustion(t *testing.T) {
	clock := time.Unix(0, 0)
	tb := newTokenBucket(3, 1) // 3 burst, 1 token/sec
	tb.now = func() time.Time { return clock }
	tb.lastRefill = clock

	for i := 0; i < 3; i++ {
		if !tb.allow() {
			t.Fatalf("allow() = false on initial token %d", i)
		}
	}
	if tb.allow() {
		t.Fatal("allow() = true on empty bucket")
	}

	clock = clock.Add(1500 * time.Millisecond)
	if !tb.allow() {
		t.Error("allow() = false after refill interval")
	}
	if tb.allow() {
		t.Error("refilled more than elapsed time allows")
	}
}

// TestTokenBucketCap verifies idle time never refills past the cap.
func TestTokenBucketCap(t *testing.T) {
	clock := time.Unix(0, 0)
	tb := newTokenBucket(2, 100)
	tb.now = func() time.Time { return clock }
	tb.lastRefill = clock

	clock = clock.Add(time.Hour)
	allowed := 0
	for i := 0; i < 10; i++ {
		if tb.allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed %d after long idle, want cap 2", allowed)
	}
}
