package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// TestWarmupImmediateAndTicks verifies the immediate fire plus recurring
// interval pings.
func TestWarmupImmediateAndTicks(t *testing.T) {
	var calls atomic.Int32
	stop := StartWarmup(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	}, WarmupOptions{Interval: 50 * time.Millisecond})
	defer stop()

	time.Sleep(180 * time.Millisecond)
	if n := calls.Load(); n < 3 {
		t.Errorf("calls = %d, want immediate fire plus ticks", n)
	}
}

// TestWarmupSkipImmediate verifies nothing fires before the first tick.
func TestWarmupSkipImmediate(t *testing.T) {
	var calls atomic.Int32
	stop := StartWarmup(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	}, WarmupOptions{Interval: time.Hour, SkipImmediate: true})
	defer stop()

	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("calls = %d before first tick, want 0", n)
	}
}

// TestWarmupFirstFailureOnly verifies the callback fires for the immediate
// ping's failure and never for recurring ones.
func TestWarmupFirstFailureOnly(t *testing.T) {
	var notified atomic.Int32
	stop := StartWarmup(context.Background(), func(context.Context) error {
		return errors.New("cold")
	}, WarmupOptions{
		Interval:       30 * time.Millisecond,
		OnFirstFailure: func(error) { notified.Add(1) },
	})
	defer stop()

	time.Sleep(150 * time.Millisecond)
	if n := notified.Load(); n != 1 {
		t.Errorf("OnFirstFailure fired %d times, want 1", n)
	}
}

// TestWarmupStop verifies no pings run after stop.
func TestWarmupStop(t *testing.T) {
	var calls atomic.Int32
	stop := StartWarmup(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	}, WarmupOptions{Interval: 20 * time.Millisecond})

	time.Sleep(50 * time.Millisecond)
	stop()
	settled := calls.Load()
	time.Sleep(100 * time.Millisecond)
	if calls.Load() != settled {
		t.Errorf("pings continued after stop: %d -> %d", settled, calls.Load())
	}
}
