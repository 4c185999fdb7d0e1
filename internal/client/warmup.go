package client

import (
	"context"
	"log"
	"time"
)

// WarmupOptions tunes the keepalive loop.
type WarmupOptions struct {
	// Interval between pings. Defaults to 4 minutes, comfortably inside
	// typical sandbox idle timeouts.
	Interval time.Duration
	// SkipImmediate suppresses the ping that normally fires right away.
	SkipImmediate bool
	// OnFirstFailure is invoked only when the initial, non-recurring ping
	// fails. Recurring failures are logged and swallowed so a transient
	// outage does not spam the user.
	OnFirstFailure func(error)
}

// StartWarmup runs fn immediately (unless skipped) and then on every
// interval tick until the returned stop function is called or ctx ends.
func StartWarmup(ctx context.Context, fn func(context.Context) error, opts WarmupOptions) (stop func()) {
	if opts.Interval <= 0 {
		opts.Interval = 4 * time.Minute
	}
	ctx, cancel := context.WithCancel(ctx)

	run := func(first bool) {
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[warmup] ping failed: %v", err)
			if first && opts.OnFirstFailure != nil {
				opts.OnFirstFailure(err)
			}
		}
	}

	go func() {
		if !opts.SkipImmediate {
			run(true)
		}
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run(false)
			}
		}
	}()
	return cancel
}
