package reconciler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// LoopConfig holds the periodic-run parameters shared by all reconcilers.
type LoopConfig struct {
	// Interval between reconciliation ticks.
	Interval time.Duration

	// MaxStartupJitter is the maximum random delay before the first tick.
	// Prevents thundering herd when multiple controller replicas start together.
	MaxStartupJitter time.Duration

	// RateLimitDelay is the pause between per-document transactions within a
	// tick. Prevents database overload when many documents drift at once.
	RateLimitDelay time.Duration
}

// DefaultLoopConfig returns sensible defaults for the index reconciler.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Interval:         30 * time.Second,
		MaxStartupJitter: 10 * time.Second,
		RateLimitDelay:   50 * time.Millisecond,
	}
}

// runLoop executes tick immediately after a jittered startup delay, then on
// every interval until the context is cancelled. Tick errors are logged and
// swallowed: retries come from the next tick re-seeing unchanged state.
func runLoop(ctx context.Context, name string, cfg LoopConfig, tick func(context.Context) error) error {
	if cfg.MaxStartupJitter > 0 {
		jitter := rand.N(cfg.MaxStartupJitter)
		slog.InfoContext(ctx, "reconciler starting",
			"reconciler", name,
			"startup_jitter", jitter,
			"interval", cfg.Interval)

		timer := time.NewTimer(jitter)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := tick(ctx); err != nil {
		slog.ErrorContext(ctx, "initial reconciliation failed", "reconciler", name, "error", err)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "reconciler stopping", "reconciler", name)
			return ctx.Err()
		case <-ticker.C:
			if err := tick(ctx); err != nil {
				slog.ErrorContext(ctx, "reconciliation failed", "reconciler", name, "error", err)
			}
		}
	}
}
