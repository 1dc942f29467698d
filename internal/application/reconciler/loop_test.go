package reconciler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLoop_TicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int64
	done := make(chan error, 1)
	go func() {
		done <- runLoop(ctx, "test", LoopConfig{Interval: 5 * time.Millisecond}, func(context.Context) error {
			ticks.Add(1)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
}

func TestRunLoop_TickErrorDoesNotStopLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int64
	go func() {
		_ = runLoop(ctx, "test", LoopConfig{Interval: 5 * time.Millisecond}, func(context.Context) error {
			ticks.Add(1)
			return assert.AnError
		})
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestRunLoop_StartupJitterRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runLoop(ctx, "test", LoopConfig{Interval: time.Minute, MaxStartupJitter: time.Hour}, func(context.Context) error {
		t.Fatal("tick must not run after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
