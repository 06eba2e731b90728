package scheduler_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/weskerllc/cronicorn/internal/clock"
	"github.com/weskerllc/cronicorn/internal/scheduler"
)

func TestSweeper_SweepsOnTick(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	runs := &fakeRunRepo{
		cleanupZombies: func(_ context.Context, _ time.Time, maxAge time.Duration) (int, error) {
			if maxAge != 5*time.Minute {
				t.Errorf("expected maxAge 5m, got %s", maxAge)
			}
			if calls.Add(1) >= 2 {
				cancel()
			}
			return 1, nil
		},
	}

	s := scheduler.NewSweeper(runs, clock.System{}, slog.Default(), time.Millisecond, 5*time.Minute)
	s.Start(ctx)

	if calls.Load() < 2 {
		t.Fatalf("expected at least 2 sweeps, got %d", calls.Load())
	}
}
