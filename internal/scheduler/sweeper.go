package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/weskerllc/cronicorn/internal/clock"
	"github.com/weskerllc/cronicorn/internal/metrics"
	"github.com/weskerllc/cronicorn/internal/repository"
)

// Sweeper marks run rows stuck in running past the zombie threshold as
// failed. A zombie means the owning worker died mid-dispatch; its lease has
// long expired, so the endpoint itself is already claimable again.
type Sweeper struct {
	runs     repository.RunRepository
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
	maxAge   time.Duration
}

func NewSweeper(runs repository.RunRepository, clk clock.Clock, logger *slog.Logger, interval, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		runs:     runs,
		clock:    clk,
		logger:   logger.With("component", "sweeper"),
		interval: interval,
		maxAge:   maxAge,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.interval, "max_age", s.maxAge)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper shut down")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	swept, err := s.runs.CleanupZombies(ctx, s.clock.Now(), s.maxAge)
	if err != nil {
		s.logger.Error("cleanup zombie runs", "error", err)
		return
	}
	if swept > 0 {
		metrics.ZombiesSweptTotal.Add(float64(swept))
		s.logger.Warn("swept zombie runs", "count", swept)
	}
}
