// Package scheduler triggers settlement passes. Two sources invoke the same
// entry point: a fixed-interval ticker and the on-demand admin endpoint.
// Firings coalesce: if a pass is still running when the next trigger
// arrives, that trigger is skipped, never queued.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"autopay/internal/settlement"
)

type Scheduler struct {
	engine   *settlement.Engine
	interval time.Duration
	mu       sync.Mutex // held for the duration of a pass; TryLock is the coalescing guard
	log      *slog.Logger
}

func New(engine *settlement.Engine, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{engine: engine, interval: interval, log: log}
}

// TryRun executes a settlement pass unless one is already in flight, in
// which case it returns ran=false without blocking. Both the ticker and the
// admin trigger go through here, so at most one pass runs process-wide.
func (s *Scheduler) TryRun(ctx context.Context) (sum settlement.Summary, ran bool, err error) {
	if !s.mu.TryLock() {
		return settlement.Summary{}, false, nil
	}
	defer s.mu.Unlock()
	sum, err = s.engine.Run(ctx, time.Now())
	return sum, true, err
}

// Start runs the ticker loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.log.Info("settlement scheduler started", "interval", s.interval)
		for {
			select {
			case <-ctx.Done():
				s.log.Info("settlement scheduler stopped")
				return
			case <-ticker.C:
				if _, ran, err := s.TryRun(ctx); err != nil {
					s.log.Error("settlement pass failed", "err", err)
				} else if !ran {
					s.log.Debug("settlement pass still running, tick skipped")
				}
			}
		}
	}()
}
