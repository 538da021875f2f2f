// Package schedule runs recurring scrapes on a cron spec. One scheduler owns
// one scrape definition; overlapping cycles are skipped, never queued.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// RunFunc executes one scrape cycle.
type RunFunc func(ctx context.Context) error

type Scheduler struct {
	cron    *cron.Cron
	spec    string
	run     RunFunc
	logger  *slog.Logger
	running atomic.Bool
}

// New creates a scheduler for the given cron spec, e.g. "@every 6h" or
// "0 7 * * *".
func New(spec string, run RunFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		spec:   spec,
		run:    run,
		logger: logger.With("component", "scheduler"),
	}
}

// Start registers the job and begins ticking. The first cycle fires
// immediately so a fresh deployment does not idle until the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.cycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.spec)

	go s.cycle(ctx)

	return nil
}

// Stop halts ticking and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}

// cycle runs one scrape unless the previous one is still going. A browser
// session cannot be shared, so an overlapping tick is dropped.
func (s *Scheduler) cycle(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous cycle still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	if ctx.Err() != nil {
		return
	}

	s.logger.Info("scrape cycle started")
	if err := s.run(ctx); err != nil {
		s.logger.Error("scrape cycle failed", "error", err)
		return
	}
	s.logger.Info("scrape cycle complete")
}
