// Package sweeper reconciles jobs stuck in queued status with the queue.
//
// A job row is written before its message is enqueued, so a crash or
// transport outage between the two leaves a queued job no worker will ever
// see. The sweeper periodically re-enqueues such jobs; the worker-side
// terminal check makes the occasional double enqueue harmless.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prospectica/leadpipe/internal/leads"
	"github.com/prospectica/leadpipe/internal/metrics"
)

// Config controls sweep cadence and what counts as stuck.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// OlderThan is how long a job may sit queued before it is considered
	// stuck. It must comfortably exceed normal queue latency.
	OlderThan time.Duration
	// BatchLimit caps jobs re-enqueued per sweep.
	BatchLimit int
}

// Sweeper periodically re-enqueues stuck queued jobs.
type Sweeper struct {
	jobs   leads.JobStore
	queue  leads.Queue
	cfg    Config
	logger *zap.Logger
}

// New constructs a Sweeper.
func New(jobs leads.JobStore, queue leads.Queue, cfg Config, logger *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.OlderThan <= 0 {
		cfg.OlderThan = 10 * time.Minute
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{jobs: jobs, queue: queue, cfg: cfg, logger: logger}
}

// Run blocks, sweeping on the configured interval until the context finishes.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce re-enqueues one batch of stuck jobs and returns how many were
// handed back to the queue.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	stale, err := s.jobs.ListStaleQueued(ctx, s.cfg.OlderThan, s.cfg.BatchLimit)
	if err != nil {
		s.logger.Error("list stale queued jobs failed", zap.Error(err))
		return 0
	}
	if len(stale) == 0 {
		return 0
	}

	requeued := 0
	for _, job := range stale {
		if ctx.Err() != nil {
			break
		}
		if err := s.queue.Enqueue(ctx, leads.NewJobMessage(job)); err != nil {
			s.logger.Error("re-enqueue stale job failed",
				zap.String("job_id", job.ID),
				zap.Error(err))
			continue
		}
		requeued++
		metrics.ObserveStaleRequeue()
		s.logger.Info("re-enqueued stale job",
			zap.String("job_id", job.ID),
			zap.Time("created_at", job.Created))
	}
	return requeued
}
