// Package submit accepts scrape requests and routes them into the pipeline.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prospectica/leadpipe/internal/leads"
)

// SiteExtractor distills one target site into a lead record.
type SiteExtractor interface {
	ExtractSite(ctx context.Context, msg leads.JobMessage, siteURL string) leads.Lead
}

// Config controls submission behavior.
type Config struct {
	// SyncTimeout is the wall-clock budget for a synchronous scrape.
	SyncTimeout time.Duration
}

// Service validates scrape requests, persists jobs, and hands them to the
// queue. It also serves the synchronous scrape path, which bypasses the
// queue entirely.
type Service struct {
	jobs      leads.JobStore
	queue     leads.Queue
	extractor SiteExtractor
	ids       leads.IDGenerator
	clock     leads.Clock
	cfg       Config
	logger    *zap.Logger
}

// NewService constructs a Service. extractor may be nil when the deployment
// exposes only the asynchronous path.
func NewService(
	jobs leads.JobStore,
	queue leads.Queue,
	extractor SiteExtractor,
	ids leads.IDGenerator,
	clock leads.Clock,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		jobs:      jobs,
		queue:     queue,
		extractor: extractor,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Submit validates the payload, persists a queued job, and enqueues it.
// The job row is written before the enqueue so a transport outage leaves a
// queued record behind for the reconciliation sweep instead of losing the
// request.
func (s *Service) Submit(ctx context.Context, payload leads.JobPayload) (leads.Job, error) {
	payload.URLs = leads.CleanURLs(payload.URLs)
	if len(payload.URLs) == 0 {
		return leads.Job{}, leads.ErrNoURLs
	}

	id, err := s.ids.NewID()
	if err != nil {
		return leads.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := leads.Job{
		ID:      id,
		Type:    leads.JobTypeScrape,
		Status:  leads.JobStatusQueued,
		Payload: payload,
		Created: now,
		Updated: now,
	}

	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return leads.Job{}, fmt.Errorf("create job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, leads.NewJobMessage(job)); err != nil {
		s.logger.Error("enqueue failed, job left queued for sweep",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return job, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.Int("urls", len(payload.URLs)))
	return job, nil
}

// Status returns the status view for a job.
func (s *Service) Status(ctx context.Context, jobID string) (leads.JobStatusView, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return leads.JobStatusView{}, err
	}
	return job.StatusView(), nil
}

// Result returns the full job record including extracted leads.
func (s *Service) Result(ctx context.Context, jobID string) (leads.JobResult, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return leads.JobResult{}, err
	}
	return leads.JobResult{Job: job, Leads: job.Result}, nil
}

// ScrapeNow runs a scrape inline under the configured wall-clock budget.
// Exceeding the budget aborts the run with context.DeadlineExceeded.
func (s *Service) ScrapeNow(ctx context.Context, payload leads.JobPayload) ([]leads.Lead, error) {
	if s.extractor == nil {
		return nil, errors.New("synchronous scrape not configured")
	}
	payload.URLs = leads.CleanURLs(payload.URLs)
	if len(payload.URLs) == 0 {
		return nil, leads.ErrNoURLs
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
	defer cancel()

	msg := leads.JobMessage{
		JobType:          leads.JobTypeScrape,
		URLs:             payload.URLs,
		Industry:         payload.Industry,
		Location:         payload.Location,
		Deep:             payload.Deep,
		PerSitePageLimit: payload.PerSitePageLimit,
		Limit:            payload.Limit,
	}

	results := make([]leads.Lead, 0, len(payload.URLs))
	succeeded := 0
	for _, siteURL := range payload.URLs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("synchronous scrape exceeded %s budget: %w", s.cfg.SyncTimeout, err)
		}
		if payload.Limit > 0 && succeeded >= payload.Limit {
			break
		}
		lead := s.extractor.ExtractSite(ctx, msg, siteURL)
		results = append(results, lead)
		if !lead.Failed() {
			succeeded++
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("synchronous scrape exceeded %s budget: %w", s.cfg.SyncTimeout, err)
	}
	return results, nil
}
