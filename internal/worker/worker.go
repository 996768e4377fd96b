// Package worker implements the scrape pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/prospectica/leadpipe/internal/leads"
	"github.com/prospectica/leadpipe/internal/metrics"
)

// SiteExtractor distills one target site into a lead record.
type SiteExtractor interface {
	ExtractSite(ctx context.Context, msg leads.JobMessage, siteURL string) leads.Lead
}

// Config controls Worker behavior.
type Config struct {
	// MaxAttempts is the delivery attempt after which a job is failed
	// instead of returned to the queue.
	MaxAttempts int
}

// Worker consumes queue deliveries and executes the scrape pipeline.
type Worker struct {
	queue     leads.Queue
	jobStore  leads.JobStore
	leadStore leads.LeadStore
	extractor SiteExtractor
	clock     leads.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. leadStore may be nil when no cross-job contact
// table is configured.
func New(
	queue leads.Queue,
	jobStore leads.JobStore,
	leadStore leads.LeadStore,
	extractor SiteExtractor,
	clock leads.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		leadStore: leadStore,
		extractor: extractor,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming deliveries until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		delivery, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("job_id", delivery.Message.JobID),
			zap.Int("attempt", delivery.Attempt))
		w.processDelivery(ctx, delivery)
	}
}

func (w *Worker) processDelivery(ctx context.Context, delivery leads.Delivery) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	msg := delivery.Message
	if delivery.Attempt > 1 {
		metrics.ObserveRedelivery()
	}

	if err := msg.Validate(); err != nil {
		w.rejectMalformed(ctx, delivery, err)
		return
	}

	job, err := w.jobStore.MarkRunning(ctx, msg.JobID)
	switch {
	case errors.Is(err, leads.ErrTerminal):
		// Duplicate delivery of a finished job.
		w.logger.Info("skipping delivery for terminal job", zap.String("job_id", msg.JobID))
		delivery.Ack()
		return
	case errors.Is(err, leads.ErrNotFound):
		w.logger.Warn("dropping delivery for unknown job", zap.String("job_id", msg.JobID))
		delivery.Ack()
		return
	case err != nil:
		w.retryOrFail(ctx, delivery, fmt.Errorf("mark running: %w", err))
		return
	}

	start := w.clock.Now()
	results, runErr := w.runJob(ctx, msg)
	if runErr != nil {
		w.retryOrFail(ctx, delivery, runErr)
		return
	}

	if err := w.jobStore.MarkComplete(ctx, msg.JobID, results); err != nil {
		w.retryOrFail(ctx, delivery, fmt.Errorf("mark complete: %w", err))
		return
	}
	w.persistLeads(ctx, msg.JobID, results)

	delivery.Ack()
	metrics.ObserveJob(string(leads.JobStatusComplete), w.clock.Now().Sub(start))
	w.logger.Info("job complete",
		zap.String("job_id", job.ID),
		zap.Int("leads", countSucceeded(results)),
		zap.Int("failures", len(results)-countSucceeded(results)))
}

// runJob extracts every target site. Per-site failures become failure
// entries in the result; only an aborted run returns an error.
func (w *Worker) runJob(ctx context.Context, msg leads.JobMessage) ([]leads.Lead, error) {
	results := make([]leads.Lead, 0, len(msg.URLs))
	succeeded := 0

	for _, siteURL := range msg.URLs {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("job interrupted: %w", ctx.Err())
		}
		if msg.Limit > 0 && succeeded >= msg.Limit {
			break
		}

		lead := w.extractor.ExtractSite(ctx, msg, siteURL)
		results = append(results, lead)

		site := leads.SiteHost(siteURL)
		if lead.Failed() {
			metrics.ObserveFetchFailure(site)
			w.logger.Warn("site extraction failed",
				zap.String("job_id", msg.JobID),
				zap.String("url", siteURL),
				zap.String("reason", lead.FetchError))
			continue
		}
		succeeded++
		metrics.ObserveLead(site)
	}
	return results, nil
}

// rejectMalformed settles a message that can never be processed. When the
// message still names a job, that job is failed so pollers see a verdict.
func (w *Worker) rejectMalformed(ctx context.Context, delivery leads.Delivery, cause error) {
	msg := delivery.Message
	w.logger.Error("rejecting malformed job message",
		zap.String("job_id", msg.JobID),
		zap.Error(cause))
	if msg.JobID != "" {
		w.markFailed(ctx, msg.JobID, fmt.Sprintf("invalid job message: %v", cause))
	}
	delivery.Ack()
}

// retryOrFail returns the delivery to the queue while attempts remain, and
// fails the job on the last attempt so it cannot loop forever.
func (w *Worker) retryOrFail(ctx context.Context, delivery leads.Delivery, cause error) {
	msg := delivery.Message
	if delivery.Attempt < w.cfg.MaxAttempts {
		w.logger.Warn("returning delivery for retry",
			zap.String("job_id", msg.JobID),
			zap.Int("attempt", delivery.Attempt),
			zap.Error(cause))
		delivery.Nack()
		return
	}

	w.logger.Error("delivery attempts exhausted, failing job",
		zap.String("job_id", msg.JobID),
		zap.Int("attempt", delivery.Attempt),
		zap.Error(cause))
	w.markFailed(ctx, msg.JobID, fmt.Sprintf("attempts exhausted: %v", cause))
	delivery.Ack()
	metrics.ObserveJob(string(leads.JobStatusFailed), 0)
}

func (w *Worker) markFailed(ctx context.Context, jobID, reason string) {
	if err := w.jobStore.MarkFailed(ctx, jobID, reason); err != nil {
		w.logger.Error("mark failed errored",
			zap.String("job_id", jobID),
			zap.Error(err))
	}
}

// persistLeads copies successful results into the contact table. Upsert
// keeps redeliveries from producing duplicates; an error here is logged
// rather than failing the already-complete job.
func (w *Worker) persistLeads(ctx context.Context, jobID string, results []leads.Lead) {
	if w.leadStore == nil {
		return
	}
	if err := w.leadStore.UpsertLeads(ctx, results); err != nil {
		w.logger.Error("lead upsert failed",
			zap.String("job_id", jobID),
			zap.Error(err))
	}
}

func countSucceeded(results []leads.Lead) int {
	n := 0
	for _, r := range results {
		if !r.Failed() {
			n++
		}
	}
	return n
}
