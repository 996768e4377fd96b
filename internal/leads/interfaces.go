package leads

import (
	"context"
	"time"
)

// JobStore persists job records and enforces lifecycle transitions.
type JobStore interface {
	// CreateJob stores a new job in queued status.
	CreateJob(ctx context.Context, job Job) error
	// GetJob fetches a job by ID, returning ErrNotFound for unknown IDs.
	GetJob(ctx context.Context, jobID string) (Job, error)
	// MarkRunning transitions queued -> running and sets the start time once.
	// A terminal job returns ErrTerminal so duplicate deliveries can be
	// acked without reprocessing.
	MarkRunning(ctx context.Context, jobID string) (Job, error)
	// MarkComplete transitions running -> complete and stores the result.
	// Re-applying the same terminal transition is a no-op.
	MarkComplete(ctx context.Context, jobID string, result []Lead) error
	// MarkFailed transitions running -> failed (or queued -> failed for jobs
	// that never started) and stores the failure reason.
	MarkFailed(ctx context.Context, jobID string, errText string) error
	// ListStaleQueued returns jobs still queued after olderThan, oldest
	// first, for the reconciliation sweep.
	ListStaleQueued(ctx context.Context, olderThan time.Duration, limit int) ([]Job, error)
}

// LeadStore persists extracted leads into the cross-job contact table.
type LeadStore interface {
	UpsertLeads(ctx context.Context, records []Lead) error
	ListLeads(ctx context.Context, limit, offset int) ([]Lead, error)
}

// Queue provides at-least-once delivery of job messages.
type Queue interface {
	Enqueue(ctx context.Context, msg JobMessage) error
	Dequeue(ctx context.Context) (Delivery, error)
}

// Delivery wraps one received message. Ack removes it from the queue; Nack
// makes it redeliverable. An unacked delivery is redelivered after the
// transport's visibility timeout.
type Delivery struct {
	Message JobMessage
	// Attempt counts deliveries of this message, starting at 1.
	Attempt int
	Ack     func()
	Nack    func()
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// BlobStore writes raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher computes digests for snapshot deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
