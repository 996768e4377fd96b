// Package memory provides in-memory persistence for development/testing.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prospectica/leadpipe/internal/leads"
)

// JobStore provides an in-memory implementation of leads.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]leads.Job
	now  func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]leads.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// NewJobStoreWithClock constructs a JobStore with an injected time source.
func NewJobStoreWithClock(clock leads.Clock) *JobStore {
	s := NewJobStore()
	s.now = clock.Now
	return s
}

// CreateJob stores a new job in queued status.
func (s *JobStore) CreateJob(_ context.Context, job leads.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	now := s.now()
	job.Status = leads.JobStatusQueued
	job.Created = now
	job.Updated = now
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (leads.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return leads.Job{}, leads.ErrNotFound
	}
	return job, nil
}

// MarkRunning transitions queued -> running, setting the start time exactly
// once. Terminal jobs return ErrTerminal; a duplicate MarkRunning on an
// already-running job is a safe no-op.
func (s *JobStore) MarkRunning(_ context.Context, jobID string) (leads.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return leads.Job{}, leads.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return job, fmt.Errorf("mark running %s: %w", jobID, leads.ErrTerminal)
	}
	now := s.now()
	job.Status = leads.JobStatusRunning
	job.Updated = now
	if job.Started == nil {
		started := now
		job.Started = &started
	}
	s.jobs[jobID] = job
	return job, nil
}

// MarkComplete transitions running -> complete and stores the result.
// Re-applying complete is a no-op so duplicate deliveries cannot corrupt or
// double-append the result.
func (s *JobStore) MarkComplete(_ context.Context, jobID string, result []leads.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return leads.ErrNotFound
	}
	if job.Status == leads.JobStatusComplete {
		return nil
	}
	if job.Status == leads.JobStatusFailed {
		return fmt.Errorf("mark complete %s: %w", jobID, leads.ErrTerminal)
	}
	now := s.now()
	job.Status = leads.JobStatusComplete
	job.Result = append([]leads.Lead(nil), result...)
	job.ErrorText = ""
	job.Updated = now
	if job.Finished == nil {
		finished := now
		job.Finished = &finished
	}
	s.jobs[jobID] = job
	return nil
}

// MarkFailed transitions a non-terminal job to failed and stores the reason.
// Re-applying failed is a no-op.
func (s *JobStore) MarkFailed(_ context.Context, jobID string, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return leads.ErrNotFound
	}
	if job.Status == leads.JobStatusFailed {
		return nil
	}
	if job.Status == leads.JobStatusComplete {
		return fmt.Errorf("mark failed %s: %w", jobID, leads.ErrTerminal)
	}
	now := s.now()
	job.Status = leads.JobStatusFailed
	job.ErrorText = errText
	job.Result = nil
	job.Updated = now
	if job.Finished == nil {
		finished := now
		job.Finished = &finished
	}
	s.jobs[jobID] = job
	return nil
}

// ListStaleQueued returns queued jobs created more than olderThan ago,
// oldest first.
func (s *JobStore) ListStaleQueued(_ context.Context, olderThan time.Duration, limit int) ([]leads.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-olderThan)
	var stale []leads.Job
	for _, job := range s.jobs {
		if job.Status == leads.JobStatusQueued && job.Created.Before(cutoff) {
			stale = append(stale, job)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Created.Before(stale[j].Created) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}
