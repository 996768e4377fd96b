package memory

import (
	"context"
	"sync"

	"github.com/prospectica/leadpipe/internal/leads"
)

// LeadStore keeps the cross-job contact table in memory. Leads are keyed by
// source URL so re-scraping a site refreshes its record instead of
// duplicating it.
type LeadStore struct {
	mu    sync.RWMutex
	byURL map[string]leads.Lead
	order []string
}

// NewLeadStore constructs a LeadStore.
func NewLeadStore() *LeadStore {
	return &LeadStore{byURL: make(map[string]leads.Lead)}
}

// UpsertLeads inserts or refreshes lead records. Failure entries are skipped;
// the contact table only holds usable leads.
func (s *LeadStore) UpsertLeads(_ context.Context, records []leads.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if rec.Failed() {
			continue
		}
		if _, exists := s.byURL[rec.SourceURL]; !exists {
			s.order = append(s.order, rec.SourceURL)
		}
		s.byURL[rec.SourceURL] = rec
	}
	return nil
}

// ListLeads returns leads in insertion order with limit/offset paging.
func (s *LeadStore) ListLeads(_ context.Context, limit, offset int) ([]leads.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset >= len(s.order) {
		return nil, nil
	}
	end := len(s.order)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]leads.Lead, 0, end-offset)
	for _, url := range s.order[offset:end] {
		out = append(out, s.byURL[url])
	}
	return out, nil
}
