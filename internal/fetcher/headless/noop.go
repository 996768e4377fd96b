package headless

import (
	"context"
	"errors"

	"github.com/prospectica/leadpipe/internal/leads"
)

// Noop stands in when no Chrome binary is available. Promotion attempts
// fail fast and the extractor falls back to the plain response.
type Noop struct{}

// NewNoop returns the disabled fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails.
func (Noop) Fetch(_ context.Context, _ leads.FetchRequest) (leads.FetchResponse, error) {
	return leads.FetchResponse{}, errors.New("headless fetcher not configured")
}
