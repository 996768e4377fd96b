package leads

import "errors"

// Sentinel errors shared across the pipeline. Handlers map these to HTTP
// status codes; the worker uses ErrTerminal to detect duplicate deliveries.
var (
	ErrNotFound       = errors.New("job not found")
	ErrTerminal       = errors.New("job already terminal")
	ErrNoURLs         = errors.New("urls required")
	ErrMissingJobID   = errors.New("job id required")
	ErrUnknownJobType = errors.New("unknown job type")
)
