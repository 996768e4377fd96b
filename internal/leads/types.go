// Package leads defines core types shared across subsystems.
package leads

import (
	"net/http"
	"time"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// JobTypeScrape is the only job type currently produced; the discriminator
// exists so future job kinds can share the pipeline.
const JobTypeScrape = "scrape"

// IsTerminal reports whether no further transition may leave the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// JobPayload is the immutable input snapshot captured at submission time.
type JobPayload struct {
	URLs             []string `json:"urls"`
	Industry         string   `json:"industry,omitempty"`
	Location         string   `json:"location,omitempty"`
	Deep             bool     `json:"deep,omitempty"`
	PerSitePageLimit int      `json:"per_site_page_limit,omitempty"`
	Limit            int      `json:"limit,omitempty"`
}

// Job represents the metadata persisted for each submitted scrape request.
type Job struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Status    JobStatus  `json:"status"`
	Payload   JobPayload `json:"payload"`
	Result    []Lead     `json:"result,omitempty"`
	ErrorText string     `json:"error_text,omitempty"`
	Created   time.Time  `json:"created_at"`
	Updated   time.Time  `json:"updated_at"`
	Started   *time.Time `json:"started_at,omitempty"`
	Finished  *time.Time `json:"finished_at,omitempty"`
}

// Lead is one extracted contact/company record from a single target URL.
// Every field is best-effort; a failed fetch produces an entry carrying only
// SourceURL and FetchError.
type Lead struct {
	JobID        string            `json:"job_id,omitempty"`
	SourceURL    string            `json:"source_url"`
	CompanyName  string            `json:"company_name,omitempty"`
	Emails       []string          `json:"emails,omitempty"`
	Phones       []string          `json:"phones,omitempty"`
	Address      string            `json:"address,omitempty"`
	Socials      map[string]string `json:"socials,omitempty"`
	Industry     string            `json:"industry,omitempty"`
	Location     string            `json:"location,omitempty"`
	PagesCrawled int               `json:"pages_crawled,omitempty"`
	StatusCode   int               `json:"status_code,omitempty"`
	SnapshotURI  string            `json:"snapshot_uri,omitempty"`
	ExtractedAt  time.Time         `json:"extracted_at"`
	FetchError   string            `json:"fetch_error,omitempty"`
}

// Failed reports whether the entry records a per-URL failure rather than an
// extracted lead.
func (l Lead) Failed() bool {
	return l.FetchError != ""
}

// HasContact reports whether any contact field was extracted.
func (l Lead) HasContact() bool {
	return len(l.Emails) > 0 || len(l.Phones) > 0 || l.Address != "" || len(l.Socials) > 0
}

// JobMessage is the wire payload carried by the queue transport. The full
// input snapshot travels with the job ID so a worker never has to read the
// job store before starting.
type JobMessage struct {
	JobType          string   `json:"job_type"`
	JobID            string   `json:"job_id"`
	URLs             []string `json:"urls"`
	Industry         string   `json:"industry,omitempty"`
	Location         string   `json:"location,omitempty"`
	Deep             bool     `json:"deep,omitempty"`
	PerSitePageLimit int      `json:"per_site_page_limit,omitempty"`
	Limit            int      `json:"limit,omitempty"`
}

// NewJobMessage builds the queue message for a job.
func NewJobMessage(job Job) JobMessage {
	return JobMessage{
		JobType:          job.Type,
		JobID:            job.ID,
		URLs:             job.Payload.URLs,
		Industry:         job.Payload.Industry,
		Location:         job.Payload.Location,
		Deep:             job.Payload.Deep,
		PerSitePageLimit: job.Payload.PerSitePageLimit,
		Limit:            job.Payload.Limit,
	}
}

// Payload reconstructs the input snapshot carried by the message.
func (m JobMessage) Payload() JobPayload {
	return JobPayload{
		URLs:             m.URLs,
		Industry:         m.Industry,
		Location:         m.Location,
		Deep:             m.Deep,
		PerSitePageLimit: m.PerSitePageLimit,
		Limit:            m.Limit,
	}
}

// Validate rejects messages that must not reach the extraction loop.
func (m JobMessage) Validate() error {
	if m.JobID == "" {
		return ErrMissingJobID
	}
	if m.JobType != JobTypeScrape {
		return ErrUnknownJobType
	}
	if len(m.URLs) == 0 {
		return ErrNoURLs
	}
	return nil
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID       string
	URL         string
	UseHeadless bool
	Headers     http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// JobResult is returned by the API result endpoint.
type JobResult struct {
	Job   Job    `json:"job"`
	Leads []Lead `json:"leads"`
}

// JobStatusView is the read-only projection served to polling clients.
type JobStatusView struct {
	JobID    string     `json:"job_id"`
	Status   JobStatus  `json:"status"`
	Started  *time.Time `json:"started_at"`
	Finished *time.Time `json:"finished_at"`
	Error    string     `json:"error,omitempty"`
}

// StatusView projects a job for the status endpoint.
func (j Job) StatusView() JobStatusView {
	return JobStatusView{
		JobID:    j.ID,
		Status:   j.Status,
		Started:  j.Started,
		Finished: j.Finished,
		Error:    j.ErrorText,
	}
}
