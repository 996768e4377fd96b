package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prospectica/leadpipe/internal/config"
	"github.com/prospectica/leadpipe/internal/leads"
	"github.com/prospectica/leadpipe/internal/metrics"
	"github.com/prospectica/leadpipe/internal/storage/memory"
	"github.com/prospectica/leadpipe/internal/submit"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type stubQueue struct {
	err error
}

func (q *stubQueue) Enqueue(context.Context, leads.JobMessage) error { return q.err }
func (q *stubQueue) Dequeue(context.Context) (leads.Delivery, error) {
	return leads.Delivery{}, context.Canceled
}

type stubIDs struct{}

func (stubIDs) NewID() (string, error) { return "0192f0c1-0000-7000-8000-000000000001", nil }

type stubClock struct{}

func (stubClock) Now() time.Time { return time.Unix(1700000000, 0).UTC() }

type stubExtractor struct {
	delay time.Duration
}

func (e stubExtractor) ExtractSite(ctx context.Context, msg leads.JobMessage, siteURL string) leads.Lead {
	if e.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(e.delay):
		}
	}
	return leads.Lead{
		JobID:       msg.JobID,
		SourceURL:   siteURL,
		CompanyName: "Acme",
		Emails:      []string{"info@acme.example"},
		ExtractedAt: time.Unix(1700000000, 0).UTC(),
	}
}

type serverFixture struct {
	ts    *httptest.Server
	jobs  *memory.JobStore
	leads *memory.LeadStore
}

func newFixture(t *testing.T, cfg config.Config, extractor submit.SiteExtractor, svcCfg submit.Config) serverFixture {
	t.Helper()
	jobs := memory.NewJobStore()
	contacts := memory.NewLeadStore()
	svc := submit.NewService(jobs, &stubQueue{}, extractor, stubIDs{}, stubClock{}, svcCfg, nil)
	srv := NewServer(svc, contacts, cfg, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return serverFixture{ts: ts, jobs: jobs, leads: contacts}
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { require.NoError(t, resp.Body.Close()) }()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSubmitJobAccepted(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, config.Config{}, nil, submit.Config{})
	resp := postJSON(t, fx.ts.URL+"/v1/jobs", `{"urls":["https://acme.example"],"industry":"plumbing"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp)
	require.Equal(t, "queued", body["status"])
	jobID, ok := body["job_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, jobID)

	stored, err := fx.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, leads.JobStatusQueued, stored.Status)
}

func TestSubmitJobRejectsEmptyURLs(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, config.Config{}, nil, submit.Config{})

	resp := postJSON(t, fx.ts.URL+"/v1/jobs", `{"urls":[]}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, decodeBody(t, resp)["error"], "urls required")

	resp = postJSON(t, fx.ts.URL+"/v1/jobs", `not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}

func TestJobStatusEndpoint(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, config.Config{}, nil, submit.Config{})
	resp := postJSON(t, fx.ts.URL+"/v1/jobs", `{"urls":["https://acme.example"]}`)
	jobID := decodeBody(t, resp)["job_id"].(string)

	resp, err := http.Get(fx.ts.URL + "/v1/jobs/status?id=" + jobID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "queued", body["status"])
	require.Equal(t, jobID, body["job_id"])

	resp, err = http.Get(fx.ts.URL + "/v1/jobs/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	resp, err = http.Get(fx.ts.URL + "/v1/jobs/status?id=ghost")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}

func TestJobResultEndpoint(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, config.Config{}, nil, submit.Config{})
	resp := postJSON(t, fx.ts.URL+"/v1/jobs", `{"urls":["https://acme.example"]}`)
	jobID := decodeBody(t, resp)["job_id"].(string)

	ctx := context.Background()
	_, err := fx.jobs.MarkRunning(ctx, jobID)
	require.NoError(t, err)
	require.NoError(t, fx.jobs.MarkComplete(ctx, jobID, []leads.Lead{{SourceURL: "https://acme.example"}}))

	resp, err = http.Get(fx.ts.URL + "/v1/jobs/" + jobID + "/result")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Len(t, body["leads"], 1)

	resp, err = http.Get(fx.ts.URL + "/v1/jobs/ghost/result")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}

func TestScrapeNowEndpoint(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, config.Config{}, stubExtractor{}, submit.Config{})
	resp := postJSON(t, fx.ts.URL+"/v1/scrape", `{"urls":["https://acme.example"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "complete", body["status"])
	require.Equal(t, float64(1), body["count"])
}

func TestScrapeNowQueryWithoutURLsRejected(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, config.Config{}, stubExtractor{}, submit.Config{})
	resp := postJSON(t, fx.ts.URL+"/v1/scrape", `{"query":"plumbers in atlanta"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, decodeBody(t, resp)["error"], "neither urls nor query")
}

func TestScrapeNowTimeoutReturns500(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, config.Config{}, stubExtractor{delay: time.Second}, submit.Config{SyncTimeout: 30 * time.Millisecond})
	resp := postJSON(t, fx.ts.URL+"/v1/scrape", `{"urls":["https://a.example","https://b.example"]}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, decodeBody(t, resp)["error"], "budget")
}

func TestExportLeadsCSV(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, config.Config{}, nil, submit.Config{})
	require.NoError(t, fx.leads.UpsertLeads(context.Background(), []leads.Lead{{
		SourceURL:   "https://acme.example",
		CompanyName: "Acme",
		Emails:      []string{"info@acme.example", "sales@acme.example"},
		Socials:     map[string]string{"facebook": "https://facebook.com/acme"},
		ExtractedAt: time.Unix(1700000000, 0).UTC(),
	}}))

	resp, err := http.Get(fx.ts.URL + "/v1/leads/export")
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "source_url")
	require.Contains(t, lines[1], "info@acme.example;sales@acme.example")
	require.Contains(t, lines[1], "facebook=https://facebook.com/acme")
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	fx := newFixture(t, cfg, nil, submit.Config{})

	resp, err := http.Get(fx.ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	req, err := http.NewRequest(http.MethodGet, fx.ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, config.Config{}, nil, submit.Config{})
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(fx.ts.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		require.NoError(t, resp.Body.Close())
	}

	resp, err := http.Get(fx.ts.URL + "/metrics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}
