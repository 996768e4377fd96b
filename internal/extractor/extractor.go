// Package extractor turns fetched pages into lead records.
package extractor

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/prospectica/leadpipe/internal/leads"
)

// Config controls crawl depth and snapshot behavior.
type Config struct {
	// MaxPagesPerSite caps pages visited per site when no per-job limit is
	// given. The landing page counts as one.
	MaxPagesPerSite int
	// SnapshotPages archives the landing page HTML to the blob store.
	SnapshotPages bool
}

// Deps carries the optional collaborators. Headless and Detector enable
// promotion of JavaScript shells; Blobs and Hasher enable page snapshots.
type Deps struct {
	Headless leads.Fetcher
	Detector leads.HeadlessDetector
	Blobs    leads.BlobStore
	Hasher   leads.Hasher
	Clock    leads.Clock
	Logger   *zap.Logger
}

// Extractor fetches a site and distills it into a single lead record.
type Extractor struct {
	cfg     Config
	fetcher leads.Fetcher
	deps    Deps
}

// New builds an Extractor around the given plain-HTTP fetcher.
func New(cfg Config, fetcher leads.Fetcher, deps Deps) *Extractor {
	if cfg.MaxPagesPerSite <= 0 {
		cfg.MaxPagesPerSite = 5
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, fetcher: fetcher, deps: deps}
}

// ExtractSite produces one lead for siteURL. A failed landing-page fetch
// yields a failure entry rather than an error so one dead site never sinks
// the rest of the job.
func (e *Extractor) ExtractSite(ctx context.Context, msg leads.JobMessage, siteURL string) leads.Lead {
	lead := leads.Lead{
		JobID:       msg.JobID,
		SourceURL:   siteURL,
		Industry:    msg.Industry,
		Location:    msg.Location,
		ExtractedAt: e.now(),
	}

	resp, err := e.fetchPage(ctx, msg.JobID, siteURL)
	if err != nil {
		lead.FetchError = err.Error()
		return lead
	}
	lead.StatusCode = resp.StatusCode
	lead.PagesCrawled = 1

	base, _ := url.Parse(resp.URL)
	data, err := parsePage(resp.Body, base)
	if err != nil {
		lead.FetchError = fmt.Sprintf("parse %s: %v", siteURL, err)
		return lead
	}
	mergeInto(&lead, data)

	if e.cfg.SnapshotPages && e.deps.Blobs != nil {
		lead.SnapshotURI = e.snapshot(ctx, msg.JobID, siteURL, resp.Body)
	}

	if msg.Deep {
		e.crawlContactPages(ctx, msg, &lead, data.links, base)
	}
	return lead
}

// crawlContactPages follows same-host contact-style links, merging whatever
// they add into the lead. Page budget includes the landing page.
func (e *Extractor) crawlContactPages(ctx context.Context, msg leads.JobMessage, lead *leads.Lead, links []string, base *url.URL) {
	budget := msg.PerSitePageLimit
	if budget <= 0 {
		budget = e.cfg.MaxPagesPerSite
	}

	for _, link := range contactCandidates(links, base) {
		if lead.PagesCrawled >= budget {
			return
		}
		if ctx.Err() != nil {
			return
		}
		resp, err := e.fetchPage(ctx, msg.JobID, link)
		if err != nil {
			e.deps.Logger.Debug("contact page fetch failed",
				zap.String("job_id", msg.JobID),
				zap.String("url", link),
				zap.Error(err))
			continue
		}
		lead.PagesCrawled++
		pageBase, _ := url.Parse(resp.URL)
		data, err := parsePage(resp.Body, pageBase)
		if err != nil {
			continue
		}
		mergeInto(lead, data)
	}
}

// fetchPage fetches over plain HTTP and promotes to the headless fetcher
// when the response looks like an unrendered shell. A failed headless pass
// falls back to the plain response.
func (e *Extractor) fetchPage(ctx context.Context, jobID, pageURL string) (leads.FetchResponse, error) {
	resp, err := e.fetcher.Fetch(ctx, leads.FetchRequest{JobID: jobID, URL: pageURL})
	if err != nil {
		return leads.FetchResponse{}, err
	}
	if e.deps.Headless == nil || e.deps.Detector == nil || !e.deps.Detector.ShouldPromote(resp) {
		return resp, nil
	}

	rendered, err := e.deps.Headless.Fetch(ctx, leads.FetchRequest{JobID: jobID, URL: pageURL, UseHeadless: true})
	if err != nil {
		e.deps.Logger.Warn("headless promotion failed, using plain response",
			zap.String("job_id", jobID),
			zap.String("url", pageURL),
			zap.Error(err))
		return resp, nil
	}
	return rendered, nil
}

func (e *Extractor) snapshot(ctx context.Context, jobID, siteURL string, body []byte) string {
	name := fmt.Sprintf("%d", e.now().UnixNano())
	if e.deps.Hasher != nil {
		if digest, err := e.deps.Hasher.Hash(body); err == nil {
			name = digest
		}
	}
	path := fmt.Sprintf("jobs/%s/%s/%s.html", jobID, leads.SiteHost(siteURL), name)
	uri, err := e.deps.Blobs.PutObject(ctx, path, "text/html; charset=utf-8", body)
	if err != nil {
		e.deps.Logger.Warn("page snapshot failed",
			zap.String("job_id", jobID),
			zap.String("url", siteURL),
			zap.Error(err))
		return ""
	}
	return uri
}

func mergeInto(lead *leads.Lead, data pageData) {
	if lead.CompanyName == "" {
		lead.CompanyName = data.companyName
	}
	if lead.Address == "" {
		lead.Address = data.address
	}
	lead.Emails = appendUnique(lead.Emails, data.emails)
	lead.Phones = appendUnique(lead.Phones, data.phones)
	for platform, link := range data.socials {
		if lead.Socials == nil {
			lead.Socials = map[string]string{}
		}
		if _, taken := lead.Socials[platform]; !taken {
			lead.Socials[platform] = link
		}
	}
}

func appendUnique(dst []string, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range src {
		if !seen[v] {
			seen[v] = true
			dst = append(dst, v)
		}
	}
	return dst
}

func (e *Extractor) now() time.Time {
	if e.deps.Clock != nil {
		return e.deps.Clock.Now()
	}
	return time.Now().UTC()
}
