// Package api exposes the HTTP interface for the lead pipeline.
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prospectica/leadpipe/internal/config"
	"github.com/prospectica/leadpipe/internal/leads"
	"github.com/prospectica/leadpipe/internal/metrics"
	"github.com/prospectica/leadpipe/internal/submit"
)

// Server wires HTTP handlers to the submission service and stores.
type Server struct {
	router    chi.Router
	svc       *submit.Service
	leadStore leads.LeadStore
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. leadStore may be
// nil; the export endpoint then reports the feature as unavailable.
func NewServer(svc *submit.Service, leadStore leads.LeadStore, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:       svc,
		leadStore: leadStore,
		cfg:       cfg,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(2 * time.Minute))
	r.Use(metrics.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Get("/status", s.jobStatus)
			r.Get("/{job_id}/result", s.jobResult)
		})
		r.Post("/scrape", s.scrapeNow)
		r.Get("/leads/export", s.exportLeads)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// Probe the job store; an unreachable database should flip readiness.
	if _, err := s.svc.Status(r.Context(), "readiness-probe"); err != nil && !errors.Is(err, leads.ErrNotFound) {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	URLs []string `json:"urls"`
	// Query is accepted for forward compatibility; nothing resolves a free
	// text query into target URLs yet, so urls remain the only target
	// source.
	Query            string   `json:"query"`
	Industry         string   `json:"industry"`
	Location         string   `json:"location"`
	Deep             bool     `json:"deep"`
	PerSitePageLimit int      `json:"per_site_page_limit"`
	Limit            int      `json:"limit"`
}

func (r scrapeRequest) payload() leads.JobPayload {
	return leads.JobPayload{
		URLs:             r.URLs,
		Industry:         r.Industry,
		Location:         r.Location,
		Deep:             r.Deep,
		PerSitePageLimit: r.PerSitePageLimit,
		Limit:            r.Limit,
	}
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	job, err := s.svc.Submit(r.Context(), req.payload())
	switch {
	case errors.Is(err, leads.ErrNoURLs):
		s.writeError(w, http.StatusBadRequest, leads.ErrNoURLs.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("id")
	if jobID == "" {
		s.writeError(w, http.StatusBadRequest, "id query parameter required")
		return
	}

	view, err := s.svc.Status(r.Context(), jobID)
	switch {
	case errors.Is(err, leads.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) jobResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	result, err := s.svc.Result(r.Context(), jobID)
	switch {
	case errors.Is(err, leads.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) scrapeNow(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	results, err := s.svc.ScrapeNow(r.Context(), req.payload())
	switch {
	case errors.Is(err, leads.ErrNoURLs):
		msg := leads.ErrNoURLs.Error()
		if req.Query != "" {
			msg = "neither urls nor query yields usable targets"
		}
		s.writeError(w, http.StatusBadRequest, msg)
		return
	case err != nil:
		// Budget overruns surface as plain 500s so async and sync callers
		// see the same failure shape.
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "complete",
		"leads":  results,
		"count":  len(results),
	})
}

func (s *Server) exportLeads(w http.ResponseWriter, r *http.Request) {
	if s.leadStore == nil {
		s.writeError(w, http.StatusNotImplemented, "lead export not configured")
		return
	}

	limit := queryInt(r, "limit", 1000)
	offset := queryInt(r, "offset", 0)
	records, err := s.leadStore.ListLeads(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list leads")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="leads.csv"`)
	cw := csv.NewWriter(w)
	header := []string{"source_url", "company_name", "emails", "phones", "address", "industry", "location", "socials", "extracted_at"}
	if err := cw.Write(header); err != nil {
		s.logger.Error("csv write failed", zap.Error(err))
		return
	}
	for _, rec := range records {
		row := []string{
			rec.SourceURL,
			rec.CompanyName,
			strings.Join(rec.Emails, ";"),
			strings.Join(rec.Phones, ";"),
			rec.Address,
			rec.Industry,
			rec.Location,
			joinSocials(rec.Socials),
			rec.ExtractedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			s.logger.Error("csv write failed", zap.Error(err))
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Error("csv flush failed", zap.Error(err))
	}
}

func joinSocials(socials map[string]string) string {
	if len(socials) == 0 {
		return ""
	}
	parts := make([]string, 0, len(socials))
	for _, platform := range []string{"facebook", "instagram", "linkedin", "twitter", "youtube", "tiktok"} {
		if link, ok := socials[platform]; ok {
			parts = append(parts, platform+"="+link)
		}
	}
	return strings.Join(parts, ";")
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `{"error":"unauthorized"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
