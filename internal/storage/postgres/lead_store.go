package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/prospectica/leadpipe/internal/leads"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LeadStore implements leads.LeadStore on Postgres. One row per source URL;
// re-scraping a site refreshes its row.
//
// Expected schema:
//
//	CREATE TABLE leads (
//		source_url    TEXT PRIMARY KEY,
//		job_id        TEXT NOT NULL,
//		company_name  TEXT NOT NULL DEFAULT '',
//		emails        JSONB,
//		phones        JSONB,
//		address       TEXT NOT NULL DEFAULT '',
//		socials       JSONB,
//		industry      TEXT NOT NULL DEFAULT '',
//		location      TEXT NOT NULL DEFAULT '',
//		pages_crawled INT NOT NULL DEFAULT 0,
//		status_code   INT NOT NULL DEFAULT 0,
//		snapshot_uri  TEXT NOT NULL DEFAULT '',
//		extracted_at  TIMESTAMPTZ NOT NULL
//	);
type LeadStore struct {
	pool  dbPool
	table string
}

// NewLeadStore creates a Postgres-backed LeadStore using the provided config.
func NewLeadStore(ctx context.Context, cfg Config, table string) (*LeadStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewLeadStoreWithPool(pool, table)
}

// NewLeadStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewLeadStoreWithPool(pool dbPool, table string) (*LeadStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "leads"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &LeadStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *LeadStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertLeads inserts or refreshes lead rows. Failure entries are skipped;
// the contact table only holds usable leads.
func (s *LeadStore) UpsertLeads(ctx context.Context, records []leads.Lead) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	source_url, job_id, company_name, emails, phones, address, socials,
	industry, location, pages_crawled, status_code, snapshot_uri, extracted_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (source_url) DO UPDATE SET
	job_id = EXCLUDED.job_id,
	company_name = EXCLUDED.company_name,
	emails = EXCLUDED.emails,
	phones = EXCLUDED.phones,
	address = EXCLUDED.address,
	socials = EXCLUDED.socials,
	industry = EXCLUDED.industry,
	location = EXCLUDED.location,
	pages_crawled = EXCLUDED.pages_crawled,
	status_code = EXCLUDED.status_code,
	snapshot_uri = EXCLUDED.snapshot_uri,
	extracted_at = EXCLUDED.extracted_at`, s.table)

	for _, rec := range records {
		if rec.Failed() {
			continue
		}
		emailsJSON, err := json.Marshal(rec.Emails)
		if err != nil {
			return fmt.Errorf("marshal emails: %w", err)
		}
		phonesJSON, err := json.Marshal(rec.Phones)
		if err != nil {
			return fmt.Errorf("marshal phones: %w", err)
		}
		socialsJSON, err := json.Marshal(rec.Socials)
		if err != nil {
			return fmt.Errorf("marshal socials: %w", err)
		}
		args := []any{
			rec.SourceURL,
			rec.JobID,
			rec.CompanyName,
			emailsJSON,
			phonesJSON,
			rec.Address,
			socialsJSON,
			rec.Industry,
			rec.Location,
			rec.PagesCrawled,
			rec.StatusCode,
			rec.SnapshotURI,
			rec.ExtractedAt,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert lead %s: %w", rec.SourceURL, err)
		}
	}
	return nil
}

// ListLeads returns lead rows ordered by extraction time, newest first.
func (s *LeadStore) ListLeads(ctx context.Context, limit, offset int) ([]leads.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
SELECT source_url, job_id, company_name, emails, phones, address, socials,
	industry, location, pages_crawled, status_code, snapshot_uri, extracted_at
FROM %s
ORDER BY extracted_at DESC
LIMIT $1 OFFSET $2`, s.table)

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []leads.Lead
	for rows.Next() {
		var (
			rec         leads.Lead
			emailsJSON  []byte
			phonesJSON  []byte
			socialsJSON []byte
			extractedAt time.Time
		)
		err := rows.Scan(
			&rec.SourceURL,
			&rec.JobID,
			&rec.CompanyName,
			&emailsJSON,
			&phonesJSON,
			&rec.Address,
			&socialsJSON,
			&rec.Industry,
			&rec.Location,
			&rec.PagesCrawled,
			&rec.StatusCode,
			&rec.SnapshotURI,
			&extractedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}
		rec.ExtractedAt = extractedAt
		if err := unmarshalIfPresent(emailsJSON, &rec.Emails); err != nil {
			return nil, err
		}
		if err := unmarshalIfPresent(phonesJSON, &rec.Phones); err != nil {
			return nil, err
		}
		if err := unmarshalIfPresent(socialsJSON, &rec.Socials); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return out, nil
}

func unmarshalIfPresent(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal lead column: %w", err)
	}
	return nil
}
