package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/prospectica/leadpipe/internal/leads"
)

func TestLeadStore_RejectsInvalidTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewLeadStoreWithPool(mock, "leads; DROP TABLE jobs")
	require.Error(t, err)
}

func TestLeadStore_UpsertLeadsSkipsFailures(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "leads")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	records := []leads.Lead{
		{
			SourceURL:    "https://example.com",
			JobID:        "job-1",
			CompanyName:  "Example Co",
			Emails:       []string{"info@example.com"},
			Phones:       []string{"+1 555 0100"},
			Address:      "1 Main St",
			Socials:      map[string]string{"linkedin": "https://linkedin.com/company/example"},
			Industry:     "plumbing",
			Location:     "Austin, TX",
			PagesCrawled: 2,
			StatusCode:   200,
			ExtractedAt:  now,
		},
		{SourceURL: "https://bad.invalid", FetchError: "connection refused"},
	}

	// Only the usable lead reaches the database.
	mock.ExpectExec("INSERT INTO leads").
		WithArgs(
			"https://example.com",
			"job-1",
			"Example Co",
			[]byte(`["info@example.com"]`),
			[]byte(`["+1 555 0100"]`),
			"1 Main St",
			[]byte(`{"linkedin":"https://linkedin.com/company/example"}`),
			"plumbing",
			"Austin, TX",
			2,
			200,
			"",
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertLeads(context.Background(), records))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadStore_ListLeads(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "leads")
	require.NoError(t, err)

	now := time.Unix(1700000500, 0).UTC()
	columns := []string{
		"source_url", "job_id", "company_name", "emails", "phones", "address",
		"socials", "industry", "location", "pages_crawled", "status_code",
		"snapshot_uri", "extracted_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM leads").
		WithArgs(50, 0).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(
			"https://example.com", "job-1", "Example Co",
			[]byte(`["info@example.com"]`), []byte(`[]`), "",
			[]byte(`{}`), "", "", 1, 200, "", now,
		))

	out, err := store.ListLeads(context.Background(), 50, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "Example Co", out[0].CompanyName)
	require.Equal(t, []string{"info@example.com"}, out[0].Emails)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadStore_ListLeadsSurfacesRowError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeadStoreWithPool(mock, "leads")
	require.NoError(t, err)

	now := time.Unix(1700000500, 0).UTC()
	columns := []string{
		"source_url", "job_id", "company_name", "emails", "phones", "address",
		"socials", "industry", "location", "pages_crawled", "status_code",
		"snapshot_uri", "extracted_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM leads").
		WithArgs(50, 0).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(
			"https://example.com", "job-1", "Example Co",
			[]byte(`["info@example.com"]`), []byte(`[]`), "",
			[]byte(`{}`), "", "", 1, 200, "", now,
		).RowError(0, errors.New("conn reset")))

	_, err = store.ListLeads(context.Background(), 50, 0)
	require.ErrorContains(t, err, "conn reset")
	require.NoError(t, mock.ExpectationsWereMet())
}
