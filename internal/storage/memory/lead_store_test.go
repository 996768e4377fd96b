package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prospectica/leadpipe/internal/leads"
)

func TestLeadStore_UpsertRefreshesExisting(t *testing.T) {
	t.Parallel()

	s := NewLeadStore()
	require.NoError(t, s.UpsertLeads(context.Background(), []leads.Lead{
		{SourceURL: "https://example.com", Emails: []string{"old@example.com"}},
	}))
	require.NoError(t, s.UpsertLeads(context.Background(), []leads.Lead{
		{SourceURL: "https://example.com", Emails: []string{"new@example.com"}},
		{SourceURL: "https://other.net", Phones: []string{"+1 555 0100"}},
	}))

	out, err := s.ListLeads(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, []string{"new@example.com"}, out[0].Emails)
}

func TestLeadStore_SkipsFailureEntries(t *testing.T) {
	t.Parallel()

	s := NewLeadStore()
	require.NoError(t, s.UpsertLeads(context.Background(), []leads.Lead{
		{SourceURL: "https://bad.invalid", FetchError: "connection refused"},
	}))

	out, err := s.ListLeads(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestLeadStore_ListPaging(t *testing.T) {
	t.Parallel()

	s := NewLeadStore()
	require.NoError(t, s.UpsertLeads(context.Background(), []leads.Lead{
		{SourceURL: "https://a.com"},
		{SourceURL: "https://b.com"},
		{SourceURL: "https://c.com"},
	}))

	page, err := s.ListLeads(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "https://b.com", page[0].SourceURL)

	empty, err := s.ListLeads(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}
