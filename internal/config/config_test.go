package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 4, cfg.Scrape.Concurrency)
	require.Equal(t, "memory", cfg.Queue.Provider)
	require.Equal(t, "memory", cfg.Storage.Provider)
	require.True(t, cfg.Sweeper.Enabled)
	require.Equal(t, 15*time.Second, cfg.FetchTimeout())
	require.Equal(t, 60*time.Second, cfg.SyncTimeout())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
scrape:
  concurrency: 6
  user_agent: lead-agent
  fetch_timeout_seconds: 30
  sync_timeout_seconds: 90
  max_pages_per_site: 8
  snapshot_pages: true
queue:
  provider: pubsub
  project_id: proj
  topic: scrape-jobs
  subscription: scrape-jobs-workers
headless:
  enabled: true
  max_parallel: 2
storage:
  provider: gcs
  gcs_bucket: bucket
  prefix: snapshots
db:
  dsn: postgres://localhost/leadpipe
  lead_table: contacts
logging:
  development: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.Equal(t, 6, cfg.Scrape.Concurrency)
	require.True(t, cfg.Scrape.SnapshotPages)
	require.Equal(t, "pubsub", cfg.Queue.Provider)
	require.Equal(t, "scrape-jobs-workers", cfg.Queue.Subscription)
	require.Equal(t, "gcs", cfg.Storage.Provider)
	require.Equal(t, "contacts", cfg.DB.LeadTable)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, 90*time.Second, cfg.SyncTimeout())
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "pubsub without topic",
			yaml: "queue:\n  provider: pubsub\n  project_id: proj\n",
			want: "queue.project_id",
		},
		{
			name: "unknown queue provider",
			yaml: "queue:\n  provider: sqs\n",
			want: "queue.provider",
		},
		{
			name: "gcs without bucket",
			yaml: "storage:\n  provider: gcs\n",
			want: "storage.gcs_bucket",
		},
		{
			name: "auth without key",
			yaml: "auth:\n  enabled: true\n",
			want: "auth.api_key",
		},
		{
			name: "headless without parallel slots",
			yaml: "headless:\n  enabled: true\n  max_parallel: 0\n",
			want: "headless.max_parallel",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
