package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/prospectica/leadpipe/internal/leads"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer fetcher.Close()
	require.Equal(t, 2, cap(fetcher.limiter))
	require.Equal(t, 45*time.Second, fetcher.cfg.NavigationTimeout)
}

func TestDocumentMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newDocumentMeta()
	meta.onEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  204,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-Id": "abc"},
		},
	})
	status, headers, url := meta.resolve("https://req", "")
	require.Equal(t, 204, status)
	require.Equal(t, "abc", headers.Get("X-Request-Id"))
	require.Equal(t, "https://example.com/rendered", url)

	meta = newDocumentMeta()
	status, headers, url = meta.resolve("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, headers)
	require.Equal(t, "https://final", url)

	meta = newDocumentMeta()
	_, _, url = meta.resolve("https://req", "")
	require.Equal(t, "https://req", url)
}

func TestDocumentMetaIgnoresSubresources(t *testing.T) {
	t.Parallel()

	meta := newDocumentMeta()
	meta.onEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://cdn.example.com/app.js"},
	})
	status, _, _ := meta.resolve("https://req", "")
	require.Equal(t, http.StatusOK, status)
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Single": {"a"}, "X-Multi": {"a", "b"}, "X-Empty": {}}
	got := toNetworkHeaders(src)
	require.Equal(t, "a", got["X-Single"])
	require.Equal(t, []string{"a", "b"}, got["X-Multi"])
	require.NotContains(t, got, "X-Empty")
}

func TestAcquireRespectsContext(t *testing.T) {
	t.Parallel()

	f := &Fetcher{limiter: make(chan struct{}, 1)}
	require.NoError(t, f.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, f.acquire(ctx))

	f.release()
	require.NoError(t, f.acquire(context.Background()))
}

func TestNoopFetcherErrors(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Fetch(context.Background(), leads.FetchRequest{URL: "https://example.com"})
	require.Error(t, err)
}
