// Package storage selects a blob store implementation from configuration,
// keeping the rest of the service independent of where snapshots land
// (memory, local filesystem, or Google Cloud Storage).
package storage

import (
	"context"
	"fmt"

	gstorage "cloud.google.com/go/storage"

	"github.com/prospectica/leadpipe/internal/config"
	"github.com/prospectica/leadpipe/internal/leads"
	"github.com/prospectica/leadpipe/internal/storage/gcs"
	"github.com/prospectica/leadpipe/internal/storage/local"
	"github.com/prospectica/leadpipe/internal/storage/memory"
)

// NewBlobStore builds the blob store named by cfg.Provider. The returned
// cleanup releases any underlying client and is never nil.
func NewBlobStore(ctx context.Context, cfg config.StorageConfig) (leads.BlobStore, func(), error) {
	noop := func() {}
	switch cfg.Provider {
	case "memory":
		return memory.NewBlobStore(), noop, nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, noop, fmt.Errorf("local blob store: %w", err)
		}
		return store, noop, nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("gcs blob store: %w", err)
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}
