// Package main wires together the lead pipeline service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prospectica/leadpipe/internal/api"
	"github.com/prospectica/leadpipe/internal/clock/system"
	"github.com/prospectica/leadpipe/internal/config"
	"github.com/prospectica/leadpipe/internal/dispatcher"
	"github.com/prospectica/leadpipe/internal/extractor"
	collyfetcher "github.com/prospectica/leadpipe/internal/fetcher/colly"
	headlessfetcher "github.com/prospectica/leadpipe/internal/fetcher/headless"
	"github.com/prospectica/leadpipe/internal/hash/sha256"
	"github.com/prospectica/leadpipe/internal/headless/detector"
	"github.com/prospectica/leadpipe/internal/id/uuid"
	"github.com/prospectica/leadpipe/internal/leads"
	"github.com/prospectica/leadpipe/internal/logging"
	"github.com/prospectica/leadpipe/internal/metrics"
	queuememory "github.com/prospectica/leadpipe/internal/queue/memory"
	queuepubsub "github.com/prospectica/leadpipe/internal/queue/pubsub"
	"github.com/prospectica/leadpipe/internal/storage"
	storagememory "github.com/prospectica/leadpipe/internal/storage/memory"
	"github.com/prospectica/leadpipe/internal/storage/postgres"
	"github.com/prospectica/leadpipe/internal/submit"
	"github.com/prospectica/leadpipe/internal/sweeper"
	"github.com/prospectica/leadpipe/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	jobStore, leadStore, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}

	queue, closeQueue, err := buildQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	blobStore, closeBlobs, err := storage.NewBlobStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeBlobs()

	clock := system.New()
	idGen := uuid.New()
	hasher := sha256.New()

	probeFetcher, err := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Scrape.UserAgent,
		RespectRobots: cfg.Scrape.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
		PerHostDelay:  time.Duration(cfg.Scrape.PerHostDelayMs) * time.Millisecond,
		Parallelism:   cfg.Scrape.Concurrency,
	})
	if err != nil {
		return fmt.Errorf("fetcher init: %w", err)
	}

	var headless leads.Fetcher
	if cfg.Headless.Enabled {
		chromedpFetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Scrape.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			headless = chromedpFetcher
			defer chromedpFetcher.Close()
		}
	}

	siteExtractor := extractor.New(
		extractor.Config{
			MaxPagesPerSite: cfg.Scrape.MaxPagesPerSite,
			SnapshotPages:   cfg.Scrape.SnapshotPages,
		},
		probeFetcher,
		extractor.Deps{
			Headless: headless,
			Detector: detector.NewHeuristic(cfg.Headless.PromotionThresh),
			Blobs:    blobStore,
			Hasher:   hasher,
			Clock:    clock,
			Logger:   logger.Named("extractor"),
		},
	)

	workerCfg := worker.Config{MaxAttempts: cfg.Scrape.MaxDeliveryRetries}
	var workers []*worker.Worker
	for i := 0; i < cfg.Scrape.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			leadStore,
			siteExtractor,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(workers)

	svc := submit.NewService(
		jobStore,
		queue,
		siteExtractor,
		idGen,
		clock,
		submit.Config{SyncTimeout: cfg.SyncTimeout()},
		logger.Named("submit"),
	)
	apiServer := api.NewServer(svc, leadStore, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	if cfg.Sweeper.Enabled {
		sweep := sweeper.New(jobStore, queue, sweeper.Config{
			Interval:   time.Duration(cfg.Sweeper.IntervalSec) * time.Second,
			OlderThan:  time.Duration(cfg.Sweeper.OlderThanSec) * time.Second,
			BatchLimit: cfg.Sweeper.BatchLimit,
		}, logger.Named("sweeper"))
		go sweep.Run(ctx)
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func buildStores(ctx context.Context, cfg config.Config) (leads.JobStore, leads.LeadStore, error) {
	if cfg.DB.DSN == "" {
		return storagememory.NewJobStore(), storagememory.NewLeadStore(), nil
	}

	pgCfg := postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        int32(cfg.DB.MaxConns),
		MinConns:        int32(cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeSec) * time.Second,
	}
	jobStore, err := postgres.NewJobStore(ctx, pgCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres job store: %w", err)
	}
	leadStore, err := postgres.NewLeadStore(ctx, pgCfg, cfg.DB.LeadTable)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres lead store: %w", err)
	}
	return jobStore, leadStore, nil
}

func buildQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (leads.Queue, func(), error) {
	switch cfg.Queue.Provider {
	case "memory":
		q := queuememory.NewQueue(queuememory.Config{
			Capacity:          cfg.Queue.Depth,
			VisibilityTimeout: time.Duration(cfg.Queue.VisibilitySec) * time.Second,
			MaxReceiveCount:   cfg.Queue.MaxReceiveCount,
		})
		return q, q.Close, nil
	case "pubsub":
		q, err := queuepubsub.New(ctx, queuepubsub.Config{
			ProjectID:      cfg.Queue.ProjectID,
			TopicID:        cfg.Queue.Topic,
			SubscriptionID: cfg.Queue.Subscription,
		}, logger.Named("pubsub"))
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub queue: %w", err)
		}
		return q, func() {
			if err := q.Close(); err != nil {
				logger.Warn("pubsub queue close failed", zap.Error(err))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue provider %q", cfg.Queue.Provider)
	}
}
