// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScrapeConfig governs worker pool and extraction behavior.
type ScrapeConfig struct {
	Concurrency        int    `mapstructure:"concurrency"`
	UserAgent          string `mapstructure:"user_agent"`
	RespectRobots      bool   `mapstructure:"respect_robots"`
	FetchTimeoutSec    int    `mapstructure:"fetch_timeout_seconds"`
	SyncTimeoutSec     int    `mapstructure:"sync_timeout_seconds"`
	MaxPagesPerSite    int    `mapstructure:"max_pages_per_site"`
	SnapshotPages      bool   `mapstructure:"snapshot_pages"`
	MaxDeliveryRetries int    `mapstructure:"max_delivery_retries"`
	PerHostDelayMs     int    `mapstructure:"per_host_delay_ms"`
}

// QueueConfig selects and tunes the queue transport.
type QueueConfig struct {
	// Provider is "memory" or "pubsub".
	Provider        string `mapstructure:"provider"`
	Depth           int    `mapstructure:"depth"`
	VisibilitySec   int    `mapstructure:"visibility_timeout_seconds"`
	ProjectID       string `mapstructure:"project_id"`
	Topic           string `mapstructure:"topic"`
	Subscription    string `mapstructure:"subscription"`
	MaxReceiveCount int    `mapstructure:"max_receive_count"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// StorageConfig selects and tunes the page snapshot store.
type StorageConfig struct {
	// Provider is "memory", "local", or "gcs".
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeSec int    `mapstructure:"conn_lifetime_seconds"`
	LeadTable       string `mapstructure:"lead_table"`
}

// SweeperConfig tunes the stuck-job reconciliation sweep.
type SweeperConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	IntervalSec  int  `mapstructure:"interval_seconds"`
	OlderThanSec int  `mapstructure:"older_than_seconds"`
	BatchLimit   int  `mapstructure:"batch_limit"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scrape.concurrency", 4)
	v.SetDefault("scrape.user_agent", "leadpipe-bot/0.1")
	v.SetDefault("scrape.respect_robots", true)
	v.SetDefault("scrape.fetch_timeout_seconds", 15)
	v.SetDefault("scrape.sync_timeout_seconds", 60)
	v.SetDefault("scrape.max_pages_per_site", 5)
	v.SetDefault("scrape.snapshot_pages", false)
	v.SetDefault("scrape.max_delivery_retries", 5)
	v.SetDefault("scrape.per_host_delay_ms", 250)
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.depth", 64)
	v.SetDefault("queue.visibility_timeout_seconds", 300)
	v.SetDefault("queue.max_receive_count", 5)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_seconds", 1800)
	v.SetDefault("db.lead_table", "leads")
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval_seconds", 60)
	v.SetDefault("sweeper.older_than_seconds", 600)
	v.SetDefault("sweeper.batch_limit", 100)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scrape.Concurrency <= 0 {
		return fmt.Errorf("scrape.concurrency must be > 0")
	}
	if c.Scrape.FetchTimeoutSec <= 0 {
		return fmt.Errorf("scrape.fetch_timeout_seconds must be > 0")
	}
	switch c.Queue.Provider {
	case "memory":
	case "pubsub":
		if c.Queue.ProjectID == "" || c.Queue.Topic == "" || c.Queue.Subscription == "" {
			return fmt.Errorf("queue.project_id, queue.topic, and queue.subscription must be set for the pubsub provider")
		}
	default:
		return fmt.Errorf("queue.provider must be memory or pubsub, got %q", c.Queue.Provider)
	}
	switch c.Storage.Provider {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local provider")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider must be memory, local, or gcs, got %q", c.Storage.Provider)
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout returns the per-page fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Scrape.FetchTimeoutSec) * time.Second
}

// SyncTimeout returns the synchronous scrape wall-clock budget.
func (c Config) SyncTimeout() time.Duration {
	return time.Duration(c.Scrape.SyncTimeoutSec) * time.Second
}
