// Package config defines the top-level configuration for the market mirror
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PREDMIRROR_* environment variables.
type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Backfill  BackfillConfig  `toml:"backfill"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	History   HistoryConfig   `toml:"history"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig holds the RPC endpoint and contract identity.
type ChainConfig struct {
	RPCURL          string `toml:"rpc_url"`
	ContractAddress string `toml:"contract_address"`
	ChainID         int64  `toml:"chain_id"`
}

// BackfillConfig tunes the historical log sweep.
type BackfillConfig struct {
	// StartBlock is the first block to scan; 0 disables backfill entirely.
	StartBlock uint64 `toml:"start_block"`
	// ChunkSize is the number of blocks per eth_getLogs request.
	ChunkSize uint64 `toml:"chunk_size"`
	// DedupCapacity bounds the recently-seen event window.
	DedupCapacity int `toml:"dedup_capacity"`
}

// ReconcileConfig holds the two delays of the post-trade re-fetch cycle.
type ReconcileConfig struct {
	FetchDelay  duration `toml:"fetch_delay"`
	SettleDelay duration `toml:"settle_delay"`
}

// HistoryConfig tunes the in-memory price series per market.
type HistoryConfig struct {
	MaxPoints   int      `toml:"max_points"`
	PriceDelta  float64  `toml:"price_delta"`
	MinInterval duration `toml:"min_interval"`
	SeedOffset  duration `toml:"seed_offset"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig holds mirror pipeline parameters.
type PipelineConfig struct {
	// PollInterval is how often the market registry re-reads marketCount.
	PollInterval duration `toml:"poll_interval"`
	// ArchiveRetentionDays is how long rows stay hot before the archiver
	// moves them to object storage.
	ArchiveRetentionDays int `toml:"archive_retention_days"`
	// ArchiveCron is a 5-field cron expression for the archive job.
	ArchiveCron string `toml:"archive_cron"`
	// ArchiveEnabled gates the cold-storage job; the mirror runs fine
	// without S3 when disabled.
	ArchiveEnabled bool `toml:"archive_enabled"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the API when non-empty; the health endpoint stays open.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per client per window; 0 disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds operator notification channels. All channels are
// optional; an empty config disables notifications entirely.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	// Events filters which event types are forwarded; empty allows all.
	Events []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:  "",
			ChainID: 84532,
		},
		Backfill: BackfillConfig{
			StartBlock:    0,
			ChunkSize:     5_000,
			DedupCapacity: 100,
		},
		Reconcile: ReconcileConfig{
			FetchDelay:  duration{2 * time.Second},
			SettleDelay: duration{1500 * time.Millisecond},
		},
		History: HistoryConfig{
			MaxPoints:   200,
			PriceDelta:  0.001,
			MinInterval: duration{3 * time.Second},
			SeedOffset:  duration{365 * 24 * time.Hour},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "predmirror",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predmirror-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Pipeline: PipelineConfig{
			PollInterval:         duration{5 * time.Second},
			ArchiveRetentionDays: 90,
			ArchiveCron:          "0 3 1 * *",
			ArchiveEnabled:       false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"mirror": true,
	"serve":  true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: mirror, serve, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain: the mirror cannot do anything without an endpoint and contract.
	needsChain := c.Mode == "mirror" || c.Mode == "full"
	if needsChain {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty for mode "+c.Mode)
		}
		if c.Chain.ContractAddress == "" {
			errs = append(errs, "chain: contract_address must not be empty for mode "+c.Mode)
		}
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, fmt.Sprintf("chain: chain_id must be positive, got %d", c.Chain.ChainID))
	}

	// Backfill
	if c.Backfill.ChunkSize == 0 {
		errs = append(errs, "backfill: chunk_size must be >= 1")
	}
	if c.Backfill.DedupCapacity < 1 {
		errs = append(errs, "backfill: dedup_capacity must be >= 1")
	}

	// Reconcile
	if c.Reconcile.FetchDelay.Duration < 0 {
		errs = append(errs, "reconcile: fetch_delay must not be negative")
	}
	if c.Reconcile.SettleDelay.Duration < 0 {
		errs = append(errs, "reconcile: settle_delay must not be negative")
	}

	// History
	if c.History.MaxPoints < 2 {
		errs = append(errs, "history: max_points must be >= 2")
	}
	if c.History.PriceDelta <= 0 || c.History.PriceDelta >= 1 {
		errs = append(errs, fmt.Sprintf("history: price_delta must be in (0, 1), got %g", c.History.PriceDelta))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only required when archiving is on.
	if c.Pipeline.ArchiveEnabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Pipeline.ArchiveRetentionDays < 1 {
			errs = append(errs, "pipeline: archive_retention_days must be >= 1 when archiving is enabled")
		}
	}

	// Pipeline
	if c.Pipeline.PollInterval.Duration <= 0 {
		errs = append(errs, "pipeline: poll_interval must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
