package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDMIRROR_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDMIRROR_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "PREDMIRROR_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ContractAddress, "PREDMIRROR_CHAIN_CONTRACT_ADDRESS")
	setInt64(&cfg.Chain.ChainID, "PREDMIRROR_CHAIN_CHAIN_ID")

	// ── Backfill ──
	setUint64(&cfg.Backfill.StartBlock, "PREDMIRROR_BACKFILL_START_BLOCK")
	setUint64(&cfg.Backfill.ChunkSize, "PREDMIRROR_BACKFILL_CHUNK_SIZE")
	setInt(&cfg.Backfill.DedupCapacity, "PREDMIRROR_BACKFILL_DEDUP_CAPACITY")

	// ── Reconcile ──
	setDuration(&cfg.Reconcile.FetchDelay, "PREDMIRROR_RECONCILE_FETCH_DELAY")
	setDuration(&cfg.Reconcile.SettleDelay, "PREDMIRROR_RECONCILE_SETTLE_DELAY")

	// ── History ──
	setInt(&cfg.History.MaxPoints, "PREDMIRROR_HISTORY_MAX_POINTS")
	setFloat64(&cfg.History.PriceDelta, "PREDMIRROR_HISTORY_PRICE_DELTA")
	setDuration(&cfg.History.MinInterval, "PREDMIRROR_HISTORY_MIN_INTERVAL")
	setDuration(&cfg.History.SeedOffset, "PREDMIRROR_HISTORY_SEED_OFFSET")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDMIRROR_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDMIRROR_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDMIRROR_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDMIRROR_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDMIRROR_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDMIRROR_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDMIRROR_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDMIRROR_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDMIRROR_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDMIRROR_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDMIRROR_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDMIRROR_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDMIRROR_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDMIRROR_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDMIRROR_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDMIRROR_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDMIRROR_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDMIRROR_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDMIRROR_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDMIRROR_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDMIRROR_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDMIRROR_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDMIRROR_S3_FORCE_PATH_STYLE")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.PollInterval, "PREDMIRROR_PIPELINE_POLL_INTERVAL")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "PREDMIRROR_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Pipeline.ArchiveCron, "PREDMIRROR_PIPELINE_ARCHIVE_CRON")
	setBool(&cfg.Pipeline.ArchiveEnabled, "PREDMIRROR_PIPELINE_ARCHIVE_ENABLED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDMIRROR_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDMIRROR_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDMIRROR_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PREDMIRROR_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PREDMIRROR_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PREDMIRROR_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDMIRROR_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDMIRROR_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDMIRROR_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDMIRROR_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDMIRROR_MODE")
	setStr(&cfg.LogLevel, "PREDMIRROR_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
