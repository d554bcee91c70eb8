package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, uint64(5000), cfg.Backfill.ChunkSize)
	assert.Equal(t, 100, cfg.Backfill.DedupCapacity)
	assert.Equal(t, 2*time.Second, cfg.Reconcile.FetchDelay.Duration)
	assert.Equal(t, 1500*time.Millisecond, cfg.Reconcile.SettleDelay.Duration)
	assert.Equal(t, 200, cfg.History.MaxPoints)
	assert.Equal(t, 0.001, cfg.History.PriceDelta)
	assert.Equal(t, 3*time.Second, cfg.History.MinInterval.Duration)
	assert.Equal(t, 365*24*time.Hour, cfg.History.SeedOffset.Duration)
	assert.Equal(t, "full", cfg.Mode)
}

func validTestConfig() Config {
	cfg := Defaults()
	cfg.Chain.RPCURL = "wss://sepolia.example.org"
	cfg.Chain.ContractAddress = "0x1111111111111111111111111111111111111111"
	return cfg
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config passes",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "replay" },
			wantErr: "unknown mode",
		},
		{
			name:    "missing rpc url in full mode",
			mutate:  func(c *Config) { c.Chain.RPCURL = "" },
			wantErr: "rpc_url",
		},
		{
			name: "serve mode does not need a chain",
			mutate: func(c *Config) {
				c.Mode = "serve"
				c.Chain.RPCURL = ""
				c.Chain.ContractAddress = ""
			},
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.Backfill.ChunkSize = 0 },
			wantErr: "chunk_size",
		},
		{
			name:    "dedup capacity below one",
			mutate:  func(c *Config) { c.Backfill.DedupCapacity = 0 },
			wantErr: "dedup_capacity",
		},
		{
			name:    "price delta out of range",
			mutate:  func(c *Config) { c.History.PriceDelta = 1.5 },
			wantErr: "price_delta",
		},
		{
			name:    "negative fetch delay",
			mutate:  func(c *Config) { c.Reconcile.FetchDelay.Duration = -time.Second },
			wantErr: "fetch_delay",
		},
		{
			name: "archive enabled requires bucket",
			mutate: func(c *Config) {
				c.Pipeline.ArchiveEnabled = true
				c.S3.Bucket = ""
			},
			wantErr: "bucket",
		},
		{
			name:    "bad server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "port",
		},
		{
			name: "rate limit without window",
			mutate: func(c *Config) {
				c.Server.RateLimit = 100
				c.Server.RateWindow.Duration = 0
			},
			wantErr: "rate_window",
		},
		{
			name:    "pool mins above max",
			mutate:  func(c *Config) { c.Postgres.PoolMinConns = 20 },
			wantErr: "pool_min_conns",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "mirror"

[chain]
rpc_url = "wss://base.example.org"
contract_address = "0x2222222222222222222222222222222222222222"

[backfill]
start_block = 12345
chunk_size = 2000

[reconcile]
fetch_delay = "4s"
settle_delay = "500ms"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mirror", cfg.Mode)
	assert.Equal(t, "wss://base.example.org", cfg.Chain.RPCURL)
	assert.Equal(t, uint64(12345), cfg.Backfill.StartBlock)
	assert.Equal(t, uint64(2000), cfg.Backfill.ChunkSize)
	assert.Equal(t, 4*time.Second, cfg.Reconcile.FetchDelay.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconcile.SettleDelay.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, 100, cfg.Backfill.DedupCapacity)
	assert.Equal(t, 200, cfg.History.MaxPoints)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"serve\"\n"), 0o600))

	t.Setenv("PREDMIRROR_MODE", "full")
	t.Setenv("PREDMIRROR_CHAIN_RPC_URL", "wss://env.example.org")
	t.Setenv("PREDMIRROR_BACKFILL_START_BLOCK", "777")
	t.Setenv("PREDMIRROR_HISTORY_PRICE_DELTA", "0.01")
	t.Setenv("PREDMIRROR_RECONCILE_FETCH_DELAY", "7s")
	t.Setenv("PREDMIRROR_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "wss://env.example.org", cfg.Chain.RPCURL)
	assert.Equal(t, uint64(777), cfg.Backfill.StartBlock)
	assert.Equal(t, 0.01, cfg.History.PriceDelta)
	assert.Equal(t, 7*time.Second, cfg.Reconcile.FetchDelay.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
