package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RPCOnly(t *testing.T) {
	cleanupEnv()
	os.Setenv("SOLANA_RPC_URLS", "https://api.mainnet-beta.solana.com")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, []string{"https://api.mainnet-beta.solana.com"}, cfg.SolanaRPCURLs)
	assert.Equal(t, SourceRPC, cfg.DefaultSource)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, 100, cfg.SignatureLimit)
	assert.Equal(t, 4, cfg.RPCConcurrency)
	assert.Equal(t, 5.0, cfg.RPCRPS)
	assert.Equal(t, "usd", cfg.FiatCurrency)
	assert.Equal(t, "solana", cfg.PriceAssetID)
	assert.Equal(t, 60*time.Second, cfg.RateCacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.DefaultWatchInterval)
	assert.Equal(t, []string{SourceRPC}, cfg.Sources())
}

func TestLoad_HeliusBecomesDefaultSource(t *testing.T) {
	cleanupEnv()
	os.Setenv("HELIUS_API_KEY", "key")
	os.Setenv("SOLANA_RPC_URLS", "https://a.example.com, https://b.example.com ,")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SourceHelius, cfg.DefaultSource)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.SolanaRPCURLs)
	assert.Equal(t, "https://api.helius.xyz", cfg.HeliusBaseURL)
	assert.ElementsMatch(t, []string{SourceRPC, SourceHelius}, cfg.Sources())
}

func TestLoad_MissingSources(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "SOLANA_RPC_URLS or HELIUS_API_KEY is required")
}

func TestLoad_InvalidDuration(t *testing.T) {
	cleanupEnv()
	os.Setenv("HELIUS_API_KEY", "key")
	os.Setenv("RATE_CACHE_TTL", "invalid")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_InvalidInteger(t *testing.T) {
	cleanupEnv()
	os.Setenv("HELIUS_API_KEY", "key")
	os.Setenv("SIGNATURE_LIMIT", "lots")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid integer")
}

func TestLoad_CustomValues(t *testing.T) {
	cleanupEnv()
	os.Setenv("SOLANA_RPC_URLS", "https://rpc.example.com")
	os.Setenv("HELIUS_API_KEY", "secret-key")
	os.Setenv("HELIUS_BASE_URL", "https://helius.example.com/")
	os.Setenv("DEFAULT_SOURCE", "rpc")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("SIGNATURE_LIMIT", "25")
	os.Setenv("RPC_CONCURRENCY", "2")
	os.Setenv("RPC_RPS", "1.5")
	os.Setenv("FIAT_CURRENCY", "EUR")
	os.Setenv("REDIS_URL", "redis://localhost:6379/0")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("MIN_WATCH_INTERVAL", "30s")
	os.Setenv("DEFAULT_WATCH_INTERVAL", "2m")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, SourceRPC, cfg.DefaultSource)
	assert.Equal(t, "https://helius.example.com", cfg.HeliusBaseURL)
	assert.Equal(t, 25, cfg.SignatureLimit)
	assert.Equal(t, 2, cfg.RPCConcurrency)
	assert.Equal(t, 1.5, cfg.RPCRPS)
	assert.Equal(t, "eur", cfg.FiatCurrency)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, 30*time.Second, cfg.MinWatchInterval)
	assert.Equal(t, 2*time.Minute, cfg.DefaultWatchInterval)
}

func validConfig() *Config {
	return &Config{
		SolanaRPCURLs:        []string{"https://api.mainnet-beta.solana.com"},
		DefaultSource:        SourceRPC,
		SignatureLimit:       100,
		RPCConcurrency:       4,
		RPCRPS:               5,
		RequestTimeout:       time.Minute,
		DefaultWatchInterval: 5 * time.Minute,
		MinWatchInterval:     time.Minute,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:      "default source without key",
			mutate:    func(c *Config) { c.DefaultSource = SourceHelius },
			wantError: "requires HELIUS_API_KEY",
		},
		{
			name:      "unknown default source",
			mutate:    func(c *Config) { c.DefaultSource = "ftp" },
			wantError: "DEFAULT_SOURCE must be",
		},
		{
			name:      "limit too high",
			mutate:    func(c *Config) { c.SignatureLimit = MaxSignatureLimit + 1 },
			wantError: "SIGNATURE_LIMIT must be between",
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.RPCConcurrency = 0 },
			wantError: "RPC_CONCURRENCY must be at least 1",
		},
		{
			name:      "zero rps",
			mutate:    func(c *Config) { c.RPCRPS = 0 },
			wantError: "RPC_RPS must be positive",
		},
		{
			name: "min interval above default",
			mutate: func(c *Config) {
				c.MinWatchInterval = 10 * time.Minute
			},
			wantError: "cannot be greater than",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

func TestMustLoad_Panics(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	cleanupEnv()
	os.Setenv("HELIUS_API_KEY", "key")
	defer cleanupEnv()

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	for _, key := range []string{
		"SERVER_ADDR", "LOG_LEVEL", "REQUEST_TIMEOUT",
		"SOLANA_RPC_URLS", "RPC_CONCURRENCY", "RPC_RPS",
		"HELIUS_API_KEY", "HELIUS_BASE_URL", "DEFAULT_SOURCE", "SIGNATURE_LIMIT",
		"PRICE_API_URL", "PRICE_ASSET_ID", "FIAT_CURRENCY", "PRICE_TIMEOUT",
		"REDIS_URL", "RATE_CACHE_TTL", "DATABASE_URL", "NATS_URL",
		"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE",
		"DEFAULT_WATCH_INTERVAL", "MIN_WATCH_INTERVAL",
	} {
		os.Unsetenv(key)
	}
}
