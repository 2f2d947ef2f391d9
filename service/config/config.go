package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Source names accepted by DEFAULT_SOURCE and the report API.
const (
	SourceRPC    = "rpc"
	SourceHelius = "helius"
)

// MaxSignatureLimit caps how many transactions a single report may fetch.
const MaxSignatureLimit = 1000

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr     string
	LogLevel       string
	RequestTimeout time.Duration

	// Solana JSON-RPC source
	SolanaRPCURLs  []string
	RPCConcurrency int
	RPCRPS         float64

	// Helius indexing API source
	HeliusAPIKey  string
	HeliusBaseURL string

	DefaultSource  string
	SignatureLimit int

	// Fiat rate lookup
	PriceAPIURL  string
	PriceAssetID string
	FiatCurrency string
	PriceTimeout time.Duration
	RedisURL     string // optional; enables the rate cache
	RateCacheTTL time.Duration

	// Optional infrastructure
	DatabaseURL string
	NATSURL     string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Watch configuration
	DefaultWatchInterval time.Duration
	MinWatchInterval     time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.SolanaRPCURLs = parseList(os.Getenv("SOLANA_RPC_URLS"))
	cfg.HeliusAPIKey = os.Getenv("HELIUS_API_KEY")
	cfg.HeliusBaseURL = strings.TrimRight(getEnvOrDefault("HELIUS_BASE_URL", "https://api.helius.xyz"), "/")

	if len(cfg.SolanaRPCURLs) == 0 && cfg.HeliusAPIKey == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URLS or HELIUS_API_KEY is required"))
	}

	defaultSource := SourceRPC
	if cfg.HeliusAPIKey != "" {
		defaultSource = SourceHelius
	}
	cfg.DefaultSource = getEnvOrDefault("DEFAULT_SOURCE", defaultSource)

	cfg.PriceAPIURL = strings.TrimRight(getEnvOrDefault("PRICE_API_URL", "https://api.coingecko.com"), "/")
	cfg.PriceAssetID = getEnvOrDefault("PRICE_ASSET_ID", "solana")
	cfg.FiatCurrency = strings.ToLower(getEnvOrDefault("FIAT_CURRENCY", "usd"))
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "soltrack-watch")

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"SIGNATURE_LIMIT", 100, &cfg.SignatureLimit},
		{"RPC_CONCURRENCY", 4, &cfg.RPCConcurrency},
	}
	for _, v := range ints {
		n, err := parseInt(v.key, v.def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*v.dest = n
	}

	rps, err := parseFloat("RPC_RPS", 5)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCRPS = rps
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"REQUEST_TIMEOUT", "60s", &cfg.RequestTimeout},
		{"PRICE_TIMEOUT", "10s", &cfg.PriceTimeout},
		{"RATE_CACHE_TTL", "60s", &cfg.RateCacheTTL},
		{"DEFAULT_WATCH_INTERVAL", "5m", &cfg.DefaultWatchInterval},
		{"MIN_WATCH_INTERVAL", "1m", &cfg.MinWatchInterval},
	}
	for _, v := range durations {
		d, err := parseDuration(v.key, v.def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*v.dest = d
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SolanaRPCURLs) == 0 && c.HeliusAPIKey == "" {
		errs = append(errs, fmt.Errorf("at least one source (SolanaRPCURLs or HeliusAPIKey) is required"))
	}

	switch c.DefaultSource {
	case SourceRPC:
		if len(c.SolanaRPCURLs) == 0 {
			errs = append(errs, fmt.Errorf("DEFAULT_SOURCE %q requires SOLANA_RPC_URLS", c.DefaultSource))
		}
	case SourceHelius:
		if c.HeliusAPIKey == "" {
			errs = append(errs, fmt.Errorf("DEFAULT_SOURCE %q requires HELIUS_API_KEY", c.DefaultSource))
		}
	default:
		errs = append(errs, fmt.Errorf("DEFAULT_SOURCE must be %q or %q, got %q", SourceRPC, SourceHelius, c.DefaultSource))
	}

	if c.SignatureLimit < 1 || c.SignatureLimit > MaxSignatureLimit {
		errs = append(errs, fmt.Errorf("SIGNATURE_LIMIT must be between 1 and %d", MaxSignatureLimit))
	}

	if c.RPCConcurrency < 1 {
		errs = append(errs, fmt.Errorf("RPC_CONCURRENCY must be at least 1"))
	}

	if c.RPCRPS <= 0 {
		errs = append(errs, fmt.Errorf("RPC_RPS must be positive"))
	}

	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be positive"))
	}

	if c.MinWatchInterval > c.DefaultWatchInterval {
		errs = append(errs, fmt.Errorf("MIN_WATCH_INTERVAL (%v) cannot be greater than DEFAULT_WATCH_INTERVAL (%v)",
			c.MinWatchInterval, c.DefaultWatchInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// Sources lists the sources this configuration can serve.
func (c *Config) Sources() []string {
	var out []string
	if len(c.SolanaRPCURLs) > 0 {
		out = append(out, SourceRPC)
	}
	if c.HeliusAPIKey != "" {
		out = append(out, SourceHelius)
	}
	return out
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

// parseList splits a comma separated value, dropping blanks.
func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
