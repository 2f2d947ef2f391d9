package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/brojonat/soltrack/service/config"
	"github.com/brojonat/soltrack/service/helius"
	"github.com/brojonat/soltrack/service/metrics"
	"github.com/brojonat/soltrack/service/price"
	"github.com/brojonat/soltrack/service/report"
	"github.com/brojonat/soltrack/service/solana"
)

// Sources builds one report.Source per configured backend, keyed by source name.
func Sources(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (map[string]report.Source, error) {
	sources := make(map[string]report.Source)

	if len(cfg.SolanaRPCURLs) > 0 {
		endpoint, err := solana.SelectRandomEndpoint(cfg.SolanaRPCURLs)
		if err != nil {
			return nil, err
		}
		sources[config.SourceRPC] = solana.NewClient(
			solana.NewRPCClient(endpoint),
			endpoint,
			cfg.RPCConcurrency,
			cfg.RPCRPS,
			m,
			logger,
		)
		logger.Info("initialized solana RPC source",
			"total_endpoints", len(cfg.SolanaRPCURLs),
			"concurrency", cfg.RPCConcurrency,
			"rps", cfg.RPCRPS,
		)
	}

	if cfg.HeliusAPIKey != "" {
		sources[config.SourceHelius] = helius.NewClient(cfg.HeliusAPIKey, cfg.HeliusBaseURL, cfg.RequestTimeout, m, logger)
		logger.Info("initialized helius source", "base_url", cfg.HeliusBaseURL)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no transaction source configured")
	}
	return sources, nil
}

// Builder wires the sources and the rate provider into a report builder.
// The returned cleanup releases the rate cache connection and must always be called.
func Builder(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*report.Builder, func(), error) {
	cleanup := func() {}

	sources, err := Sources(cfg, m, logger)
	if err != nil {
		return nil, cleanup, err
	}

	var cache price.RateCache
	if cfg.RedisURL != "" {
		redisCache, err := price.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			// Rates still resolve without the cache, just slower.
			logger.Warn("rate cache unavailable", "error", err)
		} else {
			cache = redisCache
			cleanup = func() {
				if err := redisCache.Close(); err != nil {
					logger.Error("failed to close rate cache", "error", err)
				}
			}
			logger.Info("rate cache enabled", "ttl", cfg.RateCacheTTL)
		}
	}

	rates := price.NewProvider(
		cfg.PriceAPIURL,
		cfg.PriceAssetID,
		cfg.FiatCurrency,
		cfg.PriceTimeout,
		cache,
		cfg.RateCacheTTL,
		m,
		logger,
	)

	builder := report.NewBuilder(sources, cfg.DefaultSource, cfg.SignatureLimit, rates, rates.Currency(), m, logger)
	return builder, cleanup, nil
}

// Logger creates a structured logger with the given log level.
func Logger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
