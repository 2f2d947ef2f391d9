package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/brojonat/soltrack/service/metrics"
)

// RateCache stores recently fetched rates.
type RateCache interface {
	Get(ctx context.Context, key string) (rate float64, ok bool, err error)
	Set(ctx context.Context, key string, rate float64, ttl time.Duration) error
}

// Provider looks up the fiat price of one unit of the native asset.
type Provider struct {
	baseURL    string
	assetID    string
	currency   string
	httpClient *http.Client
	cache      RateCache
	cacheTTL   time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewProvider creates a price provider against a CoinGecko-compatible simple price API.
// cache may be nil. If metrics is nil, no metrics are recorded.
func NewProvider(baseURL, assetID, currency string, timeout time.Duration, cache RateCache, cacheTTL time.Duration, m *metrics.Metrics, logger *slog.Logger) *Provider {
	return &Provider{
		baseURL:  baseURL,
		assetID:  assetID,
		currency: currency,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  m,
		logger:   logger,
	}
}

// Currency returns the fiat currency code rates are quoted in.
func (p *Provider) Currency() string {
	return p.currency
}

// Rate returns the current price, or 0 when it cannot be determined.
// Lookup failures are logged and never returned to the caller.
func (p *Provider) Rate(ctx context.Context) float64 {
	key := p.cacheKey()
	if p.cache != nil {
		rate, ok, err := p.cache.Get(ctx, key)
		switch {
		case err != nil:
			p.metrics.RecordRateCache("error")
			p.logger.WarnContext(ctx, "rate cache read failed", "key", key, "error", err)
		case ok:
			p.metrics.RecordRateCache("hit")
			return rate
		default:
			p.metrics.RecordRateCache("miss")
		}
	}

	rate, err := p.fetch(ctx)
	if err != nil {
		p.metrics.RecordRateLookup("error")
		p.logger.WarnContext(ctx, "fiat rate lookup failed, using zero",
			"asset", p.assetID,
			"currency", p.currency,
			"error", err,
		)
		return 0
	}
	p.metrics.RecordRateLookup("success")

	if p.cache != nil && rate > 0 {
		if err := p.cache.Set(ctx, key, rate, p.cacheTTL); err != nil {
			p.metrics.RecordRateCache("error")
			p.logger.WarnContext(ctx, "rate cache write failed", "key", key, "error", err)
		}
	}
	return rate
}

func (p *Provider) cacheKey() string {
	return fmt.Sprintf("soltrack:rate:%s:%s", p.assetID, p.currency)
}

func (p *Provider) fetch(ctx context.Context) (float64, error) {
	params := url.Values{}
	params.Set("ids", p.assetID)
	params.Set("vs_currencies", p.currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/v3/simple/price?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("price API returned status %d: %s", resp.StatusCode, string(body))
	}

	var prices map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}

	rate, ok := prices[p.assetID][p.currency]
	if !ok {
		return 0, fmt.Errorf("no %s price for %s", p.currency, p.assetID)
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return 0, fmt.Errorf("unusable rate %v", rate)
	}
	return rate, nil
}
