package helius

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brojonat/soltrack/service/metrics"
	"github.com/brojonat/soltrack/service/transfer"
)

// pageSize is the maximum number of transactions per Helius API call.
const pageSize = 100

// Client communicates with the Helius Enhanced Transactions API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a new Helius API client. If metrics is nil, no metrics are recorded.
func NewClient(apiKey, baseURL string, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: m,
		logger:  logger,
	}
}

// FetchTransactions retrieves up to limit of the address's most recent transactions,
// newest first, following the before cursor across pages.
func (c *Client) FetchTransactions(ctx context.Context, address string, limit int) ([]transfer.RawTransaction, error) {
	var out []transfer.RawTransaction
	var beforeSig string

	for len(out) < limit {
		size := min(pageSize, limit-len(out))
		txns, err := c.fetchPage(ctx, address, beforeSig, size)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", len(out)/pageSize, err)
		}

		for _, tx := range txns {
			out = append(out, toRaw(tx))
		}

		c.logger.DebugContext(ctx, "fetched helius page",
			"address", address,
			"page_count", len(txns),
			"total", len(out),
		)

		// A short page means there is nothing older to fetch.
		if len(txns) < size {
			break
		}
		beforeSig = txns[len(txns)-1].Signature
	}

	c.logger.InfoContext(ctx, "fetched transactions",
		"wallet", address,
		"count", len(out),
	)
	return out, nil
}

// fetchPage retrieves a single page of enhanced transactions.
func (c *Client) fetchPage(ctx context.Context, address, beforeSig string, size int) (txns []EnhancedTransaction, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordIndexerCall(status, time.Since(start).Seconds())
	}()

	endpoint := fmt.Sprintf("%s/v0/addresses/%s/transactions", c.baseURL, url.PathEscape(address))

	params := url.Values{}
	params.Set("api-key", c.apiKey)
	params.Set("limit", strconv.Itoa(size))
	if beforeSig != "" {
		params.Set("before", beforeSig)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("helius API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(&txns); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return txns, nil
}

func toRaw(tx EnhancedTransaction) transfer.RawTransaction {
	raw := transfer.RawTransaction{
		Signature: tx.Signature,
		Timestamp: tx.Timestamp,
		Shape:     transfer.ShapeEvent,
	}
	for _, nt := range tx.NativeTransfers {
		raw.NativeTransfers = append(raw.NativeTransfers, transfer.NativeTransfer{
			From:   nt.FromUserAccount,
			To:     nt.ToUserAccount,
			Amount: nt.Amount,
		})
	}
	return raw
}
