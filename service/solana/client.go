package solana

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/soltrack/service/metrics"
	"github.com/brojonat/soltrack/service/transfer"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

const maxAttempts = 3

// Client fetches a wallet's recent transactions over JSON-RPC and returns them
// in the balance-delta shape.
type Client struct {
	rpc         RPCClient
	logger      *slog.Logger
	metrics     *metrics.Metrics
	endpoint    string // RPC endpoint identifier for metrics (e.g. rpc host)
	concurrency int
	limiter     *rate.Limiter
	baseBackoff time.Duration
}

// NewClient creates a new Solana client.
// concurrency bounds in-flight GetTransaction calls and rps bounds their rate.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, concurrency int, rps float64, m *metrics.Metrics, logger *slog.Logger) *Client {
	if concurrency < 1 {
		concurrency = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		rpc:         rpcClient,
		logger:      logger,
		metrics:     m,
		endpoint:    endpoint,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(limit, concurrency),
		baseBackoff: time.Second,
	}
}

// FetchTransactions returns up to limit of the address's most recent transactions,
// newest first. Only the signature listing is fatal: a transaction whose detail
// lookup keeps failing is returned with FetchErr set so callers can skip it.
func (c *Client) FetchTransactions(ctx context.Context, address string, limit int) ([]transfer.RawTransaction, error) {
	wallet, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	opts := &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	}

	start := time.Now()
	signatures, err := c.rpc.GetSignaturesForAddress(ctx, wallet, opts)
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall("GetSignaturesForAddress", status, c.endpoint, time.Since(start).Seconds())
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"wallet", address,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}
	c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(signatures)))

	c.logger.DebugContext(ctx, "fetched transaction signatures",
		"wallet", address,
		"count", len(signatures),
	)

	// Each goroutine writes only its own index so source order survives.
	txns := make([]transfer.RawTransaction, len(signatures))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, sig := range signatures {
		g.Go(func() error {
			if err := c.limiter.Wait(gctx); err != nil {
				return err
			}
			result, err := c.fetchTransaction(gctx, sig.Signature)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.WarnContext(gctx, "failed to get transaction details after retries",
					"signature", sig.Signature.String(),
					"error", err,
				)
				txns[i] = failedTransaction(sig, err)
				return nil
			}
			txns[i] = convertTransaction(sig, result)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "fetched transactions",
		"wallet", address,
		"count", len(txns),
	)

	return txns, nil
}

// fetchTransaction fetches a single transaction, retrying with exponential backoff.
// Rate-limit responses back off twice as long as other failures.
func (c *Client) fetchTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	var lastErr error
	for attempt := range maxAttempts {
		txnOpts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		}
		result, err := c.getTransaction(ctx, sig, txnOpts)
		if err == nil {
			if result == nil {
				return nil, fmt.Errorf("transaction not found")
			}
			return result, nil
		}
		lastErr = err

		// Handle parsing errors for legacy transactions
		if strings.Contains(err.Error(), "expects '\"' or 'n', but found '{'") {
			c.logger.WarnContext(ctx, "could not parse as versioned tx, retrying as legacy",
				"signature", sig.String(),
			)
			c.metrics.RecordRPCRetry("GetTransaction", "parse_error")

			result, err = c.getTransaction(ctx, sig, &rpc.GetTransactionOpts{Encoding: solana.EncodingBase64})
			if err == nil {
				if result == nil {
					return nil, fmt.Errorf("transaction not found")
				}
				return result, nil
			}
			lastErr = err
		}

		if attempt == maxAttempts-1 {
			break
		}

		backoff := c.baseBackoff << uint(attempt) // 1s, 2s
		reason := "timeout_or_error"
		if strings.Contains(lastErr.Error(), "429") {
			backoff *= 2 // 2s, 4s
			reason = "rate_limit"
			c.metrics.RecordRateLimitHit(c.endpoint)
		}
		c.logger.WarnContext(ctx, "failed to get transaction on attempt",
			"signature", sig.String(),
			"attempt", attempt+1,
			"error", lastErr,
			"backoff_seconds", backoff.Seconds(),
		)
		c.metrics.RecordRPCRetry("GetTransaction", reason)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

func (c *Client) getTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	start := time.Now()
	result, err := c.rpc.GetTransaction(ctx, sig, opts)
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall("GetTransaction", status, c.endpoint, time.Since(start).Seconds())
	return result, err
}
