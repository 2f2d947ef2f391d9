package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/brojonat/soltrack/service/config"
	"github.com/brojonat/soltrack/service/metrics"
	"github.com/brojonat/soltrack/service/transfer"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

var (
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrUnknownSource  = errors.New("unknown source")
	ErrInvalidLimit   = errors.New("invalid limit")
)

// Source fetches a wallet's recent transactions, newest first.
type Source interface {
	FetchTransactions(ctx context.Context, address string, limit int) ([]transfer.RawTransaction, error)
}

// RateProvider returns the fiat price of one SOL, or 0 when unknown.
type RateProvider interface {
	Rate(ctx context.Context) float64
}

// Request selects what to report on. Zero Source and Limit fall back to the builder defaults.
type Request struct {
	Address string
	Source  string
	Limit   int
}

// Builder assembles reports from a set of named sources.
type Builder struct {
	sources       map[string]Source
	defaultSource string
	defaultLimit  int
	rates         RateProvider
	currency      string
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewBuilder creates a report builder. rates may be nil, in which case fiat figures are zero.
// If metrics is nil, no metrics are recorded.
func NewBuilder(sources map[string]Source, defaultSource string, defaultLimit int, rates RateProvider, currency string, m *metrics.Metrics, logger *slog.Logger) *Builder {
	return &Builder{
		sources:       sources,
		defaultSource: defaultSource,
		defaultLimit:  defaultLimit,
		rates:         rates,
		currency:      currency,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// Sources lists the configured source names in sorted order.
func (b *Builder) Sources() []string {
	names := make([]string, 0, len(b.sources))
	for name := range b.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Normalize fills defaults and validates req without fetching anything.
func (b *Builder) Normalize(req Request) (Request, error) {
	if _, err := solana.PublicKeyFromBase58(req.Address); err != nil {
		return req, fmt.Errorf("%w: %q", ErrInvalidAddress, req.Address)
	}
	if req.Source == "" {
		req.Source = b.defaultSource
	}
	if _, ok := b.sources[req.Source]; !ok {
		return req, fmt.Errorf("%w: %q (available: %v)", ErrUnknownSource, req.Source, b.Sources())
	}
	if req.Limit == 0 {
		req.Limit = b.defaultLimit
	}
	if req.Limit < 1 || req.Limit > config.MaxSignatureLimit {
		return req, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidLimit, config.MaxSignatureLimit)
	}
	return req, nil
}

// Build fetches, normalizes and summarizes the wallet's transfers.
// Only validation and source transport failures are returned as errors; malformed
// transactions are listed in Report.Skipped.
func (b *Builder) Build(ctx context.Context, req Request) (rep *Report, err error) {
	req, err = b.Normalize(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		b.metrics.RecordReportBuild(req.Source, status, time.Since(start).Seconds())
	}()

	txns, err := b.sources[req.Source].FetchTransactions(ctx, req.Address, req.Limit)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to fetch transactions",
			"address", req.Address,
			"source", req.Source,
			"error", err,
		)
		return nil, fmt.Errorf("fetch transactions from %s: %w", req.Source, err)
	}
	b.metrics.RecordTransactionsFetched(req.Source, len(txns))

	transfers, outcomes := transfer.Extract(req.Address, txns)
	for _, t := range transfers {
		b.metrics.RecordTransferExtracted(t.Shape.String())
	}
	skipped := transfer.Skipped(outcomes)
	for _, s := range skipped {
		b.metrics.RecordTransactionSkipped(req.Source, string(s.Skip))
		b.logger.DebugContext(ctx, "skipped transaction",
			"signature", s.Signature,
			"reason", s.Skip,
		)
	}

	summary := transfer.Summarize(req.Address, transfers)

	var rate float64
	if b.rates != nil {
		rate = b.rates.Rate(ctx)
	}
	fiat := transfer.ApplyRate(transfers, summary, rate)
	transfer.SortByTimeDesc(transfers)

	rep = &Report{
		ID:               uuid.New(),
		Address:          req.Address,
		Source:           req.Source,
		Currency:         b.currency,
		GeneratedAt:      b.now().UTC(),
		TransactionCount: len(txns),
		Transfers:        transfers,
		Summary:          summary,
		Fiat:             fiat,
		TokenActivity:    transfer.TokenActivities(req.Address, txns),
		Skipped:          skipped,
	}

	// Encode as [] rather than null.
	if rep.Transfers == nil {
		rep.Transfers = []transfer.NormalizedTransfer{}
	}
	if rep.TokenActivity == nil {
		rep.TokenActivity = []transfer.TokenActivity{}
	}
	if rep.Skipped == nil {
		rep.Skipped = []transfer.Outcome{}
	}

	b.logger.InfoContext(ctx, "built report",
		"address", req.Address,
		"source", req.Source,
		"transactions", len(txns),
		"transfers", len(transfers),
		"skipped", len(skipped),
		"net", summary.Net,
	)

	return rep, nil
}
