package report

import (
	"time"

	"github.com/brojonat/soltrack/service/transfer"
	"github.com/google/uuid"
)

// Report is the full transfer history and profit summary for one wallet.
type Report struct {
	ID               uuid.UUID                     `json:"id"`
	Address          string                        `json:"address"`
	Source           string                        `json:"source"`
	Currency         string                        `json:"currency"`
	GeneratedAt      time.Time                     `json:"generated_at"`
	TransactionCount int                           `json:"transaction_count"`
	Transfers        []transfer.NormalizedTransfer `json:"transfers"`
	Summary          transfer.ProfitSummary        `json:"summary"`
	Fiat             transfer.FiatSummary          `json:"fiat"`
	TokenActivity    []transfer.TokenActivity      `json:"token_activity"`
	Skipped          []transfer.Outcome            `json:"skipped"`
}

// Empty reports whether no transfer involved the wallet.
func (r *Report) Empty() bool {
	return len(r.Transfers) == 0
}

// Snapshot is the persisted, summary-only form of a report.
type Snapshot struct {
	ID               uuid.UUID `json:"id"`
	Address          string    `json:"address"`
	Source           string    `json:"source"`
	Currency         string    `json:"currency"`
	GeneratedAt      time.Time `json:"generated_at"`
	TransactionCount int       `json:"transaction_count"`
	TransferCount    int       `json:"transfer_count"`
	SkippedCount     int       `json:"skipped_count"`
	Received         float64   `json:"received"`
	Sent             float64   `json:"sent"`
	Net              float64   `json:"net"`
	Rate             float64   `json:"rate"`
	FiatNet          float64   `json:"fiat_net"`
}

// Snapshot derives the summary row for persistence and events.
func (r *Report) Snapshot() *Snapshot {
	return &Snapshot{
		ID:               r.ID,
		Address:          r.Address,
		Source:           r.Source,
		Currency:         r.Currency,
		GeneratedAt:      r.GeneratedAt,
		TransactionCount: r.TransactionCount,
		TransferCount:    len(r.Transfers),
		SkippedCount:     len(r.Skipped),
		Received:         r.Summary.Received,
		Sent:             r.Summary.Sent,
		Net:              r.Summary.Net,
		Rate:             r.Fiat.Rate,
		FiatNet:          r.Fiat.Net,
	}
}
