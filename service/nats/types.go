package nats

import (
	"time"

	"github.com/brojonat/soltrack/service/report"
	"github.com/google/uuid"
)

// ReportEvent announces a freshly built wallet report snapshot.
// It is published to the subject "reports.{address}" in JetStream.
type ReportEvent struct {
	ReportID uuid.UUID `json:"report_id"`
	Address  string    `json:"address"`
	Source   string    `json:"source"`
	Currency string    `json:"currency"`

	TransactionCount int `json:"transaction_count"`
	TransferCount    int `json:"transfer_count"`
	SkippedCount     int `json:"skipped_count"`

	Received float64 `json:"received"`
	Sent     float64 `json:"sent"`
	Net      float64 `json:"net"`
	Rate     float64 `json:"rate"`
	FiatNet  float64 `json:"fiat_net"`

	GeneratedAt time.Time `json:"generated_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromSnapshot converts a report snapshot to a ReportEvent for publishing.
func FromSnapshot(s *report.Snapshot) *ReportEvent {
	return &ReportEvent{
		ReportID:         s.ID,
		Address:          s.Address,
		Source:           s.Source,
		Currency:         s.Currency,
		TransactionCount: s.TransactionCount,
		TransferCount:    s.TransferCount,
		SkippedCount:     s.SkippedCount,
		Received:         s.Received,
		Sent:             s.Sent,
		Net:              s.Net,
		Rate:             s.Rate,
		FiatNet:          s.FiatNet,
		GeneratedAt:      s.GeneratedAt,
		PublishedAt:      time.Now().UTC(),
	}
}
