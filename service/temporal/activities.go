package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	natspkg "github.com/brojonat/soltrack/service/nats"
	"github.com/brojonat/soltrack/service/report"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// WatchWalletInput contains the input parameters for a scheduled wallet watch.
type WatchWalletInput struct {
	Address string `json:"address"`
	Source  string `json:"source"`
	Limit   int    `json:"limit"` // 0 uses the builder default
}

// WatchWalletResult contains the result of one watch run.
type WatchWalletResult struct {
	Address       string    `json:"address"`
	Source        string    `json:"source"`
	SnapshotID    string    `json:"snapshot_id,omitempty"`
	TransferCount int       `json:"transfer_count"`
	SkippedCount  int       `json:"skipped_count"`
	Net           float64   `json:"net"`
	Saved         bool      `json:"saved"`
	Published     bool      `json:"published"`
	RunTime       time.Time `json:"run_time"`
	Error         *string   `json:"error,omitempty"`
}

// BuildSnapshotInput contains parameters for the BuildSnapshot activity.
type BuildSnapshotInput struct {
	Address string `json:"address"`
	Source  string `json:"source"`
	Limit   int    `json:"limit"`
}

// SaveSnapshotResult contains the result of the SaveSnapshot activity.
type SaveSnapshotResult struct {
	Saved bool `json:"saved"` // false when no store is configured
}

// PublishSnapshotResult contains the result of the PublishSnapshot activity.
type PublishSnapshotResult struct {
	Published bool `json:"published"` // false when no publisher is configured
}

// ReportBuilder builds wallet reports.
type ReportBuilder interface {
	Build(ctx context.Context, req report.Request) (*report.Report, error)
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	SaveSnapshot(ctx context.Context, snap *report.Snapshot) error
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishReport(ctx context.Context, event *natspkg.ReportEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// Store and publisher are optional.
type Activities struct {
	builder   ReportBuilder
	store     StoreInterface
	publisher PublisherInterface
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
func NewActivities(builder ReportBuilder, store StoreInterface, publisher PublisherInterface, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		builder:   builder,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// BuildSnapshot builds a report and returns its summary row.
// Validation failures are not retried.
func (a *Activities) BuildSnapshot(ctx context.Context, input BuildSnapshotInput) (*report.Snapshot, error) {
	a.logger.DebugContext(ctx, "building snapshot",
		"address", input.Address,
		"source", input.Source,
	)

	rep, err := a.builder.Build(ctx, report.Request{
		Address: input.Address,
		Source:  input.Source,
		Limit:   input.Limit,
	})
	if err != nil {
		if errors.Is(err, report.ErrInvalidAddress) || errors.Is(err, report.ErrUnknownSource) || errors.Is(err, report.ErrInvalidLimit) {
			return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), "InvalidRequest", err)
		}
		a.logger.ErrorContext(ctx, "failed to build report",
			"address", input.Address,
			"error", err,
		)
		return nil, fmt.Errorf("failed to build report: %w", err)
	}

	return rep.Snapshot(), nil
}

// SaveSnapshot persists the snapshot when a store is configured.
func (a *Activities) SaveSnapshot(ctx context.Context, snap *report.Snapshot) (*SaveSnapshotResult, error) {
	if a.store == nil {
		return &SaveSnapshotResult{Saved: false}, nil
	}
	if err := a.store.SaveSnapshot(ctx, snap); err != nil {
		a.logger.ErrorContext(ctx, "failed to save snapshot",
			"address", snap.Address,
			"snapshot_id", snap.ID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	a.logger.DebugContext(ctx, "saved snapshot", "address", snap.Address, "snapshot_id", snap.ID)
	return &SaveSnapshotResult{Saved: true}, nil
}

// PublishSnapshot announces the snapshot when a publisher is configured.
func (a *Activities) PublishSnapshot(ctx context.Context, snap *report.Snapshot) (*PublishSnapshotResult, error) {
	if a.publisher == nil {
		return &PublishSnapshotResult{Published: false}, nil
	}
	if err := a.publisher.PublishReport(ctx, natspkg.FromSnapshot(snap)); err != nil {
		return nil, fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return &PublishSnapshotResult{Published: true}, nil
}
