package temporal

import (
	"context"
	"time"
)

// Scheduler manages Temporal schedules for watched wallets.
// Each (address, source) pair gets its own schedule that triggers the WatchWalletWorkflow.
type Scheduler interface {
	// UpsertWatchSchedule creates the schedule or updates its interval if it already exists.
	UpsertWatchSchedule(ctx context.Context, address, source string, interval time.Duration) error

	// DeleteWatchSchedule deletes the schedule. The wallet is no longer snapshotted.
	DeleteWatchSchedule(ctx context.Context, address, source string) error
}

// scheduleID returns the Temporal schedule ID for a watched wallet.
func scheduleID(address, source string) string {
	return "watch-wallet-" + source + "-" + address
}
