package temporal

import (
	"fmt"
	"time"

	"github.com/brojonat/soltrack/service/report"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// WatchWalletWorkflow builds a report snapshot for one wallet and records it.
// It is triggered by a Temporal schedule at the watch interval.
//
// The workflow performs these steps:
// 1. Build a report snapshot from the configured source (BuildSnapshot activity)
// 2. Persist the snapshot when a store is configured (SaveSnapshot activity)
// 3. Announce the snapshot on NATS when a publisher is configured (PublishSnapshot activity)
//
// Only a failed build or save fails the workflow; a failed publish is logged.
func WatchWalletWorkflow(ctx workflow.Context, input WatchWalletInput) (*WatchWalletResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("WatchWalletWorkflow started", "address", input.Address, "source", input.Source)

	result := &WatchWalletResult{
		Address: input.Address,
		Source:  input.Source,
		RunTime: workflow.Now(ctx),
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: Build the snapshot
	var snapshot *report.Snapshot
	err := workflow.ExecuteActivity(ctx, a.BuildSnapshot, BuildSnapshotInput{
		Address: input.Address,
		Source:  input.Source,
		Limit:   input.Limit,
	}).Get(ctx, &snapshot)
	if err != nil {
		errMsg := fmt.Sprintf("failed to build snapshot: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to build snapshot: %w", err)
	}

	result.SnapshotID = snapshot.ID.String()
	result.TransferCount = snapshot.TransferCount
	result.SkippedCount = snapshot.SkippedCount
	result.Net = snapshot.Net

	logger.Info("built snapshot",
		"address", input.Address,
		"transfers", snapshot.TransferCount,
		"net", snapshot.Net,
	)

	// Step 2: Persist
	var saveResult *SaveSnapshotResult
	err = workflow.ExecuteActivity(ctx, a.SaveSnapshot, snapshot).Get(ctx, &saveResult)
	if err != nil {
		logger.Error("failed to save snapshot", "address", input.Address, "error", err)
		errMsg := fmt.Sprintf("failed to save snapshot: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to save snapshot: %w", err)
	}
	result.Saved = saveResult.Saved

	// Step 3: Publish
	var publishResult *PublishSnapshotResult
	err = workflow.ExecuteActivity(ctx, a.PublishSnapshot, snapshot).Get(ctx, &publishResult)
	if err != nil {
		logger.Warn("failed to publish snapshot", "address", input.Address, "error", err)
	} else {
		result.Published = publishResult.Published
	}

	logger.Info("WatchWalletWorkflow completed successfully",
		"address", input.Address,
		"saved", result.Saved,
		"published", result.Published,
	)

	return result, nil
}
