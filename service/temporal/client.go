package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	limit     int
	logger    *slog.Logger
}

// NewClient creates a new Temporal client. limit is the signature limit passed to
// every scheduled run; 0 leaves the choice to the worker's builder.
func NewClient(host, namespace, taskQueue string, limit int, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		limit:     limit,
		logger:    logger,
	}, nil
}

func (c *Client) createWatchSchedule(ctx context.Context, address, source string, interval time.Duration) error {
	id := scheduleID(address, source)

	workflowAction := client.ScheduleWorkflowAction{
		ID:        id,
		Workflow:  "WatchWalletWorkflow",
		TaskQueue: c.taskQueue,
		Args: []interface{}{WatchWalletInput{
			Address: address,
			Source:  source,
			Limit:   c.limit,
		}},
	}

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: &workflowAction,
		Memo: map[string]interface{}{
			"wallet_address": address,
			"source":         source,
			"created_by":     "soltrack",
		},
	})
	if err != nil {
		c.logger.Error("failed to create schedule",
			"address", address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.Info("watch schedule created",
		"address", address,
		"source", source,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// UpsertWatchSchedule creates or updates the Temporal schedule for a watched wallet.
// If the schedule already exists, only its interval changes.
func (c *Client) UpsertWatchSchedule(ctx context.Context, address, source string, interval time.Duration) error {
	id := scheduleID(address, source)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", id,
			"error", err,
		)
		return c.createWatchSchedule(ctx, address, source, interval)
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule",
			"address", address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to update schedule %q: %w", id, err)
	}

	c.logger.Info("watch schedule updated",
		"address", address,
		"source", source,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// DeleteWatchSchedule deletes the Temporal schedule for a watched wallet.
func (c *Client) DeleteWatchSchedule(ctx context.Context, address, source string) error {
	id := scheduleID(address, source)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule",
			"address", address,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}

	c.logger.Info("watch schedule deleted",
		"address", address,
		"source", source,
		"schedule_id", id,
	)
	return nil
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
