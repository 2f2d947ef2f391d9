package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	natspkg "github.com/brojonat/soltrack/service/nats"
	"github.com/brojonat/soltrack/service/report"
	"github.com/brojonat/soltrack/service/transfer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// Mock report builder
type MockBuilder struct {
	mock.Mock
}

func (m *MockBuilder) Build(ctx context.Context, req report.Request) (*report.Report, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*report.Report), args.Error(1)
}

// Mock Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveSnapshot(ctx context.Context, snap *report.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

// Mock Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishReport(ctx context.Context, event *natspkg.ReportEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func testReport() *report.Report {
	return &report.Report{
		ID:               uuid.New(),
		Address:          testWallet,
		Source:           "rpc",
		Currency:         "usd",
		TransactionCount: 2,
		Transfers: []transfer.NormalizedTransfer{
			{TxHash: "sig1", Amount: 1.5},
		},
		Summary: transfer.ProfitSummary{Received: 1.5, Net: 1.5},
		Fiat:    transfer.FiatSummary{Rate: 10, Net: 15},
		Skipped: []transfer.Outcome{{Signature: "sig2", Skip: transfer.SkipFetchFailed}},
	}
}

func TestActivities_BuildSnapshot(t *testing.T) {
	tests := []struct {
		name          string
		setupMock     func(*MockBuilder)
		expectedError bool
		nonRetryable  bool
	}{
		{
			name: "successful build",
			setupMock: func(m *MockBuilder) {
				m.On("Build", mock.Anything, report.Request{Address: testWallet, Source: "rpc", Limit: 10}).
					Return(testReport(), nil)
			},
		},
		{
			name: "transport failure is retryable",
			setupMock: func(m *MockBuilder) {
				m.On("Build", mock.Anything, mock.Anything).
					Return(nil, errors.New("connection refused"))
			},
			expectedError: true,
		},
		{
			name: "invalid address is not retried",
			setupMock: func(m *MockBuilder) {
				m.On("Build", mock.Anything, mock.Anything).
					Return(nil, fmt.Errorf("%w: %q", report.ErrInvalidAddress, "bad"))
			},
			expectedError: true,
			nonRetryable:  true,
		},
		{
			name: "unknown source is not retried",
			setupMock: func(m *MockBuilder) {
				m.On("Build", mock.Anything, mock.Anything).
					Return(nil, report.ErrUnknownSource)
			},
			expectedError: true,
			nonRetryable:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			builder := new(MockBuilder)
			tt.setupMock(builder)
			activities := NewActivities(builder, nil, nil, slog.Default())

			// Act
			snap, err := activities.BuildSnapshot(context.Background(), BuildSnapshotInput{
				Address: testWallet,
				Source:  "rpc",
				Limit:   10,
			})

			// Assert
			if tt.expectedError {
				require.Error(t, err)
				assert.Nil(t, snap)
				var appErr *temporalsdk.ApplicationError
				if tt.nonRetryable {
					require.ErrorAs(t, err, &appErr)
					assert.True(t, appErr.NonRetryable())
				} else {
					assert.False(t, errors.As(err, &appErr))
				}
				return
			}
			require.NoError(t, err)
			require.NotNil(t, snap)
			assert.Equal(t, testWallet, snap.Address)
			assert.Equal(t, 1, snap.TransferCount)
			assert.Equal(t, 1, snap.SkippedCount)
			assert.Equal(t, 1.5, snap.Net)
			assert.Equal(t, 15.0, snap.FiatNet)
			builder.AssertExpectations(t)
		})
	}
}

func TestActivities_SaveSnapshot(t *testing.T) {
	t.Run("saves when store configured", func(t *testing.T) {
		// Setup
		store := new(MockStore)
		snap := testSnapshot()
		store.On("SaveSnapshot", mock.Anything, snap).Return(nil)
		activities := NewActivities(new(MockBuilder), store, nil, slog.Default())

		// Act
		result, err := activities.SaveSnapshot(context.Background(), snap)

		// Assert
		require.NoError(t, err)
		assert.True(t, result.Saved)
		store.AssertExpectations(t)
	})

	t.Run("store error", func(t *testing.T) {
		store := new(MockStore)
		store.On("SaveSnapshot", mock.Anything, mock.Anything).Return(errors.New("db down"))
		activities := NewActivities(new(MockBuilder), store, nil, slog.Default())

		result, err := activities.SaveSnapshot(context.Background(), testSnapshot())

		require.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), "db down")
	})

	t.Run("no store configured", func(t *testing.T) {
		activities := NewActivities(new(MockBuilder), nil, nil, slog.Default())

		result, err := activities.SaveSnapshot(context.Background(), testSnapshot())

		require.NoError(t, err)
		assert.False(t, result.Saved)
	})
}

func TestActivities_PublishSnapshot(t *testing.T) {
	t.Run("publishes event built from snapshot", func(t *testing.T) {
		// Setup
		publisher := new(MockPublisher)
		snap := testSnapshot()
		publisher.On("PublishReport", mock.Anything, mock.MatchedBy(func(e *natspkg.ReportEvent) bool {
			return e.ReportID == snap.ID && e.Address == testWallet && e.Net == 2.5 && e.TransferCount == 3
		})).Return(nil)
		activities := NewActivities(new(MockBuilder), nil, publisher, slog.Default())

		// Act
		result, err := activities.PublishSnapshot(context.Background(), snap)

		// Assert
		require.NoError(t, err)
		assert.True(t, result.Published)
		publisher.AssertExpectations(t)
	})

	t.Run("publisher error", func(t *testing.T) {
		publisher := new(MockPublisher)
		publisher.On("PublishReport", mock.Anything, mock.Anything).Return(errors.New("nats down"))
		activities := NewActivities(new(MockBuilder), nil, publisher, slog.Default())

		result, err := activities.PublishSnapshot(context.Background(), testSnapshot())

		require.Error(t, err)
		assert.Nil(t, result)
	})

	t.Run("no publisher configured", func(t *testing.T) {
		activities := NewActivities(new(MockBuilder), nil, nil, slog.Default())

		result, err := activities.PublishSnapshot(context.Background(), testSnapshot())

		require.NoError(t, err)
		assert.False(t, result.Published)
	})
}
