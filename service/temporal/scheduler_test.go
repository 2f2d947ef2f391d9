package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleID(t *testing.T) {
	assert.Equal(t, "watch-wallet-rpc-"+testWallet, scheduleID(testWallet, "rpc"))
	assert.NotEqual(t, scheduleID(testWallet, "rpc"), scheduleID(testWallet, "helius"))
}

func TestMockScheduler(t *testing.T) {
	ctx := context.Background()
	var s Scheduler = NewMockScheduler()
	m := s.(*MockScheduler)

	// Upsert creates, then updates the interval
	require.NoError(t, s.UpsertWatchSchedule(ctx, testWallet, "rpc", time.Minute))
	require.NoError(t, s.UpsertWatchSchedule(ctx, testWallet, "rpc", time.Hour))
	interval, ok := m.ScheduleInterval(testWallet, "rpc")
	require.True(t, ok)
	assert.Equal(t, time.Hour, interval)
	assert.Equal(t, 1, m.ScheduleCount())

	// Different source is a different schedule
	require.NoError(t, s.UpsertWatchSchedule(ctx, testWallet, "helius", time.Minute))
	assert.Equal(t, 2, m.ScheduleCount())

	require.NoError(t, s.DeleteWatchSchedule(ctx, testWallet, "rpc"))
	_, ok = m.ScheduleInterval(testWallet, "rpc")
	assert.False(t, ok)
	assert.Error(t, s.DeleteWatchSchedule(ctx, testWallet, "rpc"))

	m.SetUpsertError(errors.New("temporal down"))
	assert.Error(t, s.UpsertWatchSchedule(ctx, testWallet, "rpc", time.Minute))

	m.Reset()
	assert.Equal(t, 0, m.ScheduleCount())
	assert.NoError(t, s.UpsertWatchSchedule(ctx, testWallet, "rpc", time.Minute))
}
