package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "docnum/internal/core/context"
	"docnum/internal/core/numerator"
)

func newPool(t *testing.T, clock numerator.Clock) *numerator.RecyclingPool {
	t.Helper()
	registry, err := numerator.NewRegistry(map[string]string{
		"BGH": "KORE+++++JJJJ",
		"BFH": "STRE+++++JJJJ",
	}, numerator.DefaultRegistryOptions())
	require.NoError(t, err)
	return numerator.NewRecyclingPool(numerator.NewMemoryRecycleStore(clock), registry)
}

func TestNew_RegistersConfiguredJobs(t *testing.T) {
	pool := newPool(t, nil)
	gauges := func(context.Context) error { return nil }

	s, err := New(Config{
		PurgeSchedule:    "@daily",
		RecycleRetention: 24 * time.Hour,
		GaugeSchedule:    "*/5 * * * *",
	}, pool, gauges, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{JobPurgeRecycled, JobPoolGauges}, s.Jobs())

	s, err = New(Config{GaugeSchedule: "@every 1m"}, pool, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, s.Jobs(), "gauge job needs a gauge function")
}

func TestNew_RejectsBadConfig(t *testing.T) {
	pool := newPool(t, nil)

	_, err := New(Config{PurgeSchedule: "every tuesday", RecycleRetention: time.Hour}, pool, nil, nil)
	assert.ErrorContains(t, err, JobPurgeRecycled)

	_, err = New(Config{PurgeSchedule: "@daily"}, pool, nil, nil)
	assert.ErrorContains(t, err, "retention")
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	released := time.Date(2031, 1, 10, 12, 0, 0, 0, time.UTC)
	now := released

	pool := newPool(t, func() time.Time { return now })
	require.NoError(t, pool.Offer(ctx, "BGH", "KORE000012030"))
	now = released.Add(48 * time.Hour)
	require.NoError(t, pool.Offer(ctx, "BFH", "STRE000022030"))

	s, err := New(Config{PurgeSchedule: "@daily", RecycleRetention: 30 * time.Hour}, pool, nil, nil,
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	size, err := pool.Size(ctx, "BGH")
	require.NoError(t, err)
	assert.Zero(t, size)
	size, err = pool.Size(ctx, "BFH")
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestExecute_RecordsOnlySuccessfulRuns(t *testing.T) {
	fixed := time.Date(2031, 5, 1, 0, 0, 0, 0, time.UTC)
	s, err := New(Config{}, newPool(t, nil), nil, nil, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	s.execute("failing", func(context.Context) error { return errors.New("redis down") })
	_, ok := s.LastRun("failing")
	assert.False(t, ok)

	s.execute("ok", func(context.Context) error { return nil })
	last, ok := s.LastRun("ok")
	require.True(t, ok)
	assert.Equal(t, fixed, last)
}

func TestExecute_TracesEachRun(t *testing.T) {
	s, err := New(Config{}, newPool(t, nil), nil, nil)
	require.NoError(t, err)

	var ids []string
	job := func(ctx context.Context) error {
		tc := appctx.GetTrace(ctx)
		require.NotNil(t, tc)
		ids = append(ids, tc.RequestID)
		return nil
	}
	s.execute("a", job)
	s.execute("a", job)

	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, err := New(Config{}, newPool(t, nil), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
