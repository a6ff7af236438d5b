package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docnum/internal/core/apperror"
)

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyStrict, s)

	s, err = ParseStrategy(" Cached ")
	require.NoError(t, err)
	assert.Equal(t, StrategyCached, s)

	_, err = ParseStrategy("random")
	assert.Error(t, err)
}

func TestSequenceStore_Strict(t *testing.T) {
	q := newMockQuerier()
	store := NewSequenceStore(Static(q), SequenceOptions{Strategy: StrategyStrict})
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.NextValue(ctx, "BGH")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 3, q.roundTrips(), "strict mode hits the database for every value")

	other, err := store.NextValue(ctx, "BFH")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "offices have independent counters")
}

func TestSequenceStore_Cached(t *testing.T) {
	q := newMockQuerier()
	store := NewSequenceStore(Static(q), SequenceOptions{Strategy: StrategyCached, RangeSize: 10})
	ctx := context.Background()

	// First call reserves 1..10.
	got, err := store.NextValue(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
	assert.Equal(t, int64(10), q.counters["BGH"])

	for i := 0; i < 9; i++ {
		_, err := store.NextValue(ctx, "BGH")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, q.roundTrips(), "values 2..10 come from memory")

	// Range exhausted: reserve 11..20.
	got, err = store.NextValue(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(11), got)
	assert.Equal(t, int64(20), q.counters["BGH"])
	assert.Equal(t, 2, q.roundTrips())
}

func TestSequenceStore_CachedConcurrentValuesAreDistinct(t *testing.T) {
	q := newMockQuerier()
	store := NewSequenceStore(Static(q), SequenceOptions{Strategy: StrategyCached, RangeSize: 7})
	ctx := context.Background()

	const n = 200
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := store.NextValue(ctx, "BGH")
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[v], "value %d handed out twice", v)
			seen[v] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestSequenceStore_SetNextInvalidatesCache(t *testing.T) {
	q := newMockQuerier()
	store := NewSequenceStore(Static(q), SequenceOptions{Strategy: StrategyCached, RangeSize: 10})
	ctx := context.Background()

	_, err := store.NextValue(ctx, "BGH")
	require.NoError(t, err)

	require.NoError(t, store.SetNext(ctx, "BGH", 100))
	assert.Equal(t, int64(99), q.counters["BGH"])
	notify := q.last()
	assert.Equal(t, "SELECT pg_notify($1, $2)", notify.sql)
	assert.Equal(t, []any{SequenceResetChannel, "BGH"}, notify.args)

	got, err := store.NextValue(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got, "the cached range 2..10 must not be served after SetNext")

	assert.Error(t, store.SetNext(ctx, "BGH", 0))
}

func TestSequenceStore_SetNextNeverRewinds(t *testing.T) {
	q := newMockQuerier()
	store := NewSequenceStore(Static(q), SequenceOptions{Strategy: StrategyStrict})
	ctx := context.Background()

	var issued []int64
	for i := 0; i < 3; i++ {
		v, err := store.NextValue(ctx, "BGH")
		require.NoError(t, err)
		issued = append(issued, v)
	}
	require.Equal(t, []int64{1, 2, 3}, issued)

	err := store.SetNext(ctx, "BGH", 1)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
	assert.Equal(t, int64(3), appErr.Details["current"])
	assert.Equal(t, int64(3), q.counters["BGH"], "counter unchanged")

	// Seeding exactly the following value is accepted and changes nothing.
	require.NoError(t, store.SetNext(ctx, "BGH", 4))

	next, err := store.NextValue(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(4), next)
	assert.NotContains(t, issued, next)
}

func TestSequenceStore_InvalidateDropsOnlyThatOffice(t *testing.T) {
	q := newMockQuerier()
	store := NewSequenceStore(Static(q), SequenceOptions{Strategy: StrategyCached, RangeSize: 10})
	ctx := context.Background()

	for _, office := range []string{"BGH", "BFH"} {
		_, err := store.NextValue(ctx, office)
		require.NoError(t, err)
	}
	before := q.roundTrips()

	store.Invalidate("BGH")

	got, err := store.NextValue(ctx, "BFH")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
	assert.Equal(t, before, q.roundTrips(), "BFH keeps its range")

	got, err = store.NextValue(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(11), got, "BGH reserves the next range")
}

func TestSequenceStore_Current(t *testing.T) {
	q := newMockQuerier()
	store := NewSequenceStore(Static(q), SequenceOptions{})
	ctx := context.Background()

	cur, err := store.Current(ctx, "BGH")
	require.NoError(t, err)
	assert.Zero(t, cur, "unused office reads as zero")

	_, err = store.NextValue(ctx, "BGH")
	require.NoError(t, err)
	cur, err = store.Current(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cur)

	last := q.last()
	assert.Equal(t, "SELECT current_val FROM sys_sequences WHERE office = $1", last.sql)
	assert.Equal(t, []any{"BGH"}, last.args)
}

func TestSequenceStore_DatabaseError(t *testing.T) {
	q := newMockQuerier()
	boom := errors.New("connection reset")
	q.err = boom
	store := NewSequenceStore(Static(q), SequenceOptions{Strategy: StrategyCached})

	_, err := store.NextValue(context.Background(), "BGH")
	assert.ErrorIs(t, err, boom)

	q.err = nil
	got, err := store.NextValue(context.Background(), "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "a failed reservation leaves no half-initialised range")
}
