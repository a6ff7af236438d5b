//go:build integration

package numerator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"docnum/internal/core/apperror"
	corenumerator "docnum/internal/core/numerator"
	"docnum/internal/infrastructure/cache"
	"docnum/internal/infrastructure/storage/postgres"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("docnum"),
		tcpostgres.WithUsername("docnum"),
		tcpostgres.WithPassword("docnum"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool.Pool
}

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	addr, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(addr)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestIntegration_SequenceStoreConcurrentProcesses(t *testing.T) {
	pool := startPostgres(t)
	db := postgres.NewTxManagerFromRawPool(pool)
	ctx := context.Background()

	// Two stores model two processes sharing one database.
	strict := NewSequenceStore(db, SequenceOptions{Strategy: StrategyStrict})
	cached := NewSequenceStore(db, SequenceOptions{Strategy: StrategyCached, RangeSize: 5})

	const perStore = 100
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]int)
	)
	for _, store := range []*SequenceStore{strict, cached} {
		for i := 0; i < perStore; i++ {
			wg.Add(1)
			go func(s *SequenceStore) {
				defer wg.Done()
				v, err := s.NextValue(ctx, "BGH")
				assert.NoError(t, err)
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}(store)
		}
	}
	wg.Wait()

	assert.Len(t, seen, 2*perStore)
	for v, n := range seen {
		assert.Equal(t, 1, n, "value %d returned %d times", v, n)
	}

	snapshot, err := strict.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "BGH", snapshot[0].Office)
}

func TestIntegration_RecordOracleAndUniqueIndex(t *testing.T) {
	pool := startPostgres(t)
	db := postgres.NewTxManagerFromRawPool(pool)
	ctx := context.Background()

	oracle, err := NewRecordOracle(db, "", "")
	require.NoError(t, err)

	exists, err := oracle.Exists(ctx, "KORE000012031")
	require.NoError(t, err)
	assert.False(t, exists)

	insert := `INSERT INTO case_law_documents (id, office, document_number) VALUES (gen_random_uuid(), 'BGH', $1)`
	_, err = pool.Exec(ctx, insert, "KORE000012031")
	require.NoError(t, err)

	exists, err = oracle.Exists(ctx, "KORE000012031")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = pool.Exec(ctx, insert, "KORE000012031")
	assert.True(t, postgres.IsUniqueViolation(err, postgres.RecordNumberConstraint))
}

// recycleStoreContract runs the same behaviour checks against every backend.
func recycleStoreContract(t *testing.T, store corenumerator.RecycleStore, now *time.Time) {
	ctx := context.Background()

	*now = time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Add(ctx, "BGH", "KORE000022030"))
	*now = now.Add(time.Hour)
	require.NoError(t, store.Add(ctx, "BGH", "KORE000012030"))
	require.NoError(t, store.Add(ctx, "BGH", "KORE000022030"), "re-adding is a no-op")
	require.NoError(t, store.Add(ctx, "BFH", "STRE000012030"))

	n, err := store.Count(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	listed, err := store.List(ctx, "BGH", 10)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "KORE000022030", listed[0].Number, "oldest release first")

	number, ok, err := store.Pop(ctx, "BGH")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "KORE000022030", number)

	removed, err := store.PurgeOlderThan(ctx, time.Date(2031, 1, 1, 0, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = store.Purge(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok, err = store.Pop(ctx, "BGH")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err = store.PurgeOlderThan(ctx, time.Date(2032, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestIntegration_RecycleStorePostgres(t *testing.T) {
	pool := startPostgres(t)
	var now time.Time
	store := NewRecycleStore(postgres.NewTxManagerFromRawPool(pool), func() time.Time { return now })
	recycleStoreContract(t, store, &now)
}

func TestIntegration_RecycleStoreRedis(t *testing.T) {
	client := startRedis(t)
	var now time.Time
	store := NewRedisRecycleStore(client, "test", func() time.Time { return now })
	recycleStoreContract(t, store, &now)
}

func TestIntegration_ConcurrentPopHandsOutOnce(t *testing.T) {
	pool := startPostgres(t)
	client := startRedis(t)
	ctx := context.Background()

	stores := map[string]corenumerator.RecycleStore{
		"postgres": NewRecycleStore(postgres.NewTxManagerFromRawPool(pool), nil),
		"redis":    NewRedisRecycleStore(client, "pop", nil),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			const offered = 30
			for i := 0; i < offered; i++ {
				require.NoError(t, store.Add(ctx, "BGH", fmt.Sprintf("KORE%05d2030", i)))
			}

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				seen = make(map[string]int)
			)
			for i := 0; i < 3*offered; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					n, ok, err := store.Pop(ctx, "BGH")
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						seen[n]++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Len(t, seen, offered)
			for n, c := range seen {
				assert.Equal(t, 1, c, "%s popped %d times", n, c)
			}
		})
	}
}

func TestIntegration_SetNextInvalidatesOtherProcesses(t *testing.T) {
	pool := startPostgres(t)
	db := postgres.NewTxManagerFromRawPool(pool)
	ctx := context.Background()

	admin := NewSequenceStore(db, SequenceOptions{Strategy: StrategyStrict})
	server := NewSequenceStore(db, SequenceOptions{Strategy: StrategyCached, RangeSize: 50})

	invalidated := make(chan string, 1)
	listener := cache.NewListener(pool, SequenceResetChannel)
	listener.OnInvalidation(func(office string) {
		server.Invalidate(office)
		invalidated <- office
	})
	listener.Start(ctx)
	t.Cleanup(listener.Stop)

	first, err := server.NextValue(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	// Give the listener time to subscribe before notifying.
	require.Eventually(t, func() bool {
		if err := admin.SetNext(ctx, "BGH", 5000); err != nil {
			return false
		}
		select {
		case office := <-invalidated:
			return office == "BGH"
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)

	next, err := server.NextValue(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), next)
}

func TestIntegration_PoolCollector(t *testing.T) {
	pool := startPostgres(t)
	collector := postgres.NewPoolCollector(pool)

	assert.Equal(t, 7, testutil.CollectAndCount(collector))
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(fmt.Sprintf(`
# HELP docnum_db_pool_max_conns Configured connection limit
# TYPE docnum_db_pool_max_conns gauge
docnum_db_pool_max_conns %d
`, pool.Config().MaxConns)), "docnum_db_pool_max_conns"))
}

func TestIntegration_SetNextRefusesRewind(t *testing.T) {
	pool := startPostgres(t)
	store := NewSequenceStore(postgres.NewTxManagerFromRawPool(pool), SequenceOptions{Strategy: StrategyStrict})
	ctx := context.Background()

	require.NoError(t, store.SetNext(ctx, "BGH", 100))
	v, err := store.NextValue(ctx, "BGH")
	require.NoError(t, err)
	require.Equal(t, int64(100), v)

	err = store.SetNext(ctx, "BGH", 50)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)

	cur, err := store.Current(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(100), cur)

	require.NoError(t, store.SetNext(ctx, "BGH", 101), "the following value is accepted")
	v, err = store.NextValue(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, int64(101), v)
}
