package reservations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docnum/internal/core/apperror"
	"docnum/internal/core/numerator"
	"docnum/internal/core/tx"
	"docnum/internal/domain/numbering"
)

// memoryRepo behaves like a table with a unique index on document_number.
type memoryRepo struct {
	mu   sync.Mutex
	rows map[string]Reservation
}

func (r *memoryRepo) Insert(_ context.Context, res Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[res.Number]; ok {
		return apperror.NewDuplicateRecord(res.Number)
	}
	r.rows[res.Number] = res
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, office, number string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.rows[number]
	if !ok || res.Office != office {
		return apperror.NewNotFound("reservation", number)
	}
	delete(r.rows, number)
	return nil
}

func (r *memoryRepo) Get(_ context.Context, number string) (*Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.rows[number]
	if !ok {
		return nil, apperror.NewNotFound("reservation", number)
	}
	return &res, nil
}

// Exists lets the repository act as the uniqueness oracle.
func (r *memoryRepo) Exists(_ context.Context, number string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[number]
	return ok, nil
}

type passthroughTx struct{ calls int }

func (p *passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

// failingCommitTx runs fn and then fails as a COMMIT would.
type failingCommitTx struct{ err error }

func (f failingCommitTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return f.err
}

// txRecycleStore stands in for a recycle store that writes through the
// caller's transaction.
type txRecycleStore struct {
	*numerator.MemoryRecycleStore
}

func (txRecycleStore) JoinsTransactions() bool { return true }

type serviceFixture struct {
	svc  *Service
	repo *memoryRepo
	pool *numerator.RecyclingPool
}

func newServiceWith(t *testing.T, store numerator.RecycleStore, txm tx.Manager) *serviceFixture {
	t.Helper()
	registry, err := numerator.NewRegistry(map[string]string{
		"BGH": "KORE+++++JJJJ",
		"BFH": "STRE+++++JJJJ",
	}, numerator.DefaultRegistryOptions())
	require.NoError(t, err)

	repo := &memoryRepo{rows: make(map[string]Reservation)}
	pool := numerator.NewRecyclingPool(store, registry)
	alloc := numbering.NewAllocator(registry, numerator.NewMemorySequenceStore(), repo, pool,
		numbering.WithClock(func() time.Time { return time.Date(2031, 6, 1, 0, 0, 0, 0, time.UTC) }))

	return &serviceFixture{svc: NewService(alloc, repo, txm), repo: repo, pool: pool}
}

func newService(t *testing.T) (*Service, *memoryRepo, *passthroughTx) {
	t.Helper()
	txm := &passthroughTx{}
	f := newServiceWith(t, numerator.NewMemoryRecycleStore(nil), txm)
	return f.svc, f.repo, txm
}

func TestReserve(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, "KORE000012031", r.Number)
	assert.Equal(t, "BGH", r.Office)
	assert.Equal(t, 7, int(r.ID.Version()))

	got, err := svc.Get(ctx, r.Number)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = svc.Reserve(ctx, "NOPE")
	assert.True(t, apperror.IsPatternNotFound(err))
}

func TestWithdraw_RecyclesNumber(t *testing.T) {
	svc, _, txm := newService(t)
	ctx := context.Background()

	first, err := svc.Reserve(ctx, "BGH")
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, "BGH")
	require.NoError(t, err)

	require.NoError(t, svc.Withdraw(ctx, "BGH", first.Number))
	assert.Equal(t, 1, txm.calls)

	again, err := svc.Reserve(ctx, "BGH")
	require.NoError(t, err)
	assert.Equal(t, first.Number, again.Number, "withdrawn number is reissued")
}

func TestWithdraw_Errors(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	err := svc.Withdraw(ctx, "BGH", "KORE000992031")
	assert.True(t, apperror.IsNotFound(err))

	r, err := svc.Reserve(ctx, "BGH")
	require.NoError(t, err)
	err = svc.Withdraw(ctx, "BFH", r.Number)
	assert.True(t, apperror.IsNotFound(err), "reservation belongs to another office")
}

func TestReserve_ConcurrentAreUnique(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	const n = 100
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.Reserve(ctx, "BFH")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[r.Number], "duplicate %s", r.Number)
			seen[r.Number] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestWithdraw_CommitFailureKeepsNumberOutOfPool(t *testing.T) {
	ctx := context.Background()
	commitErr := errors.New("commit failed: connection reset")

	// Reserve through a working transaction, withdraw through a failing one.
	setup := newServiceWith(t, numerator.NewMemoryRecycleStore(nil), &passthroughTx{})
	r, err := setup.svc.Reserve(ctx, "BGH")
	require.NoError(t, err)

	failing := NewService(setup.svc.allocator, setup.repo, failingCommitTx{err: commitErr})
	err = failing.Withdraw(ctx, "BGH", r.Number)
	assert.ErrorIs(t, err, commitErr)

	size, err := setup.pool.Size(ctx, "BGH")
	require.NoError(t, err)
	assert.Zero(t, size, "a number whose delete did not commit must not be recyclable")
}

func TestWithdraw_TransactionalPoolReleasesInsideTransaction(t *testing.T) {
	ctx := context.Background()

	txm := &recordingTx{}
	f := newServiceWith(t, txRecycleStore{numerator.NewMemoryRecycleStore(nil)}, txm)
	require.True(t, f.pool.Transactional())

	r, err := f.svc.Reserve(ctx, "BGH")
	require.NoError(t, err)

	var pooledAtCommit int64
	txm.beforeCommit = func() {
		pooledAtCommit, _ = f.pool.Size(ctx, "BGH")
	}
	require.NoError(t, f.svc.Withdraw(ctx, "BGH", r.Number))
	assert.Equal(t, int64(1), pooledAtCommit, "release runs before the transaction commits")
}

// recordingTx calls beforeCommit after fn succeeds.
type recordingTx struct {
	beforeCommit func()
}

func (r *recordingTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	if r.beforeCommit != nil {
		r.beforeCommit()
	}
	return nil
}
