package numerator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	corenumerator "docnum/internal/core/numerator"
)

const recycledTable = "sys_recycled_numbers"

// RecycleStore keeps released numbers in sys_recycled_numbers.
//
// Pop claims the oldest row with FOR UPDATE SKIP LOCKED, so concurrent
// allocators never receive the same number. Inside a caller's transaction
// an Add commits or rolls back together with the record deletion.
type RecycleStore struct {
	db      QuerierSource
	builder squirrel.StatementBuilderType
	clock   corenumerator.Clock
}

var (
	_ corenumerator.RecycleStore       = (*RecycleStore)(nil)
	_ corenumerator.TransactionalStore = (*RecycleStore)(nil)
)

// JoinsTransactions implements corenumerator.TransactionalStore.
func (s *RecycleStore) JoinsTransactions() bool { return true }

// NewRecycleStore creates a PostgreSQL recycle store. A nil clock means time.Now.
func NewRecycleStore(db QuerierSource, clock corenumerator.Clock) *RecycleStore {
	if clock == nil {
		clock = time.Now
	}
	return &RecycleStore{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		clock:   clock,
	}
}

// Add implements corenumerator.RecycleStore.
func (s *RecycleStore) Add(ctx context.Context, office, number string) error {
	sql, args, err := s.builder.
		Insert(recycledTable).
		Columns("document_number", "office", "released_at").
		Values(number, office, s.clock().UTC()).
		Suffix("ON CONFLICT (document_number) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert recycled number: %w", err)
	}
	return nil
}

const popQuery = `
	DELETE FROM sys_recycled_numbers
	WHERE document_number = (
		SELECT document_number FROM sys_recycled_numbers
		WHERE office = $1
		ORDER BY released_at, document_number
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING document_number`

// Pop implements corenumerator.RecycleStore.
func (s *RecycleStore) Pop(ctx context.Context, office string) (string, bool, error) {
	var number string
	err := s.db.GetQuerier(ctx).QueryRow(ctx, popQuery, office).Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("pop recycled number: %w", err)
	}
	return number, true, nil
}

// Purge implements corenumerator.RecycleStore.
func (s *RecycleStore) Purge(ctx context.Context, office string) (int64, error) {
	return s.delete(ctx, squirrel.Eq{"office": office})
}

// PurgeOlderThan implements corenumerator.RecycleStore.
func (s *RecycleStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.delete(ctx, squirrel.Lt{"released_at": cutoff.UTC()})
}

func (s *RecycleStore) delete(ctx context.Context, where squirrel.Sqlizer) (int64, error) {
	sql, args, err := s.builder.Delete(recycledTable).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	tag, err := s.db.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("purge recycled numbers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count implements corenumerator.RecycleStore.
func (s *RecycleStore) Count(ctx context.Context, office string) (int64, error) {
	sql, args, err := s.builder.
		Select("count(*)").
		From(recycledTable).
		Where(squirrel.Eq{"office": office}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var n int64
	if err := s.db.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recycled numbers: %w", err)
	}
	return n, nil
}

// List implements corenumerator.RecycleStore.
func (s *RecycleStore) List(ctx context.Context, office string, limit int) ([]corenumerator.RecycledNumber, error) {
	q := s.builder.
		Select("document_number", "office", "released_at").
		From(recycledTable).
		Where(squirrel.Eq{"office": office}).
		OrderBy("released_at", "document_number")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []corenumerator.RecycledNumber
	if err := pgxscan.Select(ctx, s.db.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list recycled numbers: %w", err)
	}
	return items, nil
}
