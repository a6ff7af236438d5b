// Package numerator provides PostgreSQL and Redis implementations of the
// document numbering stores defined in core/numerator.
package numerator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"docnum/internal/core/apperror"
	corenumerator "docnum/internal/core/numerator"
	"docnum/internal/infrastructure/storage/postgres"
)

// QuerierSource hands out the querier for ctx: the open transaction if any,
// otherwise the pool. *postgres.TxManager satisfies it.
type QuerierSource interface {
	GetQuerier(ctx context.Context) postgres.Querier
}

// Static wraps a fixed querier as a QuerierSource.
func Static(q postgres.Querier) QuerierSource { return staticSource{q} }

type staticSource struct{ q postgres.Querier }

func (s staticSource) GetQuerier(context.Context) postgres.Querier { return s.q }

// Strategy defines how sequence values are drawn from the database.
type Strategy string

const (
	// StrategyStrict issues one UPSERT ... RETURNING per value.
	// No values are lost, every allocation costs a round trip.
	StrategyStrict Strategy = "strict"

	// StrategyCached reserves ranges of values and hands them out from memory.
	// Values never repeat; a restart leaves a gap of unused values.
	StrategyCached Strategy = "cached"
)

// DefaultRangeSize is the number of values reserved per round trip in cached mode.
const DefaultRangeSize = 50

// ParseStrategy converts a configuration value into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyStrict, "":
		return StrategyStrict, nil
	case StrategyCached:
		return StrategyCached, nil
	default:
		return "", fmt.Errorf("unknown sequence strategy %q (want strict or cached)", s)
	}
}

// SequenceOptions configures a SequenceStore.
type SequenceOptions struct {
	Strategy  Strategy
	RangeSize int64
}

// SequenceState is a snapshot of one office counter.
type SequenceState struct {
	Office     string    `db:"office"`
	CurrentVal int64     `db:"current_val"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type cachedRange struct {
	current int64
	max     int64
}

// SequenceStore keeps one monotonic counter per office in sys_sequences.
// Counters are never reset by year.
type SequenceStore struct {
	db      QuerierSource
	opts    SequenceOptions
	builder squirrel.StatementBuilderType

	// cacheMu protects ranges
	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

var _ corenumerator.SequenceStore = (*SequenceStore)(nil)

// NewSequenceStore creates a sequence store.
func NewSequenceStore(db QuerierSource, opts SequenceOptions) *SequenceStore {
	if opts.Strategy == "" {
		opts.Strategy = StrategyStrict
	}
	if opts.RangeSize <= 0 {
		opts.RangeSize = DefaultRangeSize
	}
	return &SequenceStore{
		db:      db,
		opts:    opts,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		ranges:  make(map[string]*cachedRange),
	}
}

// NextValue atomically advances office's counter and returns the new value.
func (s *SequenceStore) NextValue(ctx context.Context, office string) (int64, error) {
	if s.opts.Strategy == StrategyCached {
		return s.nextCached(ctx, office)
	}
	return s.advance(ctx, office, 1)
}

// advance adds n to the counter, creating it at n, and returns the new value.
func (s *SequenceStore) advance(ctx context.Context, office string, n int64) (int64, error) {
	var value int64
	err := s.db.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (office, current_val)
		VALUES ($1, $2)
		ON CONFLICT (office) DO UPDATE
		SET current_val = sys_sequences.current_val + EXCLUDED.current_val, updated_at = now()
		RETURNING current_val
	`, office, n).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("advance sequence %s by %d: %w", office, n, err)
	}
	return value, nil
}

func (s *SequenceStore) nextCached(ctx context.Context, office string) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	rng, ok := s.ranges[office]
	if !ok {
		rng = &cachedRange{}
		s.ranges[office] = rng
	}

	if rng.current >= rng.max {
		newMax, err := s.advance(ctx, office, s.opts.RangeSize)
		if err != nil {
			return 0, err
		}
		// Reserved (newMax-size, newMax]; current sits one before the first value.
		rng.current = newMax - s.opts.RangeSize
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

// SequenceResetChannel carries the office whose counter was moved by SetNext,
// so other processes drop their cached ranges.
const SequenceResetChannel = "docnum_sequence_reset"

// SetNext makes next the value the following NextValue returns.
// Used when migrating counters from a legacy system. Counters never move
// backwards: a next below the following value is rejected as a validation
// error, and a next equal to it is a no-op. Drops any cached range here and
// notifies other processes on SequenceResetChannel.
func (s *SequenceStore) SetNext(ctx context.Context, office string, next int64) error {
	if next < 1 {
		return fmt.Errorf("next value for %s must be positive, got %d", office, next)
	}

	q := s.db.GetQuerier(ctx)
	var current int64
	err := q.QueryRow(ctx, `
		INSERT INTO sys_sequences (office, current_val)
		VALUES ($1, $2)
		ON CONFLICT (office) DO UPDATE SET current_val = EXCLUDED.current_val, updated_at = now()
		WHERE sys_sequences.current_val <= EXCLUDED.current_val
		RETURNING current_val
	`, office, next-1).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		last, cerr := s.Current(ctx, office)
		if cerr != nil {
			return cerr
		}
		return apperror.NewValidation("sequence cannot move backwards").
			WithDetail("office", office).
			WithDetail("next", next).
			WithDetail("current", last)
	}
	s.Invalidate(office)
	if err != nil {
		return fmt.Errorf("set sequence %s: %w", office, err)
	}

	if _, err := q.Exec(ctx, "SELECT pg_notify($1, $2)", SequenceResetChannel, office); err != nil {
		return fmt.Errorf("notify sequence reset %s: %w", office, err)
	}
	return nil
}

// Invalidate drops the cached range of office; the next cached NextValue
// reserves a fresh range from the database.
func (s *SequenceStore) Invalidate(office string) {
	s.cacheMu.Lock()
	delete(s.ranges, office)
	s.cacheMu.Unlock()
}

// Current returns the last value handed to the database for office, 0 if unused.
// In cached mode this is the end of the reserved range.
func (s *SequenceStore) Current(ctx context.Context, office string) (int64, error) {
	sql, args, err := s.builder.
		Select("current_val").
		From("sys_sequences").
		Where(squirrel.Eq{"office": office}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var value int64
	if err := s.db.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read sequence %s: %w", office, err)
	}
	return value, nil
}

// Snapshot lists every office counter ordered by office.
func (s *SequenceStore) Snapshot(ctx context.Context) ([]SequenceState, error) {
	sql, args, err := s.builder.
		Select("office", "current_val", "updated_at").
		From("sys_sequences").
		OrderBy("office").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var states []SequenceState
	if err := pgxscan.Select(ctx, s.db.GetQuerier(ctx), &states, sql, args...); err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	return states, nil
}
