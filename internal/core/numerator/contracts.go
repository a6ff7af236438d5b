package numerator

import (
	"context"
	"time"
)

// SequenceStore hands out per-office counter values.
//
// NextValue must be linearizable per office: two concurrent callers never
// receive the same value, values only grow, and they are never reset (the
// counter is continuous across calendar years).
type SequenceStore interface {
	NextValue(ctx context.Context, office string) (int64, error)
}

// UniquenessOracle answers whether a number is already assigned to a live record.
type UniquenessOracle interface {
	Exists(ctx context.Context, number string) (bool, error)
}

// RecycleStore persists released numbers keyed by office.
// Implementations must make Pop atomic: a stored number is returned to at
// most one caller.
type RecycleStore interface {
	// Add stores number for office. Adding a stored number again is a no-op.
	Add(ctx context.Context, office, number string) error

	// Pop removes and returns one stored number for office.
	// ok is false when none is available.
	Pop(ctx context.Context, office string) (number string, ok bool, err error)

	// Purge removes every stored number for office.
	Purge(ctx context.Context, office string) (int64, error)

	// PurgeOlderThan removes numbers released before cutoff, for all offices.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Count returns how many numbers are stored for office.
	Count(ctx context.Context, office string) (int64, error)

	// List returns up to limit stored numbers for office, oldest release first.
	List(ctx context.Context, office string, limit int) ([]RecycledNumber, error)
}

// TransactionalStore is implemented by recycle stores whose writes join the
// caller's database transaction, so they roll back with it.
type TransactionalStore interface {
	JoinsTransactions() bool
}

// RecycledNumber is a released number waiting for reissue.
type RecycledNumber struct {
	Number     string    `db:"document_number" json:"number"`
	Office     string    `db:"office" json:"office"`
	ReleasedAt time.Time `db:"released_at" json:"released_at"`
}

// Clock returns the current time. The year run is read from it on every render.
type Clock func() time.Time
