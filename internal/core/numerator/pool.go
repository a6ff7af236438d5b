package numerator

import (
	"context"
	"fmt"
	"time"

	"docnum/pkg/logger"
)

// RecyclingPool holds released numbers available for reissue, per office.
// It enforces ownership on offer; atomicity of take comes from the store.
type RecyclingPool struct {
	store    RecycleStore
	registry *Registry
}

// NewRecyclingPool creates a pool over store, validating offers against registry.
func NewRecyclingPool(store RecycleStore, registry *Registry) *RecyclingPool {
	return &RecyclingPool{store: store, registry: registry}
}

// Offer marks number available for reuse by office.
// Offering a number twice has no further effect. A number that does not
// belong to office is ignored.
func (p *RecyclingPool) Offer(ctx context.Context, office, number string) error {
	ok, err := p.registry.Matches(office, number)
	if err != nil {
		return err
	}
	if !ok {
		logger.Debug(ctx, "recycle offer ignored: number does not match office pattern",
			"office", office, "number", number)
		return nil
	}
	if err := p.store.Add(ctx, office, number); err != nil {
		return fmt.Errorf("offer %s to %s pool: %w", number, office, err)
	}
	return nil
}

// Transactional reports whether offers join the caller's database
// transaction. When false, an offer is visible to takers immediately.
func (p *RecyclingPool) Transactional() bool {
	ts, ok := p.store.(TransactionalStore)
	return ok && ts.JoinsTransactions()
}

// Take removes and returns one available number for office.
// ok is false when the pool is empty.
func (p *RecyclingPool) Take(ctx context.Context, office string) (string, bool, error) {
	number, ok, err := p.store.Pop(ctx, office)
	if err != nil {
		return "", false, fmt.Errorf("take from %s pool: %w", office, err)
	}
	return number, ok, nil
}

// Purge drops every available number for office.
func (p *RecyclingPool) Purge(ctx context.Context, office string) (int64, error) {
	if _, err := p.registry.TemplateFor(office); err != nil {
		return 0, err
	}
	return p.store.Purge(ctx, office)
}

// PurgeOlderThan drops numbers released more than age ago.
func (p *RecyclingPool) PurgeOlderThan(ctx context.Context, now time.Time, age time.Duration) (int64, error) {
	return p.store.PurgeOlderThan(ctx, now.Add(-age))
}

// Size returns the number of available numbers for office.
func (p *RecyclingPool) Size(ctx context.Context, office string) (int64, error) {
	if _, err := p.registry.TemplateFor(office); err != nil {
		return 0, err
	}
	return p.store.Count(ctx, office)
}

// List returns up to limit available numbers for office, next to be reissued first.
func (p *RecyclingPool) List(ctx context.Context, office string, limit int) ([]RecycledNumber, error) {
	if _, err := p.registry.TemplateFor(office); err != nil {
		return nil, err
	}
	return p.store.List(ctx, office, limit)
}
