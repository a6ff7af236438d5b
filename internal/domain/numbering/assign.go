package numbering

import (
	"context"

	"docnum/internal/core/apperror"
	"docnum/pkg/logger"
)

// PersistFunc stores a record under number. It must return a DuplicateRecord
// error when the store's uniqueness constraint rejects number.
type PersistFunc func(ctx context.Context, number string) error

// Assign allocates a number and hands it to persist.
//
// A DuplicateRecord from persist means the oracle check lost a race; a fresh
// number is allocated, at most retry budget times. Any other persist failure
// abandons the number before commit: it is offered back to the pool and the
// error is returned.
func (a *Allocator) Assign(ctx context.Context, office string, persist PersistFunc) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= a.retryBudget; attempt++ {
		number, err := a.Allocate(ctx, office)
		if err != nil {
			return "", err
		}

		err = persist(ctx, number)
		if err == nil {
			return number, nil
		}

		if apperror.IsDuplicateRecord(err) {
			logger.Warn(ctx, "allocated number rejected as duplicate, allocating again",
				"office", office, "number", number, "attempt", attempt)
			a.metrics.incDuplicate(office)
			lastErr = err
			continue
		}

		// The caller may have been cancelled; the number still has to go back.
		if offerErr := a.pool.Offer(context.WithoutCancel(ctx), office, number); offerErr != nil {
			logger.Error(ctx, "failed to recycle abandoned document number",
				"office", office, "number", number, "error", offerErr)
		}
		return "", err
	}
	return "", lastErr
}
