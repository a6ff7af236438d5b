// Package reservations claims document numbers in the record table of a
// standalone deployment, so that the unique index backs every allocation.
package reservations

import (
	"context"
	"time"

	"docnum/internal/core/id"
	"docnum/internal/core/tx"
	"docnum/internal/domain/numbering"
	"docnum/pkg/logger"
)

// Reservation is a record row holding an assigned number.
type Reservation struct {
	ID        id.ID     `db:"id" json:"id"`
	Office    string    `db:"office" json:"office"`
	Number    string    `db:"document_number" json:"number"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Repository persists reservations.
type Repository interface {
	// Insert stores r. A number already present yields a DuplicateRecord error.
	Insert(ctx context.Context, r Reservation) error

	// Delete removes the reservation of number for office. NotFound if absent.
	Delete(ctx context.Context, office, number string) error

	// Get loads the reservation of number. NotFound if absent.
	Get(ctx context.Context, number string) (*Reservation, error)
}

// Service reserves and withdraws numbers.
type Service struct {
	allocator *numbering.Allocator
	repo      Repository
	txManager tx.Manager
	clock     func() time.Time
}

// NewService creates a reservation service.
func NewService(allocator *numbering.Allocator, repo Repository, txManager tx.Manager) *Service {
	return &Service{
		allocator: allocator,
		repo:      repo,
		txManager: txManager,
		clock:     time.Now,
	}
}

// Reserve allocates a number for office and persists it. Duplicates detected
// by the store are retried with a fresh number.
func (s *Service) Reserve(ctx context.Context, office string) (*Reservation, error) {
	var saved Reservation
	_, err := s.allocator.Assign(ctx, office, func(ctx context.Context, number string) error {
		r := Reservation{
			ID:        id.New(),
			Office:    office,
			Number:    number,
			CreatedAt: s.clock().UTC(),
		}
		if err := s.repo.Insert(ctx, r); err != nil {
			return err
		}
		saved = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "document number reserved", "office", office, "number", saved.Number, "id", saved.ID)
	return &saved, nil
}

// Withdraw deletes the reservation and returns its number to the recycling
// pool. When the pool joins database transactions both happen in one
// transaction. Otherwise the number is released only after the delete has
// committed; a release failing at that point leaves a gap and is logged.
func (s *Service) Withdraw(ctx context.Context, office, number string) error {
	if s.allocator.Pool().Transactional() {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			if err := s.repo.Delete(ctx, office, number); err != nil {
				return err
			}
			return s.allocator.Release(ctx, office, number)
		})
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Delete(ctx, office, number)
	})
	if err != nil {
		return err
	}
	if err := s.allocator.Release(context.WithoutCancel(ctx), office, number); err != nil {
		logger.Error(ctx, "withdrawn number was not recycled",
			"office", office, "number", number, "error", err)
	}
	return nil
}

// Get loads a reservation by number.
func (s *Service) Get(ctx context.Context, number string) (*Reservation, error) {
	return s.repo.Get(ctx, number)
}
