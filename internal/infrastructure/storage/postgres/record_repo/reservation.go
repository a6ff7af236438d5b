// Package record_repo provides the PostgreSQL repository for reserved document numbers.
package record_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"docnum/internal/core/apperror"
	"docnum/internal/domain/reservations"
	"docnum/internal/infrastructure/storage/postgres"
)

const tableName = "case_law_documents"

// ReservationRepo implements reservations.Repository on case_law_documents.
type ReservationRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ reservations.Repository = (*ReservationRepo)(nil)

// NewReservationRepo creates a new reservation repository.
func NewReservationRepo(txm *postgres.TxManager) *ReservationRepo {
	return &ReservationRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Insert implements reservations.Repository.
func (r *ReservationRepo) Insert(ctx context.Context, res reservations.Reservation) error {
	sql, args, err := r.builder.
		Insert(tableName).
		Columns("id", "office", "document_number", "created_at").
		Values(res.ID, res.Office, res.Number, res.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, postgres.RecordNumberConstraint) {
			return apperror.NewDuplicateRecord(res.Number).WithCause(err)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// Delete implements reservations.Repository.
func (r *ReservationRepo) Delete(ctx context.Context, office, number string) error {
	sql, args, err := r.builder.
		Delete(tableName).
		Where(squirrel.Eq{"office": office, "document_number": number}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("reservation", number)
	}
	return nil
}

// Get implements reservations.Repository.
func (r *ReservationRepo) Get(ctx context.Context, number string) (*reservations.Reservation, error) {
	sql, args, err := r.builder.
		Select("id", "office", "document_number", "created_at").
		From(tableName).
		Where(squirrel.Eq{"document_number": number}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var res reservations.Reservation
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &res, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("reservation", number)
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &res, nil
}
