// Package tx decouples domain services from the database transaction implementation.
package tx

import (
	"context"
)

// Manager runs work atomically.
//
// Nested calls reuse the transaction already carried by ctx, so a record
// insert and the recycling of its number commit or roll back together.
type Manager interface {
	// RunInTransaction commits when fn returns nil and rolls back otherwise.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager adds read-only transactions for consistent multi-query reads.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
