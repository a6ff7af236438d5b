// Package id generates identifiers for reservation rows.
package id

import (
	"github.com/google/uuid"
)

// ID identifies a persisted reservation.
type ID = uuid.UUID

// New returns a time-ordered UUIDv7, falling back to a random v4.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts s to an ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// IsNil reports whether v is the zero UUID.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
