// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

type officeContextKey struct{}

// WithOffice stores the issuing office abbreviation a request operates on.
func WithOffice(ctx context.Context, office string) context.Context {
	return context.WithValue(ctx, officeContextKey{}, office)
}

// GetOffice returns the office abbreviation from context or empty string.
func GetOffice(ctx context.Context) string {
	if v, ok := ctx.Value(officeContextKey{}).(string); ok {
		return v
	}
	return ""
}
