// Package numbering assigns permanent document numbers to new case-law records.
//
// The Allocator prefers recycled numbers, otherwise mints a new one from the
// office's sequence and template, checking the full rendered string against
// the uniqueness oracle with a bounded number of retries. It holds no mutable
// state between calls; counters and the recycling pool live in collaborators.
package numbering

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docnum/internal/core/apperror"
	"docnum/internal/core/numerator"
	"docnum/pkg/logger"
)

var tracer = otel.Tracer("docnum/numbering")

// DefaultRetryBudget is the number of sequence values tried per allocation.
const DefaultRetryBudget = 5

// Allocator produces globally unique, pattern-conformant document numbers.
// Safe for concurrent use.
type Allocator struct {
	registry    *numerator.Registry
	sequences   numerator.SequenceStore
	oracle      numerator.UniquenessOracle
	pool        *numerator.RecyclingPool
	clock       numerator.Clock
	retryBudget int
	metrics     *Metrics
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithClock overrides the time source used for the year run.
func WithClock(clock numerator.Clock) Option {
	return func(a *Allocator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithRetryBudget sets how many sequence values one allocation may consume.
func WithRetryBudget(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.retryBudget = n
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(a *Allocator) { a.metrics = m }
}

// NewAllocator wires the allocator to its collaborators.
func NewAllocator(
	registry *numerator.Registry,
	sequences numerator.SequenceStore,
	oracle numerator.UniquenessOracle,
	pool *numerator.RecyclingPool,
	opts ...Option,
) *Allocator {
	a := &Allocator{
		registry:    registry,
		sequences:   sequences,
		oracle:      oracle,
		pool:        pool,
		clock:       func() time.Time { return time.Now().UTC() },
		retryBudget: DefaultRetryBudget,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry returns the pattern registry the allocator validates against.
func (a *Allocator) Registry() *numerator.Registry { return a.registry }

// Pool returns the recycling pool.
func (a *Allocator) Pool() *numerator.RecyclingPool { return a.pool }

// Allocate returns a number for office.
//
// Errors: PatternNotFound (unknown office, nothing touched), FormatError
// (sequence outgrew the template), SequenceExhausted (every candidate within
// the retry budget was taken), or a wrapped collaborator failure.
// Uniqueness is best effort: persistence must still enforce it, and callers
// re-invoke Allocate on DuplicateRecord.
func (a *Allocator) Allocate(ctx context.Context, office string) (string, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "numbering.allocate",
		trace.WithAttributes(attribute.String("numbering.office", office)))
	defer span.End()

	number, source, err := a.allocate(ctx, office)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.incFailure(office, errorCode(err))
		return "", err
	}

	span.SetAttributes(
		attribute.String("numbering.source", source),
		attribute.String("numbering.number", number),
	)
	a.metrics.observeAllocation(office, source, start)
	return number, nil
}

func (a *Allocator) allocate(ctx context.Context, office string) (string, string, error) {
	tpl, err := a.registry.TemplateFor(office)
	if err != nil {
		return "", "", err
	}

	recycled, ok, err := a.pool.Take(ctx, office)
	if err != nil {
		return "", "", err
	}
	if ok {
		if tpl.Matches(recycled) {
			logger.Debug(ctx, "reissuing recycled document number", "office", office, "number", recycled)
			return recycled, SourceRecycled, nil
		}
		// Corrupted or stale entry: drop it, alert, and mint instead.
		logger.Warn(ctx, "discarding recycled number that does not match office pattern",
			"office", office, "number", recycled, "template", tpl.String())
		a.metrics.incDiscarded(office)
	}

	for attempt := 1; attempt <= a.retryBudget; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}

		value, err := a.sequences.NextValue(ctx, office)
		if err != nil {
			return "", "", fmt.Errorf("advance sequence for %s: %w", office, err)
		}

		candidate, err := numerator.Render(tpl, value, a.clock().UTC().Year())
		if err != nil {
			logger.Error(ctx, "sequence value does not fit office template",
				"office", office, "value", value, "template", tpl.String())
			return "", "", err
		}

		exists, err := a.oracle.Exists(ctx, candidate)
		if err != nil {
			return "", "", fmt.Errorf("check uniqueness of %s: %w", candidate, err)
		}
		if !exists {
			return candidate, SourceMinted, nil
		}

		logger.Warn(ctx, "document number collision",
			"office", office, "number", candidate, "attempt", attempt)
		a.metrics.incCollision(office)
	}

	logger.Error(ctx, "document number sequence exhausted",
		"office", office, "attempts", a.retryBudget)
	a.metrics.incExhausted(office)
	return "", "", apperror.NewSequenceExhausted(office, a.retryBudget)
}

// Validate reports whether number conforms to office's pattern.
func (a *Allocator) Validate(_ context.Context, office, number string) (bool, error) {
	return a.registry.Matches(office, number)
}

// Audit checks historical numbers and returns those not matching office's pattern.
func (a *Allocator) Audit(_ context.Context, office string, numbers []string) ([]string, error) {
	tpl, err := a.registry.TemplateFor(office)
	if err != nil {
		return nil, err
	}
	var invalid []string
	for _, n := range numbers {
		if !tpl.Matches(n) {
			invalid = append(invalid, n)
		}
	}
	return invalid, nil
}

// Release returns number to office's recycling pool, e.g. after its record
// was deleted. Unlike the pool's silent offer, a number that does not belong
// to office is reported as a validation error.
func (a *Allocator) Release(ctx context.Context, office, number string) error {
	ok, err := a.registry.Matches(office, number)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NewValidation("number does not match the office pattern").
			WithDetail("office", office).
			WithDetail("number", number)
	}
	if err := a.pool.Offer(ctx, office, number); err != nil {
		return err
	}
	logger.Info(ctx, "document number released", "office", office, "number", number)
	return nil
}

func errorCode(err error) string {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Code
	}
	return apperror.CodeInternal
}
