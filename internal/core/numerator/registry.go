package numerator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"docnum/internal/core/apperror"
)

// RegistryOptions controls template validation at load time.
type RegistryOptions struct {
	// TemplateLength is the system-wide template length (default 13).
	TemplateLength int

	// StrictPrefixPolicy requires every template to start with ReservedPrefix.
	// Used in pre-production tiers so numbers are visually distinguishable.
	StrictPrefixPolicy bool

	// ReservedPrefix is the literal prefix enforced by StrictPrefixPolicy.
	ReservedPrefix string
}

// DefaultRegistryOptions returns the reference configuration.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		TemplateLength: DefaultTemplateLength,
	}
}

// Registry is the immutable office -> template mapping.
// Construct once at startup and share; it is safe for concurrent use.
type Registry struct {
	patterns map[string]Template
	offices  []string
	opts     RegistryOptions
}

// NewRegistry validates every template and builds the registry.
// All malformed templates are reported together (errors.Join of
// MalformedPattern errors); a registry is returned only if all pass.
func NewRegistry(patterns map[string]string, opts RegistryOptions) (*Registry, error) {
	if opts.TemplateLength <= 0 {
		opts.TemplateLength = DefaultTemplateLength
	}
	if opts.StrictPrefixPolicy {
		if opts.ReservedPrefix == "" {
			return nil, fmt.Errorf("strict prefix policy enabled without a reserved prefix")
		}
		if strings.ContainsAny(opts.ReservedPrefix, string([]rune{SequenceSymbol, YearSymbol})) {
			return nil, fmt.Errorf("reserved prefix %q contains placeholder symbols", opts.ReservedPrefix)
		}
	}

	offices := make([]string, 0, len(patterns))
	for office := range patterns {
		offices = append(offices, office)
	}
	sort.Strings(offices)

	r := &Registry{
		patterns: make(map[string]Template, len(patterns)),
		offices:  offices,
		opts:     opts,
	}

	var errs []error
	for _, office := range offices {
		raw := patterns[office]
		if strings.TrimSpace(office) == "" || strings.TrimSpace(office) != office {
			errs = append(errs, apperror.NewMalformedPattern(office, raw, "office abbreviation is empty or padded"))
			continue
		}

		t, err := ParseTemplate(office, raw, opts.TemplateLength)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if opts.StrictPrefixPolicy && !strings.HasPrefix(raw, opts.ReservedPrefix) {
			errs = append(errs, apperror.NewMalformedPattern(office, raw,
				fmt.Sprintf("template does not start with reserved prefix %q", opts.ReservedPrefix)))
			continue
		}

		if other, ok := r.overlapping(t); ok {
			errs = append(errs, apperror.NewMalformedPattern(office, raw,
				fmt.Sprintf("template overlaps the pattern of office %q", other)))
			continue
		}

		r.patterns[office] = t
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

func (r *Registry) overlapping(t Template) (string, bool) {
	for _, office := range r.offices {
		existing, ok := r.patterns[office]
		if ok && existing.Overlaps(t) {
			return office, true
		}
	}
	return "", false
}

// TemplateFor returns the template configured for office.
func (r *Registry) TemplateFor(office string) (Template, error) {
	t, ok := r.patterns[office]
	if !ok {
		return Template{}, apperror.NewPatternNotFound(office)
	}
	return t, nil
}

// Matches reports whether candidate conforms to the office's template.
// The only error is PatternNotFound for unknown offices.
func (r *Registry) Matches(office, candidate string) (bool, error) {
	t, err := r.TemplateFor(office)
	if err != nil {
		return false, err
	}
	return t.Matches(candidate), nil
}

// OfficeFor derives the owning office from a number's format.
// Templates never overlap, so at most one office matches.
func (r *Registry) OfficeFor(number string) (string, bool) {
	for _, office := range r.offices {
		if t, ok := r.patterns[office]; ok && t.Matches(number) {
			return office, true
		}
	}
	return "", false
}

// Offices returns the configured office abbreviations in sorted order.
func (r *Registry) Offices() []string {
	out := make([]string, len(r.offices))
	copy(out, r.offices)
	return out
}

// Patterns returns a copy of the full office -> template mapping.
func (r *Registry) Patterns() map[string]string {
	out := make(map[string]string, len(r.patterns))
	for office, t := range r.patterns {
		out[office] = t.String()
	}
	return out
}

// Options returns the validation options the registry was built with.
func (r *Registry) Options() RegistryOptions { return r.opts }
