// Package numerator provides domain contracts for document number allocation:
// templates, rendering, validation and the collaborator interfaces the
// allocator depends on. Implementations of the collaborators live in the
// infrastructure layer.
package numerator

import (
	"fmt"

	"docnum/internal/core/apperror"
)

const (
	// SequenceSymbol marks the placeholder run filled with the zero-padded counter.
	SequenceSymbol = '+'

	// YearSymbol marks the placeholder run filled with the calendar year.
	YearSymbol = 'J'

	// YearWidth is the fixed width of the year run.
	YearWidth = 4

	// DefaultTemplateLength is the system-wide template length of the
	// reference configuration.
	DefaultTemplateLength = 13
)

// run is a contiguous placeholder segment of a template.
type run struct {
	start int
	width int
}

func (r run) end() int { return r.start + r.width }

func (r run) contains(pos int) bool { return pos >= r.start && pos < r.end() }

// Template is a parsed document number template, e.g. "KORE+++++JJJJ".
// The zero value is not usable; obtain templates from ParseTemplate.
type Template struct {
	raw  string
	seq  run
	year run
}

// ParseTemplate validates raw against the structural rules and returns the
// parsed template. length <= 0 disables the total length check.
// Failures are reported as MalformedPattern for the given office.
func ParseTemplate(office, raw string, length int) (Template, error) {
	t, reason := parseTemplate(raw, length)
	if reason != "" {
		return Template{}, apperror.NewMalformedPattern(office, raw, reason)
	}
	return t, nil
}

func parseTemplate(raw string, length int) (Template, string) {
	if length > 0 && len(raw) != length {
		return Template{}, fmt.Sprintf("template has %d characters, want %d", len(raw), length)
	}

	t := Template{raw: raw, seq: run{start: -1}, year: run{start: -1}}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch c {
		case SequenceSymbol:
			if reason := extend(&t.seq, i, "sequence"); reason != "" {
				return Template{}, reason
			}
		case YearSymbol:
			if reason := extend(&t.year, i, "year"); reason != "" {
				return Template{}, reason
			}
		default:
			if c <= ' ' || c > '~' {
				return Template{}, fmt.Sprintf("invalid literal character %q at position %d", c, i)
			}
		}
	}

	if t.seq.start < 0 {
		return Template{}, "missing sequence run"
	}
	if t.year.start < 0 {
		return Template{}, "missing year run"
	}
	if t.year.width != YearWidth {
		return Template{}, fmt.Sprintf("year run has %d characters, want %d", t.year.width, YearWidth)
	}
	return t, ""
}

// extend grows r by position i, rejecting a second, detached run.
func extend(r *run, i int, name string) string {
	if r.start < 0 {
		r.start, r.width = i, 1
		return ""
	}
	if r.end() != i {
		return fmt.Sprintf("%s run is not contiguous (position %d)", name, i)
	}
	r.width++
	return ""
}

// String returns the raw template.
func (t Template) String() string { return t.raw }

// Len returns the total length of numbers rendered from t.
func (t Template) Len() int { return len(t.raw) }

// SequenceWidth returns the number of digits available for the counter.
func (t Template) SequenceWidth() int { return t.seq.width }

// MaxSequence is the largest counter value that still renders.
func (t Template) MaxSequence() int64 {
	var m int64 = 1
	for i := 0; i < t.seq.width && m <= (1<<62)/10; i++ {
		m *= 10
	}
	return m - 1
}

// Prefix returns the literal characters before the first placeholder.
func (t Template) Prefix() string {
	first := t.seq.start
	if t.year.start < first {
		first = t.year.start
	}
	return t.raw[:first]
}

// isPlaceholder reports whether position i belongs to a run.
func (t Template) isPlaceholder(i int) bool {
	return t.seq.contains(i) || t.year.contains(i)
}

// Overlaps reports whether some string could match both t and other.
// Two offices with overlapping templates could mint the same number.
func (t Template) Overlaps(other Template) bool {
	if len(t.raw) != len(other.raw) {
		return false
	}
	for i := 0; i < len(t.raw); i++ {
		a, b := t.isPlaceholder(i), other.isPlaceholder(i)
		switch {
		case a && b:
			continue
		case a:
			if !isDigit(other.raw[i]) {
				return false
			}
		case b:
			if !isDigit(t.raw[i]) {
				return false
			}
		default:
			if t.raw[i] != other.raw[i] {
				return false
			}
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
