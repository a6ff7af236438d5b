package numerator

import (
	"strconv"

	"docnum/internal/core/apperror"
)

// Render produces the number for value and year according to t.
// The sequence run is zero-padded to its width, the year run to four digits.
// Values that do not fit are a FormatError, never truncated.
// len(result) == t.Len() and every literal keeps its position.
func Render(t Template, value int64, year int) (string, error) {
	if t.seq.width == 0 {
		return "", apperror.NewMalformedPattern("", t.raw, "template was not parsed")
	}

	buf := []byte(t.raw)
	if err := fill(buf, t.seq, value); err != nil {
		return "", err
	}
	if err := fill(buf, t.year, int64(year)); err != nil {
		return "", err
	}
	return string(buf), nil
}

func fill(buf []byte, r run, value int64) error {
	if value < 0 {
		return apperror.NewFormatError(value, r.width)
	}
	digits := strconv.FormatInt(value, 10)
	if len(digits) > r.width {
		return apperror.NewFormatError(value, r.width)
	}
	pad := r.width - len(digits)
	for i := 0; i < pad; i++ {
		buf[r.start+i] = '0'
	}
	copy(buf[r.start+pad:r.end()], digits)
	return nil
}
