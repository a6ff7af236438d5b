package numerator

// Matches reports whether candidate conforms to t character by character:
// literals must be identical, placeholder positions must be ASCII digits.
func (t Template) Matches(candidate string) bool {
	if t.seq.width == 0 || len(candidate) != len(t.raw) {
		return false
	}
	for i := 0; i < len(t.raw); i++ {
		if t.isPlaceholder(i) {
			if !isDigit(candidate[i]) {
				return false
			}
			continue
		}
		if candidate[i] != t.raw[i] {
			return false
		}
	}
	return true
}
