package ids

import "strings"

// NormalizeFISubgroup collapses an FI (File Index) classification code to
// its subgroup by stripping a trailing single-letter edition mark (e.g. a
// revision suffix like the "A" in "H04L12/24A"). Codes that don't carry an
// edition letter pass through unchanged. Idempotent: normalizing an already
// normalized code returns it as-is.
func NormalizeFISubgroup(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}

	runes := []rune(code)
	last := runes[len(runes)-1]
	if len(runes) < 2 || !isEditionLetter(last) {
		return code
	}

	prev := runes[len(runes)-2]
	if !isDigit(prev) {
		return code
	}

	return string(runes[:len(runes)-1])
}

func isEditionLetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
