package normalize

import (
	"strconv"
	"strings"
)

// ShiftDecimal moves the decimal point of a numeric string n places to
// the right (negative n moves it left). The work happens on the string
// representation so large market caps survive without binary-float
// rounding. A leading sign is preserved.
func ShiftDecimal(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" || n == 0 {
		return s
	}
	sign := ""
	if s[0] == '+' || s[0] == '-' {
		sign = string(s[0])
		s = s[1:]
	}
	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	digits := intPart + fracPart
	idx := len(intPart) + n

	var out string
	switch {
	case idx >= len(digits):
		out = digits + strings.Repeat("0", idx-len(digits))
	case idx <= 0:
		out = "0." + strings.Repeat("0", -idx) + digits
	default:
		out = digits[:idx] + "." + digits[idx:]
	}
	out = strings.TrimLeft(out, "0")
	if out == "" || out[0] == '.' {
		out = "0" + out
	}
	if strings.ContainsRune(out, '.') {
		out = strings.TrimRight(out, "0")
		out = strings.TrimSuffix(out, ".")
	}
	return sign + out
}

// ExpandBillions rewrites a "B"-suffixed quantity ("1.6B") as a full
// integer string ("1600000000"). Values without the suffix pass through.
func ExpandBillions(s string) string {
	t := strings.TrimSpace(s)
	if len(t) < 2 || (t[len(t)-1] != 'B' && t[len(t)-1] != 'b') {
		return s
	}
	return ShiftDecimal(strings.TrimSpace(t[:len(t)-1]), 9)
}

// ScaleNumericSubstrings multiplies every numeric run in s by factor,
// leaving the separators between them untouched. Compound fields like
// "105.4 - 108.3" or "1.2,3.4" scale cleanly this way.
func ScaleNumericSubstrings(s string, factor float64) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); {
		j := i
		digits := false
		for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
			if isDigit(s[j]) {
				digits = true
			}
			j++
		}
		if j > i && digits {
			b.WriteString(scaleToken(s[i:j], factor))
		} else if j > i {
			b.WriteString(s[i:j])
		} else {
			b.WriteByte(s[i])
			j = i + 1
		}
		i = j
	}
	return b.String()
}

func scaleToken(tok string, factor float64) string {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return tok
	}
	out := strconv.FormatFloat(v*factor, 'f', 4, 64)
	if strings.ContainsRune(out, '.') {
		out = strings.TrimRight(out, "0")
		out = strings.TrimSuffix(out, ".")
	}
	return out
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
