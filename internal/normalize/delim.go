package normalize

import "strings"

// ParseDelimited splits text on delim (a comma or semicolon in
// practice), honoring double-quoted spans. Inside quotes a backslash
// escapes the next rune and the delimiter loses its meaning. A trailing
// delimiter produces a final empty field.
func ParseDelimited(text string, delim rune) []string {
	fields := make([]string, 0, strings.Count(text, string(delim))+1)
	var cur strings.Builder
	inQuote := false
	escaped := false

	for _, r := range text {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case r == delim && !inQuote:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, cur.String())
	return fields
}
