package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// SmartCompare reports whether value matches pattern. A *regexp.Regexp
// pattern is matched as a regex; a plain string is a substring match.
// Slice values match when any element does.
func SmartCompare(value, pattern any) bool {
	switch v := value.(type) {
	case []string:
		for _, e := range v {
			if matchScalar(e, pattern) {
				return true
			}
		}
		return false
	case []any:
		for _, e := range v {
			if SmartCompare(e, pattern) {
				return true
			}
		}
		return false
	case string:
		return matchScalar(v, pattern)
	default:
		return matchScalar(fmt.Sprint(value), pattern)
	}
}

func matchScalar(s string, pattern any) bool {
	switch p := pattern.(type) {
	case *regexp.Regexp:
		return p.MatchString(s)
	case string:
		return strings.Contains(s, p)
	default:
		return strings.Contains(s, fmt.Sprint(pattern))
	}
}
