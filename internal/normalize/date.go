package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateParts carries whichever date fragments a data source produced.
// String dates are split on "/", "-", "." or space; month tokens may be
// three-letter English names.
type DateParts struct {
	ISODate  string // YYYY-MM-DD
	USDate   string // MM/DD/YYYY
	EuroDate string // DD/MM/YYYY
	Year     string
	Month    string
	Day      string
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// UnifyDate resolves the fragments in p against now and renders the two
// canonical forms: MM/DD/YYYY and YYYY-MM-DD. Missing components default
// to the current date; two-digit years mean 2000+YY. When no year was
// given at all and the month lies ahead of the current month, the date
// is taken to be from last year (periodic reports never postdate today).
func UnifyDate(p DateParts, now time.Time) (usFormat, isoFormat string, err error) {
	var year, month, day int
	yearSet := false

	apply := func(y, m, d string) error {
		if y != "" {
			v, err := strconv.Atoi(strings.TrimSpace(y))
			if err != nil {
				return fmt.Errorf("bad year %q", y)
			}
			year, yearSet = v, true
		}
		if m != "" {
			v, err := parseMonth(m)
			if err != nil {
				return err
			}
			month = v
		}
		if d != "" {
			v, err := strconv.Atoi(strings.TrimSpace(d))
			if err != nil {
				return fmt.Errorf("bad day %q", d)
			}
			day = v
		}
		return nil
	}

	if p.ISODate != "" {
		f, err := splitDate(p.ISODate)
		if err != nil {
			return "", "", err
		}
		if err := apply(f[0], f[1], f[2]); err != nil {
			return "", "", err
		}
	}
	if p.USDate != "" {
		f, err := splitDate(p.USDate)
		if err != nil {
			return "", "", err
		}
		if err := apply(f[2], f[0], f[1]); err != nil {
			return "", "", err
		}
	}
	if p.EuroDate != "" {
		f, err := splitDate(p.EuroDate)
		if err != nil {
			return "", "", err
		}
		if err := apply(f[2], f[1], f[0]); err != nil {
			return "", "", err
		}
	}
	// Explicit components win over any packed string.
	if err := apply(p.Year, p.Month, p.Day); err != nil {
		return "", "", err
	}

	if month == 0 {
		month = int(now.Month())
	}
	if day == 0 {
		day = now.Day()
	}
	switch {
	case !yearSet:
		year = now.Year()
		if month > int(now.Month()) {
			year--
		}
	case year < 100:
		year += 2000
	}

	if month < 1 || month > 12 {
		return "", "", fmt.Errorf("month %d out of range", month)
	}
	if day < 1 || day > 31 {
		return "", "", fmt.Errorf("day %d out of range", day)
	}

	usFormat = fmt.Sprintf("%02d/%02d/%04d", month, day, year)
	isoFormat = fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	return usFormat, isoFormat, nil
}

func splitDate(s string) ([3]string, error) {
	var out [3]string
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == '-' || r == '.' || r == ' '
	})
	if len(fields) != 3 {
		return out, fmt.Errorf("date %q: want 3 components, got %d", s, len(fields))
	}
	copy(out[:], fields)
	return out, nil
}

func parseMonth(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	if len(s) >= 3 {
		if v, ok := monthNames[strings.ToLower(s[:3])]; ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("bad month %q", s)
}
