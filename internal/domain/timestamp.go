package domain

import (
	"regexp"
	"strings"
	"time"
)

var isoExpr = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})T(\d{2}:\d{2}:\d{2})(?:\.(\d+))?(Z|[+\-]\d{2}:\d{2})?$`)

var fallbackLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the marketplace's ISO-8601 variants and returns UTC.
// Fractions of any length are truncated or padded to microseconds, "Z" is
// treated as +00:00 and values without an offset are read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return time.Time{}, &ParseError{Field: "createdDate", Value: value}
	}

	if m := isoExpr.FindStringSubmatch(raw); m != nil {
		frac := m[3]
		if len(frac) > 6 {
			frac = frac[:6]
		}
		frac += strings.Repeat("0", 6-len(frac))

		offset := m[4]
		if offset == "" || offset == "Z" {
			offset = "+00:00"
		}

		normalized := m[1] + "T" + m[2] + "." + frac + offset
		ts, err := time.Parse("2006-01-02T15:04:05.000000-07:00", normalized)
		if err != nil {
			return time.Time{}, &ParseError{Field: "createdDate", Value: value, Err: err}
		}
		return ts.UTC(), nil
	}

	for _, layout := range fallbackLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}

	return time.Time{}, &ParseError{Field: "createdDate", Value: value}
}
