package forum

import (
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999-0700",
}

// ParseTimestamp parses a datetime attribute as a timezone-aware instant.
// A trailing "Z" is normalized to "+00:00" first. Empty or unparsable
// literals report false.
func ParseTimestamp(literal string) (time.Time, bool) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return time.Time{}, false
	}
	if strings.HasSuffix(literal, "Z") {
		literal = strings.TrimSuffix(literal, "Z") + "+00:00"
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, literal); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
