package wire

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTime accepts RFC 3339 strings, common SQL-ish layouts, and epoch
// seconds or milliseconds as numbers or numeric strings. Anything else,
// including zero dates, yields the zero time.
func ParseTime(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.Number:
		return fromEpoch(v.Int())
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return time.Time{}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpoch(n)
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return sane(t)
			}
		}
	}
	return time.Time{}
}

func fromEpoch(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	// Anything below 1e12 cannot be milliseconds of a date after 2001.
	if n < 1e12 {
		return time.Unix(n, 0).UTC()
	}
	return time.UnixMilli(n).UTC()
}

func sane(t time.Time) time.Time {
	if t.Unix() <= 0 {
		return time.Time{}
	}
	return t.UTC()
}
