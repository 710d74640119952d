// Package timeutil parses the time bounds accepted by the recent changes API and
// CLI.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Range is a half-open time window. A zero bound is unbounded on that side.
type Range struct {
	Since time.Time
	Until time.Time
}

// IsZero reports whether neither bound is set.
func (r Range) IsZero() bool {
	return r.Since.IsZero() && r.Until.IsZero()
}

// ParseRange parses both bounds against the same reference time. Empty strings
// leave the bound unset.
func ParseRange(since, until string, now time.Time) (Range, error) {
	var r Range
	var err error

	if since != "" {
		if r.Since, err = ParseFlexibleTime(since, now); err != nil {
			return Range{}, fmt.Errorf("since: %w", err)
		}
	}
	if until != "" {
		if r.Until, err = ParseFlexibleTime(until, now); err != nil {
			return Range{}, fmt.Errorf("until: %w", err)
		}
	}
	if !r.Since.IsZero() && !r.Until.IsZero() && !r.Since.Before(r.Until) {
		return Range{}, fmt.Errorf("since (%s) must be before until (%s)", r.Since.Format(time.RFC3339), r.Until.Format(time.RFC3339))
	}
	return r, nil
}

// ParseFlexibleTime parses an absolute or relative time using now as the reference.
//
// Supported formats:
//   - RFC3339 / RFC3339Nano: "2024-01-01T00:00:00Z"
//   - relative: "now", "now-7d", "now-2h"
//   - bare lookback: "7d", "30m" (same as "now-7d")
//
// Units: s, m, h, d, w. Times after now are rejected since audit events only
// describe the past.
func ParseFlexibleTime(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)

	var parsed time.Time
	switch {
	case value == "":
		return time.Time{}, fmt.Errorf("time is empty")
	case strings.HasPrefix(value, "now"):
		t, err := parseRelative(value, now)
		if err != nil {
			return time.Time{}, err
		}
		parsed = t
	case isDigit(value[0]) && !strings.Contains(value, "-") && !strings.Contains(value, ":"):
		t, err := applyOffset(now, value)
		if err != nil {
			return time.Time{}, err
		}
		parsed = t
	default:
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time format: %s (use RFC3339 like '2024-01-01T00:00:00Z' or relative like 'now-7d')", value)
		}
		parsed = t
	}

	if parsed.After(now) {
		return time.Time{}, fmt.Errorf("time cannot be in the future: %s", value)
	}
	return parsed, nil
}

func parseRelative(expr string, now time.Time) (time.Time, error) {
	if expr == "now" {
		return now, nil
	}
	offset, ok := strings.CutPrefix(expr, "now-")
	if !ok {
		return time.Time{}, fmt.Errorf("relative time must be 'now' or 'now-<duration>' (e.g., 'now-7d')")
	}
	return applyOffset(now, offset)
}

// applyOffset moves t back by offset. Days and weeks use AddDate so the clock
// time survives DST transitions.
func applyOffset(t time.Time, offset string) (time.Time, error) {
	if len(offset) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration: %s (must be <number><unit>, e.g., '7d', '2h')", offset)
	}

	unit := offset[len(offset)-1]
	value, err := strconv.Atoi(offset[:len(offset)-1])
	if err != nil || value < 0 {
		return time.Time{}, fmt.Errorf("invalid duration value: %s (expected a non-negative number before the unit)", offset)
	}

	switch unit {
	case 'd':
		return t.AddDate(0, 0, -value), nil
	case 'w':
		return t.AddDate(0, 0, -value*7), nil
	case 'h':
		return t.Add(-time.Duration(value) * time.Hour), nil
	case 'm':
		return t.Add(-time.Duration(value) * time.Minute), nil
	case 's':
		return t.Add(-time.Duration(value) * time.Second), nil
	default:
		return time.Time{}, fmt.Errorf("invalid duration unit: %c (use s, m, h, d, or w)", unit)
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
