package model

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the canonical expiry format persisted in the store. All
// expiry arithmetic happens in the server's local time, matching what the
// Outline server and the operator console display.
const TimeLayout = "2006-01-02 15:04:05"

// Validation errors for user-supplied duration and quota tokens. Both are
// rejected before any remote call is made.
var (
	ErrInvalidDuration = errors.New("invalid duration format")
	ErrInvalidQuota    = errors.New("invalid quota value")
)

var (
	durationPattern = regexp.MustCompile(`^(\d+)([dh]?)$`)
	quotaPattern    = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// UnlimitedExpiry returns the sentinel timestamp that denotes a key with no
// time budget at all.
func UnlimitedExpiry() time.Time {
	return time.Date(2099, time.December, 31, 23, 59, 59, 0, time.Local)
}

// IsUnlimitedExpiry reports whether t is the "no time budget" sentinel.
// Anything past 2090 counts, so round-tripping through the store cannot
// demote an unlimited key.
func IsUnlimitedExpiry(t time.Time) bool {
	return t.Year() > 2090
}

// ComputeExpiry maps a duration token onto an absolute expiry. "0" means
// unlimited and maps to the sentinel. Otherwise the token is <integer> with
// an optional unit suffix: "d" for days, "h" (or none) for hours. base is an
// explicit parameter so renewal arithmetic stays testable.
func ComputeExpiry(duration string, base time.Time) (time.Time, error) {
	s := normalizeToken(duration)
	if s == "0" {
		return UnlimitedExpiry(), nil
	}

	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, ErrInvalidDuration
	}

	value, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, ErrInvalidDuration
	}

	hours := value
	if m[2] == "d" {
		hours = value * 24
	}

	return base.Add(time.Duration(hours) * time.Hour), nil
}

// ComputeQuotaBytes converts a decimal gigabyte value into bytes using the
// 1000-based multiplier the Outline server accounts in. Empty or "0" means
// unlimited (0 bytes).
func ComputeQuotaBytes(gb string) (int64, error) {
	s := normalizeToken(gb)
	if s == "" || s == "0" {
		return 0, nil
	}

	if !quotaPattern.MatchString(s) {
		return 0, ErrInvalidQuota
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidQuota
	}

	return int64(math.Round(value * 1000 * 1000 * 1000)), nil
}

// normalizeToken lowercases and trims user input before validation.
func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
