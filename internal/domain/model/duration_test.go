package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeExpiry_Days(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)

	got, err := ComputeExpiry("30d", base)
	require.NoError(t, err)
	assert.Equal(t, base.Add(30*24*time.Hour), got)
}

func TestComputeExpiry_Hours(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)

	got, err := ComputeExpiry("5h", base)
	require.NoError(t, err)
	assert.Equal(t, base.Add(5*time.Hour), got)
}

func TestComputeExpiry_BareIntegerIsHours(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)

	got, err := ComputeExpiry("12", base)
	require.NoError(t, err)
	assert.Equal(t, base.Add(12*time.Hour), got)
}

func TestComputeExpiry_ZeroMeansUnlimited(t *testing.T) {
	for _, base := range []time.Time{
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local),
		time.Date(1999, 1, 1, 0, 0, 0, 0, time.Local),
	} {
		got, err := ComputeExpiry("0", base)
		require.NoError(t, err)
		assert.Equal(t, UnlimitedExpiry(), got, "sentinel must not depend on base time")
	}
}

func TestComputeExpiry_TrimsAndLowercases(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)

	got, err := ComputeExpiry("  7D ", base)
	require.NoError(t, err)
	assert.Equal(t, base.Add(7*24*time.Hour), got)
}

func TestComputeExpiry_Invalid(t *testing.T) {
	base := time.Now()

	for _, input := range []string{"", "abc", "3w", "d", "-5", "5.5d", "5 d"} {
		_, err := ComputeExpiry(input, base)
		assert.ErrorIs(t, err, ErrInvalidDuration, "input %q", input)
	}
}

func TestComputeQuotaBytes(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"", 0},
		{"0", 0},
		{"1", 1_000_000_000},
		{"2", 2_000_000_000},
		{"0.5", 500_000_000},
		{"1.25", 1_250_000_000},
		{"100", 100_000_000_000},
	}

	for _, tt := range tests {
		got, err := ComputeQuotaBytes(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestComputeQuotaBytes_Invalid(t *testing.T) {
	for _, input := range []string{"abc", "-2", "1e5", "1.2.3", "2GB", "Inf"} {
		_, err := ComputeQuotaBytes(input)
		assert.ErrorIs(t, err, ErrInvalidQuota, "input %q", input)
	}
}

func TestIsUnlimitedExpiry(t *testing.T) {
	assert.True(t, IsUnlimitedExpiry(UnlimitedExpiry()))
	assert.True(t, IsUnlimitedExpiry(time.Date(2095, 1, 1, 0, 0, 0, 0, time.Local)))
	assert.False(t, IsUnlimitedExpiry(time.Date(2030, 1, 1, 0, 0, 0, 0, time.Local)))
}

func TestAccessKey_IsExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.Local)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		key    AccessKey
		expect bool
	}{
		{"active past expiry", AccessKey{Status: StatusActive, Expiry: &past}, true},
		{"active future expiry", AccessKey{Status: StatusActive, Expiry: &future}, false},
		{"active without expiry", AccessKey{Status: StatusActive}, false},
		{"on hold never expires", AccessKey{Status: StatusOnHold, Expiry: &past}, false},
		{"suspended never expires", AccessKey{Status: StatusSuspended, Expiry: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.key.IsExpired(now))
		})
	}
}
