package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		input string
		want  RateLimit
	}{
		{"", RateLimit{}},
		{"60", RateLimit{Requests: 60, Per: time.Minute}},
		{"100/1s", RateLimit{Requests: 100, Per: time.Second}},
		{"50/5m", RateLimit{Requests: 50, Per: 5 * time.Minute}},
		{"1000/1h", RateLimit{Requests: 1000, Per: time.Hour}},
		{"10/10s", RateLimit{Requests: 10, Per: 10 * time.Second}},
		{"30/m", RateLimit{Requests: 30, Per: time.Minute}},
		{" 5 / 2s ", RateLimit{Requests: 5, Per: 2 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRateLimit(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRateLimit_Invalid(t *testing.T) {
	for _, input := range []string{"invalid-format", "0/1m", "-5", "10/xyz", "10/0s", "/1m"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseRateLimit(input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid rate limit format")
		})
	}
}

func TestRateLimit_Derived(t *testing.T) {
	rl := RateLimit{Requests: 120, Per: time.Minute}
	assert.Equal(t, 500*time.Millisecond, rl.Interval())
	assert.InDelta(t, 120.0, rl.PerMinute(), 1e-9)
	assert.Equal(t, "120/1m", rl.String())

	rl = RateLimit{Requests: 10, Per: 10 * time.Second}
	assert.InDelta(t, 60.0, rl.PerMinute(), 1e-9)
	assert.Equal(t, "10/10s", rl.String())

	var zero RateLimit
	assert.True(t, zero.IsZero())
	assert.Zero(t, zero.Interval())
	assert.Zero(t, zero.PerMinute())
	assert.Empty(t, zero.String())
}
