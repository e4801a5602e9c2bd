package daycount

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDays(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name       string
		start, end time.Time
		expected   int
	}{
		{"same day", time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC), time.Date(2025, 1, 1, 16, 0, 0, 0, time.UTC), 0},
		{"thirty days", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), 30},
		{"backwards", time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), -30},
		{"leap year", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 366},
		{"across dst", time.Date(2025, 3, 8, 23, 0, 0, 0, ny), time.Date(2025, 3, 10, 1, 0, 0, 0, ny), 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Days(tc.start, tc.end))
		})
	}
}

func TestYearFraction(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.InDelta(t, 366.0/365.0, YearFraction(start, start.AddDate(1, 0, 0)), 1e-15)
	assert.InDelta(t, 30.0/365.0, YearFraction(start, start.AddDate(0, 0, 30)), 1e-15)
	assert.Equal(t, 0.0, YearFraction(start, start))
	assert.Less(t, YearFraction(start, start.AddDate(0, 0, -1)), 0.0)
}

func TestParseAndFormat(t *testing.T) {
	d, err := Parse("2025-02-21")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-21", Format(d))

	_, err = Parse("21/02/2025")
	assert.Error(t, err)
}

func TestRange(t *testing.T) {
	start := time.Date(2025, 1, 30, 15, 0, 0, 0, time.UTC)
	dates := Range(start, start.AddDate(0, 0, 3))

	require.Len(t, dates, 4)
	assert.Equal(t, "2025-01-30", Format(dates[0]))
	assert.Equal(t, "2025-02-02", Format(dates[3]))
	assert.Empty(t, Range(start, start.AddDate(0, 0, -1)))
}
