package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday
var today = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return today.AddDate(0, 0, n) }

func TestResolveDailyDefaults(t *testing.T) {
	dates, err := Resolve(Rule{Mode: ModeDaily}, today, []time.Time{day(5), day(3)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(1), day(2), day(3), day(4), day(5)}, dates)
}

func TestResolveEveryNDays(t *testing.T) {
	dates, err := Resolve(Rule{Mode: ModeEveryNDays, NthList: []int{7}, Start: "2025-03-04", End: "2025-03-31"}, today, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(1), day(8), day(15), day(22)}, dates)

	_, err = Resolve(Rule{Mode: ModeEveryNDays, NthList: []int{0}}, today, []time.Time{day(10)})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestResolveWeekdaysAndSkipWeekends(t *testing.T) {
	// Mondays and Fridays
	dates, err := Resolve(Rule{Mode: ModeWeekdays, NthList: []int{1, 5}}, today, []time.Time{day(14)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(4), day(7), day(11), day(14)}, dates)

	dates, err = Resolve(Rule{Mode: ModeDaily, SkipWeekends: true, End: "2025-03-10"}, today, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(1), day(2), day(3), day(4), day(7)}, dates)
}

func TestResolveNthMonthDay(t *testing.T) {
	dates, err := Resolve(Rule{Mode: ModeNthMonthDay, NthList: []int{1, 15, 31}, End: "2025-05-20"}, today, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC),
	}, dates)
}

func TestResolveExpiryOffset(t *testing.T) {
	expiries := []time.Time{day(30), day(3), day(30)}
	dates, err := Resolve(Rule{Mode: ModeExpiryOffset, NthList: []int{-5, 0}}, today, expiries)
	require.NoError(t, err)
	// day(-2) is in the past and dropped; duplicates collapse
	assert.Equal(t, []time.Time{day(3), day(25), day(30)}, dates)
}

func TestResolveErrors(t *testing.T) {
	cases := map[string]Rule{
		"unknown mode": {Mode: "lunar", End: "2025-04-01"},
		"bad start":    {Mode: ModeDaily, Start: "tomorrow", End: "2025-04-01"},
		"bad end":      {Mode: ModeDaily, End: "04/01/2025"},
		"no end":       {Mode: ModeDaily},
		"inverted":     {Mode: ModeDaily, Start: "2025-04-02", End: "2025-04-01"},
		"too many":     {Mode: ModeDaily, End: "2027-01-01"},
		"weekdays":     {Mode: ModeWeekdays, End: "2025-04-01"},
	}
	for name, rule := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(rule, today, nil)
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}
}
