// Package daycount converts calendar dates into year fractions.
//
// Only the Actual/365-fixed convention is needed: the numerator is the
// number of calendar days between two dates and the denominator is 365
// regardless of leap years. Times of day and locations are ignored; a
// date is the civil date as seen in the time's own location.
package daycount

import (
	"fmt"
	"time"
)

// DaysPerYear is the Actual/365-fixed denominator.
const DaysPerYear = 365.0

// DateLayout is the layout used for dates in configs, reports and APIs.
const DateLayout = "2006-01-02"

// Date truncates t to midnight UTC of its civil date.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Days returns the signed number of calendar days from start to end.
func Days(start, end time.Time) int {
	// both operands are UTC midnights, so the difference is an exact multiple of 24h
	return int(Date(end).Sub(Date(start)).Hours() / 24)
}

// YearFraction returns Actual/365-fixed (end - start) in years.
// The result is negative when end is before start.
func YearFraction(start, end time.Time) float64 {
	return float64(Days(start, end)) / DaysPerYear
}

// Parse reads a YYYY-MM-DD date.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Format renders t as YYYY-MM-DD.
func Format(t time.Time) string {
	return Date(t).Format(DateLayout)
}

// Range returns every date from start to end inclusive, one day apart.
func Range(start, end time.Time) []time.Time {
	var out []time.Time
	for d := Date(start); !d.After(Date(end)); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
