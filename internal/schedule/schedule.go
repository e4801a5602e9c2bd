// Package schedule generates evaluation dates from a rule, as an
// alternative to listing every date by hand.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/contactkeval/option-ev/internal/daycount"
	"github.com/contactkeval/option-ev/internal/logger"
)

// MaxDates caps how many dates one rule may produce.
const MaxDates = 366

var ErrInvalidRule = errors.New("invalid schedule rule")

// Modes accepted by Rule.Mode.
const (
	ModeDaily        = "daily"         // every calendar day
	ModeEveryNDays   = "every_n_days"  // NthList[0] days apart, starting at Start
	ModeWeekdays     = "weekdays"      // ISO weekdays in NthList, 1=Mon .. 7=Sun
	ModeNthMonthDay  = "nth_month_day" // days of month in NthList, e.g. [1, 15]
	ModeExpiryOffset = "expiry_offset" // NthList days relative to each leg expiry, e.g. [-5, 0]
)

// Rule describes a set of evaluation dates within [Start, End].
type Rule struct {
	Mode         string `json:"mode" yaml:"mode"`
	Start        string `json:"start,omitempty" yaml:"start,omitempty"`                 // YYYY-MM-DD, default: day after today
	End          string `json:"end,omitempty" yaml:"end,omitempty"`                     // YYYY-MM-DD, default: last leg expiry
	NthList      []int  `json:"nth_list,omitempty" yaml:"nth_list,omitempty"`           // mode parameter
	SkipWeekends bool   `json:"skip_weekends,omitempty" yaml:"skip_weekends,omitempty"` // drop Saturdays and Sundays
}

// Resolve returns the sorted, unique dates matching rule. today anchors the
// default start and expiries supply the default end and the expiry_offset
// anchors. Dates on or before today are dropped since they cannot be
// evaluated.
func Resolve(rule Rule, today time.Time, expiries []time.Time) ([]time.Time, error) {
	today = daycount.Date(today)

	start := today.AddDate(0, 0, 1)
	if rule.Start != "" {
		t, err := daycount.Parse(rule.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: start: %v", ErrInvalidRule, err)
		}
		start = t
	}

	var end time.Time
	for _, e := range expiries {
		if e = daycount.Date(e); e.After(end) {
			end = e
		}
	}
	if rule.End != "" {
		t, err := daycount.Parse(rule.End)
		if err != nil {
			return nil, fmt.Errorf("%w: end: %v", ErrInvalidRule, err)
		}
		end = t
	}
	if end.IsZero() {
		return nil, fmt.Errorf("%w: no end date and no expiries", ErrInvalidRule)
	}
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRule, daycount.Format(start), daycount.Format(end))
	}

	candidates, err := candidatesFor(rule, start, end, expiries)
	if err != nil {
		return nil, err
	}

	seen := make(map[time.Time]bool, len(candidates))
	out := make([]time.Time, 0, len(candidates))
	for _, d := range candidates {
		d = daycount.Date(d)
		switch {
		case d.Before(start), d.After(end), !d.After(today), seen[d]:
			continue
		case rule.SkipWeekends && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday):
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	if len(out) > MaxDates {
		return nil, fmt.Errorf("%w: %d dates exceeds the limit of %d", ErrInvalidRule, len(out), MaxDates)
	}

	logger.Debugf("event=schedule_resolved mode=%s start=%s end=%s dates=%d",
		rule.Mode, daycount.Format(start), daycount.Format(end), len(out))
	return out, nil
}

func candidatesFor(rule Rule, start, end time.Time, expiries []time.Time) ([]time.Time, error) {
	mode := strings.ToLower(strings.TrimSpace(rule.Mode))

	switch mode {
	case ModeDaily, "":
		return daycount.Range(start, end), nil

	case ModeEveryNDays:
		if len(rule.NthList) == 0 || rule.NthList[0] <= 0 {
			return nil, fmt.Errorf("%w: every_n_days needs a positive nth_list[0]", ErrInvalidRule)
		}
		var out []time.Time
		for d := start; !d.After(end); d = d.AddDate(0, 0, rule.NthList[0]) {
			out = append(out, d)
		}
		return out, nil

	case ModeWeekdays:
		if len(rule.NthList) == 0 {
			return nil, fmt.Errorf("%w: weekdays needs nth_list", ErrInvalidRule)
		}
		var out []time.Time
		for _, d := range daycount.Range(start, end) {
			if intSliceContains(rule.NthList, isoWeekday(d)) {
				out = append(out, d)
			}
		}
		return out, nil

	case ModeNthMonthDay:
		if len(rule.NthList) == 0 {
			return nil, fmt.Errorf("%w: nth_month_day needs nth_list", ErrInvalidRule)
		}
		var out []time.Time
		for m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(end); m = m.AddDate(0, 1, 0) {
			for _, dayNum := range rule.NthList {
				if dayNum < 1 || dayNum > 31 {
					continue
				}
				d := time.Date(m.Year(), m.Month(), dayNum, 0, 0, 0, 0, time.UTC)
				if d.Month() != m.Month() {
					continue // e.g. Feb 30
				}
				out = append(out, d)
			}
		}
		return out, nil

	case ModeExpiryOffset:
		if len(rule.NthList) == 0 {
			return nil, fmt.Errorf("%w: expiry_offset needs nth_list", ErrInvalidRule)
		}
		var out []time.Time
		for _, e := range expiries {
			for _, offset := range rule.NthList {
				out = append(out, daycount.Date(e).AddDate(0, 0, offset))
			}
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRule, rule.Mode)
}

// isoWeekday numbers Monday 1 through Sunday 7.
func isoWeekday(d time.Time) int {
	wd := int(d.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func intSliceContains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
