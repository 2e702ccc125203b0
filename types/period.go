package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateOf truncates t to midnight UTC of its calendar day
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Period is a calendar distance, months are clamped to the end of the target month
type Period struct {
	Years  int
	Months int
	Days   int
}

// DaysPeriod creates a Period of n days
func DaysPeriod(n int) Period { return Period{Days: n} }

// MonthsPeriod creates a Period of n months
func MonthsPeriod(n int) Period { return Period{Months: n} }

// YearsPeriod creates a Period of n years
func YearsPeriod(n int) Period { return Period{Years: n} }

// AddTo moves t forward by the period.
// Jan 31 plus one month is Feb 28 (or 29), never Mar 3.
func (p Period) AddTo(t time.Time) time.Time {
	months := p.Years*12 + p.Months
	if months != 0 {
		y, m, d := t.Date()
		total := int(m) - 1 + months
		ty := y + total/12
		tm := total % 12
		if tm < 0 {
			tm += 12
			ty--
		}
		target := time.Month(tm + 1)
		if last := daysIn(ty, target); d > last {
			d = last
		}
		h, mi, s := t.Clock()
		t = time.Date(ty, target, d, h, mi, s, t.Nanosecond(), t.Location())
	}
	return t.AddDate(0, 0, p.Days)
}

// SubFrom moves t backward by the period
func (p Period) SubFrom(t time.Time) time.Time {
	return Period{Years: -p.Years, Months: -p.Months, Days: -p.Days}.AddTo(t)
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (p Period) String() string {
	var b strings.Builder
	if p.Years != 0 {
		fmt.Fprintf(&b, "%dy", p.Years)
	}
	if p.Months != 0 {
		fmt.Fprintf(&b, "%dmo", p.Months)
	}
	if p.Days != 0 {
		if p.Days%7 == 0 {
			fmt.Fprintf(&b, "%dw", p.Days/7)
		} else {
			fmt.Fprintf(&b, "%dd", p.Days)
		}
	}
	if b.Len() == 0 {
		return "0d"
	}
	return b.String()
}

// ParsePeriod parses periods like "1y", "6mo", "2w", "3d"
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	var unit string
	for _, u := range []string{"mo", "y", "w", "d"} {
		if strings.HasSuffix(s, u) {
			unit = u
			break
		}
	}
	if unit == "" {
		return Period{}, fmt.Errorf("%w: period %q has no unit", ErrValidation, s)
	}
	n, e := strconv.Atoi(strings.TrimSuffix(s, unit))
	if e != nil {
		return Period{}, fmt.Errorf("%w: period %q: %v", ErrValidation, s, e)
	}

	switch unit {
	case "y":
		return Period{Years: n}, nil
	case "mo":
		return Period{Months: n}, nil
	case "w":
		return Period{Days: 7 * n}, nil
	default:
		return Period{Days: n}, nil
	}
}

// ParsePeriods parses a comma separated list of periods
func ParsePeriods(s string) ([]Period, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]Period, 0, len(parts))
	for _, part := range parts {
		p, e := ParsePeriod(part)
		if e != nil {
			return nil, e
		}
		out = append(out, p)
	}
	return out, nil
}
