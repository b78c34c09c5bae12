package recurrence

import (
	"slices"
	"time"
)

// NextOccurrences returns up to n occurrence instants strictly after from, in
// chronological order. The time of day is taken from from. COUNT limits the
// sequence to that many instants and UNTIL ends it. Fewer than n instants are
// returned when no further valid date can be derived.
func (e *Engine) NextOccurrences(r Rule, from time.Time, n int) []time.Time {
	if n <= 0 || r.Validate() != nil {
		return nil
	}

	limit := n
	if r.Count > 0 && r.Count < limit {
		limit = r.Count
	}

	out := make([]time.Time, 0, limit)
	current := from
	for len(out) < limit {
		next, ok := advance(r, current, from)
		if !ok || !next.After(current) {
			break
		}
		if r.Until != nil && next.After(*r.Until) {
			break
		}
		out = append(out, next)
		current = next
	}
	return out
}

// advance computes the first occurrence after current. anchor supplies the
// day-of-month and month for rules that carry no explicit qualifiers.
func advance(r Rule, current, anchor time.Time) (time.Time, bool) {
	interval := r.interval()

	switch r.Frequency {
	case Daily:
		if len(r.ByDay) == 0 {
			return current.AddDate(0, 0, interval), true
		}
		next := current
		for i := 0; i < 7*interval; i++ {
			next = next.AddDate(0, 0, interval)
			if slices.Contains(r.ByDay, WeekdayOf(next.Weekday())) {
				return next, true
			}
		}
		return time.Time{}, false

	case Weekly:
		if len(r.ByDay) == 0 {
			return current.AddDate(0, 0, 7*interval), true
		}
		return nextWeekly(r.sortedDays(), interval, current), true

	case Monthly:
		return nextMonthly(r, interval, current, anchor)

	case Yearly:
		for i := 1; i <= maxBarrenPeriods; i++ {
			y := current.Year() + i*interval
			cand := time.Date(y, anchor.Month(), anchor.Day(), current.Hour(), current.Minute(),
				current.Second(), current.Nanosecond(), current.Location())
			// Feb 29 normalizes into March on non-leap years; skip those.
			if cand.Month() == anchor.Month() {
				return cand, true
			}
		}
		return time.Time{}, false

	default:
		return time.Time{}, false
	}
}

// nextWeekly picks the nearest target weekday later in the current week, or
// wraps to the first target of the next cycle (interval weeks ahead).
func nextWeekly(days []Weekday, interval int, current time.Time) time.Time {
	cur := mondayOffset(current)
	for _, d := range days {
		if off := d.offset(); off > cur {
			return current.AddDate(0, 0, off-cur)
		}
	}
	weekStart := current.AddDate(0, 0, -cur)
	return weekStart.AddDate(0, 0, 7*interval+days[0].offset())
}

// nextMonthly scans the current month and then every interval-th month after
// it for the first qualifying day later than current.
func nextMonthly(r Rule, interval int, current, anchor time.Time) (time.Time, bool) {
	y, m := current.Year(), current.Month()
	for i := 0; i <= maxBarrenPeriods; i++ {
		first := time.Date(y, m+time.Month(i*interval), 1, current.Hour(), current.Minute(),
			current.Second(), current.Nanosecond(), current.Location())
		for _, day := range monthDays(r, first, anchor.Day()) {
			cand := first.AddDate(0, 0, day-1)
			if cand.After(current) {
				return cand, true
			}
		}
	}
	return time.Time{}, false
}

// monthDays returns the ascending days of first's month that satisfy the rule.
func monthDays(r Rule, first time.Time, anchorDay int) []int {
	daysIn := first.AddDate(0, 1, -1).Day()

	if len(r.ByDay) > 0 {
		var matching []int
		for d := 1; d <= daysIn; d++ {
			wd := WeekdayOf(first.AddDate(0, 0, d-1).Weekday())
			if slices.Contains(r.ByDay, wd) {
				matching = append(matching, d)
			}
		}
		switch {
		case r.BySetPos > 0 && r.BySetPos <= len(matching):
			return []int{matching[r.BySetPos-1]}
		case r.BySetPos < 0 && -r.BySetPos <= len(matching):
			return []int{matching[len(matching)+r.BySetPos]}
		case r.BySetPos != 0:
			return nil
		default:
			return matching
		}
	}

	targets := r.ByMonthDay
	if len(targets) == 0 {
		targets = []int{anchorDay}
	}
	var out []int
	for _, t := range targets {
		d := t
		if d < 0 {
			d = daysIn + t + 1
		}
		if d >= 1 && d <= daysIn && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return out
}
