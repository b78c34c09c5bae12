package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "schedcore/internal/log"
	"schedcore/internal/model"
)

const defaultMaxOccurrences = 5000

// Window bounds an expansion. Both ends are inclusive.
type Window struct {
	Start time.Time
	End   time.Time

	// MaxPerEvent caps the instances produced for one series. Zero means
	// defaultMaxOccurrences.
	MaxPerEvent int
}

// ExpandResult lists concrete events and the UIDs whose series were cut
// short by the cap.
type ExpandResult struct {
	Events    []model.Event
	Truncated []string
}

// Expand returns the starts of rule anchored at dtstart that fall inside
// [from, to]. At most max starts are returned; truncated is set when more
// existed.
func Expand(rule string, dtstart, from, to time.Time, max int) (starts []time.Time, truncated bool, err error) {
	return expandSet(rule, dtstart, nil, from, to, max)
}

func expandSet(rule string, dtstart time.Time, exdates []time.Time, from, to time.Time, max int) ([]time.Time, bool, error) {
	if to.Before(from) {
		return nil, false, errors.New("expand: window end is before its start")
	}
	if max <= 0 {
		max = defaultMaxOccurrences
	}

	r, err := rrule.StrToRRule(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if err != nil {
		return nil, false, fmt.Errorf("expand: %w", err)
	}
	r.DTStart(dtstart)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range exdates {
		set.ExDate(ex.In(dtstart.Location()))
	}

	loc := dtstart.Location()
	starts := set.Between(from.In(loc), to.In(loc), true)
	if len(starts) > max {
		return starts[:max], true, nil
	}
	return starts, false, nil
}

// ExpandEntries turns parsed entries into concrete events inside w. Each
// instance of a series gets an ID of the form "<uid>/<UTC start>", and a
// RECURRENCE-ID override replaces the instance it names. Series that cannot
// be expanded are logged and skipped.
func ExpandEntries(entries []Entry, w Window) (ExpandResult, error) {
	var res ExpandResult
	if w.End.Before(w.Start) {
		return res, errors.New("expand: window end is before its start")
	}

	overrides := make(map[string][]Entry)
	var bases []Entry
	for _, en := range entries {
		if en.IsOverride() {
			overrides[en.Event.ID] = append(overrides[en.Event.ID], en)
			continue
		}
		bases = append(bases, en)
	}

	res.Events = make([]model.Event, 0, len(bases))
	for _, base := range bases {
		if base.RawRule == "" {
			if inWindow(base.Event.Interval, w) {
				res.Events = append(res.Events, base.Event)
			}
			continue
		}

		zone := base.Zone
		if zone == nil {
			zone = time.UTC
		}
		dtstart := base.Event.Interval.Start.In(zone)
		// Instances that start before the window may still run into it.
		from := w.Start.Add(-base.Event.Interval.Duration())

		starts, truncated, err := expandSet(base.RawRule, dtstart, base.ExDates, from, w.End, w.MaxPerEvent)
		if err != nil {
			appLog.Error("expand: series skipped", err, "uid", base.Event.ID, "rrule", base.RawRule)
			continue
		}
		if truncated {
			res.Truncated = append(res.Truncated, base.Event.ID)
			appLog.Warn("expand: series truncated", "uid", base.Event.ID, "cap", w.MaxPerEvent)
		}

		for _, start := range starts {
			ev := instance(base, start)
			if ov, ok := findOverride(overrides[base.Event.ID], start); ok {
				ev.Title = ov.Event.Title
				ev.Description = ov.Event.Description
				ev.Location = ov.Event.Location
				ev.Interval = ov.Event.Interval
				if !ov.Event.UpdatedAt.IsZero() {
					ev.UpdatedAt = ov.Event.UpdatedAt
				}
			}
			if inWindow(ev.Interval, w) {
				res.Events = append(res.Events, ev)
			}
		}
	}

	return res, nil
}

func instance(base Entry, start time.Time) model.Event {
	ev := base.Event
	var end time.Time
	if ev.Interval.AllDay {
		// Keep whole days in the series zone.
		days := int(ev.Interval.Duration().Hours()+12) / 24
		end = start.AddDate(0, 0, days)
	} else {
		end = start.Add(ev.Interval.Duration())
	}
	ev.ID = fmt.Sprintf("%s/%s", base.Event.ID, start.UTC().Format("20060102T150405Z"))
	ev.Interval = model.NewInterval(start, end, ev.Interval.AllDay)
	ev.Recurrence = ""
	return ev
}

func findOverride(overrides []Entry, start time.Time) (Entry, bool) {
	for _, ov := range overrides {
		if ov.RecurrenceID.Equal(start) {
			return ov, true
		}
	}
	return Entry{}, false
}

func inWindow(iv model.TimeInterval, w Window) bool {
	return !iv.End.Before(w.Start) && !w.End.Before(iv.Start)
}
