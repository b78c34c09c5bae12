package ics

import (
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"schedcore/internal/model"
)

const productID = "-//schedcore//schedcore//EN"

// Encode writes events as a VCALENDAR. All-day events are written as DATE
// values in loc; timed events are written in UTC.
func Encode(w io.Writer, events []model.Event, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	stamp := time.Now().UTC()
	for _, ev := range events {
		writeVEvent(cal.AddEvent(ev.ID), ev, loc, stamp)
	}
	return cal.SerializeTo(w)
}

func writeVEvent(ve *ical.VEvent, ev model.Event, loc *time.Location, stamp time.Time) {
	if !ev.UpdatedAt.IsZero() {
		stamp = ev.UpdatedAt.UTC()
		ve.SetProperty(ical.ComponentPropertyLastModified, stamp.Format("20060102T150405Z"))
	}
	ve.SetDtStampTime(stamp)

	iv := ev.Interval
	if iv.AllDay {
		start := iv.Start.In(loc)
		end := iv.End.In(loc)
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		ve.SetProperty(ical.ComponentPropertyDtStart, start.Format("20060102"), dateValue())
		ve.SetProperty(ical.ComponentPropertyDtEnd, end.Format("20060102"), dateValue())
	} else {
		ve.SetStartAt(iv.Start)
		ve.SetEndAt(iv.End)
	}

	ve.SetSummary(ev.Title)
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if ev.Category != "" {
		ve.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(ev.Category))
	}
	if n := priorityToICS(ev.Priority); n > 0 {
		ve.SetProperty(ical.ComponentPropertyPriority, strconv.Itoa(n))
	}
	for _, a := range ev.Attendees {
		var params []ical.PropertyParameter
		if a.Name != "" {
			params = append(params, &ical.KeyValues{Key: string(ical.ParameterCn), Value: []string{a.Name}})
		}
		if a.Status != "" {
			params = append(params, &ical.KeyValues{Key: string(ical.ParameterParticipationStatus), Value: []string{strings.ToUpper(a.Status)}})
		}
		ve.AddProperty(ical.ComponentPropertyAttendee, "mailto:"+a.Email, params...)
	}
	if ev.Recurrence != "" {
		ve.AddProperty(ical.ComponentPropertyRrule, strings.TrimPrefix(ev.Recurrence, "RRULE:"))
	}
}

func dateValue() ical.PropertyParameter {
	return &ical.KeyValues{Key: string(ical.ParameterValue), Value: []string{"DATE"}}
}
