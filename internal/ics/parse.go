package ics

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "schedcore/internal/log"
	"schedcore/internal/model"
	"schedcore/internal/recurrence"
)

const (
	propRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")
	propDuration     = ical.ComponentProperty("DURATION")
)

// Entry is one VEVENT as read from a calendar. Event carries everything the
// scheduling core understands; the remaining fields are only needed to expand
// recurring series.
type Entry struct {
	Event model.Event

	// Zone is the location of DTSTART. Recurrences are expanded in it so that
	// wall-clock times survive DST changes.
	Zone *time.Location
	Seq  int

	// RawRule is the RRULE exactly as found in the feed.
	RawRule      string
	ExDates      []time.Time
	RecurrenceID *time.Time
}

// IsOverride reports whether the entry replaces a single instance of a series.
func (e Entry) IsOverride() bool {
	return e.RecurrenceID != nil
}

// Parse reads an ICS payload. Floating and date-only values are interpreted
// in loc. A VEVENT that cannot be read is logged and skipped.
func Parse(body []byte, loc *time.Location) ([]Entry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	entries := make([]Entry, 0)
	for _, ve := range cal.Events() {
		en, perr := parseVEvent(ve, loc)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "uid", ve.Id(), "reason", perr.Error())
			continue
		}
		entries = append(entries, en)
	}

	appLog.Debug("ics parse completed", "event_count", len(entries))
	return entries, nil
}

// Events returns the base events of entries, dropping instance overrides.
func Events(entries []Entry) []model.Event {
	out := make([]model.Event, 0, len(entries))
	for _, en := range entries {
		if en.IsOverride() {
			continue
		}
		out = append(out, en.Event)
	}
	return out
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (Entry, error) {
	var en Entry

	uid := strings.TrimSpace(ve.Id())
	if uid == "" {
		return en, errors.New("missing UID")
	}
	en.Event.ID = uid

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			en.Seq = n
		}
	}

	en.Event.Title = propText(ve, ical.ComponentPropertySummary)
	en.Event.Description = propText(ve, ical.ComponentPropertyDescription)
	en.Event.Location = propText(ve, ical.ComponentPropertyLocation)
	if cats := propText(ve, ical.ComponentPropertyCategories); cats != "" {
		first, _, _ := strings.Cut(cats, ",")
		en.Event.Category = strings.ToLower(strings.TrimSpace(first))
	}
	if p := ve.GetProperty(ical.ComponentPropertyPriority); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			en.Event.Priority = priorityFromICS(n)
		}
	}
	en.Event.Attendees = parseAttendees(ve)

	iv, zone, err := parseInterval(ve, loc)
	if err != nil {
		return en, err
	}
	en.Event.Interval = iv
	en.Zone = zone

	if p := ve.GetProperty(ical.ComponentPropertyLastModified); p != nil {
		if t, err := parseICSTime(p.Value, nil, time.UTC); err == nil {
			en.Event.UpdatedAt = t.UTC()
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		en.RawRule = strings.TrimSpace(p.Value)
		canonical, err := canonicalRule(en.RawRule)
		if err != nil {
			return en, fmt.Errorf("RRULE %q: %w", en.RawRule, err)
		}
		en.Event.Recurrence = canonical
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			if t, err := parseICSTime(part, p.ICalParameters, zone); err == nil {
				en.ExDates = append(en.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(propRecurrenceID); p != nil {
		if t, err := parseICSTime(p.Value, p.ICalParameters, zone); err == nil {
			en.RecurrenceID = &t
		}
	}

	return en, nil
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\,`, ",", `\;`, ";", `\n`, "\n", `\N`, "\n")

func propText(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return strings.TrimSpace(textUnescaper.Replace(p.Value))
	}
	return ""
}

// parseInterval reads DTSTART together with DTEND or DURATION. Without
// either, all-day events last one day and timed events one hour.
func parseInterval(ve *ical.VEvent, loc *time.Location) (model.TimeInterval, *time.Location, error) {
	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return model.TimeInterval{}, nil, errors.New("missing DTSTART")
	}
	allDay := isDateValue(startProp)

	start, err := parseICSTime(startProp.Value, startProp.ICalParameters, loc)
	if err != nil {
		return model.TimeInterval{}, nil, fmt.Errorf("DTSTART: %w", err)
	}

	var end time.Time
	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		end, err = parseICSTime(endProp.Value, endProp.ICalParameters, start.Location())
		if err != nil {
			return model.TimeInterval{}, nil, fmt.Errorf("DTEND: %w", err)
		}
	} else if durProp := ve.GetProperty(propDuration); durProp != nil {
		d, err := parseDuration(durProp.Value)
		if err != nil {
			return model.TimeInterval{}, nil, fmt.Errorf("DURATION: %w", err)
		}
		end = start.Add(d)
	} else if allDay {
		end = start.AddDate(0, 0, 1)
	} else {
		end = start.Add(time.Hour)
	}

	iv := model.NewInterval(start, end, allDay)
	if err := iv.Validate(); err != nil {
		return model.TimeInterval{}, nil, err
	}
	return iv, start.Location(), nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseICSTime handles the DATE, floating DATE-TIME, UTC and TZID forms.
// Floating and date-only values are read in fallback.
func parseICSTime(v string, params map[string][]string, fallback *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if fallback == nil {
		fallback = time.UTC
	}

	loc := fallback
	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(strings.Trim(tzs[0], `"`)); err == nil {
			loc = l
		} else {
			appLog.Debug("unknown TZID, using fallback zone", "tzid", tzs[0], "fallback", fallback.String())
		}
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

var durationRe = regexp.MustCompile(`^([+-])?P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseDuration reads an RFC 5545 DURATION value such as "PT1H30M" or "P1D".
func parseDuration(v string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(v)))
	if m == nil || strings.Join(m[2:], "") == "" {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+2] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+2])
		d += time.Duration(n) * unit
	}
	if m[1] == "-" {
		d = -d
	}
	return d, nil
}

// canonicalRule checks the RRULE with rrule-go and rewrites it in canonical
// form when it fits the recurrence model. Valid rules outside that model are
// kept verbatim.
func canonicalRule(raw string) (string, error) {
	if _, err := rrule.StrToRRule(strings.TrimPrefix(raw, "RRULE:")); err != nil {
		return "", err
	}
	r, err := recurrence.ParseRule(raw)
	if err != nil {
		appLog.Debug("keeping RRULE verbatim", "rrule", raw, "reason", err.Error())
		return raw, nil
	}
	return recurrence.NewEngine().GenerateRule(r)
}

func parseAttendees(ve *ical.VEvent) []model.Attendee {
	var out []model.Attendee
	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		email := strings.TrimSpace(p.Value)
		if len(email) >= 7 && strings.EqualFold(email[:7], "mailto:") {
			email = email[7:]
		}
		if email == "" {
			continue
		}
		a := model.Attendee{Email: email}
		if cn, ok := p.ICalParameters[string(ical.ParameterCn)]; ok && len(cn) > 0 {
			a.Name = cn[0]
		}
		if st, ok := p.ICalParameters[string(ical.ParameterParticipationStatus)]; ok && len(st) > 0 {
			a.Status = strings.ToLower(st[0])
		}
		out = append(out, a)
	}
	return out
}

// ICS priorities run 1 (highest) to 9 (lowest); 0 is undefined.
func priorityFromICS(n int) model.Priority {
	switch {
	case n == 1:
		return model.PriorityUrgent
	case n >= 2 && n <= 4:
		return model.PriorityHigh
	case n == 5:
		return model.PriorityMedium
	case n >= 6 && n <= 9:
		return model.PriorityLow
	}
	return ""
}

func priorityToICS(p model.Priority) int {
	switch p {
	case model.PriorityUrgent:
		return 1
	case model.PriorityHigh:
		return 3
	case model.PriorityMedium:
		return 5
	case model.PriorityLow:
		return 7
	}
	return 0
}
