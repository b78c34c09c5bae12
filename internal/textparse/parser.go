// Package textparse turns free-form scheduling text into raw event
// descriptions. Two strategies implement Parser: Heuristic (regular
// expressions, no I/O) and Model (a language model behind a Completer).
package textparse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"schedcore/internal/model"
)

// Context is what a parser may use besides the text itself.
type Context struct {
	CurrentDate    time.Time          `json:"currentDate"`
	WorkingHours   model.WorkingHours `json:"workingHours"`
	ExistingEvents []model.Event      `json:"existingEvents,omitempty"`
	Preferences    *model.UserPattern `json:"preferences,omitempty"`

	// Location resolves wall-clock times; nil means UTC.
	Location *time.Location `json:"-"`
}

func (c Context) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// RawEvent is an event as a parser reports it: loosely typed, not yet
// validated. Start and End are RFC 3339 or local "2006-01-02T15:04" forms.
type RawEvent struct {
	ID              string           `json:"id,omitempty"`
	Title           string           `json:"title"`
	Start           string           `json:"start"`
	End             string           `json:"end,omitempty"`
	DurationMinutes int              `json:"durationMinutes,omitempty"`
	AllDay          bool             `json:"allDay,omitempty"`
	Location        string           `json:"location,omitempty"`
	Description     string           `json:"description,omitempty"`
	Category        string           `json:"category,omitempty"`
	Priority        string           `json:"priority,omitempty"`
	EnergyLevel     string           `json:"energyLevel,omitempty"`
	Resources       []string         `json:"resources,omitempty"`
	Attendees       []model.Attendee `json:"attendees,omitempty"`
	Recurrence      string           `json:"recurrence,omitempty"`
}

// Result mirrors the JSON object returned by a parse.
type Result struct {
	Events                 []RawEvent `json:"events"`
	Message                string     `json:"message,omitempty"`
	NeedsClarification     bool       `json:"needsClarification"`
	ClarificationQuestions []string   `json:"clarificationQuestions,omitempty"`
	Suggestions            []string   `json:"suggestions,omitempty"`
	Warnings               []string   `json:"warnings,omitempty"`
}

type Parser interface {
	Parse(ctx context.Context, text string, pc Context) (*Result, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(ctx context.Context, text string, pc Context) (*Result, error)

func (f ParserFunc) Parse(ctx context.Context, text string, pc Context) (*Result, error) {
	return f(ctx, text, pc)
}

const defaultDuration = time.Hour

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTime accepts RFC 3339 or a zone-less local form interpreted in loc.
// A bare date yields midnight and dateOnly=true.
func ParseTime(s string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("unrecognized time %q", s)
}

// Interval resolves the event's span. A missing end falls back to
// DurationMinutes, then to one hour (a whole day for all-day events).
func (r RawEvent) Interval(loc *time.Location) (model.TimeInterval, error) {
	if strings.TrimSpace(r.Start) == "" {
		return model.TimeInterval{}, fmt.Errorf("event %q has no start", r.Title)
	}
	start, dateOnly, err := ParseTime(r.Start, loc)
	if err != nil {
		return model.TimeInterval{}, fmt.Errorf("start: %w", err)
	}
	allDay := r.AllDay || dateOnly

	var end time.Time
	switch {
	case strings.TrimSpace(r.End) != "":
		if end, _, err = ParseTime(r.End, loc); err != nil {
			return model.TimeInterval{}, fmt.Errorf("end: %w", err)
		}
	case r.DurationMinutes > 0:
		end = start.Add(time.Duration(r.DurationMinutes) * time.Minute)
	case allDay:
		end = start.AddDate(0, 0, 1)
	default:
		end = start.Add(defaultDuration)
	}

	iv := model.NewInterval(start, end, allDay)
	if err := iv.Validate(); err != nil {
		return model.TimeInterval{}, err
	}
	return iv, nil
}
