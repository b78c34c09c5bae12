package model

import (
	"errors"
	"strings"
	"time"

	"schedcore/internal/recurrence"
)

// TimeInterval is a half-open [Start, End) span normalized to UTC.
// All-day intervals may have Start == End.
type TimeInterval struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day,omitempty"`
}

// NewInterval builds a UTC-normalized interval.
func NewInterval(start, end time.Time, allDay bool) TimeInterval {
	return TimeInterval{Start: start.UTC(), End: end.UTC(), AllDay: allDay}
}

// Validate checks the Start < End invariant.
func (ti TimeInterval) Validate() error {
	if ti.Start.IsZero() || ti.End.IsZero() {
		return errors.New("interval timestamps cannot be zero")
	}
	if ti.AllDay {
		if ti.End.Before(ti.Start) {
			return errors.New("all-day interval ends before it starts")
		}
		return nil
	}
	if !ti.Start.Before(ti.End) {
		return errors.New("interval start must be before end")
	}
	return nil
}

func (ti TimeInterval) Duration() time.Duration {
	return ti.End.Sub(ti.Start)
}

// Overlaps reports whether the two intervals intersect (touching ends do not).
func (ti TimeInterval) Overlaps(o TimeInterval) bool {
	return ti.Start.Before(o.End) && o.Start.Before(ti.End)
}

// OverlapWith returns the length of the intersection, or zero.
func (ti TimeInterval) OverlapWith(o TimeInterval) time.Duration {
	if !ti.Overlaps(o) {
		return 0
	}
	start := ti.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := ti.End
	if o.End.Before(end) {
		end = o.End
	}
	return end.Sub(start)
}

// GapTo returns the free time between the earlier interval's end and the later
// interval's start, regardless of argument order. Negative when they overlap.
func (ti TimeInterval) GapTo(o TimeInterval) time.Duration {
	if o.Start.Before(ti.Start) {
		return ti.Start.Sub(o.End)
	}
	return o.Start.Sub(ti.End)
}

// Attendee is keyed by Email for merging purposes.
type Attendee struct {
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// Key returns the normalized email used to match attendees across copies.
func (a Attendee) Key() string {
	return strings.ToLower(strings.TrimSpace(a.Email))
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// EnergyLevel is an ordinal 3-level scale. The zero value means "not set".
type EnergyLevel string

const (
	EnergyLow    EnergyLevel = "low"
	EnergyMedium EnergyLevel = "medium"
	EnergyHigh   EnergyLevel = "high"
)

// Rank maps the level onto 1..3, or 0 if unset/unknown.
func (e EnergyLevel) Rank() int {
	switch e {
	case EnergyLow:
		return 1
	case EnergyMedium:
		return 2
	case EnergyHigh:
		return 3
	default:
		return 0
	}
}

// ParseEnergyLevel accepts case-insensitive level names; unknown input yields "".
func ParseEnergyLevel(s string) EnergyLevel {
	l := EnergyLevel(strings.ToLower(strings.TrimSpace(s)))
	if l.Rank() == 0 {
		return ""
	}
	return l
}

// Event is a calendar event as held by a caller-owned store (local or remote).
type Event struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Interval    TimeInterval `json:"interval"`
	Location    string       `json:"location,omitempty"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
	Priority    Priority     `json:"priority,omitempty"`
	Attendees   []Attendee   `json:"attendees,omitempty"`

	// Recurrence is the canonical FREQ=... string, if the event repeats.
	Recurrence string    `json:"recurrence,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// ConflictRef is the per-event view of a detected scheduling conflict.
type ConflictRef struct {
	Type         string `json:"type"`
	Severity     string `json:"severity"`
	OtherEventID string `json:"other_event_id"`
	Suggestion   string `json:"suggestion,omitempty"`
}

// EventCandidate is an event derived from text (or lifted from an existing
// event) and enriched in place by conflict detection and confidence scoring.
type EventCandidate struct {
	Event

	EnergyLevel EnergyLevel      `json:"energy_level,omitempty"`
	Resources   []string         `json:"resources,omitempty"`
	Confidence  float64          `json:"confidence"`
	Rule        *recurrence.Rule `json:"rule,omitempty"`
	Conflicts   []ConflictRef    `json:"conflicts,omitempty"`

	// Existing marks candidates lifted from the caller's current calendar.
	Existing bool `json:"existing,omitempty"`
}

// CandidateFromEvent lifts a stored event into a candidate for analysis.
func CandidateFromEvent(ev Event) *EventCandidate {
	c := &EventCandidate{Event: ev, Existing: true, Confidence: 1}
	if ev.Recurrence != "" {
		if r, err := recurrence.ParseRule(ev.Recurrence); err == nil {
			c.Rule = &r
		}
	}
	return c
}
