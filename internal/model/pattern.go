package model

import (
	"fmt"
	"strings"
	"time"
)

// WorkingHours is a daily window expressed as "HH:MM" wall-clock strings.
type WorkingHours struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// DefaultWorkingHours is used when a caller supplies none.
var DefaultWorkingHours = WorkingHours{Start: "09:00", End: "17:00"}

// Contains reports whether the wall-clock time of t falls inside the window.
// Unparseable bounds make the window match nothing.
func (w WorkingHours) Contains(t time.Time) bool {
	start, err := ParseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(w.End)
	if err != nil {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if start <= end {
		return m >= start && m < end
	}
	// Overnight window, e.g. 22:00-06:00.
	return m >= start || m < end
}

// UserPattern is read-only context about a user's habits, owned and persisted
// by an external profile store.
type UserPattern struct {
	PreferredTimes         []string       `yaml:"preferred_times" json:"preferred_times,omitempty"`
	PreferredDays          []time.Weekday `yaml:"preferred_days" json:"preferred_days,omitempty"`
	PreferredLocations     []string       `yaml:"preferred_locations" json:"preferred_locations,omitempty"`
	PreferredCategories    []string       `yaml:"preferred_categories" json:"preferred_categories,omitempty"`
	AverageDurationMinutes float64        `yaml:"average_duration_minutes" json:"average_duration_minutes,omitempty"`
	WorkingHours           WorkingHours   `yaml:"working_hours" json:"working_hours"`
}

// PrefersTime reports whether t's wall-clock "HH:MM" is a preferred time.
func (p *UserPattern) PrefersTime(t time.Time) bool {
	if p == nil {
		return false
	}
	hhmm := t.Format("15:04")
	for _, pt := range p.PreferredTimes {
		if strings.TrimSpace(pt) == hhmm {
			return true
		}
	}
	return false
}

func (p *UserPattern) PrefersDay(d time.Weekday) bool {
	if p == nil {
		return false
	}
	for _, pd := range p.PreferredDays {
		if pd == d {
			return true
		}
	}
	return false
}

// KnowsLocation does a case-insensitive substring match in either direction,
// so "Room 4, HQ" matches a known "HQ".
func (p *UserPattern) KnowsLocation(loc string) bool {
	if p == nil {
		return false
	}
	l := strings.ToLower(strings.TrimSpace(loc))
	if l == "" {
		return false
	}
	for _, known := range p.PreferredLocations {
		k := strings.ToLower(strings.TrimSpace(known))
		if k == "" {
			continue
		}
		if strings.Contains(l, k) || strings.Contains(k, l) {
			return true
		}
	}
	return false
}

func (p *UserPattern) KnowsCategory(cat string) bool {
	if p == nil || cat == "" {
		return false
	}
	for _, c := range p.PreferredCategories {
		if strings.EqualFold(strings.TrimSpace(c), cat) {
			return true
		}
	}
	return false
}

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
