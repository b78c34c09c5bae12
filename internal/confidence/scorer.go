// Package confidence estimates how unambiguous a parsed event is, given the
// text it came from and what is known about the user's habits.
package confidence

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"schedcore/internal/model"
)

// Factor weights; they sum to 1.
const (
	weightTime         = 0.20
	weightDate         = 0.20
	weightLocation     = 0.10
	weightTitle        = 0.15
	weightContext      = 0.10
	weightAmbiguity    = 0.10
	weightCompleteness = 0.10
	weightConsistency  = 0.05
)

const (
	suggestBelow = 0.7
	warnBelow    = 0.5
	base         = 0.5
)

// Score is the per-factor breakdown. Every factor lies in [0,1]; for
// AmbiguityLevel higher means less ambiguous.
type Score struct {
	TimeClarity      float64  `json:"time_clarity"`
	DateClarity      float64  `json:"date_clarity"`
	LocationClarity  float64  `json:"location_clarity"`
	TitleClarity     float64  `json:"title_clarity"`
	ContextRelevance float64  `json:"context_relevance"`
	AmbiguityLevel   float64  `json:"ambiguity_level"`
	Completeness     float64  `json:"completeness"`
	Consistency      float64  `json:"consistency"`
	Overall          float64  `json:"overall"`
	Suggestions      []string `json:"suggestions,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

type Scorer struct {
	now func() time.Time
	loc *time.Location
}

type Option func(*Scorer)

func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// WithLocation sets the zone used for wall-clock checks such as working
// hours and preferred times.
func WithLocation(loc *time.Location) Option {
	return func(s *Scorer) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	explicitTimeRe = regexp.MustCompile(`\b(?:[01]?\d|2[0-3]):[0-5]\d\b|\b(?:1[0-2]|0?[1-9])(?::[0-5]\d)?\s*(?:am|pm|a\.m\.|p\.m\.)|\b(?:noon|midnight)\b`)
	durationRe     = regexp.MustCompile(`\b\d+(?:\.\d+)?\s*(?:h|hrs?|hours?|mins?|minutes?)\b|\b(?:half an hour|an hour|all day)\b|\b\d{1,2}(?::\d{2})?\s*(?:am|pm)?\s*(?:-|to|until)\s*\d{1,2}(?::\d{2})?\s*(?:am|pm)?\b`)
	dateRe         = regexp.MustCompile(`\b(?:today|tonight|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday|next\s+week|this\s+week)\b|\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}\b|\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b|\b\d{4}-\d{2}-\d{2}\b`)
	specificLocRe  = regexp.MustCompile(`(?i)\b(?:room|rm|building|bldg|floor|suite|office|hall|street|st\.|avenue|ave|road|rd|boulevard|blvd|lane|drive|conference)\b|\b\d+\s+\w+\s+(?:street|st|avenue|ave|road|rd)\b|#\s?\d+`)
	hedgeRe        = regexp.MustCompile(`\b(maybe|possibly|might|could|perhaps|probably)\b`)
	disjunctionRe  = regexp.MustCompile(`\b(or|either)\b`)
	vagueRe        = regexp.MustCompile(`\b(tbd|tba|sometime|someday|soonish)\b`)
	trailingRe     = regexp.MustCompile(`(?:\b(?:and|or|with|at|on|to|for|the|a)|\.\.\.|,|-)\s*$`)
)

var actionWords = []string{
	"meeting", "meet", "call", "lunch", "dinner", "breakfast", "coffee", "review",
	"interview", "standup", "stand-up", "sync", "workshop", "presentation",
	"appointment", "session", "class", "lesson", "training", "demo", "gym",
	"workout", "run", "doctor", "dentist", "party", "conference", "webinar",
	"planning", "check-in", "catch up", "1:1", "retro", "practice", "visit",
}

var genericTitles = []string{
	"event", "meeting", "appointment", "untitled", "new event", "busy", "thing",
	"stuff", "task", "reminder", "something", "call",
}

// Calculate scores one candidate. patterns may be nil.
func (s *Scorer) Calculate(ev *model.EventCandidate, sourceText string, patterns *model.UserPattern) Score {
	text := strings.ToLower(sourceText)
	start := ev.Interval.Start.In(s.loc)
	dur := ev.Interval.Duration()

	sc := Score{
		TimeClarity:      s.timeClarity(text, start, dur),
		DateClarity:      s.dateClarity(text, ev.Interval.Start),
		LocationClarity:  locationClarity(ev.Location, patterns),
		TitleClarity:     titleClarity(ev.Title),
		ContextRelevance: contextRelevance(ev, start, patterns),
		AmbiguityLevel:   ambiguity(text),
		Completeness:     completeness(ev, dur),
		Consistency:      consistency(ev, start, dur, patterns),
	}
	sc.Overall = overall(sc)
	sc.Suggestions, sc.Warnings = feedback(sc)
	return sc
}

func (s *Scorer) timeClarity(text string, start time.Time, dur time.Duration) float64 {
	v := base
	if explicitTimeRe.MatchString(text) {
		v += 0.2
	}
	if durationRe.MatchString(text) {
		v += 0.1
	}
	if h := start.Hour(); h >= 6 && h <= 22 {
		v += 0.1
	}
	if reasonableDuration(dur) {
		v += 0.1
	}
	return clamp(v)
}

func (s *Scorer) dateClarity(text string, start time.Time) float64 {
	v := base
	if dateRe.MatchString(text) {
		v += 0.2
	}
	now := s.now()
	if start.After(now) {
		v += 0.15
		if start.Before(now.AddDate(1, 0, 0)) {
			v += 0.15
		}
	}
	return clamp(v)
}

func locationClarity(loc string, patterns *model.UserPattern) float64 {
	v := base
	if strings.TrimSpace(loc) == "" {
		return v
	}
	v += 0.2
	if specificLocRe.MatchString(loc) {
		v += 0.2
	}
	if patterns.KnowsLocation(loc) {
		v += 0.1
	}
	return clamp(v)
}

func titleClarity(title string) float64 {
	v := base
	t := strings.ToLower(strings.TrimSpace(title))
	if len(t) > 3 {
		v += 0.2
	}
	for _, w := range actionWords {
		if strings.Contains(t, w) {
			v += 0.2
			break
		}
	}
	if t != "" && !slices.Contains(genericTitles, t) {
		v += 0.1
	}
	return clamp(v)
}

func contextRelevance(ev *model.EventCandidate, start time.Time, patterns *model.UserPattern) float64 {
	v := base
	hours := model.DefaultWorkingHours
	if patterns != nil && patterns.WorkingHours.Start != "" {
		hours = patterns.WorkingHours
	}
	if hours.Contains(start) {
		v += 0.2
	}
	if patterns.KnowsCategory(ev.Category) {
		v += 0.2
	}
	if patterns.PrefersTime(start) {
		v += 0.1
	}
	return clamp(v)
}

// ambiguity starts from full clarity rather than the shared base: it only
// ever loses credit, for hedging, alternatives and unfinished phrasing.
func ambiguity(text string) float64 {
	v := 1.0
	seen := map[string]bool{}
	for _, m := range hedgeRe.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			v -= 0.2
		}
	}
	if disjunctionRe.MatchString(text) {
		v -= 0.15
	}
	if vagueRe.MatchString(text) {
		v -= 0.1
	}
	if trailingRe.MatchString(strings.TrimSpace(text)) {
		v -= 0.1
	}
	return clamp(v)
}

// completeness moves off the base by 0.1 per required field present and
// 0.25 per one missing; optional fields add 0.025 each and a sensible
// duration 0.1.
func completeness(ev *model.EventCandidate, dur time.Duration) float64 {
	v := base
	for _, present := range []bool{
		strings.TrimSpace(ev.Title) != "",
		!ev.Interval.Start.IsZero(),
		!ev.Interval.End.IsZero() && ev.Interval.End.After(ev.Interval.Start),
	} {
		if present {
			v += 0.1
		} else {
			v -= 0.25
		}
	}
	for _, present := range []bool{
		ev.Location != "",
		ev.Description != "",
		ev.Category != "",
		ev.Priority != "",
	} {
		if present {
			v += 0.025
		}
	}
	if reasonableDuration(dur) {
		v += 0.1
	}
	return clamp(v)
}

func consistency(ev *model.EventCandidate, start time.Time, dur time.Duration, patterns *model.UserPattern) float64 {
	v := base
	if patterns == nil {
		return v
	}
	if patterns.PrefersTime(start) {
		v += 0.15
	}
	if patterns.PrefersDay(start.Weekday()) {
		v += 0.15
	}
	if patterns.KnowsLocation(ev.Location) {
		v += 0.1
	}
	if avg := patterns.AverageDurationMinutes; avg > 0 {
		closeness := 1 - math.Abs(dur.Minutes()-avg)/avg
		if closeness > 0 {
			v += 0.1 * closeness
		}
	}
	return clamp(v)
}

func overall(s Score) float64 {
	return clamp(s.TimeClarity*weightTime +
		s.DateClarity*weightDate +
		s.LocationClarity*weightLocation +
		s.TitleClarity*weightTitle +
		s.ContextRelevance*weightContext +
		s.AmbiguityLevel*weightAmbiguity +
		s.Completeness*weightCompleteness +
		s.Consistency*weightConsistency)
}

type factorFeedback struct {
	value      float64
	suggestion string
	warning    string
}

func feedback(s Score) (suggestions, warnings []string) {
	for _, f := range []factorFeedback{
		{s.TimeClarity, "Specify an exact start time and duration", "The event time is unclear"},
		{s.DateClarity, `Specify a date (e.g. "tomorrow" or "March 3")`, "The event date is unclear or in the past"},
		{s.LocationClarity, "Add a specific location", "The event location is missing or vague"},
		{s.TitleClarity, "Use a more descriptive title", "The event title is too generic"},
		{s.ContextRelevance, "Check that the event fits your working hours and usual categories", "The event falls outside your usual schedule"},
		{s.AmbiguityLevel, `Avoid hedging words like "maybe" and alternatives like "or"`, "The request is ambiguous"},
		{s.Completeness, "Add details such as location, description or category", "Required event details are missing"},
		{s.Consistency, "This event differs from your usual patterns", "This event is unusual compared to your history"},
	} {
		if f.value < suggestBelow && !slices.Contains(suggestions, f.suggestion) {
			suggestions = append(suggestions, f.suggestion)
		}
		if f.value < warnBelow && !slices.Contains(warnings, f.warning) {
			warnings = append(warnings, f.warning)
		}
	}
	return suggestions, warnings
}

// Average combines scores factor by factor and merges their feedback.
func Average(scores []Score) Score {
	if len(scores) == 0 {
		return Score{}
	}
	var avg Score
	for _, s := range scores {
		avg.TimeClarity += s.TimeClarity
		avg.DateClarity += s.DateClarity
		avg.LocationClarity += s.LocationClarity
		avg.TitleClarity += s.TitleClarity
		avg.ContextRelevance += s.ContextRelevance
		avg.AmbiguityLevel += s.AmbiguityLevel
		avg.Completeness += s.Completeness
		avg.Consistency += s.Consistency
		for _, sg := range s.Suggestions {
			if !slices.Contains(avg.Suggestions, sg) {
				avg.Suggestions = append(avg.Suggestions, sg)
			}
		}
		for _, w := range s.Warnings {
			if !slices.Contains(avg.Warnings, w) {
				avg.Warnings = append(avg.Warnings, w)
			}
		}
	}
	n := float64(len(scores))
	avg.TimeClarity /= n
	avg.DateClarity /= n
	avg.LocationClarity /= n
	avg.TitleClarity /= n
	avg.ContextRelevance /= n
	avg.AmbiguityLevel /= n
	avg.Completeness /= n
	avg.Consistency /= n
	avg.Overall = overall(avg)
	return avg
}

func reasonableDuration(d time.Duration) bool {
	return d >= 15*time.Minute && d <= 480*time.Minute
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
