// Package recurrence detects recurrence intent in free text, converts it to
// structured rules, and renders or expands those rules.
package recurrence

import "time"

// maxBarrenPeriods bounds how many consecutive months (or years) may be
// skipped while looking for a valid date before expansion gives up.
const maxBarrenPeriods = 48

// Engine is stateless apart from its clock, which anchors partial dates
// such as "until March 3" to the next matching calendar date.
type Engine struct {
	now func() time.Time
}

type Option func(*Engine)

// WithClock overrides the wall clock used to resolve year-less dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of inferring recurrence from text.
type Result struct {
	HasRecurrence bool     `json:"has_recurrence"`
	Rule          *Rule    `json:"rule,omitempty"`
	Confidence    float64  `json:"confidence"`
	Suggestions   []string `json:"suggestions,omitempty"`
}

const (
	confidenceQualified   = 0.9
	confidenceUnqualified = 0.7
	confidenceFallback    = 0.5
)
