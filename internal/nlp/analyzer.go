// Package nlp runs a full analysis of a scheduling request: text parsing,
// recurrence inference, conflict detection and confidence scoring.
package nlp

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"schedcore/internal/confidence"
	"schedcore/internal/conflict"
	appLog "schedcore/internal/log"
	"schedcore/internal/model"
	"schedcore/internal/recurrence"
	"schedcore/internal/textparse"
)

// FallbackPolicy decides when the secondary parser is consulted.
type FallbackPolicy string

const (
	PrimaryOnly FallbackPolicy = "primary_only"
	// FallbackOnError uses the secondary parser when the primary fails.
	FallbackOnError FallbackPolicy = "fallback_on_error"
	// FallbackOnEmpty also falls back when the primary finds no events.
	FallbackOnEmpty FallbackPolicy = "fallback_on_empty"
)

func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(s); p {
	case PrimaryOnly, FallbackOnError, FallbackOnEmpty:
		return p, nil
	case "":
		return FallbackOnError, nil
	default:
		return "", fmt.Errorf("unknown fallback policy %q", s)
	}
}

const (
	DefaultMinLength = 3
	DefaultMaxLength = 2000

	blockingWarning = "Critical scheduling conflicts must be resolved before saving these events"
	noEventsWarning = "No events could be extracted from the text"
)

type Config struct {
	Primary  textparse.Parser
	Fallback textparse.Parser
	Policy   FallbackPolicy

	// Input length bounds in characters; zero uses the defaults.
	MinLength int
	MaxLength int

	Conflict conflict.Options
	Now      func() time.Time
}

// Options are per-call inputs.
type Options struct {
	Location     *time.Location
	UserPattern  *model.UserPattern
	WorkingHours model.WorkingHours
}

// Analysis is the single structured result of one Analyze call.
type Analysis struct {
	Events                 []*model.EventCandidate `json:"events"`
	Recurrence             recurrence.Result       `json:"recurrence"`
	Conflicts              conflict.Analysis       `json:"conflicts"`
	Confidence             confidence.Score        `json:"confidence"`
	OverallConfidence      float64                 `json:"overall_confidence"`
	Message                string                  `json:"message,omitempty"`
	NeedsClarification     bool                    `json:"needs_clarification"`
	ClarificationQuestions []string                `json:"clarification_questions,omitempty"`
	Suggestions            []string                `json:"suggestions,omitempty"`
	Warnings               []string                `json:"warnings,omitempty"`
	Parser                 string                  `json:"parser"`
}

// Analyzer holds configuration only; it is safe for concurrent use.
type Analyzer struct {
	cfg      Config
	detector *conflict.Detector
}

func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.Primary == nil {
		cfg.Primary = textparse.NewHeuristic()
	}
	if cfg.Policy == "" {
		cfg.Policy = FallbackOnError
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Analyzer{cfg: cfg, detector: conflict.NewDetector(cfg.Conflict)}
}

func (a *Analyzer) validate(text string) error {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case n == 0:
		return &InputError{Reason: ReasonEmpty}
	case n < a.cfg.MinLength:
		return &InputError{Reason: ReasonTooShort, Length: n, Limit: a.cfg.MinLength}
	case n > a.cfg.MaxLength:
		return &InputError{Reason: ReasonTooLong, Length: n, Limit: a.cfg.MaxLength}
	}
	return nil
}

// Analyze parses text into candidate events and evaluates them against the
// caller's existing events. Ambiguous input never fails; it lowers the
// confidence and adds suggestions instead.
func (a *Analyzer) Analyze(ctx context.Context, text string, existing []model.Event, opts Options) (*Analysis, error) {
	if err := a.validate(text); err != nil {
		return nil, err
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := a.cfg.Now()

	pc := textparse.Context{
		CurrentDate:    now,
		WorkingHours:   opts.WorkingHours,
		ExistingEvents: existing,
		Preferences:    opts.UserPattern,
		Location:       loc,
	}
	parsed, parser, err := a.parse(ctx, text, pc)
	if err != nil {
		return nil, err
	}

	out := &Analysis{
		Message:                parsed.Message,
		NeedsClarification:     parsed.NeedsClarification,
		ClarificationQuestions: parsed.ClarificationQuestions,
		Parser:                 parser,
	}
	warnings := append([]string(nil), parsed.Warnings...)
	if parser == "fallback" {
		warnings = appendUnique(warnings, "The primary parser was unavailable; results come from the fallback parser")
	}

	candidates, skipped := buildCandidates(parsed.Events, loc)
	for _, w := range skipped {
		warnings = appendUnique(warnings, w)
	}

	if len(candidates) == 0 {
		out.Events = []*model.EventCandidate{}
		out.Warnings = appendUnique(warnings, noEventsWarning)
		out.Suggestions = mergeUnique(parsed.Suggestions)
		out.NeedsClarification = true
		appLog.Debug("analysis short-circuited", "parser", parser, "raw_events", len(parsed.Events))
		return out, nil
	}

	clock := func() time.Time { return now }
	engine := recurrence.NewEngine(recurrence.WithClock(clock))
	out.Recurrence = engine.Parse(text)
	if out.Recurrence.HasRecurrence && len(candidates) == 1 && candidates[0].Rule == nil {
		rule := *out.Recurrence.Rule
		if s, err := engine.GenerateRule(rule); err == nil {
			candidates[0].Rule = &rule
			candidates[0].Recurrence = s
		}
	}

	out.Conflicts = a.conflicts(candidates, existing)

	scorer := confidence.NewScorer(confidence.WithClock(clock), confidence.WithLocation(loc))
	scores := make([]confidence.Score, 0, len(candidates))
	for _, c := range candidates {
		sc := scorer.Calculate(c, text, opts.UserPattern)
		c.Confidence = sc.Overall
		scores = append(scores, sc)
	}
	out.Confidence = confidence.Average(scores)

	out.Suggestions = mergeUnique(
		parsed.Suggestions,
		out.Recurrence.Suggestions,
		out.Conflicts.Suggestions,
		out.Confidence.Suggestions,
	)
	warnings = mergeUnique(warnings, out.Confidence.Warnings)
	if out.Conflicts.CriticalConflicts > 0 {
		warnings = append([]string{blockingWarning}, warnings...)
	}
	out.Warnings = warnings
	out.Events = candidates
	out.OverallConfidence = scaleConfidence(out.Confidence.Overall, out.Conflicts)

	appLog.Debug("analysis completed",
		"parser", parser,
		"events", len(candidates),
		"conflicts", out.Conflicts.TotalConflicts,
		"confidence", out.OverallConfidence,
	)
	return out, nil
}

// parse calls the primary parser once and consults the fallback according
// to the policy. Parser failures are returned as *model.CapabilityError.
func (a *Analyzer) parse(ctx context.Context, text string, pc textparse.Context) (*textparse.Result, string, error) {
	res, err := a.cfg.Primary.Parse(ctx, text, pc)
	if err == nil && res == nil {
		res = &textparse.Result{}
	}
	canFallback := a.cfg.Fallback != nil && a.cfg.Policy != PrimaryOnly

	if err != nil {
		if !canFallback || ctx.Err() != nil {
			return nil, "", &model.CapabilityError{Op: "parse", Err: err}
		}
		appLog.Error("primary parser failed, using fallback", err)
		fres, ferr := a.cfg.Fallback.Parse(ctx, text, pc)
		if ferr != nil {
			return nil, "", &model.CapabilityError{Op: "parse", Err: fmt.Errorf("primary: %w; fallback: %w", err, ferr)}
		}
		if fres == nil {
			fres = &textparse.Result{}
		}
		return fres, "fallback", nil
	}

	if len(res.Events) == 0 && canFallback && a.cfg.Policy == FallbackOnEmpty {
		fres, ferr := a.cfg.Fallback.Parse(ctx, text, pc)
		if ferr != nil {
			appLog.Error("fallback parser failed", ferr)
			return res, "primary", nil
		}
		if fres != nil && len(fres.Events) > 0 {
			return fres, "fallback", nil
		}
	}
	return res, "primary", nil
}

// conflicts runs detection over parsed and existing events and keeps only
// the conflicts that involve at least one parsed event.
func (a *Analyzer) conflicts(candidates []*model.EventCandidate, existing []model.Event) conflict.Analysis {
	all := make([]*model.EventCandidate, 0, len(candidates)+len(existing))
	all = append(all, candidates...)
	parsedIDs := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		parsedIDs[c.ID] = true
	}
	for _, ev := range existing {
		if parsedIDs[ev.ID] {
			continue
		}
		all = append(all, model.CandidateFromEvent(ev))
	}

	full := a.detector.Analyze(all)
	var kept []conflict.Record
	for _, rec := range full.Conflicts {
		if parsedIDs[rec.EventID] || parsedIDs[rec.OtherEventID] {
			kept = append(kept, rec)
		}
	}
	return a.detector.Summarize(kept)
}

func buildCandidates(raws []textparse.RawEvent, loc *time.Location) ([]*model.EventCandidate, []string) {
	var (
		out     []*model.EventCandidate
		skipped []string
	)
	for _, raw := range raws {
		title := strings.TrimSpace(raw.Title)
		if title == "" {
			skipped = append(skipped, "Skipped an event without a title")
			continue
		}
		iv, err := raw.Interval(loc)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("Skipped %q: %v", title, err))
			continue
		}

		c := &model.EventCandidate{
			Event: model.Event{
				ID:          raw.ID,
				Title:       title,
				Interval:    iv,
				Location:    strings.TrimSpace(raw.Location),
				Description: strings.TrimSpace(raw.Description),
				Category:    strings.TrimSpace(raw.Category),
				Priority:    parsePriority(raw.Priority),
				Attendees:   raw.Attendees,
			},
			EnergyLevel: model.ParseEnergyLevel(raw.EnergyLevel),
			Resources:   raw.Resources,
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if raw.Recurrence != "" {
			if rule, err := recurrence.ParseRule(raw.Recurrence); err == nil {
				c.Rule = &rule
				c.Recurrence = raw.Recurrence
			} else {
				skipped = append(skipped, fmt.Sprintf("Ignored recurrence of %q: %v", title, err))
			}
		}
		out = append(out, c)
	}
	return out, skipped
}

func parsePriority(s string) model.Priority {
	switch p := model.Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityUrgent:
		return p
	}
	return ""
}

// scaleConfidence discounts confidence by how conflicted the result is.
func scaleConfidence(overall float64, an conflict.Analysis) float64 {
	factor := 1.0
	switch {
	case an.CriticalConflicts > 0:
		factor = 0.7
	case an.TotalConflicts > 3:
		factor = 0.8
	case an.TotalConflicts > 0:
		factor = 0.9
	}
	return math.Max(0, math.Min(1, overall*factor))
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func mergeUnique(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		for _, s := range l {
			out = appendUnique(out, s)
		}
	}
	return out
}
