package recurrence

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	dayAlternation = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`
	monthDay       = `\d{1,2}(?:st|nd|rd|th)?`
)

var (
	cueRe = regexp.MustCompile(`\b(every|each|daily|weekly|biweekly|fortnightly|monthly|yearly|annually|weekdays|weekends|recurring|repeats?|repeating)\b`)

	pluralDayRe = regexp.MustCompile(`\b(` + dayAlternation + `)s\b`)

	everyUnitRe = regexp.MustCompile(`\b(?:every|each)\s+(?:(\d+|other)\s+)?(day|week|month|year)s?\b`)
	bareUnitRe  = regexp.MustCompile(`\b(\d+)\s+(day|week|month|year)s?\b`)

	dailyRe    = regexp.MustCompile(`\bdaily\b`)
	weeklyRe   = regexp.MustCompile(`\bweekly\b`)
	biweeklyRe = regexp.MustCompile(`\b(biweekly|fortnightly)\b`)
	monthlyRe  = regexp.MustCompile(`\b(monthly|of\s+(?:the|each|every)\s+month)\b`)
	yearlyRe   = regexp.MustCompile(`\b(yearly|annually)\b`)

	weekdaysRe = regexp.MustCompile(`\bweekdays?\b`)
	weekendsRe = regexp.MustCompile(`\bweekends?\b`)

	dayNameRe  = regexp.MustCompile(`\b(` + dayAlternation + `|mon|tue|tues|thu|thur|thurs|fri)s?\b`)
	everyDayRe = regexp.MustCompile(`\b(?:every|each)\s+(?:other\s+)?(?:` + dayAlternation + `)\b`)

	positionRe = regexp.MustCompile(`\b(first|second|third|fourth|last|1st|2nd|3rd|4th)\s+(` + dayAlternation + `)\b`)
	// "on the 15th", "on the 1st and 15th", "on the 1st, 10th and 20th". A
	// comma continues the list only when it ends in "and".
	monthDayRe = regexp.MustCompile(`\bon\s+the\s+` + monthDay +
		`(?:(?:\s*,\s*(?:the\s+)?` + monthDay + `)*\s*,?\s*(?:and|&)\s*(?:the\s+)?` + monthDay + `)?\b`)
	dayNumberRe = regexp.MustCompile(`\d{1,2}`)

	countRe = regexp.MustCompile(`\bfor\s+(\d+)\s+(?:times|occurrences|sessions)\b`)

	untilISORe   = regexp.MustCompile(`\buntil\s+(\d{4}-\d{2}-\d{2})\b`)
	untilMonthRe = regexp.MustCompile(`\buntil\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
)

var dayCodes = map[string]Weekday{
	"monday": MO, "mon": MO,
	"tuesday": TU, "tue": TU, "tues": TU,
	"wednesday": WE,
	"thursday":  TH, "thu": TH, "thur": TH, "thurs": TH,
	"friday":   FR, "fri": FR,
	"saturday": SA,
	"sunday":   SU,
}

var positions = map[string]int{
	"first": 1, "1st": 1,
	"second": 2, "2nd": 2,
	"third": 3, "3rd": 3,
	"fourth": 4, "4th": 4,
	"last": -1,
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "sept": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

// Parse infers a recurrence rule from free text. It never fails: ambiguous
// text lowers the confidence and adds a suggestion instead.
func (e *Engine) Parse(text string) Result {
	lower := strings.ToLower(strings.TrimSpace(text))
	if !hasCue(lower) {
		return Result{}
	}

	rule, ok := detectFrequency(lower)
	if !ok {
		return Result{
			HasRecurrence: true,
			Rule:          &Rule{Frequency: Weekly, Interval: 1},
			Confidence:    confidenceFallback,
			Suggestions:   []string{`Clarify how often the event repeats (e.g. "every Tuesday" or "monthly on the 1st")`},
		}
	}

	var suggestions []string

	switch rule.Frequency {
	case Daily:
	case Weekly:
		extractWeekly(lower, &rule)
	case Monthly:
		extractMonthly(lower, &rule)
	case Yearly:
	}

	if m := countRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			rule.Count = n
		}
	}
	if until, ok := e.extractUntil(lower); ok {
		if rule.Count > 0 {
			suggestions = append(suggestions, "Both a repetition count and an end date were given; the count is used")
		} else {
			rule.Until = &until
		}
	}

	confidence := confidenceQualified
	if !qualified(rule) {
		confidence = confidenceUnqualified
		suggestions = append(suggestions, qualifierSuggestion(rule.Frequency))
	}

	return Result{
		HasRecurrence: true,
		Rule:          &rule,
		Confidence:    confidence,
		Suggestions:   suggestions,
	}
}

func hasCue(lower string) bool {
	return cueRe.MatchString(lower) ||
		pluralDayRe.MatchString(lower) ||
		(positionRe.MatchString(lower) && monthlyRe.MatchString(lower))
}

// detectFrequency sets Frequency and Interval. Explicit "every N <unit>"
// phrases win over keywords, which win over day-name cues.
func detectFrequency(lower string) (Rule, bool) {
	r := Rule{Interval: 1}

	if m := everyUnitRe.FindStringSubmatch(lower); m != nil {
		r.Frequency = unitFrequency(m[2])
		switch m[1] {
		case "":
		case "other":
			r.Interval = 2
		default:
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				r.Interval = n
			}
		}
		return r, true
	}

	switch {
	case dailyRe.MatchString(lower):
		r.Frequency = Daily
	case biweeklyRe.MatchString(lower):
		r.Frequency = Weekly
		r.Interval = 2
		return r, true
	case weeklyRe.MatchString(lower):
		r.Frequency = Weekly
	case monthlyRe.MatchString(lower), positionRe.MatchString(lower):
		r.Frequency = Monthly
	case yearlyRe.MatchString(lower):
		r.Frequency = Yearly
	case weekdaysRe.MatchString(lower), weekendsRe.MatchString(lower),
		everyDayRe.MatchString(lower), pluralDayRe.MatchString(lower):
		r.Frequency = Weekly
		if strings.Contains(lower, "every other") {
			r.Interval = 2
		}
		return r, true
	default:
		return r, false
	}

	r.Interval = bareInterval(lower, r.Frequency)
	return r, true
}

// bareInterval handles "<N> <unit>" without "every", ignoring durations such
// as "for 3 weeks" and units that disagree with the detected frequency.
func bareInterval(lower string, f Frequency) int {
	for _, idx := range bareUnitRe.FindAllStringSubmatchIndex(lower, -1) {
		if unitFrequency(lower[idx[4]:idx[5]]) != f {
			continue
		}
		if strings.HasSuffix(strings.TrimSpace(lower[:idx[0]]), "for") {
			continue
		}
		if n, err := strconv.Atoi(lower[idx[2]:idx[3]]); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

func unitFrequency(unit string) Frequency {
	switch unit {
	case "day":
		return Daily
	case "week":
		return Weekly
	case "month":
		return Monthly
	case "year":
		return Yearly
	default:
		return 0
	}
}

func extractWeekly(lower string, r *Rule) {
	var days []Weekday
	if weekdaysRe.MatchString(lower) {
		days = append(days, MO, TU, WE, TH, FR)
	}
	if weekendsRe.MatchString(lower) {
		days = append(days, SA, SU)
	}
	for _, m := range dayNameRe.FindAllStringSubmatch(lower, -1) {
		if code, ok := dayCodes[m[1]]; ok {
			days = append(days, code)
		}
	}
	r.ByDay = canonicalDays(days)
}

func extractMonthly(lower string, r *Rule) {
	if m := positionRe.FindStringSubmatch(lower); m != nil {
		r.BySetPos = positions[m[1]]
		r.ByDay = []Weekday{dayCodes[m[2]]}
		return
	}

	var days []int
	if span := monthDayRe.FindString(lower); span != "" {
		for _, n := range dayNumberRe.FindAllString(span, -1) {
			days = appendMonthDay(days, n)
		}
	}
	if len(days) > 0 {
		r.ByMonthDay = days
	}
}

func appendMonthDay(days []int, s string) []int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 31 || slices.Contains(days, n) {
		return days
	}
	return append(days, n)
}

func canonicalDays(days []Weekday) []Weekday {
	if len(days) == 0 {
		return nil
	}
	return Rule{ByDay: days}.sortedDays()
}

func (e *Engine) extractUntil(lower string) (time.Time, bool) {
	if m := untilISORe.FindStringSubmatch(lower); m != nil {
		d, err := time.Parse("2006-01-02", m[1])
		if err != nil {
			return time.Time{}, false
		}
		return endOfDay(d.Year(), d.Month(), d.Day()), true
	}

	m := untilMonthRe.FindStringSubmatch(lower)
	if m == nil {
		return time.Time{}, false
	}
	month := months[m[1]]
	day, err := strconv.Atoi(m[2])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	if m[3] != "" {
		year, _ := strconv.Atoi(m[3])
		return endOfDay(year, month, day), true
	}

	now := e.now().UTC()
	until := endOfDay(now.Year(), month, day)
	if until.Before(now) {
		until = endOfDay(now.Year()+1, month, day)
	}
	return until, true
}

func endOfDay(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 23, 59, 59, 0, time.UTC)
}

func qualified(r Rule) bool {
	return r.Frequency == Daily || len(r.ByDay) > 0 || len(r.ByMonthDay) > 0 || r.BySetPos != 0
}

func qualifierSuggestion(f Frequency) string {
	switch f {
	case Weekly:
		return "Specify which day(s) of the week the event repeats on"
	case Monthly:
		return `Specify the day of the month (e.g. "on the 15th") or a position (e.g. "first Monday")`
	case Yearly:
		return "Specify the date the event repeats on each year"
	default:
		return "Specify when the event repeats"
	}
}
