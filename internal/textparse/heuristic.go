package textparse

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	appLog "schedcore/internal/log"
	"schedcore/internal/model"
)

// Heuristic extracts events with keyword and pattern matching. It handles
// the common "<what> <when> [at <where>]" phrasing and flags anything it had
// to assume.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

const (
	monthNames   = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`
	weekdayNames = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`

	rangePat    = `\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*(?:-|to|until)\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`
	clockPat    = `\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)|\b([01]?\d|2[0-3]):([0-5]\d)\b`
	bareAtPat   = `\bat\s+(\d{1,2})(?:\s|$|[,.])`
	namedPat    = `\b(noon|midnight|morning|afternoon|evening|tonight)\b`
	relDayPat   = `\b(day after tomorrow|today|tonight|tomorrow)\b`
	weekdayPat  = `\b(next\s+|this\s+)?(` + weekdayNames + `)s?\b`
	monthDayPat = `\b(` + monthNames + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`
	dayMonthPat = `\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthNames + `)\b`
	isoDatePat  = `\b(\d{4})-(\d{2})-(\d{2})\b`
	slashPat    = `\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`
	inDaysPat   = `\bin\s+(\d+)\s+days?\b`
	nextWeekPat = `\bnext\s+week\b`
	durationPat = `\b(?:for\s+)?(\d+(?:\.\d+)?)\s*(h|hrs?|hours?|m|mins?|minutes?)\b|\b(?:for\s+)?(half an hour|an hour)\b`
	allDayPat   = `\ball[\s-]day\b`
	recurPat    = `\b(?:every|each)\s+(?:other\s+)?(?:\d+(?:st|nd|rd|th)?\s+)?(?:last\s+|first\s+|second\s+|third\s+|fourth\s+)?\w+(?:\s+of\s+the\s+month)?|\b(?:daily|weekly|biweekly|fortnightly|monthly|yearly|annually)\b|\bfor\s+\d+\s+(?:times|occurrences|days|weeks|months|years)\b|\buntil\s+(?:\d{4}-\d{2}-\d{2}|(?:` + monthNames + `)\.?\s+\d{1,2})`
	placePat    = `\b(?:room|rm|building|bldg|conference room|office|suite)\s*#?\w+`
	fillerPat   = `^(?:please\s+)?(?:schedule|add|book|set up|create|put|plan|remind me (?:to|about)|i have|we have|there is)\s+(?:an?\s+|the\s+)?`
	hedgePat    = `\b(?:maybe|possibly|perhaps|probably)\b`
)

var (
	rangeRe    = regexp.MustCompile(`(?i)` + rangePat)
	clockRe    = regexp.MustCompile(`(?i)` + clockPat)
	bareAtRe   = regexp.MustCompile(`(?i)` + bareAtPat)
	namedRe    = regexp.MustCompile(`(?i)` + namedPat)
	relDayRe   = regexp.MustCompile(`(?i)` + relDayPat)
	weekdayRe  = regexp.MustCompile(`(?i)` + weekdayPat)
	monthDayRe = regexp.MustCompile(`(?i)` + monthDayPat)
	dayMonthRe = regexp.MustCompile(`(?i)` + dayMonthPat)
	isoDateRe  = regexp.MustCompile(isoDatePat)
	slashRe    = regexp.MustCompile(slashPat)
	inDaysRe   = regexp.MustCompile(`(?i)` + inDaysPat)
	nextWeekRe = regexp.MustCompile(`(?i)` + nextWeekPat)
	durationRe = regexp.MustCompile(`(?i)` + durationPat)
	allDayRe   = regexp.MustCompile(`(?i)` + allDayPat)
	placeRe    = regexp.MustCompile(`(?i)(?:\b(?:in|at)\s+(?:the\s+)?)?(` + placePat + `)`)
	properRe   = regexp.MustCompile(`(?:\b(?:at|in)\s+|@\s*)((?:the\s+)?[A-Z][\w'&.-]*(?:\s+(?:[A-Z0-9][\w'&.-]*|of|de))*)`)
	monthRe    = regexp.MustCompile(`(?i)^(?:` + monthNames + `)$`)
	clauseRe   = regexp.MustCompile(`(?i)\s*(?:;|\n|\band then\b|\bthen\b|\balso\b)\s*`)

	// Spans removed from a clause to leave its title, each with an optional
	// leading preposition.
	stripRes = func() []*regexp.Regexp {
		var out []*regexp.Regexp
		for _, p := range []string{
			recurPat, rangePat, clockPat, namedPat, relDayPat, weekdayPat,
			monthDayPat, dayMonthPat, isoDatePat, slashPat, inDaysPat,
			nextWeekPat, durationPat, allDayPat, placePat, hedgePat,
		} {
			out = append(out, regexp.MustCompile(`(?i)(?:(?:\b(?:at|on|from|by|around|for|in|this|next|starting)|@)\s*)?(?:`+p+`)`))
		}
		return out
	}()
	fillerRe   = regexp.MustCompile(`(?i)` + fillerPat)
	danglingRe = regexp.MustCompile(`(?i)(?:\s+|^)(?:at|on|in|for|from|to|the|this|next|with|and|by|around|@|,|-)\s*$`)
	spacesRe   = regexp.MustCompile(`\s+`)
)

var categoryWords = []struct {
	category string
	words    []string
}{
	{"work", []string{"meeting", "standup", "stand-up", "review", "sync", "1:1", "interview", "presentation", "demo", "planning", "retro", "call", "workshop"}},
	{"social", []string{"lunch", "dinner", "breakfast", "coffee", "drinks", "party", "birthday", "brunch"}},
	{"health", []string{"gym", "workout", "run", "yoga", "doctor", "dentist", "therapy", "physio"}},
	{"education", []string{"class", "lesson", "lecture", "study", "course", "exam"}},
	{"personal", []string{"haircut", "groceries", "errand", "pickup", "pick up"}},
}

var energyWords = map[string]string{
	"gym": "high", "workout": "high", "run": "high", "presentation": "high", "interview": "high",
	"exam": "high", "coffee": "low", "lunch": "low", "dinner": "low", "yoga": "low", "reading": "low",
	"meeting": "medium", "review": "medium", "standup": "medium", "class": "medium", "call": "medium",
}

type clause struct {
	text  string
	lower string
}

func (h *Heuristic) Parse(ctx context.Context, text string, pc Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc := pc.location()
	now := pc.CurrentDate
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	res := &Result{Events: []RawEvent{}}
	parts := clauseRe.Split(text, -1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h.parseClause(clause{text: part, lower: strings.ToLower(part)}, now, pc, res)
	}

	if len(res.Events) == 0 {
		res.Message = "No schedulable event found"
		res.NeedsClarification = true
		res.ClarificationQuestions = append(res.ClarificationQuestions, "What would you like to schedule, and when?")
	} else {
		res.Message = "Parsed " + strconv.Itoa(len(res.Events)) + " event(s) heuristically"
	}
	appLog.Debug("heuristic parse", "clauses", len(parts), "events", len(res.Events))
	return res, nil
}

func (h *Heuristic) parseClause(c clause, now time.Time, pc Context, res *Result) {
	date, hasDate := findDate(c.lower, now)
	startMin, endMin, hasTime := findTime(c.lower)
	dur, hasDur := findDuration(c.lower)
	allDay := allDayRe.MatchString(c.lower)
	category := findCategory(c.lower)

	if !hasDate && !hasTime && !allDay && category == "" {
		return
	}

	title := extractTitle(c.text)
	if title == "" {
		title = "Event"
		res.Suggestions = appendOnce(res.Suggestions, "Add a short title describing the event")
	}

	if !hasDate {
		date = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if hasTime && atClock(date, startMin).Before(now) {
			date = date.AddDate(0, 0, 1)
		}
	}

	ev := RawEvent{
		Title:       title,
		Location:    findLocation(c.text),
		Category:    category,
		Priority:    findPriority(c.lower),
		EnergyLevel: findEnergy(c.lower),
	}

	if allDay {
		ev.AllDay = true
		ev.Start = date.Format("2006-01-02")
		res.Events = append(res.Events, ev)
		return
	}

	if !hasTime {
		startMin = 9 * 60
		if pc.WorkingHours.Start != "" {
			if m, err := model.ParseClock(pc.WorkingHours.Start); err == nil {
				startMin = m
			}
		}
		res.NeedsClarification = true
		res.ClarificationQuestions = appendOnce(res.ClarificationQuestions, "What time should \""+title+"\" start?")
		res.Warnings = appendOnce(res.Warnings, "No time given for \""+title+"\"; assumed the start of the working day")
	}

	start := atClock(date, startMin)
	var end time.Time
	switch {
	case endMin > startMin:
		end = atClock(date, endMin)
	case hasDur:
		end = start.Add(dur)
	default:
		d := defaultDuration
		if pc.Preferences != nil && pc.Preferences.AverageDurationMinutes > 0 {
			d = time.Duration(pc.Preferences.AverageDurationMinutes * float64(time.Minute))
		}
		end = start.Add(d)
	}

	ev.Start = start.Format(time.RFC3339)
	ev.End = end.Format(time.RFC3339)
	res.Events = append(res.Events, ev)
}

// findDate resolves the first recognizable date expression to local midnight.
func findDate(s string, now time.Time) (time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if m := relDayRe.FindStringSubmatch(s); m != nil {
		switch m[1] {
		case "day after tomorrow":
			return today.AddDate(0, 0, 2), true
		case "tomorrow":
			return today.AddDate(0, 0, 1), true
		default:
			return today, true
		}
	}
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if validDate(y, mo, d) {
			return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, now.Location()), true
		}
	}
	if m := monthDayRe.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		if t, ok := resolveMonthDay(today, monthNumber(m[1]), d, y); ok {
			return t, true
		}
	}
	if m := dayMonthRe.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[1])
		if t, ok := resolveMonthDay(today, monthNumber(m[2]), d, 0); ok {
			return t, true
		}
	}
	if m := slashRe.FindStringSubmatch(s); m != nil {
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		if y > 0 && y < 100 {
			y += 2000
		}
		if t, ok := resolveMonthDay(today, mo, d, y); ok {
			return t, true
		}
	}
	if m := inDaysRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return today.AddDate(0, 0, n), true
	}
	if nextWeekRe.MatchString(s) {
		return today.AddDate(0, 0, 7), true
	}
	if m := weekdayRe.FindStringSubmatch(s); m != nil {
		wd := weekdayNumber(m[2])
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), true
	}
	return time.Time{}, false
}

func resolveMonthDay(today time.Time, month, day, year int) (time.Time, bool) {
	if year == 0 {
		year = today.Year()
		if !validDate(year, month, day) {
			return time.Time{}, false
		}
		if time.Date(year, time.Month(month), day, 0, 0, 0, 0, today.Location()).Before(today) {
			year++
		}
	}
	if !validDate(year, month, day) {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, today.Location()), true
}

func validDate(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 {
		return false
	}
	return d <= time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func monthNumber(s string) int {
	s = strings.ToLower(s)
	for i, p := range []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"} {
		if strings.HasPrefix(s, p) {
			return i + 1
		}
	}
	return 0
}

func weekdayNumber(s string) time.Weekday {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d
		}
	}
	return time.Sunday
}

// findTime returns start (and, for ranges, end) as minutes after midnight.
// endMin is zero when no range was given.
func findTime(s string) (startMin, endMin int, ok bool) {
	if m := rangeRe.FindStringSubmatch(s); m != nil {
		eh, _ := strconv.Atoi(m[4])
		em, _ := strconv.Atoi(m[5])
		end, ok1 := toMinutes(eh, em, m[6])
		sh, _ := strconv.Atoi(m[1])
		sm, _ := strconv.Atoi(m[2])
		mer := m[3]
		if mer == "" {
			mer = m[6]
		}
		start, ok2 := toMinutes(sh, sm, mer)
		if ok2 && m[3] == "" && start >= end {
			start -= 12 * 60
		}
		if ok1 && ok2 && start >= 0 && start < end {
			return start, end, true
		}
	}
	if m := clockRe.FindStringSubmatch(s); m != nil {
		if m[3] != "" {
			h, _ := strconv.Atoi(m[1])
			mi, _ := strconv.Atoi(m[2])
			if v, ok := toMinutes(h, mi, m[3]); ok {
				return v, 0, true
			}
		} else {
			h, _ := strconv.Atoi(m[4])
			mi, _ := strconv.Atoi(m[5])
			return h*60 + mi, 0, true
		}
	}
	if m := namedRe.FindStringSubmatch(s); m != nil {
		switch m[1] {
		case "noon":
			return 12 * 60, 0, true
		case "midnight":
			return 0, 0, true
		case "morning":
			return 9 * 60, 0, true
		case "afternoon":
			return 14 * 60, 0, true
		case "evening":
			return 18 * 60, 0, true
		case "tonight":
			return 19 * 60, 0, true
		}
	}
	if m := bareAtRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		switch {
		case h >= 1 && h <= 7:
			return (h + 12) * 60, 0, true
		case h >= 8 && h <= 12:
			return h * 60, 0, true
		}
	}
	return 0, 0, false
}

func toMinutes(h, m int, meridiem string) (int, bool) {
	meridiem = strings.ReplaceAll(strings.ToLower(meridiem), ".", "")
	if m > 59 {
		return 0, false
	}
	switch meridiem {
	case "am", "pm":
		if h < 1 || h > 12 {
			return 0, false
		}
		h %= 12
		if meridiem == "pm" {
			h += 12
		}
	default:
		if h > 23 {
			return 0, false
		}
	}
	return h*60 + m, true
}

func findDuration(s string) (time.Duration, bool) {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	switch m[3] {
	case "half an hour":
		return 30 * time.Minute, true
	case "an hour":
		return time.Hour, true
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	unit := time.Minute
	if strings.HasPrefix(m[2], "h") {
		unit = time.Hour
	}
	return time.Duration(v * float64(unit)), true
}

func findLocation(s string) string {
	if m := placeRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, m := range properRe.FindAllStringSubmatch(s, -1) {
		cand := strings.TrimSpace(strings.TrimSuffix(m[1], "."))
		words := strings.Fields(cand)
		first := strings.ToLower(words[0])
		if first == "the" && len(words) > 1 {
			first = strings.ToLower(words[1])
		}
		// "on Friday", "in March" and friends are dates, not places.
		if monthRe.MatchString(first) || weekdayRe.MatchString(first) ||
			namedRe.MatchString(first) || relDayRe.MatchString(first) {
			continue
		}
		return cand
	}
	return ""
}

func findCategory(s string) string {
	for _, c := range categoryWords {
		for _, w := range c.words {
			if containsWord(s, w) {
				return c.category
			}
		}
	}
	return ""
}

func findEnergy(s string) string {
	best := ""
	for w, level := range energyWords {
		if containsWord(s, w) && rankEnergy(level) > rankEnergy(best) {
			best = level
		}
	}
	return best
}

func rankEnergy(s string) int {
	switch s {
	case "low":
		return 1
	case "medium":
		return 2
	case "high":
		return 3
	}
	return 0
}

func findPriority(s string) string {
	switch {
	case containsWord(s, "urgent"), containsWord(s, "asap"):
		return "urgent"
	case containsWord(s, "important"), containsWord(s, "critical"):
		return "high"
	}
	return ""
}

func containsWord(s, w string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], w)
		if j < 0 {
			return false
		}
		j += i
		before := j == 0 || !isWordRune(rune(s[j-1]))
		after := j+len(w) == len(s) || !isWordRune(rune(s[j+len(w)]))
		if before && after {
			return true
		}
		i = j + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// extractTitle removes scheduling phrases from the clause and tidies what
// is left.
func extractTitle(s string) string {
	t := s
	if loc := findLocation(s); loc != "" {
		t = regexp.MustCompile(`(?i)(?:\b(?:at|in)\s+|@\s*)?`+regexp.QuoteMeta(loc)).ReplaceAllString(t, " ")
	}
	for _, re := range stripRes {
		t = re.ReplaceAllString(t, " ")
	}
	t = fillerRe.ReplaceAllString(strings.TrimSpace(t), "")
	t = spacesRe.ReplaceAllString(t, " ")
	for {
		trimmed := danglingRe.ReplaceAllString(t, "")
		trimmed = strings.TrimSpace(strings.Trim(trimmed, " ,.;:!?-"))
		if trimmed == t {
			break
		}
		t = trimmed
	}
	if t == "" {
		return ""
	}
	r := []rune(t)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// atClock returns the wall-clock time minute minutes after midnight on date's
// calendar day, so DST transitions do not shift it.
func atClock(date time.Time, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minute/60, minute%60, 0, 0, date.Location())
}

func appendOnce(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
