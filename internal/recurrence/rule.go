package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Frequency is the closed set of supported recurrence frequencies.
type Frequency int

const (
	Daily Frequency = iota + 1
	Weekly
	Monthly
	Yearly
)

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Yearly:
		return "YEARLY"
	default:
		return "UNKNOWN"
	}
}

// unit is the singular noun used in human descriptions.
func (f Frequency) unit() string {
	switch f {
	case Daily:
		return "day"
	case Weekly:
		return "week"
	case Monthly:
		return "month"
	case Yearly:
		return "year"
	default:
		return ""
	}
}

func (f Frequency) valid() bool {
	return f >= Daily && f <= Yearly
}

func (f Frequency) MarshalText() ([]byte, error) {
	if !f.valid() {
		return nil, &ParseError{Field: "FREQ", Value: strconv.Itoa(int(f)), Msg: "unknown frequency"}
	}
	return []byte(f.String()), nil
}

func (f *Frequency) UnmarshalText(b []byte) error {
	parsed, err := parseFrequency(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func parseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DAILY":
		return Daily, nil
	case "WEEKLY":
		return Weekly, nil
	case "MONTHLY":
		return Monthly, nil
	case "YEARLY":
		return Yearly, nil
	default:
		return 0, &ParseError{Field: "FREQ", Value: s, Msg: "unknown frequency"}
	}
}

// Weekday is a two-letter iCalendar weekday code.
type Weekday string

const (
	MO Weekday = "MO"
	TU Weekday = "TU"
	WE Weekday = "WE"
	TH Weekday = "TH"
	FR Weekday = "FR"
	SA Weekday = "SA"
	SU Weekday = "SU"
)

// weekOrder is Monday-first; the index is the offset from Monday.
var weekOrder = []Weekday{MO, TU, WE, TH, FR, SA, SU}

var weekdayNames = map[Weekday]string{
	MO: "Monday",
	TU: "Tuesday",
	WE: "Wednesday",
	TH: "Thursday",
	FR: "Friday",
	SA: "Saturday",
	SU: "Sunday",
}

// offset returns the Monday-based index, or -1 for an unknown code.
func (w Weekday) offset() int {
	return slices.Index(weekOrder, w)
}

func (w Weekday) Name() string {
	return weekdayNames[w]
}

// Time converts the code to a time.Weekday.
func (w Weekday) Time() (time.Weekday, bool) {
	off := w.offset()
	if off < 0 {
		return 0, false
	}
	return time.Weekday((off + 1) % 7), true
}

// WeekdayOf converts a time.Weekday to its code.
func WeekdayOf(d time.Weekday) Weekday {
	return weekOrder[(int(d)+6)%7]
}

// mondayOffset returns t's weekday as an offset from Monday.
func mondayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Rule is a structured recurrence rule.
type Rule struct {
	Frequency  Frequency  `json:"frequency"`
	Interval   int        `json:"interval"`
	ByDay      []Weekday  `json:"by_day,omitempty"`
	ByMonthDay []int      `json:"by_month_day,omitempty"`
	BySetPos   int        `json:"by_set_pos,omitempty"` // 0 = absent, -1 = last
	Count      int        `json:"count,omitempty"`
	Until      *time.Time `json:"until,omitempty"`
}

// ParseError reports a malformed structured rule. It indicates a caller
// defect, never an inference failure on free text.
type ParseError struct {
	Field string
	Value string
	Msg   string
}

func (e *ParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("recurrence: invalid %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("recurrence: invalid %s %q: %s", e.Field, e.Value, e.Msg)
}

// IsParseError reports whether err is (or wraps) a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// interval returns the effective interval; the zero value means 1.
func (r Rule) interval() int {
	if r.Interval <= 0 {
		return 1
	}
	return r.Interval
}

// Validate checks structural invariants of the rule.
func (r Rule) Validate() error {
	if !r.Frequency.valid() {
		return &ParseError{Field: "FREQ", Value: strconv.Itoa(int(r.Frequency)), Msg: "unknown frequency"}
	}
	if r.Interval < 0 {
		return &ParseError{Field: "INTERVAL", Value: strconv.Itoa(r.Interval), Msg: "must be >= 1"}
	}
	for _, d := range r.ByDay {
		if d.offset() < 0 {
			return &ParseError{Field: "BYDAY", Value: string(d), Msg: "unknown weekday code"}
		}
	}
	for _, md := range r.ByMonthDay {
		if md == 0 || md < -31 || md > 31 {
			return &ParseError{Field: "BYMONTHDAY", Value: strconv.Itoa(md), Msg: "must be within 1..31 or -31..-1"}
		}
	}
	if r.BySetPos < -5 || r.BySetPos > 5 {
		return &ParseError{Field: "BYSETPOS", Value: strconv.Itoa(r.BySetPos), Msg: "must be within -5..5"}
	}
	if r.BySetPos != 0 && len(r.ByDay) == 0 {
		return &ParseError{Field: "BYSETPOS", Value: strconv.Itoa(r.BySetPos), Msg: "requires BYDAY"}
	}
	if r.Count < 0 {
		return &ParseError{Field: "COUNT", Value: strconv.Itoa(r.Count), Msg: "must be positive"}
	}
	if r.Count > 0 && r.Until != nil {
		return &ParseError{Field: "COUNT", Msg: "COUNT and UNTIL are mutually exclusive"}
	}
	return nil
}

const untilLayout = "20060102T150405Z"

// sortedDays returns ByDay deduplicated in Monday-first order.
func (r Rule) sortedDays() []Weekday {
	out := make([]Weekday, 0, len(r.ByDay))
	for _, d := range weekOrder {
		if slices.Contains(r.ByDay, d) {
			out = append(out, d)
		}
	}
	return out
}

// GenerateRule renders the canonical interchange string. Fields always appear
// in the order FREQ, INTERVAL, BYDAY, BYMONTHDAY, BYSETPOS, COUNT|UNTIL.
func (e *Engine) GenerateRule(r Rule) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("FREQ=")
	b.WriteString(r.Frequency.String())

	if n := r.interval(); n != 1 {
		b.WriteString(";INTERVAL=")
		b.WriteString(strconv.Itoa(n))
	}
	if days := r.sortedDays(); len(days) > 0 {
		codes := make([]string, len(days))
		for i, d := range days {
			codes[i] = string(d)
		}
		b.WriteString(";BYDAY=")
		b.WriteString(strings.Join(codes, ","))
	}
	if len(r.ByMonthDay) > 0 {
		nums := make([]string, len(r.ByMonthDay))
		for i, d := range r.ByMonthDay {
			nums[i] = strconv.Itoa(d)
		}
		b.WriteString(";BYMONTHDAY=")
		b.WriteString(strings.Join(nums, ","))
	}
	if r.BySetPos != 0 {
		b.WriteString(";BYSETPOS=")
		b.WriteString(strconv.Itoa(r.BySetPos))
	}
	switch {
	case r.Count > 0:
		b.WriteString(";COUNT=")
		b.WriteString(strconv.Itoa(r.Count))
	case r.Until != nil:
		b.WriteString(";UNTIL=")
		b.WriteString(r.Until.UTC().Format(untilLayout))
	}

	return b.String(), nil
}

// ParseRule decodes a canonical rule string (an optional "RRULE:" prefix is
// accepted). Ordinal BYDAY prefixes such as "-1FR" are folded into BYSETPOS.
func ParseRule(s string) (Rule, error) {
	var r Rule
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "RRULE:")
	if s == "" {
		return r, &ParseError{Field: "RRULE", Msg: "empty rule"}
	}

	for _, part := range strings.Split(s, ";") {
		if part == "" {
			continue
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return r, &ParseError{Field: "RRULE", Value: part, Msg: "expected KEY=VALUE"}
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "FREQ":
			f, err := parseFrequency(val)
			if err != nil {
				return r, err
			}
			r.Frequency = f
		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return r, &ParseError{Field: key, Value: val, Msg: "must be a positive integer"}
			}
			r.Interval = n
		case "BYDAY":
			for _, code := range strings.Split(val, ",") {
				code = strings.ToUpper(strings.TrimSpace(code))
				if len(code) < 2 {
					return r, &ParseError{Field: key, Value: code, Msg: "unknown weekday code"}
				}
				day := Weekday(code[len(code)-2:])
				if day.offset() < 0 {
					return r, &ParseError{Field: key, Value: code, Msg: "unknown weekday code"}
				}
				if prefix := code[:len(code)-2]; prefix != "" {
					pos, err := strconv.Atoi(prefix)
					if err != nil {
						return r, &ParseError{Field: key, Value: code, Msg: "bad ordinal prefix"}
					}
					r.BySetPos = pos
				}
				r.ByDay = append(r.ByDay, day)
			}
		case "BYMONTHDAY":
			for _, v := range strings.Split(val, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(v))
				if err != nil {
					return r, &ParseError{Field: key, Value: v, Msg: "not an integer"}
				}
				r.ByMonthDay = append(r.ByMonthDay, n)
			}
		case "BYSETPOS":
			n, err := strconv.Atoi(val)
			if err != nil {
				return r, &ParseError{Field: key, Value: val, Msg: "not an integer"}
			}
			r.BySetPos = n
		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return r, &ParseError{Field: key, Value: val, Msg: "must be a positive integer"}
			}
			r.Count = n
		case "UNTIL":
			t, err := parseUntil(val)
			if err != nil {
				return r, &ParseError{Field: key, Value: val, Msg: err.Error()}
			}
			r.Until = &t
		case "WKST":
			// Week start does not affect the supported expansions.
		default:
			return r, &ParseError{Field: key, Value: val, Msg: "unsupported rule part"}
		}
	}

	if r.Frequency == 0 {
		return r, &ParseError{Field: "FREQ", Msg: "missing"}
	}
	if r.Interval == 0 {
		r.Interval = 1
	}
	return r, r.Validate()
}

func parseUntil(v string) (time.Time, error) {
	if t, err := time.Parse(untilLayout, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse("20060102T150405", v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("20060102", v)
	if err != nil {
		return time.Time{}, errors.New("expected YYYYMMDD or YYYYMMDDTHHMMSSZ")
	}
	return t, nil
}
