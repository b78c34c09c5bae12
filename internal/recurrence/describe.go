package recurrence

import (
	"strconv"
	"strings"
)

var positionNames = map[int]string{
	1:  "first",
	2:  "second",
	3:  "third",
	4:  "fourth",
	5:  "fifth",
	-1: "last",
}

// GenerateDescription renders a human-readable sentence for the rule, e.g.
// "Every 2 weeks on Monday, Wednesday for 10 times".
func (e *Engine) GenerateDescription(r Rule) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Every ")
	if n := r.interval(); n > 1 {
		b.WriteString(strconv.Itoa(n))
		b.WriteString(" ")
		b.WriteString(r.Frequency.unit())
		b.WriteString("s")
	} else {
		b.WriteString(r.Frequency.unit())
	}

	days := r.sortedDays()
	switch {
	case r.BySetPos != 0:
		b.WriteString(" on the ")
		b.WriteString(positionName(r.BySetPos))
		b.WriteString(" ")
		b.WriteString(dayList(days))
	case len(r.ByMonthDay) > 0:
		parts := make([]string, len(r.ByMonthDay))
		for i, d := range r.ByMonthDay {
			parts[i] = Ordinal(d)
		}
		b.WriteString(" on the ")
		b.WriteString(strings.Join(parts, ", "))
	case len(days) > 0:
		b.WriteString(" on ")
		b.WriteString(dayList(days))
	}

	switch {
	case r.Count > 0:
		b.WriteString(" for ")
		b.WriteString(strconv.Itoa(r.Count))
		b.WriteString(" times")
	case r.Until != nil:
		b.WriteString(" until ")
		b.WriteString(r.Until.UTC().Format("Jan 2, 2006"))
	}

	return b.String(), nil
}

func dayList(days []Weekday) string {
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.Name()
	}
	return strings.Join(names, ", ")
}

func positionName(pos int) string {
	if name, ok := positionNames[pos]; ok {
		return name
	}
	return Ordinal(pos)
}

// Ordinal formats n with its English suffix: 1st, 2nd, 3rd, 4th, 11th, 21st.
// Negative values count from the end of the month and are rendered as-is.
func Ordinal(n int) string {
	if n < 0 {
		return strconv.Itoa(n)
	}
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
