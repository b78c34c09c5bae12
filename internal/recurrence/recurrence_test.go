package recurrence

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedEngine() *Engine {
	return NewEngine(WithClock(func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}))
}

func TestParse_EveryTuesdayRoundTrip(t *testing.T) {
	e := fixedEngine()

	res := e.Parse("Team sync every Tuesday at 10am")
	require.True(t, res.HasRecurrence)
	require.NotNil(t, res.Rule)
	assert.Equal(t, 0.9, res.Confidence)

	s, err := e.GenerateRule(*res.Rule)
	require.NoError(t, err)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=TU", s)
}

func TestParse_EveryDayForFiveTimes(t *testing.T) {
	e := fixedEngine()

	res := e.Parse("every day for 5 times")
	require.True(t, res.HasRecurrence)
	require.NotNil(t, res.Rule)
	assert.Equal(t, Daily, res.Rule.Frequency)
	assert.Equal(t, 1, res.Rule.Interval)
	assert.Equal(t, 5, res.Rule.Count)

	s, err := e.GenerateRule(*res.Rule)
	require.NoError(t, err)
	assert.Equal(t, "FREQ=DAILY;COUNT=5", s)
}

func TestParse_Table(t *testing.T) {
	e := fixedEngine()

	tests := []struct {
		name       string
		text       string
		rule       string
		confidence float64
	}{
		{"weekdays", "standup every weekday at 9", "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR", 0.9},
		{"weekends", "long run on weekends", "FREQ=WEEKLY;BYDAY=SA,SU", 0.9},
		{"every two weeks", "1:1 every 2 weeks on Monday and Thursday", "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH", 0.9},
		{"every other week", "retro every other week", "FREQ=WEEKLY;INTERVAL=2", 0.7},
		{"biweekly", "biweekly planning", "FREQ=WEEKLY;INTERVAL=2", 0.7},
		{"weekly bare", "weekly review", "FREQ=WEEKLY", 0.7},
		{"monthly day", "pay rent monthly on the 15th", "FREQ=MONTHLY;BYMONTHDAY=15", 0.9},
		{"monthly day list", "invoices monthly on the 1st and 15th", "FREQ=MONTHLY;BYMONTHDAY=1,15", 0.9},
		{"monthly comma list", "payroll on the 1st, 10th and 20th of every month", "FREQ=MONTHLY;BYMONTHDAY=1,10,20", 0.9},
		{"stray ordinal ignored", "monthly review on the 15th, 3rd floor", "FREQ=MONTHLY;BYMONTHDAY=15", 0.9},
		{"times per week is not a count", "yoga every week, 3 times a week", "FREQ=WEEKLY", 0.7},
		{"monthly position", "book club on the last Friday of every month", "FREQ=MONTHLY;BYDAY=FR;BYSETPOS=-1", 0.9},
		{"first monday", "board meeting first Monday of the month", "FREQ=MONTHLY;BYDAY=MO;BYSETPOS=1", 0.9},
		{"every 3 months", "dentist every 3 months", "FREQ=MONTHLY;INTERVAL=3", 0.7},
		{"yearly", "anniversary dinner yearly", "FREQ=YEARLY", 0.7},
		{"plural day", "piano lessons on Wednesdays", "FREQ=WEEKLY;BYDAY=WE", 0.9},
		{"until iso", "gym every day until 2026-04-01", "FREQ=DAILY;UNTIL=20260401T235959Z", 0.9},
		{"until month no year", "yoga every Monday until Feb 3", "FREQ=WEEKLY;BYDAY=MO;UNTIL=20270203T235959Z", 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Parse(tt.text)
			require.True(t, res.HasRecurrence)
			require.NotNil(t, res.Rule)

			s, err := e.GenerateRule(*res.Rule)
			require.NoError(t, err)
			assert.Equal(t, tt.rule, s)
			assert.Equal(t, tt.confidence, res.Confidence)
			if tt.confidence < 0.9 {
				assert.NotEmpty(t, res.Suggestions)
			}
		})
	}
}

func TestParse_NoCue(t *testing.T) {
	res := fixedEngine().Parse("Lunch with Sam tomorrow at noon")
	assert.False(t, res.HasRecurrence)
	assert.Nil(t, res.Rule)
}

func TestParse_FallbackIsWeekly(t *testing.T) {
	res := fixedEngine().Parse("water the plants every morning")
	require.True(t, res.HasRecurrence)
	require.NotNil(t, res.Rule)
	assert.Equal(t, Weekly, res.Rule.Frequency)
	assert.Equal(t, 0.5, res.Confidence)
	assert.NotEmpty(t, res.Suggestions)
}

func TestParse_CountWinsOverUntil(t *testing.T) {
	res := fixedEngine().Parse("every day for 3 times until 2026-05-01")
	require.NotNil(t, res.Rule)
	assert.Equal(t, 3, res.Rule.Count)
	assert.Nil(t, res.Rule.Until)
	assert.NotEmpty(t, res.Suggestions)
}

func TestGenerateRule_Malformed(t *testing.T) {
	e := NewEngine()
	until := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	bad := []Rule{
		{},
		{Frequency: Weekly, Interval: -1},
		{Frequency: Weekly, ByDay: []Weekday{"XX"}},
		{Frequency: Monthly, ByMonthDay: []int{32}},
		{Frequency: Monthly, BySetPos: 2},
		{Frequency: Daily, Count: 2, Until: &until},
	}
	for i, r := range bad {
		_, err := e.GenerateRule(r)
		assert.True(t, IsParseError(err), "case %d: expected ParseError, got %v", i, err)

		_, err = e.GenerateDescription(r)
		assert.True(t, IsParseError(err), "case %d: expected ParseError, got %v", i, err)
	}
}

func TestParseRule_RoundTrip(t *testing.T) {
	e := NewEngine()
	for _, s := range []string{
		"FREQ=DAILY",
		"FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE,FR",
		"FREQ=MONTHLY;BYMONTHDAY=1,15",
		"FREQ=MONTHLY;BYDAY=TH;BYSETPOS=3",
		"FREQ=YEARLY;UNTIL=20301231T000000Z",
		"FREQ=DAILY;COUNT=10",
	} {
		r, err := ParseRule(s)
		require.NoError(t, err, s)
		out, err := e.GenerateRule(r)
		require.NoError(t, err)
		assert.Equal(t, s, out)
	}
}

func TestParseRule_OrdinalByDay(t *testing.T) {
	r, err := ParseRule("RRULE:FREQ=MONTHLY;BYDAY=-1FR;WKST=MO")
	require.NoError(t, err)
	assert.Equal(t, -1, r.BySetPos)
	assert.Equal(t, []Weekday{FR}, r.ByDay)
}

func TestParseRule_Errors(t *testing.T) {
	for _, s := range []string{
		"",
		"INTERVAL=2",
		"FREQ=HOURLY",
		"FREQ=DAILY;COUNT=0",
		"FREQ=DAILY;BYHOUR=9",
		"FREQ=DAILY;COUNT=2;UNTIL=20260101",
		"FREQ",
	} {
		_, err := ParseRule(s)
		assert.True(t, IsParseError(err), "%q: expected ParseError, got %v", s, err)
	}
}

func TestOrdinal(t *testing.T) {
	cases := map[int]string{
		1: "1st", 2: "2nd", 3: "3rd", 4: "4th", 11: "11th", 12: "12th", 13: "13th",
		21: "21st", 22: "22nd", 23: "23rd", 31: "31st", 101: "101st", 111: "111th",
	}
	for n, want := range cases {
		assert.Equal(t, want, Ordinal(n))
	}
}

func TestDescriptionsGolden(t *testing.T) {
	e := NewEngine()
	until := time.Date(2027, 12, 31, 23, 59, 59, 0, time.UTC)

	rules := []Rule{
		{Frequency: Daily},
		{Frequency: Daily, Interval: 3, Count: 5},
		{Frequency: Weekly, ByDay: []Weekday{FR, MO, WE}},
		{Frequency: Weekly, Interval: 2, ByDay: []Weekday{TU}},
		{Frequency: Monthly, ByMonthDay: []int{15}},
		{Frequency: Monthly, ByMonthDay: []int{1, 22}},
		{Frequency: Monthly, ByDay: []Weekday{FR}, BySetPos: -1},
		{Frequency: Monthly, Interval: 3, ByMonthDay: []int{11}},
		{Frequency: Yearly, Until: &until},
	}

	var buf bytes.Buffer
	for _, r := range rules {
		s, err := e.GenerateRule(r)
		require.NoError(t, err)
		d, err := e.GenerateDescription(r)
		require.NoError(t, err)
		fmt.Fprintf(&buf, "%s => %s\n", s, d)
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "descriptions", buf.Bytes())
}
