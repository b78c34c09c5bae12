package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOccurrences_WeeklyByDayFromTuesday(t *testing.T) {
	e := NewEngine()
	r, err := ParseRule("FREQ=WEEKLY;BYDAY=MO,WE,FR")
	require.NoError(t, err)

	// 2026-03-10 is a Tuesday.
	from := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	got := e.NextOccurrences(r, from, 7)
	require.Len(t, got, 7)

	allowed := map[time.Weekday]bool{time.Monday: true, time.Wednesday: true, time.Friday: true}
	seen := map[time.Time]bool{}
	for i, ts := range got {
		assert.True(t, allowed[ts.Weekday()], "unexpected weekday %s", ts.Weekday())
		assert.False(t, seen[ts], "duplicate %s", ts)
		seen[ts] = true
		if i > 0 {
			assert.True(t, ts.After(got[i-1]), "not chronological at %d", i)
		}
		assert.Equal(t, 9, ts.Hour())
	}
	assert.Equal(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), got[0])
	assert.Equal(t, time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC), got[1])
	assert.Equal(t, time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC), got[2])
}

func TestNextOccurrences_WeeklyInterval(t *testing.T) {
	e := NewEngine()
	r := Rule{Frequency: Weekly, Interval: 2, ByDay: []Weekday{MO}}
	from := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) // Tuesday

	got := e.NextOccurrences(r, from, 3)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 23, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC),
	}, got)
}

func TestNextOccurrences_Daily(t *testing.T) {
	e := NewEngine()
	from := time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC)

	got := e.NextOccurrences(Rule{Frequency: Daily, Interval: 2}, from, 3)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 12, 7, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 7, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 16, 7, 30, 0, 0, time.UTC),
	}, got)
}

func TestNextOccurrences_MonthlyByMonthDay(t *testing.T) {
	e := NewEngine()
	r := Rule{Frequency: Monthly, ByMonthDay: []int{15}}

	// Day not yet passed this month.
	got := e.NextOccurrences(r, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), 2)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 15, 8, 0, 0, 0, time.UTC),
	}, got)

	// Day already passed: same day next month.
	got = e.NextOccurrences(r, time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC), 1)
	assert.Equal(t, []time.Time{time.Date(2026, 4, 15, 8, 0, 0, 0, time.UTC)}, got)
}

func TestNextOccurrences_MonthlySkipsShortMonths(t *testing.T) {
	e := NewEngine()
	r := Rule{Frequency: Monthly, ByMonthDay: []int{31}}

	got := e.NextOccurrences(r, time.Date(2026, 1, 31, 8, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 31, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 31, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC),
	}, got)
}

func TestNextOccurrences_MonthlyLastFriday(t *testing.T) {
	e := NewEngine()
	r := Rule{Frequency: Monthly, ByDay: []Weekday{FR}, BySetPos: -1}

	got := e.NextOccurrences(r, time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC), 2)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 27, 18, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 24, 18, 0, 0, 0, time.UTC),
	}, got)
}

func TestNextOccurrences_YearlyLeapDay(t *testing.T) {
	e := NewEngine()
	got := e.NextOccurrences(Rule{Frequency: Yearly}, time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), 1)
	assert.Equal(t, []time.Time{time.Date(2028, 2, 29, 12, 0, 0, 0, time.UTC)}, got)
}

func TestNextOccurrences_CountAndUntil(t *testing.T) {
	e := NewEngine()
	from := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	got := e.NextOccurrences(Rule{Frequency: Daily, Count: 2}, from, 10)
	assert.Len(t, got, 2)

	until := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	got = e.NextOccurrences(Rule{Frequency: Daily, Until: &until}, from, 10)
	assert.Len(t, got, 2)
}

func TestNextOccurrences_InvalidRule(t *testing.T) {
	e := NewEngine()
	assert.Empty(t, e.NextOccurrences(Rule{}, time.Now(), 3))
	assert.Empty(t, e.NextOccurrences(Rule{Frequency: Daily}, time.Now(), 0))
}
