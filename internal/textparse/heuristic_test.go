package textparse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedcore/internal/model"
)

// Tuesday noon.
var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func parse(t *testing.T, text string) *Result {
	t.Helper()
	res, err := NewHeuristic().Parse(context.Background(), text, Context{CurrentDate: now})
	require.NoError(t, err)
	return res
}

func TestHeuristic_SingleEvents(t *testing.T) {
	tests := []struct {
		text     string
		title    string
		start    string
		end      string
		location string
		category string
	}{
		{
			text:     "Lunch with Sam tomorrow at noon at Blue Bottle",
			title:    "Lunch with Sam",
			start:    "2026-03-11T12:00:00Z",
			end:      "2026-03-11T13:00:00Z",
			location: "Blue Bottle",
			category: "social",
		},
		{
			text:     "Team standup every weekday at 9:15 in Room 4",
			title:    "Team standup",
			start:    "2026-03-11T09:15:00Z",
			end:      "2026-03-11T10:15:00Z",
			location: "Room 4",
			category: "work",
		},
		{
			text:     "Dentist appointment on March 14 at 3pm for 45 minutes",
			title:    "Dentist appointment",
			start:    "2026-03-14T15:00:00Z",
			end:      "2026-03-14T15:45:00Z",
			category: "health",
		},
		{
			text:     "Workshop tomorrow from 2 to 4pm",
			title:    "Workshop",
			start:    "2026-03-11T14:00:00Z",
			end:      "2026-03-11T16:00:00Z",
			category: "work",
		},
		{
			text:     "Call the bank on friday at 4:30pm",
			title:    "Call the bank",
			start:    "2026-03-13T16:30:00Z",
			end:      "2026-03-13T17:30:00Z",
			category: "work",
		},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := parse(t, tt.text)
			require.Len(t, res.Events, 1)
			ev := res.Events[0]
			assert.Equal(t, tt.title, ev.Title)
			assert.Equal(t, tt.start, ev.Start)
			assert.Equal(t, tt.end, ev.End)
			assert.Equal(t, tt.location, ev.Location)
			assert.Equal(t, tt.category, ev.Category)
			assert.False(t, res.NeedsClarification)
		})
	}
}

func TestHeuristic_MissingTimeAsksForClarification(t *testing.T) {
	res := parse(t, "Yoga tomorrow")
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Yoga", res.Events[0].Title)
	assert.Equal(t, "2026-03-11T09:00:00Z", res.Events[0].Start)
	assert.True(t, res.NeedsClarification)
	assert.Contains(t, res.ClarificationQuestions, `What time should "Yoga" start?`)
	assert.NotEmpty(t, res.Warnings)
}

func TestHeuristic_PastTimeTodayRollsToTomorrow(t *testing.T) {
	res := parse(t, "Coffee at 8am")
	require.Len(t, res.Events, 1)
	assert.Equal(t, "2026-03-11T08:00:00Z", res.Events[0].Start)
}

func TestHeuristic_MultipleClauses(t *testing.T) {
	res := parse(t, "Coffee with Ana at 3pm; gym at 6pm")
	require.Len(t, res.Events, 2)
	assert.Equal(t, "Coffee with Ana", res.Events[0].Title)
	assert.Equal(t, "Gym", res.Events[1].Title)
	assert.Equal(t, "high", res.Events[1].EnergyLevel)
}

func TestHeuristic_AllDay(t *testing.T) {
	res := parse(t, "Offsite all day on 2026-04-02")
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.True(t, ev.AllDay)
	assert.Equal(t, "2026-04-02", ev.Start)
	assert.Equal(t, "Offsite", ev.Title)

	iv, err := ev.Interval(time.UTC)
	require.NoError(t, err)
	assert.True(t, iv.AllDay)
	assert.Equal(t, 24*time.Hour, iv.Duration())
}

func TestHeuristic_NothingSchedulable(t *testing.T) {
	res := parse(t, "hello there")
	assert.Empty(t, res.Events)
	assert.True(t, res.NeedsClarification)
}

func TestHeuristic_UsesConfiguredZone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	res, err := NewHeuristic().Parse(context.Background(), "Standup tomorrow at 9am", Context{
		CurrentDate: now,
		Location:    berlin,
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	iv, err := res.Events[0].Interval(berlin)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC), iv.Start)
}

func TestHeuristic_WallClockAcrossDSTChange(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// Clocks spring forward at 02:00 on 2026-03-08.
	pc := Context{
		CurrentDate:  time.Date(2026, 3, 7, 12, 0, 0, 0, ny),
		Location:     ny,
		WorkingHours: model.WorkingHours{Start: "08:30", End: "17:00"},
	}

	res, err := NewHeuristic().Parse(context.Background(), "Dentist tomorrow at 9am; standup tomorrow", pc)
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "2026-03-08T09:00:00-04:00", res.Events[0].Start)
	assert.Equal(t, "2026-03-08T10:00:00-04:00", res.Events[0].End)
	assert.Equal(t, "2026-03-08T08:30:00-04:00", res.Events[1].Start)
}

func TestHeuristic_AverageDurationFromPreferences(t *testing.T) {
	res, err := NewHeuristic().Parse(context.Background(), "Review tomorrow at 10am", Context{
		CurrentDate: now,
		Preferences: &model.UserPattern{AverageDurationMinutes: 25},
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "2026-03-11T10:25:00Z", res.Events[0].End)
}

func TestHeuristic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHeuristic().Parse(ctx, "Lunch tomorrow", Context{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRawEventInterval(t *testing.T) {
	tests := []struct {
		name    string
		raw     RawEvent
		want    time.Duration
		wantErr bool
	}{
		{"explicit end", RawEvent{Start: "2026-03-11T10:00:00Z", End: "2026-03-11T10:30:00Z"}, 30 * time.Minute, false},
		{"duration", RawEvent{Start: "2026-03-11T10:00", DurationMinutes: 90}, 90 * time.Minute, false},
		{"default hour", RawEvent{Start: "2026-03-11 10:00"}, time.Hour, false},
		{"missing start", RawEvent{Title: "x"}, 0, true},
		{"garbage", RawEvent{Start: "next tuesday-ish"}, 0, true},
		{"end before start", RawEvent{Start: "2026-03-11T10:00:00Z", End: "2026-03-11T09:00:00Z"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv, err := tt.raw.Interval(time.UTC)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, iv.Duration())
		})
	}
}
