package nlp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedcore/internal/conflict"
	"schedcore/internal/model"
	"schedcore/internal/textparse"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func fixedParser(events ...textparse.RawEvent) textparse.Parser {
	return textparse.ParserFunc(func(context.Context, string, textparse.Context) (*textparse.Result, error) {
		return &textparse.Result{Events: events}, nil
	})
}

func failingParser(err error) textparse.Parser {
	return textparse.ParserFunc(func(context.Context, string, textparse.Context) (*textparse.Result, error) {
		return nil, err
	})
}

func at(day, h, m int) time.Time {
	return time.Date(2026, 3, day, h, m, 0, 0, time.UTC)
}

func TestAnalyze_InputValidation(t *testing.T) {
	called := false
	a := NewAnalyzer(Config{
		Primary: textparse.ParserFunc(func(context.Context, string, textparse.Context) (*textparse.Result, error) {
			called = true
			return &textparse.Result{}, nil
		}),
		Now: clock,
	})

	tests := []struct {
		text   string
		reason string
	}{
		{"", ReasonEmpty},
		{"   \n\t", ReasonEmpty},
		{"ab", ReasonTooShort},
		{strings.Repeat("x", DefaultMaxLength+1), ReasonTooLong},
	}
	for _, tt := range tests {
		_, err := a.Analyze(context.Background(), tt.text, nil, Options{})
		require.Error(t, err)
		var ie *InputError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, tt.reason, ie.Reason)
		assert.True(t, IsInputError(err))
	}
	assert.False(t, called, "parser must not run on rejected input")
}

func TestAnalyze_HeuristicEndToEnd(t *testing.T) {
	a := NewAnalyzer(Config{Now: clock})

	res, err := a.Analyze(context.Background(), "Team standup every Tuesday at 9:15 in Room 4", nil, Options{})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.Equal(t, "Team standup", ev.Title)
	assert.Equal(t, at(17, 9, 15), ev.Interval.Start)
	assert.Equal(t, "Room 4", ev.Location)
	_, err = uuid.Parse(ev.ID)
	assert.NoError(t, err)

	assert.True(t, res.Recurrence.HasRecurrence)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=TU", ev.Recurrence)
	require.NotNil(t, ev.Rule)

	assert.Zero(t, res.Conflicts.TotalConflicts)
	assert.Equal(t, "primary", res.Parser)
	assert.Greater(t, res.OverallConfidence, 0.0)
	assert.Equal(t, res.Confidence.Overall, res.OverallConfidence)
	assert.Equal(t, res.Confidence.Overall, ev.Confidence)
}

func TestAnalyze_CriticalConflictBlocksAndScales(t *testing.T) {
	a := NewAnalyzer(Config{
		Primary: fixedParser(textparse.RawEvent{
			ID:    "new",
			Title: "Design review",
			Start: "2026-03-11T09:00:00Z",
			End:   "2026-03-11T10:00:00Z",
		}),
		Now: clock,
	})
	existing := []model.Event{
		{ID: "x", Title: "Standup", Interval: model.NewInterval(at(11, 9, 0), at(11, 9, 30), false)},
		// These two clash with each other only and must not be reported.
		{ID: "y", Title: "A", Interval: model.NewInterval(at(11, 14, 0), at(11, 15, 0), false)},
		{ID: "z", Title: "B", Interval: model.NewInterval(at(11, 14, 30), at(11, 15, 30), false)},
	}

	res, err := a.Analyze(context.Background(), "design review tomorrow at 9", existing, Options{})
	require.NoError(t, err)

	require.Equal(t, 1, res.Conflicts.TotalConflicts)
	assert.Equal(t, conflict.TypeSameTime, res.Conflicts.Conflicts[0].Type)
	assert.Equal(t, 1, res.Conflicts.CriticalConflicts)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, blockingWarning, res.Warnings[0])
	assert.InDelta(t, res.Confidence.Overall*0.7, res.OverallConfidence, 1e-9)

	require.Len(t, res.Events[0].Conflicts, 1)
	assert.Equal(t, "x", res.Events[0].Conflicts[0].OtherEventID)
}

func TestScaleConfidence(t *testing.T) {
	rec := conflict.Record{Severity: conflict.SeverityLow}
	tests := []struct {
		an   conflict.Analysis
		want float64
	}{
		{conflict.Analysis{}, 0.8},
		{conflict.Analysis{TotalConflicts: 1, Conflicts: []conflict.Record{rec}}, 0.72},
		{conflict.Analysis{TotalConflicts: 4}, 0.64},
		{conflict.Analysis{TotalConflicts: 5, CriticalConflicts: 1}, 0.56},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, scaleConfidence(0.8, tt.an), 1e-9)
	}
	assert.Equal(t, 1.0, scaleConfidence(1.7, conflict.Analysis{}))
}

func TestAnalyze_EmptyParseShortCircuits(t *testing.T) {
	a := NewAnalyzer(Config{Primary: fixedParser(), Now: clock})

	res, err := a.Analyze(context.Background(), "hmm, not sure", nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Zero(t, res.OverallConfidence)
	assert.Zero(t, res.Confidence)
	assert.Zero(t, res.Conflicts.TotalConflicts)
	assert.Contains(t, res.Warnings, noEventsWarning)
	assert.True(t, res.NeedsClarification)
}

func TestAnalyze_InvalidRawEventsAreDropped(t *testing.T) {
	a := NewAnalyzer(Config{
		Primary: fixedParser(
			textparse.RawEvent{Title: "No start"},
			textparse.RawEvent{Title: "Backwards", Start: "2026-03-11T10:00:00Z", End: "2026-03-11T09:00:00Z"},
			textparse.RawEvent{Title: "Gym", Start: "2026-03-11T18:00:00Z", Recurrence: "FREQ=FORTNIGHTLY"},
		),
		Now: clock,
	})

	res, err := a.Analyze(context.Background(), "gym tomorrow evening", nil, Options{})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Gym", res.Events[0].Title)
	assert.Nil(t, res.Events[0].Rule)

	joined := strings.Join(res.Warnings, "\n")
	assert.Contains(t, joined, `Skipped "No start"`)
	assert.Contains(t, joined, `Skipped "Backwards"`)
	assert.Contains(t, joined, `Ignored recurrence of "Gym"`)
}

func TestAnalyze_FallbackPolicies(t *testing.T) {
	boom := errors.New("model offline")
	fallback := fixedParser(textparse.RawEvent{Title: "Lunch", Start: "2026-03-11T12:00:00Z"})
	text := "lunch tomorrow at noon"

	t.Run("primary only surfaces the error", func(t *testing.T) {
		a := NewAnalyzer(Config{Primary: failingParser(boom), Fallback: fallback, Policy: PrimaryOnly, Now: clock})
		_, err := a.Analyze(context.Background(), text, nil, Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		var ce *model.CapabilityError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "parse", ce.Op)
	})

	t.Run("fallback on error", func(t *testing.T) {
		a := NewAnalyzer(Config{Primary: failingParser(boom), Fallback: fallback, Policy: FallbackOnError, Now: clock})
		res, err := a.Analyze(context.Background(), text, nil, Options{})
		require.NoError(t, err)
		assert.Equal(t, "fallback", res.Parser)
		require.Len(t, res.Events, 1)
	})

	t.Run("both fail", func(t *testing.T) {
		other := errors.New("also broken")
		a := NewAnalyzer(Config{Primary: failingParser(boom), Fallback: failingParser(other), Now: clock})
		_, err := a.Analyze(context.Background(), text, nil, Options{})
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, other)
		assert.True(t, model.IsCapabilityError(err))
	})

	t.Run("empty primary keeps empty without fallback_on_empty", func(t *testing.T) {
		a := NewAnalyzer(Config{Primary: fixedParser(), Fallback: fallback, Policy: FallbackOnError, Now: clock})
		res, err := a.Analyze(context.Background(), text, nil, Options{})
		require.NoError(t, err)
		assert.Empty(t, res.Events)
	})

	t.Run("fallback on empty", func(t *testing.T) {
		a := NewAnalyzer(Config{Primary: fixedParser(), Fallback: fallback, Policy: FallbackOnEmpty, Now: clock})
		res, err := a.Analyze(context.Background(), text, nil, Options{})
		require.NoError(t, err)
		assert.Equal(t, "fallback", res.Parser)
		require.Len(t, res.Events, 1)
	})
}

func TestParseFallbackPolicy(t *testing.T) {
	p, err := ParseFallbackPolicy("")
	require.NoError(t, err)
	assert.Equal(t, FallbackOnError, p)

	p, err = ParseFallbackPolicy("fallback_on_empty")
	require.NoError(t, err)
	assert.Equal(t, FallbackOnEmpty, p)

	_, err = ParseFallbackPolicy("sometimes")
	assert.Error(t, err)
}
