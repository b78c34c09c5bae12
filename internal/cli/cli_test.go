package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedcore/internal/config"
	"schedcore/internal/ics"
	"schedcore/internal/model"
)

// Tuesday noon.
var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(&RootOptions{now: func() time.Time { return now }})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.yaml"), "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decode(t *testing.T, s string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(s), v))
}

func TestRRule(t *testing.T) {
	out, err := execute(t, "rrule", "every", "other", "monday", "--from", "2026-03-10T09:00:00Z", "--count", "2")
	require.NoError(t, err)

	var got RRuleOutput
	decode(t, out, &got)
	assert.True(t, got.HasRecurrence)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO", got.RRule)
	require.Len(t, got.Occurrences, 2)
	assert.Equal(t, time.Monday, got.Occurrences[0].Weekday())
	assert.Equal(t, 14*24*time.Hour, got.Occurrences[1].Sub(got.Occurrences[0]))

	out, err = execute(t, "rrule", "--rule", "FREQ=MONTHLY;BYMONTHDAY=15", "--count", "1")
	require.NoError(t, err)
	decode(t, out, &got)
	assert.Equal(t, "FREQ=MONTHLY;BYMONTHDAY=15", got.RRule)

	_, err = execute(t, "rrule")
	assert.Error(t, err)
	_, err = execute(t, "rrule", "--rule", "FREQ=HOURLY")
	assert.Error(t, err)
}

func TestAnalyze_Text(t *testing.T) {
	out, err := execute(t, "analyze", "Team standup every Tuesday at 9:15 in Room 4")
	require.NoError(t, err)

	var got struct {
		Events []model.EventCandidate `json:"events"`
	}
	decode(t, out, &got)
	require.Len(t, got.Events, 1)
	assert.Equal(t, "Team standup", got.Events[0].Title)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=TU", got.Events[0].Recurrence)

	_, err = execute(t, "analyze")
	assert.Error(t, err)
}

func TestAnalyze_Batch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.txt")
	require.NoError(t, os.WriteFile(path, []byte("Team standup every Tuesday at 9:15 in Room 4\n\nhi\n"), 0o600))

	out, err := execute(t, "analyze", "--batch", path)
	require.NoError(t, err)

	var got []BatchResult
	decode(t, out, &got)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Line)
	require.NotNil(t, got[0].Analysis)
	assert.Len(t, got[0].Analysis.Events, 1)
	assert.Equal(t, 3, got[1].Line)
	assert.Nil(t, got[1].Analysis)
	assert.Equal(t, "too_short", got[1].Reason)
}

func TestAnalyze_AgainstCalendar(t *testing.T) {
	calPath := filepath.Join(t.TempDir(), "work.ics")
	_, err := ics.NewFileCalendar(calPath, time.UTC).Create(context.Background(), model.Event{
		ID:       "standup",
		Title:    "Standup",
		Interval: model.NewInterval(time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), time.Date(2026, 3, 11, 9, 30, 0, 0, time.UTC), false),
	})
	require.NoError(t, err)

	out, err := execute(t, "analyze", "--calendar", calPath, "Design review tomorrow at 9am")
	require.NoError(t, err)

	var got struct {
		Conflicts struct {
			Total    int `json:"total_conflicts"`
			Critical int `json:"critical_conflicts"`
		} `json:"conflicts"`
	}
	decode(t, out, &got)
	assert.Equal(t, 1, got.Conflicts.Total)
	assert.Equal(t, 1, got.Conflicts.Critical)
}

func TestConflicts_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"a","title":"Design review","interval":{"start":"2026-03-11T09:00:00Z","end":"2026-03-11T10:00:00Z"}},
		{"id":"b","title":"Standup","interval":{"start":"2026-03-11T09:00:00Z","end":"2026-03-11T09:15:00Z"}}
	]`), 0o600))

	out, err := execute(t, "conflicts", path)
	require.NoError(t, err)

	var got ConflictsOutput
	decode(t, out, &got)
	assert.Equal(t, 1, got.TotalConflicts)
	require.Len(t, got.Events, 2)
	require.NotEmpty(t, got.Events[0].Conflicts)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"id":"x","interval":{"start":"2026-03-11T10:00:00Z","end":"2026-03-11T09:00:00Z"}}]`), 0o600))
	_, err = execute(t, "conflicts", bad)
	assert.Error(t, err)
}

func TestConflicts_ICSFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.ics")
	cal := ics.NewFileCalendar(path, time.UTC)
	for _, ev := range []model.Event{
		{ID: "a", Title: "Review", Interval: model.NewInterval(time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC), false)},
		{ID: "b", Title: "Interview", Interval: model.NewInterval(time.Date(2026, 3, 11, 9, 30, 0, 0, time.UTC), time.Date(2026, 3, 11, 10, 30, 0, 0, time.UTC), false)},
	} {
		_, err := cal.Create(context.Background(), ev)
		require.NoError(t, err)
	}

	out, err := execute(t, "conflicts", path, "--days", "3")
	require.NoError(t, err)

	var got ConflictsOutput
	decode(t, out, &got)
	assert.Len(t, got.Events, 2)
	assert.GreaterOrEqual(t, got.TotalConflicts, 1)
}

func TestSync_Once(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "local.ics")
	remotePath := filepath.Join(dir, "remote.ics")

	_, err := ics.NewFileCalendar(localPath, time.UTC).Create(context.Background(), model.Event{
		ID:       "only-local",
		Title:    "Dentist",
		Interval: model.NewInterval(time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC), time.Date(2026, 3, 12, 16, 0, 0, 0, time.UTC), false),
	})
	require.NoError(t, err)

	out, err := execute(t, "sync", "--local", localPath, "--remote", remotePath, "--strategy", "local_wins")
	require.NoError(t, err)
	assert.Contains(t, out, `"succeeded": 1`)

	remote, err := ics.NewFileCalendar(remotePath, time.UTC).Events()
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, "only-local", remote[0].ID)
	assert.Equal(t, "Dentist", remote[0].Title)
}

func TestSync_Errors(t *testing.T) {
	_, err := execute(t, "sync")
	assert.Error(t, err, "paths are required")

	dir := t.TempDir()
	_, err = execute(t, "sync", "--local", filepath.Join(dir, "a.ics"), "--remote", filepath.Join(dir, "b.ics"), "--strategy", "coin_flip")
	assert.Error(t, err)
}

func TestSyncJob_WatchRejectsBadSchedule(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	job, err := newSyncJob(cfg, &syncOptions{local: filepath.Join(dir, "a.ics"), remote: filepath.Join(dir, "b.ics")})
	require.NoError(t, err)
	assert.Error(t, job.watch(context.Background(), "not a schedule", cfg, io.Discard))
}

func TestBuildAnalyzer(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := buildAnalyzer(cfg, nil)
	require.NoError(t, err)

	cfg.Parser.Strategy = "model"
	cfg.Parser.APIKey = "sk-test"
	_, err = buildAnalyzer(cfg, nil)
	require.NoError(t, err)

	cfg.Parser.Strategy = "oracle"
	_, err = buildAnalyzer(cfg, nil)
	assert.Error(t, err)
}
