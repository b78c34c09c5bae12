package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedcore/internal/model"
)

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func ev(id, title string, startMin, endMin int) model.Event {
	return model.Event{
		ID:       id,
		Title:    title,
		Interval: model.NewInterval(day.Add(time.Duration(startMin)*time.Minute), day.Add(time.Duration(endMin)*time.Minute), false),
	}
}

// memCalendar is an in-memory Mutator. Failing IDs return the mapped error.
type memCalendar struct {
	mu      sync.Mutex
	events  map[string]model.Event
	failing map[string]error
	calls   []string
}

func newMem(events ...model.Event) *memCalendar {
	m := &memCalendar{events: map[string]model.Event{}, failing: map[string]error{}}
	for _, e := range events {
		m.events[e.ID] = e
	}
	return m
}

func (m *memCalendar) Create(_ context.Context, e model.Event) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "create:"+e.ID)
	if err := m.failing[e.ID]; err != nil {
		return model.Event{}, err
	}
	m.events[e.ID] = e
	return e, nil
}

func (m *memCalendar) Update(_ context.Context, id string, p Patch) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "update:"+id)
	if err := m.failing[id]; err != nil {
		return model.Event{}, err
	}
	cur, ok := m.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("event %s not found", id)
	}
	cur = p.Apply(cur)
	m.events[id] = cur
	return cur, nil
}

func (m *memCalendar) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "delete:"+id)
	if err := m.failing[id]; err != nil {
		return err
	}
	delete(m.events, id)
	return nil
}

func TestStandupScenario(t *testing.T) {
	r := NewReconciler()
	local := []model.Event{ev("e1", "Standup", 9*60, 9*60+30)}
	remote := []model.Event{ev("e1", "Standup", 9*60, 9*60+45)}

	conflicts := r.DetectConflicts(local, remote)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictConcurrentEdit, conflicts[0].Type)
	assert.Equal(t, []string{"interval"}, conflicts[0].Fields)
	assert.Equal(t, Pending, conflicts[0].Resolution)

	merged, err := r.ResolveConflicts(conflicts, Merge)
	require.NoError(t, err)
	require.NotNil(t, merged[0].Merged)
	assert.Equal(t, local[0].Interval, merged[0].Merged.Interval)
	assert.Equal(t, "e1", merged[0].Merged.ID)

	d := r.ComputeDelta(local, remote, merged)
	require.Len(t, d.Remote.Updates, 1)
	assert.Equal(t, []string{"interval"}, d.Remote.Updates[0].Patch.Fields())
	assert.Equal(t, Merge, d.Remote.Updates[0].Resolution)
	assert.Zero(t, d.Local.Len())
}

func TestDetectConflicts(t *testing.T) {
	r := NewReconciler()
	same := ev("same", "Same", 60, 120)
	local := []model.Event{
		same,
		ev("edited", "New title", 60, 120),
		ev("gone", "Deleted remotely", 60, 120),
		ev("", "No id", 60, 120),
	}
	remote := []model.Event{
		same,
		ev("edited", "Old title", 60, 120),
		ev("remote-only", "Remote", 60, 120),
	}

	got := r.DetectConflicts(local, remote)
	require.Len(t, got, 2)
	assert.Equal(t, "edited", got[0].ID)
	assert.Equal(t, ConflictConcurrentEdit, got[0].Type)
	assert.Equal(t, []string{"title"}, got[0].Fields)
	assert.Equal(t, "gone", got[1].ID)
	assert.Equal(t, ConflictDeletedModified, got[1].Type)
	assert.Nil(t, got[1].Remote)
}

func TestDetectConflicts_IgnoresNonSyncFields(t *testing.T) {
	r := NewReconciler()
	l := ev("e1", "Standup", 60, 90)
	l.Category = "work"
	rem := ev("e1", "Standup", 60, 90)
	assert.Empty(t, r.DetectConflicts([]model.Event{l}, []model.Event{rem}))
}

func TestResolveConflicts_LocalWinsNeverDiffedGenerically(t *testing.T) {
	r := NewReconciler()
	local := []model.Event{
		ev("e1", "Mine", 60, 90),
		ev("e2", "Only here", 60, 90),
		ev("e3", "Untouched", 60, 90),
	}
	remote := []model.Event{
		ev("e1", "Theirs", 60, 90),
		ev("e3", "Untouched", 60, 90),
		ev("e4", "Only there", 60, 90),
	}

	resolved, err := r.ResolveConflicts(r.DetectConflicts(local, remote), LocalWins)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	covered := map[string]bool{}
	for _, c := range resolved {
		assert.Equal(t, LocalWins, c.Resolution)
		covered[c.ID] = true
	}

	d := r.ComputeDelta(local, remote, resolved)
	for _, u := range d.Remote.Updates {
		if covered[u.ID] {
			assert.NotEmpty(t, u.Resolution, "generic update for conflict-covered id %s", u.ID)
		}
	}
	require.Len(t, d.Remote.Updates, 1)
	assert.Equal(t, "e1", d.Remote.Updates[0].ID)
	assert.Equal(t, "Mine", *d.Remote.Updates[0].Patch.Title)
	require.Len(t, d.Remote.Creates, 1)
	assert.Equal(t, "e2", d.Remote.Creates[0].ID)
	assert.Equal(t, []string{"e4"}, d.Remote.Deletes)
	assert.Zero(t, d.Local.Len())
}

func TestResolveConflicts_RemoteWinsAndManual(t *testing.T) {
	r := NewReconciler()
	local := []model.Event{ev("e1", "Mine", 60, 90), ev("e2", "Only here", 60, 90)}
	remote := []model.Event{ev("e1", "Theirs", 60, 90)}
	conflicts := r.DetectConflicts(local, remote)

	resolved, err := r.ResolveConflicts(conflicts, RemoteWins)
	require.NoError(t, err)
	d := r.ComputeDelta(local, remote, resolved)
	assert.Zero(t, d.Remote.Len())
	require.Len(t, d.Local.Updates, 1)
	assert.Equal(t, "Theirs", *d.Local.Updates[0].Patch.Title)
	assert.Equal(t, []string{"e2"}, d.Local.Deletes)

	manual, err := r.ResolveConflicts(conflicts, Manual)
	require.NoError(t, err)
	d = r.ComputeDelta(local, remote, manual)
	assert.Zero(t, d.Remote.Len())
	assert.Zero(t, d.Local.Len())
	assert.Equal(t, []string{"e1", "e2"}, d.Pending)

	_, err = r.ResolveConflicts(conflicts, Resolution("coin_flip"))
	assert.Error(t, err)
}

func TestMerge_PrecedenceTable(t *testing.T) {
	local := ev("local-id", "Planning", 60, 90)
	local.Description = "Agenda\nBudget"
	local.Attendees = []model.Attendee{
		{Email: "Ana@example.com", Name: "Ana", Status: "accepted"},
		{Email: "new@example.com"},
	}
	remote := ev("remote-id", "Planning (old)", 60, 120)
	remote.Location = "Room 2"
	remote.Description = "Agenda\nRoadmap"
	remote.Attendees = []model.Attendee{
		{Email: "bo@example.com"},
		{Email: "ana@example.com", Status: "tentative"},
	}

	m := merge(local, remote)
	assert.Equal(t, "remote-id", m.ID)
	assert.Equal(t, "Planning", m.Title)
	assert.Equal(t, local.Interval, m.Interval)
	assert.Equal(t, "Room 2", m.Location)
	assert.Equal(t, "Agenda\nBudget\nRoadmap", m.Description)
	assert.Equal(t, []model.Attendee{
		{Email: "bo@example.com"},
		{Email: "Ana@example.com", Name: "Ana", Status: "accepted"},
		{Email: "new@example.com"},
	}, m.Attendees)
}

func TestComputeDelta_DeletedModifiedMergeRecreates(t *testing.T) {
	r := NewReconciler()
	local := []model.Event{ev("e1", "Keep me", 60, 90)}
	resolved, err := r.ResolveConflicts(r.DetectConflicts(local, nil), Merge)
	require.NoError(t, err)

	d := r.ComputeDelta(local, nil, resolved)
	require.Len(t, d.Remote.Creates, 1)
	assert.Equal(t, "Keep me", d.Remote.Creates[0].Title)
	assert.Zero(t, d.Local.Len())
}

func TestComputeDelta_MergeWithoutMergedEventNeverDeletes(t *testing.T) {
	r := NewReconciler()
	local := []model.Event{ev("e1", "Planning", 60, 90)}
	remote := []model.Event{ev("e1", "Planning (old)", 60, 120)}
	l, rem := local[0], remote[0]

	d := r.ComputeDelta(local, remote, []Conflict{{ID: "e1", Local: &l, Remote: &rem, Resolution: Merge}})
	assert.Empty(t, d.Remote.Deletes)
	assert.Empty(t, d.Local.Deletes)
	require.Len(t, d.Remote.Updates, 1)
	assert.Equal(t, "Planning", *d.Remote.Updates[0].Patch.Title)

	d = r.ComputeDelta(nil, nil, []Conflict{{ID: "ghost", Resolution: Merge}})
	assert.Zero(t, d.Remote.Len())
	assert.Zero(t, d.Local.Len())
	assert.Equal(t, []string{"ghost"}, d.Pending)
}

func TestApplyChanges_PartialFailure(t *testing.T) {
	r := NewReconciler()
	m := newMem(ev("u1", "Old", 60, 90), ev("d1", "Bye", 60, 90))
	m.failing["c2"] = errors.New("backend down")
	m.failing["d1"] = fmt.Errorf("delete: %w", ErrPermissionDenied)

	newTitle := "New"
	res, err := r.ApplyChanges(context.Background(), m, Changes{
		Creates: []model.Event{ev("c1", "One", 0, 30), ev("c2", "Two", 0, 30)},
		Updates: []Update{{ID: "u1", Patch: Patch{Title: &newTitle}}},
		Deletes: []string{"d1"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Results, 4)
	assert.True(t, res.Results[0].Success)
	assert.False(t, res.Results[1].Success)
	assert.True(t, model.IsCapabilityError(res.Results[1].Err))
	assert.Contains(t, res.Results[1].Error, "create: backend down")
	assert.Equal(t, "New", res.Results[2].Event.Title)
	assert.False(t, res.Results[3].Success)

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, ConflictPermissionDenied, res.Conflicts[0].Type)
	assert.Equal(t, "d1", res.Conflicts[0].ID)
	assert.Equal(t, []string{"create:c1", "create:c2", "update:u1", "delete:d1"}, m.calls)
}

func TestApplyChanges_CancelledContextSkipsCalls(t *testing.T) {
	r := NewReconciler()
	m := newMem()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.ApplyChanges(ctx, m, Changes{Deletes: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.ErrorIs(t, res.Results[0].Err, context.Canceled)
	assert.Empty(t, m.calls)
}

// blockingCalendar parks the first Create until released.
type blockingCalendar struct {
	*memCalendar
	entered chan struct{}
	release chan struct{}
}

func (b *blockingCalendar) Create(ctx context.Context, e model.Event) (model.Event, error) {
	close(b.entered)
	<-b.release
	return b.memCalendar.Create(ctx, e)
}

func TestSync_ConcurrentCallFailsFast(t *testing.T) {
	r := NewReconciler()
	b := &blockingCalendar{memCalendar: newMem(), entered: make(chan struct{}), release: make(chan struct{})}
	local := []model.Event{ev("", "New", 60, 90)}

	done := make(chan error, 1)
	go func() {
		_, err := r.Sync(context.Background(), local, nil, LocalWins, b, nil)
		done <- err
	}()
	<-b.entered

	_, err := r.ApplyChanges(context.Background(), newMem(), Changes{})
	assert.ErrorIs(t, err, ErrSyncInProgress)
	_, err = r.Sync(context.Background(), nil, nil, LocalWins, newMem(), nil)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(b.release)
	require.NoError(t, <-done)

	_, err = r.ApplyChanges(context.Background(), newMem(), Changes{})
	assert.NoError(t, err)
}

func TestSync_AppliesBothSides(t *testing.T) {
	r := NewReconciler()
	local := []model.Event{ev("e1", "Mine", 60, 90)}
	remote := []model.Event{ev("e1", "Theirs", 60, 120), ev("e2", "Remote", 0, 30)}
	remoteM := newMem(remote...)
	localM := newMem(local...)

	rep, err := r.Sync(context.Background(), local, remote, RemoteWins, remoteM, localM)
	require.NoError(t, err)
	require.Len(t, rep.Conflicts, 1)
	require.NotNil(t, rep.Local)
	assert.Equal(t, 1, rep.Local.Succeeded)
	assert.Equal(t, "Theirs", localM.events["e1"].Title)
	// e2 exists only remotely and is not covered by a conflict.
	assert.Equal(t, []string{"delete:e2"}, remoteM.calls)
}
