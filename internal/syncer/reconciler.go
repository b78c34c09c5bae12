package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	appLog "schedcore/internal/log"
	"schedcore/internal/model"
)

// Reconciler runs at most one pass at a time; a second concurrent call fails
// with ErrSyncInProgress instead of waiting.
type Reconciler struct {
	running atomic.Bool
}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

func (r *Reconciler) acquire() error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	return nil
}

func (r *Reconciler) release() {
	r.running.Store(false)
}

// DetectConflicts matches events by ID. A shared ID whose title, description,
// time or location differ is a concurrent edit; an ID held only locally is
// reported as deleted_modified. Events without an ID are never matched.
func (r *Reconciler) DetectConflicts(local, remote []model.Event) []Conflict {
	remoteByID := index(remote)

	var out []Conflict
	seen := make(map[string]bool, len(local))
	for i := range local {
		l := local[i]
		if l.ID == "" || seen[l.ID] {
			continue
		}
		seen[l.ID] = true

		rem, ok := remoteByID[l.ID]
		if !ok {
			out = append(out, Conflict{
				ID:         l.ID,
				Type:       ConflictDeletedModified,
				Local:      &l,
				Resolution: Pending,
			})
			continue
		}
		if fields := divergentFields(l, rem); len(fields) > 0 {
			out = append(out, Conflict{
				ID:         l.ID,
				Type:       ConflictConcurrentEdit,
				Local:      &l,
				Remote:     &rem,
				Fields:     fields,
				Resolution: Pending,
			})
		}
	}
	appLog.Debug("sync conflicts detected", "local", len(local), "remote", len(remote), "conflicts", len(out))
	return out
}

// divergentFields compares only the fields that make two copies disagree
// for sync purposes.
func divergentFields(a, b model.Event) []string {
	var out []string
	if a.Title != b.Title {
		out = append(out, "title")
	}
	if a.Description != b.Description {
		out = append(out, "description")
	}
	if !sameInterval(a.Interval, b.Interval) {
		out = append(out, "interval")
	}
	if a.Location != b.Location {
		out = append(out, "location")
	}
	return out
}

// ResolveConflicts returns copies of conflicts with the strategy applied.
// Merge fills Merged; for a conflict with only one surviving copy the merge
// keeps that copy. Manual leaves every conflict pending.
func (r *Reconciler) ResolveConflicts(conflicts []Conflict, strategy Resolution) ([]Conflict, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}

	out := make([]Conflict, len(conflicts))
	for i, c := range conflicts {
		c.Merged = nil
		switch strategy {
		case LocalWins, RemoteWins:
			c.Resolution = strategy
		case Merge:
			c.Resolution = Merge
			c.Merged = mergedOf(c)
		case Manual:
			c.Resolution = Pending
		}
		out[i] = c
	}
	return out, nil
}

// ComputeDelta diffs the two sets by ID. IDs covered by a conflict are left
// out of generic diffing and contribute only through their resolution;
// unresolved ones are listed in Pending.
func (r *Reconciler) ComputeDelta(local, remote []model.Event, resolved []Conflict) Delta {
	localByID := index(local)
	remoteByID := index(remote)
	covered := make(map[string]bool, len(resolved))
	for _, c := range resolved {
		covered[c.ID] = true
	}

	var d Delta
	seen := make(map[string]bool, len(local))
	for _, l := range local {
		if l.ID != "" && (seen[l.ID] || covered[l.ID]) {
			continue
		}
		seen[l.ID] = true
		rem, ok := remoteByID[l.ID]
		if l.ID == "" || !ok {
			d.Remote.Creates = append(d.Remote.Creates, l)
			continue
		}
		if p := Diff(rem, l); !p.Empty() {
			d.Remote.Updates = append(d.Remote.Updates, Update{ID: l.ID, Patch: p})
		}
	}
	for _, rem := range remote {
		if rem.ID == "" || covered[rem.ID] {
			continue
		}
		if _, ok := localByID[rem.ID]; !ok {
			d.Remote.Deletes = append(d.Remote.Deletes, rem.ID)
		}
	}

	for _, c := range resolved {
		resolveInto(&d, c)
	}
	return d
}

// mergedOf combines whichever sides of c still hold the event; nil when
// neither does.
func mergedOf(c Conflict) *model.Event {
	var m model.Event
	switch {
	case c.Local != nil && c.Remote != nil:
		m = merge(*c.Local, *c.Remote)
	case c.Local != nil:
		m = *c.Local
	case c.Remote != nil:
		m = *c.Remote
	default:
		return nil
	}
	return &m
}

func resolveInto(d *Delta, c Conflict) {
	var winner *model.Event
	switch c.Resolution {
	case LocalWins:
		winner = c.Local
	case RemoteWins:
		winner = c.Remote
	case Merge:
		winner = c.Merged
		if winner == nil {
			winner = mergedOf(c)
		}
		if winner == nil {
			d.Pending = append(d.Pending, c.ID)
			return
		}
	default:
		d.Pending = append(d.Pending, c.ID)
		return
	}

	if winner == nil {
		// The winning side no longer has the event.
		if c.Remote != nil {
			d.Remote.Deletes = append(d.Remote.Deletes, c.ID)
		}
		if c.Local != nil {
			d.Local.Deletes = append(d.Local.Deletes, c.ID)
		}
		return
	}

	push := func(ch *Changes, current *model.Event) {
		if current == nil {
			ch.Creates = append(ch.Creates, *winner)
			return
		}
		if p := Diff(*current, *winner); !p.Empty() {
			ch.Updates = append(ch.Updates, Update{ID: c.ID, Patch: p, Resolution: c.Resolution})
		}
	}
	push(&d.Remote, c.Remote)
	push(&d.Local, c.Local)
}

// ApplyChanges pushes one side's changes through m. Individual failures are
// recorded and the batch continues.
func (r *Reconciler) ApplyChanges(ctx context.Context, m Mutator, ch Changes) (ApplyResult, error) {
	if err := r.acquire(); err != nil {
		return ApplyResult{}, err
	}
	defer r.release()
	return apply(ctx, m, ch), nil
}

// Sync runs a full pass: detect, resolve with strategy, diff and push the
// remote changes through remoteM. When localM is non-nil the local side's
// changes are applied to it as well.
func (r *Reconciler) Sync(ctx context.Context, local, remote []model.Event, strategy Resolution, remoteM, localM Mutator) (Report, error) {
	if err := r.acquire(); err != nil {
		return Report{}, err
	}
	defer r.release()

	conflicts := r.DetectConflicts(local, remote)
	resolved, err := r.ResolveConflicts(conflicts, strategy)
	if err != nil {
		return Report{}, fmt.Errorf("resolve conflicts: %w", err)
	}
	delta := r.ComputeDelta(local, remote, resolved)

	rep := Report{Conflicts: resolved, Delta: delta}
	rep.Remote = apply(ctx, remoteM, delta.Remote)
	if localM != nil {
		res := apply(ctx, localM, delta.Local)
		rep.Local = &res
	}

	appLog.Info("sync pass finished",
		"strategy", strategy,
		"conflicts", len(resolved),
		"pending", len(delta.Pending),
		"remote_ok", rep.Remote.Succeeded,
		"remote_failed", rep.Remote.Failed,
	)
	return rep, nil
}

func apply(ctx context.Context, m Mutator, ch Changes) ApplyResult {
	var res ApplyResult

	record := func(id string, op Op, ev *model.Event, err error) {
		out := OpResult{ID: id, Op: op, Success: err == nil, Event: ev}
		if err != nil {
			out.Err = &model.CapabilityError{Op: string(op), Err: err}
			out.Error = out.Err.Error()
			out.Event = nil
			res.Failed++
			appLog.Error("sync operation failed", err, "op", op, "id", id)
			if c, ok := failureConflict(id, err); ok {
				res.Conflicts = append(res.Conflicts, c)
			}
		} else {
			res.Succeeded++
		}
		res.Results = append(res.Results, out)
	}

	for _, ev := range ch.Creates {
		if err := ctx.Err(); err != nil {
			record(ev.ID, OpCreate, nil, err)
			continue
		}
		created, err := m.Create(ctx, ev)
		record(ev.ID, OpCreate, &created, err)
	}
	for _, u := range ch.Updates {
		if err := ctx.Err(); err != nil {
			record(u.ID, OpUpdate, nil, err)
			continue
		}
		updated, err := m.Update(ctx, u.ID, u.Patch)
		record(u.ID, OpUpdate, &updated, err)
	}
	for _, id := range ch.Deletes {
		if err := ctx.Err(); err != nil {
			record(id, OpDelete, nil, err)
			continue
		}
		record(id, OpDelete, nil, m.Delete(ctx, id))
	}
	return res
}

func failureConflict(id string, err error) (Conflict, bool) {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return Conflict{ID: id, Type: ConflictPermissionDenied, Resolution: Pending}, true
	case errors.Is(err, ErrQuotaExceeded):
		return Conflict{ID: id, Type: ConflictQuotaExceeded, Resolution: Pending}, true
	default:
		return Conflict{}, false
	}
}

func index(events []model.Event) map[string]model.Event {
	out := make(map[string]model.Event, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			continue
		}
		if _, dup := out[ev.ID]; !dup {
			out[ev.ID] = ev
		}
	}
	return out
}
