// Package syncer reconciles a locally held copy of a calendar with a remote
// copy: it finds divergent events, resolves them by strategy, computes the
// changes each side needs and applies them through a mutation port.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"schedcore/internal/model"
)

type ConflictType string

const (
	ConflictConcurrentEdit   ConflictType = "concurrent_edit"
	ConflictDeletedModified  ConflictType = "deleted_modified"
	ConflictPermissionDenied ConflictType = "permission_denied"
	ConflictQuotaExceeded    ConflictType = "quota_exceeded"
)

type Resolution string

const (
	LocalWins  Resolution = "local_wins"
	RemoteWins Resolution = "remote_wins"
	Merge      Resolution = "merge"
	Manual     Resolution = "manual"
	Pending    Resolution = "pending"
)

// ParseStrategy validates a strategy name as accepted by ResolveConflicts.
func ParseStrategy(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case LocalWins, RemoteWins, Merge, Manual:
		return r, nil
	default:
		return "", fmt.Errorf("unknown sync strategy %q", s)
	}
}

var (
	// ErrSyncInProgress is returned when a pass is already running on the
	// same Reconciler. Callers should back off rather than retry at once.
	ErrSyncInProgress = errors.New("sync already in progress")

	// Mutators may wrap these so failures surface as typed sync conflicts.
	ErrPermissionDenied = errors.New("permission denied")
	ErrQuotaExceeded    = errors.New("quota exceeded")
)

// Conflict is a divergence between the local and remote copy of one event.
// Local or Remote is nil when that side no longer has the event.
type Conflict struct {
	ID         string       `json:"id"`
	Type       ConflictType `json:"type"`
	Local      *model.Event `json:"local,omitempty"`
	Remote     *model.Event `json:"remote,omitempty"`
	Fields     []string     `json:"fields,omitempty"`
	Resolution Resolution   `json:"resolution"`
	Merged     *model.Event `json:"merged,omitempty"`
}

// Mutator is the calendar mutation port. Each call may fail independently.
type Mutator interface {
	Create(ctx context.Context, ev model.Event) (model.Event, error)
	Update(ctx context.Context, id string, p Patch) (model.Event, error)
	Delete(ctx context.Context, id string) error
}

// Patch carries only the fields that change; nil means untouched.
type Patch struct {
	Title       *string             `json:"title,omitempty"`
	Interval    *model.TimeInterval `json:"interval,omitempty"`
	Location    *string             `json:"location,omitempty"`
	Description *string             `json:"description,omitempty"`
	Category    *string             `json:"category,omitempty"`
	Priority    *model.Priority     `json:"priority,omitempty"`
	Attendees   *[]model.Attendee   `json:"attendees,omitempty"`
	Recurrence  *string             `json:"recurrence,omitempty"`
}

// Diff returns the minimal patch turning from into to. IDs and timestamps
// are not compared.
func Diff(from, to model.Event) Patch {
	var p Patch
	if from.Title != to.Title {
		p.Title = &to.Title
	}
	if !sameInterval(from.Interval, to.Interval) {
		iv := to.Interval
		p.Interval = &iv
	}
	if from.Location != to.Location {
		p.Location = &to.Location
	}
	if from.Description != to.Description {
		p.Description = &to.Description
	}
	if from.Category != to.Category {
		p.Category = &to.Category
	}
	if from.Priority != to.Priority {
		p.Priority = &to.Priority
	}
	if !slices.Equal(from.Attendees, to.Attendees) {
		a := slices.Clone(to.Attendees)
		p.Attendees = &a
	}
	if from.Recurrence != to.Recurrence {
		p.Recurrence = &to.Recurrence
	}
	return p
}

func (p Patch) Empty() bool {
	return len(p.Fields()) == 0
}

// Fields lists the patched field names in a stable order.
func (p Patch) Fields() []string {
	var out []string
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"title", p.Title != nil},
		{"interval", p.Interval != nil},
		{"location", p.Location != nil},
		{"description", p.Description != nil},
		{"category", p.Category != nil},
		{"priority", p.Priority != nil},
		{"attendees", p.Attendees != nil},
		{"recurrence", p.Recurrence != nil},
	} {
		if f.set {
			out = append(out, f.name)
		}
	}
	return out
}

// Apply returns ev with the patch applied.
func (p Patch) Apply(ev model.Event) model.Event {
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Interval != nil {
		ev.Interval = *p.Interval
	}
	if p.Location != nil {
		ev.Location = *p.Location
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Category != nil {
		ev.Category = *p.Category
	}
	if p.Priority != nil {
		ev.Priority = *p.Priority
	}
	if p.Attendees != nil {
		ev.Attendees = slices.Clone(*p.Attendees)
	}
	if p.Recurrence != nil {
		ev.Recurrence = *p.Recurrence
	}
	return ev
}

// Update is one patch to send. Resolution is set when the update comes from
// a resolved conflict rather than from plain diffing.
type Update struct {
	ID         string     `json:"id"`
	Patch      Patch      `json:"patch"`
	Resolution Resolution `json:"resolution,omitempty"`
}

// Changes is the set of mutations for one side of the sync.
type Changes struct {
	Creates []model.Event `json:"creates,omitempty"`
	Updates []Update      `json:"updates,omitempty"`
	Deletes []string      `json:"deletes,omitempty"`
}

func (c Changes) Len() int {
	return len(c.Creates) + len(c.Updates) + len(c.Deletes)
}

// Delta is the outcome of reconciliation. Remote is pushed through the
// mutation port; Local is what the caller's own store must adopt.
type Delta struct {
	Remote  Changes  `json:"remote"`
	Local   Changes  `json:"local"`
	Pending []string `json:"pending,omitempty"`
}

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// OpResult reports one mutation. Event is set on successful create/update.
type OpResult struct {
	ID      string       `json:"id"`
	Op      Op           `json:"op"`
	Success bool         `json:"success"`
	Event   *model.Event `json:"event,omitempty"`
	Err     error        `json:"-"`
	Error   string       `json:"error,omitempty"`
}

// ApplyResult collects per-operation outcomes. A failed operation never
// stops the batch.
type ApplyResult struct {
	Results   []OpResult `json:"results"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Report summarizes a full Sync pass.
type Report struct {
	Conflicts []Conflict   `json:"conflicts"`
	Delta     Delta        `json:"delta"`
	Remote    ApplyResult  `json:"remote"`
	Local     *ApplyResult `json:"local,omitempty"`
}

func sameInterval(a, b model.TimeInterval) bool {
	return a.Start.Equal(b.Start) && a.End.Equal(b.End) && a.AllDay == b.AllDay
}
