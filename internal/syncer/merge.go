package syncer

import (
	"slices"
	"strings"

	"schedcore/internal/model"
)

// merge combines two copies of one event with a fixed per-field precedence:
//
//	id           remote
//	title        local, remote if local is blank
//	interval     local
//	location     local if set, else remote
//	description  union of lines, local first
//	category     local if set, else remote
//	priority     local if set, else remote
//	attendees    union by email, local entries override
//	recurrence   local if set, else remote
//	updated_at   later of the two
func merge(local, remote model.Event) model.Event {
	out := model.Event{
		ID:          remote.ID,
		Title:       orElse(local.Title, remote.Title),
		Interval:    local.Interval,
		Location:    orElse(local.Location, remote.Location),
		Description: mergeLines(local.Description, remote.Description),
		Category:    orElse(local.Category, remote.Category),
		Priority:    model.Priority(orElse(string(local.Priority), string(remote.Priority))),
		Attendees:   mergeAttendees(local.Attendees, remote.Attendees),
		Recurrence:  orElse(local.Recurrence, remote.Recurrence),
		UpdatedAt:   local.UpdatedAt,
	}
	if remote.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = remote.UpdatedAt
	}
	return out
}

func orElse(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

// mergeLines returns the order-preserving, de-duplicated union of the lines
// of both texts. Blank lines are dropped.
func mergeLines(first, second string) string {
	var lines []string
	for _, text := range []string{first, second} {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimRight(line, " \t\r")
			if strings.TrimSpace(line) == "" || slices.Contains(lines, line) {
				continue
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// mergeAttendees keeps remote order, replaces entries whose email matches a
// local attendee and appends local-only attendees.
func mergeAttendees(local, remote []model.Attendee) []model.Attendee {
	if len(local) == 0 && len(remote) == 0 {
		return nil
	}
	byKey := make(map[string]model.Attendee, len(local))
	for _, a := range local {
		byKey[a.Key()] = a
	}

	out := make([]model.Attendee, 0, len(local)+len(remote))
	seen := make(map[string]bool, len(local)+len(remote))
	for _, a := range remote {
		k := a.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		if l, ok := byKey[k]; ok {
			a = l
		}
		out = append(out, a)
	}
	for _, a := range local {
		k := a.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	return out
}
