package conflict

import (
	"encoding/json"
	"fmt"
	"time"

	"schedcore/internal/model"
)

type Type string

const (
	TypeOverlap           Type = "overlap"
	TypeSameTime          Type = "same_time"
	TypeTravelTime        Type = "travel_time"
	TypeInsufficientBreak Type = "insufficient_break"
	TypeEnergyMismatch    Type = "energy_mismatch"
	TypeResourceConflict  Type = "resource_conflict"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities low < medium < high < critical.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Detail carries the type-specific measurements of a conflict. The set of
// implementations is closed: one struct per conflict Type.
type Detail interface {
	conflictType() Type
}

type OverlapDetail struct {
	OverlapMinutes float64 `json:"overlap_minutes"`
}

type SameTimeDetail struct {
	Start          time.Time `json:"start"`
	OverlapMinutes float64   `json:"overlap_minutes"`
}

type TravelDetail struct {
	From            string    `json:"from"`
	To              string    `json:"to"`
	GapMinutes      float64   `json:"gap_minutes"`
	RequiredMinutes float64   `json:"required_minutes"`
	PrecedingEnd    time.Time `json:"preceding_end"`
}

type BreakDetail struct {
	GapMinutes      float64   `json:"gap_minutes"`
	RequiredMinutes float64   `json:"required_minutes"`
	PrecedingEnd    time.Time `json:"preceding_end"`
}

type EnergyDetail struct {
	First      model.EnergyLevel `json:"first"`
	Second     model.EnergyLevel `json:"second"`
	Difference int               `json:"difference"`
	GapMinutes float64           `json:"gap_minutes"`
}

type ResourceDetail struct {
	Resources      []string `json:"resources"`
	OverlapMinutes float64  `json:"overlap_minutes"`
}

func (OverlapDetail) conflictType() Type  { return TypeOverlap }
func (SameTimeDetail) conflictType() Type { return TypeSameTime }
func (TravelDetail) conflictType() Type   { return TypeTravelTime }
func (BreakDetail) conflictType() Type    { return TypeInsufficientBreak }
func (EnergyDetail) conflictType() Type   { return TypeEnergyMismatch }
func (ResourceDetail) conflictType() Type { return TypeResourceConflict }

// Record is one detected conflict between two events. EventID names the
// earlier-starting participant.
type Record struct {
	Type         Type     `json:"type"`
	Severity     Severity `json:"severity"`
	EventID      string   `json:"event_id"`
	OtherEventID string   `json:"other_event_id"`
	Detail       Detail   `json:"detail"`
	Suggestion   string   `json:"suggestion"`
}

// UnmarshalJSON restores the concrete Detail from the record's Type.
func (r *Record) UnmarshalJSON(b []byte) error {
	type plain Record
	var raw struct {
		plain
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var (
		d   Detail
		err error
	)
	switch raw.Type {
	case TypeOverlap:
		d, err = decodeDetail[OverlapDetail](raw.Detail)
	case TypeSameTime:
		d, err = decodeDetail[SameTimeDetail](raw.Detail)
	case TypeTravelTime:
		d, err = decodeDetail[TravelDetail](raw.Detail)
	case TypeInsufficientBreak:
		d, err = decodeDetail[BreakDetail](raw.Detail)
	case TypeEnergyMismatch:
		d, err = decodeDetail[EnergyDetail](raw.Detail)
	case TypeResourceConflict:
		d, err = decodeDetail[ResourceDetail](raw.Detail)
	default:
		return fmt.Errorf("unknown conflict type %q", raw.Type)
	}
	if err != nil {
		return fmt.Errorf("%s detail: %w", raw.Type, err)
	}

	*r = Record(raw.plain)
	r.Detail = d
	return nil
}

func decodeDetail[T Detail](raw json.RawMessage) (Detail, error) {
	var v T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func newRecord(d Detail, sev Severity, a, b *model.EventCandidate, suggestion string) Record {
	return Record{
		Type:         d.conflictType(),
		Severity:     sev,
		EventID:      a.ID,
		OtherEventID: b.ID,
		Detail:       d,
		Suggestion:   suggestion,
	}
}

type ResolutionType string

const (
	ResolutionReschedule   ResolutionType = "reschedule"
	ResolutionShorten      ResolutionType = "shorten"
	ResolutionExtend       ResolutionType = "extend"
	ResolutionMoveLocation ResolutionType = "move_location"
	ResolutionSplit        ResolutionType = "split"
	ResolutionCancel       ResolutionType = "cancel"
	ResolutionMerge        ResolutionType = "merge"
)

type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Resolution is a proposed fix for one conflict, applied to EventID.
type Resolution struct {
	Type           ResolutionType `json:"type"`
	EventID        string         `json:"event_id"`
	Confidence     float64        `json:"confidence"`
	Impact         Impact         `json:"impact"`
	SuggestedStart *time.Time     `json:"suggested_start,omitempty"`
	Description    string         `json:"description"`
}

// Analysis is the result of scanning an event set.
type Analysis struct {
	Conflicts            []Record     `json:"conflicts"`
	TotalConflicts       int          `json:"total_conflicts"`
	CriticalConflicts    int          `json:"critical_conflicts"`
	OverallSeverity      Severity     `json:"overall_severity"`
	Suggestions          []string     `json:"suggestions"`
	ResolutionStrategies []Resolution `json:"resolution_strategies"`
}
