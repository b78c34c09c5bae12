// Package conflict finds scheduling conflicts among time-boxed events and
// proposes resolutions for them.
package conflict

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rdleal/intervalst/interval"

	appLog "schedcore/internal/log"
	"schedcore/internal/model"
)

const (
	DefaultTravelTimeBuffer = 15 * time.Minute
	DefaultBreakTimeBuffer  = 10 * time.Minute
	DefaultEnergyWindow     = 30 * time.Minute
)

// Options tunes the gap thresholds. Zero values fall back to the defaults.
type Options struct {
	TravelTimeBuffer time.Duration
	BreakTimeBuffer  time.Duration
	EnergyWindow     time.Duration
	Estimator        TravelEstimator
}

// Detector is safe for concurrent use; it holds configuration only.
type Detector struct {
	opts Options
}

func NewDetector(opts Options) *Detector {
	if opts.TravelTimeBuffer <= 0 {
		opts.TravelTimeBuffer = DefaultTravelTimeBuffer
	}
	if opts.BreakTimeBuffer <= 0 {
		opts.BreakTimeBuffer = DefaultBreakTimeBuffer
	}
	if opts.EnergyWindow <= 0 {
		opts.EnergyWindow = DefaultEnergyWindow
	}
	if opts.Estimator == nil {
		opts.Estimator = PlaceholderEstimator{Default: opts.TravelTimeBuffer}
	}
	return &Detector{opts: opts}
}

// Analyze scans every pair of events that overlap or sit within the largest
// gap threshold of each other. Each participant of a conflict also receives a
// model.ConflictRef pointing at the other event.
func (d *Detector) Analyze(events []*model.EventCandidate) Analysis {
	var records []Record
	for _, p := range d.candidatePairs(events) {
		a, b := events[p[0]], events[p[1]]
		if b.Interval.Start.Before(a.Interval.Start) {
			a, b = b, a
		}
		for _, rec := range d.evaluate(a, b) {
			records = append(records, rec)
			a.Conflicts = append(a.Conflicts, ref(rec, b.ID))
			b.Conflicts = append(b.Conflicts, ref(rec, a.ID))
		}
	}

	analysis := d.Summarize(records)
	appLog.Debug("conflict analysis completed",
		"events", len(events),
		"conflicts", analysis.TotalConflicts,
		"critical", analysis.CriticalConflicts,
		"severity", analysis.OverallSeverity,
	)
	return analysis
}

// Summarize builds the aggregate view (counts, overall severity, general
// suggestions and one strategy per record) for a set of records.
func (d *Detector) Summarize(records []Record) Analysis {
	analysis := Analysis{
		Conflicts:       records,
		TotalConflicts:  len(records),
		OverallSeverity: OverallSeverity(records),
	}
	for _, rec := range records {
		if rec.Severity == SeverityCritical {
			analysis.CriticalConflicts++
		}
		analysis.Suggestions = appendUnique(analysis.Suggestions, generalSuggestion(rec.Type))
		analysis.ResolutionStrategies = append(analysis.ResolutionStrategies, d.Strategy(rec))
	}
	return analysis
}

func ref(rec Record, other string) model.ConflictRef {
	return model.ConflictRef{
		Type:         string(rec.Type),
		Severity:     string(rec.Severity),
		OtherEventID: other,
		Suggestion:   rec.Suggestion,
	}
}

// lookahead is the widest gap any check cares about, plus slack so that the
// index never misses a pair sitting exactly on a threshold.
func (d *Detector) lookahead() time.Duration {
	w := max(d.opts.TravelTimeBuffer, d.opts.BreakTimeBuffer, d.opts.EnergyWindow)
	return w + time.Minute
}

type spanKey struct {
	start, end int64
}

// candidatePairs returns index pairs (i < j) whose padded intervals
// [start, end+lookahead] intersect. Events with identical padded intervals
// share a tree node, so the tree stores index groups.
func (d *Detector) candidatePairs(events []*model.EventCandidate) [][2]int {
	window := d.lookahead()
	tree := interval.NewSearchTree[[]int](func(x, y time.Time) int { return x.Compare(y) })

	padded := make([][2]time.Time, len(events))
	groups := make(map[spanKey][]int)
	var order []spanKey
	for i, ev := range events {
		start, end := ev.Interval.Start, ev.Interval.End
		if end.Before(start) {
			end = start
		}
		padded[i] = [2]time.Time{start, end.Add(window)}
		key := spanKey{padded[i][0].UnixNano(), padded[i][1].UnixNano()}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	for _, key := range order {
		idx := groups[key]
		if err := tree.Insert(padded[idx[0]][0], padded[idx[0]][1], idx); err != nil {
			appLog.Error("conflict index insert failed; scanning all pairs", err)
			return allPairs(len(events))
		}
	}

	seen := make(map[[2]int]bool)
	var pairs [][2]int
	for i := range events {
		hits, ok := tree.AllIntersections(padded[i][0], padded[i][1])
		if !ok {
			continue
		}
		for _, group := range hits {
			for _, j := range group {
				if j <= i {
					continue
				}
				p := [2]int{i, j}
				if !seen[p] {
					seen[p] = true
					pairs = append(pairs, p)
				}
			}
		}
	}

	slices.SortFunc(pairs, func(a, b [2]int) int {
		if a[0] != b[0] {
			return a[0] - b[0]
		}
		return a[1] - b[1]
	})
	return pairs
}

func allPairs(n int) [][2]int {
	var out [][2]int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, [2]int{i, j})
		}
	}
	return out
}

// evaluate applies the exact pairwise checks; a starts no later than b.
func (d *Detector) evaluate(a, b *model.EventCandidate) []Record {
	overlap := a.Interval.OverlapWith(b.Interval)
	if a.Interval.AllDay != b.Interval.AllDay {
		return d.mixedDay(a, b, overlap)
	}

	var out []Record
	gap := a.Interval.GapTo(b.Interval)

	switch {
	case a.Interval.Start.Equal(b.Interval.Start):
		out = append(out, newRecord(
			SameTimeDetail{Start: a.Interval.Start, OverlapMinutes: minutes(overlap)},
			SeverityCritical, a, b,
			fmt.Sprintf("%q and %q start at the same time; move one of them", a.Title, b.Title),
		))
	case overlap > 0:
		m := minutes(overlap)
		out = append(out, newRecord(
			OverlapDetail{OverlapMinutes: m},
			overlapSeverity(m), a, b,
			fmt.Sprintf("%q overlaps %q by %.0f minutes", b.Title, a.Title, m),
		))
	}

	if a.Interval.AllDay {
		return append(out, d.resourceCheck(a, b, overlap)...)
	}

	travel := false
	if gap >= 0 && gap < d.opts.TravelTimeBuffer && a.Location != "" && b.Location != "" &&
		!sameLocation(a.Location, b.Location) {
		required := d.opts.Estimator.EstimateTravelTime(a.Location, b.Location)
		out = append(out, newRecord(
			TravelDetail{
				From:            a.Location,
				To:              b.Location,
				GapMinutes:      minutes(gap),
				RequiredMinutes: minutes(required),
				PrecedingEnd:    a.Interval.End,
			},
			SeverityHigh, a, b,
			fmt.Sprintf("Only %.0f minutes to get from %s to %s before %q", minutes(gap), a.Location, b.Location, b.Title),
		))
		travel = true
	}

	if !travel && gap > 0 && gap < d.opts.BreakTimeBuffer {
		out = append(out, newRecord(
			BreakDetail{
				GapMinutes:      minutes(gap),
				RequiredMinutes: minutes(d.opts.BreakTimeBuffer),
				PrecedingEnd:    a.Interval.End,
			},
			SeverityMedium, a, b,
			fmt.Sprintf("Leave at least %.0f minutes between %q and %q", minutes(d.opts.BreakTimeBuffer), a.Title, b.Title),
		))
	}

	ra, rb := a.EnergyLevel.Rank(), b.EnergyLevel.Rank()
	if ra > 0 && rb > 0 && gap >= 0 && gap < d.opts.EnergyWindow {
		if diff := abs(ra - rb); diff >= 2 {
			out = append(out, newRecord(
				EnergyDetail{First: a.EnergyLevel, Second: b.EnergyLevel, Difference: diff, GapMinutes: minutes(gap)},
				SeverityMedium, a, b,
				fmt.Sprintf("%q (%s energy) runs straight into %q (%s energy)", a.Title, a.EnergyLevel, b.Title, b.EnergyLevel),
			))
		}
	}

	return append(out, d.resourceCheck(a, b, overlap)...)
}

// mixedDay handles an all-day event against a timed one. Sharing the day is
// only worth a low-severity overlap; gap checks do not apply, but a resource
// booked by both still is a real clash.
func (d *Detector) mixedDay(a, b *model.EventCandidate, overlap time.Duration) []Record {
	if overlap <= 0 {
		return nil
	}
	allDay, timed := a, b
	if timed.Interval.AllDay {
		allDay, timed = b, a
	}
	out := []Record{newRecord(
		OverlapDetail{OverlapMinutes: minutes(overlap)},
		SeverityLow, a, b,
		fmt.Sprintf("%q falls on the same day as all-day %q", timed.Title, allDay.Title),
	)}
	return append(out, d.resourceCheck(a, b, overlap)...)
}

func (d *Detector) resourceCheck(a, b *model.EventCandidate, overlap time.Duration) []Record {
	if overlap <= 0 {
		return nil
	}
	shared := sharedResources(a.Resources, b.Resources)
	if len(shared) == 0 {
		return nil
	}
	return []Record{newRecord(
		ResourceDetail{Resources: shared, OverlapMinutes: minutes(overlap)},
		SeverityHigh, a, b,
		fmt.Sprintf("%s booked by both %q and %q", strings.Join(shared, ", "), a.Title, b.Title),
	)}
}

func sharedResources(a, b []string) []string {
	var out []string
	for _, r := range a {
		for _, o := range b {
			if strings.EqualFold(strings.TrimSpace(r), strings.TrimSpace(o)) && !slices.Contains(out, r) {
				out = append(out, r)
			}
		}
	}
	return out
}

func overlapSeverity(m float64) Severity {
	switch {
	case m > 60:
		return SeverityCritical
	case m > 30:
		return SeverityHigh
	case m > 15:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// OverallSeverity folds a conflict list into one rank: critical if any is
// critical, high if more than two are high, medium if any is high or more
// than three are medium, low otherwise.
func OverallSeverity(records []Record) Severity {
	var high, medium int
	for _, r := range records {
		switch r.Severity {
		case SeverityCritical:
			return SeverityCritical
		case SeverityHigh:
			high++
		case SeverityMedium:
			medium++
		}
	}
	switch {
	case high > 2:
		return SeverityHigh
	case high > 0 || medium > 3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func generalSuggestion(t Type) string {
	switch t {
	case TypeOverlap:
		return "Consider rescheduling overlapping events"
	case TypeSameTime:
		return "Move one of the events that start at the same time"
	case TypeTravelTime:
		return "Add travel time between events at different locations"
	case TypeInsufficientBreak:
		return "Add buffer time between back-to-back events"
	case TypeEnergyMismatch:
		return "Group events with similar energy levels together"
	case TypeResourceConflict:
		return "Book an alternative resource for double-booked events"
	default:
		return ""
	}
}

func appendUnique(list []string, s string) []string {
	if s == "" || slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

func minutes(d time.Duration) float64 {
	return d.Minutes()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
