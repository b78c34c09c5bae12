package conflict

import (
	"fmt"
	"time"
)

// Strategy maps a conflict deterministically onto a proposed resolution for
// the later-starting participant.
func (d *Detector) Strategy(rec Record) Resolution {
	res := Resolution{EventID: rec.OtherEventID}

	switch det := rec.Detail.(type) {
	case OverlapDetail:
		switch {
		case det.OverlapMinutes > 60:
			res.Type, res.Confidence, res.Impact = ResolutionReschedule, 0.9, ImpactHigh
			res.Description = "Move the event to a free slot"
		case det.OverlapMinutes > 30:
			res.Type, res.Confidence, res.Impact = ResolutionShorten, 0.7, ImpactMedium
			res.Description = fmt.Sprintf("Shorten one event by %.0f minutes", det.OverlapMinutes)
		default:
			res.Type, res.Confidence, res.Impact = ResolutionExtend, 0.6, ImpactLow
			res.Description = fmt.Sprintf("Push the event back by %.0f minutes", det.OverlapMinutes)
		}
	case SameTimeDetail:
		res.Type, res.Confidence, res.Impact = ResolutionReschedule, 0.9, ImpactHigh
		res.Description = "Move one event to a different start time"
	case TravelDetail:
		res.Type, res.Confidence, res.Impact = ResolutionReschedule, 0.8, ImpactMedium
		wait := max(d.opts.TravelTimeBuffer, time.Duration(det.RequiredMinutes*float64(time.Minute)))
		start := det.PrecedingEnd.Add(wait)
		res.SuggestedStart = &start
		res.Description = fmt.Sprintf("Start after %s to allow travel from %s to %s",
			start.Format(time.Kitchen), det.From, det.To)
	case BreakDetail:
		res.Type, res.Confidence, res.Impact = ResolutionExtend, 0.7, ImpactLow
		res.Description = fmt.Sprintf("Extend the gap to at least %.0f minutes", det.RequiredMinutes)
	case EnergyDetail:
		res.Type, res.Confidence, res.Impact = ResolutionReschedule, 0.6, ImpactLow
		res.Description = "Move the event next to one with a similar energy level"
	case ResourceDetail:
		res.Type, res.Confidence, res.Impact = ResolutionReschedule, 0.9, ImpactHigh
		res.Description = "Reschedule or book a different resource"
	}

	return res
}
