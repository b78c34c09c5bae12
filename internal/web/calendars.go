package web

import (
	"context"
	"errors"
	"time"

	"schedcore/internal/ics"
	appLog "schedcore/internal/log"
)

// calendarEvents expands the configured calendars from a day before now to
// the configured horizon.
func (s *Server) calendarEvents(ctx context.Context, now time.Time, loc *time.Location) ics.ExpandResult {
	now = now.In(loc)
	win := ics.Window{Start: now.AddDate(0, 0, -1), End: now.AddDate(0, 0, s.cfg.HorizonDays)}
	return s.loadCalendars(ctx, win, loc)
}

// loadCalendars reads every configured calendar and expands it inside win.
// A calendar that cannot be read is logged and left out.
func (s *Server) loadCalendars(ctx context.Context, win ics.Window, loc *time.Location) ics.ExpandResult {
	var (
		entries []ics.Entry
		errs    []error
	)
	for _, c := range s.cfg.Calendars {
		if c.Ref == "" {
			continue
		}
		got, err := s.fetcher.Load(ctx, c.Ref, loc)
		if err != nil {
			errs = append(errs, err)
			appLog.Error("calendar load failed", err, "id", c.ID)
			continue
		}
		entries = append(entries, got...)
	}
	if len(errs) > 0 {
		appLog.Warn("some calendars were skipped", "error_count", len(errs), "error", errors.Join(errs...).Error())
	}

	res, err := ics.ExpandEntries(entries, win)
	if err != nil {
		appLog.Error("calendar expand failed", err)
	}
	return res
}
