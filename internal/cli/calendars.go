package cli

import (
	"context"
	"time"

	"schedcore/internal/config"
	"schedcore/internal/ics"
	appLog "schedcore/internal/log"
	"schedcore/internal/model"
)

// existingEvents expands the given calendar refs, or every configured
// calendar when refs is empty, over [now-1d, now+horizon]. Calendars that
// fail to load are logged and skipped.
func existingEvents(ctx context.Context, cfg *config.Config, refs []string, now time.Time) []model.Event {
	if len(refs) == 0 {
		for _, c := range cfg.Calendars {
			refs = append(refs, c.Ref)
		}
	}
	if len(refs) == 0 {
		return nil
	}

	loc := cfg.Location()
	win := ics.Window{Start: now.AddDate(0, 0, -1), End: now.AddDate(0, 0, cfg.HorizonDays)}
	fetcher := ics.NewFetcher(cfg.CacheDir, 0)

	var entries []ics.Entry
	for _, ref := range refs {
		got, err := fetcher.Load(ctx, ref, loc)
		if err != nil {
			appLog.Error("calendar load failed", err, "ref", ref)
			continue
		}
		entries = append(entries, got...)
	}
	res, err := ics.ExpandEntries(entries, win)
	if err != nil {
		appLog.Error("calendar expansion failed", err)
		return nil
	}
	if len(res.Truncated) > 0 {
		appLog.Warn("calendar series truncated", "uids", res.Truncated)
	}
	return res.Events
}
