package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"schedcore/internal/conflict"
	"schedcore/internal/ics"
	"schedcore/internal/model"
)

type conflictsOptions struct {
	days int
}

// ConflictsOutput embeds the analysis and echoes the events with their
// conflict references filled in.
type ConflictsOutput struct {
	conflict.Analysis
	Events []*model.EventCandidate `json:"events"`
}

// NewConflictsCommand creates the conflicts command.
func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &conflictsOptions{}

	cmd := &cobra.Command{
		Use:   "conflicts <file>",
		Short: "Detect conflicts in a set of events",
		Long: `Run conflict detection over the events in file.

An .ics file (or http(s) URL) is expanded over the next --days days; any
other file is read as a JSON array of events.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.config()
			events, err := readCandidates(cmd, rootOpts, args[0], opts.days)
			if err != nil {
				return err
			}
			for i, ev := range events {
				if err := ev.Interval.Validate(); err != nil {
					return fmt.Errorf("event %d (%s): %w", i, ev.ID, err)
				}
				ev.Conflicts = nil
			}
			an := conflict.NewDetector(cfg.ConflictOptions()).Analyze(events)
			return writeJSON(cmd.OutOrStdout(), ConflictsOutput{Analysis: an, Events: events})
		},
	}

	cmd.Flags().IntVar(&opts.days, "days", 0, "expansion horizon for .ics input (default: horizon_days)")

	return cmd
}

func readCandidates(cmd *cobra.Command, rootOpts *RootOptions, ref string, days int) ([]*model.EventCandidate, error) {
	cfg := rootOpts.config()
	if strings.EqualFold(filepath.Ext(ref), ".ics") || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if days <= 0 {
			days = cfg.HorizonDays
		}
		loc := cfg.Location()
		now := rootOpts.clock().In(loc)
		entries, err := ics.NewFetcher(cfg.CacheDir, 0).Load(cmd.Context(), ref, loc)
		if err != nil {
			return nil, err
		}
		res, err := ics.ExpandEntries(entries, ics.Window{Start: now, End: now.AddDate(0, 0, days)})
		if err != nil {
			return nil, err
		}
		out := make([]*model.EventCandidate, 0, len(res.Events))
		for _, ev := range res.Events {
			c := model.CandidateFromEvent(ev)
			c.Existing = false
			out = append(out, c)
		}
		return out, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, err
	}
	var events []*model.EventCandidate
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	for i, ev := range events {
		if ev == nil {
			return nil, fmt.Errorf("decode %s: event %d is null", ref, i)
		}
	}
	return events, nil
}
