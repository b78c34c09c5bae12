package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"schedcore/internal/config"
	"schedcore/internal/ics"
	appLog "schedcore/internal/log"
	"schedcore/internal/syncer"
)

type syncOptions struct {
	local    string
	remote   string
	strategy string
	schedule string
	watch    bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile a local and a remote calendar file",
		Long: `Reconcile two .ics calendars. Divergent events are resolved with the
configured strategy, remote changes are written to the remote file and the
local side adopts what the remote had.

With --watch the pass repeats on the cron schedule until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.config()
			job, err := newSyncJob(cfg, opts)
			if err != nil {
				return err
			}
			if !opts.watch {
				rep, err := job.run(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			schedule := opts.schedule
			if schedule == "" {
				schedule = cfg.Sync.Schedule
			}
			return job.watch(cmd.Context(), schedule, cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.local, "local", "", "local calendar .ics (default: sync.local)")
	cmd.Flags().StringVar(&opts.remote, "remote", "", "remote calendar .ics (default: sync.remote)")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "local_wins|remote_wins|merge|manual (default: sync.strategy)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "keep syncing on a schedule")
	cmd.Flags().StringVar(&opts.schedule, "schedule", "", "cron expression for --watch (default: sync.schedule)")

	return cmd
}

type syncJob struct {
	local    *ics.FileCalendar
	remote   *ics.FileCalendar
	strategy syncer.Resolution
	rec      *syncer.Reconciler
}

func newSyncJob(cfg *config.Config, opts *syncOptions) (*syncJob, error) {
	localPath := firstNonEmpty(opts.local, cfg.Sync.Local)
	remotePath := firstNonEmpty(opts.remote, cfg.Sync.Remote)
	if localPath == "" || remotePath == "" {
		return nil, errors.New("sync: local and remote calendars are required")
	}
	strategy, err := syncer.ParseStrategy(firstNonEmpty(opts.strategy, cfg.Sync.Strategy))
	if err != nil {
		return nil, err
	}
	loc := cfg.Location()
	return &syncJob{
		local:    ics.NewFileCalendar(localPath, loc),
		remote:   ics.NewFileCalendar(remotePath, loc),
		strategy: strategy,
		rec:      syncer.NewReconciler(),
	}, nil
}

func (j *syncJob) run(ctx context.Context) (syncer.Report, error) {
	local, err := j.local.Events()
	if err != nil {
		return syncer.Report{}, fmt.Errorf("read local: %w", err)
	}
	remote, err := j.remote.Events()
	if err != nil {
		return syncer.Report{}, fmt.Errorf("read remote: %w", err)
	}
	return j.rec.Sync(ctx, local, remote, j.strategy, j.remote, j.local)
}

// watch runs the job on schedule until ctx is done. A tick that fires while
// the previous pass is still running is skipped.
func (j *syncJob) watch(ctx context.Context, schedule string, cfg *config.Config, out io.Writer) error {
	c := cron.New(cron.WithLocation(cfg.Location()))
	_, err := c.AddFunc(schedule, func() {
		rep, err := j.run(ctx)
		switch {
		case errors.Is(err, syncer.ErrSyncInProgress):
			appLog.Warn("sync tick skipped, previous pass still running")
		case err != nil:
			appLog.Error("sync pass failed", err, "local", j.local.Path(), "remote", j.remote.Path())
		default:
			if err := writeJSON(out, rep); err != nil {
				appLog.Error("write sync report", err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("sync: schedule %q: %w", schedule, err)
	}

	appLog.Info("sync scheduler started", "schedule", schedule, "strategy", j.strategy)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("sync scheduler stopped")
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
