package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appLog "schedcore/internal/log"
	"schedcore/internal/model"
	"schedcore/internal/nlp"
)

const batchConcurrency = 4

type analyzeOptions struct {
	batch     string
	calendars []string
	timezone  string
}

// BatchResult is one line of a batch run. Exactly one of Analysis and Error
// is set.
type BatchResult struct {
	Line     int           `json:"line"`
	Text     string        `json:"text"`
	Analysis *nlp.Analysis `json:"analysis,omitempty"`
	Error    string        `json:"error,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze [text...]",
		Short: "Extract events from a scheduling request",
		Long: `Parse free text into candidate events, infer recurrence, check the
events against existing calendars and score the result.

With --batch, every non-empty line of the file is analyzed as its own
request and one JSON array is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, rootOpts, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.batch, "batch", "", "file with one request per line")
	cmd.Flags().StringSliceVar(&opts.calendars, "calendar", nil, "calendar .ics path or URL (default: configured calendars)")
	cmd.Flags().StringVar(&opts.timezone, "timezone", "", "IANA timezone for the request (default: config timezone)")

	return cmd
}

func runAnalyze(cmd *cobra.Command, rootOpts *RootOptions, opts *analyzeOptions, args []string) error {
	cfg := rootOpts.config()
	ctx := cmd.Context()

	text := strings.TrimSpace(strings.Join(args, " "))
	if opts.batch == "" && text == "" {
		return errors.New("analyze: text or --batch is required")
	}

	analyzer, err := buildAnalyzer(cfg, rootOpts.clock)
	if err != nil {
		return err
	}

	loc := cfg.Location()
	if opts.timezone != "" {
		if loc, err = loadLocation(opts.timezone); err != nil {
			return err
		}
	}
	callOpts := nlp.Options{Location: loc, UserPattern: cfg.UserPattern, WorkingHours: cfg.WorkingHours()}
	existing := existingEvents(ctx, cfg, opts.calendars, rootOpts.clock())

	if opts.batch == "" {
		an, err := analyzer.Analyze(ctx, text, existing, callOpts)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), an)
	}

	lines, err := readLines(opts.batch)
	if err != nil {
		return err
	}
	results, err := analyzeBatch(ctx, analyzer, lines, existing, callOpts)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), results)
}

// analyzeBatch runs the analyzer over lines concurrently. Per-line failures
// are recorded in the result; only context cancellation aborts the batch.
func analyzeBatch(ctx context.Context, a *nlp.Analyzer, lines []batchLine, existing []model.Event, opts nlp.Options) ([]BatchResult, error) {
	results := make([]BatchResult, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, ln := range lines {
		g.Go(func() error {
			res := BatchResult{Line: ln.number, Text: ln.text}
			an, err := a.Analyze(gctx, ln.text, existing, opts)
			switch {
			case err == nil:
				res.Analysis = an
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				res.Error = err.Error()
				var ie *nlp.InputError
				if errors.As(err, &ie) {
					res.Reason = ie.Reason
				}
				appLog.Warn("batch line failed", "line", ln.number, "err", err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type batchLine struct {
	number int
	text   string
}

func readLines(path string) ([]batchLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []batchLine
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
		if t := strings.TrimSpace(sc.Text()); t != "" {
			lines = append(lines, batchLine{number: n, text: t})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}
