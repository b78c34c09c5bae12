package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"schedcore/internal/recurrence"
)

type rruleOptions struct {
	rule  string
	from  string
	count int
}

// RRuleOutput is the recurrence inferred from text (or a parsed rule) with
// its canonical form and upcoming occurrences.
type RRuleOutput struct {
	recurrence.Result
	RRule       string      `json:"rrule,omitempty"`
	Description string      `json:"description,omitempty"`
	Occurrences []time.Time `json:"occurrences,omitempty"`
}

// NewRRuleCommand creates the rrule command.
func NewRRuleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &rruleOptions{}

	cmd := &cobra.Command{
		Use:   "rrule [text...]",
		Short: "Infer or explain a recurrence rule",
		Example: `  schedcore rrule every other monday
  schedcore rrule --rule "FREQ=MONTHLY;BYDAY=FR;BYSETPOS=-1" --count 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" && opts.rule == "" {
				return errors.New("rrule: text or --rule is required")
			}
			if opts.count < 0 {
				return errors.New("rrule: count must not be negative")
			}

			cfg := rootOpts.config()
			from := rootOpts.clock()
			if opts.from != "" {
				t, err := time.Parse(time.RFC3339, opts.from)
				if err != nil {
					return fmt.Errorf("rrule: --from: %w", err)
				}
				from = t
			}

			engine := recurrence.NewEngine(recurrence.WithClock(rootOpts.clock))
			var out RRuleOutput
			if opts.rule != "" {
				rule, err := recurrence.ParseRule(opts.rule)
				if err != nil {
					return err
				}
				out.Result = recurrence.Result{HasRecurrence: true, Rule: &rule, Confidence: 1}
			} else {
				out.Result = engine.Parse(text)
			}

			if out.HasRecurrence && out.Rule != nil {
				rule := *out.Rule
				s, err := engine.GenerateRule(rule)
				if err != nil {
					return err
				}
				out.RRule = s
				if out.Description, err = engine.GenerateDescription(rule); err != nil {
					return err
				}
				out.Occurrences = engine.NextOccurrences(rule, from.In(cfg.Location()), opts.count)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&opts.rule, "rule", "", "RRULE to explain instead of inferring from text")
	cmd.Flags().StringVar(&opts.from, "from", "", "RFC3339 anchor for occurrences (default: now)")
	cmd.Flags().IntVar(&opts.count, "count", 5, "number of occurrences to list")

	return cmd
}

func loadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}
