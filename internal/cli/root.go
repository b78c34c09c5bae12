// Package cli wires configuration, logging and the scheduling packages into
// the schedcore command tree.
package cli

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"

	"schedcore/internal/config"
	appLog "schedcore/internal/log"
	"schedcore/internal/nlp"
	"schedcore/internal/textparse"
)

const defaultConfigPath = "/etc/schedcore/config.yaml"

// RootOptions holds global flags and the configuration loaded from them.
type RootOptions struct {
	ConfigPath string
	LogLevel   string

	cfg *config.Config
	now func() time.Time
}

func (o *RootOptions) config() *config.Config {
	if o.cfg == nil {
		return config.DefaultConfig()
	}
	return o.cfg
}

func (o *RootOptions) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// NewRootCommand creates the root command for the schedcore CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedcore",
		Short: "Natural-language scheduling engine",
		Long: `schedcore turns free-text scheduling requests into structured events,
checks them against existing calendars and keeps two calendars in sync.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.LogLevel != "" {
				cfg.Log.Level = opts.LogLevel
			}
			appLog.Configure(appLog.Options{
				Level:      cfg.Log.Level,
				File:       cfg.Log.File,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
				Compress:   cfg.Log.Compress,
			})
			opts.cfg = cfg
			appLog.Debug("effective config",
				"config_path", opts.ConfigPath,
				"timezone", cfg.Timezone,
				"parser", cfg.Parser.Strategy,
				"calendars", len(cfg.Calendars),
			)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", defaultConfigPath, "path to config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides config")

	cmd.AddCommand(NewAnalyzeCommand(opts))
	cmd.AddCommand(NewRRuleCommand(opts))
	cmd.AddCommand(NewConflictsCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// buildAnalyzer assembles the parser chain selected in the config.
func buildAnalyzer(cfg *config.Config, now func() time.Time) (*nlp.Analyzer, error) {
	policy, err := nlp.ParseFallbackPolicy(cfg.Parser.Fallback)
	if err != nil {
		return nil, err
	}

	ac := nlp.Config{
		Primary:   textparse.NewHeuristic(),
		Policy:    nlp.PrimaryOnly,
		MinLength: cfg.Input.MinLength,
		MaxLength: cfg.Input.MaxLength,
		Conflict:  cfg.ConflictOptions(),
		Now:       now,
	}

	switch cfg.Parser.Strategy {
	case "heuristic", "":
	case "model":
		key := cfg.Parser.ResolveAPIKey()
		if key == "" {
			appLog.Warn("model parser has no API key, requests may be rejected", "env", cfg.Parser.APIKeyEnv)
		}
		completer := textparse.NewHTTPCompleter(cfg.Parser.BaseURL, key, cfg.Parser.Model, cfg.Parser.Timeout())
		completer.Temperature = cfg.Parser.Temperature
		ac.Primary = textparse.NewModel(completer)
		ac.Fallback = textparse.NewHeuristic()
		ac.Policy = policy
	default:
		return nil, errors.New("unknown parser strategy " + cfg.Parser.Strategy)
	}
	return nlp.NewAnalyzer(ac), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
