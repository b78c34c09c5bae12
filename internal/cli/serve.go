package cli

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"schedcore/internal/web"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scheduling HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.config()
			if listen != "" {
				cfg.Listen = listen
			}
			analyzer, err := buildAnalyzer(cfg, rootOpts.clock)
			if err != nil {
				return err
			}
			srv, err := web.NewServer(cfg, analyzer)
			if err != nil {
				return err
			}
			if err := srv.Run(cmd.Context()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")

	return cmd
}
