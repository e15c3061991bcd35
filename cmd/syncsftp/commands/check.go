package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/walteh/syncsftp/cmd/syncsftp/opts"
	"github.com/walteh/syncsftp/pkg/engine"
	"github.com/walteh/syncsftp/pkg/probe"
	"gitlab.com/tozd/go/errors"
)

// NewCheckCmd creates the check command
func NewCheckCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config and probe the remote host",
		Long: `Check loads the config file the same way watch does, reports every problem with it,
and then probes the configured host without opening a session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e := opts.NewEngine(opts.Console)
			if err := e.Load(ctx); err != nil {
				return errors.Errorf("loading config: %w", err)
			}

			cfg := e.Config()
			opts.Console.Infof("Target: %s, %s probe", cfg.String(), cfg.Probe)
			if patterns := cfg.Ignore().Patterns(); len(patterns) > 0 {
				opts.Console.Infof("Ignoring: %s", strings.Join(patterns, ", "))
			}

			if !probe.ForConfig(cfg).Probe(ctx, cfg.Host, cfg.Port, cfg.ProbeTimeout) {
				opts.Console.Error(engine.MsgCantConnect)
				return errors.Errorf("%w: %s", engine.ErrConnectivity, cfg.Address())
			}
			opts.Console.Successf("%s is reachable", cfg.Address())
			return nil
		},
	}

	return cmd
}
