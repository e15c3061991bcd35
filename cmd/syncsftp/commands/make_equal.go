package commands

import (
	"github.com/spf13/cobra"
	"github.com/walteh/syncsftp/cmd/syncsftp/opts"
)

// NewMakeEqualCmd creates the make-equal command
func NewMakeEqualCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "make-equal",
		Short: "Upload and delete until the remote matches the root",
		Long: `Make-equal computes the same diff as the diff command, uploads every local file that
differs and removes every remote file that no longer exists locally, in one batched command.
Requires the rsync backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			_, err = e.MakeEqual(ctx)
			return err
		},
	}

	return cmd
}
