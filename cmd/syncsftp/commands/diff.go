package commands

import (
	"github.com/spf13/cobra"
	"github.com/walteh/syncsftp/cmd/syncsftp/opts"
)

// NewDiffCmd creates the diff command
func NewDiffCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show what make-equal would upload and delete",
		Long: `Diff runs an rsync dry run from the root to the remote path and lists every file that
differs. Nothing is changed on either side. Requires the rsync backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			_, err = e.DetectDifferences(ctx)
			return err
		},
	}

	return cmd
}
