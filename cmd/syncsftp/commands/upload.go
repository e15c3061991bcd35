package commands

import (
	"github.com/spf13/cobra"
	"github.com/walteh/syncsftp/cmd/syncsftp/opts"
	"gitlab.com/tozd/go/errors"
)

// NewUploadCmd creates the upload command
func NewUploadCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload the given files or directories once",
		Long: `Upload sends each path to the remote the way a change event would: existing paths are
uploaded, missing ones are deleted on the remote, and ignored ones are reported and skipped.
Relative paths are resolved against the root.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			if err := e.UploadSelection(ctx, args); err != nil {
				if n := e.Pending(); n > 0 {
					opts.Console.Errorf("%d upload(s) failed and were not retried", n)
				}
				return errors.Errorf("uploading selection: %w", err)
			}
			return nil
		},
	}

	return cmd
}
