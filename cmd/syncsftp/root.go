// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/syncsftp/cmd/syncsftp/commands"
	"github.com/walteh/syncsftp/cmd/syncsftp/opts"
	"github.com/walteh/syncsftp/pkg/log"
)

// NewCommand creates the root command with every subcommand attached
func NewCommand() *cobra.Command {
	o := &opts.RootOpts{}

	cmd := &cobra.Command{
		Use:   "syncsftp",
		Short: "Mirror a local directory to a remote host over sftp or rsync",
		Long: `syncsftp watches a local directory and pushes every change to a remote host,
either over ssh+sftp or by shelling out to rsync. Failed uploads are retried until they
succeed, and the diff and make-equal commands reconcile both sides on demand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd, o)
			return o.Resolve()
		},
	}

	addRootFlags(cmd, o)

	cmd.AddCommand(
		commands.NewWatchCmd(o),
		commands.NewUploadCmd(o),
		commands.NewDiffCmd(o),
		commands.NewMakeEqualCmd(o),
		commands.NewCheckCmd(o),
		newVersionCmd(),
	)

	return cmd
}

// addRootFlags adds shared flags to the root command
func addRootFlags(cmd *cobra.Command, o *opts.RootOpts) {
	cmd.PersistentFlags().StringVarP(&o.Root, "root", "r", "", "local directory to sync (default: working directory)")
	cmd.PersistentFlags().StringVarP(&o.ConfigFile, "config", "c", ".sync-sftp.json", "config file path, relative to root")
	cmd.PersistentFlags().BoolVarP(&o.Debug, "debug", "d", false, "enable debug logging")
}

// setupLogging puts a zerolog logger on the command context and creates the console
func setupLogging(cmd *cobra.Command, o *opts.RootOpts) {
	level := zerolog.InfoLevel
	mirror := zerolog.Disabled
	if o.Debug {
		level = zerolog.DebugLevel
		mirror = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	o.Console = log.New(cmd.OutOrStdout(), mirror)

	ctx := logger.WithContext(cmd.Context())
	ctx = log.NewContext(ctx, o.Console)
	cmd.SetContext(ctx)
}
