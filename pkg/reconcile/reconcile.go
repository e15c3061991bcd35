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

package reconcile

import (
	"bufio"
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/rs/zerolog"
	"github.com/walteh/syncsftp/pkg/config"
	"github.com/walteh/syncsftp/pkg/transfer"
	"gitlab.com/tozd/go/errors"
)

// ErrReconciliation marks a diff that could not be computed. It is reported, never retried.
var ErrReconciliation = errors.Base("reconciliation failed")

// DryRunFlags compare content only: metadata differences are ignored and links are followed
var DryRunFlags = []string{
	"--dry-run",
	"--checksum",
	"--itemize-changes",
	"--recursive",
	"--copy-links",
	"--no-perms",
	"--no-owner",
	"--no-group",
	"--no-times",
	"--delete",
}

// 📋 Diff is the drift between the local and remote trees, as paths relative to both roots
type Diff struct {
	ToUpload []string
	ToDelete []string
}

// Empty reports whether the trees already match
func (d *Diff) Empty() bool {
	return d == nil || (len(d.ToUpload) == 0 && len(d.ToDelete) == 0)
}

// ⚖️ Reconciler computes diffs with an rsync dry run
type Reconciler struct {
	cfg    *config.Config
	runner transfer.Runner
}

// 🏭 New creates a reconciler for a config
func New(cfg *config.Config, runner transfer.Runner) *Reconciler {
	if runner == nil {
		runner = &transfer.ExecRunner{}
	}
	return &Reconciler{cfg: cfg, runner: runner}
}

// Args returns the rsync dry-run arguments, root to remote root
func (r *Reconciler) Args() []string {
	args := append([]string{}, DryRunFlags...)
	args = append(args, "-e", transfer.RemoteShell(r.cfg))
	for _, ex := range r.cfg.Excludes() {
		args = append(args, "--exclude="+ex)
	}
	src := strings.TrimSuffix(r.cfg.RootPath, string(filepath.Separator)) + "/"
	dst := strings.TrimSuffix(r.cfg.RemotePath, "/") + "/"
	return append(args, src, r.cfg.RemoteSpec(dst))
}

// 🔍 Detect runs the dry run and parses its itemized output
func (r *Reconciler) Detect(ctx context.Context) (*Diff, error) {
	args := r.Args()
	zerolog.Ctx(ctx).Debug().Strs("args", args).Msg("running rsync dry run")

	res, err := r.runner.Run(ctx, r.cfg.RsyncPath, args...)
	if err != nil {
		return nil, errors.Errorf("%w: %w", ErrReconciliation, err)
	}
	if res.ExitCode != 0 {
		return nil, errors.Errorf("%w: rsync exited %d: %s", ErrReconciliation, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return ParseItemized(res.Stdout), nil
}

// YXcstpoguax, see rsync(1) --itemize-changes
var itemized = regexp.MustCompile(`^([<>ch.])([fdLDS])(\S{7,9}) (.+)$`)

var deleting = regexp.MustCompile(`^\*deleting\s+(.+)$`)

// 📝 ParseItemized turns rsync --itemize-changes output into a Diff.
//
// Lines whose update type is "." only changed attributes and are dropped. A path below a directory
// that is itself new in this diff is dropped too, the directory upload carries it. The same goes
// for deletions below a deleted directory. Anything that is not an itemize line (the file list
// header, the transfer summary) is ignored.
func ParseItemized(output string) *Diff {
	diff := &Diff{}
	var newDirs, goneDirs []string

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		if m := deleting.FindStringSubmatch(line); m != nil {
			p := m[1]
			if strings.HasSuffix(p, "/") {
				goneDirs = append(goneDirs, p)
			}
			diff.ToDelete = append(diff.ToDelete, p)
			continue
		}

		m := itemized.FindStringSubmatch(line)
		if m == nil || m[1] == "." {
			continue
		}
		p := m[4]
		if p == "./" {
			continue
		}
		if m[2] == "d" && strings.Contains(m[3], "+") {
			newDirs = append(newDirs, p)
		}
		diff.ToUpload = append(diff.ToUpload, p)
	}

	diff.ToUpload = trim(underAny(diff.ToUpload, newDirs))
	diff.ToDelete = trim(underAny(diff.ToDelete, goneDirs))
	return diff
}

// underAny drops every path that lives below one of dirs
func underAny(paths, dirs []string) []string {
	if len(dirs) == 0 {
		return paths
	}
	out := paths[:0]
	for _, p := range paths {
		below := false
		for _, d := range dirs {
			if p != d && strings.HasPrefix(p, d) {
				below = true
				break
			}
		}
		if !below {
			out = append(out, p)
		}
	}
	return out
}

func trim(paths []string) []string {
	for i, p := range paths {
		paths[i] = strings.TrimSuffix(p, "/")
	}
	return paths
}

// 🗑️ DeleteCommand batches every removal into one remote command chained with &&
func DeleteCommand(remoteRoot string, paths []string) string {
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, "rm -rf "+shellescape.Quote(transfer.JoinRemote(remoteRoot, p)))
	}
	return strings.Join(parts, " && ")
}
