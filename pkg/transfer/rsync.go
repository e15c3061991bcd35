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

package transfer

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/rs/zerolog"
	"github.com/walteh/syncsftp/pkg/config"
	"gitlab.com/tozd/go/errors"
)

func init() {
	Register(config.BackendRsync, func(cfg *config.Config, deps Deps) Backend {
		return NewRsync(cfg, deps.Dial, deps.Runner)
	})
}

// 🏃 Result is what a finished local process left behind
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs a local program to completion
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// ExecRunner runs programs with os/exec. A non-zero exit is reported through Result.ExitCode,
// not as an error; err is only set when the process could not be run at all.
type ExecRunner struct {
	Dir string
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, errors.Errorf("running %s: %w", name, err)
	}
	return res, nil
}

// 🪞 Rsync mirrors paths with the local rsync binary over ssh. Remote commands (cleanup, mkdir)
// still go through a direct session.
type Rsync struct {
	cfg    *config.Config
	runner Runner
	direct *Direct
}

// 🏭 NewRsync creates a disconnected Rsync backend
func NewRsync(cfg *config.Config, dial Dialer, runner Runner) *Rsync {
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &Rsync{cfg: cfg, runner: runner, direct: NewDirect(cfg, dial)}
}

func (r *Rsync) Name() config.Backend { return config.BackendRsync }

func (r *Rsync) Connect(ctx context.Context) error { return r.direct.Connect(ctx) }

func (r *Rsync) IsConnected() bool { return r.direct.IsConnected() }

func (r *Rsync) Close() error { return r.direct.Close() }

func (r *Rsync) Delete(ctx context.Context, destination string) error {
	return r.direct.Delete(ctx, destination)
}

func (r *Rsync) Exec(ctx context.Context, command string) error {
	return r.direct.Exec(ctx, command)
}

// RemoteShell is the -e argument handed to rsync
func RemoteShell(cfg *config.Config) string {
	words := []string{cfg.SSHPath, "-p", strconv.Itoa(cfg.Port)}
	if cfg.PrivateKey != "" {
		words = append(words, "-i", cfg.PrivateKey)
	}
	return shellescape.QuoteCommand(words)
}

// Args builds the rsync argument list for one upload. A directory is sent to its remote parent
// so rsync recreates it by name. The watched root is sent by contents onto the remote root, since
// the two basenames need not match.
func (r *Rsync) Args(destination, source string, isDirectory bool) []string {
	target := destination
	if isDirectory {
		source = strings.TrimSuffix(source, "/")
		if r.isRoot(source) {
			source += "/"
			target = strings.TrimSuffix(destination, "/") + "/"
		} else {
			target = parentRemote(destination)
			if target == "" {
				target = "."
			}
			target += "/"
		}
	}

	args := []string{"-" + r.cfg.RsyncFlags, "-e", RemoteShell(r.cfg)}
	for _, ex := range r.cfg.Excludes() {
		args = append(args, "--exclude="+ex)
	}
	return append(args, source, r.cfg.RemoteSpec(target))
}

// 📤 Upload runs rsync for one path. When the remote parent does not exist, a mkdir -p is
// issued and ErrDestinationMissing is returned so the caller queues a retry.
func (r *Rsync) Upload(ctx context.Context, destination, source string, isDirectory bool) (*Outcome, error) {
	logger := zerolog.Ctx(ctx)
	args := r.Args(destination, source, isDirectory)

	logger.Debug().Str("rsync", r.cfg.RsyncPath).Strs("args", args).Msg("running rsync")

	res, err := r.runner.Run(ctx, r.cfg.RsyncPath, args...)
	if err != nil {
		return &Outcome{Failed: []string{destination}}, errors.Errorf("%w: %w", ErrTransfer, err)
	}
	if res.ExitCode == 0 {
		return &Outcome{Succeeded: []string{destination}}, nil
	}

	if r.destinationMissing(res) {
		if parent := parentRemote(destination); parent != "" {
			if err := r.direct.Exec(ctx, MkdirCommand(parent)); err != nil {
				logger.Debug().Err(err).Str("dir", parent).Msg("creating missing destination")
			}
		}
		return &Outcome{Failed: []string{destination}}, errors.Errorf("%w: %w: %s", ErrTransfer, ErrDestinationMissing, destination)
	}

	return &Outcome{Failed: []string{destination}}, errors.Errorf("%w: rsync exited %d: %s", ErrTransfer, res.ExitCode, strings.TrimSpace(res.Stderr))
}

func (r *Rsync) isRoot(source string) bool {
	if r.cfg.RootPath == "" {
		return false
	}
	return filepath.Clean(source) == filepath.Clean(r.cfg.RootPath)
}

// missingRemote matches the receiver-side failures rsync prints when a remote directory is absent.
// A vanished local source reports link_stat instead and is not matched.
var missingRemote = regexp.MustCompile(`(mkdir|mkstemp|change_dir#?\d*) .*failed: No such file or directory`)

func (r *Rsync) destinationMissing(res *Result) bool {
	if r.cfg.IsMissingDestCode(res.ExitCode) {
		return true
	}
	return missingRemote.MatchString(res.Stderr)
}
