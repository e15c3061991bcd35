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
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/walteh/syncsftp/pkg/config"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

func init() {
	Register(config.BackendDirect, func(cfg *config.Config, deps Deps) Backend {
		return NewDirect(cfg, deps.Dial)
	})
}

// 📤 Direct pushes files over one persistent ssh/sftp session
type Direct struct {
	cfg  *config.Config
	dial Dialer

	mu      sync.Mutex
	session Session
}

// 🏭 NewDirect creates a disconnected Direct backend
func NewDirect(cfg *config.Config, dial Dialer) *Direct {
	if dial == nil {
		dial = DialSSH
	}
	return &Direct{cfg: cfg, dial: dial}
}

func (d *Direct) Name() config.Backend { return config.BackendDirect }

// 🔌 Connect dials a new session and closes the previous one
func (d *Direct) Connect(ctx context.Context) error {
	s, err := d.dial(ctx, d.cfg)
	if err != nil {
		return errors.Errorf("connecting to %s: %w", d.cfg.Address(), err)
	}

	d.mu.Lock()
	old := d.session
	d.session = s
	d.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (d *Direct) IsConnected() bool {
	s := d.current()
	return s != nil && s.Alive()
}

func (d *Direct) Close() error {
	d.mu.Lock()
	s := d.session
	d.session = nil
	d.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close()
}

func (d *Direct) current() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

func (d *Direct) live() (Session, error) {
	s := d.current()
	if s == nil || !s.Alive() {
		return nil, ErrNotConnected
	}
	return s, nil
}

// 📤 Upload sends one file, or a whole directory with bounded parallelism
func (d *Direct) Upload(ctx context.Context, destination, source string, isDirectory bool) (*Outcome, error) {
	s, err := d.live()
	if err != nil {
		return nil, errors.Errorf("%w: %w", ErrTransfer, err)
	}

	if !isDirectory {
		if err := putFile(s, source, destination); err != nil {
			return &Outcome{Failed: []string{destination}}, errors.Errorf("%w: uploading %s: %w", ErrTransfer, source, err)
		}
		return &Outcome{Succeeded: []string{destination}}, nil
	}

	return d.putDirectory(ctx, s, source, destination)
}

func (d *Direct) putDirectory(ctx context.Context, s Session, source, destination string) (*Outcome, error) {
	logger := zerolog.Ctx(ctx)
	out := &Outcome{}
	var mu sync.Mutex
	record := func(remote string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			logger.Debug().Err(err).Str("remote", remote).Msg("directory entry failed")
			out.Failed = append(out.Failed, remote)
			return
		}
		out.Succeeded = append(out.Succeeded, remote)
	}

	if err := s.MkdirAll(destination); err != nil {
		return &Outcome{Failed: []string{destination}}, errors.Errorf("%w: creating %s: %w", ErrTransfer, destination, err)
	}

	limit := d.cfg.Concurrency
	if limit <= 0 {
		limit = config.DefaultConcurrency
	}
	g := &errgroup.Group{}
	g.SetLimit(limit)

	ignored := d.cfg.Ignore()
	walkErr := filepath.WalkDir(source, func(local string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if local == source {
			return nil
		}
		if ignored.Match(local) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(source, local)
		if err != nil {
			return err
		}
		remote := JoinRemote(destination, filepath.ToSlash(rel))

		if entry.IsDir() {
			// parents are created before any file below them is scheduled
			if err := s.MkdirAll(remote); err != nil {
				record(remote, err)
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() && entry.Type()&fs.ModeSymlink == 0 {
			return nil
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(remote, err)
				return nil
			}
			record(remote, putFile(s, local, remote))
			return nil
		})
		return nil
	})
	_ = g.Wait()
	out.sort()

	if walkErr != nil {
		return out, errors.Errorf("%w: walking %s: %w", ErrTransfer, source, walkErr)
	}
	if len(out.Failed) > 0 {
		return out, errors.Errorf("%w: %d of %d entries failed under %s", ErrTransfer, len(out.Failed), out.Count(), destination)
	}
	return out, nil
}

func putFile(s Session, local, remote string) error {
	src, err := os.Open(local)
	if err != nil {
		return errors.Errorf("opening %s: %w", local, err)
	}
	defer src.Close()

	if parent := parentRemote(remote); parent != "" {
		if err := s.MkdirAll(parent); err != nil {
			return errors.Errorf("creating %s: %w", parent, err)
		}
	}

	dst, err := s.Create(remote)
	if err != nil {
		return errors.Errorf("creating %s: %w", remote, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return errors.Errorf("writing %s: %w", remote, err)
	}
	if err := dst.Close(); err != nil {
		return errors.Errorf("closing %s: %w", remote, err)
	}
	return nil
}

// 🗑️ Delete runs rm, rm of the contents, then rmdir. Every step may fail on its own; none of
// those failures stop the sequence or reach the caller.
func (d *Direct) Delete(ctx context.Context, destination string) error {
	s, err := d.live()
	if err != nil {
		return err
	}
	logger := zerolog.Ctx(ctx)
	for _, cmd := range DeleteCommands(destination) {
		if err := s.Exec(ctx, cmd); err != nil {
			logger.Debug().Err(err).Str("command", cmd).Msg("cleanup step failed")
		}
	}
	return nil
}

// Exec runs a remote command on the live session
func (d *Direct) Exec(ctx context.Context, command string) error {
	s, err := d.live()
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Debug().Str("command", command).Msg("remote exec")
	return s.Exec(ctx, command)
}
