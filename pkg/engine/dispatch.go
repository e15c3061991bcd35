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

package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/syncsftp/pkg/config"
	"github.com/walteh/syncsftp/pkg/retry"
	"github.com/walteh/syncsftp/pkg/transfer"
	"gitlab.com/tozd/go/errors"
)

// IgnoreFunc is told about every path the dispatcher skipped because it is ignored
type IgnoreFunc func(path string)

// 👀 ShouldWatch answers the watcher's filter hook. It only applies the ignore set; pause is
// enforced by OnChange so directories created while paused are still watched.
func (e *Engine) ShouldWatch(path string) bool {
	cfg, _, _ := e.snapshot()
	if cfg == nil {
		return true
	}
	return cfg.Ignore().ShouldWatch(path)
}

// Destination maps a local path to its remote path: the local root prefix is replaced by
// "." under the remote root, then slashes are normalized.
func Destination(cfg *config.Config, path string) string {
	local := strings.ReplaceAll(path, `\`, "/")
	root := strings.TrimSuffix(strings.ReplaceAll(cfg.RootPath, `\`, "/"), "/")
	switch {
	case root == "":
	case local == root:
		local = "."
	case strings.HasPrefix(local, root+"/"):
		local = "." + strings.TrimPrefix(local, root)
	}
	return transfer.NormalizeRemote(cfg.RemotePath + "/" + local)
}

// 📨 OnChange dispatches one filesystem event. Ignored paths go to onIgnore and nothing else;
// existing paths are uploaded and missing ones deleted on the remote.
func (e *Engine) OnChange(ctx context.Context, path string, onIgnore IgnoreFunc) error {
	cfg, b, paused := e.snapshot()
	if paused {
		e.msg.Error(MsgPaused + ", ignoring " + path)
		return ErrPaused
	}
	if !cfg.IsValid() {
		e.msg.Error(MsgConfigNotLoaded)
		return ErrNotConfigured
	}

	local := e.absolute(path)
	if cfg.Ignore().Match(local) {
		if onIgnore != nil {
			onIgnore(path)
		}
		return nil
	}

	stamp := e.msg.Stamp()
	e.msg.Info(stamp + " Change detected: " + strings.TrimPrefix(local, cfg.RootPath))

	dest := Destination(cfg, local)

	info, err := os.Lstat(local)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			e.msg.Error(stamp + "Unable to read " + local + ": " + err.Error())
			return errors.Errorf("reading %s: %w", local, err)
		}
		e.msg.Info(stamp + " Delete detected on " + path + ". Deleting server file -> " + dest)
		return e.remove(ctx, b, dest)
	}

	e.msg.Info(stamp + " Uploading to -> " + dest)
	return e.upload(ctx, cfg, b, retry.Record{Destination: dest, Source: local, IsDirectory: info.IsDir()})
}

func (e *Engine) absolute(path string) string {
	if filepath.IsAbs(path) || e.opts.Root == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(e.opts.Root, path)
}

// upload sends one record. Any failure, including a missing backend, queues the record for retry.
func (e *Engine) upload(ctx context.Context, cfg *config.Config, b transfer.Backend, rec retry.Record) error {
	logger := zerolog.Ctx(ctx)

	if !cfg.IsValid() || b == nil {
		e.msg.Error(MsgCantConnect)
		e.enqueue(ctx, rec)
		return errors.Errorf("%w: %w", ErrTransfer, ErrNotConnected)
	}

	out, err := b.Upload(ctx, rec.Destination, rec.Source, rec.IsDirectory)
	stamp := e.msg.Stamp()

	if rec.IsDirectory && out != nil && b.Name() == config.BackendDirect {
		for _, s := range out.Succeeded {
			e.msg.Info(stamp + " Uploading to -> " + s)
		}
		for _, f := range out.Failed {
			e.msg.Error(stamp + " Uploading to -> " + f)
		}
		e.msg.Successf("%s Succesfully uploaded %d file(s)", stamp, len(out.Succeeded))
	}

	if err != nil {
		logger.Debug().Err(err).Object("record", rec).Msg("upload failed, queueing")
		e.msg.Error(stamp + "Error with Uploading to -> " + rec.Destination)
		e.enqueue(ctx, rec)
		return err
	}

	if !rec.IsDirectory || b.Name() != config.BackendDirect {
		e.msg.Success(stamp + " Succesfully uploaded " + rec.Source)
	}
	return nil
}

func (e *Engine) enqueue(ctx context.Context, rec retry.Record) {
	if dropped := e.queue.Push(rec); dropped != nil {
		zerolog.Ctx(ctx).Warn().Object("record", dropped).Msg("retry queue full, dropping oldest")
		e.msg.Error("Retry queue full, dropped " + dropped.Destination)
	}
}

// remove deletes a remote path. Deletions are not retried.
func (e *Engine) remove(ctx context.Context, b transfer.Backend, dest string) error {
	if b == nil {
		e.msg.Error(MsgCantConnect)
		return ErrNotConnected
	}
	if err := b.Delete(ctx, dest); err != nil {
		e.msg.Error(e.msg.Stamp() + "Error deleting " + dest)
		return errors.Errorf("deleting %s: %w", dest, err)
	}
	return nil
}

// 📤 UploadSelection dispatches each path like a change event. Ignored selections are reported.
func (e *Engine) UploadSelection(ctx context.Context, paths []string) error {
	onIgnore := func(path string) {
		e.msg.Error(e.msg.Stamp() + MsgIgnoredUpload + path)
	}
	var errs []error
	for _, p := range paths {
		if err := e.OnChange(ctx, p, onIgnore); err != nil {
			errs = append(errs, err)
			if errors.Is(err, ErrPaused) || errors.Is(err, ErrNotConfigured) {
				break
			}
		}
	}
	return errors.Join(errs...)
}
