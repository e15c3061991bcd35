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

	"github.com/rs/zerolog"
	"github.com/walteh/syncsftp/pkg/config"
	"github.com/walteh/syncsftp/pkg/reconcile"
	"github.com/walteh/syncsftp/pkg/retry"
	"github.com/walteh/syncsftp/pkg/transfer"
	"gitlab.com/tozd/go/errors"
)

// ⏲️ RetryTick drains the retry queue and attempts each record again, in order, one at a time.
// It does nothing while paused, disconnected, unconfigured or when the queue is empty.
func (e *Engine) RetryTick(ctx context.Context) {
	cfg, b, paused := e.snapshot()
	if paused || e.queue.Len() == 0 || !cfg.IsValid() || b == nil || !b.IsConnected() {
		return
	}
	e.retry(ctx, cfg, b, e.queue.Drain())
}

func (e *Engine) retry(ctx context.Context, cfg *config.Config, b transfer.Backend, records []retry.Record) {
	zerolog.Ctx(ctx).Debug().Int("records", len(records)).Msg("retrying failed uploads")
	for _, rec := range records {
		// failures land back in the queue through upload
		_ = e.upload(ctx, cfg, b, rec)
	}
}

// 🔁 ReuploadFailed retries the queue right now instead of waiting for the next tick
func (e *Engine) ReuploadFailed(ctx context.Context) error {
	if e.queue.Len() == 0 {
		e.msg.Error(MsgNothingToUpload)
		return nil
	}
	cfg, b, err := e.preconditions(false)
	if err != nil {
		return err
	}
	e.retry(ctx, cfg, b, e.queue.Drain())
	return nil
}

// 🧹 ClearRetryQueue forgets every pending upload
func (e *Engine) ClearRetryQueue(ctx context.Context) int {
	n := e.queue.Clear()
	zerolog.Ctx(ctx).Debug().Int("records", n).Msg("retry queue cleared")
	e.msg.Success(MsgQueueCleared)
	return n
}

// PendingRecords returns a copy of the retry queue
func (e *Engine) PendingRecords() []retry.Record {
	return e.queue.Records()
}

// preconditions checks the engine can talk to the remote. The first violation is reported
// and returned.
func (e *Engine) preconditions(needRsync bool) (*config.Config, transfer.Backend, error) {
	cfg, b, paused := e.snapshot()
	switch {
	case paused:
		e.msg.Error(MsgPaused)
		return nil, nil, ErrPaused
	case !cfg.IsValid():
		e.msg.Error(MsgConfigNotLoaded)
		return nil, nil, ErrNotConfigured
	case needRsync && !cfg.UseRsync():
		e.msg.Error(MsgWrongBackend)
		return nil, nil, ErrWrongBackend
	case b == nil || !b.IsConnected():
		e.msg.Error(MsgCantConnect)
		return nil, nil, ErrNotConnected
	}
	return cfg, b, nil
}

func (e *Engine) detect(ctx context.Context, cfg *config.Config) (*reconcile.Diff, error) {
	diff, err := reconcile.New(cfg, e.opts.Deps.Runner).Detect(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("detecting differences")
		e.msg.Error("Unable to detect differences: " + err.Error())
		return nil, err
	}
	return diff, nil
}

// 🔍 DetectDifferences reports what MakeEqual would do, without doing it
func (e *Engine) DetectDifferences(ctx context.Context) (*reconcile.Diff, error) {
	cfg, _, err := e.preconditions(true)
	if err != nil {
		return nil, err
	}
	diff, err := e.detect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if diff.Empty() {
		e.msg.Success("No differences found")
		return diff, nil
	}
	e.msg.Infof("%d file(s) to upload", len(diff.ToUpload))
	for _, p := range diff.ToUpload {
		e.msg.Info("  upload: " + p)
	}
	e.msg.Infof("%d file(s) to delete", len(diff.ToDelete))
	for _, p := range diff.ToDelete {
		e.msg.Info("  delete: " + p)
	}
	return diff, nil
}

// ⚖️ MakeEqual applies the diff: uploads go through the dispatcher's upload path, deletions are
// batched into one remote command.
func (e *Engine) MakeEqual(ctx context.Context) (*reconcile.Diff, error) {
	cfg, b, err := e.preconditions(true)
	if err != nil {
		return nil, err
	}
	diff, err := e.detect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if diff.Empty() {
		e.msg.Success("No differences found")
		return diff, nil
	}

	var errs []error
	for _, rel := range diff.ToUpload {
		local := filepath.Join(cfg.RootPath, filepath.FromSlash(rel))
		info, err := os.Lstat(local)
		if err != nil {
			errs = append(errs, errors.Errorf("reading %s: %w", local, err))
			continue
		}
		dest := transfer.JoinRemote(cfg.RemotePath, rel)
		e.msg.Info(e.msg.Stamp() + " Uploading to -> " + dest)
		if err := e.upload(ctx, cfg, b, retry.Record{Destination: dest, Source: local, IsDirectory: info.IsDir()}); err != nil {
			errs = append(errs, err)
		}
	}

	if len(diff.ToDelete) > 0 {
		cmd := reconcile.DeleteCommand(cfg.RemotePath, diff.ToDelete)
		e.msg.Infof("%sDeleting %d remote path(s)", e.msg.Stamp(), len(diff.ToDelete))
		if err := b.Exec(ctx, cmd); err != nil {
			e.msg.Error("Error deleting remote files: " + err.Error())
			errs = append(errs, errors.Errorf("deleting remote files: %w", err))
		}
	}

	if len(errs) == 0 {
		e.msg.Success("Local and remote are equal")
	}
	return diff, errors.Join(errs...)
}
