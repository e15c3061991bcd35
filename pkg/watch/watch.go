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

// Package watch adapts fsnotify to a recursive, filtered stream of path events.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 📁 Event is one change under the watched root
type Event struct {
	Op   fsnotify.Op
	Path string
}

// Filter decides whether a path is watched at all. Directories it rejects are not descended.
type Filter func(path string) bool

// 👀 Watcher watches a directory tree. fsnotify is not recursive, so every directory is added
// on its own, including directories created after Start.
type Watcher struct {
	root   string
	filter Filter
	fs     *fsnotify.Watcher
	events chan Event
	closed atomic.Bool
}

// 🏭 New creates a watcher for root. A nil filter watches everything.
func New(root string, filter Filter) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Errorf("creating watcher: %w", err)
	}
	if filter == nil {
		filter = func(string) bool { return true }
	}
	return &Watcher{
		root:   filepath.Clean(root),
		filter: filter,
		fs:     fw,
		events: make(chan Event, 256),
	}, nil
}

// Events delivers filtered events until the watcher is closed
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// ▶️ Start adds every directory under root and begins delivering events
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.walkAndWatch(w.root); err != nil {
		return errors.Errorf("watching %s: %w", w.root, err)
	}
	go w.loop(ctx)
	return nil
}

// Close stops the watcher. Events is closed once the loop exits.
func (w *Watcher) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	return w.fs.Close()
}

// IsClosed reports whether Close was called
func (w *Watcher) IsClosed() bool {
	return w.closed.Load()
}

func (w *Watcher) loop(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	defer close(w.events)
	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.handle(ctx, event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !w.filter(event.Name) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			if err := w.walkAndWatch(event.Name); err != nil {
				zerolog.Ctx(ctx).Debug().Err(err).Str("dir", event.Name).Msg("watching new directory")
			}
		}
	}

	select {
	case w.events <- Event{Op: event.Op, Path: event.Name}:
	case <-ctx.Done():
	}
}

func (w *Watcher) walkAndWatch(start string) error {
	return filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && !w.filter(path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}
