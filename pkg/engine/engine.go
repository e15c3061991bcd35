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
	"sync"

	"github.com/rs/zerolog"
	"github.com/walteh/syncsftp/pkg/config"
	"github.com/walteh/syncsftp/pkg/messenger"
	"github.com/walteh/syncsftp/pkg/probe"
	"github.com/walteh/syncsftp/pkg/reconcile"
	"github.com/walteh/syncsftp/pkg/retry"
	"github.com/walteh/syncsftp/pkg/transfer"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrConfig is a configuration that failed to load or validate
	ErrConfig = errors.Base("configuration error")
	// ErrConnectivity is a failed probe or a rejected connect
	ErrConnectivity = errors.Base("cannot connect to server")
	// ErrTransfer is a failed upload; it is queued for retry
	ErrTransfer = transfer.ErrTransfer
	// ErrReconciliation is a diff that could not be computed
	ErrReconciliation = reconcile.ErrReconciliation

	ErrPaused        = errors.Base("sync is paused")
	ErrNotConfigured = errors.Base("configuration not loaded")
	ErrWrongBackend  = errors.Base("differences can only be detected with the rsync backend")
	ErrNotConnected  = transfer.ErrNotConnected
)

// User-facing message texts
const (
	MsgConfigNotLoaded = "Config not load"
	MsgCantConnect     = "Can't connect to server"
	MsgNothingToUpload = "Nothing to upload!"
	MsgQueueCleared    = "Queue cleared"
	MsgIgnoredUpload   = "Trying to upload ignored file: "
	MsgWatching        = "Watching directory: "
	MsgConfigLoaded    = "Config load success: "
	MsgWrongBackend    = "Differences can only be detected when useRsync is enabled"
	MsgPaused          = "Sync SFTP is paused"
	MsgActive          = "Sync SFTP is active"
)

// 🔄 State is where the engine sits in its lifecycle
type State int

const (
	StateUnconfigured State = iota
	StateDisconnected
	StateConnected
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StatePaused:
		return "paused"
	default:
		return "unconfigured"
	}
}

// BackendFactory builds the transfer backend for a connect cycle
type BackendFactory func(cfg *config.Config, deps transfer.Deps) (transfer.Backend, error)

// ⚙️ Options wire an engine to its collaborators. Zero values get the real implementations.
type Options struct {
	// Root is the watched local directory
	Root string
	// ConfigPath is the config file, relative to Root unless absolute
	ConfigPath string

	Sink       messenger.Sink
	Prober     probe.Prober
	Deps       transfer.Deps
	NewBackend BackendFactory
}

// 🚀 Engine owns the configuration, the backend and the retry queue of one watched root.
//
// Every public operation is safe to call from any goroutine, but the engine is meant to be
// driven from a single Scheduler so that operations never overlap.
type Engine struct {
	opts Options
	msg  *messenger.Messenger

	mu       sync.Mutex
	cfg      *config.Config
	backend  transfer.Backend
	paused   bool
	wasAlive bool

	queue *retry.Queue
}

// 🏭 New creates an engine in the Unconfigured state
func New(opts Options) *Engine {
	if opts.NewBackend == nil {
		opts.NewBackend = transfer.New
	}
	return &Engine{
		opts:  opts,
		msg:   messenger.New(opts.Sink),
		queue: retry.New(config.DefaultRetryLimit),
	}
}

// Root returns the watched directory
func (e *Engine) Root() string { return e.opts.Root }

// Config returns the active configuration, nil before the first load
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	switch {
	case e.paused:
		return StatePaused
	case !e.cfg.IsValid():
		return StateUnconfigured
	case e.backend != nil && e.backend.IsConnected():
		return StateConnected
	default:
		return StateDisconnected
	}
}

// IsConnected is false with an invalid config or while paused, else it reports the backend
func (e *Engine) IsConnected() bool {
	return e.State() == StateConnected
}

// IsPaused reports whether dispatch is suspended
func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Pending returns the number of uploads waiting for a retry
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// snapshot returns the config and backend an operation should run against
func (e *Engine) snapshot() (*config.Config, transfer.Backend, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg, e.backend, e.paused
}

// 📂 Load reads and validates the config file. Errors are reported one message each.
func (e *Engine) Load(ctx context.Context) error {
	cfg := config.Load(ctx, e.opts.Root, e.opts.ConfigPath)
	return e.Apply(ctx, cfg)
}

// Apply installs an already validated config. The previous backend is closed.
func (e *Engine) Apply(ctx context.Context, cfg *config.Config) error {
	logger := zerolog.Ctx(ctx)

	e.mu.Lock()
	old := e.backend
	e.backend = nil
	e.cfg = cfg
	e.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logger.Debug().Err(err).Msg("closing previous backend")
		}
	}

	if !cfg.IsValid() {
		for _, text := range cfg.Errors {
			e.msg.Error(text)
		}
		return errors.Errorf("%w: %s", ErrConfig, cfg.Errors)
	}

	for _, d := range e.queue.SetLimit(cfg.RetryLimit) {
		logger.Warn().Object("record", d).Msg("retry queue over limit, dropping")
	}

	logger.Info().Object("config", cfg).Msg("configuration loaded")
	e.msg.Clear()
	e.msg.Success(MsgWatching + cfg.RootPath)
	return nil
}

// 🔁 Reload loads the config again and connects with it
func (e *Engine) Reload(ctx context.Context) error {
	if err := e.Load(ctx); err != nil {
		return err
	}
	return e.Connect(ctx)
}

// 🔌 Connect probes the host and opens a fresh backend, replacing any previous one
func (e *Engine) Connect(ctx context.Context) error {
	cfg, _, paused := e.snapshot()
	if paused {
		e.msg.Error(MsgPaused)
		return ErrPaused
	}
	if !cfg.IsValid() {
		e.msg.Error(MsgConfigNotLoaded)
		return ErrNotConfigured
	}

	if !e.prober(cfg).Probe(ctx, cfg.Host, cfg.Port, cfg.ProbeTimeout) {
		e.msg.Error(MsgCantConnect)
		e.dropBackend(ctx)
		return errors.Errorf("%w: %s is not reachable", ErrConnectivity, cfg.Address())
	}

	b, err := e.opts.NewBackend(cfg, e.opts.Deps)
	if err != nil {
		e.msg.Error(MsgCantConnect)
		return errors.Errorf("%w: %w", ErrConnectivity, err)
	}
	if err := b.Connect(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("addr", cfg.Address()).Msg("connecting")
		e.msg.Error(MsgCantConnect)
		e.dropBackend(ctx)
		return errors.Errorf("%w: %w", ErrConnectivity, err)
	}

	e.mu.Lock()
	old := e.backend
	e.backend = b
	e.mu.Unlock()
	if old != nil && old != b {
		_ = old.Close()
	}

	zerolog.Ctx(ctx).Info().Str("backend", string(b.Name())).Str("addr", cfg.Address()).Msg("connected")
	e.msg.Success(MsgConfigLoaded + cfg.RootPath)
	return nil
}

// Reconnect is Connect, exposed under the command name
func (e *Engine) Reconnect(ctx context.Context) error {
	return e.Connect(ctx)
}

func (e *Engine) dropBackend(ctx context.Context) {
	e.mu.Lock()
	old := e.backend
	e.backend = nil
	e.mu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("closing backend")
		}
	}
}

func (e *Engine) prober(cfg *config.Config) probe.Prober {
	if e.opts.Prober != nil {
		return e.opts.Prober
	}
	return probe.ForConfig(cfg)
}

// ⏯️ TogglePause suspends or resumes dispatch and returns the new paused state. Resuming
// re-probes the host and reconnects if the engine was connected before the pause.
func (e *Engine) TogglePause(ctx context.Context) bool {
	e.mu.Lock()
	if !e.paused {
		e.wasAlive = e.backend != nil && e.backend.IsConnected()
		e.paused = true
		e.mu.Unlock()
		e.msg.Success(MsgPaused)
		return true
	}
	e.paused = false
	cfg, b, wasAlive := e.cfg, e.backend, e.wasAlive
	e.mu.Unlock()

	e.msg.Success(MsgActive)

	if !cfg.IsValid() {
		return false
	}
	if !e.prober(cfg).Probe(ctx, cfg.Host, cfg.Port, cfg.ProbeTimeout) {
		e.msg.Error(MsgCantConnect)
		e.dropBackend(ctx)
		return false
	}
	if wasAlive && (b == nil || !b.IsConnected()) {
		if err := e.Connect(ctx); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("reconnecting after resume")
		}
	}
	return false
}

// 🧹 ClearLog clears the sink and announces the watched directory again
func (e *Engine) ClearLog() {
	e.msg.Clear()
	e.msg.Success(MsgWatching + e.opts.Root)
}

// Close tears the backend down
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	b := e.backend
	e.backend = nil
	e.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Close()
}
