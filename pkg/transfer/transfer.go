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
	"sort"
	"strings"

	"github.com/walteh/syncsftp/pkg/config"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrTransfer marks a failed upload. The engine recovers from it by queueing a retry.
	ErrTransfer = errors.Base("transfer failed")
	// ErrDestinationMissing is the rsync failure classified as "destination path does not exist"
	ErrDestinationMissing = errors.Base("destination path does not exist")
	// ErrNotConnected is returned by every operation attempted without a live session
	ErrNotConnected = errors.Base("not connected")
)

// 🔌 Backend moves files to the remote host. Implementations own their connection.
type Backend interface {
	// Name returns the backend kind this implementation serves
	Name() config.Backend
	// Connect opens a fresh session, discarding any previous one
	Connect(ctx context.Context) error
	// Upload copies source to destination. For directories the whole tree is sent.
	Upload(ctx context.Context, destination, source string, isDirectory bool) (*Outcome, error)
	// Delete removes a remote path, best effort
	Delete(ctx context.Context, destination string) error
	// Exec runs a shell command on the remote host
	Exec(ctx context.Context, command string) error
	// IsConnected reports the last known state of the session
	IsConnected() bool
	// Close tears the session down
	Close() error
}

// 📊 Outcome lists which remote paths were written and which failed
type Outcome struct {
	Succeeded []string
	Failed    []string
}

// Count returns the number of entries attempted
func (o *Outcome) Count() int {
	if o == nil {
		return 0
	}
	return len(o.Succeeded) + len(o.Failed)
}

func (o *Outcome) sort() {
	sort.Strings(o.Succeeded)
	sort.Strings(o.Failed)
}

// 🧰 Deps are the seams a backend needs. Zero values get the real implementations.
type Deps struct {
	Dial   Dialer
	Runner Runner
}

func (d Deps) withDefaults() Deps {
	if d.Dial == nil {
		d.Dial = DialSSH
	}
	if d.Runner == nil {
		d.Runner = &ExecRunner{}
	}
	return d
}

// 🏭 Factory creates a backend for a validated config
type Factory func(cfg *config.Config, deps Deps) Backend

var (
	// 🗺️ factories maps backend kinds to their constructors
	factories = map[config.Backend]Factory{}
)

// 📝 Register registers a backend factory
func Register(kind config.Backend, f Factory) {
	factories[kind] = f
}

// 🎯 New builds the backend the config selects. This is decided once per connect cycle.
func New(cfg *config.Config, deps Deps) (Backend, error) {
	if !cfg.IsValid() {
		return nil, errors.New("configuration is not valid")
	}
	f, ok := factories[cfg.Backend]
	if !ok {
		options := []string{}
		for k := range factories {
			options = append(options, string(k))
		}
		sort.Strings(options)
		return nil, errors.Errorf("backend %s not found, options: %s", cfg.Backend, strings.Join(options, ", "))
	}
	return f(cfg, deps.withDefaults()), nil
}
