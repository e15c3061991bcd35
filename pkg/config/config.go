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

package config

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/syncsftp/pkg/ignore"
)

// 📄 DefaultFileName is the config file looked up under the watched root
const DefaultFileName = ".sync-sftp.json"

// Error texts reported to the user
const (
	ErrTextParse        = "Unable to parse configuration"
	ErrTextPassword     = "Unable to retrieve password from config or keychain"
	ErrTextMissingHost  = "Missing host in configuration"
	ErrTextMissingUser  = "Missing user in configuration"
	ErrTextIgnore       = "Invalid ignore pattern"
	ErrTextBackend      = "Unknown backend"
	ErrTextReadFailure  = "Unable to read configuration file"
	ErrTextUnknownProbe = "Unknown probe"
)

// 🔀 Backend selects the transfer strategy
type Backend string

const (
	BackendDirect Backend = "direct"
	BackendRsync  Backend = "rsync"
)

// 📡 Probe selects the reachability check
type Probe string

const (
	ProbeTCP  Probe = "tcp"
	ProbeICMP Probe = "icmp"
)

// Defaults applied when a key is absent
const (
	DefaultPort          = 22
	DefaultRsyncPath     = "rsync"
	DefaultSSHPath       = "ssh"
	DefaultRsyncFlags    = "zarv"
	DefaultProbeTimeout  = 5 * time.Second
	DefaultRetryInterval = 2 * time.Second
	DefaultRetryLimit    = 10000
	DefaultConcurrency   = 5
)

// DefaultMissingDestCodes are the rsync exit codes treated as "destination path does not exist".
// rsync reports a missing remote parent as 3 (errors selecting input/output files, dirs) on most
// builds and 11 (error in file I/O) on some older ones.
var DefaultMissingDestCodes = []int{3, 11}

// 📚 Config is a validated, immutable configuration.
//
// A Config is either valid (Errors is empty) or carries at least one error; callers must check
// IsValid before connecting.
type Config struct {
	Host     string
	User     string
	Password string
	Port     int

	RootPath   string // local watched root
	RemotePath string // remote root

	IgnoreRegexes []string
	IgnoreGlobs   []string

	Backend               Backend
	RsyncExclude          []string
	RsyncPath             string
	SSHPath               string
	RsyncFlags            string
	RsyncMissingDestCodes []int

	PrivateKey string
	KnownHosts string

	Probe         Probe
	ProbeTimeout  time.Duration
	RetryInterval time.Duration
	RetryLimit    int // negative means unbounded
	Concurrency   int

	Errors []string

	ignore *ignore.Set
}

// ✅ IsValid reports whether the config can be used to connect
func (c *Config) IsValid() bool {
	return c != nil && len(c.Errors) == 0
}

// 🚫 Ignore returns the compiled ignore set. Never nil.
func (c *Config) Ignore() *ignore.Set {
	if c == nil || c.ignore == nil {
		return ignore.MustNew("", nil, nil)
	}
	return c.ignore
}

// UseRsync reports whether the mirroring backend is selected
func (c *Config) UseRsync() bool {
	return c != nil && c.Backend == BackendRsync
}

// Excludes returns the rsync exclude list, falling back to the ignore regexes
func (c *Config) Excludes() []string {
	if len(c.RsyncExclude) > 0 {
		return c.RsyncExclude
	}
	return c.IgnoreRegexes
}

// Address returns host:port
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RemoteSpec returns user@host:path as rsync expects it
func (c *Config) RemoteSpec(path string) string {
	return c.User + "@" + c.Host + ":" + path
}

// IsMissingDestCode reports whether an rsync exit code is classified as destination-missing
func (c *Config) IsMissingDestCode(code int) bool {
	for _, cc := range c.RsyncMissingDestCodes {
		if cc == code {
			return true
		}
	}
	return false
}

// 📝 String returns a string representation of the config, without the password
func (c *Config) String() string {
	if c == nil {
		return "<nil config>"
	}
	return fmt.Sprintf("%s@%s:%s -> %s (%s)", c.User, c.Address(), c.RemotePath, c.RootPath, c.Backend)
}

// MarshalZerologObject logs the config without the password
func (c *Config) MarshalZerologObject(e *zerolog.Event) {
	e.Str("host", c.Host).
		Str("user", c.User).
		Int("port", c.Port).
		Str("root", c.RootPath).
		Str("remote", c.RemotePath).
		Str("backend", string(c.Backend)).
		Bool("has_password", c.Password != "").
		Strs("ignore", c.IgnoreRegexes).
		Strs("errors", c.Errors)
}

// 🔍 Validate turns raw config bytes into a Config. It never fails outright: problems are
// collected in Config.Errors. The parser is chosen from the file name; unknown names fall back to
// relaxed JSON.
func Validate(ctx context.Context, raw []byte, filename string, root string) *Config {
	p := GetParser(filename)
	if p == nil {
		p = &JSONParser{}
	}

	f, err := p.Parse(ctx, raw)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("file", filename).Msg("parsing configuration")
		return &Config{
			RootPath: root,
			Port:     DefaultPort,
			Errors:   []string{ErrTextParse},
		}
	}

	return FromFile(ctx, f, root)
}

// 🏗️ FromFile applies defaults and validation rules to already-parsed settings
func FromFile(ctx context.Context, f *File, root string) *Config {
	cfg := &Config{
		Host:                  strings.TrimSpace(f.Host),
		User:                  strings.TrimSpace(f.User),
		Password:              f.Password,
		Port:                  DefaultPort,
		RootPath:              root,
		RemotePath:            f.RemotePath,
		IgnoreRegexes:         f.IgnoreRegexes,
		IgnoreGlobs:           f.IgnoreGlobs,
		Backend:               BackendDirect,
		RsyncExclude:          f.RsyncExclude,
		RsyncPath:             DefaultRsyncPath,
		SSHPath:               DefaultSSHPath,
		RsyncFlags:            DefaultRsyncFlags,
		RsyncMissingDestCodes: DefaultMissingDestCodes,
		PrivateKey:            f.PrivateKey,
		KnownHosts:            f.KnownHosts,
		Probe:                 ProbeTCP,
		ProbeTimeout:          DefaultProbeTimeout,
		RetryInterval:         DefaultRetryInterval,
		RetryLimit:            DefaultRetryLimit,
		Concurrency:           DefaultConcurrency,
	}

	if f.Port > 0 {
		cfg.Port = f.Port
	}
	if f.RsyncPath != "" {
		cfg.RsyncPath = f.RsyncPath
	}
	if f.SSHPath != "" {
		cfg.SSHPath = f.SSHPath
	}
	if f.RsyncFlags != "" {
		cfg.RsyncFlags = strings.TrimPrefix(f.RsyncFlags, "-")
	}
	if len(f.RsyncMissingDestCodes) > 0 {
		cfg.RsyncMissingDestCodes = f.RsyncMissingDestCodes
	}
	if f.ProbeTimeout > 0 {
		cfg.ProbeTimeout = time.Duration(f.ProbeTimeout) * time.Second
	}
	if f.RetryInterval > 0 {
		cfg.RetryInterval = time.Duration(f.RetryInterval) * time.Second
	}
	if f.RetryLimit != 0 {
		cfg.RetryLimit = f.RetryLimit
	}
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}

	switch strings.ToLower(strings.TrimSpace(f.Backend)) {
	case "":
		if f.UseRsync {
			cfg.Backend = BackendRsync
		}
	case "direct", "sftp", "ssh":
		cfg.Backend = BackendDirect
	case "rsync", "mirror":
		cfg.Backend = BackendRsync
	default:
		cfg.Errors = append(cfg.Errors, fmt.Sprintf("%s: %s", ErrTextBackend, f.Backend))
	}

	switch strings.ToLower(strings.TrimSpace(f.Probe)) {
	case "", "tcp":
		cfg.Probe = ProbeTCP
	case "icmp", "ping":
		cfg.Probe = ProbeICMP
	default:
		cfg.Errors = append(cfg.Errors, fmt.Sprintf("%s: %s", ErrTextUnknownProbe, f.Probe))
	}

	if cfg.Host == "" {
		cfg.Errors = append(cfg.Errors, ErrTextMissingHost)
	}
	if cfg.User == "" {
		cfg.Errors = append(cfg.Errors, ErrTextMissingUser)
	}
	if cfg.Password == "" {
		cfg.Errors = append(cfg.Errors, ErrTextPassword)
	}

	set, err := ignore.New(root, cfg.IgnoreRegexes, cfg.IgnoreGlobs)
	if err != nil {
		cfg.Errors = append(cfg.Errors, fmt.Sprintf("%s: %v", ErrTextIgnore, err))
	} else {
		cfg.ignore = set
	}

	zerolog.Ctx(ctx).Debug().Object("config", cfg).Msg("validated configuration")

	return cfg
}
