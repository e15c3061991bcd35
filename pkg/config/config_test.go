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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		config     string
		wantValid  bool
		wantErrors []string
		check      func(t *testing.T, cfg *Config)
	}{
		{
			name:     "relaxed_json_full",
			filename: ".sync-sftp.json",
			config: `{
	// comments are fine
	"host": "example.com",
	"user": "deploy",
	"password": "secret",
	"port": 2222,
	"remote_path": "/var/www/app",
	"ignore_regexes": ["\\.git", "node_modules"],
	"useRsync": true,
	"rsyncExclude": [".git", "node_modules"],
	"rsyncPath": "/usr/local/bin/rsync",
	"sshPath": "/usr/bin/ssh",
}`,
			wantValid: true,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "example.com", cfg.Host, "host should match")
				assert.Equal(t, "deploy", cfg.User, "user should match")
				assert.Equal(t, 2222, cfg.Port, "port should match")
				assert.Equal(t, "/var/www/app", cfg.RemotePath, "remote path should match")
				assert.Equal(t, BackendRsync, cfg.Backend, "useRsync should select rsync")
				assert.Equal(t, []string{".git", "node_modules"}, cfg.Excludes(), "rsync excludes should win")
				assert.Equal(t, "/usr/local/bin/rsync", cfg.RsyncPath, "rsync path should match")
				assert.Equal(t, "/usr/bin/ssh", cfg.SSHPath, "ssh path should match")
				assert.Equal(t, "example.com:2222", cfg.Address(), "address should join host and port")
			},
		},
		{
			name:      "defaults_applied",
			filename:  ".sync-sftp.json",
			config:    `{"host": "h", "user": "u", "password": "p"}`,
			wantValid: true,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultPort, cfg.Port, "port should default to 22")
				assert.Equal(t, BackendDirect, cfg.Backend, "backend should default to direct")
				assert.Equal(t, DefaultRsyncPath, cfg.RsyncPath, "rsync path should default")
				assert.Equal(t, DefaultSSHPath, cfg.SSHPath, "ssh path should default")
				assert.Equal(t, DefaultRsyncFlags, cfg.RsyncFlags, "rsync flags should default")
				assert.Equal(t, 5*time.Second, cfg.ProbeTimeout, "probe timeout should default to 5s")
				assert.Equal(t, 2*time.Second, cfg.RetryInterval, "retry interval should default to 2s")
				assert.Equal(t, 5, cfg.Concurrency, "concurrency should default to 5")
				assert.Equal(t, ProbeTCP, cfg.Probe, "probe should default to tcp")
				assert.True(t, cfg.IsMissingDestCode(3), "exit code 3 should be destination-missing")
				assert.False(t, cfg.IsMissingDestCode(23), "exit code 23 should not be destination-missing")
			},
		},
		{
			name:      "excludes_fall_back_to_ignore_regexes",
			filename:  ".sync-sftp.json",
			config:    `{"host": "h", "user": "u", "password": "p", "ignore_regexes": ["a", "b"]}`,
			wantValid: true,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"a", "b"}, cfg.Excludes(), "excludes should fall back to ignore regexes")
			},
		},
		{
			name:       "unparseable",
			filename:   ".sync-sftp.json",
			config:     `{"host": `,
			wantErrors: []string{ErrTextParse},
		},
		{
			name:       "missing_password",
			filename:   ".sync-sftp.json",
			config:     `{"host": "h", "user": "u"}`,
			wantErrors: []string{ErrTextPassword},
		},
		{
			name:       "empty_password",
			filename:   ".sync-sftp.json",
			config:     `{"host": "h", "user": "u", "password": ""}`,
			wantErrors: []string{ErrTextPassword},
		},
		{
			name:       "missing_host_and_user",
			filename:   ".sync-sftp.json",
			config:     `{"password": "p"}`,
			wantErrors: []string{ErrTextMissingHost, ErrTextMissingUser},
		},
		{
			name:       "bad_backend",
			filename:   ".sync-sftp.json",
			config:     `{"host": "h", "user": "u", "password": "p", "backend": "ftp"}`,
			wantErrors: []string{ErrTextBackend + ": ftp"},
		},
		{
			name:      "yaml_config",
			filename:  "sync-sftp.yaml",
			wantValid: true,
			config: `
host: example.com
user: deploy
password: secret
remote_path: /srv
backend: mirror
retry_limit: -1
rsyncMissingDestCodes: [12]
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, BackendRsync, cfg.Backend, "mirror should select rsync")
				assert.Equal(t, -1, cfg.RetryLimit, "negative retry limit should be kept")
				assert.True(t, cfg.IsMissingDestCode(12), "configured code should classify")
				assert.False(t, cfg.IsMissingDestCode(3), "default codes should be replaced")
			},
		},
		{
			name:      "hcl_config",
			filename:  "sync-sftp.hcl",
			wantValid: true,
			config: `
host           = "example.com"
user           = "deploy"
password       = "secret"
port           = 2200
remote_path    = "/srv"
ignore_regexes = ["\\.git"]
probe          = "icmp"
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 2200, cfg.Port, "port should match")
				assert.Equal(t, ProbeICMP, cfg.Probe, "probe should be icmp")
				assert.True(t, cfg.Ignore().Match(".git/HEAD"), "ignore set should be compiled")
			},
		},
	}

	ctx := zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Validate(ctx, []byte(tt.config), tt.filename, "/proj")
			require.NotNil(t, cfg, "validate should always return a config")

			assert.Equal(t, tt.wantValid, cfg.IsValid(), "validity should match, errors: %v", cfg.Errors)
			assert.Equal(t, !cfg.IsValid(), len(cfg.Errors) > 0, "valid and erroring are exclusive")
			if tt.wantErrors != nil {
				assert.Equal(t, tt.wantErrors, cfg.Errors, "errors should match")
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestValidateHCLEnv(t *testing.T) {
	t.Setenv("SYNC_SFTP_TEST_PASSWORD", "from-env")

	raw := `
host     = "h"
user     = "u"
password = env.SYNC_SFTP_TEST_PASSWORD
`
	cfg := Validate(context.Background(), []byte(raw), "x.hcl", "/proj")
	require.True(t, cfg.IsValid(), "config should be valid, errors: %v", cfg.Errors)
	assert.Equal(t, "from-env", cfg.Password, "password should come from the environment")
}

func TestLoad(t *testing.T) {
	root := t.TempDir()

	cfg := Load(context.Background(), root, "")
	assert.False(t, cfg.IsValid(), "missing file should be invalid")
	require.Len(t, cfg.Errors, 1, "one error should be reported")
	assert.Contains(t, cfg.Errors[0], ErrTextReadFailure, "error should mention reading")

	err := os.WriteFile(filepath.Join(root, DefaultFileName), []byte(`{"host":"h","user":"u","password":"p"}`), 0o644)
	require.NoError(t, err, "writing config should succeed")

	cfg = Load(context.Background(), root, "")
	assert.True(t, cfg.IsValid(), "config should be valid, errors: %v", cfg.Errors)
	assert.Equal(t, root, cfg.RootPath, "root should be recorded")
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/proj", DefaultFileName), ResolvePath("/proj", ""), "empty path uses default name")
	assert.Equal(t, filepath.Join("/proj", "c.yaml"), ResolvePath("/proj", "c.yaml"), "relative path is under root")
	assert.Equal(t, "/etc/c.hcl", ResolvePath("/proj", "/etc/c.hcl"), "absolute path is kept")
}

func TestGetParser(t *testing.T) {
	assert.IsType(t, &JSONParser{}, GetParser(".sync-sftp.json"), "json name should get json parser")
	assert.IsType(t, &YAMLParser{}, GetParser("a.yml"), "yml name should get yaml parser")
	assert.IsType(t, &HCLParser{}, GetParser("a.hcl"), "hcl name should get hcl parser")
	assert.Nil(t, GetParser("a.toml"), "unknown extension has no parser")
}
