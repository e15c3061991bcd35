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
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/syncsftp/pkg/config"
	"gitlab.com/tozd/go/errors"
)

// 🧪 memSession is an in-memory Session
type memSession struct {
	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	commands []string
	failOn   map[string]bool
	execErr  error
	closed   bool

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newMemSession() *memSession {
	return &memSession{
		files:  map[string][]byte{},
		dirs:   map[string]bool{},
		failOn: map[string]bool{},
	}
}

type memFile struct {
	s    *memSession
	path string
	buf  bytes.Buffer
}

func (f *memFile) Write(p []byte) (int, error) { return f.buf.Write(p) }

func (f *memFile) Close() error {
	defer f.s.inflight.Add(-1)
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.files[f.path] = f.buf.Bytes()
	return nil
}

func (s *memSession) Create(path string) (io.WriteCloser, error) {
	s.mu.Lock()
	fail := s.failOn[path]
	s.mu.Unlock()
	if fail {
		return nil, errors.New("permission denied")
	}
	n := s.inflight.Add(1)
	for {
		m := s.maxInflight.Load()
		if n <= m || s.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	return &memFile{s: s, path: path}, nil
}

func (s *memSession) MkdirAll(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[path] = true
	return nil
}

func (s *memSession) Exec(ctx context.Context, command string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, command)
	return s.execErr
}

func (s *memSession) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *memSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func dialTo(s Session) Dialer {
	return func(ctx context.Context, cfg *config.Config) (Session, error) {
		return s, nil
	}
}

// 🧪 scriptedRunner returns a fixed result and records every invocation
type scriptedRunner struct {
	result *Result
	err    error
	calls  [][]string
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

func testConfig(t *testing.T, root string, extra string) *config.Config {
	t.Helper()
	raw := `{"host": "example.com", "user": "deploy", "password": "secret", "remote_path": "/var/www/app"` + extra + `}`
	cfg := config.Validate(context.Background(), []byte(raw), config.DefaultFileName, root)
	require.True(t, cfg.IsValid(), "test config should be valid, errors: %v", cfg.Errors)
	return cfg
}

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755), "creating parent should succeed")
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644), "writing file should succeed")
	}
}

func TestNew(t *testing.T) {
	ctx := testContext(t)
	root := t.TempDir()

	tests := []struct {
		name     string
		extra    string
		wantType Backend
	}{
		{name: "direct_by_default", wantType: &Direct{}},
		{name: "rsync_when_selected", extra: `, "useRsync": true`, wantType: &Rsync{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(testConfig(t, root, tt.extra), Deps{Dial: dialTo(newMemSession())})
			require.NoError(t, err, "new should succeed")
			assert.IsType(t, tt.wantType, b, "backend type should match")
			assert.False(t, b.IsConnected(), "new backend should not be connected")
			require.NoError(t, b.Connect(ctx), "connect should succeed")
			assert.True(t, b.IsConnected(), "backend should be connected")
		})
	}

	t.Run("invalid_config_rejected", func(t *testing.T) {
		cfg := config.Validate(ctx, []byte(`{"host": "h", "user": "u"}`), config.DefaultFileName, root)
		_, err := New(cfg, Deps{})
		assert.Error(t, err, "invalid config should be rejected")
	})
}

func TestDirectUploadFile(t *testing.T) {
	ctx := testContext(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{"src/a.js": "console.log(1)"})

	s := newMemSession()
	d := NewDirect(testConfig(t, root, ""), dialTo(s))

	_, err := d.Upload(ctx, "/var/www/app/src/a.js", filepath.Join(root, "src", "a.js"), false)
	require.ErrorIs(t, err, ErrTransfer, "upload before connect should be a transfer error")
	require.ErrorIs(t, err, ErrNotConnected, "upload before connect should report not connected")

	require.NoError(t, d.Connect(ctx), "connect should succeed")

	out, err := d.Upload(ctx, "/var/www/app/src/a.js", filepath.Join(root, "src", "a.js"), false)
	require.NoError(t, err, "upload should succeed")
	assert.Equal(t, []string{"/var/www/app/src/a.js"}, out.Succeeded, "succeeded list should hold the file")
	assert.Equal(t, "console.log(1)", string(s.files["/var/www/app/src/a.js"]), "content should be streamed")
	assert.True(t, s.dirs["/var/www/app/src"], "parent should be created")
}

func TestDirectUploadDirectory(t *testing.T) {
	ctx := testContext(t)
	root := t.TempDir()
	files := map[string]string{
		"site/index.html":             "<html>",
		"site/css/main.css":           "body{}",
		"site/node_modules/x/index.js": "x",
		"site/.git/HEAD":              "ref",
	}
	for i := 0; i < 20; i++ {
		files[filepath.ToSlash(filepath.Join("site", "img", string(rune('a'+i))+".png"))] = "png"
	}
	writeTree(t, root, files)

	s := newMemSession()
	s.failOn["/var/www/app/site/css/main.css"] = true

	cfg := testConfig(t, root, `, "ignore_regexes": ["\\.git", "node_modules"], "concurrency": 3`)
	d := NewDirect(cfg, dialTo(s))
	require.NoError(t, d.Connect(ctx), "connect should succeed")

	out, err := d.Upload(ctx, "/var/www/app/site", filepath.Join(root, "site"), true)
	require.ErrorIs(t, err, ErrTransfer, "a failed entry should fail the call")
	require.NotNil(t, out, "outcome should be returned with the error")

	assert.Equal(t, []string{"/var/www/app/site/css/main.css"}, out.Failed, "failed list should hold the rejected file")
	assert.Len(t, out.Succeeded, 21, "every other file should succeed")
	assert.Equal(t, 22, out.Count(), "count should cover every attempted entry")
	assert.Contains(t, out.Succeeded, "/var/www/app/site/index.html", "top level file should be uploaded")

	for p := range s.files {
		assert.NotContains(t, p, "node_modules", "ignored directory should never be uploaded")
		assert.NotContains(t, p, ".git", "ignored directory should never be uploaded")
	}
	assert.LessOrEqual(t, s.maxInflight.Load(), int32(3), "parallelism should be bounded by concurrency")
}

func TestDirectDelete(t *testing.T) {
	ctx := testContext(t)
	s := newMemSession()
	s.execErr = errors.New("rm: cannot remove: Is a directory")

	d := NewDirect(testConfig(t, t.TempDir(), ""), dialTo(s))
	require.NoError(t, d.Connect(ctx), "connect should succeed")

	err := d.Delete(ctx, "/var/www/app/old dir")
	require.NoError(t, err, "cleanup failures should be swallowed")
	assert.Equal(t, []string{
		"rm '/var/www/app/old dir'",
		"rm '/var/www/app/old dir'/*",
		"rmdir '/var/www/app/old dir'",
	}, s.commands, "all three steps should run in order")
}

func TestDirectReconnectReplacesSession(t *testing.T) {
	ctx := testContext(t)
	first, second := newMemSession(), newMemSession()
	sessions := []*memSession{first, second}

	dial := func(ctx context.Context, cfg *config.Config) (Session, error) {
		s := sessions[0]
		sessions = sessions[1:]
		return s, nil
	}

	d := NewDirect(testConfig(t, t.TempDir(), ""), dial)
	require.NoError(t, d.Connect(ctx), "first connect should succeed")
	require.NoError(t, d.Connect(ctx), "second connect should succeed")

	assert.False(t, first.Alive(), "old session should be closed")
	assert.True(t, d.IsConnected(), "new session should be live")

	require.NoError(t, d.Close(), "close should succeed")
	assert.False(t, d.IsConnected(), "closed backend should not be connected")
}

func TestRsyncArgs(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name        string
		extra       string
		destination string
		source      string
		isDirectory bool
		want        []string
	}{
		{
			name:        "file_with_rsync_excludes",
			extra:       `, "rsyncExclude": [".git"], "ignore_regexes": ["node_modules"]`,
			destination: "/var/www/app/src/a.js",
			source:      "/proj/src/a.js",
			want: []string{
				"-zarv", "-e", "ssh -p 22", "--exclude=.git",
				"/proj/src/a.js", "deploy@example.com:/var/www/app/src/a.js",
			},
		},
		{
			name:        "directory_goes_to_parent",
			extra:       `, "ignore_regexes": ["node_modules"], "port": 2222`,
			destination: "/var/www/app/src/lib",
			source:      "/proj/src/lib/",
			isDirectory: true,
			want: []string{
				"-zarv", "-e", "ssh -p 2222", "--exclude=node_modules",
				"/proj/src/lib", "deploy@example.com:/var/www/app/src/",
			},
		},
		{
			name:        "root_directory_sent_by_contents",
			destination: "/var/www/app",
			source:      "{root}",
			isDirectory: true,
			want: []string{
				"-zarv", "-e", "ssh -p 22",
				"{root}/", "deploy@example.com:/var/www/app/",
			},
		},
		{
			name:        "custom_ssh_and_key",
			extra:       `, "sshPath": "/opt/my ssh", "privateKey": "/keys/id", "rsyncFlags": "-az"`,
			destination: "/var/www/app/a",
			source:      "/proj/a",
			want: []string{
				"-az", "-e", "'/opt/my ssh' -p 22 -i /keys/id",
				"/proj/a", "deploy@example.com:/var/www/app/a",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRsync(testConfig(t, root, tt.extra), dialTo(newMemSession()), &scriptedRunner{})
			want := make([]string, len(tt.want))
			for i, a := range tt.want {
				want[i] = strings.ReplaceAll(a, "{root}", root)
			}
			source := strings.ReplaceAll(tt.source, "{root}", root)
			assert.Equal(t, want, r.Args(tt.destination, source, tt.isDirectory), "args should match")
		})
	}
}

func TestRsyncUpload(t *testing.T) {
	tests := []struct {
		name         string
		extra        string
		result       *Result
		wantErr      error
		wantMissing  bool
		wantCommands []string
	}{
		{
			name:   "success",
			result: &Result{ExitCode: 0},
		},
		{
			name:         "missing_destination_by_code",
			result:       &Result{ExitCode: 3, Stderr: "rsync error: errors selecting input/output files, dirs (code 3)"},
			wantErr:      ErrTransfer,
			wantMissing:  true,
			wantCommands: []string{"mkdir -p /var/www/app/new/dir"},
		},
		{
			name:         "missing_destination_by_stderr",
			result:       &Result{ExitCode: 23, Stderr: `rsync: mkstemp "/var/www/app/new/dir/.a.js" failed: No such file or directory (2)`},
			wantErr:      ErrTransfer,
			wantMissing:  true,
			wantCommands: []string{"mkdir -p /var/www/app/new/dir"},
		},
		{
			name:         "missing_destination_by_change_dir",
			result:       &Result{ExitCode: 12, Stderr: `rsync: change_dir#3 "/var/www/app/new/dir" failed: No such file or directory (2)`},
			wantErr:      ErrTransfer,
			wantMissing:  true,
			wantCommands: []string{"mkdir -p /var/www/app/new/dir"},
		},
		{
			name:    "vanished_local_source_is_not_missing_destination",
			result:  &Result{ExitCode: 23, Stderr: `rsync: link_stat "/proj/new/dir/a.js" failed: No such file or directory (2)`},
			wantErr: ErrTransfer,
		},
		{
			name:         "configured_codes_replace_defaults",
			extra:        `, "rsyncMissingDestCodes": [12]`,
			result:       &Result{ExitCode: 3, Stderr: "something else"},
			wantErr:      ErrTransfer,
			wantCommands: nil,
		},
		{
			name:    "other_failure_is_not_classified",
			result:  &Result{ExitCode: 255, Stderr: "ssh: connect to host example.com port 22: Connection refused"},
			wantErr: ErrTransfer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			s := newMemSession()
			runner := &scriptedRunner{result: tt.result}
			r := NewRsync(testConfig(t, t.TempDir(), tt.extra), dialTo(s), runner)
			require.NoError(t, r.Connect(ctx), "connect should succeed")

			out, err := r.Upload(ctx, "/var/www/app/new/dir/a.js", "/proj/new/dir/a.js", false)
			require.Len(t, runner.calls, 1, "rsync should run exactly once")
			assert.Equal(t, config.DefaultRsyncPath, runner.calls[0][0], "configured rsync binary should run")

			if tt.wantErr == nil {
				require.NoError(t, err, "upload should succeed")
				assert.Equal(t, []string{"/var/www/app/new/dir/a.js"}, out.Succeeded, "destination should succeed")
				return
			}

			require.ErrorIs(t, err, tt.wantErr, "error kind should match")
			assert.Equal(t, tt.wantMissing, errors.Is(err, ErrDestinationMissing), "destination-missing classification should match")
			assert.Equal(t, tt.wantCommands, s.commands, "remote commands should match")
			assert.Equal(t, []string{"/var/www/app/new/dir/a.js"}, out.Failed, "destination should be reported failed")
		})
	}
}

func TestRsyncRunnerError(t *testing.T) {
	ctx := testContext(t)
	runner := &scriptedRunner{err: errors.New("exec: \"rsync\": executable file not found in $PATH")}
	r := NewRsync(testConfig(t, t.TempDir(), ""), dialTo(newMemSession()), runner)

	_, err := r.Upload(ctx, "/var/www/app/a", "/proj/a", false)
	require.ErrorIs(t, err, ErrTransfer, "runner failure should be a transfer error")
	assert.False(t, errors.Is(err, ErrDestinationMissing), "runner failure is not destination-missing")
}

func TestNormalizeRemote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/var/www/app/./src/a.js", want: "/var/www/app/src/a.js"},
		{in: `/var/www/app/.\src\a.js`, want: "/var/www/app/src/a.js"},
		{in: "/var//www///app/", want: "/var/www/app"},
		{in: "rel/./x", want: "rel/x"},
		{in: "./", want: "."},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.in, "/", "_"), func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRemote(tt.in), "normalized path should match")
		})
	}
}

func TestParentRemote(t *testing.T) {
	assert.Equal(t, "/var/www", parentRemote("/var/www/app"), "parent of nested path")
	assert.Equal(t, "/", parentRemote("/app"), "parent of top level path")
	assert.Equal(t, "", parentRemote("app"), "relative leaf has no parent")
}

func TestDialSSHHandshakeTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "listening should succeed")
	defer ln.Close()

	// accept and never answer, so the ssh version exchange stalls
	var held []net.Conn
	var mu sync.Mutex
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, c)
			mu.Unlock()
		}
	}()
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range held {
			_ = c.Close()
		}
	}()

	cfg := testConfig(t, t.TempDir(), "")
	cfg.Host = "127.0.0.1"
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.ProbeTimeout = 200 * time.Millisecond

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		s, err := DialSSH(testContext(t), cfg)
		if s != nil {
			_ = s.Close()
		}
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err, "stalled handshake should fail")
		assert.Contains(t, err.Error(), "ssh handshake", "failure should come from the handshake")
		assert.Less(t, time.Since(start), 5*time.Second, "handshake should be bounded by the timeout")
	case <-time.After(10 * time.Second):
		t.Fatal("dial did not return on a stalled handshake")
	}
}
