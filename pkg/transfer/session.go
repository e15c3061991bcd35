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
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"github.com/walteh/syncsftp/pkg/config"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// 🔐 Session is one live connection to the remote host
type Session interface {
	// Create opens a remote file for writing, truncating it
	Create(path string) (io.WriteCloser, error)
	// MkdirAll creates a remote directory and its parents
	MkdirAll(path string) error
	// Exec runs a shell command
	Exec(ctx context.Context, command string) error
	// Alive reports whether the transport is still up
	Alive() bool
	Close() error
}

// 📞 Dialer opens a Session for a config
type Dialer func(ctx context.Context, cfg *config.Config) (Session, error)

// sshSession is a Session over golang.org/x/crypto/ssh with an sftp subsystem for file writes
type sshSession struct {
	client *ssh.Client
	sftp   *sftp.Client
	alive  atomic.Bool
}

// 🏭 DialSSH connects with the password (and the private key if one is configured)
func DialSSH(ctx context.Context, cfg *config.Config) (Session, error) {
	auth := []ssh.AuthMethod{
		ssh.Password(cfg.Password),
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = cfg.Password
			}
			return answers, nil
		}),
	}
	if cfg.PrivateKey != "" {
		signer, err := loadSigner(cfg.PrivateKey, cfg.Password)
		if err != nil {
			return nil, errors.Errorf("loading private key: %w", err)
		}
		auth = append([]ssh.AuthMethod{ssh.PublicKeys(signer)}, auth...)
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, errors.Errorf("reading known hosts: %w", err)
		}
		hostKey = cb
	}

	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = config.DefaultProbeTimeout
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	addr := cfg.Address()
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Errorf("dialing %s: %w", addr, err)
	}

	// ClientConfig.Timeout only applies to ssh.Dial, the handshake is bounded here
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		_ = conn.Close()
		return nil, errors.Errorf("setting handshake deadline: %w", err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Errorf("ssh handshake with %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = c.Close()
		return nil, errors.Errorf("clearing handshake deadline: %w", err)
	}
	client := ssh.NewClient(c, chans, reqs)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errors.Errorf("starting sftp subsystem: %w", err)
	}

	s := &sshSession{client: client, sftp: sftpClient}
	s.alive.Store(true)
	go func() {
		err := client.Wait()
		s.alive.Store(false)
		zerolog.Ctx(ctx).Debug().Err(err).Str("addr", addr).Msg("ssh connection closed")
	}()

	return s, nil
}

func loadSigner(path, passphrase string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err == nil {
		return signer, nil
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	}
	return nil, errors.Errorf("parsing %s: %w", path, err)
}

func (s *sshSession) Create(path string) (io.WriteCloser, error) {
	return s.sftp.Create(path)
}

func (s *sshSession) MkdirAll(path string) error {
	return s.sftp.MkdirAll(path)
}

func (s *sshSession) Exec(ctx context.Context, command string) error {
	session, err := s.client.NewSession()
	if err != nil {
		return errors.Errorf("creating session: %w", err)
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return errors.Errorf("running %q: %w", command, ctx.Err())
	case err := <-done:
		if err != nil {
			return errors.Errorf("running %q: %w: %s", command, err, strings.TrimSpace(stderr.String()))
		}
		return nil
	}
}

func (s *sshSession) Alive() bool {
	return s.alive.Load()
}

func (s *sshSession) Close() error {
	s.alive.Store(false)
	_ = s.sftp.Close()
	return s.client.Close()
}
