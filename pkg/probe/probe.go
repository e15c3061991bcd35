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

// Package probe answers "is the remote host reachable right now". Probes never retry;
// the caller owns the retry policy.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/rs/zerolog"
	"github.com/walteh/syncsftp/pkg/config"
)

// DefaultTimeout bounds every probe that is not given one
const DefaultTimeout = 5 * time.Second

// 📡 Prober checks reachability of a host
type Prober interface {
	Probe(ctx context.Context, host string, port int, timeout time.Duration) bool
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context, host string, port int, timeout time.Duration) bool

func (f ProberFunc) Probe(ctx context.Context, host string, port int, timeout time.Duration) bool {
	return f(ctx, host, port, timeout)
}

// 🔌 TCP dials the ssh port. It needs no privileges and tests the service we actually use.
type TCP struct {
	Dialer net.Dialer
}

func (p *TCP) Probe(ctx context.Context, host string, port int, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, orDefault(timeout))
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := p.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("addr", addr).Msg("tcp probe failed")
		return false
	}
	_ = conn.Close()
	return true
}

// 🏓 ICMP sends a single echo request
type ICMP struct {
	// Privileged uses raw sockets instead of unprivileged datagram pings
	Privileged bool
}

func (p *ICMP) Probe(ctx context.Context, host string, _ int, timeout time.Duration) bool {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("host", host).Msg("resolving ping target")
		return false
	}
	pinger.Count = 1
	pinger.Timeout = orDefault(timeout)
	pinger.SetPrivileged(p.Privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("host", host).Msg("icmp probe failed")
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}

// 🎯 ForConfig returns the prober the config asks for
func ForConfig(cfg *config.Config) Prober {
	if cfg != nil && cfg.Probe == config.ProbeICMP {
		return &ICMP{}
	}
	return &TCP{}
}

func orDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}
