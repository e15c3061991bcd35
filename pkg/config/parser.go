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
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the raw settings from bytes
	Parse(ctx context.Context, data []byte) (*File, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 📄 File is the on-disk shape of the configuration. Key names follow the sftp-config.json
// convention, so unknown keys from that format are tolerated.
type File struct {
	Host          string   `json:"host" yaml:"host" hcl:"host,optional"`
	User          string   `json:"user" yaml:"user" hcl:"user,optional"`
	Password      string   `json:"password" yaml:"password" hcl:"password,optional"`
	Port          int      `json:"port" yaml:"port" hcl:"port,optional"`
	RemotePath    string   `json:"remote_path" yaml:"remote_path" hcl:"remote_path,optional"`
	IgnoreRegexes []string `json:"ignore_regexes" yaml:"ignore_regexes" hcl:"ignore_regexes,optional"`
	IgnoreGlobs   []string `json:"ignore_globs" yaml:"ignore_globs" hcl:"ignore_globs,optional"`

	UseRsync              bool     `json:"useRsync" yaml:"useRsync" hcl:"useRsync,optional"`
	Backend               string   `json:"backend" yaml:"backend" hcl:"backend,optional"`
	RsyncExclude          []string `json:"rsyncExclude" yaml:"rsyncExclude" hcl:"rsyncExclude,optional"`
	RsyncPath             string   `json:"rsyncPath" yaml:"rsyncPath" hcl:"rsyncPath,optional"`
	SSHPath               string   `json:"sshPath" yaml:"sshPath" hcl:"sshPath,optional"`
	RsyncFlags            string   `json:"rsyncFlags" yaml:"rsyncFlags" hcl:"rsyncFlags,optional"`
	RsyncMissingDestCodes []int    `json:"rsyncMissingDestCodes" yaml:"rsyncMissingDestCodes" hcl:"rsyncMissingDestCodes,optional"`

	PrivateKey string `json:"privateKey" yaml:"privateKey" hcl:"privateKey,optional"`
	KnownHosts string `json:"knownHosts" yaml:"knownHosts" hcl:"knownHosts,optional"`

	Probe         string `json:"probe" yaml:"probe" hcl:"probe,optional"`
	ProbeTimeout  int    `json:"probe_timeout" yaml:"probe_timeout" hcl:"probe_timeout,optional"`
	RetryInterval int    `json:"retry_interval" yaml:"retry_interval" hcl:"retry_interval,optional"`
	RetryLimit    int    `json:"retry_limit" yaml:"retry_limit" hcl:"retry_limit,optional"`
	Concurrency   int    `json:"concurrency" yaml:"concurrency" hcl:"concurrency,optional"`
}
