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

package ignore

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gitlab.com/tozd/go/errors"
)

// 🚫 Set is an ordered list of ignore rules.
//
// A path is ignored when any regex matches the slash-normalized path relative to the
// root, or any single component of it. Globs are matched the same way with doublestar.
type Set struct {
	root    string
	regexes []*regexp.Regexp
	globs   []string
}

// 🏭 New compiles the regexes and validates the globs
func New(root string, regexes []string, globs []string) (*Set, error) {
	s := &Set{root: strings.ReplaceAll(filepath.Clean(root), `\`, "/")}
	if root == "" {
		s.root = ""
	}
	for _, r := range regexes {
		re, err := regexp.Compile(r)
		if err != nil {
			return nil, errors.Errorf("compiling ignore pattern %q: %w", r, err)
		}
		s.regexes = append(s.regexes, re)
	}
	for _, g := range globs {
		if !doublestar.ValidatePattern(g) {
			return nil, errors.Errorf("invalid ignore glob %q", g)
		}
		s.globs = append(s.globs, g)
	}
	return s, nil
}

// MustNew is New for literals known to compile
func MustNew(root string, regexes []string, globs []string) *Set {
	s, err := New(root, regexes, globs)
	if err != nil {
		panic(err)
	}
	return s
}

// Empty reports whether the set has no rules
func (s *Set) Empty() bool {
	return s == nil || (len(s.regexes) == 0 && len(s.globs) == 0)
}

// Patterns returns the regex sources in order
func (s *Set) Patterns() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.regexes))
	for _, re := range s.regexes {
		out = append(out, re.String())
	}
	return out
}

// 🔍 Match reports whether path is ignored. Absolute paths under the root are made relative first.
func (s *Set) Match(path string) bool {
	if s.Empty() {
		return false
	}
	rel := s.relative(path)
	if rel == "" {
		return false
	}

	candidates := append([]string{rel}, components(rel)...)
	for _, re := range s.regexes {
		for _, c := range candidates {
			if re.MatchString(c) {
				return true
			}
		}
	}
	for _, g := range s.globs {
		for _, c := range candidates {
			if ok, _ := doublestar.Match(g, c); ok {
				return true
			}
		}
	}
	return false
}

// ShouldWatch is the inverse of Match, in the shape a watcher filter expects
func (s *Set) ShouldWatch(path string) bool {
	return !s.Match(path)
}

func (s *Set) relative(path string) string {
	p := strings.ReplaceAll(path, `\`, "/")
	if s.root != "" && s.root != "." {
		root := strings.TrimSuffix(s.root, "/")
		if p == root {
			return ""
		}
		if strings.HasPrefix(p, root+"/") {
			p = strings.TrimPrefix(p, root+"/")
		}
	}
	p = strings.TrimPrefix(p, "./")
	if p == "." {
		return ""
	}
	return p
}

func components(rel string) []string {
	parts := strings.Split(rel, "/")
	if len(parts) == 1 {
		return nil
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}
