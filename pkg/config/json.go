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
	"encoding/json"
	"strings"

	"github.com/tailscale/hujson"
	"gitlab.com/tozd/go/errors"
)

// 🔧 JSONParser parses relaxed JSON: comments and trailing commas are allowed
type JSONParser struct{}

func init() {
	Register(&JSONParser{})
}

// 🔍 CanParse checks if this parser can handle the given file
func (p *JSONParser) CanParse(filename string) bool {
	name := strings.ToLower(strings.TrimSpace(filename))
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".jsonc")
}

// 📝 Parse standardizes the input to plain JSON and decodes it
func (p *JSONParser) Parse(ctx context.Context, data []byte) (*File, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, errors.Errorf("standardizing JSON: %w", err)
	}

	var f File
	if err := json.Unmarshal(std, &f); err != nil {
		return nil, errors.Errorf("parsing JSON: %w", err)
	}

	return &f, nil
}
