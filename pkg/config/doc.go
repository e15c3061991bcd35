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

/*
Package config reads and validates the connection and sync settings for a watched root.

	                 +-------------------+
	                 |  .sync-sftp.json  |
	                 +---------+---------+
	                           |
	      +--------------------+--------------------+
	      |                    |                    |
	+-----+------+       +-----+-----+        +-----+-----+
	| JSON       |       |   YAML    |        |    HCL    |
	| (relaxed)  |       |  Parser   |        |  Parser   |
	+-----+------+       +-----+-----+        +-----+-----+
	      |                    |                    |
	      +--------------------+--------------------+
	                           |
	                    +------+------+
	                    |  FromFile   |  defaults + rules
	                    +------+------+
	                           |
	                    +------+------+
	                    |   Config    |  valid XOR Errors
	                    +-------------+

🎯 Purpose:
- Parse the config file in whichever format its extension names
- Apply defaults (port 22, rsync/ssh paths, 2s retry, 5s probe, 5 parallel uploads)
- Collect every problem into Config.Errors instead of failing

⚡ Rules:
- host, user and password must be present and non-empty
- ignore_regexes must compile
- backend must be one of direct, sftp, ssh, rsync, mirror (useRsync is still honored)

A Config is never mutated after Validate returns. Reloading builds a new one.

🔍 Example:

	cfg := config.Load(ctx, root, "")
	if !cfg.IsValid() {
		for _, e := range cfg.Errors {
			msg.Error(e)
		}
		return
	}
*/
package config
