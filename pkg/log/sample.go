// Copyright 2026 The Condorflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"io"

	"github.com/condorflow/condorflow/private/config"
)

const consoleSample = `
# Console logging level (debug|info|warn|error) (default info)
level = "info"

# Console logging format (human|json) (default human)
format = "human"

# Level at which stacktraces are captured (none|error) (default none)
stacktrace_level = "none"
`

// Sample writes the sample for the log section.
func (c *Config) Sample(dst io.Writer, path config.Path) {
	config.WriteSample(dst, path, &c.Console)
}

// ConfigName returns the name of the config block.
func (c *Config) ConfigName() string {
	return "log"
}

// Sample writes the sample for the console subsection.
func (c *ConsoleConfig) Sample(dst io.Writer, path config.Path) {
	config.WriteString(dst, consoleSample)
}

// ConfigName returns the name of the config block.
func (c *ConsoleConfig) ConfigName() string {
	return "console"
}
