// Copyright 2025 Kadir Pekel
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

package agent

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is used when no explicit base prompt is configured.
const DefaultSystemPrompt = "You are a helpful, precise AI assistant. Use the available tools when they help you complete the user's request."

const workspaceFooterPrefix = "Current Workspace: "

// BuildSystemPrompt combines a base description, optional instructions,
// any tool-contributed instruction text, and a workspace footer into one
// system prompt string. The workspace footer is appended idempotently: if
// the assembled text already contains a workspace footer, it is not
// duplicated.
func BuildSystemPrompt(base, instructions string, toolInstructions []string, workspaceDir string) string {
	if base == "" {
		base = DefaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(base)

	if instructions != "" {
		b.WriteString("\n\n")
		b.WriteString(instructions)
	}

	for _, ti := range toolInstructions {
		if ti == "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(ti)
	}

	if workspaceDir != "" && !strings.Contains(b.String(), workspaceFooterPrefix) {
		fmt.Fprintf(&b, "\n\n%s%s", workspaceFooterPrefix, workspaceDir)
	}

	return b.String()
}
