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

package tokenmanager

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/llm"
)

// Default compression thresholds, mirroring the reference token manager's
// defaults for a claude-3-5-sonnet-class 200k context window.
const (
	DefaultTokenLimit         = 120000
	DefaultSummarizeAfterRounds = 2
)

const coreMemoryHeader = "[conversation history core memory]"
const coreMemoryAck = "Understood, I'm aware of the prior conversation. Please continue."

// Config configures a Manager.
type Config struct {
	Model                string
	TokenLimit           int
	EnableSummarization  bool
	SummarizeAfterRounds int
}

// Manager tracks a per-session estimator and core-memory string, deciding
// when a history needs compressing and performing the compression via a
// side LLM call that extracts a running summary.
//
// A Manager is scoped to one session: core memory persists across calls to
// Compress for the lifetime of the Manager, the same way the Python
// reference keeps self.core_memory on its per-session TokenManager.
type Manager struct {
	mu sync.Mutex

	estimator            *Estimator
	summarizer           llm.Client
	tokenLimit           int
	enableSummarization  bool
	summarizeAfterRounds int

	coreMemory string
}

// New constructs a Manager. summarizer is the LLM used to extract core
// memory during compression; it may differ from the agent's main model
// (e.g. a cheaper model dedicated to summarization).
func New(summarizer llm.Client, cfg Config) *Manager {
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = DefaultTokenLimit
	}
	if cfg.SummarizeAfterRounds <= 0 {
		cfg.SummarizeAfterRounds = DefaultSummarizeAfterRounds
	}
	return &Manager{
		estimator:            NewEstimator(cfg.Model),
		summarizer:           summarizer,
		tokenLimit:           cfg.TokenLimit,
		enableSummarization:  cfg.EnableSummarization,
		summarizeAfterRounds: cfg.SummarizeAfterRounds,
	}
}

// CoreMemory returns the most recently extracted core memory, if any.
func (m *Manager) CoreMemory() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coreMemory
}

// EstimatedTokens reports the token estimate for a history without
// triggering compression.
func (m *Manager) EstimatedTokens(messages []core.Message) int {
	return m.estimator.CountAll(messages)
}

// MaybeCompress returns messages unchanged unless compression is enabled and
// either the round count or the token estimate has crossed its threshold, in
// which case it returns a compressed history: the original system prompt,
// an injected core-memory message pair, and the most recent round verbatim.
//
// A "round" is counted as a user message at index > 0 (the first message is
// always the system prompt and is never counted as a round boundary).
func (m *Manager) MaybeCompress(ctx context.Context, messages []core.Message) ([]core.Message, error) {
	if !m.enableSummarization {
		return messages, nil
	}

	var userIndices []int
	for i, msg := range messages {
		if msg.Role == core.RoleUser && i > 0 {
			userIndices = append(userIndices, i)
		}
	}
	numRounds := len(userIndices)
	estimatedTokens := m.estimator.CountAll(messages)

	needCompress := numRounds > m.summarizeAfterRounds || estimatedTokens > m.tokenLimit
	if !needCompress || numRounds < 2 {
		return messages, nil
	}

	roundsToCompress := numRounds - 1
	compressEndIdx := userIndices[len(userIndices)-1]

	if compressEndIdx <= 1 {
		return messages, nil
	}
	toCompress := messages[1:compressEndIdx]
	if len(toCompress) == 0 {
		return messages, nil
	}

	memory, err := m.extractCoreMemory(ctx, toCompress, roundsToCompress)
	if err != nil {
		return nil, fmt.Errorf("tokenmanager: extract core memory: %w", err)
	}

	m.mu.Lock()
	if memory != "" {
		m.coreMemory = memory
	}
	current := m.coreMemory
	m.mu.Unlock()

	newMessages := make([]core.Message, 0, len(messages)-compressEndIdx+3)
	newMessages = append(newMessages, messages[0])

	if current != "" {
		newMessages = append(newMessages,
			core.Message{
				Role:    core.RoleUser,
				Content: fmt.Sprintf("%s\n%s\n\nPlease continue the conversation based on the above history context.", coreMemoryHeader, current),
			},
			core.Message{Role: core.RoleAssistant, Content: coreMemoryAck},
		)
	}

	newMessages = append(newMessages, messages[compressEndIdx:]...)
	return newMessages, nil
}

// extractCoreMemory renders messages to plain text and asks the summarizer
// to distill user intent, key facts, completed work, and open items.
func (m *Manager) extractCoreMemory(ctx context.Context, messages []core.Message, numRounds int) (string, error) {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleUser:
			fmt.Fprintf(&b, "User: %s\n", msg.Content)
		case core.RoleAssistant:
			content := msg.Content
			if len(content) > 500 {
				content = content[:500] + "..."
			}
			fmt.Fprintf(&b, "Assistant: %s\n", content)
			if len(msg.ToolCalls) > 0 {
				names := make([]string, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					names[i] = tc.Name
				}
				fmt.Fprintf(&b, "  [called tools: %s]\n", strings.Join(names, ", "))
			}
		case core.RoleTool:
			result := msg.Content
			if len(result) > 200 {
				result = result[:200] + "..."
			}
			fmt.Fprintf(&b, "  [tool result: %s]\n", result)
		}
	}

	prompt := fmt.Sprintf(`Extract the core memory from the following %d rounds of conversation, for use as context in continuing the conversation.

<conversation history>
%s</conversation history>

Extract and organize:
1. User intent: what is the user trying to accomplish?
2. Key facts: important facts, data, filenames, locations mentioned
3. Completed actions: what has the assistant already done?
4. Open items: what remains unfinished?

Keep it concise, under 300 words, and only retain information useful to continuing the conversation.`, numRounds, b.String())

	resp, err := m.summarizer.Generate(ctx, []core.Message{
		{Role: core.RoleSystem, Content: "You are an assistant skilled at summarizing and extracting key information."},
		{Role: core.RoleUser, Content: prompt},
	}, nil, 1024)
	if err != nil {
		return fmt.Sprintf("[%d rounds of conversation history, extraction failed]", numRounds), nil
	}
	return resp.Content, nil
}
