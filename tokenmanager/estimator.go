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

// Package tokenmanager estimates token usage for message histories and
// compresses history that has grown past a round or token budget, extracting
// a persisted "core memory" summary via a side LLM call.
package tokenmanager

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/agentcore/orchestrator/core"
)

// charsPerTokenFallback approximates BPE token density when no encoding is
// available for a model (~2.5 characters per token).
const charsPerTokenFallback = 2.5

const messageOverheadTokens = 4

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.RWMutex
)

// Estimator counts tokens for a message history using a per-model tiktoken
// encoding, falling back to character-based estimation if no encoding can be
// resolved for the model (or if tiktoken's data files are unavailable).
type Estimator struct {
	encoding  *tiktoken.Tiktoken
	model     string
	available bool
}

// NewEstimator resolves (and caches) the encoding for model, defaulting to
// cl100k_base when the model has no direct mapping.
func NewEstimator(model string) *Estimator {
	encodingCacheMu.RLock()
	cached, ok := encodingCache[model]
	encodingCacheMu.RUnlock()
	if ok {
		return &Estimator{encoding: cached, model: model, available: true}
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return &Estimator{model: model, available: false}
	}

	encodingCacheMu.Lock()
	encodingCache[model] = enc
	encodingCacheMu.Unlock()

	return &Estimator{encoding: enc, model: model, available: true}
}

// Count estimates the token count of one message, including its content,
// reasoning, and any tool calls, plus a small fixed per-message overhead.
func (e *Estimator) Count(msg core.Message) int {
	if !e.available {
		return e.countFallback(msg)
	}

	total := messageOverheadTokens
	total += len(e.encoding.Encode(msg.Content, nil, nil))
	if msg.Reasoning != "" {
		total += len(e.encoding.Encode(msg.Reasoning, nil, nil))
	}
	if len(msg.ToolCalls) > 0 {
		total += len(e.encoding.Encode(fmt.Sprintf("%v", msg.ToolCalls), nil, nil))
	}
	return total
}

func (e *Estimator) countFallback(msg core.Message) int {
	chars := len(msg.Content) + len(msg.Reasoning)
	if len(msg.ToolCalls) > 0 {
		chars += len(fmt.Sprintf("%v", msg.ToolCalls))
	}
	return messageOverheadTokens + int(float64(chars)/charsPerTokenFallback)
}

// CountAll sums Count across an entire history.
func (e *Estimator) CountAll(messages []core.Message) int {
	total := 0
	for _, msg := range messages {
		total += e.Count(msg)
	}
	return total
}

// Available reports whether a real BPE encoding backs this estimator, as
// opposed to the character-based fallback.
func (e *Estimator) Available() bool { return e.available }
