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

// Package anthropicllm is the "native" llm.Client backend: a hand-rolled
// HTTP client against the Anthropic Messages API, translating core.Message
// to and from Anthropic's wire format. This mirrors the teacher's own
// non-SDK Anthropic provider.
package anthropicllm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/llm"
)

const defaultHost = "https://api.anthropic.com"
const anthropicVersion = "2023-06-01"

// Config configures a Client.
type Config struct {
	APIKey      string
	Model       string
	Host        string // defaults to https://api.anthropic.com
	Temperature float64
	MaxTokens   int // provider ceiling
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Client is the native Anthropic llm.Client implementation.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger
}

// New constructs a Client. Returns an error if APIKey is empty — the core
// refuses to start an LLM call with an empty API key (spec §6).
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropicllm: API key is required")
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}, nil
}

// clampMaxTokens clamps maxTokens to the provider ceiling, logging a
// warning on adjustment (spec §6).
func (c *Client) clampMaxTokens(maxTokens int) int {
	clamped, adjusted := llm.ClampMaxTokens(maxTokens, c.cfg.MaxTokens)
	if adjusted {
		c.log.Warn("clamped max_tokens to provider ceiling",
			zap.Int("requested", maxTokens), zap.Int("ceiling", c.cfg.MaxTokens))
	}
	return clamped
}

func (c *Client) ModelName() string      { return c.cfg.Model }
func (c *Client) MaxTokenCeiling() int    { return c.cfg.MaxTokens }

// --- wire types -------------------------------------------------------

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type wireContent struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []wireContent
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
	System      string        `json:"system,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type wireResponse struct {
	Content    []wireContent `json:"content"`
	StopReason string        `json:"stop_reason"`
	Usage      wireUsage     `json:"usage"`
	Error      *wireError    `json:"error,omitempty"`
}

type wireDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type wireStreamEvent struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	Delta        *wireDelta   `json:"delta,omitempty"`
	ContentBlock *wireContent `json:"content_block,omitempty"`
	Usage        *wireUsage   `json:"usage,omitempty"`
}

// buildRequest translates core.Message history into Anthropic's wire shape.
// System messages are pulled out into the top-level "system" field, tool
// results become user messages carrying a tool_result block, and assistant
// tool calls become tool_use blocks alongside any accompanying text.
func (c *Client) buildRequest(messages []core.Message, stream bool, tools []llm.ToolDefinition, maxTokens int) wireRequest {
	var system strings.Builder
	wireMessages := make([]wireMessage, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)
		case core.RoleTool:
			wireMessages = append(wireMessages, wireMessage{
				Role: "user",
				Content: []wireContent{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
		case core.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				wireMessages = append(wireMessages, wireMessage{Role: "assistant", Content: msg.Content})
				continue
			}
			blocks := make([]wireContent, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, wireContent{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, wireContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
			}
			wireMessages = append(wireMessages, wireMessage{Role: "assistant", Content: blocks})
		default:
			wireMessages = append(wireMessages, wireMessage{Role: string(msg.Role), Content: msg.Content})
		}
	}

	req := wireRequest{
		Model:       c.cfg.Model,
		Messages:    wireMessages,
		MaxTokens:   maxTokens,
		Temperature: c.cfg.Temperature,
		Stream:      stream,
		System:      system.String(),
	}
	if len(tools) > 0 {
		wireTools := make([]wireTool, len(tools))
		for i, t := range tools {
			wireTools[i] = wireTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters}
		}
		req.Tools = wireTools
	}
	return req
}

// Generate performs one blocking call against the Anthropic Messages API.
func (c *Client) Generate(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (*core.LLMResponse, error) {
	clamped := c.clampMaxTokens(maxTokens)
	req := c.buildRequest(messages, false, tools, clamped)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("anthropicllm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropicllm: build request: %w", err)
	}
	c.setHeaders(httpReq, false)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropicllm: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropicllm: status %d: %s", resp.StatusCode, string(respBody))
	}

	var wr wireResponse
	if err := json.Unmarshal(respBody, &wr); err != nil {
		return nil, fmt.Errorf("anthropicllm: decode response: %w", err)
	}
	if wr.Error != nil {
		return nil, fmt.Errorf("anthropicllm: api error: %s", wr.Error.Message)
	}

	return toLLMResponse(wr), nil
}

func toLLMResponse(wr wireResponse) *core.LLMResponse {
	var text strings.Builder
	var toolCalls []core.ToolCall
	for _, block := range wr.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, core.ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
		}
	}

	reason := core.FinishStop
	if len(toolCalls) > 0 {
		reason = core.FinishToolUse
	} else if wr.StopReason == "max_tokens" {
		reason = core.FinishMaxTokens
	}

	return &core.LLMResponse{
		Content:      text.String(),
		ToolCalls:    toolCalls,
		FinishReason: reason,
		Usage:        core.TokenUsage{InputTokens: wr.Usage.InputTokens, OutputTokens: wr.Usage.OutputTokens},
	}
}

func (c *Client) setHeaders(req *http.Request, streaming bool) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	if streaming {
		req.Header.Set("Accept", "text/event-stream")
	}
}

// GenerateStream performs one streaming call, emitting llm.StreamEvent
// values as SSE content_block_delta events arrive.
func (c *Client) GenerateStream(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (<-chan llm.StreamEvent, error) {
	clamped := c.clampMaxTokens(maxTokens)
	req := c.buildRequest(messages, true, tools, clamped)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("anthropicllm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropicllm: build request: %w", err)
	}
	c.setHeaders(httpReq, true)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropicllm: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropicllm: status %d: %s", resp.StatusCode, string(respBody))
	}

	out := make(chan llm.StreamEvent, 64)
	go c.pumpStream(ctx, resp.Body, out)
	return out, nil
}

type accumulatingToolCall struct {
	id, name string
	rawArgs  strings.Builder
}

func (c *Client) pumpStream(ctx context.Context, body io.ReadCloser, out chan<- llm.StreamEvent) {
	defer close(out)
	defer body.Close()

	toolCalls := make(map[int]*accumulatingToolCall)
	order := make([]int, 0, 4)
	var text strings.Builder
	var usage core.TokenUsage

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			out <- llm.StreamEvent{Type: llm.StreamError, Err: ctx.Err()}
			return
		default:
		}

		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var ev wireStreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			out <- llm.StreamEvent{Type: llm.StreamError, Err: fmt.Errorf("anthropicllm: decode stream event: %w", err)}
			return
		}

		switch ev.Type {
		case "content_block_start":
			if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
				toolCalls[ev.Index] = &accumulatingToolCall{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
				order = append(order, ev.Index)
			}
		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			if ev.Delta.Text != "" {
				text.WriteString(ev.Delta.Text)
				out <- llm.StreamEvent{Type: llm.StreamContentDelta, Delta: ev.Delta.Text}
			}
			if ev.Delta.PartialJSON != "" {
				if tc, ok := toolCalls[ev.Index]; ok {
					tc.rawArgs.WriteString(ev.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			if tc, ok := toolCalls[ev.Index]; ok {
				args := map[string]any{}
				raw := tc.rawArgs.String()
				if raw != "" {
					// Malformed JSON at end-of-block yields an empty-argument
					// ToolCall; the tool then reports invalid arguments and
					// that error is fed back to the LLM (spec §9).
					_ = json.Unmarshal([]byte(raw), &args)
				}
				call := core.ToolCall{ID: tc.id, Name: tc.name, Arguments: args}
				out <- llm.StreamEvent{Type: llm.StreamToolUse, ToolCall: &call}
			}
		case "message_delta":
			if ev.Usage != nil {
				usage.OutputTokens = ev.Usage.OutputTokens
			}
		case "message_start":
			if ev.Usage != nil {
				usage.InputTokens = ev.Usage.InputTokens
			}
		}
	}

	if err := scanner.Err(); err != nil {
		out <- llm.StreamEvent{Type: llm.StreamError, Err: fmt.Errorf("anthropicllm: stream read: %w", err)}
		return
	}

	finalCalls := make([]core.ToolCall, 0, len(order))
	for _, idx := range order {
		tc := toolCalls[idx]
		args := map[string]any{}
		if raw := tc.rawArgs.String(); raw != "" {
			_ = json.Unmarshal([]byte(raw), &args)
		}
		finalCalls = append(finalCalls, core.ToolCall{ID: tc.id, Name: tc.name, Arguments: args})
	}

	reason := core.FinishStop
	if len(finalCalls) > 0 {
		reason = core.FinishToolUse
	}

	out <- llm.StreamEvent{Type: llm.StreamDone, Response: &core.LLMResponse{
		Content:      text.String(),
		ToolCalls:    finalCalls,
		FinishReason: reason,
		Usage:        usage,
	}}
}

var _ llm.Client = (*Client)(nil)
