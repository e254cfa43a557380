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

// Package geminillm is the "multi-provider adapter" llm.Client backend: it
// wraps the official google.golang.org/genai SDK instead of hand-rolling
// HTTP, the way a second provider in the same fleet typically would.
package geminillm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/llm"
)

// Config configures a Client.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      *zap.Logger
}

// Client is the google.golang.org/genai-backed llm.Client implementation.
type Client struct {
	client *genai.Client
	cfg    Config
	log    *zap.Logger
}

// New constructs a Client against the Gemini API.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("geminillm: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("geminillm: create client: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{client: client, cfg: cfg, log: log}, nil
}

func (c *Client) ModelName() string   { return c.cfg.Model }
func (c *Client) MaxTokenCeiling() int { return c.cfg.MaxTokens }

// buildContents translates core.Message history into Gemini Content parts.
// System messages are hoisted into a separate system instruction, since
// genai models that path distinctly from the conversation turns.
func (c *Client) buildContents(messages []core.Message) ([]*genai.Content, *genai.Content) {
	var system *genai.Content
	var systemText string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			if systemText != "" {
				systemText += "\n\n"
			}
			systemText += msg.Content

		case core.RoleTool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.ToolName,
						Response: map[string]any{"result": msg.Content},
					},
				}},
			})

		case core.RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Arguments},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			}

		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	if systemText != "" {
		system = &genai.Content{Parts: []*genai.Part{{Text: systemText}}}
	}
	return contents, system
}

func (c *Client) buildConfig(maxTokens int, systemInstruction *genai.Content, tools []llm.ToolDefinition) *genai.GenerateContentConfig {
	clamped, adjusted := llm.ClampMaxTokens(maxTokens, c.cfg.MaxTokens)
	if adjusted {
		c.log.Warn("clamped max_tokens to provider ceiling",
			zap.Int("requested", maxTokens), zap.Int("ceiling", c.cfg.MaxTokens))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		MaxOutputTokens:   int32(clamped),
	}
	if c.cfg.Temperature > 0 {
		t := float32(c.cfg.Temperature)
		cfg.Temperature = &t
	}
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(tools))
		for i, t := range tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

// Generate performs one blocking call against the Gemini API.
func (c *Client) Generate(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (*core.LLMResponse, error) {
	contents, system := c.buildContents(messages)
	config := c.buildConfig(maxTokens, system, tools)

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("geminillm: generate: %w", err)
	}
	return parseResponse(resp)
}

func parseResponse(resp *genai.GenerateContentResponse) (*core.LLMResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("geminillm: empty response")
	}
	candidate := resp.Candidates[0]

	out := &core.LLMResponse{FinishReason: mapFinishReason(candidate.FinishReason)}
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				out.Content += part.Text
			}
			if part.FunctionCall != nil {
				out.ToolCalls = append(out.ToolCalls, core.ToolCall{
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				})
			}
		}
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = core.FinishToolUse
	}
	if resp.UsageMetadata != nil {
		out.Usage = core.TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func mapFinishReason(reason genai.FinishReason) core.FinishReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return core.FinishMaxTokens
	default:
		return core.FinishStop
	}
}

// toGenaiSchema converts a JSON-Schema-shaped map (as produced by
// tool.SchemaFor) into genai's typed Schema, recursively.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(t)
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	return s
}

// GenerateStream performs one streaming call against the Gemini API,
// translating genai's iterator-based stream into llm.StreamEvent values.
func (c *Client) GenerateStream(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (<-chan llm.StreamEvent, error) {
	contents, system := c.buildContents(messages)
	config := c.buildConfig(maxTokens, system, tools)

	out := make(chan llm.StreamEvent, 64)
	go func() {
		defer close(out)

		var text string
		var toolCalls []core.ToolCall
		var usage core.TokenUsage
		reason := core.FinishStop
		seenCalls := make(map[string]bool)

		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.cfg.Model, contents, config) {
			if err != nil {
				out <- llm.StreamEvent{Type: llm.StreamError, Err: fmt.Errorf("geminillm: stream: %w", err)}
				return
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			candidate := resp.Candidates[0]
			if candidate.FinishReason != "" {
				reason = mapFinishReason(candidate.FinishReason)
			}
			if resp.UsageMetadata != nil {
				usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
				usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					text += part.Text
					out <- llm.StreamEvent{Type: llm.StreamContentDelta, Delta: part.Text}
				}
				if part.FunctionCall != nil {
					id := part.FunctionCall.ID
					if id == "" {
						id = fmt.Sprintf("call-%d", len(toolCalls))
					}
					if seenCalls[id] {
						continue
					}
					seenCalls[id] = true
					call := core.ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: part.FunctionCall.Args}
					toolCalls = append(toolCalls, call)
					out <- llm.StreamEvent{Type: llm.StreamToolUse, ToolCall: &call}
				}
			}
		}

		if len(toolCalls) > 0 {
			reason = core.FinishToolUse
		}
		out <- llm.StreamEvent{Type: llm.StreamDone, Response: &core.LLMResponse{
			Content:      text,
			ToolCalls:    toolCalls,
			FinishReason: reason,
			Usage:        usage,
		}}
	}()
	return out, nil
}

var _ llm.Client = (*Client)(nil)
