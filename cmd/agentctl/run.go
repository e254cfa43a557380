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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/agentcore/orchestrator/agent"
	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/runlog"
	"github.com/agentcore/orchestrator/session"
	"github.com/agentcore/orchestrator/spawnagent"
	"github.com/agentcore/orchestrator/tool"
)

// RunCmd runs a single agent against one message, recording the turn under
// an optional session so follow-up invocations see prior history.
type RunCmd struct {
	Message     string `arg:"" help:"The user message to send."`
	SessionID   string `help:"Session id to record this run under and read history from."`
	UserID      string `help:"User id to attach to the session."`
	MaxSteps    int    `help:"Override the configured agent.max_steps for this run."`
	NumHistory  int    `help:"Number of prior runs to replay as context." default:"5"`
	EnableSpawn bool   `name:"enable-spawn" help:"Allow this agent to spawn sub-agents."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, err := loadConfig(cli.Config, cli.LogLevel)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	llmClient, err := buildLLMClient(ctx, cfg.LLM, logger)
	if err != nil {
		return err
	}

	sessions, err := buildSessionManager(cfg.Session)
	if err != nil {
		return err
	}

	sink, err := buildRunLogSink(cfg.RunLog)
	if err != nil {
		return err
	}
	defer sink.Close()

	maxSteps := cfg.Agent.MaxSteps
	if c.MaxSteps > 0 {
		maxSteps = c.MaxSteps
	}

	var history []core.Message
	if c.SessionID != "" {
		turns, err := sessions.GetHistoryMessages(ctx, c.SessionID, c.NumHistory, 4000, true)
		if err != nil {
			return fmt.Errorf("agentctl: load history: %w", err)
		}
		for _, turn := range turns {
			history = append(history,
				core.Message{Role: core.RoleUser, Content: turn.UserMessage},
				core.Message{Role: core.RoleAssistant, Content: turn.Response},
			)
		}
	}

	tools := tool.NewRegistry()
	runID := session.NewRunID()
	runLogger := runlog.New(sink, runID)

	if c.EnableSpawn && cfg.SpawnAgent.Enabled {
		if err := tools.Register(spawnagent.New(spawnagent.Config{
			LLM:             llmClient,
			ParentTools:     tools,
			WorkspaceDir:    cfg.Workspace.Dir,
			CurrentDepth:    0,
			MaxDepth:        cfg.SpawnAgent.MaxDepth,
			Logger:          logger,
			RunLog:          runLogger,
			DefaultMaxSteps: cfg.SpawnAgent.DefaultMaxSteps,
			TokenManager:    buildTokenManager(llmClient, cfg.TokenManager),
		})); err != nil {
			return fmt.Errorf("agentctl: register spawn_agent tool: %w", err)
		}
	}

	a := agent.New(agent.Config{
		LLM:             llmClient,
		Tools:           tools,
		TokenManager:    buildTokenManager(llmClient, cfg.TokenManager),
		Logger:          logger,
		RunLog:          runLogger,
		WorkspaceDir:    cfg.Workspace.Dir,
		ToolOutputLimit: cfg.Agent.ToolOutputLimit,
		LLMTimeout:      120 * time.Second,
	})

	runLogger.Start(c.Message)
	result, err := a.Run(ctx, c.Message, history, agent.Limits{MaxSteps: maxSteps})
	if err != nil {
		runLogger.Finish("error", false, "")
		return fmt.Errorf("agentctl: run failed: %w", err)
	}
	success := result.Reason == agent.ReasonTaskCompleted
	runLogger.Finish(string(result.Reason), success, result.Content)

	if c.SessionID != "" {
		if _, err := sessions.AddRun(ctx, session.AddRunInput{
			SessionID:   c.SessionID,
			UserID:      c.UserID,
			RunnerType:  session.RunnerAgent,
			UserMessage: c.Message,
			Response:    result.Content,
			Success:     success,
			Reason:      string(result.Reason),
			Steps:       result.Steps,
		}); err != nil {
			return fmt.Errorf("agentctl: record session run: %w", err)
		}
	}

	fmt.Println(result.Content)
	return nil
}
