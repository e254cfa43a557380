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
	"strings"

	"github.com/agentcore/orchestrator/runlog"
	"github.com/agentcore/orchestrator/session"
	"github.com/agentcore/orchestrator/team"
	"github.com/agentcore/orchestrator/tool"
)

// TeamCmd runs a leader agent that delegates to a fixed member roster.
// Members are given on the command line as "id=a,name=Researcher,role=researcher"
// triples rather than a separate config file, keeping the CLI self-contained.
type TeamCmd struct {
	Message       string   `arg:"" help:"The task message to send to the team leader."`
	Name          string   `help:"Team name." default:"team"`
	Description   string   `help:"Team description shown to the leader." default:"A team of specialized agents."`
	Member        []string `help:"Member spec: id=<id>,name=<name>,role=<role>. Repeatable." required:""`
	DelegateToAll bool     `name:"delegate-to-all" help:"Broadcast the task to every member instead of picking one."`
	SessionID     string   `help:"Session id to record this run under."`
	UserID        string   `help:"User id to attach to the session."`
	MaxSteps      int      `help:"Override the configured agent.max_steps for the leader run."`
	NumHistory    int      `help:"Number of prior leader runs to replay as context." default:"5"`
}

func parseMemberSpec(spec string) (team.MemberConfig, error) {
	var m team.MemberConfig
	for _, field := range strings.Split(spec, ",") {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			return m, fmt.Errorf("agentctl: invalid member spec %q (want id=...,name=...,role=...)", spec)
		}
		switch strings.TrimSpace(kv[0]) {
		case "id":
			m.ID = strings.TrimSpace(kv[1])
		case "name":
			m.Name = strings.TrimSpace(kv[1])
		case "role":
			m.Role = strings.TrimSpace(kv[1])
		case "instructions":
			m.Instructions = strings.TrimSpace(kv[1])
		}
	}
	if m.ID == "" {
		return m, fmt.Errorf("agentctl: member spec %q is missing id=", spec)
	}
	return m, nil
}

func (c *TeamCmd) Run(cli *CLI) error {
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

	members := make([]team.MemberConfig, 0, len(c.Member))
	for _, spec := range c.Member {
		m, err := parseMemberSpec(spec)
		if err != nil {
			return err
		}
		members = append(members, m)
	}

	maxSteps := cfg.Agent.MaxSteps
	if c.MaxSteps > 0 {
		maxSteps = c.MaxSteps
	}

	runID := session.NewRunID()
	runLogger := runlog.New(sink, runID)
	runLogger.Start(c.Message)

	t := team.New(team.Options{
		TeamConfig: team.Config{
			Name:          c.Name,
			Description:   c.Description,
			Members:       members,
			DelegateToAll: c.DelegateToAll,
		},
		LLM:                llmClient,
		AvailableTools:     tool.NewRegistry(),
		WorkspaceDir:       cfg.Workspace.Dir,
		Sessions:           sessions,
		TokenManager:       buildTokenManager(llmClient, cfg.TokenManager),
		Logger:             logger,
		RunLog:             runLogger,
		EnableSpawnAgent:   cfg.SpawnAgent.Enabled,
		SpawnAgentMaxDepth: cfg.SpawnAgent.MaxDepth,
		SpawnAgentMaxSteps: cfg.SpawnAgent.DefaultMaxSteps,
	})

	result, err := t.Run(ctx, c.Message, maxSteps, c.SessionID, c.UserID, c.NumHistory)
	if err != nil {
		runLogger.Finish("error", false, "")
		return fmt.Errorf("agentctl: team run failed: %w", err)
	}
	runLogger.Finish("completed", result.Success, result.Message)

	fmt.Println(result.Message)
	for _, mr := range result.MemberRuns {
		status := "ok"
		if !mr.Success {
			status = "failed: " + mr.Error
		}
		fmt.Printf("  - %s (%s): %s\n", mr.MemberName, mr.MemberID, status)
	}
	return nil
}
