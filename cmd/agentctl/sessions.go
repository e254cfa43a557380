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
)

// SessionsCmd inspects recorded session runs (spec §4.6).
type SessionsCmd struct {
	Show  SessionsShowCmd  `cmd:"" help:"Show every recorded run in a session."`
	Trim  SessionsTrimCmd  `cmd:"" help:"Keep only the last N runs of a session."`
	Purge SessionsPurgeCmd `cmd:"" help:"Delete sessions whose last update is older than a TTL."`
}

// SessionsShowCmd prints every RunRecord in a session.
type SessionsShowCmd struct {
	SessionID string `arg:"" help:"Session id to show."`
}

func (c *SessionsShowCmd) Run(cli *CLI) error {
	ctx := context.Background()
	cfg, err := loadConfig(cli.Config, cli.LogLevel)
	if err != nil {
		return err
	}
	sessions, err := buildSessionManager(cfg.Session)
	if err != nil {
		return err
	}

	runs, ok, err := sessions.GetSession(ctx, c.SessionID)
	if err != nil {
		return fmt.Errorf("agentctl: %w", err)
	}
	if !ok {
		fmt.Printf("session %q not found\n", c.SessionID)
		return nil
	}
	for _, r := range runs {
		fmt.Printf("[%s] %s (parent=%s) steps=%d success=%v\n  user: %s\n  response: %s\n",
			r.RunID, r.RunnerType, r.ParentRunID, r.Steps, r.Success, r.UserMessage, r.Response)
	}
	return nil
}

// SessionsTrimCmd keeps only the last N runs of a session (spec §4.6).
type SessionsTrimCmd struct {
	SessionID string `arg:"" help:"Session id to trim."`
	Keep      int    `help:"Number of most recent runs to keep." default:"20"`
}

func (c *SessionsTrimCmd) Run(cli *CLI) error {
	ctx := context.Background()
	cfg, err := loadConfig(cli.Config, cli.LogLevel)
	if err != nil {
		return err
	}
	sessions, err := buildSessionManager(cfg.Session)
	if err != nil {
		return err
	}
	if err := sessions.TrimSessionRuns(ctx, c.SessionID, c.Keep); err != nil {
		return fmt.Errorf("agentctl: %w", err)
	}
	fmt.Printf("trimmed session %q to the last %d runs\n", c.SessionID, c.Keep)
	return nil
}

// SessionsPurgeCmd deletes sessions that have not been updated in maxAgeDays.
type SessionsPurgeCmd struct {
	MaxAgeDays int `help:"Delete sessions whose last update is older than this many days." default:"30"`
}

func (c *SessionsPurgeCmd) Run(cli *CLI) error {
	ctx := context.Background()
	cfg, err := loadConfig(cli.Config, cli.LogLevel)
	if err != nil {
		return err
	}
	sessions, err := buildSessionManager(cfg.Session)
	if err != nil {
		return err
	}
	n, err := sessions.CleanupOldSessions(ctx, c.MaxAgeDays)
	if err != nil {
		return fmt.Errorf("agentctl: %w", err)
	}
	fmt.Printf("purged %d stale session(s)\n", n)
	return nil
}
