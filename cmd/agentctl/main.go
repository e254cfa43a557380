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

// Command agentctl is the CLI front end for the agent orchestration core:
// run a single agent, run a team of delegating agents, or inspect a
// session's recorded runs.
//
// Usage:
//
//	agentctl run --config config.yaml "summarize this repo"
//	agentctl team --config config.yaml --member id=a,name=Researcher,role=researcher "research asyncio"
//	agentctl sessions show --config config.yaml sess-123
package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/agentcore/orchestrator/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Run a single agent against a message."`
	Team     TeamCmd     `cmd:"" help:"Run a team of delegating agents against a message."`
	Sessions SessionsCmd `cmd:"" help:"Inspect recorded session runs."`

	Config   string `short:"c" help:"Path to a YAML config file. Falls back to environment-variable zero-config." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentctl"),
		kong.Description("Agent orchestration core — single-agent, team, and session CLI."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

func loadConfig(path, logLevel string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("agentctl: %w", err)
		}
	} else {
		cfg = config.CreateZeroConfig(config.ZeroConfigOptions{})
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agentctl: invalid configuration: %w", err)
	}
	return cfg, nil
}
