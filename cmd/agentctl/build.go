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
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/agentcore/orchestrator/config"
	"github.com/agentcore/orchestrator/llm"
	"github.com/agentcore/orchestrator/llm/anthropicllm"
	"github.com/agentcore/orchestrator/llm/geminillm"
	"github.com/agentcore/orchestrator/runlog"
	"github.com/agentcore/orchestrator/session"
	"github.com/agentcore/orchestrator/tokenmanager"
)

func buildLogger(level string, development bool) (*zap.Logger, error) {
	var zcfg zap.Config
	if development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("agentctl: invalid log level %q: %w", level, err)
	}
	return zcfg.Build()
}

func buildLLMClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (llm.Client, error) {
	switch cfg.Provider {
	case "gemini":
		return geminillm.New(ctx, geminillm.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Logger:      logger,
		})
	default:
		return anthropicllm.New(anthropicllm.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Host:        cfg.Host,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Logger:      logger,
		})
	}
}

func buildTokenManager(summarizer llm.Client, cfg config.TokenManagerConfig) *tokenmanager.Manager {
	return tokenmanager.New(summarizer, tokenmanager.Config{
		TokenLimit:           cfg.TokenLimit,
		EnableSummarization:  cfg.EnableSummarization,
		SummarizeAfterRounds: cfg.SummarizeAfterRounds,
	})
}

func buildSessionManager(cfg config.SessionConfig) (session.Manager, error) {
	switch cfg.Backend {
	case "sql":
		db, err := sql.Open(driverNameFor(cfg.SQLDialect), cfg.SQLDSN)
		if err != nil {
			return nil, fmt.Errorf("agentctl: open sql session store: %w", err)
		}
		return session.NewSQLManager(db, cfg.SQLDialect, cfg.LeaderOnlyHistory)
	case "etcd":
		client, err := clientv3.New(clientv3.Config{Endpoints: cfg.EtcdEndpoints})
		if err != nil {
			return nil, fmt.Errorf("agentctl: connect etcd: %w", err)
		}
		return session.NewEtcdManager(client, cfg.EtcdKeyPrefix, cfg.LeaderOnlyHistory)
	default:
		return session.NewFileManager(cfg.FilePath, cfg.LeaderOnlyHistory)
	}
}

// driverNameFor maps a dialect name to its registered database/sql driver
// name; the sqlite3/pq/mysql drivers are blank-imported above solely to
// register themselves.
func driverNameFor(dialect string) string {
	switch dialect {
	case "postgres":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return "sqlite3"
	}
}

func buildRunLogSink(cfg config.RunLogConfig) (runlog.Sink, error) {
	var sink runlog.Sink
	switch cfg.Backend {
	case "file":
		fileSink, err := runlog.NewFileSink(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("agentctl: build file run-log sink: %w", err)
		}
		sink = fileSink
	case "etcd":
		client, err := clientv3.New(clientv3.Config{Endpoints: cfg.EtcdEndpoints})
		if err != nil {
			return nil, fmt.Errorf("agentctl: connect etcd for run log: %w", err)
		}
		kvSink, err := runlog.NewKVSink(client, cfg.EtcdKeyPrefix)
		if err != nil {
			return nil, err
		}
		sink = kvSink
	default:
		sink = runlog.NoopSink{}
	}

	if cfg.MetricsEnabled {
		return runlog.NewMetrics(prometheus.DefaultRegisterer, cfg.MetricsNamespace, sink), nil
	}
	return sink, nil
}
