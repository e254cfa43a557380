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

package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Sink receives every Event as it is emitted and optionally a run summary
// once the run completes. Implementations must not block the step loop for
// long (spec §4.7).
type Sink interface {
	Write(e Event) error
	Summary(runID string, summary map[string]any) error
	Close() error
}

// NoopSink discards everything; the default when no logging is configured.
type NoopSink struct{}

func (NoopSink) Write(Event) error                       { return nil }
func (NoopSink) Summary(string, map[string]any) error    { return nil }
func (NoopSink) Close() error                            { return nil }

var _ Sink = NoopSink{}

// FileSink writes one append-only JSON-Lines file per run
// (<log_dir>/<run_id>.jsonl) plus a <run_id>.summary.json for fast
// indexing (spec §6's on-disk layout for run logs).
type FileSink struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewFileSink constructs a FileSink writing under dir, creating it if
// necessary.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runlog: mkdir %s: %w", dir, err)
	}
	return &FileSink{dir: dir, files: make(map[string]*os.File)}, nil
}

func (s *FileSink) fileFor(runID string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.files[runID]; ok {
		return f, nil
	}
	f, err := os.OpenFile(filepath.Join(s.dir, runID+".jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runlog: open run log: %w", err)
	}
	s.files[runID] = f
	return f, nil
}

func (s *FileSink) Write(e Event) error {
	f, err := s.fileFor(e.RunID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("runlog: encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("runlog: write event: %w", err)
	}
	return nil
}

func (s *FileSink) Summary(runID string, summary map[string]any) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("runlog: encode summary: %w", err)
	}
	path := filepath.Join(s.dir, runID+".summary.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("runlog: write summary: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Sink = (*FileSink)(nil)

// KVSink writes every event, and the final summary, under a key-value
// store keyed by run_id + event index (spec §4.7's "key-value store"
// sink). It reuses the same etcd client/v3 dependency session/'s
// EtcdManager is built on — storage only, not coordination.
type KVSink struct {
	client    *clientv3.Client
	keyPrefix string
}

// NewKVSink wraps an already-connected etcd client.
func NewKVSink(client *clientv3.Client, keyPrefix string) (*KVSink, error) {
	if client == nil {
		return nil, fmt.Errorf("runlog: etcd client is required")
	}
	if keyPrefix == "" {
		keyPrefix = "/orchestrator/runlogs/"
	}
	return &KVSink{client: client, keyPrefix: keyPrefix}, nil
}

func (s *KVSink) Write(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("runlog: encode event: %w", err)
	}
	key := fmt.Sprintf("%s%s/events/%08d", s.keyPrefix, e.RunID, e.Index)
	if _, err := s.client.Put(context.Background(), key, string(data)); err != nil {
		return fmt.Errorf("runlog: etcd put event: %w", err)
	}
	return nil
}

func (s *KVSink) Summary(runID string, summary map[string]any) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("runlog: encode summary: %w", err)
	}
	key := fmt.Sprintf("%s%s/summary", s.keyPrefix, runID)
	if _, err := s.client.Put(context.Background(), key, string(data)); err != nil {
		return fmt.Errorf("runlog: etcd put summary: %w", err)
	}
	return nil
}

func (s *KVSink) Close() error { return nil }

var _ Sink = (*KVSink)(nil)
