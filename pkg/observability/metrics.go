// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability provides the runtime's metric counters.
//
// Every budget drop, overflow, override and failure path in the pipeline
// increments a named counter here instead of surfacing a user error.
// Counters are cheap atomic increments; a snapshot is logged at shutdown.
package observability

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Counter names used across the pipeline. Kept in one place so tests and
// dashboards agree on spelling.
const (
	MetricBusOverflow       = "bus_overflow"
	MetricBusDisplaced      = "bus_displaced"
	MetricAckOverride       = "ack_override"
	MetricAckBlocked        = "ack_blocked"
	MetricThoughtMaxDepth   = "thought_max_depth"
	MetricThoughtOverBudget = "thought_over_budget"
	MetricThoughtDuplicate  = "thought_duplicate"
	MetricFilterFailure     = "filter_failure"
	MetricNeuronFailure     = "neuron_failure"
	MetricMalformedSignal   = "malformed_signal"
	MetricCognitionFailure  = "cognition_failure"
	MetricToolOverBudget    = "tool_over_budget"
	MetricIntentRejected    = "intent_rejected"
	MetricStateUpdate       = "state_update"
	MetricMessageSent       = "message_sent"
	MetricLLMCall           = "llm_call"
	MetricTickCompleted     = "tick_completed"
	MetricCognitionSkipped  = "cognition_skipped"
)

// Metrics is a concurrency-safe registry of named monotonic counters.
type Metrics struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]*atomic.Int64)}
}

// Inc increments the named counter by one.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

// Add increments the named counter by delta.
func (m *Metrics) Add(name string, delta int64) {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		if c, ok = m.counters[name]; !ok {
			c = &atomic.Int64{}
			m.counters[name] = c
		}
		m.mu.Unlock()
	}
	c.Add(delta)
}

// Get returns the current value of the named counter (0 if never touched).
func (m *Metrics) Get(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counters[name]; ok {
		return c.Load()
	}
	return 0
}

// Snapshot returns a copy of all counter values.
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := make(map[string]int64, len(m.counters))
	for name, c := range m.counters {
		snap[name] = c.Load()
	}
	return snap
}

// Flush logs the full counter snapshot. Called once on graceful shutdown.
func (m *Metrics) Flush(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	snap := m.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]zap.Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, zap.Int64(name, snap[name]))
	}
	logger.Info("metrics_flush", fields...)
}
