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

package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/filter"
	"github.com/teradata-labs/vigil/pkg/neuron"
	"github.com/teradata-labs/vigil/pkg/schedule"
	"github.com/teradata-labs/vigil/pkg/signal"
	"github.com/teradata-labs/vigil/pkg/storage"
	"github.com/teradata-labs/vigil/pkg/tool"
)

// SignalSink accepts emitted signals; the bus implements it.
type SignalSink interface {
	Push(sig *signal.Signal) error
}

// Scope is the capability set handed to a plugin on activation. Every
// handle is stamped with the plugin's identity; a plugin cannot reach
// outside its namespace. Registrations are tracked so deactivation
// removes everything the plugin installed.
type Scope struct {
	pluginID string
	manifest Manifest

	storage   *storage.Namespaced
	scheduler *schedule.Runner
	sink      SignalSink
	neurons   *neuron.Registry
	filters   *filter.Chain
	tools     *tool.Registry
	logger    *zap.Logger
	timezone  *time.Location

	mu                sync.Mutex
	registeredNeurons []string
	registeredFilters []string
	registeredTools   []string
}

// Storage returns the plugin's private namespace, or an error without the
// storage permission.
func (s *Scope) Storage() (*storage.Namespaced, error) {
	if !s.manifest.Has(PermStorage) {
		return nil, fmt.Errorf("plugin %s lacks the %s permission", s.pluginID, PermStorage)
	}
	return s.storage, nil
}

// Schedule creates a wakeup owned by this plugin.
func (s *Scope) Schedule(ctx context.Context, fireAt time.Time, rec *signal.Recurrence, payload map[string]string) (string, error) {
	if !s.manifest.Has(PermSchedule) {
		return "", fmt.Errorf("plugin %s lacks the %s permission", s.pluginID, PermSchedule)
	}
	return s.scheduler.CreateEntryFor(ctx, s.creator(), fireAt, rec, payload)
}

// CancelSchedule removes one of this plugin's wakeups, reporting whether
// it existed. Entries owned by anyone else are invisible here.
func (s *Scope) CancelSchedule(ctx context.Context, id string) (bool, error) {
	if !s.manifest.Has(PermSchedule) {
		return false, fmt.Errorf("plugin %s lacks the %s permission", s.pluginID, PermSchedule)
	}
	return s.scheduler.CancelFor(ctx, s.creator(), id)
}

// Schedules lists this plugin's pending wakeups, ordered by fire time.
func (s *Scope) Schedules(ctx context.Context) ([]*schedule.Entry, error) {
	if !s.manifest.Has(PermSchedule) {
		return nil, fmt.Errorf("plugin %s lacks the %s permission", s.pluginID, PermSchedule)
	}
	return s.scheduler.SchedulesFor(ctx, s.creator())
}

// RegisterNeuron installs a neuron into the autonomic stage. It activates
// at the next tick boundary and is removed when the plugin deactivates.
func (s *Scope) RegisterNeuron(n neuron.Neuron) error {
	if !s.manifest.Has(PermNeurons) {
		return fmt.Errorf("plugin %s lacks the %s permission", s.pluginID, PermNeurons)
	}
	if s.neurons == nil {
		return fmt.Errorf("plugin %s: no neuron registry wired", s.pluginID)
	}
	if err := s.neurons.Register(n); err != nil {
		return err
	}
	s.mu.Lock()
	s.registeredNeurons = append(s.registeredNeurons, n.ID())
	s.mu.Unlock()
	return nil
}

// RegisterFilter appends a filter to the autonomic chain, removed when
// the plugin deactivates.
func (s *Scope) RegisterFilter(f filter.Filter) error {
	if !s.manifest.Has(PermFilters) {
		return fmt.Errorf("plugin %s lacks the %s permission", s.pluginID, PermFilters)
	}
	if s.filters == nil {
		return fmt.Errorf("plugin %s: no filter chain wired", s.pluginID)
	}
	if err := s.filters.Register(f); err != nil {
		return err
	}
	s.mu.Lock()
	s.registeredFilters = append(s.registeredFilters, f.ID())
	s.mu.Unlock()
	return nil
}

// RegisterTool exposes a tool to cognition and the motor stage, removed
// when the plugin deactivates.
func (s *Scope) RegisterTool(t tool.Tool) error {
	if !s.manifest.Has(PermTools) {
		return fmt.Errorf("plugin %s lacks the %s permission", s.pluginID, PermTools)
	}
	if s.tools == nil {
		return fmt.Errorf("plugin %s: no tool registry wired", s.pluginID)
	}
	s.tools.Register(t)
	s.mu.Lock()
	s.registeredTools = append(s.registeredTools, t.Name())
	s.mu.Unlock()
	return nil
}

// teardown removes everything the plugin registered through this scope.
func (s *Scope) teardown() {
	s.mu.Lock()
	neurons := s.registeredNeurons
	filters := s.registeredFilters
	tools := s.registeredTools
	s.registeredNeurons, s.registeredFilters, s.registeredTools = nil, nil, nil
	s.mu.Unlock()

	for _, id := range neurons {
		s.neurons.Unregister(id)
	}
	for _, id := range filters {
		s.filters.Unregister(id)
	}
	for _, name := range tools {
		s.tools.Unregister(name)
	}
}

func (s *Scope) creator() string {
	return "plugin." + s.pluginID
}

// Emit pushes a signal into the pipeline under the plugin's identity.
// Plugins may not impersonate the user and may not claim HIGH priority;
// such signals are refused, not downgraded.
func (s *Scope) Emit(sig *signal.Signal) error {
	if !s.manifest.Has(PermEmit) {
		return fmt.Errorf("plugin %s lacks the %s permission", s.pluginID, PermEmit)
	}
	if sig.Type == signal.TypeUserMessage {
		return fmt.Errorf("plugin %s may not emit %s signals", s.pluginID, signal.TypeUserMessage)
	}
	if sig.Priority == signal.PriorityHigh {
		return fmt.Errorf("plugin %s may not emit high-priority signals", s.pluginID)
	}
	sig.Source = "plugin." + s.pluginID
	return s.sink.Push(sig)
}

// Logger returns a logger named after the plugin.
func (s *Scope) Logger() *zap.Logger {
	return s.logger
}

// Timezone returns the agent's home timezone for schedule math.
func (s *Scope) Timezone() *time.Location {
	return s.timezone
}
