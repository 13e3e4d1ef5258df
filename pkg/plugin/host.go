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
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/filter"
	"github.com/teradata-labs/vigil/pkg/neuron"
	"github.com/teradata-labs/vigil/pkg/schedule"
	"github.com/teradata-labs/vigil/pkg/storage"
	"github.com/teradata-labs/vigil/pkg/tool"
)

// Plugin is the contract compiled-in extensions implement. The host drives
// the lifecycle; a plugin only ever acts through its Scope.
type Plugin interface {
	// Manifest returns the plugin's self-description, validated by the
	// host before activation.
	Manifest() Manifest

	// Activate starts the plugin with its scoped capabilities.
	Activate(ctx context.Context, scope *Scope) error

	// Deactivate stops the plugin and releases its resources.
	Deactivate(ctx context.Context) error

	// HealthCheck reports whether the plugin is functioning.
	HealthCheck(ctx context.Context) error
}

// HostConfig wires the host's shared dependencies. Neurons, Filters and
// Tools back the registration permissions; a nil registry refuses the
// matching calls.
type HostConfig struct {
	Store     storage.Store
	Scheduler *schedule.Runner
	Sink      SignalSink
	Neurons   *neuron.Registry
	Filters   *filter.Chain
	Tools     *tool.Registry
	Timezone  *time.Location
	Logger    *zap.Logger
}

// Host owns plugin activation, deactivation, health sweeps and the
// manifest directory watcher.
type Host struct {
	config HostConfig
	logger *zap.Logger

	mu     sync.RWMutex
	active map[string]*activePlugin

	watcher *fsnotify.Watcher
	done    chan struct{}
}

type activePlugin struct {
	plugin   Plugin
	manifest Manifest
	scope    *Scope
}

// NewHost creates a plugin host.
func NewHost(config HostConfig) *Host {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	return &Host{
		config: config,
		logger: config.Logger,
		active: make(map[string]*activePlugin),
	}
}

// Activate validates the plugin's manifest and starts it. A failing
// manifest, duplicate id, or Activate error refuses the plugin entirely;
// there is no partially active state.
func (h *Host) Activate(ctx context.Context, p Plugin) error {
	manifest := p.Manifest()
	raw, err := manifestJSON(manifest)
	if err != nil {
		return err
	}
	validated, err := ParseManifest(raw)
	if err != nil {
		return fmt.Errorf("plugin refused: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.active[validated.ID]; exists {
		return fmt.Errorf("plugin refused: id %q already active", validated.ID)
	}

	scope := &Scope{
		pluginID:  validated.ID,
		manifest:  *validated,
		storage:   storage.InNamespace(h.config.Store, "plugin."+validated.ID),
		scheduler: h.config.Scheduler,
		sink:      h.config.Sink,
		neurons:   h.config.Neurons,
		filters:   h.config.Filters,
		tools:     h.config.Tools,
		logger:    h.logger.Named("plugin." + validated.ID),
		timezone:  h.config.Timezone,
	}
	if err := p.Activate(ctx, scope); err != nil {
		return fmt.Errorf("plugin %s failed to activate: %w", validated.ID, err)
	}

	h.active[validated.ID] = &activePlugin{plugin: p, manifest: *validated, scope: scope}
	h.logger.Info("plugin_activated",
		zap.String("plugin_id", validated.ID),
		zap.String("version", validated.Version),
		zap.Strings("permissions", validated.Permissions))
	return nil
}

// Deactivate stops a plugin and removes its scheduled wakeups.
func (h *Host) Deactivate(ctx context.Context, id string) error {
	h.mu.Lock()
	entry, ok := h.active[id]
	if ok {
		delete(h.active, id)
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugin %q is not active", id)
	}

	if err := entry.plugin.Deactivate(ctx); err != nil {
		h.logger.Warn("plugin_deactivate_failed",
			zap.String("plugin_id", id), zap.Error(err))
	}
	entry.scope.teardown()
	if h.config.Scheduler != nil {
		if removed, err := h.config.Scheduler.RemoveCreator(ctx, "plugin."+id); err != nil {
			h.logger.Warn("plugin_schedule_cleanup_failed",
				zap.String("plugin_id", id), zap.Error(err))
		} else if removed > 0 {
			h.logger.Debug("plugin_schedules_removed",
				zap.String("plugin_id", id), zap.Int("count", removed))
		}
	}
	h.logger.Info("plugin_deactivated", zap.String("plugin_id", id))
	return nil
}

// DeactivateAll stops every active plugin, used on shutdown.
func (h *Host) DeactivateAll(ctx context.Context) {
	for _, id := range h.Active() {
		_ = h.Deactivate(ctx, id)
	}
}

// Active lists active plugin ids, sorted.
func (h *Host) Active() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.active))
	for id := range h.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HealthSweep checks every active plugin and returns the failures.
func (h *Host) HealthSweep(ctx context.Context) map[string]error {
	h.mu.RLock()
	plugins := make(map[string]Plugin, len(h.active))
	for id, entry := range h.active {
		plugins[id] = entry.plugin
	}
	h.mu.RUnlock()

	failures := make(map[string]error)
	for id, p := range plugins {
		if err := p.HealthCheck(ctx); err != nil {
			failures[id] = err
			h.logger.Warn("plugin_unhealthy",
				zap.String("plugin_id", id), zap.Error(err))
		}
	}
	return failures
}

// WatchManifests watches a directory of manifest files and logs changes.
// Edited manifests take effect the next time the plugin is (re)activated;
// the watcher's job is to make the operator aware, not to hot-swap code.
func (h *Host) WatchManifests(dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create manifest watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	h.watcher = watcher
	h.done = make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Ext(event.Name) != ".json" {
					continue
				}
				if _, err := LoadManifest(event.Name); err != nil {
					h.logger.Warn("manifest_change_invalid",
						zap.String("path", event.Name), zap.Error(err))
					continue
				}
				h.logger.Info("manifest_changed", zap.String("path", event.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				h.logger.Warn("manifest_watcher_error", zap.Error(err))
			case <-h.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the manifest watcher.
func (h *Host) Close() {
	if h.watcher != nil {
		close(h.done)
		_ = h.watcher.Close()
		h.watcher = nil
	}
}

func manifestJSON(m Manifest) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return raw, nil
}
