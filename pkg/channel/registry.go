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

package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Capabilities reports which optional interfaces an adapter implements.
type Capabilities struct {
	Lifecycle      bool
	HealthReporter bool
	Typing         bool
}

// Registry holds the active channel adapters keyed by name.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	logger   *zap.Logger
}

// NewRegistry creates an empty channel registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{channels: make(map[string]Channel), logger: logger}
}

// Register adds an adapter. Names must be unique.
func (r *Registry) Register(ch Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := ch.Name()
	if name == "" {
		return fmt.Errorf("channel has empty name")
	}
	if _, exists := r.channels[name]; exists {
		return fmt.Errorf("channel %q already registered", name)
	}
	r.channels[name] = ch
	r.logger.Info("channel_registered",
		zap.String("channel", name),
		zap.Any("capabilities", Probe(ch)))
	return nil
}

// Get returns the named adapter.
func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Names lists registered adapters, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts every adapter implementing Lifecycle. The first failure
// aborts and stops the adapters already started.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var started []Lifecycle
	for name, ch := range r.channels {
		lc, ok := ch.(Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Start(ctx); err != nil {
			for _, s := range started {
				_ = s.Stop(ctx)
			}
			return fmt.Errorf("failed to start channel %q: %w", name, err)
		}
		started = append(started, lc)
	}
	return nil
}

// StopAll stops every adapter implementing Lifecycle, collecting nothing:
// shutdown proceeds best-effort.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, ch := range r.channels {
		if lc, ok := ch.(Lifecycle); ok {
			if err := lc.Stop(ctx); err != nil {
				r.logger.Warn("channel_stop_failed",
					zap.String("channel", name), zap.Error(err))
			}
		}
	}
}

// HealthAll probes every adapter implementing HealthReporter.
func (r *Registry) HealthAll(ctx context.Context) map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]Health)
	for name, ch := range r.channels {
		if hr, ok := ch.(HealthReporter); ok {
			result[name] = hr.Health(ctx)
		}
	}
	return result
}

// Probe reports the optional interfaces ch implements.
func Probe(ch Channel) Capabilities {
	_, lifecycle := ch.(Lifecycle)
	_, health := ch.(HealthReporter)
	_, typing := ch.(TypingCapable)
	return Capabilities{Lifecycle: lifecycle, HealthReporter: health, Typing: typing}
}
