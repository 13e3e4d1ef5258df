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

package neuron

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/signal"
)

// Registry holds the active neuron set. Registrations made while the runtime
// is live take effect at the next tick boundary, so a tick always sees a
// stable set.
type Registry struct {
	mu      sync.RWMutex
	active  map[string]Neuron
	pending map[string]Neuron
	removed map[string]bool
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRegistry creates an empty neuron registry.
func NewRegistry(metrics *observability.Metrics, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		active:  make(map[string]Neuron),
		pending: make(map[string]Neuron),
		removed: make(map[string]bool),
		metrics: metrics,
		logger:  logger,
	}
}

// Register stages a neuron for activation at the next tick boundary.
func (r *Registry) Register(n Neuron) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := n.ID()
	if id == "" {
		return fmt.Errorf("neuron has empty id")
	}
	if _, ok := r.active[id]; ok {
		return fmt.Errorf("neuron %q already registered", id)
	}
	if _, ok := r.pending[id]; ok {
		return fmt.Errorf("neuron %q already pending", id)
	}
	r.pending[id] = n
	return nil
}

// Unregister stages a neuron for removal at the next tick boundary.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
	r.removed[id] = true
}

// Activate applies staged registrations and removals. The heartbeat calls
// this at the start of every tick.
func (r *Registry) Activate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.removed {
		delete(r.active, id)
	}
	for id, n := range r.pending {
		r.active[id] = n
	}
	r.pending = make(map[string]Neuron)
	r.removed = make(map[string]bool)
}

// Len returns the number of active neurons.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CheckAll runs every active neuron in id order and collects the emitted
// signals. A panicking neuron is isolated: it loses its emission for the
// tick and the rest of the set still runs.
func (r *Registry) CheckAll(tc TickContext) []*signal.Signal {
	r.mu.RLock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	neurons := make([]Neuron, 0, len(ids))
	for _, id := range ids {
		neurons = append(neurons, r.active[id])
	}
	r.mu.RUnlock()

	var signals []*signal.Signal
	for _, n := range neurons {
		if sig := r.checkOne(n, tc); sig != nil {
			signals = append(signals, sig.WithCorrelation(tc.CorrelationID))
		}
	}
	return signals
}

func (r *Registry) checkOne(n Neuron, tc TickContext) (sig *signal.Signal) {
	defer func() {
		if rec := recover(); rec != nil {
			sig = nil
			if r.metrics != nil {
				r.metrics.Inc(observability.MetricNeuronFailure)
			}
			r.logger.Error("neuron_check_panicked",
				zap.String("neuron_id", n.ID()),
				zap.Any("panic", rec))
		}
	}()
	return n.Check(tc)
}
