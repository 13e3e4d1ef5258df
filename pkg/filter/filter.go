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

// Package filter implements the autonomic stage's signal filters. Filters
// run as a sequential chain between signal production and the bus; each one
// may pass a signal through, transform it, or drop it. A failing filter
// never takes a signal down with it: the original continues unchanged.
package filter

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/signal"
	"github.com/teradata-labs/vigil/pkg/state"
)

// Context is the per-tick environment filters evaluate against.
type Context struct {
	TickID    string
	Mode      state.Mode
	Alertness float64
}

// Filter inspects one signal at a time. Process returns the signal to keep
// flowing (possibly transformed), or nil to drop it.
type Filter interface {
	ID() string
	Handles(sig *signal.Signal) bool
	Process(fc Context, sig *signal.Signal) (*signal.Signal, error)
}

// Chain runs filters in registration order. Chains are safe for concurrent
// registration, though processing happens on the heartbeat goroutine.
type Chain struct {
	mu      sync.RWMutex
	filters []Filter
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewChain creates an empty filter chain.
func NewChain(metrics *observability.Metrics, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{metrics: metrics, logger: logger}
}

// Register appends a filter to the chain.
func (c *Chain) Register(f Filter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.filters {
		if existing.ID() == f.ID() {
			return fmt.Errorf("filter %q already registered", f.ID())
		}
	}
	c.filters = append(c.filters, f)
	return nil
}

// Unregister removes a filter by id. Removing an unknown id is a no-op.
func (c *Chain) Unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, f := range c.filters {
		if f.ID() == id {
			c.filters = append(c.filters[:i], c.filters[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered filters.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}

// Run passes each signal through the chain and returns the survivors in
// their original order. A filter error or panic leaves that signal as it
// was before the faulty filter touched it.
func (c *Chain) Run(fc Context, signals []*signal.Signal) []*signal.Signal {
	c.mu.RLock()
	filters := make([]Filter, len(c.filters))
	copy(filters, c.filters)
	c.mu.RUnlock()

	out := make([]*signal.Signal, 0, len(signals))
	for _, sig := range signals {
		kept := sig
		for _, f := range filters {
			if kept == nil {
				break
			}
			if !f.Handles(kept) {
				continue
			}
			next, err := c.processOne(f, fc, kept)
			if err != nil {
				if c.metrics != nil {
					c.metrics.Inc(observability.MetricFilterFailure)
				}
				c.logger.Warn("filter_failed",
					zap.String("filter_id", f.ID()),
					zap.String("signal_type", string(kept.Type)),
					zap.Error(err))
				continue // original signal keeps flowing
			}
			kept = next
		}
		if kept != nil {
			out = append(out, kept)
		}
	}
	return out
}

func (c *Chain) processOne(f Filter, fc Context, sig *signal.Signal) (out *signal.Signal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("filter %q panicked: %v", f.ID(), rec)
		}
	}()
	return f.Process(fc, sig)
}
