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

// Package neuron implements the autonomic stage's periodic observers.
// A neuron inspects the agent state once per tick and may emit at most one
// signal. Neurons never block, never call the network and never mutate
// state; everything interesting they notice travels as a signal.
package neuron

import (
	"time"

	"github.com/teradata-labs/vigil/pkg/signal"
	"github.com/teradata-labs/vigil/pkg/state"
)

// TickContext is the read-only view a neuron gets each tick.
type TickContext struct {
	Now              time.Time
	State            state.AgentState
	Alertness        float64
	ReachOutPressure float64
	CorrelationID    string
}

// Neuron observes one aspect of the agent each tick.
// Check returns nil when there is nothing to report.
type Neuron interface {
	ID() string
	Check(tc TickContext) *signal.Signal
}

// Base carries the bookkeeping shared by threshold neurons: a refractory
// period so a sustained condition fires once, and the previous observation
// for rate-of-change metrics. Embed it and call Ready/Observe/MarkFired.
type Base struct {
	id         string
	refractory time.Duration
	lastFired  time.Time
	prev       *float64
}

// NewBase creates the shared bookkeeping for a named neuron.
func NewBase(id string, refractory time.Duration) Base {
	return Base{id: id, refractory: refractory}
}

// ID returns the neuron's registry key.
func (b *Base) ID() string { return b.id }

// Ready reports whether the refractory period has elapsed.
func (b *Base) Ready(now time.Time) bool {
	return b.lastFired.IsZero() || now.Sub(b.lastFired) >= b.refractory
}

// MarkFired records an emission for refractory accounting.
func (b *Base) MarkFired(now time.Time) {
	b.lastFired = now
}

// Observe records value and returns the previous observation with the
// per-tick rate of change. The first observation has a nil previous value
// and zero rate.
func (b *Base) Observe(value float64) (prev *float64, rate float64) {
	prev = b.prev
	if prev != nil {
		rate = value - *prev
	}
	v := value
	b.prev = &v
	return prev, rate
}
