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

package pipeline

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/bus"
	"github.com/teradata-labs/vigil/pkg/filter"
	"github.com/teradata-labs/vigil/pkg/neuron"
	"github.com/teradata-labs/vigil/pkg/state"
)

// Autonomic is the first pipeline stage. It runs every registered neuron
// against the current state snapshot, passes the emissions through the
// filter chain and pushes survivors onto the bus. Everything here is
// synchronous; neurons never touch I/O.
type Autonomic struct {
	neurons *neuron.Registry
	filters *filter.Chain
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewAutonomic wires the stage.
func NewAutonomic(neurons *neuron.Registry, filters *filter.Chain, b *bus.Bus, logger *zap.Logger) *Autonomic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autonomic{neurons: neurons, filters: filters, bus: b, logger: logger}
}

// Run executes one autonomic pass. Pending neuron registrations are applied
// first, so registry changes only ever take effect on a tick boundary.
// Returns the number of signals that reached the bus.
func (a *Autonomic) Run(now time.Time, tickID string, machine *state.Machine) int {
	a.neurons.Activate()

	tc := neuron.TickContext{
		Now:              now,
		State:            machine.Snapshot(),
		Alertness:        machine.Alertness(),
		ReachOutPressure: machine.ReachOutPressure(),
		CorrelationID:    tickID,
	}
	emitted := a.neurons.CheckAll(tc)
	if len(emitted) == 0 {
		return 0
	}

	fc := filter.Context{
		TickID:    tickID,
		Mode:      machine.Mode(),
		Alertness: machine.Alertness(),
	}
	survivors := a.filters.Run(fc, emitted)

	pushed := 0
	for _, sig := range survivors {
		if err := a.bus.Push(sig); err != nil {
			if errors.Is(err, bus.ErrBusFull) {
				a.logger.Warn("autonomic_signal_dropped",
					zap.String("signal_type", string(sig.Type)),
					zap.String("source", sig.Source))
			}
			continue
		}
		pushed++
	}
	return pushed
}
