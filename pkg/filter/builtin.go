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

package filter

import (
	"fmt"

	"github.com/teradata-labs/vigil/pkg/signal"
)

// Damping constants. HIGH-priority traffic is never damped; the user always
// gets through.
const (
	dampingFloor     = 0.15
	idleDropBelow    = 0.3
	confidenceMinMul = 0.5
)

// AlertnessDamping attenuates non-urgent signals while the agent is drowsy.
// Confidence scales with alertness; idle chatter is dropped outright when
// alertness falls below idleDropBelow, and anything damped under the floor
// is discarded.
type AlertnessDamping struct{}

func NewAlertnessDamping() *AlertnessDamping { return &AlertnessDamping{} }

func (*AlertnessDamping) ID() string { return "alertness_damping" }

func (*AlertnessDamping) Handles(sig *signal.Signal) bool {
	return sig.Priority != signal.PriorityHigh
}

func (*AlertnessDamping) Process(fc Context, sig *signal.Signal) (*signal.Signal, error) {
	if sig.Priority == signal.PriorityIdle && fc.Alertness < idleDropBelow {
		return nil, nil
	}
	damped := *sig
	damped.Metrics.Confidence = signal.Clamp01(
		sig.Metrics.Confidence * (confidenceMinMul + fc.Alertness*(1.0-confidenceMinMul)))
	if damped.Metrics.Confidence < dampingFloor {
		return nil, nil
	}
	return &damped, nil
}

// TickDedupe drops repeated observations of the same type and source within
// a single tick, keeping the first. State resets when the tick id changes.
type TickDedupe struct {
	tickID string
	seen   map[string]bool
}

func NewTickDedupe() *TickDedupe {
	return &TickDedupe{seen: make(map[string]bool)}
}

func (*TickDedupe) ID() string { return "tick_dedupe" }

func (*TickDedupe) Handles(sig *signal.Signal) bool {
	// User messages are never duplicates of each other.
	return sig.Type != signal.TypeUserMessage
}

func (f *TickDedupe) Process(fc Context, sig *signal.Signal) (*signal.Signal, error) {
	if fc.TickID != f.tickID {
		f.tickID = fc.TickID
		f.seen = make(map[string]bool)
	}
	key := fmt.Sprintf("%s|%s", sig.Type, sig.Source)
	if f.seen[key] {
		return nil, nil
	}
	f.seen[key] = true
	return sig, nil
}
