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

// Package state owns the agent's sole mutable primary entity: energy,
// pressures, alertness mode and the dynamic tick interval. All mutation
// happens on the scheduler thread, either through the tick advance or the
// UPDATE_STATE intent path.
package state

import (
	"time"
)

// Mode is the agent's coarse alertness state. It scales tick pace and
// filter sensitivity.
type Mode string

const (
	ModeAlert   Mode = "alert"
	ModeNormal  Mode = "normal"
	ModeRelaxed Mode = "relaxed"
	ModeSleep   Mode = "sleep"
)

// TickMultiplier returns the mode's contribution to the tick interval.
func (m Mode) TickMultiplier() float64 {
	switch m {
	case ModeAlert:
		return 0.3
	case ModeRelaxed:
		return 2.0
	case ModeSleep:
		return 4.0
	default:
		return 1.0
	}
}

// Alertness maps the mode onto [0,1] for the change detector and neurons.
func (m Mode) Alertness() float64 {
	switch m {
	case ModeAlert:
		return 1.0
	case ModeNormal:
		return 0.7
	case ModeRelaxed:
		return 0.4
	case ModeSleep:
		return 0.1
	default:
		return 0.7
	}
}

// Traits are the identity's personality knobs, each in [0,1].
type Traits struct {
	Humor        float64 `yaml:"humor"`
	Formality    float64 `yaml:"formality"`
	Curiosity    float64 `yaml:"curiosity"`
	Patience     float64 `yaml:"patience"`
	Empathy      float64 `yaml:"empathy"`
	Shyness      float64 `yaml:"shyness"`
	Independence float64 `yaml:"independence"`
}

// Identity is the agent's stable configuration. Never mutated at runtime.
type Identity struct {
	Name        string            `yaml:"name"`
	Gender      string            `yaml:"gender"` // neutral, female, male
	Values      []string          `yaml:"values"`
	Boundaries  []string          `yaml:"boundaries"`
	Traits      Traits            `yaml:"traits"`
	Preferences map[string]string `yaml:"preferences"`
}

// SleepState is the disturbance sub-state attached to the agent.
type SleepState struct {
	Mode             Mode
	Disturbance      float64
	DisturbanceDecay float64
	WakeThreshold    float64
}

// AgentState is the mutable per-tick state. All ratio fields stay in [0,1].
type AgentState struct {
	Energy               float64
	SocialDebt           float64
	TaskPressure         float64
	Curiosity            float64
	AcquaintancePressure float64
	ThoughtPressure      float64
	PendingThoughtCount  int
	LastTickAt           time.Time
	TickInterval         time.Duration
	Sleep                SleepState
}

// Automatic fields cannot be written by user-facing tools; they are driven
// by the runtime itself.
var automaticFields = map[string]bool{
	"energy":     true,
	"socialDebt": true,
}

// IsAutomatic reports whether key is runtime-owned.
func IsAutomatic(key string) bool {
	return automaticFields[key]
}
