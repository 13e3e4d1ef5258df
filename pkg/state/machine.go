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

package state

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/observability"
)

// MachineConfig tunes the state machine's pacing and accumulation rates.
type MachineConfig struct {
	TickBase time.Duration
	TickMin  time.Duration
	TickMax  time.Duration

	// SocialDebtRate accumulates per tick while no conversation happens.
	SocialDebtRate float64
	// CuriosityRate accumulates per tick, relieved by thinking.
	CuriosityRate float64

	MessageRelief  float64 // social debt relief when the agent sends a message
	FeedbackRelief float64 // social debt relief on positive user feedback

	DisturbanceDecay float64
}

// DefaultMachineConfig returns the stock pacing.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		TickBase:         10 * time.Second,
		TickMin:          1 * time.Second,
		TickMax:          60 * time.Second,
		SocialDebtRate:   0.004,
		CuriosityRate:    0.002,
		MessageRelief:    0.4,
		FeedbackRelief:   0.1,
		DisturbanceDecay: 0.05,
	}
}

// Machine drives the agent's state forward once per tick and serves clamped
// updates from the motor stage. It is safe for concurrent use, though in
// practice all writes arrive on the heartbeat goroutine.
type Machine struct {
	mu       sync.RWMutex
	state    AgentState
	identity Identity
	energy   *EnergyModel
	config   MachineConfig
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewMachine creates a state machine with a fresh, rested agent.
func NewMachine(identity Identity, energy *EnergyModel, config MachineConfig, metrics *observability.Metrics, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if energy == nil {
		energy = NewEnergyModel(EnergyConfig{})
	}
	def := DefaultMachineConfig()
	if config.TickBase == 0 {
		config.TickBase = def.TickBase
	}
	if config.TickMin == 0 {
		config.TickMin = def.TickMin
	}
	if config.TickMax == 0 {
		config.TickMax = def.TickMax
	}
	if config.SocialDebtRate == 0 {
		config.SocialDebtRate = def.SocialDebtRate
	}
	if config.CuriosityRate == 0 {
		config.CuriosityRate = def.CuriosityRate
	}
	if config.MessageRelief == 0 {
		config.MessageRelief = def.MessageRelief
	}
	if config.FeedbackRelief == 0 {
		config.FeedbackRelief = def.FeedbackRelief
	}
	if config.DisturbanceDecay == 0 {
		config.DisturbanceDecay = def.DisturbanceDecay
	}
	m := &Machine{
		identity: identity,
		energy:   energy,
		config:   config,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
	m.state = AgentState{
		Energy:       0.8,
		Curiosity:    0.3,
		TickInterval: config.TickBase,
		Sleep: SleepState{
			Mode:             ModeNormal,
			DisturbanceDecay: config.DisturbanceDecay,
			WakeThreshold:    energy.WakeThreshold(0.8),
		},
	}
	return m
}

// Identity returns the agent's immutable identity.
func (m *Machine) Identity() Identity { return m.identity }

// Snapshot returns a copy of the current state for read-only pipeline use.
func (m *Machine) Snapshot() AgentState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Mode returns the current alertness mode.
func (m *Machine) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Sleep.Mode
}

// Alertness returns the current mode mapped onto [0,1].
func (m *Machine) Alertness() float64 {
	return m.Mode().Alertness()
}

// Advance performs the per-tick state step: baseline drain, circadian
// recharge, pressure accumulation, disturbance decay, mode re-evaluation
// and the new tick interval. It returns the interval until the next tick.
func (m *Machine) Advance(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.state
	m.energy.Drain(s, DrainTick)
	m.energy.Recharge(s, now.Hour())

	s.SocialDebt = clamp01(s.SocialDebt + m.config.SocialDebtRate)
	s.Curiosity = clamp01(s.Curiosity + m.config.CuriosityRate)

	s.Sleep.Disturbance = math.Max(0, s.Sleep.Disturbance-s.Sleep.DisturbanceDecay)
	s.Sleep.WakeThreshold = m.energy.WakeThreshold(s.Energy)

	prevMode := s.Sleep.Mode
	s.Sleep.Mode = m.evaluateModeLocked(now)
	if s.Sleep.Mode != prevMode {
		m.logger.Debug("alertness_mode_changed",
			zap.String("from", string(prevMode)),
			zap.String("to", string(s.Sleep.Mode)),
			zap.Float64("energy", s.Energy),
			zap.Float64("reach_out_pressure", m.reachOutPressureLocked()))
	}

	s.LastTickAt = now
	s.TickInterval = m.tickIntervalLocked()
	return s.TickInterval
}

// ReachOutPressure combines the social pressures, weighted by personality
// and damped by fatigue.
func (m *Machine) ReachOutPressure() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reachOutPressureLocked()
}

func (m *Machine) reachOutPressureLocked() float64 {
	t := m.identity.Traits
	s := m.state
	raw := s.SocialDebt*(1.0-t.Shyness)*0.4 +
		s.TaskPressure*t.Independence*0.4 +
		s.Curiosity*t.Curiosity*0.2
	return clamp01(raw * (0.5 + s.Energy*0.5))
}

// evaluateModeLocked applies the alertness matrix in order; the first
// matching row wins.
func (m *Machine) evaluateModeLocked(now time.Time) Mode {
	pressure := m.reachOutPressureLocked()
	s := m.state
	switch {
	case pressure > 0.7 || s.TaskPressure > 0.8:
		return ModeAlert
	case nightTime(now.Hour()) && pressure < 0.3 && s.Energy < 0.5:
		return ModeSleep
	case pressure < 0.3 && s.Energy < 0.4:
		return ModeRelaxed
	default:
		return ModeNormal
	}
}

func nightTime(hour int) bool {
	return hour >= 23 || hour < 7
}

func (m *Machine) tickIntervalLocked() time.Duration {
	s := m.state
	pressureMult := math.Max(0.5, 1.0-m.reachOutPressureLocked()*0.5)
	mult := s.Sleep.Mode.TickMultiplier() * m.energy.TickMultiplier(s.Energy) * pressureMult
	interval := time.Duration(float64(m.config.TickBase) * mult)
	if interval < m.config.TickMin {
		interval = m.config.TickMin
	}
	if interval > m.config.TickMax {
		interval = m.config.TickMax
	}
	return interval
}

// RecordDisturbance accumulates external activity while the agent is asleep
// or relaxed. Crossing the energy-scaled wake threshold snaps the agent back
// to normal and resets the accumulator. Returns true when the agent woke.
func (m *Machine) RecordDisturbance(amount float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.state
	if s.Sleep.Mode != ModeSleep && s.Sleep.Mode != ModeRelaxed {
		return false
	}
	s.Sleep.Disturbance += amount
	limit := s.Sleep.WakeThreshold * m.energy.WakeMultiplier(s.Energy)
	if s.Sleep.Disturbance <= limit {
		return false
	}
	m.logger.Info("agent_woken_by_disturbance",
		zap.Float64("disturbance", s.Sleep.Disturbance),
		zap.Float64("threshold", limit),
		zap.String("previous_mode", string(s.Sleep.Mode)))
	s.Sleep.Mode = ModeNormal
	s.Sleep.Disturbance = 0
	return true
}

// RecordEvent drains energy for a processed external event.
func (m *Machine) RecordEvent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.energy.Drain(&m.state, DrainEvent)
}

// RecordLLMCall drains energy for a completed model invocation.
func (m *Machine) RecordLLMCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.energy.Drain(&m.state, DrainLLM)
}

// RecordMessageSent relieves social debt and pays the message energy cost.
func (m *Machine) RecordMessageSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SocialDebt = clamp01(m.state.SocialDebt - m.config.MessageRelief)
	m.energy.Drain(&m.state, DrainMessage)
}

// RecordPositiveFeedback relieves social debt and boosts energy when the
// user reacts warmly.
func (m *Machine) RecordPositiveFeedback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SocialDebt = clamp01(m.state.SocialDebt - m.config.FeedbackRelief)
	m.energy.Boost(&m.state)
}

// SetThoughtPressure updates the thought backlog gauge.
func (m *Machine) SetThoughtPressure(pressure float64, pending int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ThoughtPressure = clamp01(pressure)
	m.state.PendingThoughtCount = pending
}

// ApplyUpdate writes one state field on behalf of an intent. Values are
// clamped to [0,1] and rounded to three decimals. Tool-originated writes to
// runtime-owned fields are rejected.
func (m *Machine) ApplyUpdate(key string, value *float64, delta *float64, fromTool bool) error {
	if fromTool && IsAutomatic(key) {
		return fmt.Errorf("field %q is runtime-owned and cannot be set by a tool", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	field, err := m.fieldLocked(key)
	if err != nil {
		return err
	}
	var next float64
	switch {
	case value != nil:
		next = *value
	case delta != nil:
		next = *field + *delta
	default:
		return fmt.Errorf("update for %q carries neither value nor delta", key)
	}
	*field = round3(clamp01(next))
	if m.metrics != nil {
		m.metrics.Inc(observability.MetricStateUpdate)
	}
	m.logger.Debug("state_updated",
		zap.String("field", key),
		zap.Float64("value", *field),
		zap.Bool("from_tool", fromTool))
	return nil
}

func (m *Machine) fieldLocked(key string) (*float64, error) {
	s := &m.state
	switch key {
	case "energy":
		return &s.Energy, nil
	case "socialDebt":
		return &s.SocialDebt, nil
	case "taskPressure":
		return &s.TaskPressure, nil
	case "curiosity":
		return &s.Curiosity, nil
	case "acquaintancePressure":
		return &s.AcquaintancePressure, nil
	case "thoughtPressure":
		return &s.ThoughtPressure, nil
	default:
		return nil, fmt.Errorf("unknown state field %q", key)
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
