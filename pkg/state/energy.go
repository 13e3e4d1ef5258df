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

import "math"

// DrainKind names an energy expenditure.
type DrainKind string

const (
	DrainTick    DrainKind = "tick"
	DrainEvent   DrainKind = "event"
	DrainLLM     DrainKind = "llm"
	DrainMessage DrainKind = "message"
)

// EnergyConfig tunes drain and circadian recharge rates.
type EnergyConfig struct {
	TickDrain    float64
	EventDrain   float64
	LLMDrain     float64
	MessageDrain float64

	// Recharge per tick by day phase.
	MorningRecharge float64 // 06:00–10:00
	DayRecharge     float64 // 10:00–22:00
	NightRecharge   float64 // 22:00–06:00

	PositiveFeedbackBoost float64

	BaseWakeThreshold float64
}

// DefaultEnergyConfig returns the stock rates.
func DefaultEnergyConfig() EnergyConfig {
	return EnergyConfig{
		TickDrain:             0.002,
		EventDrain:            0.01,
		LLMDrain:              0.05,
		MessageDrain:          0.02,
		MorningRecharge:       0.02,
		DayRecharge:           0.008,
		NightRecharge:         0.002,
		PositiveFeedbackBoost: 0.1,
		BaseWakeThreshold:     0.3,
	}
}

// EnergyModel applies drains and circadian recharge to an agent's energy.
// Every write funnels through apply so clamping cannot be bypassed.
type EnergyModel struct {
	config EnergyConfig
}

// NewEnergyModel builds a model, filling zero rates from the defaults.
func NewEnergyModel(config EnergyConfig) *EnergyModel {
	def := DefaultEnergyConfig()
	if config.TickDrain == 0 {
		config.TickDrain = def.TickDrain
	}
	if config.EventDrain == 0 {
		config.EventDrain = def.EventDrain
	}
	if config.LLMDrain == 0 {
		config.LLMDrain = def.LLMDrain
	}
	if config.MessageDrain == 0 {
		config.MessageDrain = def.MessageDrain
	}
	if config.MorningRecharge == 0 {
		config.MorningRecharge = def.MorningRecharge
	}
	if config.DayRecharge == 0 {
		config.DayRecharge = def.DayRecharge
	}
	if config.NightRecharge == 0 {
		config.NightRecharge = def.NightRecharge
	}
	if config.PositiveFeedbackBoost == 0 {
		config.PositiveFeedbackBoost = def.PositiveFeedbackBoost
	}
	if config.BaseWakeThreshold == 0 {
		config.BaseWakeThreshold = def.BaseWakeThreshold
	}
	return &EnergyModel{config: config}
}

// Drain subtracts the cost of the named activity.
func (m *EnergyModel) Drain(s *AgentState, kind DrainKind) {
	var cost float64
	switch kind {
	case DrainTick:
		cost = m.config.TickDrain
	case DrainEvent:
		cost = m.config.EventDrain
	case DrainLLM:
		cost = m.config.LLMDrain
	case DrainMessage:
		cost = m.config.MessageDrain
	}
	s.Energy = clamp01(s.Energy - cost)
}

// Recharge applies the circadian recharge for the given local hour.
func (m *EnergyModel) Recharge(s *AgentState, hour int) {
	var gain float64
	switch {
	case hour >= 6 && hour < 10:
		gain = m.config.MorningRecharge
	case hour >= 10 && hour < 22:
		gain = m.config.DayRecharge
	default:
		gain = m.config.NightRecharge
	}
	s.Energy = clamp01(s.Energy + gain)
}

// Boost applies the positive-feedback energy burst.
func (m *EnergyModel) Boost(s *AgentState) {
	s.Energy = clamp01(s.Energy + m.config.PositiveFeedbackBoost)
}

// WakeThreshold returns the disturbance level needed to wake a sleeping
// agent. Low energy raises the bar: a tired agent sleeps deeper.
func (m *EnergyModel) WakeThreshold(energy float64) float64 {
	return m.config.BaseWakeThreshold + (1.0-clamp01(energy))*0.4
}

// TickMultiplier returns the energy contribution to the tick interval.
// Full energy ticks at base pace; an exhausted agent slows down by half.
func (m *EnergyModel) TickMultiplier(energy float64) float64 {
	return 1.0 + (1.0-clamp01(energy))*0.5
}

// WakeMultiplier scales the wake threshold by current energy when a
// disturbance is evaluated.
func (m *EnergyModel) WakeMultiplier(energy float64) float64 {
	return 0.5 + clamp01(energy)*0.5
}

func clamp01(v float64) float64 {
	return math.Min(1.0, math.Max(0.0, v))
}
