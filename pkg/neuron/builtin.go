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
	"time"

	"github.com/teradata-labs/vigil/pkg/signal"
)

// Built-in thresholds. Contact urge scales its threshold with alertness:
// a drowsy agent needs a stronger urge before it speaks up.
const (
	socialDebtThreshold      = 0.7
	lowEnergyThreshold       = 0.2
	contactUrgeBaseThreshold = 0.6
	thoughtPressureThreshold = 0.6
)

// Builtins returns the stock neuron set.
func Builtins() []Neuron {
	return []Neuron{
		NewSocialDebtNeuron(),
		NewEnergyNeuron(),
		NewContactUrgeNeuron(),
		NewTimeOfDayNeuron(),
		NewHourChangedNeuron(),
		NewThoughtPressureNeuron(),
	}
}

// SocialDebtNeuron reports when the agent has gone quiet for too long.
type SocialDebtNeuron struct{ Base }

func NewSocialDebtNeuron() *SocialDebtNeuron {
	return &SocialDebtNeuron{Base: NewBase("social_debt", 30*time.Minute)}
}

func (n *SocialDebtNeuron) Check(tc TickContext) *signal.Signal {
	debt := tc.State.SocialDebt
	prev, rate := n.Observe(debt)
	if debt < socialDebtThreshold || !n.Ready(tc.Now) {
		return nil
	}
	n.MarkFired(tc.Now)
	return signal.New(signal.TypeSocialDebt, "neuron.social_debt", signal.PriorityNormal, signal.Metrics{
		Value:         debt,
		RateOfChange:  rate,
		PreviousValue: prev,
		Confidence:    1.0,
	})
}

// EnergyNeuron reports exhaustion so cognition can wind activity down.
type EnergyNeuron struct{ Base }

func NewEnergyNeuron() *EnergyNeuron {
	return &EnergyNeuron{Base: NewBase("energy", 30*time.Minute)}
}

func (n *EnergyNeuron) Check(tc TickContext) *signal.Signal {
	energy := tc.State.Energy
	prev, rate := n.Observe(energy)
	if energy > lowEnergyThreshold || !n.Ready(tc.Now) {
		return nil
	}
	n.MarkFired(tc.Now)
	return signal.New(signal.TypeEnergy, "neuron.energy", signal.PriorityLow, signal.Metrics{
		Value:         energy,
		RateOfChange:  rate,
		PreviousValue: prev,
		Confidence:    1.0,
	})
}

// ContactUrgeNeuron reports when the combined reach-out pressure crosses
// its alertness-scaled threshold.
type ContactUrgeNeuron struct{ Base }

func NewContactUrgeNeuron() *ContactUrgeNeuron {
	return &ContactUrgeNeuron{Base: NewBase("contact_urge", 45*time.Minute)}
}

func (n *ContactUrgeNeuron) Check(tc TickContext) *signal.Signal {
	pressure := tc.ReachOutPressure
	prev, rate := n.Observe(pressure)
	threshold := contactUrgeBaseThreshold + (1.0-tc.Alertness)*0.2
	if pressure < threshold || !n.Ready(tc.Now) {
		return nil
	}
	n.MarkFired(tc.Now)
	return signal.New(signal.TypeContactUrge, "neuron.contact_urge", signal.PriorityNormal, signal.Metrics{
		Value:         pressure,
		RateOfChange:  rate,
		PreviousValue: prev,
		Confidence:    1.0,
	})
}

// TimeOfDayNeuron emits once per day-phase transition.
type TimeOfDayNeuron struct {
	Base
	lastPhase string
}

func NewTimeOfDayNeuron() *TimeOfDayNeuron {
	return &TimeOfDayNeuron{Base: NewBase("time_of_day", 0)}
}

func (n *TimeOfDayNeuron) Check(tc TickContext) *signal.Signal {
	phase := dayPhase(tc.Now.Hour())
	if phase == n.lastPhase {
		return nil
	}
	first := n.lastPhase == ""
	n.lastPhase = phase
	if first {
		// Startup alignment, not a transition.
		return nil
	}
	return signal.New(signal.TypeTimeOfDay, "neuron.time_of_day", signal.PriorityIdle, signal.Metrics{
		Confidence: 1.0,
	}).WithPayload(&signal.TimePayload{
		Hour:      tc.Now.Hour(),
		Minute:    tc.Now.Minute(),
		TimeOfDay: phase,
	})
}

func dayPhase(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 23:
		return "evening"
	default:
		return "night"
	}
}

// HourChangedNeuron emits once when the wall-clock hour rolls over.
type HourChangedNeuron struct {
	Base
	lastHour int
}

func NewHourChangedNeuron() *HourChangedNeuron {
	return &HourChangedNeuron{Base: NewBase("hour_changed", 0), lastHour: -1}
}

func (n *HourChangedNeuron) Check(tc TickContext) *signal.Signal {
	hour := tc.Now.Hour()
	if hour == n.lastHour {
		return nil
	}
	first := n.lastHour == -1
	n.lastHour = hour
	if first {
		return nil
	}
	return signal.New(signal.TypeHourChanged, "neuron.hour_changed", signal.PriorityIdle, signal.Metrics{
		Confidence: 1.0,
	}).WithPayload(&signal.TimePayload{
		Hour:      hour,
		Minute:    tc.Now.Minute(),
		TimeOfDay: dayPhase(hour),
	})
}

// ThoughtPressureNeuron reports a swelling backlog of unprocessed thoughts.
type ThoughtPressureNeuron struct{ Base }

func NewThoughtPressureNeuron() *ThoughtPressureNeuron {
	return &ThoughtPressureNeuron{Base: NewBase("thought_pressure", 20*time.Minute)}
}

func (n *ThoughtPressureNeuron) Check(tc TickContext) *signal.Signal {
	pressure := tc.State.ThoughtPressure
	prev, rate := n.Observe(pressure)
	if pressure < thoughtPressureThreshold || !n.Ready(tc.Now) {
		return nil
	}
	n.MarkFired(tc.Now)
	return signal.New(signal.TypeThresholdCrossed, "neuron.thought_pressure", signal.PriorityLow, signal.Metrics{
		Value:         pressure,
		RateOfChange:  rate,
		PreviousValue: prev,
		Confidence:    1.0,
	})
}
