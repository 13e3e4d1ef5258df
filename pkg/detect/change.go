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

// Package detect implements the runtime's perception layer: a
// Weber-Fechner significance test for value changes, and a windowed
// pattern detector that turns activity history into pattern_break signals.
package detect

import (
	"fmt"
	"math"
)

// ChangeConfig tunes the Weber-Fechner significance test.
type ChangeConfig struct {
	// MinAbsoluteChange is the floor below which no change is ever
	// significant, regardless of alertness.
	MinAbsoluteChange float64
	// BaseThreshold is the relative-change threshold at full alertness.
	BaseThreshold float64
	// AlertnessInfluence raises the threshold as alertness drops:
	// t(a) = clamp(base + (1-a)*influence, base, max).
	AlertnessInfluence float64
	// MaxThreshold caps the relative threshold.
	MaxThreshold float64
	// Epsilon guards the relative comparison near zero.
	Epsilon float64
}

// DefaultChangeConfig returns the runtime defaults.
func DefaultChangeConfig() ChangeConfig {
	return ChangeConfig{
		MinAbsoluteChange:  0.05,
		BaseThreshold:      0.10,
		AlertnessInfluence: 0.20,
		MaxThreshold:       0.40,
		Epsilon:            0.01,
	}
}

// ChangeResult reports the outcome of a significance test.
type ChangeResult struct {
	IsSignificant  bool
	RelativeChange float64
	Reason         string
}

// ChangeDetector applies a Weber-Fechner-style test: small absolute changes
// on small baselines matter, the same absolute change on a large baseline
// does not, and a drowsy agent needs a bigger nudge than an alert one.
type ChangeDetector struct {
	config ChangeConfig
}

// NewChangeDetector creates a detector; zero config fields fall back to
// defaults.
func NewChangeDetector(config ChangeConfig) *ChangeDetector {
	def := DefaultChangeConfig()
	if config.MinAbsoluteChange <= 0 {
		config.MinAbsoluteChange = def.MinAbsoluteChange
	}
	if config.BaseThreshold <= 0 {
		config.BaseThreshold = def.BaseThreshold
	}
	if config.AlertnessInfluence <= 0 {
		config.AlertnessInfluence = def.AlertnessInfluence
	}
	if config.MaxThreshold <= 0 {
		config.MaxThreshold = def.MaxThreshold
	}
	if config.Epsilon <= 0 {
		config.Epsilon = def.Epsilon
	}
	return &ChangeDetector{config: config}
}

// Threshold returns the relative threshold t(alertness), clamped to
// [base, max].
func (d *ChangeDetector) Threshold(alertness float64) float64 {
	if alertness < 0 {
		alertness = 0
	}
	if alertness > 1 {
		alertness = 1
	}
	t := d.config.BaseThreshold + (1-alertness)*d.config.AlertnessInfluence
	if t < d.config.BaseThreshold {
		t = d.config.BaseThreshold
	}
	if t > d.config.MaxThreshold {
		t = d.config.MaxThreshold
	}
	return t
}

// Detect tests whether the move from previous to current is significant at
// the given alertness in [0,1].
func (d *ChangeDetector) Detect(previous, current, alertness float64) ChangeResult {
	absChange := math.Abs(current - previous)

	base := math.Max(math.Abs(previous), d.config.Epsilon)
	relative := absChange / base

	if absChange < d.config.MinAbsoluteChange {
		return ChangeResult{
			IsSignificant:  false,
			RelativeChange: relative,
			Reason:         fmt.Sprintf("below minimum absolute change (%.3f < %.3f)", absChange, d.config.MinAbsoluteChange),
		}
	}

	threshold := d.Threshold(alertness)
	required := threshold * base
	if required < d.config.MinAbsoluteChange {
		required = d.config.MinAbsoluteChange
	}

	if absChange >= required {
		return ChangeResult{
			IsSignificant:  true,
			RelativeChange: relative,
			Reason:         fmt.Sprintf("change %.3f exceeds threshold %.3f at alertness %.2f", absChange, required, alertness),
		}
	}

	return ChangeResult{
		IsSignificant:  false,
		RelativeChange: relative,
		Reason:         fmt.Sprintf("change %.3f below threshold %.3f at alertness %.2f", absChange, required, alertness),
	}
}
