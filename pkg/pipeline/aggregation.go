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
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/ack"
	"github.com/teradata-labs/vigil/pkg/detect"
	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/signal"
)

// WakeContactPressureThreshold is the default aggregated contact_pressure
// level that wakes cognition on its own.
const WakeContactPressureThreshold = 0.6

// wakePatternConfidence is the minimum pattern_break confidence that wakes
// cognition.
const wakePatternConfidence = 0.7

// maxContactThreshold caps the effective contact threshold after the
// low-energy and night adjustments.
const maxContactThreshold = 0.95

// AggregationConfig tunes the wake decision.
type AggregationConfig struct {
	// ContactBaseThreshold is the contact_pressure level that wakes
	// cognition under normal conditions. Low energy and night hours
	// raise the effective threshold.
	ContactBaseThreshold float64
}

// DefaultAggregationConfig returns the stock thresholds.
func DefaultAggregationConfig() AggregationConfig {
	return AggregationConfig{ContactBaseThreshold: WakeContactPressureThreshold}
}

// Aggregate is the per-type rollup of one tick's drained signals.
type Aggregate struct {
	Type         signal.Type
	Count        int
	Value        float64 // mean of the tick's observed values
	RateOfChange float64 // value minus previous tick's aggregate
	Change       detect.ChangeResult
}

// WakeDecision is the single output of the aggregation stage.
type WakeDecision struct {
	ShouldWake bool
	Reason     string
	// Signals are the ack-gated survivors, pattern breaks included,
	// in drain order.
	Signals    []*signal.Signal
	Aggregates map[signal.Type]*Aggregate
}

// Aggregation buckets drained signals, runs pattern detection over the
// aggregates, gates signal classes through the ack registry and produces
// the tick's wake decision.
type Aggregation struct {
	config   AggregationConfig
	acks     *ack.Registry
	change   *detect.ChangeDetector
	patterns *detect.PatternDetector
	metrics  *observability.Metrics
	logger   *zap.Logger

	// previous aggregate value per type, for rate-of-change
	prev map[signal.Type]float64
}

// NewAggregation wires the stage.
func NewAggregation(config AggregationConfig, acks *ack.Registry, change *detect.ChangeDetector, patterns *detect.PatternDetector, metrics *observability.Metrics, logger *zap.Logger) *Aggregation {
	if config.ContactBaseThreshold <= 0 {
		config.ContactBaseThreshold = WakeContactPressureThreshold
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregation{
		config:   config,
		acks:     acks,
		change:   change,
		patterns: patterns,
		metrics:  metrics,
		logger:   logger,
		prev:     make(map[signal.Type]float64),
	}
}

// Run produces the wake decision for one tick's drained signals.
func (g *Aggregation) Run(now time.Time, tickID string, alertness, energy float64, drained []*signal.Signal) WakeDecision {
	working := g.dropMalformed(drained)
	aggregates := g.aggregate(working, alertness, now)

	// Pattern breaks join the working set before ack gating so a
	// suppressed pattern class stays suppressed.
	working = append(working, g.patterns.Detect(now, tickID)...)

	survivors := make([]*signal.Signal, 0, len(working))
	for _, sig := range working {
		value := sig.Metrics.Value
		result := g.acks.Check(sig.Type, sig.Source, &value)
		if result.Blocked {
			continue
		}
		survivors = append(survivors, sig)
	}

	decision := WakeDecision{Signals: survivors, Aggregates: aggregates}
	decision.ShouldWake, decision.Reason = g.wake(now, energy, survivors, aggregates)
	if decision.ShouldWake {
		g.logger.Debug("cognition_wake_decided",
			zap.String("tick_id", tickID),
			zap.String("reason", decision.Reason),
			zap.Int("signals", len(survivors)))
	}
	return decision
}

func (g *Aggregation) dropMalformed(drained []*signal.Signal) []*signal.Signal {
	kept := drained[:0:len(drained)]
	for _, sig := range drained {
		if sig == nil || !sig.Type.Valid() || sig.Source == "" {
			g.metrics.Inc(observability.MetricMalformedSignal)
			g.logger.Warn("malformed_signal_dropped")
			continue
		}
		kept = append(kept, sig)
	}
	return kept
}

func (g *Aggregation) aggregate(working []*signal.Signal, alertness float64, now time.Time) map[signal.Type]*Aggregate {
	aggregates := make(map[signal.Type]*Aggregate)
	for _, sig := range working {
		agg, ok := aggregates[sig.Type]
		if !ok {
			agg = &Aggregate{Type: sig.Type}
			aggregates[sig.Type] = agg
		}
		agg.Count++
		agg.Value += sig.Metrics.Value
	}
	for typ, agg := range aggregates {
		agg.Value /= float64(agg.Count)
		previous, seen := g.prev[typ]
		if seen {
			agg.RateOfChange = agg.Value - previous
			agg.Change = g.change.Detect(previous, agg.Value, alertness)
		}
		g.prev[typ] = agg.Value
		g.patterns.Observe(typ, agg.Value, agg.RateOfChange, now)
	}
	return aggregates
}

func (g *Aggregation) wake(now time.Time, energy float64, survivors []*signal.Signal, aggregates map[signal.Type]*Aggregate) (bool, string) {
	for _, sig := range survivors {
		if sig.Type == signal.TypeUserMessage {
			return true, "user_message"
		}
	}
	for _, sig := range survivors {
		if sig.Priority == signal.PriorityHigh {
			return true, "high_priority_signal"
		}
	}
	if agg, ok := aggregates[signal.TypeContactPressure]; ok && agg.Value >= g.contactThreshold(now, energy) {
		return true, "contact_pressure"
	}
	for _, sig := range survivors {
		if sig.Type == signal.TypePatternBreak && sig.Metrics.Confidence >= wakePatternConfidence {
			return true, "pattern_break"
		}
	}
	for _, sig := range survivors {
		if sig.Type == signal.TypeThought {
			return true, "thought"
		}
	}
	for _, sig := range survivors {
		if sig.Type == signal.TypePluginEvent {
			return true, "plugin_event"
		}
	}
	return false, ""
}

// contactThreshold raises the base threshold when energy is low or during
// night hours, capped at maxContactThreshold.
func (g *Aggregation) contactThreshold(now time.Time, energy float64) float64 {
	threshold := g.config.ContactBaseThreshold
	if energy < 0.3 {
		threshold += 0.15
	}
	if hour := now.Hour(); hour >= 23 || hour < 7 {
		threshold += 0.2
	}
	if threshold > maxContactThreshold {
		threshold = maxContactThreshold
	}
	return threshold
}
