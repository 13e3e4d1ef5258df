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
package detect

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/signal"
)

// PatternSource is the source label stamped on emitted pattern_break signals.
const PatternSource = "meta.pattern_detector"

// emitConfidence is the floor below which a match is observed but not
// emitted as a signal.
const emitConfidence = 0.5

// PatternMatch describes a detected pattern with normalized confidence.
type PatternMatch struct {
	Pattern    string
	Confidence float64
	Evidence   string
}

// Observation is one windowed activity sample for a signal type.
type Observation struct {
	Value float64
	Rate  float64
	At    time.Time
}

// History is the windowed activity record the patterns evaluate over.
// Owned by the scheduler thread; not safe for concurrent use.
type History struct {
	window  time.Duration
	samples map[signal.Type][]Observation
	// lastActivity tracks the most recent nonzero user-facing activity.
	lastActivity time.Time
}

// NewHistory creates a history with the given window (default 10 minutes).
func NewHistory(window time.Duration) *History {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &History{
		window:  window,
		samples: make(map[signal.Type][]Observation),
	}
}

// Observe appends a sample and prunes anything older than the window.
func (h *History) Observe(typ signal.Type, value, rate float64, now time.Time) {
	h.samples[typ] = append(h.samples[typ], Observation{Value: value, Rate: rate, At: now})
	h.prune(typ, now)

	if typ == signal.TypeUserMessage && value > 0 {
		h.lastActivity = now
	}
}

func (h *History) prune(typ signal.Type, now time.Time) {
	cutoff := now.Add(-h.window)
	s := h.samples[typ]
	i := 0
	for ; i < len(s); i++ {
		if s[i].At.After(cutoff) {
			break
		}
	}
	h.samples[typ] = s[i:]
}

// Latest returns the most recent sample for typ, or a zero Observation.
func (h *History) Latest(typ signal.Type) (Observation, bool) {
	s := h.samples[typ]
	if len(s) == 0 {
		return Observation{}, false
	}
	return s[len(s)-1], true
}

// Average returns the mean value over the window for typ.
func (h *History) Average(typ signal.Type) float64 {
	s := h.samples[typ]
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range s {
		sum += o.Value
	}
	return sum / float64(len(s))
}

// IdleSince returns how long user-facing activity has been absent.
func (h *History) IdleSince(now time.Time) time.Duration {
	if h.lastActivity.IsZero() {
		return 0
	}
	return now.Sub(h.lastActivity)
}

// Pattern evaluates the history and reports a match, or nil.
type Pattern interface {
	Name() string
	Evaluate(h *History, now time.Time) *PatternMatch
}

// PatternConfig tunes the built-in patterns.
type PatternConfig struct {
	Window             time.Duration
	SpikeRateThreshold float64       // rate-of-change spike trigger
	SilenceActivity    float64       // mean activity above which silence is anomalous
	SilenceThreshold   time.Duration // idle duration before silence fires
	LowEnergy          float64       // cross-type correlation bounds
	HighPressure       float64
}

// DefaultPatternConfig returns the runtime defaults.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		Window:             10 * time.Minute,
		SpikeRateThreshold: 0.5,
		SilenceActivity:    0.2,
		SilenceThreshold:   5 * time.Minute,
		LowEnergy:          0.3,
		HighPressure:       0.7,
	}
}

// PatternDetector maintains activity history and runs registered patterns.
// Three built-ins ship with the runtime: rate spike, sudden silence, and
// the low-energy/high-pressure correlation. Plugins may register more.
type PatternDetector struct {
	history  *History
	patterns []Pattern
	logger   *zap.Logger
}

// NewPatternDetector creates a detector with the built-in patterns.
func NewPatternDetector(config PatternConfig, logger *zap.Logger) *PatternDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultPatternConfig()
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.SpikeRateThreshold <= 0 {
		config.SpikeRateThreshold = def.SpikeRateThreshold
	}
	if config.SilenceActivity <= 0 {
		config.SilenceActivity = def.SilenceActivity
	}
	if config.SilenceThreshold <= 0 {
		config.SilenceThreshold = def.SilenceThreshold
	}
	if config.LowEnergy <= 0 {
		config.LowEnergy = def.LowEnergy
	}
	if config.HighPressure <= 0 {
		config.HighPressure = def.HighPressure
	}

	return &PatternDetector{
		history: NewHistory(config.Window),
		patterns: []Pattern{
			&spikePattern{threshold: config.SpikeRateThreshold},
			&silencePattern{activity: config.SilenceActivity, idle: config.SilenceThreshold},
			&correlationPattern{lowEnergy: config.LowEnergy, highPressure: config.HighPressure},
		},
		logger: logger,
	}
}

// Register adds a pattern. Takes effect on the next Detect call.
func (d *PatternDetector) Register(p Pattern) {
	d.patterns = append(d.patterns, p)
}

// Observe records a windowed sample for a signal type.
func (d *PatternDetector) Observe(typ signal.Type, value, rate float64, now time.Time) {
	d.history.Observe(typ, value, rate, now)
}

// Detect runs all registered patterns and returns pattern_break signals for
// matches with confidence >= 0.5, at NORMAL priority.
func (d *PatternDetector) Detect(now time.Time, correlationID string) []*signal.Signal {
	var out []*signal.Signal
	for _, p := range d.patterns {
		match := p.Evaluate(d.history, now)
		if match == nil {
			continue
		}
		if match.Confidence < emitConfidence {
			d.logger.Debug("pattern_below_confidence",
				zap.String("pattern", match.Pattern),
				zap.Float64("confidence", match.Confidence))
			continue
		}

		s := signal.New(signal.TypePatternBreak, PatternSource, signal.PriorityNormal, signal.Metrics{
			Value:      match.Confidence,
			Confidence: match.Confidence,
		}).WithPayload(&signal.PatternPayload{
			Pattern:    match.Pattern,
			Confidence: match.Confidence,
			Evidence:   match.Evidence,
		}).WithCorrelation(correlationID)

		d.logger.Info("pattern_break_detected",
			zap.String("pattern", match.Pattern),
			zap.Float64("confidence", match.Confidence),
			zap.String("evidence", match.Evidence))
		out = append(out, s)
	}
	return out
}

// spikePattern fires when any type's rate of change exceeds the threshold.
type spikePattern struct {
	threshold float64
}

func (p *spikePattern) Name() string { return "rate_spike" }

func (p *spikePattern) Evaluate(h *History, now time.Time) *PatternMatch {
	var best *PatternMatch
	for typ := range h.samples {
		o, ok := h.Latest(typ)
		if !ok {
			continue
		}
		if math.Abs(o.Rate) <= p.threshold {
			continue
		}
		// Normalized intensity: at 2x threshold confidence saturates.
		conf := math.Abs(o.Rate) / (2 * p.threshold)
		if conf > 1 {
			conf = 1
		}
		if best == nil || conf > best.Confidence {
			best = &PatternMatch{
				Pattern:    p.Name(),
				Confidence: conf,
				Evidence:   string(typ),
			}
		}
	}
	return best
}

// silencePattern fires when a previously active window goes quiet.
type silencePattern struct {
	activity float64
	idle     time.Duration
}

func (p *silencePattern) Name() string { return "sudden_silence" }

func (p *silencePattern) Evaluate(h *History, now time.Time) *PatternMatch {
	avg := h.Average(signal.TypeUserMessage)
	if avg <= p.activity {
		return nil
	}
	latest, ok := h.Latest(signal.TypeUserMessage)
	if ok && latest.Value != 0 {
		return nil
	}
	idle := h.IdleSince(now)
	if idle <= p.idle {
		return nil
	}

	conf := avg / (2 * p.activity)
	if conf > 1 {
		conf = 1
	}
	return &PatternMatch{
		Pattern:    p.Name(),
		Confidence: conf,
		Evidence:   "user activity stopped after active window",
	}
}

// correlationPattern fires on the low-energy / high-pressure combination.
type correlationPattern struct {
	lowEnergy    float64
	highPressure float64
}

func (p *correlationPattern) Name() string { return "energy_pressure_correlation" }

func (p *correlationPattern) Evaluate(h *History, now time.Time) *PatternMatch {
	energy, okE := h.Latest(signal.TypeEnergy)
	pressure, okP := h.Latest(signal.TypeContactPressure)
	if !okE || !okP {
		return nil
	}
	if energy.Value >= p.lowEnergy || pressure.Value <= p.highPressure {
		return nil
	}

	// Intensity grows as energy falls below and pressure rises above bounds.
	intensity := (p.lowEnergy - energy.Value) / p.lowEnergy
	intensity += (pressure.Value - p.highPressure) / (1 - p.highPressure)
	conf := intensity / 2
	if conf > 1 {
		conf = 1
	}
	return &PatternMatch{
		Pattern:    p.Name(),
		Confidence: conf,
		Evidence:   "energy low while contact pressure high",
	}
}
