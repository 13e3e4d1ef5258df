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

// Package signal defines the typed envelopes that cross every pipeline stage:
// signals flowing up from neurons, senses and plugins, and intents flowing
// down from cognition to the motor stage. Signals are immutable once emitted;
// producers own a signal until it is pushed onto the bus.
package signal

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the class of observation a signal carries.
// The set is closed; plugins emit TypePluginEvent with a typed payload
// rather than inventing new signal types.
type Type string

const (
	TypeUserMessage      Type = "user_message"
	TypeSocialDebt       Type = "social_debt"
	TypeEnergy           Type = "energy"
	TypeContactPressure  Type = "contact_pressure"
	TypeTick             Type = "tick"
	TypeHourChanged      Type = "hour_changed"
	TypeTimeOfDay        Type = "time_of_day"
	TypePatternBreak     Type = "pattern_break"
	TypeThresholdCrossed Type = "threshold_crossed"
	TypePluginEvent      Type = "plugin_event"
	TypeMotorResult      Type = "motor_result"
	TypeThought          Type = "thought"
	TypeMessageReaction  Type = "message_reaction"
	TypeContactUrge      Type = "contact_urge"
)

// Valid reports whether t is one of the closed set of signal types.
func (t Type) Valid() bool {
	switch t {
	case TypeUserMessage, TypeSocialDebt, TypeEnergy, TypeContactPressure,
		TypeTick, TypeHourChanged, TypeTimeOfDay, TypePatternBreak,
		TypeThresholdCrossed, TypePluginEvent, TypeMotorResult,
		TypeThought, TypeMessageReaction, TypeContactUrge:
		return true
	}
	return false
}

// Priority orders signals on the bus. Lower numeric value dequeues first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
	PriorityIdle
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Metrics holds the numeric observation attached to a signal.
// Value and Confidence are clamped to [0,1]; RateOfChange is signed.
type Metrics struct {
	Value        float64
	RateOfChange float64
	// PreviousValue is nil when the producer has no prior observation.
	PreviousValue *float64
	Confidence    float64
}

// Signal is a typed, timestamped observation entering the pipeline.
type Signal struct {
	ID            string
	Type          Type
	Source        string // dotted label: neuron.<name>, sense.<channel>, plugin.<id>, meta.pattern_detector, cognition.thought
	Priority      Priority
	Timestamp     time.Time
	CorrelationID string // groups signals emitted in the same tick
	Metrics       Metrics
	Payload       Payload // optional typed payload, nil for bare observations
}

// New constructs a signal with a fresh ID, clamped metrics and the current time.
func New(typ Type, source string, priority Priority, metrics Metrics) *Signal {
	metrics.Value = Clamp01(metrics.Value)
	metrics.Confidence = Clamp01(metrics.Confidence)
	return &Signal{
		ID:        uuid.New().String(),
		Type:      typ,
		Source:    source,
		Priority:  priority,
		Timestamp: time.Now(),
		Metrics:   metrics,
	}
}

// WithPayload attaches a typed payload and returns the signal for chaining.
func (s *Signal) WithPayload(p Payload) *Signal {
	s.Payload = p
	return s
}

// WithCorrelation stamps the correlation id and returns the signal for chaining.
func (s *Signal) WithCorrelation(correlationID string) *Signal {
	s.CorrelationID = correlationID
	return s
}

// ThoughtDepth returns the recursion depth carried by a thought payload,
// or 0 for non-thought signals.
func (s *Signal) ThoughtDepth() int {
	if p, ok := s.Payload.(*ThoughtPayload); ok {
		return p.Depth
	}
	return 0
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Payload is the closed set of typed signal payloads.
type Payload interface {
	payloadKind() string
}

// UserMessagePayload carries a normalized inbound message from a channel.
type UserMessagePayload struct {
	ChatID    string
	Text      string
	UserID    string
	MessageID string
	Channel   string
}

func (*UserMessagePayload) payloadKind() string { return "user_message" }

// ThoughtPayload carries an internally generated thought.
// Depth is derived from the triggering signal by the thought governor,
// never supplied by the producer.
type ThoughtPayload struct {
	Content   string
	Depth     int
	DedupeKey string
	TriggerID string // id of the signal that triggered this thought
}

func (*ThoughtPayload) payloadKind() string { return "thought" }

// TimePayload carries clock observations (hour_changed, time_of_day).
type TimePayload struct {
	Hour      int
	Minute    int
	TimeOfDay string // morning, afternoon, evening, night
}

func (*TimePayload) payloadKind() string { return "time" }

// PatternPayload describes a detected pattern break.
type PatternPayload struct {
	Pattern    string
	Confidence float64
	Evidence   string
}

func (*PatternPayload) payloadKind() string { return "pattern" }

// PluginEventPayload carries an opaque event emitted by a plugin or a
// fired schedule entry.
type PluginEventPayload struct {
	PluginID string
	Kind     string
	Data     map[string]string
}

func (*PluginEventPayload) payloadKind() string { return "plugin_event" }

// MotorResultPayload reports the outcome of an executed intent back into
// the pipeline.
type MotorResultPayload struct {
	IntentID string
	Kind     IntentKind
	Success  bool
	Error    string
}

func (*MotorResultPayload) payloadKind() string { return "motor_result" }

// ReactionPayload carries a user reaction to a previously sent message.
type ReactionPayload struct {
	MessageID string
	Emoji     string
	Positive  bool
}

func (*ReactionPayload) payloadKind() string { return "reaction" }
