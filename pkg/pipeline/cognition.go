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
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/bus"
	"github.com/teradata-labs/vigil/pkg/llm"
	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/signal"
	"github.com/teradata-labs/vigil/pkg/state"
	"github.com/teradata-labs/vigil/pkg/tool"
)

// Situation is the deterministic classification of a tick's trigger signal.
type Situation string

const (
	SituationUserMessage      Situation = "user_message"
	SituationProactiveContact Situation = "proactive_contact"
	SituationPatternAnomaly   Situation = "pattern_anomaly"
	SituationChannelIssue     Situation = "channel_issue"
	SituationTimeEvent        Situation = "time_event"
	SituationThought          Situation = "thought"
)

// Action is what cognition decided to do about the situation.
type Action string

const (
	ActionRespond  Action = "respond"
	ActionInitiate Action = "initiate"
	ActionEscalate Action = "escalate"
	ActionNone     Action = "none"
)

const (
	// maxFastComplexity is the user-message complexity above which the
	// fast tier is not trusted to answer.
	maxFastComplexity = 0.6

	// escalationThreshold is the minimum classifier confidence below
	// which the smart tier is consulted.
	escalationThreshold = 0.7
)

// CognitionConfig tunes one cognition turn.
type CognitionConfig struct {
	// MaxToolCallsPerTurn bounds side-effectful tool executions in one turn.
	MaxToolCallsPerTurn int

	// MaxToolRounds bounds model round-trips within the tool loop.
	MaxToolRounds int

	// TurnTimeout caps a whole turn including LLM calls.
	TurnTimeout time.Duration

	// DefaultChannel and PrimaryTarget address proactive messages.
	DefaultChannel string
	PrimaryTarget  string
}

// DefaultCognitionConfig returns the runtime defaults.
func DefaultCognitionConfig() CognitionConfig {
	return CognitionConfig{
		MaxToolCallsPerTurn: 3,
		MaxToolRounds:       4,
		TurnTimeout:         30 * time.Second,
	}
}

// Decision is the output of one cognition turn.
type Decision struct {
	Situation Situation
	Action    Action
	Escalated bool
	Intents   []*signal.Intent
}

// Cognition classifies the situation behind a wake decision and turns it
// into intents. It owns the fast/smart escalation rules, the agentic tool
// loop and the thought governor. Turns are strictly non-reentrant.
type Cognition struct {
	provider llm.Provider
	counter  *llm.Counter
	tools    *tool.Registry
	bus      *bus.Bus
	machine  *state.Machine
	metrics  *observability.Metrics
	logger   *zap.Logger
	config   CognitionConfig

	running  atomic.Bool
	thoughts *thoughtGovernor

	// pendingSmart forces the smart path on the next turn, set when a
	// tool result asked to escalate. The heartbeat reads it between
	// turns to wake cognition even on a quiet tick.
	pendingSmart atomic.Bool

	// pendingTrigger carries the escalated turn's trigger so the next
	// turn has a subject even when the tick drained nothing. Touched
	// only inside a claimed turn.
	pendingTrigger *signal.Signal
}

// NewCognition wires the stage.
func NewCognition(provider llm.Provider, counter *llm.Counter, tools *tool.Registry, b *bus.Bus, machine *state.Machine, config CognitionConfig, metrics *observability.Metrics, logger *zap.Logger) *Cognition {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxToolCallsPerTurn <= 0 {
		config.MaxToolCallsPerTurn = 3
	}
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = 4
	}
	if config.TurnTimeout <= 0 {
		config.TurnTimeout = 30 * time.Second
	}
	return &Cognition{
		provider: provider,
		counter:  counter,
		tools:    tools,
		bus:      b,
		machine:  machine,
		metrics:  metrics,
		logger:   logger,
		config:   config,
		thoughts: newThoughtGovernor(metrics, logger),
	}
}

// TryBegin claims the turn. It returns false while a turn is in flight;
// the caller must then skip cognition for this tick.
func (c *Cognition) TryBegin() bool {
	return c.running.CompareAndSwap(false, true)
}

// End releases the turn claimed by TryBegin.
func (c *Cognition) End() {
	c.running.Store(false)
}

// Busy reports whether a turn is in flight.
func (c *Cognition) Busy() bool {
	return c.running.Load()
}

// PendingEscalation reports whether a tool escalation is waiting for its
// smart-tier turn.
func (c *Cognition) PendingEscalation() bool {
	return c.pendingSmart.Load()
}

// Run executes one cognition turn. The caller has already claimed the
// turn via TryBegin. A failed turn returns the empty decision; failures
// never propagate past the stage.
func (c *Cognition) Run(ctx context.Context, wake WakeDecision, tickID string) Decision {
	ctx, cancel := context.WithTimeout(ctx, c.config.TurnTimeout)
	defer cancel()

	trigger := pickTrigger(wake.Signals)
	if trigger == nil {
		// A pending escalation may arrive on a quiet tick; resume it
		// with the trigger the escalating turn saved.
		if !c.pendingSmart.Load() || c.pendingTrigger == nil {
			return Decision{Situation: "", Action: ActionNone}
		}
		trigger = c.pendingTrigger
	}

	situation, confidence := classify(trigger)
	decision := Decision{Situation: situation}
	decision.Escalated = c.shouldEscalate(situation, confidence, trigger)
	c.pendingSmart.Store(false)
	c.pendingTrigger = nil

	switch situation {
	case SituationUserMessage:
		decision.Action = ActionRespond
	case SituationProactiveContact:
		decision.Action = ActionInitiate
	case SituationThought:
		decision.Action = ActionRespond
	case SituationPatternAnomaly:
		// Reflect instead of speaking; the thought re-enters the bus
		// and may become a proactive contact on a later tick.
		c.EmitThought(anomalyThought(trigger), trigger, time.Now(), tickID)
		decision.Action = ActionNone
		return decision
	case SituationTimeEvent:
		if trigger.Type == signal.TypePluginEvent {
			// Plugin events become thoughts so a later tick can decide
			// whether they warrant contact.
			c.EmitThought(pluginThought(trigger), trigger, time.Now(), tickID)
		}
		decision.Action = ActionNone
		return decision
	case SituationChannelIssue:
		decision.Action = ActionNone
		return decision
	}

	intents, err := c.compose(ctx, trigger, situation, decision.Escalated, tickID)
	if err != nil {
		c.metrics.Inc(observability.MetricCognitionFailure)
		c.logger.Warn("cognition_turn_failed",
			zap.String("tick_id", tickID),
			zap.String("situation", string(situation)),
			zap.Error(err))
		decision.Action = ActionNone
		return decision
	}
	decision.Intents = intents
	if len(intents) == 0 {
		decision.Action = ActionNone
	}
	return decision
}

// EmitThought pushes a governed thought signal onto the bus. The returned
// error is one of the governor sentinels; callers treat all of them as
// silent drops.
func (c *Cognition) EmitThought(content string, trigger *signal.Signal, now time.Time, tickID string) (*signal.Signal, error) {
	depth, err := c.thoughts.admit(content, trigger, now, tickID)
	if err != nil {
		return nil, err
	}
	payload := &signal.ThoughtPayload{
		Content:   content,
		Depth:     depth,
		DedupeKey: dedupeKey(content),
	}
	if trigger != nil {
		payload.TriggerID = trigger.ID
	}
	sig := signal.New(signal.TypeThought, "cognition.thought", signal.PriorityNormal, signal.Metrics{
		Value:      c.machine.Snapshot().ThoughtPressure,
		Confidence: 1.0,
	}).WithPayload(payload).WithCorrelation(tickID)
	if err := c.bus.Push(sig); err != nil {
		return nil, err
	}
	return sig, nil
}

// pickTrigger chooses the signal the turn is about: user messages first,
// then the highest-priority survivor in drain order.
func pickTrigger(signals []*signal.Signal) *signal.Signal {
	var best *signal.Signal
	for _, sig := range signals {
		if sig.Type == signal.TypeUserMessage {
			return sig
		}
		if best == nil || sig.Priority < best.Priority {
			best = sig
		}
	}
	return best
}

// classify maps a trigger signal to a situation with a rule confidence.
// Deterministic; no model involvement.
func classify(trigger *signal.Signal) (Situation, float64) {
	switch trigger.Type {
	case signal.TypeUserMessage, signal.TypeMessageReaction:
		return SituationUserMessage, 1.0
	case signal.TypeThought:
		return SituationThought, 0.9
	case signal.TypePatternBreak:
		return SituationPatternAnomaly, trigger.Metrics.Confidence
	case signal.TypeTimeOfDay, signal.TypeHourChanged, signal.TypePluginEvent:
		return SituationTimeEvent, 0.8
	case signal.TypeMotorResult:
		if p, ok := trigger.Payload.(*signal.MotorResultPayload); ok &&
			!p.Success && p.Kind == signal.IntentSendMessage {
			return SituationChannelIssue, 0.9
		}
		return SituationThought, 0.8
	case signal.TypeContactUrge, signal.TypeContactPressure, signal.TypeSocialDebt,
		signal.TypeEnergy, signal.TypeThresholdCrossed:
		return SituationProactiveContact, 0.75
	}
	return SituationProactiveContact, 0.5
}

func (c *Cognition) shouldEscalate(situation Situation, confidence float64, trigger *signal.Signal) bool {
	if c.pendingSmart.Load() {
		return true
	}
	if situation == SituationProactiveContact {
		return true
	}
	if confidence < escalationThreshold {
		return true
	}
	if situation == SituationUserMessage {
		if p, ok := trigger.Payload.(*signal.UserMessagePayload); ok {
			return c.counter.Complexity(p.Text) > maxFastComplexity
		}
	}
	return false
}

// compose runs the model (with the tool loop) and turns its answer into
// intents. A smart-path failure downgrades to the fast path before giving
// up; a fast-path failure fails the turn.
func (c *Cognition) compose(ctx context.Context, trigger *signal.Signal, situation Situation, escalated bool, tickID string) ([]*signal.Intent, error) {
	role := llm.RoleFast
	if escalated {
		role = llm.RoleSmart
	}

	resp, err := c.converse(ctx, trigger, situation, role)
	if err != nil && role == llm.RoleSmart {
		c.logger.Warn("smart_path_failed_downgrading", zap.Error(err))
		resp, err = c.converse(ctx, trigger, situation, llm.RoleFast)
	}
	if err != nil {
		return nil, err
	}
	if resp.Content == "" {
		return nil, nil
	}

	trace := signal.Trace{TickID: tickID, ParentSignalID: trigger.ID}
	intent := signal.NewIntent(signal.IntentSendMessage, trace)
	intent.SendMessage = &signal.SendMessageIntent{
		Target:  c.target(trigger),
		Text:    resp.Content,
		Channel: c.channelFor(trigger),
	}
	if intent.SendMessage.Target == "" {
		// Nowhere to deliver; proactive contact without a configured
		// primary target stays silent.
		return nil, nil
	}
	return []*signal.Intent{intent}, nil
}

// converse runs the model round-trips for one turn, executing requested
// tools between rounds.
func (c *Cognition) converse(ctx context.Context, trigger *signal.Signal, situation Situation, role llm.Role) (*llm.Response, error) {
	messages := c.seedMessages(trigger, situation)
	sideEffects := 0

	for round := 0; round < c.config.MaxToolRounds; round++ {
		req := &llm.Request{
			Messages: messages,
			Role:     role,
			Tools:    c.tools.ListTools(),
		}
		c.machine.RecordLLMCall()
		c.metrics.Inc(observability.MetricLLMCall)
		resp, err := c.provider.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.ToolCalls) == 0 {
			return resp, nil
		}

		assistant := llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}
		messages = append(messages, assistant)
		for _, call := range resp.ToolCalls {
			reply, escalate := c.runTool(ctx, call, &sideEffects)
			messages = append(messages, reply)
			if escalate {
				c.pendingSmart.Store(true)
				c.pendingTrigger = trigger
				return resp, nil
			}
		}
	}
	return nil, fmt.Errorf("tool loop exceeded %d rounds", c.config.MaxToolRounds)
}

// runTool executes one requested tool call and renders its result as a
// tool-role message. The side-effect budget is shared across the turn.
func (c *Cognition) runTool(ctx context.Context, call llm.ToolCall, sideEffects *int) (llm.Message, bool) {
	reply := llm.Message{Role: "tool", ToolCallID: call.ID}

	t, ok := c.tools.Get(call.Name)
	if !ok {
		reply.Content = fmt.Sprintf(`{"error": "unknown tool %s"}`, call.Name)
		return reply, false
	}
	if t.HasSideEffects() {
		if *sideEffects >= c.config.MaxToolCallsPerTurn {
			c.metrics.Inc(observability.MetricToolOverBudget)
			reply.Content = `{"error": "side-effect budget exhausted this turn"}`
			return reply, false
		}
		*sideEffects++
	}

	result, err := t.Execute(ctx, call.Input)
	if err != nil {
		reply.Content = fmt.Sprintf(`{"error": %q}`, err.Error())
		return reply, false
	}
	rendered, merr := json.Marshal(result)
	if merr != nil {
		reply.Content = `{"error": "unrenderable tool result"}`
		return reply, false
	}
	reply.Content = string(rendered)
	return reply, result.EscalateToSmart
}

func (c *Cognition) seedMessages(trigger *signal.Signal, situation Situation) []llm.Message {
	snapshot := c.machine.Snapshot()
	identity := c.machine.Identity()
	system := fmt.Sprintf(
		"You are %s. Energy %.2f, social debt %.2f, mode %s. Reply with the message text only.",
		identity.Name, snapshot.Energy, snapshot.SocialDebt, c.machine.Mode())

	var user string
	switch situation {
	case SituationUserMessage:
		if p, ok := trigger.Payload.(*signal.UserMessagePayload); ok {
			user = p.Text
		}
	case SituationThought:
		if p, ok := trigger.Payload.(*signal.ThoughtPayload); ok {
			user = "You had a thought: " + p.Content
		}
	case SituationProactiveContact:
		user = fmt.Sprintf(
			"You feel like reaching out (signal %s, level %.2f). Compose a short, natural message, or reply with nothing to stay quiet.",
			trigger.Type, trigger.Metrics.Value)
	}
	if user == "" {
		user = fmt.Sprintf("Signal %s from %s at level %.2f.", trigger.Type, trigger.Source, trigger.Metrics.Value)
	}

	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

func (c *Cognition) target(trigger *signal.Signal) string {
	if p, ok := trigger.Payload.(*signal.UserMessagePayload); ok && p.ChatID != "" {
		return p.ChatID
	}
	return c.config.PrimaryTarget
}

func (c *Cognition) channelFor(trigger *signal.Signal) string {
	if p, ok := trigger.Payload.(*signal.UserMessagePayload); ok && p.Channel != "" {
		return p.Channel
	}
	return c.config.DefaultChannel
}

func pluginThought(trigger *signal.Signal) string {
	if p, ok := trigger.Payload.(*signal.PluginEventPayload); ok {
		return fmt.Sprintf("Event from %s: %s", p.PluginID, p.Kind)
	}
	return fmt.Sprintf("An event fired from %s", trigger.Source)
}

func anomalyThought(trigger *signal.Signal) string {
	if p, ok := trigger.Payload.(*signal.PatternPayload); ok {
		return fmt.Sprintf("Something changed: %s (%s)", p.Pattern, p.Evidence)
	}
	return fmt.Sprintf("Something changed in %s", trigger.Type)
}
