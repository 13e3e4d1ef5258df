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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/vigil/pkg/ack"
	"github.com/teradata-labs/vigil/pkg/bus"
	"github.com/teradata-labs/vigil/pkg/channel"
	"github.com/teradata-labs/vigil/pkg/detect"
	"github.com/teradata-labs/vigil/pkg/fabric"
	"github.com/teradata-labs/vigil/pkg/filter"
	"github.com/teradata-labs/vigil/pkg/llm"
	"github.com/teradata-labs/vigil/pkg/neuron"
	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/signal"
	"github.com/teradata-labs/vigil/pkg/state"
	"github.com/teradata-labs/vigil/pkg/tool"
)

func newMachine() *state.Machine {
	return state.NewMachine(state.Identity{Name: "vigil"}, state.NewEnergyModel(state.DefaultEnergyConfig()), state.DefaultMachineConfig(), nil, nil)
}

type constantNeuron struct {
	neuron.Base
	sig *signal.Signal
}

func (n *constantNeuron) Check(tc neuron.TickContext) *signal.Signal { return n.sig }

func TestAutonomicRunsNeuronsThroughFiltersToBus(t *testing.T) {
	metrics := observability.NewMetrics()
	neurons := neuron.NewRegistry(metrics, nil)
	filters := filter.NewChain(metrics, nil)
	b := bus.New(16, metrics, nil)
	machine := newMachine()

	sig := signal.New(signal.TypeSocialDebt, "neuron.social_debt", signal.PriorityNormal, signal.Metrics{Value: 0.8, Confidence: 0.9})
	require.NoError(t, neurons.Register(&constantNeuron{Base: neuron.NewBase("social_debt", 0), sig: sig}))

	stage := NewAutonomic(neurons, filters, b, nil)
	pushed := stage.Run(time.Now(), "tick-1", machine)

	assert.Equal(t, 1, pushed)
	drained := b.Drain(10)
	require.Len(t, drained, 1)
	assert.Equal(t, "tick-1", drained[0].CorrelationID)
}

func TestAutonomicAppliesRegistrationsAtBoundary(t *testing.T) {
	metrics := observability.NewMetrics()
	neurons := neuron.NewRegistry(metrics, nil)
	filters := filter.NewChain(metrics, nil)
	b := bus.New(16, metrics, nil)
	stage := NewAutonomic(neurons, filters, b, nil)
	machine := newMachine()

	// Registered before the run, so the boundary activation picks it up.
	sig := signal.New(signal.TypeEnergy, "neuron.energy", signal.PriorityLow, signal.Metrics{Value: 0.1, Confidence: 1})
	require.NoError(t, neurons.Register(&constantNeuron{Base: neuron.NewBase("energy", 0), sig: sig}))
	assert.Equal(t, 0, neurons.Len())

	stage.Run(time.Now(), "tick-1", machine)
	assert.Equal(t, 1, neurons.Len())
}

func newAggregation(metrics *observability.Metrics) (*Aggregation, *ack.Registry) {
	acks := ack.NewRegistry(0, metrics, nil)
	change := detect.NewChangeDetector(detect.DefaultChangeConfig())
	patterns := detect.NewPatternDetector(detect.DefaultPatternConfig(), nil)
	return NewAggregation(DefaultAggregationConfig(), acks, change, patterns, metrics, nil), acks
}

func TestAggregationWakesOnUserMessage(t *testing.T) {
	g, _ := newAggregation(observability.NewMetrics())

	sig := signal.New(signal.TypeUserMessage, "sense.mock", signal.PriorityHigh, signal.Metrics{Confidence: 1})
	decision := g.Run(time.Now(), "tick-1", 0.7, 0.7, []*signal.Signal{sig})

	assert.True(t, decision.ShouldWake)
	assert.Equal(t, "user_message", decision.Reason)
	assert.Len(t, decision.Signals, 1)
}

func TestAggregationWakesOnContactPressure(t *testing.T) {
	g, _ := newAggregation(observability.NewMetrics())
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	sig := signal.New(signal.TypeContactPressure, "neuron.contact_urge", signal.PriorityNormal, signal.Metrics{Value: 0.72, Confidence: 0.8})
	decision := g.Run(noon, "tick-1", 0.7, 0.7, []*signal.Signal{sig})

	assert.True(t, decision.ShouldWake)
	assert.Equal(t, "contact_pressure", decision.Reason)
}

func TestAggregationContactThresholdRisesWhenDepleted(t *testing.T) {
	g, _ := newAggregation(observability.NewMetrics())
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// 0.72 clears the base threshold during the day, but not with the
	// low-energy adjustment on top.
	sig := signal.New(signal.TypeContactPressure, "neuron.contact_urge", signal.PriorityNormal, signal.Metrics{Value: 0.72, Confidence: 0.8})
	decision := g.Run(noon, "tick-1", 0.7, 0.2, []*signal.Signal{sig})
	assert.False(t, decision.ShouldWake)

	assert.InDelta(t, 0.75, g.contactThreshold(noon, 0.2), 1e-9)
}

func TestAggregationContactThresholdRisesAtNight(t *testing.T) {
	g, _ := newAggregation(observability.NewMetrics())
	night := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)

	sig := signal.New(signal.TypeContactPressure, "neuron.contact_urge", signal.PriorityNormal, signal.Metrics{Value: 0.72, Confidence: 0.8})
	decision := g.Run(night, "tick-1", 0.7, 0.7, []*signal.Signal{sig})
	assert.False(t, decision.ShouldWake)

	assert.InDelta(t, 0.8, g.contactThreshold(night, 0.7), 1e-9)
	// Depleted and night together cap at 0.95.
	assert.InDelta(t, 0.95, g.contactThreshold(night, 0.1), 1e-9)
}

func TestAggregationWakesOnThought(t *testing.T) {
	g, _ := newAggregation(observability.NewMetrics())

	thought := signal.New(signal.TypeThought, "cognition.thought", signal.PriorityNormal, signal.Metrics{Value: 0.4, Confidence: 1}).
		WithPayload(&signal.ThoughtPayload{Content: "should I check in?", Depth: 1})
	decision := g.Run(time.Now(), "tick-1", 0.7, 0.7, []*signal.Signal{thought})

	assert.True(t, decision.ShouldWake)
	assert.Equal(t, "thought", decision.Reason)
}

func TestAggregationWakesOnPluginEvent(t *testing.T) {
	g, _ := newAggregation(observability.NewMetrics())

	event := signal.New(signal.TypePluginEvent, "schedule.core", signal.PriorityNormal, signal.Metrics{Value: 1, Confidence: 1}).
		WithPayload(&signal.PluginEventPayload{PluginID: "core", Kind: "schedule_fired"})
	decision := g.Run(time.Now(), "tick-1", 0.7, 0.7, []*signal.Signal{event})

	assert.True(t, decision.ShouldWake)
	assert.Equal(t, "plugin_event", decision.Reason)
}

func TestAggregationStaysQuietBelowThresholds(t *testing.T) {
	g, _ := newAggregation(observability.NewMetrics())

	sig := signal.New(signal.TypeEnergy, "neuron.energy", signal.PriorityLow, signal.Metrics{Value: 0.4, Confidence: 0.8})
	decision := g.Run(time.Now(), "tick-1", 0.7, 0.7, []*signal.Signal{sig})

	assert.False(t, decision.ShouldWake)
	assert.Empty(t, decision.Reason)
	assert.Len(t, decision.Signals, 1)
}

func TestAggregationDropsBlockedSignals(t *testing.T) {
	metrics := observability.NewMetrics()
	g, acks := newAggregation(metrics)
	acks.Register(&ack.Ack{SignalType: signal.TypeContactUrge, Kind: ack.KindSuppressed, Reason: "told to stop"})

	sig := signal.New(signal.TypeContactUrge, "neuron.contact_urge", signal.PriorityNormal, signal.Metrics{Value: 0.7, Confidence: 0.8})
	decision := g.Run(time.Now(), "tick-1", 0.7, 0.7, []*signal.Signal{sig})

	assert.Empty(t, decision.Signals)
	assert.False(t, decision.ShouldWake)
	assert.Equal(t, int64(1), metrics.Get(observability.MetricAckBlocked))
}

func TestAggregationDeferralValueOverride(t *testing.T) {
	metrics := observability.NewMetrics()
	g, acks := newAggregation(metrics)
	valueAtAck := 0.4
	acks.Register(&ack.Ack{
		SignalType: signal.TypeContactUrge,
		Kind:       ack.KindDeferred,
		DeferUntil: time.Now().Add(4 * time.Hour),
		ValueAtAck: &valueAtAck,
	})

	// Below the override delta: still blocked.
	low := signal.New(signal.TypeContactUrge, "neuron.contact_urge", signal.PriorityNormal, signal.Metrics{Value: 0.5, Confidence: 0.8})
	decision := g.Run(time.Now(), "tick-1", 0.7, 0.7, []*signal.Signal{low})
	assert.Empty(t, decision.Signals)

	// 0.70 - 0.40 >= 0.25: the deferral is overridden.
	high := signal.New(signal.TypeContactUrge, "neuron.contact_urge", signal.PriorityNormal, signal.Metrics{Value: 0.70, Confidence: 0.8})
	decision = g.Run(time.Now(), "tick-2", 0.7, 0.7, []*signal.Signal{high})
	assert.Len(t, decision.Signals, 1)
	assert.Equal(t, int64(1), metrics.Get(observability.MetricAckOverride))
}

func TestAggregationDropsMalformedSignals(t *testing.T) {
	metrics := observability.NewMetrics()
	g, _ := newAggregation(metrics)

	bad := signal.New("not_a_type", "", signal.PriorityNormal, signal.Metrics{})
	decision := g.Run(time.Now(), "tick-1", 0.7, 0.7, []*signal.Signal{bad, nil})

	assert.Empty(t, decision.Signals)
	assert.Equal(t, int64(2), metrics.Get(observability.MetricMalformedSignal))
}

func TestAggregationComputesRates(t *testing.T) {
	g, _ := newAggregation(observability.NewMetrics())
	now := time.Now()

	first := signal.New(signal.TypeSocialDebt, "neuron.social_debt", signal.PriorityNormal, signal.Metrics{Value: 0.3, Confidence: 0.8})
	g.Run(now, "tick-1", 0.7, 0.7, []*signal.Signal{first})

	second := signal.New(signal.TypeSocialDebt, "neuron.social_debt", signal.PriorityNormal, signal.Metrics{Value: 0.5, Confidence: 0.8})
	decision := g.Run(now.Add(10*time.Second), "tick-2", 0.7, 0.7, []*signal.Signal{second})

	agg := decision.Aggregates[signal.TypeSocialDebt]
	require.NotNil(t, agg)
	assert.InDelta(t, 0.2, agg.RateOfChange, 1e-9)
}

func newCognition(provider llm.Provider, b *bus.Bus, machine *state.Machine, metrics *observability.Metrics) *Cognition {
	config := DefaultCognitionConfig()
	config.PrimaryTarget = "42"
	config.DefaultChannel = "mock"
	return NewCognition(provider, llm.NewCounter(), tool.NewRegistry(), b, machine, config, metrics, nil)
}

func userMessageSignal(text string) *signal.Signal {
	return signal.New(signal.TypeUserMessage, "sense.mock", signal.PriorityHigh, signal.Metrics{Confidence: 1}).
		WithPayload(&signal.UserMessagePayload{ChatID: "42", Text: text, Channel: "mock"})
}

func TestCognitionRespondsToUserMessage(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockTurn{Response: &llm.Response{Content: "hi there", StopReason: "stop"}})
	b := bus.New(16, nil, nil)
	c := newCognition(provider, b, newMachine(), observability.NewMetrics())

	wake := WakeDecision{ShouldWake: true, Signals: []*signal.Signal{userMessageSignal("hello")}}
	require.True(t, c.TryBegin())
	decision := c.Run(context.Background(), wake, "tick-1")
	c.End()

	assert.Equal(t, SituationUserMessage, decision.Situation)
	assert.Equal(t, ActionRespond, decision.Action)
	require.Len(t, decision.Intents, 1)
	require.Equal(t, signal.IntentSendMessage, decision.Intents[0].Kind)
	assert.Equal(t, "42", decision.Intents[0].SendMessage.Target)
	assert.Equal(t, "hi there", decision.Intents[0].SendMessage.Text)

	// A short greeting stays on the fast tier.
	assert.False(t, decision.Escalated)
	require.Equal(t, 1, provider.Calls())
	assert.Equal(t, llm.RoleFast, provider.Requests[0].Role)
}

func TestCognitionEscalatesProactiveContact(t *testing.T) {
	provider := llm.NewMockProvider(llm.MockTurn{Response: &llm.Response{Content: "thinking of you", StopReason: "stop"}})
	b := bus.New(16, nil, nil)
	c := newCognition(provider, b, newMachine(), observability.NewMetrics())

	urge := signal.New(signal.TypeContactUrge, "neuron.contact_urge", signal.PriorityNormal, signal.Metrics{Value: 0.8, Confidence: 0.8})
	wake := WakeDecision{ShouldWake: true, Signals: []*signal.Signal{urge}}
	require.True(t, c.TryBegin())
	decision := c.Run(context.Background(), wake, "tick-1")
	c.End()

	assert.True(t, decision.Escalated)
	assert.Equal(t, ActionInitiate, decision.Action)
	require.Len(t, decision.Intents, 1)
	assert.Equal(t, "42", decision.Intents[0].SendMessage.Target)
	assert.Equal(t, llm.RoleSmart, provider.Requests[0].Role)
}

func TestCognitionSmartFailureDowngradesToFast(t *testing.T) {
	provider := llm.NewMockProvider(
		llm.MockTurn{Err: fabric.Transient("smart tier down", nil)},
		llm.MockTurn{Response: &llm.Response{Content: "short version", StopReason: "stop"}},
	)
	b := bus.New(16, nil, nil)
	c := newCognition(provider, b, newMachine(), observability.NewMetrics())

	urge := signal.New(signal.TypeContactUrge, "neuron.contact_urge", signal.PriorityNormal, signal.Metrics{Value: 0.8, Confidence: 0.8})
	wake := WakeDecision{ShouldWake: true, Signals: []*signal.Signal{urge}}
	require.True(t, c.TryBegin())
	decision := c.Run(context.Background(), wake, "tick-1")
	c.End()

	require.Len(t, decision.Intents, 1)
	assert.Equal(t, "short version", decision.Intents[0].SendMessage.Text)
	require.Equal(t, 2, provider.Calls())
	assert.Equal(t, llm.RoleSmart, provider.Requests[0].Role)
	assert.Equal(t, llm.RoleFast, provider.Requests[1].Role)
}

func TestCognitionFastFailureEmitsNothing(t *testing.T) {
	metrics := observability.NewMetrics()
	provider := llm.NewMockProvider(llm.MockTurn{Err: fabric.Transient("provider down", nil)})
	b := bus.New(16, nil, nil)
	c := newCognition(provider, b, newMachine(), metrics)

	wake := WakeDecision{ShouldWake: true, Signals: []*signal.Signal{userMessageSignal("hi")}}
	require.True(t, c.TryBegin())
	decision := c.Run(context.Background(), wake, "tick-1")
	c.End()

	assert.Equal(t, ActionNone, decision.Action)
	assert.Empty(t, decision.Intents)
	assert.Equal(t, int64(1), metrics.Get(observability.MetricCognitionFailure))
}

func TestCognitionReentrancyGuard(t *testing.T) {
	c := newCognition(llm.NewMockProvider(), bus.New(16, nil, nil), newMachine(), observability.NewMetrics())

	require.True(t, c.TryBegin())
	assert.True(t, c.Busy())
	assert.False(t, c.TryBegin())
	c.End()
	assert.True(t, c.TryBegin())
	c.End()
}

type recordingTool struct {
	name        string
	sideEffects bool
	result      *tool.Result
	calls       int
}

func (r *recordingTool) Name() string                  { return r.name }
func (r *recordingTool) Description() string           { return "test tool" }
func (r *recordingTool) InputSchema() *tool.JSONSchema { return &tool.JSONSchema{Type: "object"} }
func (r *recordingTool) HasSideEffects() bool          { return r.sideEffects }

func (r *recordingTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.Result, error) {
	r.calls++
	return r.result, nil
}

func TestCognitionToolLoopExecutesAndFinishes(t *testing.T) {
	provider := llm.NewMockProvider(
		llm.MockTurn{Response: &llm.Response{
			ToolCalls:  []llm.ToolCall{{ID: "c1", Name: "test.lookup", Input: map[string]interface{}{"key": "x"}}},
			StopReason: "tool_calls",
		}},
		llm.MockTurn{Response: &llm.Response{Content: "done", StopReason: "stop"}},
	)
	b := bus.New(16, nil, nil)
	machine := newMachine()
	metrics := observability.NewMetrics()
	c := newCognition(provider, b, machine, metrics)

	lookup := &recordingTool{name: "test.lookup", result: tool.OK(map[string]string{"value": "y"})}
	c.tools.Register(lookup)

	wake := WakeDecision{ShouldWake: true, Signals: []*signal.Signal{userMessageSignal("look something up")}}
	require.True(t, c.TryBegin())
	decision := c.Run(context.Background(), wake, "tick-1")
	c.End()

	assert.Equal(t, 1, lookup.calls)
	require.Len(t, decision.Intents, 1)
	assert.Equal(t, "done", decision.Intents[0].SendMessage.Text)
	require.Equal(t, 2, provider.Calls())
	// The tool result travels back as a tool-role message.
	last := provider.Requests[1].Messages[len(provider.Requests[1].Messages)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
}

func TestCognitionToolSideEffectBudget(t *testing.T) {
	calls := []llm.ToolCall{
		{ID: "c1", Name: "test.write", Input: nil},
		{ID: "c2", Name: "test.write", Input: nil},
	}
	provider := llm.NewMockProvider(
		llm.MockTurn{Response: &llm.Response{ToolCalls: calls, StopReason: "tool_calls"}},
		llm.MockTurn{Response: &llm.Response{Content: "done", StopReason: "stop"}},
	)
	metrics := observability.NewMetrics()
	c := newCognition(provider, bus.New(16, nil, nil), newMachine(), metrics)
	c.config.MaxToolCallsPerTurn = 1

	write := &recordingTool{name: "test.write", sideEffects: true, result: tool.OK(nil)}
	c.tools.Register(write)

	wake := WakeDecision{ShouldWake: true, Signals: []*signal.Signal{userMessageSignal("write twice")}}
	require.True(t, c.TryBegin())
	c.Run(context.Background(), wake, "tick-1")
	c.End()

	assert.Equal(t, 1, write.calls)
	assert.Equal(t, int64(1), metrics.Get(observability.MetricToolOverBudget))
}

func TestCognitionToolEscalationCarriesToNextTurn(t *testing.T) {
	provider := llm.NewMockProvider(
		llm.MockTurn{Response: &llm.Response{
			ToolCalls:  []llm.ToolCall{{ID: "c1", Name: "test.hard", Input: nil}},
			StopReason: "tool_calls",
		}},
		llm.MockTurn{Response: &llm.Response{Content: "carefully considered", StopReason: "stop"}},
	)
	c := newCognition(provider, bus.New(16, nil, nil), newMachine(), observability.NewMetrics())

	hard := &recordingTool{name: "test.hard", result: &tool.Result{Success: true, EscalateToSmart: true}}
	c.tools.Register(hard)

	wake := WakeDecision{ShouldWake: true, Signals: []*signal.Signal{userMessageSignal("hmm")}}
	require.True(t, c.TryBegin())
	c.Run(context.Background(), wake, "tick-1")
	c.End()
	require.True(t, c.PendingEscalation())

	// The next turn runs on the smart tier regardless of the trigger.
	require.True(t, c.TryBegin())
	c.Run(context.Background(), wake, "tick-2")
	c.End()
	assert.False(t, c.PendingEscalation())
	lastReq := provider.Requests[len(provider.Requests)-1]
	assert.Equal(t, llm.RoleSmart, lastReq.Role)
}

func TestCognitionPendingEscalationRunsOnQuietTick(t *testing.T) {
	provider := llm.NewMockProvider(
		llm.MockTurn{Response: &llm.Response{
			ToolCalls:  []llm.ToolCall{{ID: "c1", Name: "test.hard", Input: nil}},
			StopReason: "tool_calls",
		}},
		llm.MockTurn{Response: &llm.Response{Content: "now with full attention", StopReason: "stop"}},
	)
	c := newCognition(provider, bus.New(16, nil, nil), newMachine(), observability.NewMetrics())

	hard := &recordingTool{name: "test.hard", result: &tool.Result{Success: true, EscalateToSmart: true}}
	c.tools.Register(hard)

	wake := WakeDecision{ShouldWake: true, Signals: []*signal.Signal{userMessageSignal("dig into this")}}
	require.True(t, c.TryBegin())
	c.Run(context.Background(), wake, "tick-1")
	c.End()
	require.True(t, c.PendingEscalation())

	// The next tick drained nothing; the escalated turn still runs, on
	// the saved trigger.
	require.True(t, c.TryBegin())
	decision := c.Run(context.Background(), WakeDecision{}, "tick-2")
	c.End()

	require.Len(t, decision.Intents, 1)
	assert.Equal(t, "now with full attention", decision.Intents[0].SendMessage.Text)
	assert.Equal(t, llm.RoleSmart, provider.Requests[len(provider.Requests)-1].Role)
	assert.False(t, c.PendingEscalation())
}

func TestCognitionPluginEventBecomesThought(t *testing.T) {
	b := bus.New(16, nil, nil)
	c := newCognition(llm.NewMockProvider(), b, newMachine(), observability.NewMetrics())

	event := signal.New(signal.TypePluginEvent, "schedule.core", signal.PriorityNormal, signal.Metrics{Value: 1, Confidence: 1}).
		WithPayload(&signal.PluginEventPayload{PluginID: "core", Kind: "schedule_fired"})
	wake := WakeDecision{ShouldWake: true, Signals: []*signal.Signal{event}}
	require.True(t, c.TryBegin())
	decision := c.Run(context.Background(), wake, "tick-1")
	c.End()

	assert.Equal(t, SituationTimeEvent, decision.Situation)
	assert.Equal(t, ActionNone, decision.Action)
	drained := b.Drain(10)
	require.Len(t, drained, 1)
	assert.Equal(t, signal.TypeThought, drained[0].Type)
}

func TestThoughtGovernorDepthChain(t *testing.T) {
	metrics := observability.NewMetrics()
	b := bus.New(32, nil, nil)
	c := newCognition(llm.NewMockProvider(), b, newMachine(), metrics)
	now := time.Now()

	trigger := userMessageSignal("root")
	for i := 0; i < 10; i++ {
		sig, err := c.EmitThought(fmt.Sprintf("link %d in the chain", i), trigger, now, fmt.Sprintf("tick-%d", i))
		if i < 5 {
			require.NoError(t, err, "link %d", i)
			assert.Equal(t, i, sig.ThoughtDepth())
			trigger = sig
			continue
		}
		require.ErrorIs(t, err, ErrMaxDepth, "link %d", i)
	}
	assert.Equal(t, int64(5), metrics.Get(observability.MetricThoughtMaxDepth))
}

func TestThoughtGovernorPerTickBudget(t *testing.T) {
	metrics := observability.NewMetrics()
	c := newCognition(llm.NewMockProvider(), bus.New(32, nil, nil), newMachine(), metrics)
	now := time.Now()
	trigger := userMessageSignal("root")

	for i := 0; i < MaxThoughtsPerTick; i++ {
		_, err := c.EmitThought(fmt.Sprintf("distinct thought number %d", i), trigger, now, "tick-1")
		require.NoError(t, err)
	}
	_, err := c.EmitThought("one thought too many", trigger, now, "tick-1")
	require.ErrorIs(t, err, ErrThoughtBudget)
	assert.Equal(t, int64(1), metrics.Get(observability.MetricThoughtOverBudget))

	// A new tick resets the budget.
	_, err = c.EmitThought("fresh tick fresh thought", trigger, now, "tick-2")
	assert.NoError(t, err)
}

func TestThoughtGovernorDedupeWindow(t *testing.T) {
	metrics := observability.NewMetrics()
	c := newCognition(llm.NewMockProvider(), bus.New(32, nil, nil), newMachine(), metrics)
	now := time.Now()
	trigger := userMessageSignal("root")

	_, err := c.EmitThought("Should I Check In With Them?", trigger, now, "tick-1")
	require.NoError(t, err)

	// Same head, different casing, inside the window: dropped.
	_, err = c.EmitThought("should i check in with them?", trigger, now.Add(time.Minute), "tick-2")
	require.ErrorIs(t, err, ErrDuplicateThought)
	assert.Equal(t, int64(1), metrics.Get(observability.MetricThoughtDuplicate))

	// Outside the window: admitted again.
	_, err = c.EmitThought("should i check in with them?", trigger, now.Add(11*time.Minute), "tick-3")
	assert.NoError(t, err)
}

type flakyChannel struct {
	failures  int
	sent      []string
	permanent error
}

func (f *flakyChannel) Name() string { return "mock" }

func (f *flakyChannel) Send(ctx context.Context, target, text string, opts channel.SendOptions) (string, error) {
	if f.permanent != nil {
		return "", f.permanent
	}
	if f.failures > 0 {
		f.failures--
		return "", fabric.Transient("send failed", nil)
	}
	f.sent = append(f.sent, text)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func newMotor(ch channel.Channel, b *bus.Bus, machine *state.Machine, metrics *observability.Metrics) (*Motor, *ack.Registry) {
	channels := channel.NewRegistry(nil)
	if ch != nil {
		if err := channels.Register(ch); err != nil {
			panic(err)
		}
	}
	acks := ack.NewRegistry(0, metrics, nil)
	breakers := fabric.NewManager(fabric.DefaultCircuitBreakerConfig(""))
	config := DefaultMotorConfig()
	config.DefaultChannel = "mock"
	config.Retry.InitialDelay = time.Millisecond
	config.Retry.MaxDelay = 2 * time.Millisecond
	m := NewMotor(machine, channels, nil, tool.NewRegistry(), acks, breakers, b, config, metrics, nil)
	return m, acks
}

func sendIntent(text string) *signal.Intent {
	intent := signal.NewIntent(signal.IntentSendMessage, signal.Trace{TickID: "tick-1"})
	intent.SendMessage = &signal.SendMessageIntent{Target: "42", Text: text, Channel: "mock"}
	return intent
}

func TestMotorSendRetryThenSucceed(t *testing.T) {
	metrics := observability.NewMetrics()
	ch := &flakyChannel{failures: 2}
	b := bus.New(16, nil, nil)
	machine := newMachine()
	before := machine.Snapshot().SocialDebt
	m, _ := newMotor(ch, b, machine, metrics)

	m.Execute(context.Background(), []*signal.Intent{sendIntent("hello")}, "tick-1")

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "msg-1", m.LastMessageID("mock"))
	assert.Equal(t, int64(1), metrics.Get(observability.MetricMessageSent))
	assert.Less(t, machine.Snapshot().SocialDebt, before+1e-9)

	// The breaker saw two failures then a success; it must still be closed.
	breaker := m.breakers.Breaker("channel.mock")
	assert.Equal(t, fabric.StateClosed, breaker.State())

	results := b.Drain(10)
	require.Len(t, results, 1)
	payload := results[0].Payload.(*signal.MotorResultPayload)
	assert.True(t, payload.Success)
}

func TestMotorCircuitOpensAfterRepeatedFailures(t *testing.T) {
	metrics := observability.NewMetrics()
	ch := &flakyChannel{failures: 100}
	b := bus.New(16, nil, nil)
	m, _ := newMotor(ch, b, newMachine(), metrics)

	m.Execute(context.Background(), []*signal.Intent{sendIntent("first")}, "tick-1")

	breaker := m.breakers.Breaker("channel.mock")
	assert.Equal(t, fabric.StateOpen, breaker.State())

	// The next send short-circuits without touching the channel.
	remaining := ch.failures
	m.Execute(context.Background(), []*signal.Intent{sendIntent("second")}, "tick-2")
	assert.Equal(t, remaining, ch.failures)

	results := b.Drain(10)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Payload.(*signal.MotorResultPayload).Success)
	}
}

func TestMotorUpdateState(t *testing.T) {
	machine := newMachine()
	m, _ := newMotor(nil, bus.New(16, nil, nil), machine, observability.NewMetrics())

	intent := signal.NewIntent(signal.IntentUpdateState, signal.Trace{})
	intent.UpdateState = &signal.UpdateStateIntent{Key: "taskPressure", Value: 0.9}
	m.Execute(context.Background(), []*signal.Intent{intent}, "tick-1")

	assert.InDelta(t, 0.9, machine.Snapshot().TaskPressure, 1e-9)
}

func TestMotorRejectsToolWriteToAutomaticField(t *testing.T) {
	metrics := observability.NewMetrics()
	machine := newMachine()
	before := machine.Snapshot().Energy
	b := bus.New(16, nil, nil)
	m, _ := newMotor(nil, b, machine, metrics)

	intent := signal.NewIntent(signal.IntentUpdateState, signal.Trace{})
	intent.UpdateState = &signal.UpdateStateIntent{Key: "energy", Value: 1.0, FromTool: true}
	m.Execute(context.Background(), []*signal.Intent{intent}, "tick-1")

	assert.InDelta(t, before, machine.Snapshot().Energy, 1e-9)
	assert.Equal(t, int64(1), metrics.Get(observability.MetricIntentRejected))

	results := b.Drain(10)
	require.Len(t, results, 1)
	assert.False(t, results[0].Payload.(*signal.MotorResultPayload).Success)
}

func TestMotorDeferAndSuppressRegisterAcks(t *testing.T) {
	m, acks := newMotor(nil, bus.New(16, nil, nil), newMachine(), observability.NewMetrics())

	deferIntent := signal.NewIntent(signal.IntentDefer, signal.Trace{})
	deferIntent.Defer = &signal.DeferIntent{SignalType: signal.TypeContactUrge, Hours: 4, ValueAtAck: 0.4, OverrideDelta: 0.25}
	suppressIntent := signal.NewIntent(signal.IntentSuppress, signal.Trace{})
	suppressIntent.Suppress = &signal.SuppressIntent{SignalType: signal.TypeTimeOfDay, Reason: "quiet hours"}

	m.Execute(context.Background(), []*signal.Intent{deferIntent, suppressIntent}, "tick-1")
	assert.Equal(t, 2, acks.Len())

	blocked := acks.Check(signal.TypeContactUrge, "", nil)
	assert.True(t, blocked.Blocked)
}

func TestMotorScheduleWithoutSchedulerFails(t *testing.T) {
	b := bus.New(16, nil, nil)
	m, _ := newMotor(nil, b, newMachine(), observability.NewMetrics())

	intent := signal.NewIntent(signal.IntentSchedule, signal.Trace{})
	intent.Schedule = &signal.ScheduleIntent{FireAt: time.Now().Add(time.Hour)}
	m.Execute(context.Background(), []*signal.Intent{intent}, "tick-1")

	results := b.Drain(10)
	require.Len(t, results, 1)
	payload := results[0].Payload.(*signal.MotorResultPayload)
	assert.False(t, payload.Success)
	assert.Contains(t, payload.Error, "scheduler")
}

func TestMotorResultSourceLabel(t *testing.T) {
	machine := newMachine()
	b := bus.New(16, nil, nil)
	m, _ := newMotor(nil, b, machine, observability.NewMetrics())

	intent := signal.NewIntent(signal.IntentUpdateState, signal.Trace{})
	intent.UpdateState = &signal.UpdateStateIntent{Key: "taskPressure", Value: 0.5}
	m.Execute(context.Background(), []*signal.Intent{intent}, "tick-1")

	results := b.Drain(10)
	require.Len(t, results, 1)
	assert.Equal(t, "motor.result", results[0].Source)
}

func TestMotorCallToolRoutesToRegistry(t *testing.T) {
	m, _ := newMotor(nil, bus.New(16, nil, nil), newMachine(), observability.NewMetrics())
	echo := &recordingTool{name: "test.echo", result: tool.OK("pong")}
	m.tools.Register(echo)

	intent := signal.NewIntent(signal.IntentCallTool, signal.Trace{})
	intent.CallTool = &signal.CallToolIntent{Tool: "test.echo", Args: map[string]interface{}{"ping": true}}
	m.Execute(context.Background(), []*signal.Intent{intent}, "tick-1")

	assert.Equal(t, 1, echo.calls)
}
