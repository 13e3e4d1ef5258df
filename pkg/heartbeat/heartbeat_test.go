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

package heartbeat

import (
	"context"
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
	"github.com/teradata-labs/vigil/pkg/pipeline"
	"github.com/teradata-labs/vigil/pkg/signal"
	"github.com/teradata-labs/vigil/pkg/state"
	"github.com/teradata-labs/vigil/pkg/tool"
)

// rig is a full runtime wired against mocks.
type rig struct {
	heartbeat *Heartbeat
	machine   *state.Machine
	bus       *bus.Bus
	cognition *pipeline.Cognition
	channel   *channel.MockChannel
	provider  *llm.MockProvider
	metrics   *observability.Metrics
}

func newRig(t *testing.T, turns ...llm.MockTurn) *rig {
	t.Helper()
	provider := llm.NewMockProvider(turns...)
	r := newRigWith(t, provider)
	r.provider = provider
	return r
}

func newRigWith(t *testing.T, provider llm.Provider) *rig {
	t.Helper()
	metrics := observability.NewMetrics()
	machine := state.NewMachine(state.Identity{Name: "vigil"}, state.NewEnergyModel(state.DefaultEnergyConfig()), state.DefaultMachineConfig(), metrics, nil)
	b := bus.New(64, metrics, nil)

	neurons := neuron.NewRegistry(metrics, nil)
	filters := filter.NewChain(metrics, nil)
	autonomic := pipeline.NewAutonomic(neurons, filters, b, nil)

	acks := ack.NewRegistry(0, metrics, nil)
	aggregation := pipeline.NewAggregation(pipeline.DefaultAggregationConfig(), acks,
		detect.NewChangeDetector(detect.DefaultChangeConfig()),
		detect.NewPatternDetector(detect.DefaultPatternConfig(), nil),
		metrics, nil)

	tools := tool.NewRegistry()
	cogConfig := pipeline.DefaultCognitionConfig()
	cogConfig.PrimaryTarget = "42"
	cogConfig.DefaultChannel = "mock"
	cognition := pipeline.NewCognition(provider, llm.NewCounter(), tools, b, machine, cogConfig, metrics, nil)

	mock := channel.NewMockChannel("mock")
	channels := channel.NewRegistry(nil)
	require.NoError(t, channels.Register(mock))

	motorConfig := pipeline.DefaultMotorConfig()
	motorConfig.DefaultChannel = "mock"
	motorConfig.Retry.InitialDelay = time.Millisecond
	motor := pipeline.NewMotor(machine, channels, nil, tools, acks,
		fabric.NewManager(fabric.DefaultCircuitBreakerConfig("")), b, motorConfig, metrics, nil)

	h := New(machine, autonomic, aggregation, cognition, motor, b, nil, channels, DefaultConfig(), metrics, nil)
	return &rig{
		heartbeat: h,
		machine:   machine,
		bus:       b,
		cognition: cognition,
		channel:   mock,
		metrics:   metrics,
	}
}

// settle waits for the in-flight cognition turn (and its motor work) to
// finish.
func (r *rig) settle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return !r.cognition.Busy() },
		2*time.Second, time.Millisecond)
}

func TestQuietIdleMakesNoCallsAndNoSends(t *testing.T) {
	r := newRig(t)
	base := state.DefaultMachineConfig().TickBase

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		interval := r.heartbeat.Tick(context.Background(), now)
		assert.GreaterOrEqual(t, interval, base)
		now = now.Add(interval)
	}

	assert.Equal(t, state.ModeNormal, r.machine.Mode())
	assert.Empty(t, r.channel.Sent())
	assert.Equal(t, 0, r.provider.Calls())
}

func TestInboundMessageAnsweredWithinOneTick(t *testing.T) {
	r := newRig(t, llm.MockTurn{Response: &llm.Response{Content: "hey!", StopReason: "stop"}})

	inbound := signal.New(signal.TypeUserMessage, "sense.mock", signal.PriorityHigh, signal.Metrics{Confidence: 1}).
		WithPayload(&signal.UserMessagePayload{ChatID: "42", Text: "hello", Channel: "mock"})
	require.NoError(t, r.bus.Push(inbound))

	energyBefore := r.machine.Snapshot().Energy
	r.heartbeat.Tick(context.Background(), time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))
	r.settle(t)

	sent := r.channel.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0].Target)
	assert.NotEmpty(t, sent[0].Text)
	assert.Equal(t, 1, r.provider.Calls())
	// Event, LLM and message drains all landed.
	assert.Less(t, r.machine.Snapshot().Energy, energyBefore)
	assert.Equal(t, int64(1), r.metrics.Get(observability.MetricMessageSent))
}

func TestTickIntervalStaysWithinBounds(t *testing.T) {
	r := newRig(t)
	config := state.DefaultMachineConfig()

	now := time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC) // night, agent may sleep
	for i := 0; i < 20; i++ {
		interval := r.heartbeat.Tick(context.Background(), now)
		assert.GreaterOrEqual(t, interval, config.TickMin)
		assert.LessOrEqual(t, interval, config.TickMax)
		now = now.Add(interval)
	}
}

func TestBusyCognitionSkipsAndRequeuesThoughtsInOrder(t *testing.T) {
	r := newRig(t)

	// Claim the turn as if a previous cognition run were still in flight.
	require.True(t, r.cognition.TryBegin())

	first := signal.New(signal.TypeThought, "cognition.thought", signal.PriorityNormal, signal.Metrics{Confidence: 1}).
		WithPayload(&signal.ThoughtPayload{Content: "first thought"})
	second := signal.New(signal.TypeThought, "cognition.thought", signal.PriorityNormal, signal.Metrics{Confidence: 1}).
		WithPayload(&signal.ThoughtPayload{Content: "second thought"})
	urgent := signal.New(signal.TypeUserMessage, "sense.mock", signal.PriorityHigh, signal.Metrics{Confidence: 1}).
		WithPayload(&signal.UserMessagePayload{ChatID: "42", Text: "hi", Channel: "mock"})
	require.NoError(t, r.bus.Push(first))
	require.NoError(t, r.bus.Push(second))
	require.NoError(t, r.bus.Push(urgent))

	r.heartbeat.Tick(context.Background(), time.Now())
	r.cognition.End()

	assert.Equal(t, int64(1), r.metrics.Get(observability.MetricCognitionSkipped))
	assert.Equal(t, 0, r.provider.Calls())

	// The thoughts went back to the front of the bus in original order.
	requeued := r.bus.Drain(10)
	require.Len(t, requeued, 2)
	assert.Equal(t, "first thought", requeued[0].Payload.(*signal.ThoughtPayload).Content)
	assert.Equal(t, "second thought", requeued[1].Payload.(*signal.ThoughtPayload).Content)
}

func TestDisturbanceWhileDozingFeedsWakeModel(t *testing.T) {
	r := newRig(t)

	// Tired agent at night: the first tick puts it to sleep.
	tired := 0.3
	require.NoError(t, r.machine.ApplyUpdate("energy", &tired, nil, false))
	now := time.Date(2026, 8, 27, 2, 0, 0, 0, time.UTC)
	r.heartbeat.Tick(context.Background(), now)
	require.Equal(t, state.ModeSleep, r.machine.Mode())

	// A burst of loud signals should eventually wake the agent.
	for i := 0; i < 20 && r.machine.Mode() == state.ModeSleep; i++ {
		loud := signal.New(signal.TypePluginEvent, "plugin.alarm", signal.PriorityNormal, signal.Metrics{Value: 1, Confidence: 1})
		require.NoError(t, r.bus.Push(loud))
		r.heartbeat.Tick(context.Background(), now)
	}
	assert.Equal(t, state.ModeNormal, r.machine.Mode())
	r.settle(t)
}

func TestThoughtOnBusWakesCognition(t *testing.T) {
	r := newRig(t, llm.MockTurn{Response: &llm.Response{Content: "following up on that", StopReason: "stop"}})

	thought := signal.New(signal.TypeThought, "cognition.thought", signal.PriorityNormal, signal.Metrics{Value: 0.5, Confidence: 1}).
		WithPayload(&signal.ThoughtPayload{Content: "should I check in about the trip?", Depth: 1})
	require.NoError(t, r.bus.Push(thought))

	r.heartbeat.Tick(context.Background(), time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))
	r.settle(t)

	// The thought reached cognition and produced a proactive message.
	assert.Equal(t, 1, r.provider.Calls())
	sent := r.channel.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0].Target)
}

// stallingProvider blocks every completion until released.
type stallingProvider struct {
	release chan struct{}
}

func (*stallingProvider) Name() string          { return "stalling" }
func (*stallingProvider) Model(llm.Role) string { return "stalling" }

func (p *stallingProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	select {
	case <-p.release:
		return &llm.Response{Content: "finally", StopReason: "stop"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSlowTurnDoesNotStallTicks(t *testing.T) {
	release := make(chan struct{})
	r := newRigWith(t, &stallingProvider{release: release})

	inbound := signal.New(signal.TypeUserMessage, "sense.mock", signal.PriorityHigh, signal.Metrics{Confidence: 1}).
		WithPayload(&signal.UserMessagePayload{ChatID: "42", Text: "hello", Channel: "mock"})
	require.NoError(t, r.bus.Push(inbound))

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	start := time.Now()
	r.heartbeat.Tick(context.Background(), now)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, r.cognition.Busy())

	// Further ticks keep running while the turn is stuck.
	r.heartbeat.Tick(context.Background(), now.Add(time.Second))
	close(release)
	r.settle(t)
	require.Len(t, r.channel.Sent(), 1)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	r := newRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.heartbeat.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not stop after cancel")
	}
	assert.False(t, r.channel.Running())
}
