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
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/ack"
	"github.com/teradata-labs/vigil/pkg/bus"
	"github.com/teradata-labs/vigil/pkg/channel"
	"github.com/teradata-labs/vigil/pkg/fabric"
	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/schedule"
	"github.com/teradata-labs/vigil/pkg/signal"
	"github.com/teradata-labs/vigil/pkg/state"
	"github.com/teradata-labs/vigil/pkg/tool"
)

// MotorConfig tunes intent execution.
type MotorConfig struct {
	// IntentTimeout caps a single intent, tool executions included.
	IntentTimeout time.Duration

	// Retry governs the send-message backoff budget.
	Retry fabric.RetryConfig

	// DefaultChannel receives sends whose intent names no channel.
	DefaultChannel string
}

// DefaultMotorConfig returns the runtime defaults.
func DefaultMotorConfig() MotorConfig {
	return MotorConfig{
		IntentTimeout: 10 * time.Second,
		Retry:         fabric.DefaultRetryConfig(),
	}
}

// Motor executes intents against the ports, in order. Sends go through a
// per-channel circuit breaker with retry; every executed intent reports a
// motor_result signal back onto the bus.
type Motor struct {
	machine   *state.Machine
	channels  *channel.Registry
	scheduler *schedule.Runner
	tools     *tool.Registry
	acks      *ack.Registry
	breakers  *fabric.Manager
	bus       *bus.Bus
	metrics   *observability.Metrics
	logger    *zap.Logger
	config    MotorConfig

	// lastMessageID per channel, for reply threading and diagnostics.
	lastMessageID map[string]string
}

// NewMotor wires the stage.
func NewMotor(machine *state.Machine, channels *channel.Registry, scheduler *schedule.Runner, tools *tool.Registry, acks *ack.Registry, breakers *fabric.Manager, b *bus.Bus, config MotorConfig, metrics *observability.Metrics, logger *zap.Logger) *Motor {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.IntentTimeout <= 0 {
		config.IntentTimeout = 10 * time.Second
	}
	return &Motor{
		machine:       machine,
		channels:      channels,
		scheduler:     scheduler,
		tools:         tools,
		acks:          acks,
		breakers:      breakers,
		bus:           b,
		metrics:       metrics,
		logger:        logger,
		config:        config,
		lastMessageID: make(map[string]string),
	}
}

// Execute applies intents in order. Failures are reported, never
// propagated; one bad intent does not stop the rest.
func (m *Motor) Execute(ctx context.Context, intents []*signal.Intent, tickID string) {
	for _, intent := range intents {
		err := m.executeOne(ctx, intent)
		m.report(intent, err, tickID)
		if err != nil {
			m.logger.Warn("intent_failed",
				zap.String("intent_id", intent.ID),
				zap.String("kind", string(intent.Kind)),
				zap.Error(err))
		}
	}
}

func (m *Motor) executeOne(ctx context.Context, intent *signal.Intent) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.IntentTimeout)
	defer cancel()

	switch intent.Kind {
	case signal.IntentUpdateState:
		return m.updateState(intent.UpdateState)
	case signal.IntentSendMessage:
		return m.sendMessage(ctx, intent.SendMessage)
	case signal.IntentSchedule:
		return m.schedule(ctx, intent.Schedule)
	case signal.IntentCallTool:
		return m.callTool(ctx, intent)
	case signal.IntentDefer:
		return m.deferSignal(intent.Defer)
	case signal.IntentSuppress:
		return m.suppress(intent.Suppress)
	}
	return fmt.Errorf("unknown intent kind %q", intent.Kind)
}

func (m *Motor) updateState(in *signal.UpdateStateIntent) error {
	if in == nil {
		return fmt.Errorf("update_state intent missing body")
	}
	var value, delta *float64
	if in.Delta {
		delta = &in.Value
	} else {
		value = &in.Value
	}
	if err := m.machine.ApplyUpdate(in.Key, value, delta, in.FromTool); err != nil {
		m.metrics.Inc(observability.MetricIntentRejected)
		return err
	}
	return nil
}

func (m *Motor) sendMessage(ctx context.Context, in *signal.SendMessageIntent) error {
	if in == nil || in.Target == "" || in.Text == "" {
		return fmt.Errorf("send_message intent missing target or text")
	}
	name := in.Channel
	if name == "" {
		name = m.config.DefaultChannel
	}
	ch, ok := m.channels.Get(name)
	if !ok {
		return fmt.Errorf("channel %q not registered", name)
	}

	opts := channel.SendOptions{
		ReplyTo:            in.Options.ReplyTo,
		ParseMode:          in.Options.ParseMode,
		DisableLinkPreview: in.Options.DisableLinkPreview,
		Silent:             in.Options.Silent,
	}

	breaker := m.breakers.Breaker("channel." + name)
	var messageID string
	err := fabric.Retry(ctx, m.config.Retry, "send_message", func() error {
		return breaker.Execute(ctx, func(ctx context.Context) error {
			id, serr := ch.Send(ctx, in.Target, in.Text, opts)
			if serr != nil {
				return serr
			}
			messageID = id
			return nil
		})
	})
	if err != nil {
		return err
	}

	m.lastMessageID[name] = messageID
	m.machine.RecordMessageSent()
	m.metrics.Inc(observability.MetricMessageSent)
	m.logger.Info("message_sent",
		zap.String("channel", name),
		zap.String("target", in.Target),
		zap.String("message_id", messageID))
	return nil
}

func (m *Motor) schedule(ctx context.Context, in *signal.ScheduleIntent) error {
	if in == nil {
		return fmt.Errorf("schedule intent missing body")
	}
	if m.scheduler == nil {
		return fmt.Errorf("no scheduler configured")
	}
	_, err := m.scheduler.CreateEntry(ctx, in.FireAt, in.Recurrence, in.Payload)
	return err
}

func (m *Motor) callTool(ctx context.Context, intent *signal.Intent) error {
	in := intent.CallTool
	if in == nil {
		return fmt.Errorf("call_tool intent missing body")
	}
	t, ok := m.tools.Get(in.Tool)
	if !ok {
		return fmt.Errorf("tool %q not registered", in.Tool)
	}
	result, err := t.Execute(ctx, in.Args)
	if err != nil {
		return err
	}
	if !result.Success && result.Error != nil {
		return fmt.Errorf("tool %s failed: %s", in.Tool, result.Error.Message)
	}
	return nil
}

func (m *Motor) deferSignal(in *signal.DeferIntent) error {
	if in == nil || in.Hours <= 0 {
		return fmt.Errorf("defer intent missing signal type or horizon")
	}
	valueAtAck := in.ValueAtAck
	m.acks.Register(&ack.Ack{
		SignalType:    in.SignalType,
		Source:        in.Source,
		Kind:          ack.KindDeferred,
		DeferUntil:    time.Now().Add(time.Duration(in.Hours * float64(time.Hour))),
		ValueAtAck:    &valueAtAck,
		OverrideDelta: in.OverrideDelta,
		Reason:        in.Reason,
	})
	return nil
}

func (m *Motor) suppress(in *signal.SuppressIntent) error {
	if in == nil {
		return fmt.Errorf("suppress intent missing body")
	}
	m.acks.Register(&ack.Ack{
		SignalType: in.SignalType,
		Source:     in.Source,
		Kind:       ack.KindSuppressed,
		Reason:     in.Reason,
	})
	return nil
}

// LastMessageID returns the id of the most recent message sent on a
// channel, empty when none has been sent.
func (m *Motor) LastMessageID(channelName string) string {
	return m.lastMessageID[channelName]
}

// report pushes the intent outcome back onto the bus so later cognition
// turns can react to failures.
func (m *Motor) report(intent *signal.Intent, err error, tickID string) {
	payload := &signal.MotorResultPayload{
		IntentID: intent.ID,
		Kind:     intent.Kind,
		Success:  err == nil,
	}
	priority := signal.PriorityIdle
	if err != nil {
		payload.Error = err.Error()
		priority = signal.PriorityLow
	}
	sig := signal.New(signal.TypeMotorResult, "motor.result", priority, signal.Metrics{Confidence: 1.0}).
		WithPayload(payload).
		WithCorrelation(tickID)
	if perr := m.bus.Push(sig); perr != nil {
		m.logger.Debug("motor_result_dropped", zap.Error(perr))
	}
}
