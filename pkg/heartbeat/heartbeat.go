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

// Package heartbeat owns the main loop: a dynamic-interval tick that
// advances the state machine and drives the four pipeline stages in strict
// order. One tick is atomic from the state machine's viewpoint; ports push
// into the bus from their own goroutines and the bus is the only
// cross-goroutine boundary. Cognition turns (and the motor work that
// follows them) run on their own goroutine, one at a time, so a slow
// model call never blocks the tick.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/bus"
	"github.com/teradata-labs/vigil/pkg/channel"
	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/pipeline"
	"github.com/teradata-labs/vigil/pkg/schedule"
	"github.com/teradata-labs/vigil/pkg/signal"
	"github.com/teradata-labs/vigil/pkg/state"
)

// Config tunes the loop.
type Config struct {
	// DrainBatch caps how many signals one tick consumes from the bus.
	DrainBatch int
}

// DefaultConfig returns the runtime defaults.
func DefaultConfig() Config {
	return Config{DrainBatch: 64}
}

// Heartbeat drives the runtime. The deterministic stages run on the loop
// goroutine; cognition and motor run on a single in-flight turn goroutine.
type Heartbeat struct {
	machine     *state.Machine
	autonomic   *pipeline.Autonomic
	aggregation *pipeline.Aggregation
	cognition   *pipeline.Cognition
	motor       *pipeline.Motor
	bus         *bus.Bus
	scheduler   *schedule.Runner
	channels    *channel.Registry
	metrics     *observability.Metrics
	logger      *zap.Logger
	config      Config

	// turns tracks in-flight cognition turns so shutdown can wait for
	// the last one.
	turns sync.WaitGroup
}

// New wires the loop. The scheduler and channel registry may be nil in
// reduced test setups.
func New(machine *state.Machine, autonomic *pipeline.Autonomic, aggregation *pipeline.Aggregation, cognition *pipeline.Cognition, motor *pipeline.Motor, b *bus.Bus, scheduler *schedule.Runner, channels *channel.Registry, config Config, metrics *observability.Metrics, logger *zap.Logger) *Heartbeat {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DrainBatch <= 0 {
		config.DrainBatch = 64
	}
	return &Heartbeat{
		machine:     machine,
		autonomic:   autonomic,
		aggregation: aggregation,
		cognition:   cognition,
		motor:       motor,
		bus:         b,
		scheduler:   scheduler,
		channels:    channels,
		config:      config,
		metrics:     metrics,
		logger:      logger,
	}
}

// Run ticks until the context is cancelled, then shuts down gracefully:
// the current tick finishes, ports stop, metrics flush.
func (h *Heartbeat) Run(ctx context.Context) error {
	h.logger.Info("heartbeat_started")
	interval := h.Tick(ctx, time.Now())
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case now := <-timer.C:
			interval = h.Tick(ctx, now)
			timer.Reset(interval)
		}
	}
}

// Tick runs one full iteration and returns the interval until the next.
// Stage order is fixed: state machine, autonomic, schedule firings, bus
// drain, aggregation, cognition, motor.
func (h *Heartbeat) Tick(ctx context.Context, now time.Time) time.Duration {
	tickID := uuid.New().String()

	interval := h.machine.Advance(now)
	h.autonomic.Run(now, tickID, h.machine)
	h.collectSchedules(ctx, now)

	drained := h.bus.Drain(h.config.DrainBatch)
	h.absorb(drained)

	wake := h.aggregation.Run(now, tickID, h.machine.Alertness(), h.machine.Snapshot().Energy, drained)
	if wake.ShouldWake || h.cognition.PendingEscalation() {
		h.runCognition(ctx, wake, tickID)
	}

	h.metrics.Inc(observability.MetricTickCompleted)
	h.logger.Debug("tick_completed",
		zap.String("tick_id", tickID),
		zap.Int("drained", len(drained)),
		zap.Bool("woke", wake.ShouldWake),
		zap.Duration("next_interval", interval))
	return interval
}

func (h *Heartbeat) collectSchedules(ctx context.Context, now time.Time) {
	if h.scheduler == nil {
		return
	}
	fired, err := h.scheduler.CollectDue(ctx, now)
	if err != nil {
		h.logger.Warn("schedule_collection_failed", zap.Error(err))
		return
	}
	for _, sig := range fired {
		if perr := h.bus.Push(sig); perr != nil {
			h.logger.Warn("schedule_signal_dropped", zap.Error(perr))
		}
	}
}

// absorb applies the per-event energy drain and, while dozing, feeds the
// disturbance model.
func (h *Heartbeat) absorb(drained []*signal.Signal) {
	mode := h.machine.Mode()
	dozing := mode == state.ModeSleep || mode == state.ModeRelaxed
	for _, sig := range drained {
		h.machine.RecordEvent()
		if dozing {
			h.machine.RecordDisturbance(sig.Metrics.Value)
		}
	}
}

// runCognition launches the turn on its own goroutine so a slow model
// call never stalls the tick. The TryBegin guard keeps turns strictly
// serial.
func (h *Heartbeat) runCognition(ctx context.Context, wake pipeline.WakeDecision, tickID string) {
	if !h.cognition.TryBegin() {
		// A previous turn is still in flight. Skip cognition this tick
		// and hand its thought signals to the next turn, order intact.
		h.metrics.Inc(observability.MetricCognitionSkipped)
		h.requeueThoughts(wake.Signals)
		return
	}

	h.turns.Add(1)
	go func() {
		defer h.turns.Done()
		defer h.cognition.End()
		decision := h.cognition.Run(ctx, wake, tickID)
		if len(decision.Intents) > 0 {
			h.motor.Execute(ctx, decision.Intents, tickID)
		}
	}()
}

// requeueThoughts pushes thought signals back to the front of the bus.
// Reverse iteration keeps their original relative order after PushFront.
func (h *Heartbeat) requeueThoughts(signals []*signal.Signal) {
	for i := len(signals) - 1; i >= 0; i-- {
		if signals[i].Type != signal.TypeThought {
			continue
		}
		if err := h.bus.PushFront(signals[i]); err != nil {
			h.logger.Warn("thought_requeue_failed", zap.Error(err))
		}
	}
}

func (h *Heartbeat) shutdown() {
	h.logger.Info("heartbeat_stopping")
	h.turns.Wait()
	if h.channels != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		h.channels.StopAll(stopCtx)
		cancel()
	}
	h.metrics.Flush(h.logger)
	h.logger.Info("heartbeat_stopped")
}
