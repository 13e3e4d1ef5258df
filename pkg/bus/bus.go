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

// Package bus provides the bounded priority queue connecting pipeline stages.
//
// The bus is the single cross-thread synchronization boundary in the runtime:
// channel adapters and plugins push from their own goroutines while the
// heartbeat scheduler drains from the tick loop. Ordering contract: strict
// priority dequeue across priorities, FIFO within a priority. Pushes within
// one tick are contiguous, so FIFO also keeps correlation groups together.
package bus

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/signal"
)

// DefaultCapacity bounds the bus when no capacity is configured.
const DefaultCapacity = 1024

// ErrBusFull is returned when a LOW/IDLE signal is pushed onto a full bus,
// or when a NORMAL signal cannot displace anything of lower priority.
var ErrBusFull = errors.New("signal bus full")

// ErrMalformedSignal is returned for signals that fail envelope validation.
var ErrMalformedSignal = errors.New("malformed signal")

// priority levels, indexed by signal.Priority (high..idle).
const levels = 4

// Bus is a bounded, priority-ordered, multi-producer / single-consumer
// signal queue. All operations are safe for concurrent use; drain is
// intended to be called from the scheduler thread only.
type Bus struct {
	mu       sync.Mutex
	queues   [levels][]*signal.Signal
	size     int
	capacity int

	metrics *observability.Metrics
	logger  *zap.Logger
}

// New creates a bus with the given capacity. capacity <= 0 uses
// DefaultCapacity.
func New(capacity int, metrics *observability.Metrics, logger *zap.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		capacity: capacity,
		metrics:  metrics,
		logger:   logger,
	}
}

// Push enqueues a signal without blocking.
//
// Overflow behavior when the bus is at capacity:
//   - HIGH is never dropped: the newest item of the lowest occupied
//     priority (searched idle upward) is displaced.
//   - NORMAL displaces only strictly lower-priority items; otherwise fails.
//   - LOW and IDLE fail immediately.
//
// Every drop or displacement increments a metric counter.
func (b *Bus) Push(s *signal.Signal) error {
	if s == nil || !s.Type.Valid() || s.Priority < signal.PriorityHigh || s.Priority > signal.PriorityIdle {
		b.metrics.Inc(observability.MetricMalformedSignal)
		return ErrMalformedSignal
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size >= b.capacity {
		if !b.displaceLocked(s.Priority) {
			b.metrics.Inc(observability.MetricBusOverflow)
			b.logger.Debug("bus_overflow_drop",
				zap.String("signal_type", string(s.Type)),
				zap.String("priority", s.Priority.String()),
				zap.Int("capacity", b.capacity))
			return ErrBusFull
		}
	}

	lvl := int(s.Priority)
	b.queues[lvl] = append(b.queues[lvl], s)
	b.size++
	return nil
}

// PushFront re-enqueues a signal at the front of its priority band.
// Used by the scheduler to return thought signals to the bus when a
// cognition turn is still in flight; original order is preserved when
// callers push in reverse.
func (b *Bus) PushFront(s *signal.Signal) error {
	if s == nil || !s.Type.Valid() {
		b.metrics.Inc(observability.MetricMalformedSignal)
		return ErrMalformedSignal
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size >= b.capacity {
		if !b.displaceLocked(s.Priority) {
			b.metrics.Inc(observability.MetricBusOverflow)
			return ErrBusFull
		}
	}

	lvl := int(s.Priority)
	b.queues[lvl] = append([]*signal.Signal{s}, b.queues[lvl]...)
	b.size++
	return nil
}

// displaceLocked removes the newest item of the lowest occupied priority
// strictly below want. Returns false when nothing lower exists.
func (b *Bus) displaceLocked(want signal.Priority) bool {
	for lvl := levels - 1; lvl > int(want); lvl-- {
		q := b.queues[lvl]
		if len(q) == 0 {
			continue
		}
		victim := q[len(q)-1]
		b.queues[lvl] = q[:len(q)-1]
		b.size--
		b.metrics.Inc(observability.MetricBusDisplaced)
		b.logger.Debug("bus_overflow_displace",
			zap.String("displaced_type", string(victim.Type)),
			zap.String("displaced_priority", victim.Priority.String()),
			zap.String("incoming_priority", want.String()))
		return true
	}
	return false
}

// Drain removes and returns up to maxN signals in priority-then-FIFO order.
// maxN <= 0 drains everything.
func (b *Bus) Drain(maxN int) []*signal.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()

	if maxN <= 0 || maxN > b.size {
		maxN = b.size
	}

	out := make([]*signal.Signal, 0, maxN)
	for lvl := 0; lvl < levels && len(out) < maxN; lvl++ {
		q := b.queues[lvl]
		take := maxN - len(out)
		if take > len(q) {
			take = len(q)
		}
		out = append(out, q[:take]...)
		b.queues[lvl] = q[take:]
	}
	b.size -= len(out)
	return out
}

// Size returns the number of queued signals.
func (b *Bus) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Clear discards all queued signals.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for lvl := range b.queues {
		b.queues[lvl] = nil
	}
	b.size = 0
}
