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
package bus

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/signal"
)

func sig(typ signal.Type, prio signal.Priority) *signal.Signal {
	return signal.New(typ, "neuron.test", prio, signal.Metrics{Value: 0.5, Confidence: 1})
}

func TestPushDrainPriorityOrder(t *testing.T) {
	b := New(16, nil, nil)

	low := sig(signal.TypeEnergy, signal.PriorityLow)
	high := sig(signal.TypeUserMessage, signal.PriorityHigh)
	normal := sig(signal.TypeSocialDebt, signal.PriorityNormal)

	require.NoError(t, b.Push(low))
	require.NoError(t, b.Push(high))
	require.NoError(t, b.Push(normal))

	out := b.Drain(0)
	require.Len(t, out, 3)
	assert.Equal(t, high.ID, out[0].ID)
	assert.Equal(t, normal.ID, out[1].ID)
	assert.Equal(t, low.ID, out[2].ID)
	assert.Equal(t, 0, b.Size())
}

func TestFIFOWithinPriority(t *testing.T) {
	b := New(16, nil, nil)

	var ids []string
	for i := 0; i < 5; i++ {
		s := sig(signal.TypeTick, signal.PriorityNormal)
		s.CorrelationID = fmt.Sprintf("corr-%d", i/2)
		ids = append(ids, s.ID)
		require.NoError(t, b.Push(s))
	}

	out := b.Drain(0)
	require.Len(t, out, 5)
	for i, s := range out {
		assert.Equal(t, ids[i], s.ID, "FIFO order broken at index %d", i)
	}
}

func TestDrainMaxN(t *testing.T) {
	b := New(16, nil, nil)
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Push(sig(signal.TypeTick, signal.PriorityNormal)))
	}

	out := b.Drain(3)
	assert.Len(t, out, 3)
	assert.Equal(t, 1, b.Size())
}

func TestOverflowDropsLowAndIdle(t *testing.T) {
	m := observability.NewMetrics()
	b := New(2, m, nil)

	require.NoError(t, b.Push(sig(signal.TypeTick, signal.PriorityNormal)))
	require.NoError(t, b.Push(sig(signal.TypeTick, signal.PriorityNormal)))

	err := b.Push(sig(signal.TypeEnergy, signal.PriorityLow))
	assert.ErrorIs(t, err, ErrBusFull)
	err = b.Push(sig(signal.TypeEnergy, signal.PriorityIdle))
	assert.ErrorIs(t, err, ErrBusFull)
	assert.Equal(t, int64(2), m.Get(observability.MetricBusOverflow))
}

func TestOverflowHighDisplacesLowest(t *testing.T) {
	m := observability.NewMetrics()
	b := New(2, m, nil)

	require.NoError(t, b.Push(sig(signal.TypeTick, signal.PriorityNormal)))
	victim := sig(signal.TypeEnergy, signal.PriorityIdle)
	require.NoError(t, b.Push(victim))

	high := sig(signal.TypeUserMessage, signal.PriorityHigh)
	require.NoError(t, b.Push(high))

	out := b.Drain(0)
	require.Len(t, out, 2)
	assert.Equal(t, high.ID, out[0].ID)
	for _, s := range out {
		assert.NotEqual(t, victim.ID, s.ID)
	}
	assert.Equal(t, int64(1), m.Get(observability.MetricBusDisplaced))
}

func TestOverflowHighFullOfHigh(t *testing.T) {
	// A bus saturated with HIGH signals has nothing to displace; the
	// incoming HIGH is still accepted only if something lower exists.
	b := New(1, nil, nil)
	require.NoError(t, b.Push(sig(signal.TypeUserMessage, signal.PriorityHigh)))

	err := b.Push(sig(signal.TypeUserMessage, signal.PriorityHigh))
	assert.ErrorIs(t, err, ErrBusFull)
}

func TestPushFrontPreservesPriorityBand(t *testing.T) {
	b := New(16, nil, nil)

	first := sig(signal.TypeThought, signal.PriorityNormal)
	second := sig(signal.TypeThought, signal.PriorityNormal)
	require.NoError(t, b.Push(first))
	require.NoError(t, b.PushFront(second))

	// HIGH still drains before front-pushed NORMAL.
	high := sig(signal.TypeUserMessage, signal.PriorityHigh)
	require.NoError(t, b.Push(high))

	out := b.Drain(0)
	require.Len(t, out, 3)
	assert.Equal(t, high.ID, out[0].ID)
	assert.Equal(t, second.ID, out[1].ID)
	assert.Equal(t, first.ID, out[2].ID)
}

func TestMalformedSignalRejected(t *testing.T) {
	m := observability.NewMetrics()
	b := New(16, m, nil)

	err := b.Push(nil)
	assert.ErrorIs(t, err, ErrMalformedSignal)

	bad := sig(signal.TypeTick, signal.PriorityNormal)
	bad.Type = signal.Type("bogus")
	err = b.Push(bad)
	assert.ErrorIs(t, err, ErrMalformedSignal)
	assert.Equal(t, int64(2), m.Get(observability.MetricMalformedSignal))
}

func TestConcurrentProducers(t *testing.T) {
	b := New(4096, nil, nil)

	var wg sync.WaitGroup
	const producers = 8
	const perProducer = 100

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = b.Push(sig(signal.TypeTick, signal.PriorityNormal))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, b.Size())
	b.Clear()
	assert.Equal(t, 0, b.Size())
}
