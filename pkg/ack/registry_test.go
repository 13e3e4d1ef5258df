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
package ack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/signal"
)

func f64(v float64) *float64 { return &v }

func TestHandledAckConsumedOnCheck(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	r.Register(&Ack{SignalType: signal.TypeSocialDebt, Kind: KindHandled})

	res := r.Check(signal.TypeSocialDebt, "", nil)
	assert.False(t, res.Blocked)

	// Second check: the ack is gone.
	assert.Equal(t, 0, r.Len())
	res = r.Check(signal.TypeSocialDebt, "", nil)
	assert.False(t, res.Blocked)
}

func TestSuppressedAlwaysBlocks(t *testing.T) {
	m := observability.NewMetrics()
	r := NewRegistry(0, m, nil)
	r.Register(&Ack{SignalType: signal.TypeContactUrge, Kind: KindSuppressed, Reason: "user asked for quiet"})

	for i := 0; i < 3; i++ {
		res := r.Check(signal.TypeContactUrge, "", f64(0.99))
		assert.True(t, res.Blocked)
	}
	assert.Equal(t, int64(3), m.Get(observability.MetricAckBlocked))
}

func TestDeferredBlocksUntilExpiry(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	base := time.Now()
	r.SetClock(func() time.Time { return base })

	r.Register(&Ack{
		SignalType: signal.TypeContactUrge,
		Kind:       KindDeferred,
		DeferUntil: base.Add(4 * time.Hour),
	})

	assert.True(t, r.Check(signal.TypeContactUrge, "", nil).Blocked)

	// Advance past the deferral.
	r.SetClock(func() time.Time { return base.Add(4*time.Hour + time.Second) })
	res := r.Check(signal.TypeContactUrge, "", nil)
	assert.False(t, res.Blocked)
	assert.Equal(t, 0, r.Len(), "expired deferral cleared")
}

func TestDeferredValueOverride(t *testing.T) {
	m := observability.NewMetrics()
	r := NewRegistry(0, m, nil)
	base := time.Now()
	r.SetClock(func() time.Time { return base })

	r.Register(&Ack{
		SignalType:    signal.TypeContactUrge,
		Kind:          KindDeferred,
		DeferUntil:    base.Add(4 * time.Hour),
		ValueAtAck:    f64(0.4),
		OverrideDelta: 0.25,
	})

	// Below the delta: still blocked.
	assert.True(t, r.Check(signal.TypeContactUrge, "", f64(0.6)).Blocked)

	// At the delta: unblocked as an override, ack cleared.
	res := r.Check(signal.TypeContactUrge, "", f64(0.70))
	assert.False(t, res.Blocked)
	assert.True(t, res.IsOverride)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, int64(1), m.Get(observability.MetricAckOverride))
}

func TestDeferralTruncatedToCap(t *testing.T) {
	r := NewRegistry(24*time.Hour, nil, nil)
	base := time.Now()
	r.SetClock(func() time.Time { return base })

	a := r.Register(&Ack{
		SignalType: signal.TypeContactUrge,
		Kind:       KindDeferred,
		DeferUntil: base.Add(48 * time.Hour),
	})

	assert.WithinDuration(t, base.Add(24*time.Hour), a.DeferUntil, time.Second)
}

func TestDefaultOverrideDelta(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	a := r.Register(&Ack{
		SignalType: signal.TypeContactUrge,
		Kind:       KindDeferred,
		DeferUntil: time.Now().Add(time.Hour),
	})
	assert.InDelta(t, DefaultOverrideDelta, a.OverrideDelta, 1e-9)
}

func TestSourceNarrowedLookup(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	r.Register(&Ack{
		SignalType: signal.TypePluginEvent,
		Source:     "plugin.weather",
		Kind:       KindSuppressed,
	})

	assert.True(t, r.Check(signal.TypePluginEvent, "plugin.weather", nil).Blocked)
	// Different source of the same type is unaffected.
	assert.False(t, r.Check(signal.TypePluginEvent, "plugin.news", nil).Blocked)
}

func TestBareTypeAckMatchesAnySource(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	r.Register(&Ack{SignalType: signal.TypeEnergy, Kind: KindSuppressed})

	assert.True(t, r.Check(signal.TypeEnergy, "neuron.energy", nil).Blocked)
}

func TestClearAndClearAll(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	r.Register(&Ack{SignalType: signal.TypeEnergy, Kind: KindSuppressed})
	r.Register(&Ack{SignalType: signal.TypeSocialDebt, Kind: KindSuppressed})

	require.True(t, r.Clear(signal.TypeEnergy, ""))
	assert.False(t, r.Clear(signal.TypeEnergy, ""))
	assert.Equal(t, 1, r.Len())

	r.ClearAll()
	assert.Equal(t, 0, r.Len())
}

func TestPruneRemovesExpiredDeferrals(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	base := time.Now()
	r.SetClock(func() time.Time { return base })

	r.Register(&Ack{SignalType: signal.TypeEnergy, Kind: KindDeferred, DeferUntil: base.Add(time.Minute)})
	r.Register(&Ack{SignalType: signal.TypeSocialDebt, Kind: KindDeferred, DeferUntil: base.Add(time.Hour)})
	r.Register(&Ack{SignalType: signal.TypeContactUrge, Kind: KindSuppressed})

	r.SetClock(func() time.Time { return base.Add(30 * time.Minute) })
	pruned := r.Prune()
	assert.Equal(t, 1, pruned)
	assert.Equal(t, 2, r.Len(), "suppressions and live deferrals survive pruning")
}
