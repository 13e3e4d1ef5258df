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

// Package ack implements the pipeline's memory of what has already been
// dealt with. An ack marks a signal class (type, optionally narrowed by
// source) as handled, deferred until a time or value change, or suppressed
// outright. The aggregation stage consults this registry before waking
// cognition. Accessed only from the scheduler thread.
package ack

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/signal"
)

// Kind classifies an acknowledgment.
type Kind string

const (
	KindHandled    Kind = "handled"    // consumed on next check
	KindDeferred   Kind = "deferred"   // blocked until time or value override
	KindSuppressed Kind = "suppressed" // blocked until explicitly cleared
)

// Defaults.
const (
	DefaultMaxDeferral   = 24 * time.Hour
	DefaultOverrideDelta = 0.25
	pruneEveryNChecks    = 50
)

// Ack is one registry entry.
type Ack struct {
	ID         string
	SignalType signal.Type
	Source     string // empty matches any source of SignalType
	Kind       Kind
	CreatedAt  time.Time
	DeferUntil time.Time // deferred only
	// ValueAtAck captures the metric value when the deferral was made;
	// nil disables the value-override path.
	ValueAtAck    *float64
	OverrideDelta float64
	Reason        string
}

// CheckResult reports whether a signal class is currently blocked.
type CheckResult struct {
	Blocked    bool
	IsOverride bool
	Reason     string
}

// Registry holds acks keyed by "signalType[:source]".
type Registry struct {
	entries     map[string]*Ack
	maxDeferral time.Duration
	checkCount  int

	metrics *observability.Metrics
	logger  *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewRegistry creates an empty registry. maxDeferral <= 0 uses the 24h
// default.
func NewRegistry(maxDeferral time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Registry {
	if maxDeferral <= 0 {
		maxDeferral = DefaultMaxDeferral
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries:     make(map[string]*Ack),
		maxDeferral: maxDeferral,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

func key(typ signal.Type, source string) string {
	if source == "" {
		return string(typ)
	}
	return fmt.Sprintf("%s:%s", typ, source)
}

// Register records an ack. Deferrals past the cap are truncated; a zero
// OverrideDelta falls back to the default.
func (r *Registry) Register(a *Ack) *Ack {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}
	if a.Kind == KindDeferred {
		cap := a.CreatedAt.Add(r.maxDeferral)
		if a.DeferUntil.After(cap) {
			r.logger.Debug("ack_deferral_truncated",
				zap.String("signal_type", string(a.SignalType)),
				zap.Time("requested", a.DeferUntil),
				zap.Time("effective", cap))
			a.DeferUntil = cap
		}
		if a.OverrideDelta == 0 {
			a.OverrideDelta = DefaultOverrideDelta
		}
	}

	r.entries[key(a.SignalType, a.Source)] = a
	r.logger.Debug("ack_registered",
		zap.String("kind", string(a.Kind)),
		zap.String("signal_type", string(a.SignalType)),
		zap.String("source", a.Source),
		zap.String("reason", a.Reason))
	return a
}

// Check consults the registry for a signal class. currentValue, when
// non-nil, enables the deferral value-override path. Lookup tries the
// source-narrowed key first, then the bare type.
func (r *Registry) Check(typ signal.Type, source string, currentValue *float64) CheckResult {
	r.checkCount++
	if r.checkCount%pruneEveryNChecks == 0 {
		r.Prune()
	}

	a, k := r.lookup(typ, source)
	if a == nil {
		return CheckResult{Blocked: false}
	}

	switch a.Kind {
	case KindHandled:
		// Consumed by this check.
		delete(r.entries, k)
		return CheckResult{Blocked: false, Reason: "handled ack consumed"}

	case KindSuppressed:
		r.metrics.Inc(observability.MetricAckBlocked)
		return CheckResult{Blocked: true, Reason: a.Reason}

	case KindDeferred:
		now := r.now()
		if !now.Before(a.DeferUntil) {
			delete(r.entries, k)
			return CheckResult{Blocked: false, Reason: "deferral expired"}
		}
		if a.ValueAtAck != nil && currentValue != nil && *currentValue-*a.ValueAtAck >= a.OverrideDelta {
			delete(r.entries, k)
			r.metrics.Inc(observability.MetricAckOverride)
			r.logger.Info("ack_override",
				zap.String("signal_type", string(typ)),
				zap.Float64("value_at_ack", *a.ValueAtAck),
				zap.Float64("current_value", *currentValue),
				zap.Float64("override_delta", a.OverrideDelta))
			return CheckResult{Blocked: false, IsOverride: true, Reason: "value override"}
		}
		r.metrics.Inc(observability.MetricAckBlocked)
		return CheckResult{Blocked: true, Reason: a.Reason}
	}

	return CheckResult{Blocked: false}
}

func (r *Registry) lookup(typ signal.Type, source string) (*Ack, string) {
	if source != "" {
		k := key(typ, source)
		if a, ok := r.entries[k]; ok {
			return a, k
		}
	}
	k := key(typ, "")
	if a, ok := r.entries[k]; ok {
		return a, k
	}
	return nil, ""
}

// Clear removes the ack for a signal class. Returns true when one existed.
func (r *Registry) Clear(typ signal.Type, source string) bool {
	k := key(typ, source)
	if _, ok := r.entries[k]; !ok {
		return false
	}
	delete(r.entries, k)
	return true
}

// ClearAll drops every entry. Called when the user re-engages.
func (r *Registry) ClearAll() {
	n := len(r.entries)
	r.entries = make(map[string]*Ack)
	if n > 0 {
		r.logger.Info("ack_registry_cleared", zap.Int("count", n))
	}
}

// Prune removes expired deferrals.
func (r *Registry) Prune() int {
	now := r.now()
	pruned := 0
	for k, a := range r.entries {
		if a.Kind == KindDeferred && !now.Before(a.DeferUntil) {
			delete(r.entries, k)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// SetClock overrides the registry clock. Test hook.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}
