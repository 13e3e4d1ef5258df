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

// Package fabric provides the fault-isolation layer wrapping outbound ports:
// a per-dependency circuit breaker, retry with exponential backoff, and the
// classified error type the rest of the runtime keys on.
package fabric

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	StateClosed   CircuitState = iota // normal operation
	StateOpen                         // failing, reject immediately
	StateHalfOpen                     // probing, one request allowed through
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Execute while the circuit is open. The
// wrapped dependency is not invoked.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreakerConfig defines circuit breaker behavior for one named
// dependency.
type CircuitBreakerConfig struct {
	Name             string
	MaxFailures      int           // consecutive failures to open (default: 3)
	ResetTimeout     time.Duration // open duration before a half-open probe (default: 60s)
	OperationTimeout time.Duration // per-call deadline, 0 disables the guard
	OnStateChange    func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the runtime defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxFailures:  3,
		ResetTimeout: 60 * time.Second,
	}
}

// CircuitBreaker isolates one named dependency. State transitions happen on
// the scheduler thread; Stats reads are snapshot semantics behind an RWMutex.
type CircuitBreaker struct {
	mu               sync.RWMutex
	state            CircuitState
	failureCount     int
	consecutiveOpens int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	lastError        error
	config           CircuitBreakerConfig
}

// NewCircuitBreaker creates a circuit breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 3
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		state:           StateClosed,
		config:          config,
		lastStateChange: time.Now(),
	}
}

// Execute runs work under the breaker. While open it fails with
// ErrCircuitOpen without invoking work. After ResetTimeout elapses the next
// call transitions to half-open and carries the probe. The operation runs
// under OperationTimeout when configured; a timeout counts as a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, work func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	if cb.config.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.config.OperationTimeout)
		defer cancel()
	}

	err := work(ctx)
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return nil

	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.ResetTimeout {
			cb.setStateLocked(StateHalfOpen)
			zap.L().Info("circuit_breaker_half_open",
				zap.String("name", cb.config.Name),
				zap.Duration("open_for", time.Since(cb.lastFailureTime)))
			return nil
		}
		return ErrCircuitOpen

	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.onSuccess()
	} else {
		cb.onFailure(err)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.failureCount = 0
		cb.consecutiveOpens = 0
		cb.setStateLocked(StateClosed)
		zap.L().Info("circuit_breaker_closed",
			zap.String("name", cb.config.Name),
			zap.String("reason", "probe_succeeded"))
	case StateClosed:
		if cb.failureCount > 0 {
			zap.L().Debug("circuit_breaker_reset",
				zap.String("name", cb.config.Name),
				zap.Int("previous_failures", cb.failureCount))
			cb.failureCount = 0
		}
	}
}

func (cb *CircuitBreaker) onFailure(err error) {
	cb.failureCount++
	cb.lastFailureTime = time.Now()
	cb.lastError = err

	switch cb.state {
	case StateClosed:
		zap.L().Warn("circuit_breaker_failure",
			zap.String("name", cb.config.Name),
			zap.Error(err),
			zap.Int("failure_count", cb.failureCount),
			zap.Int("threshold", cb.config.MaxFailures))

		if cb.failureCount >= cb.config.MaxFailures {
			cb.consecutiveOpens++
			cb.setStateLocked(StateOpen)
			zap.L().Error("circuit_breaker_opened",
				zap.String("name", cb.config.Name),
				zap.Int("consecutive_failures", cb.failureCount),
				zap.Duration("reset_timeout", cb.config.ResetTimeout))
		}

	case StateHalfOpen:
		// Failed probe reopens immediately.
		cb.consecutiveOpens++
		cb.setStateLocked(StateOpen)
		zap.L().Warn("circuit_breaker_reopened",
			zap.String("name", cb.config.Name),
			zap.Error(err))
	}
}

func (cb *CircuitBreaker) setStateLocked(newState CircuitState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = time.Now()

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, newState)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Stats contains a point-in-time view of the breaker.
type Stats struct {
	Name             string
	State            CircuitState
	FailureCount     int
	ConsecutiveOpens int
	LastFailureTime  time.Time
	LastStateChange  time.Time
	MaxFailures      int
}

// GetStats returns current circuit breaker statistics.
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return Stats{
		Name:             cb.config.Name,
		State:            cb.state,
		FailureCount:     cb.failureCount,
		ConsecutiveOpens: cb.consecutiveOpens,
		LastFailureTime:  cb.lastFailureTime,
		LastStateChange:  cb.lastStateChange,
		MaxFailures:      cb.config.MaxFailures,
	}
}

// Reset manually returns the breaker to closed without waiting for the
// reset timeout.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.consecutiveOpens = 0
	cb.lastFailureTime = time.Time{}
	cb.lastStateChange = time.Now()

	if cb.config.OnStateChange != nil && oldState != StateClosed {
		cb.config.OnStateChange(oldState, StateClosed)
	}
}

// Manager holds one breaker per named dependency (channel, llm, tool).
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	defaults CircuitBreakerConfig
}

// NewManager creates a manager; defaults apply to breakers created on demand.
func NewManager(defaults CircuitBreakerConfig) *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults,
	}
}

// Breaker returns the circuit breaker for name, creating one if needed.
func (m *Manager) Breaker(name string) *CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok = m.breakers[name]; ok {
		return cb
	}
	cfg := m.defaults
	cfg.Name = name
	cb = NewCircuitBreaker(cfg)
	m.breakers[name] = cb
	return cb
}

// AllStats returns statistics for every breaker, keyed by dependency name.
func (m *Manager) AllStats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]Stats, len(m.breakers))
	for name, cb := range m.breakers {
		stats[name] = cb.GetStats()
	}
	return stats
}
