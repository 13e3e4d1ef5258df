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
package fabric

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("channel"))

	if cb == nil {
		t.Fatal("NewCircuitBreaker returned nil")
	}
	if cb.State() != StateClosed {
		t.Errorf("expected initial state closed, got %v", cb.State())
	}
	stats := cb.GetStats()
	if stats.FailureCount != 0 {
		t.Errorf("expected failureCount 0, got %d", stats.FailureCount)
	}
	if stats.MaxFailures != 3 {
		t.Errorf("expected default MaxFailures 3, got %d", stats.MaxFailures)
	}
}

func TestCircuitOpensAtMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "channel",
		MaxFailures:  3,
		ResetTimeout: time.Minute,
	})

	boom := errors.New("send failed")
	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func(context.Context) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected operation error, got %v", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected state open after 3 failures, got %v", cb.State())
	}

	// Open circuit rejects without invoking the dependency.
	invoked := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if invoked {
		t.Error("dependency invoked while circuit open")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "llm", MaxFailures: 3, ResetTimeout: time.Minute})

	boom := errors.New("timeout")
	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	_ = cb.Execute(context.Background(), func(context.Context) error { return nil })

	if got := cb.GetStats().FailureCount; got != 0 {
		t.Errorf("expected failure count reset to 0, got %d", got)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected state closed, got %v", cb.State())
	}
}

func TestHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "channel",
		MaxFailures:  1,
		ResetTimeout: 30 * time.Millisecond,
	})

	boom := errors.New("send failed")
	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	time.Sleep(40 * time.Millisecond)

	// First call after the reset timeout carries the probe.
	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %v", cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "channel",
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
	})

	boom := errors.New("still down")
	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(context.Background(), func(context.Context) error { return boom })
	if cb.State() != StateOpen {
		t.Errorf("expected reopened circuit, got %v", cb.State())
	}
}

func TestOperationTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "slow",
		MaxFailures:      1,
		ResetTimeout:     time.Minute,
		OperationTimeout: 20 * time.Millisecond,
	})

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("timeout should count as failure, state %v", cb.State())
	}
}

func TestReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "c", MaxFailures: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("x") })
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("expected closed after reset, got %v", cb.State())
	}
}

func TestOnStateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "c",
		MaxFailures:  1,
		ResetTimeout: time.Hour,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("x") })
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("unexpected transitions: %v", transitions)
	}
}

func TestManagerPerDependency(t *testing.T) {
	m := NewManager(DefaultCircuitBreakerConfig(""))

	a := m.Breaker("channel.telegram")
	b := m.Breaker("llm.fast")
	if a == b {
		t.Fatal("expected independent breakers per dependency")
	}
	if m.Breaker("channel.telegram") != a {
		t.Error("expected same breaker for same name")
	}

	stats := m.AllStats()
	if len(stats) != 2 {
		t.Errorf("expected 2 breakers, got %d", len(stats))
	}
	if stats["channel.telegram"].Name != "channel.telegram" {
		t.Errorf("stats not keyed by name: %+v", stats)
	}
}

func TestRetryNonRetryableShortCircuits(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), "send_message", func() error {
		calls++
		return Protocol("invalid target", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error should not retry, got %d calls", calls)
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	cfg := RetryConfig{Enabled: true, MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	calls := 0
	err := Retry(context.Background(), cfg, "send_message", func() error {
		calls++
		if calls < 3 {
			return Transient("flaky network", errors.New("503"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	cfg := RetryConfig{Enabled: true, MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	calls := 0
	err := Retry(context.Background(), cfg, "send_message", func() error {
		calls++
		return Transient("still down", errors.New("503"))
	})
	if err == nil {
		t.Fatal("expected error after budget exhausted")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", calls)
	}
}

func TestRetryableClassification(t *testing.T) {
	if Retryable(nil) {
		t.Error("nil is not retryable")
	}
	if !Retryable(Transient("t", nil)) {
		t.Error("transient should be retryable")
	}
	if Retryable(Protocol("p", nil)) {
		t.Error("protocol should not be retryable")
	}
	if Retryable(context.Canceled) {
		t.Error("cancellation should not be retryable")
	}
	if !Retryable(context.DeadlineExceeded) {
		t.Error("deadline expiry should be retryable")
	}
}
