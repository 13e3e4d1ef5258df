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
	"fmt"
)

// Error kinds, matching the runtime's error taxonomy. Kinds classify
// behavior (retry or fail), not provenance.
const (
	KindTransient = "transient" // timeouts, 5xx, rate limits
	KindProtocol  = "protocol"  // invalid target, 4xx, permission denied
	KindPolicy    = "policy"    // rejected by a policy check, state unchanged
	KindBudget    = "budget"    // budget exhausted, dropped with a metric
)

// Error is a classified failure from an outbound port or a policy check.
type Error struct {
	Kind      string
	Retryable bool
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable transient failure.
func Transient(message string, err error) *Error {
	return &Error{Kind: KindTransient, Retryable: true, Message: message, Err: err}
}

// Protocol wraps err as a non-retryable protocol failure.
func Protocol(message string, err error) *Error {
	return &Error{Kind: KindProtocol, Retryable: false, Message: message, Err: err}
}

// Policy creates a non-retryable policy rejection.
func Policy(message string) *Error {
	return &Error{Kind: KindPolicy, Retryable: false, Message: message}
}

// Budget creates a budget-exhaustion marker. Never surfaced as a user error.
func Budget(message string) *Error {
	return &Error{Kind: KindBudget, Retryable: false, Message: message}
}

// retryableMarker lets foreign error types (tool results, provider errors)
// advertise retryability without importing this package.
type retryableMarker interface {
	IsRetryable() bool
}

// Retryable reports whether err should be retried. Deadline expiry is
// retryable (the next attempt gets its own deadline); cancellation is not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	var m retryableMarker
	if errors.As(err, &m) {
		return m.IsRetryable()
	}
	return false
}
