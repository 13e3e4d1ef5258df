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

// Package tool defines the executable capabilities cognition can invoke
// during a turn, plus the registry that holds them. Tools are the only way
// the thinking stage touches the outside world before the motor stage runs.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is a single named capability exposed to the model.
type Tool interface {
	// Name returns the tool's unique identifier, namespaced with a dot
	// (core.defer, plugin.weather.fetch).
	Name() string

	// Description returns a human-readable description for model context.
	Description() string

	// InputSchema returns the JSON Schema for tool parameters.
	InputSchema() *JSONSchema

	// Execute runs the tool with given parameters.
	Execute(ctx context.Context, params map[string]interface{}) (*Result, error)

	// HasSideEffects reports whether the tool mutates anything outside the
	// turn. Side-effecting tools are budgeted per turn.
	HasSideEffects() bool
}

// Result represents the outcome of tool execution.
type Result struct {
	// Success indicates if the tool executed successfully.
	Success bool

	// Data contains the result data handed back to the model.
	Data interface{}

	// Error contains error information if execution failed.
	Error *Error

	// EscalateToSmart asks the turn to retry with the smart model.
	// Only the built-in escalation tool sets this.
	EscalateToSmart bool
}

// Error represents a tool execution error with structured information.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) String() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// JSONSchema represents a JSON Schema for tool parameters.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []interface{}          `json:"enum,omitempty"`
	Default     interface{}            `json:"default,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
}

// ToJSON converts the schema to JSON bytes.
func (s *JSONSchema) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// Fail builds a failed result with a structured error.
func Fail(code, message string, retryable bool) *Result {
	return &Result{
		Success: false,
		Error:   &Error{Code: code, Message: message, Retryable: retryable},
	}
}

// OK builds a successful result.
func OK(data interface{}) *Result {
	return &Result{Success: true, Data: data}
}
