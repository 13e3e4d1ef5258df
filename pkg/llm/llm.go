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

// Package llm defines the cognition stage's model port: a two-tier
// provider (fast for routine turns, smart for escalations), a shared rate
// limiter and a token counter.
package llm

import (
	"context"

	"github.com/teradata-labs/vigil/pkg/tool"
)

// Role selects which model tier serves a request.
type Role string

const (
	RoleFast  Role = "fast"
	RoleSmart Role = "smart"
)

// Message is one turn of conversation sent to the model.
type Message struct {
	// Role is the message sender (system, user, assistant, tool).
	Role string

	// Content is the message text.
	Content string

	// ToolCalls are the calls an assistant message requested.
	ToolCalls []ToolCall

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// Request is a single completion request.
type Request struct {
	Messages    []Message
	Role        Role
	MaxTokens   int
	Temperature float64

	// ResponseFormat is "json" to force a JSON object response, empty for text.
	ResponseFormat string

	// Tools the model may call this turn.
	Tools []tool.Tool

	// ToolChoice is "auto", "none" or a specific tool name.
	ToolChoice string
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is the model's answer.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string // stop, length, tool_calls
	Usage      Usage
}

// Provider serves completion requests for both model tiers.
type Provider interface {
	// Complete sends a conversation to the model tier named by req.Role.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Name returns the provider name.
	Name() string

	// Model returns the model identifier serving the given role.
	Model(role Role) string
}
