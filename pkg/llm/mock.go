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

package llm

import (
	"context"
	"sync"
)

// MockProvider serves scripted responses for tests and dry runs. Responses
// are consumed in order; when the script runs out, the last entry repeats.
type MockProvider struct {
	mu        sync.Mutex
	script    []MockTurn
	callIndex int
	Requests  []*Request
}

// MockTurn is one scripted exchange.
type MockTurn struct {
	Response *Response
	Err      error
}

// NewMockProvider creates a provider that replays the given turns.
func NewMockProvider(script ...MockTurn) *MockProvider {
	if len(script) == 0 {
		script = []MockTurn{{Response: &Response{Content: "ok", StopReason: "stop"}}}
	}
	return &MockProvider{script: script}
}

// Name returns the provider name.
func (m *MockProvider) Name() string { return "mock" }

// Model returns a stable fake model id per tier.
func (m *MockProvider) Model(role Role) string {
	if role == RoleSmart {
		return "mock-smart"
	}
	return "mock-fast"
}

// Complete records the request and replays the next scripted turn.
func (m *MockProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	turn := m.script[m.callIndex]
	if m.callIndex < len(m.script)-1 {
		m.callIndex++
	}
	return turn.Response, turn.Err
}

// Calls returns how many completions were requested.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
