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

package channel

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SentMessage records one delivery through a mock channel.
type SentMessage struct {
	Target string
	Text   string
	Opts   SendOptions
}

// MockChannel is an in-memory adapter for tests and dry runs. It implements
// every optional capability so registries can be exercised end to end.
// SendErr, when set, fails deliveries until cleared.
type MockChannel struct {
	ChannelName string

	mu      sync.Mutex
	sent    []SentMessage
	running bool
	typing  map[string]bool
	SendErr error
}

// NewMockChannel creates a mock adapter with the given name.
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{ChannelName: name, typing: make(map[string]bool)}
}

// Name returns the adapter's registry key.
func (m *MockChannel) Name() string { return m.ChannelName }

// Send records the delivery or fails with SendErr.
func (m *MockChannel) Send(ctx context.Context, target, text string, opts SendOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return "", m.SendErr
	}
	m.sent = append(m.sent, SentMessage{Target: target, Text: text, Opts: opts})
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

// Start marks the adapter running.
func (m *MockChannel) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	return nil
}

// Stop marks the adapter stopped.
func (m *MockChannel) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Health reports healthy while the adapter is running.
func (m *MockChannel) Health(ctx context.Context) Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Health{Healthy: m.running, Detail: "mock", CheckedAt: time.Now()}
}

// Typing records the indicator state per target.
func (m *MockChannel) Typing(ctx context.Context, target string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing[target] = active
	return nil
}

// Sent returns a copy of the recorded deliveries.
func (m *MockChannel) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Running reports lifecycle state.
func (m *MockChannel) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
