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

// Package channel defines the messaging port between the agent and the
// outside world. The required surface is minimal: deliver a message.
// Optional capabilities (lifecycle, health, typing) are separate interfaces
// probed at runtime, so a bare-bones adapter stays small.
package channel

import (
	"context"
	"time"
)

// SendOptions tune a single delivery. Adapters ignore options they cannot
// express.
type SendOptions struct {
	ReplyTo            string
	ParseMode          string // markdown, html, plain
	DisableLinkPreview bool
	Silent             bool
}

// Channel is the required capability: deliver text to a target.
type Channel interface {
	// Name returns the adapter's registry key, e.g. "telegram".
	Name() string

	// Send delivers text to target and returns the provider message id.
	Send(ctx context.Context, target, text string, opts SendOptions) (string, error)
}

// Lifecycle is implemented by adapters that maintain a connection.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Health describes an adapter's current condition.
type Health struct {
	Healthy   bool
	Detail    string
	CheckedAt time.Time
}

// HealthReporter is implemented by adapters that can self-diagnose.
type HealthReporter interface {
	Health(ctx context.Context) Health
}

// TypingCapable is implemented by adapters that can show a typing
// indicator while cognition composes a reply.
type TypingCapable interface {
	Typing(ctx context.Context, target string, active bool) error
}
