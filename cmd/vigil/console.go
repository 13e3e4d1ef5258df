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
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/bus"
	"github.com/teradata-labs/vigil/pkg/channel"
)

const consoleTarget = "console"

// consoleChannel is a stdin/stdout adapter for local runs: typed lines
// become inbound user messages, outbound sends print to the terminal.
// It exists so the binary is usable without an external messenger.
type consoleChannel struct {
	bus     *bus.Bus
	logger  *zap.Logger
	running atomic.Bool
	seq     atomic.Int64
}

func newConsoleChannel(b *bus.Bus, logger *zap.Logger) *consoleChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &consoleChannel{bus: b, logger: logger.Named("channel.console")}
}

func (c *consoleChannel) Name() string { return "console" }

func (c *consoleChannel) Send(ctx context.Context, target, text string, opts channel.SendOptions) (string, error) {
	if !c.running.Load() {
		return "", fmt.Errorf("console channel is not running")
	}
	fmt.Fprintf(os.Stdout, "\n<< %s\n", text)
	return fmt.Sprintf("console-%d", c.seq.Add(1)), nil
}

func (c *consoleChannel) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return nil
	}
	go c.readLoop()
	return nil
}

func (c *consoleChannel) Stop(ctx context.Context) error {
	// Stdin reads cannot be interrupted portably; the goroutine exits
	// with the process. Mark stopped so sends fail fast.
	c.running.Store(false)
	return nil
}

func (c *consoleChannel) Health(ctx context.Context) channel.Health {
	return channel.Health{Healthy: c.running.Load(), CheckedAt: time.Now()}
}

// readLoop turns typed lines into user_message signals.
func (c *consoleChannel) readLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for c.running.Load() && scanner.Scan() {
		sig := channel.NormalizeMessage(channel.InboundMessage{
			Channel:    c.Name(),
			ChatID:     consoleTarget,
			UserID:     consoleTarget,
			MessageID:  uuid.NewString(),
			Text:       scanner.Text(),
			ReceivedAt: time.Now(),
		})
		if sig == nil {
			continue
		}
		if err := c.bus.Push(sig); err != nil {
			c.logger.Warn("console_message_dropped", zap.Error(err))
		}
	}
}
