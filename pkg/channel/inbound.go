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
	"strings"
	"time"

	"github.com/teradata-labs/vigil/pkg/signal"
)

// InboundMessage is a raw message as an adapter received it.
type InboundMessage struct {
	Channel    string
	ChatID     string
	UserID     string
	MessageID  string
	Text       string
	ReceivedAt time.Time
}

// InboundReaction is a user reaction to a message the agent sent.
type InboundReaction struct {
	Channel   string
	MessageID string
	Emoji     string
}

var positiveEmojis = map[string]bool{
	"👍": true, "❤️": true, "❤": true, "🔥": true, "😂": true,
	"🎉": true, "💯": true, "🥰": true, "😍": true,
}

// NormalizeMessage converts an inbound message into the HIGH-priority
// user_message signal the pipeline consumes. Empty or whitespace-only
// messages yield nil.
func NormalizeMessage(msg InboundMessage) *signal.Signal {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	return signal.New(signal.TypeUserMessage, "sense."+msg.Channel, signal.PriorityHigh, signal.Metrics{
		Value:      1.0,
		Confidence: 1.0,
	}).WithPayload(&signal.UserMessagePayload{
		ChatID:    msg.ChatID,
		Text:      text,
		UserID:    msg.UserID,
		MessageID: msg.MessageID,
		Channel:   msg.Channel,
	})
}

// NormalizeReaction converts a reaction into a message_reaction signal.
// Positive reactions ride NORMAL priority; the rest are LOW.
func NormalizeReaction(r InboundReaction) *signal.Signal {
	positive := positiveEmojis[r.Emoji]
	priority := signal.PriorityLow
	if positive {
		priority = signal.PriorityNormal
	}
	return signal.New(signal.TypeMessageReaction, "sense."+r.Channel, priority, signal.Metrics{
		Value:      1.0,
		Confidence: 1.0,
	}).WithPayload(&signal.ReactionPayload{
		MessageID: r.MessageID,
		Emoji:     r.Emoji,
		Positive:  positive,
	})
}
