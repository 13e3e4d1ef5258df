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
	"github.com/pkoukk/tiktoken-go"
)

// complexityFullScale is the token count mapped to complexity 1.0.
const complexityFullScale = 400.0

// Counter estimates token counts for budgeting and situation complexity.
// It uses the cl100k_base BPE when available and a bytes/4 heuristic when
// the encoding cannot be loaded (offline environments).
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter builds a counter, degrading silently to the heuristic.
func NewCounter() *Counter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	// Rough BPE average for mixed prose.
	return (len(text) + 3) / 4
}

// CountMessages sums the token counts of a conversation, with a small
// per-message envelope overhead.
func (c *Counter) CountMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += c.Count(m.Content) + 4
	}
	return total
}

// Complexity maps text length onto [0,1] for the fast/smart routing
// decision. Longer input reads as a more complex situation.
func (c *Counter) Complexity(text string) float64 {
	v := float64(c.Count(text)) / complexityFullScale
	if v > 1.0 {
		return 1.0
	}
	return v
}
