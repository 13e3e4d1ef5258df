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

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// MemoriesNamespace holds the agent's long-term notes.
const MemoriesNamespace = "memories"

// memoryKeyPrefix namespaces note keys so listing stays a bounded prefix
// scan.
const memoryKeyPrefix = "note."

// Memory is one stored note.
type Memory struct {
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Memories is the long-term note store backing the remember tool and the
// cognition prompt context.
type Memories struct {
	store Store
}

// NewMemories wraps a store's memories namespace.
func NewMemories(store Store) *Memories {
	return &Memories{store: store}
}

// Remember saves a note under key, overwriting any previous note.
func (m *Memories) Remember(ctx context.Context, key, content string) error {
	entry := Memory{Key: key, Content: content, CreatedAt: time.Now().UTC()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode memory %q: %w", key, err)
	}
	return m.store.Set(ctx, MemoriesNamespace, memoryKeyPrefix+key, raw)
}

// Recall returns the note stored under key.
func (m *Memories) Recall(ctx context.Context, key string) (*Memory, error) {
	raw, err := m.store.Get(ctx, MemoriesNamespace, memoryKeyPrefix+key)
	if err != nil {
		return nil, err
	}
	var entry Memory
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode memory %q: %w", key, err)
	}
	return &entry, nil
}

// List returns all stored notes, ordered by key.
func (m *Memories) List(ctx context.Context) ([]Memory, error) {
	items, err := m.store.Query(ctx, MemoriesNamespace, memoryKeyPrefix, QueryOptions{})
	if err != nil {
		return nil, err
	}
	memories := make([]Memory, 0, len(items))
	for _, item := range items {
		var entry Memory
		if err := json.Unmarshal(item.Value, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode memory %q: %w", item.Key, err)
		}
		memories = append(memories, entry)
	}
	return memories, nil
}

// Forget removes the note stored under key.
func (m *Memories) Forget(ctx context.Context, key string) error {
	return m.store.Delete(ctx, MemoriesNamespace, memoryKeyPrefix+key)
}
