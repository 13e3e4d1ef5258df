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

package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/teradata-labs/vigil/pkg/signal"
	"github.com/teradata-labs/vigil/pkg/storage"
)

// Namespace is the storage namespace holding schedule entries.
const Namespace = "schedules"

// entryKeyPrefix namespaces entry keys so listing stays a bounded prefix
// scan.
const entryKeyPrefix = "entry."

// Entry is one persisted wakeup. One-shot entries have a nil Recurrence
// and are removed after firing; recurring entries are rescheduled.
type Entry struct {
	ID          string             `json:"id"`
	FireAt      time.Time          `json:"fire_at"`
	Recurrence  *signal.Recurrence `json:"recurrence,omitempty"`
	Payload     map[string]string  `json:"payload,omitempty"`
	CreatedBy   string             `json:"created_by"`
	CreatedAt   time.Time          `json:"created_at"`
	LastFiredAt time.Time          `json:"last_fired_at,omitempty"`
}

// Store persists entries in the runtime's KV store, surviving restarts.
type Store struct {
	kv storage.Store
}

// NewStore wraps the KV store's schedules namespace.
func NewStore(kv storage.Store) *Store {
	return &Store{kv: kv}
}

// Put saves an entry, filling in ID and CreatedAt when blank.
func (s *Store) Put(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode schedule entry: %w", err)
	}
	return s.kv.Set(ctx, Namespace, entryKeyPrefix+entry.ID, raw)
}

// Get returns an entry by id.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	raw, err := s.kv.Get(ctx, Namespace, entryKeyPrefix+id)
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode schedule entry %s: %w", id, err)
	}
	return &entry, nil
}

// Delete removes an entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.kv.Delete(ctx, Namespace, entryKeyPrefix+id)
}

// All returns every entry ordered by fire time.
func (s *Store) All(ctx context.Context) ([]*Entry, error) {
	items, err := s.kv.Query(ctx, Namespace, entryKeyPrefix, storage.QueryOptions{})
	if err != nil {
		return nil, err
	}
	entries := make([]*Entry, 0, len(items))
	for _, item := range items {
		var entry Entry
		if err := json.Unmarshal(item.Value, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode schedule entry %s: %w", item.Key, err)
		}
		entries = append(entries, &entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FireAt.Before(entries[j].FireAt) })
	return entries, nil
}

// Due returns the entries whose fire time has passed, ordered by fire time.
func (s *Store) Due(ctx context.Context, now time.Time) ([]*Entry, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var due []*Entry
	for _, entry := range all {
		if !entry.FireAt.After(now) {
			due = append(due, entry)
		}
	}
	return due, nil
}

// DeleteByCreator removes every entry a creator owns, returning the count.
// Used when a plugin deactivates.
func (s *Store) DeleteByCreator(ctx context.Context, createdBy string) (int, error) {
	all, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range all {
		if entry.CreatedBy != createdBy {
			continue
		}
		if err := s.Delete(ctx, entry.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
