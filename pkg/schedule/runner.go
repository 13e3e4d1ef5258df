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
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/signal"
	"github.com/teradata-labs/vigil/pkg/storage"
)

// CoreCreator marks entries created by the runtime itself rather than a
// plugin.
const CoreCreator = "core"

// Runner turns due entries into signals. The heartbeat polls it once per
// tick; no extra goroutine owns the clock.
type Runner struct {
	store  *Store
	logger *zap.Logger
}

// NewRunner creates a runner over the store.
func NewRunner(store *Store, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{store: store, logger: logger}
}

// CreateEntry persists a wakeup and returns its id. A nil recurrence makes
// a one-shot at fireAt; otherwise the first firing is computed from now.
// Implements the scheduler surface the core.schedule tool consumes.
func (r *Runner) CreateEntry(ctx context.Context, fireAt time.Time, rec *signal.Recurrence, payload map[string]string) (string, error) {
	return r.CreateEntryFor(ctx, CoreCreator, fireAt, rec, payload)
}

// CreateEntryFor persists a wakeup on behalf of a named creator.
func (r *Runner) CreateEntryFor(ctx context.Context, createdBy string, fireAt time.Time, rec *signal.Recurrence, payload map[string]string) (string, error) {
	entry := &Entry{
		FireAt:     fireAt,
		Recurrence: rec,
		Payload:    payload,
		CreatedBy:  createdBy,
	}
	if rec != nil {
		first, err := Next(rec, time.Now())
		if err != nil {
			return "", err
		}
		entry.FireAt = first
	} else if fireAt.IsZero() {
		return "", fmt.Errorf("one-shot entry needs a fire time")
	}
	if err := r.store.Put(ctx, entry); err != nil {
		return "", err
	}
	r.logger.Info("schedule_entry_created",
		zap.String("entry_id", entry.ID),
		zap.String("created_by", createdBy),
		zap.Time("fire_at", entry.FireAt))
	return entry.ID, nil
}

// Cancel removes an entry by id, reporting whether it existed.
func (r *Runner) Cancel(ctx context.Context, id string) (bool, error) {
	return r.cancel(ctx, "", id)
}

// CancelFor removes an entry by id only when the named creator owns it.
// Someone else's entry is indistinguishable from a missing one.
func (r *Runner) CancelFor(ctx context.Context, createdBy, id string) (bool, error) {
	return r.cancel(ctx, createdBy, id)
}

func (r *Runner) cancel(ctx context.Context, createdBy, id string) (bool, error) {
	entry, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if createdBy != "" && entry.CreatedBy != createdBy {
		return false, nil
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return false, err
	}
	r.logger.Info("schedule_entry_cancelled",
		zap.String("entry_id", id),
		zap.String("created_by", entry.CreatedBy))
	return true, nil
}

// Schedules returns every pending entry ordered by fire time.
func (r *Runner) Schedules(ctx context.Context) ([]*Entry, error) {
	return r.store.All(ctx)
}

// SchedulesFor returns the pending entries a creator owns, ordered by
// fire time.
func (r *Runner) SchedulesFor(ctx context.Context, createdBy string) ([]*Entry, error) {
	all, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}
	var owned []*Entry
	for _, entry := range all {
		if entry.CreatedBy == createdBy {
			owned = append(owned, entry)
		}
	}
	return owned, nil
}

// RemoveCreator deletes every entry a creator owns, used when a plugin is
// deactivated.
func (r *Runner) RemoveCreator(ctx context.Context, createdBy string) (int, error) {
	return r.store.DeleteByCreator(ctx, createdBy)
}

// CollectDue fires every due entry: one-shots are deleted, recurrences are
// rescheduled, and each firing becomes a plugin_event signal.
func (r *Runner) CollectDue(ctx context.Context, now time.Time) ([]*signal.Signal, error) {
	due, err := r.store.Due(ctx, now)
	if err != nil {
		return nil, err
	}
	var signals []*signal.Signal
	for _, entry := range due {
		signals = append(signals, r.fireSignal(entry))

		if entry.Recurrence == nil {
			if err := r.store.Delete(ctx, entry.ID); err != nil {
				return signals, err
			}
			continue
		}
		next, err := Next(entry.Recurrence, now)
		if err != nil {
			// A recurrence that stops resolving (dropped timezone data,
			// edited entry) is removed rather than retried forever.
			r.logger.Error("schedule_recurrence_failed",
				zap.String("entry_id", entry.ID), zap.Error(err))
			if delErr := r.store.Delete(ctx, entry.ID); delErr != nil {
				return signals, delErr
			}
			continue
		}
		entry.FireAt = next
		entry.LastFiredAt = now
		if err := r.store.Put(ctx, entry); err != nil {
			return signals, err
		}
	}
	return signals, nil
}

func (r *Runner) fireSignal(entry *Entry) *signal.Signal {
	data := make(map[string]string, len(entry.Payload)+1)
	for k, v := range entry.Payload {
		data[k] = v
	}
	data["entry_id"] = entry.ID
	return signal.New(signal.TypePluginEvent, "schedule."+entry.CreatedBy, signal.PriorityNormal, signal.Metrics{
		Value:      1.0,
		Confidence: 1.0,
	}).WithPayload(&signal.PluginEventPayload{
		PluginID: entry.CreatedBy,
		Kind:     "schedule_fired",
		Data:     data,
	})
}
