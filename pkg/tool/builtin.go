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

package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/vigil/pkg/ack"
	"github.com/teradata-labs/vigil/pkg/schedule"
	"github.com/teradata-labs/vigil/pkg/signal"
)

// MemoryStore persists free-form notes the agent decides to keep.
type MemoryStore interface {
	Remember(ctx context.Context, key, content string) error
}

// Scheduler manages future wakeups that fire back into the signal bus.
type Scheduler interface {
	CreateEntry(ctx context.Context, fireAt time.Time, recurrence *signal.Recurrence, payload map[string]string) (string, error)
	Cancel(ctx context.Context, id string) (bool, error)
	Schedules(ctx context.Context) ([]*schedule.Entry, error)
}

const maxDeferHours = 24

// RegisterBuiltins wires the core tool set into the registry. Any nil
// dependency skips its tool, so a reduced runtime still works.
func RegisterBuiltins(r *Registry, acks *ack.Registry, memories MemoryStore, scheduler Scheduler) {
	if acks != nil {
		r.Register(&DeferTool{acks: acks})
		r.Register(&SuppressTool{acks: acks})
	}
	if memories != nil {
		r.Register(&RememberTool{store: memories})
	}
	if scheduler != nil {
		r.Register(&ScheduleTool{scheduler: scheduler})
		r.Register(&CancelScheduleTool{scheduler: scheduler})
		r.Register(&ListSchedulesTool{scheduler: scheduler})
	}
	r.Register(&EscalateTool{})
}

// DeferTool snoozes a signal class for a number of hours.
type DeferTool struct {
	acks *ack.Registry
}

func (*DeferTool) Name() string { return "core.defer" }

func (*DeferTool) Description() string {
	return "Snooze a signal type for a number of hours so it stops waking you. " +
		"A large change in the underlying value still breaks through."
}

func (*DeferTool) HasSideEffects() bool { return true }

func (*DeferTool) InputSchema() *JSONSchema {
	hoursMax := float64(maxDeferHours)
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"signal_type":  {Type: "string", Description: "Signal type to defer, e.g. social_debt"},
			"source":       {Type: "string", Description: "Optional source to narrow the deferral to"},
			"hours":        {Type: "number", Description: "How long to defer", Maximum: &hoursMax},
			"reason":       {Type: "string", Description: "Why this is being deferred"},
			"value_at_ack": {Type: "number", Description: "Current metric value, enables the change override"},
		},
		Required: []string{"signal_type", "hours"},
	}
}

func (t *DeferTool) Execute(ctx context.Context, params map[string]interface{}) (*Result, error) {
	typ, err := signalTypeParam(params, "signal_type")
	if err != nil {
		return Fail("invalid_params", err.Error(), false), nil
	}
	hours, ok := floatParam(params, "hours")
	if !ok || hours <= 0 {
		return Fail("invalid_params", "hours must be a positive number", false), nil
	}
	entry := &ack.Ack{
		SignalType: typ,
		Source:     stringParam(params, "source"),
		Kind:       ack.KindDeferred,
		DeferUntil: time.Now().Add(time.Duration(hours * float64(time.Hour))),
		Reason:     stringParam(params, "reason"),
	}
	if v, ok := floatParam(params, "value_at_ack"); ok {
		entry.ValueAtAck = &v
	}
	registered := t.acks.Register(entry)
	return OK(map[string]interface{}{
		"deferred_until": registered.DeferUntil.Format(time.RFC3339),
	}), nil
}

// SuppressTool blocks a signal class until explicitly cleared.
type SuppressTool struct {
	acks *ack.Registry
}

func (*SuppressTool) Name() string { return "core.suppress" }

func (*SuppressTool) Description() string {
	return "Permanently silence a signal type until it is explicitly un-suppressed."
}

func (*SuppressTool) HasSideEffects() bool { return true }

func (*SuppressTool) InputSchema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"signal_type": {Type: "string", Description: "Signal type to suppress"},
			"source":      {Type: "string", Description: "Optional source to narrow the suppression to"},
			"reason":      {Type: "string", Description: "Why this is being suppressed"},
		},
		Required: []string{"signal_type"},
	}
}

func (t *SuppressTool) Execute(ctx context.Context, params map[string]interface{}) (*Result, error) {
	typ, err := signalTypeParam(params, "signal_type")
	if err != nil {
		return Fail("invalid_params", err.Error(), false), nil
	}
	t.acks.Register(&ack.Ack{
		SignalType: typ,
		Source:     stringParam(params, "source"),
		Kind:       ack.KindSuppressed,
		Reason:     stringParam(params, "reason"),
	})
	return OK(map[string]interface{}{"suppressed": string(typ)}), nil
}

// RememberTool persists a note to long-term memory.
type RememberTool struct {
	store MemoryStore
}

func (*RememberTool) Name() string { return "core.remember" }

func (*RememberTool) Description() string {
	return "Store a note in long-term memory under a short key."
}

func (*RememberTool) HasSideEffects() bool { return true }

func (*RememberTool) InputSchema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"key":     {Type: "string", Description: "Short identifier for the note"},
			"content": {Type: "string", Description: "The note to remember"},
		},
		Required: []string{"key", "content"},
	}
}

func (t *RememberTool) Execute(ctx context.Context, params map[string]interface{}) (*Result, error) {
	key := stringParam(params, "key")
	content := stringParam(params, "content")
	if key == "" || content == "" {
		return Fail("invalid_params", "key and content are required", false), nil
	}
	if err := t.store.Remember(ctx, key, content); err != nil {
		return Fail("storage_error", err.Error(), true), nil
	}
	return OK(map[string]interface{}{"remembered": key}), nil
}

// ScheduleTool creates a future or recurring wakeup.
type ScheduleTool struct {
	scheduler Scheduler
}

func (*ScheduleTool) Name() string { return "core.schedule" }

func (*ScheduleTool) Description() string {
	return "Schedule a one-shot or recurring wakeup. When it fires, a plugin_event " +
		"signal carrying the payload enters the pipeline."
}

func (*ScheduleTool) HasSideEffects() bool { return true }

func (*ScheduleTool) InputSchema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"fire_at": {Type: "string", Description: "RFC3339 time for a one-shot wakeup"},
			"cron":    {Type: "string", Description: "Cron expression for a recurring wakeup"},
			"note":    {Type: "string", Description: "Payload note delivered when the wakeup fires"},
		},
	}
}

func (t *ScheduleTool) Execute(ctx context.Context, params map[string]interface{}) (*Result, error) {
	payload := map[string]string{"note": stringParam(params, "note")}

	if cron := stringParam(params, "cron"); cron != "" {
		id, err := t.scheduler.CreateEntry(ctx, time.Time{}, &signal.Recurrence{
			Kind: signal.RecurrenceCron,
			Cron: cron,
		}, payload)
		if err != nil {
			return Fail("schedule_error", err.Error(), true), nil
		}
		return OK(map[string]interface{}{"entry_id": id}), nil
	}

	fireAtRaw := stringParam(params, "fire_at")
	if fireAtRaw == "" {
		return Fail("invalid_params", "either fire_at or cron is required", false), nil
	}
	fireAt, err := time.Parse(time.RFC3339, fireAtRaw)
	if err != nil {
		return Fail("invalid_params", fmt.Sprintf("fire_at is not RFC3339: %v", err), false), nil
	}
	id, err := t.scheduler.CreateEntry(ctx, fireAt, nil, payload)
	if err != nil {
		return Fail("schedule_error", err.Error(), true), nil
	}
	return OK(map[string]interface{}{"entry_id": id}), nil
}

// CancelScheduleTool removes a pending wakeup by id.
type CancelScheduleTool struct {
	scheduler Scheduler
}

func (*CancelScheduleTool) Name() string { return "core.cancel_schedule" }

func (*CancelScheduleTool) Description() string {
	return "Cancel a pending wakeup by its entry id."
}

func (*CancelScheduleTool) HasSideEffects() bool { return true }

func (*CancelScheduleTool) InputSchema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"entry_id": {Type: "string", Description: "Id returned when the wakeup was created"},
		},
		Required: []string{"entry_id"},
	}
}

func (t *CancelScheduleTool) Execute(ctx context.Context, params map[string]interface{}) (*Result, error) {
	id := stringParam(params, "entry_id")
	if id == "" {
		return Fail("invalid_params", "entry_id is required", false), nil
	}
	cancelled, err := t.scheduler.Cancel(ctx, id)
	if err != nil {
		return Fail("schedule_error", err.Error(), true), nil
	}
	return OK(map[string]interface{}{"cancelled": cancelled}), nil
}

// ListSchedulesTool lists pending wakeups.
type ListSchedulesTool struct {
	scheduler Scheduler
}

func (*ListSchedulesTool) Name() string { return "core.list_schedules" }

func (*ListSchedulesTool) Description() string {
	return "List pending wakeups, soonest first."
}

func (*ListSchedulesTool) HasSideEffects() bool { return false }

func (*ListSchedulesTool) InputSchema() *JSONSchema {
	return &JSONSchema{Type: "object"}
}

func (t *ListSchedulesTool) Execute(ctx context.Context, params map[string]interface{}) (*Result, error) {
	entries, err := t.scheduler.Schedules(ctx)
	if err != nil {
		return Fail("schedule_error", err.Error(), true), nil
	}
	listed := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		item := map[string]interface{}{
			"entry_id":   entry.ID,
			"fire_at":    entry.FireAt.Format(time.RFC3339),
			"created_by": entry.CreatedBy,
		}
		if entry.Recurrence != nil && entry.Recurrence.Cron != "" {
			item["cron"] = entry.Recurrence.Cron
		}
		if note := entry.Payload["note"]; note != "" {
			item["note"] = note
		}
		listed = append(listed, item)
	}
	return OK(map[string]interface{}{"schedules": listed}), nil
}

// EscalateTool lets the fast model hand the turn to the smart model.
type EscalateTool struct{}

func (*EscalateTool) Name() string { return "core.escalate" }

func (*EscalateTool) Description() string {
	return "Hand this turn to the stronger model when the situation needs deeper reasoning."
}

func (*EscalateTool) HasSideEffects() bool { return false }

func (*EscalateTool) InputSchema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"reason": {Type: "string", Description: "Why the turn needs escalation"},
		},
	}
}

func (*EscalateTool) Execute(ctx context.Context, params map[string]interface{}) (*Result, error) {
	return &Result{Success: true, EscalateToSmart: true, Data: map[string]interface{}{
		"escalated": true,
		"reason":    stringParam(params, "reason"),
	}}, nil
}

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func floatParam(params map[string]interface{}, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func signalTypeParam(params map[string]interface{}, key string) (signal.Type, error) {
	typ := signal.Type(stringParam(params, key))
	if !typ.Valid() {
		return "", fmt.Errorf("unknown signal type %q", typ)
	}
	return typ, nil
}
