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
package signal

import (
	"time"

	"github.com/google/uuid"
)

// IntentKind tags the variant carried by an Intent.
type IntentKind string

const (
	IntentSendMessage IntentKind = "send_message"
	IntentUpdateState IntentKind = "update_state"
	IntentSchedule    IntentKind = "schedule"
	IntentCallTool    IntentKind = "call_tool"
	IntentDefer       IntentKind = "defer"
	IntentSuppress    IntentKind = "suppress"
)

// Trace links an intent back to the tick and signal that produced it.
type Trace struct {
	TickID         string
	ParentSignalID string
}

// Intent is a command from cognition to the motor stage. Exactly one of the
// variant fields matching Kind is populated; the others are nil.
type Intent struct {
	ID    string
	Kind  IntentKind
	Trace Trace

	SendMessage *SendMessageIntent
	UpdateState *UpdateStateIntent
	Schedule    *ScheduleIntent
	CallTool    *CallToolIntent
	Defer       *DeferIntent
	Suppress    *SuppressIntent
}

// SendMessageOptions mirror the channel port's send options.
type SendMessageOptions struct {
	ReplyTo            string
	ParseMode          string
	DisableLinkPreview bool
	Silent             bool
}

// SendMessageIntent asks the motor stage to deliver text to a channel target.
type SendMessageIntent struct {
	Target  string
	Text    string
	Channel string
	Options SendMessageOptions
}

// UpdateStateIntent adjusts a single agent state field.
// When Delta is true, Value is added to the current value instead of
// replacing it.
type UpdateStateIntent struct {
	Key   string
	Value float64
	Delta bool
	// FromTool marks updates originating from a user-facing tool; such
	// updates are rejected for automatic fields (energy, socialDebt).
	FromTool bool
}

// ScheduleIntent persists a future firing.
type ScheduleIntent struct {
	FireAt     time.Time
	Recurrence *Recurrence
	Payload    map[string]string
}

// Recurrence kinds.
const (
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
	RecurrenceCron    = "cron"
	RecurrenceCustom  = "custom"
)

// Recurrence describes a repeating schedule. Kind is one of daily, weekly,
// monthly, cron or custom. Times resolve in Timezone (DST-aware); empty
// means UTC.
type Recurrence struct {
	Kind      string
	Cron      string // set when Kind == "cron"
	Weekday   time.Weekday
	MonthDay  int
	Hour      int
	Minute    int
	Timezone  string
	AnchorDay int // custom: first firing on or after this day of month
	Weekend   bool
}

// CallToolIntent routes execution to a registered tool.
type CallToolIntent struct {
	Tool string
	Args map[string]interface{}
}

// DeferIntent registers a deferral in the ack registry.
type DeferIntent struct {
	SignalType    Type
	Source        string
	Hours         float64
	Reason        string
	ValueAtAck    float64
	OverrideDelta float64
}

// SuppressIntent registers an unconditional suppression in the ack registry.
type SuppressIntent struct {
	SignalType Type
	Source     string
	Reason     string
}

// NewIntent constructs an intent envelope of the given kind with a fresh id.
// The caller populates the matching variant field.
func NewIntent(kind IntentKind, trace Trace) *Intent {
	return &Intent{
		ID:    uuid.New().String(),
		Kind:  kind,
		Trace: trace,
	}
}
