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

// Package schedule persists future wakeups and computes recurrence firings.
// Recurrences resolve in their own timezone, so a "daily at 09:00" entry
// keeps firing at 09:00 wall clock across DST transitions.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teradata-labs/vigil/pkg/signal"
)

// Next computes the first firing of rec strictly after the given time.
func Next(rec *signal.Recurrence, after time.Time) (time.Time, error) {
	if rec == nil {
		return time.Time{}, fmt.Errorf("recurrence is nil")
	}
	loc := time.UTC
	if rec.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(rec.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown timezone %q: %w", rec.Timezone, err)
		}
	}
	local := after.In(loc)

	switch rec.Kind {
	case signal.RecurrenceDaily:
		return nextDaily(rec, local), nil
	case signal.RecurrenceWeekly:
		return nextWeekly(rec, local), nil
	case signal.RecurrenceMonthly:
		return nextMonthly(rec, local), nil
	case signal.RecurrenceCron:
		sched, err := cron.ParseStandard(rec.Cron)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", rec.Cron, err)
		}
		return sched.Next(local), nil
	case signal.RecurrenceCustom:
		return nextCustom(rec, local), nil
	default:
		return time.Time{}, fmt.Errorf("unknown recurrence kind %q", rec.Kind)
	}
}

func atTime(rec *signal.Recurrence, year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, rec.Hour, rec.Minute, 0, 0, loc)
}

func nextDaily(rec *signal.Recurrence, after time.Time) time.Time {
	candidate := atTime(rec, after.Year(), after.Month(), after.Day(), after.Location())
	if !candidate.After(after) {
		candidate = atTime(rec, after.Year(), after.Month(), after.Day()+1, after.Location())
	}
	return candidate
}

func nextWeekly(rec *signal.Recurrence, after time.Time) time.Time {
	daysAhead := (int(rec.Weekday) - int(after.Weekday()) + 7) % 7
	candidate := atTime(rec, after.Year(), after.Month(), after.Day()+daysAhead, after.Location())
	if !candidate.After(after) {
		candidate = atTime(rec, after.Year(), after.Month(), after.Day()+daysAhead+7, after.Location())
	}
	return candidate
}

func nextMonthly(rec *signal.Recurrence, after time.Time) time.Time {
	day := rec.MonthDay
	if day < 1 {
		day = 1
	}
	candidate := monthlyCandidate(rec, after.Year(), after.Month(), day, after.Location())
	for !candidate.After(after) {
		next := time.Date(candidate.Year(), candidate.Month(), 1, 0, 0, 0, 0, after.Location()).AddDate(0, 1, 0)
		candidate = monthlyCandidate(rec, next.Year(), next.Month(), day, after.Location())
	}
	return candidate
}

// monthlyCandidate clamps day to the month's length so "the 31st" fires on
// the last day of shorter months.
func monthlyCandidate(rec *signal.Recurrence, year int, month time.Month, day int, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		day = last
	}
	return atTime(rec, year, month, day, loc)
}

// nextCustom fires on the first eligible day on or after AnchorDay of each
// month. With Weekend set, the day must also be a Saturday or Sunday ("the
// first weekend after the 25th").
func nextCustom(rec *signal.Recurrence, after time.Time) time.Time {
	anchor := rec.AnchorDay
	if anchor < 1 {
		anchor = 1
	}
	year, month := after.Year(), after.Month()
	for i := 0; i < 24; i++ { // bounded search across months
		candidate := customCandidate(rec, year, month, anchor, after.Location())
		if candidate.After(after) {
			return candidate
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return time.Time{}
}

func customCandidate(rec *signal.Recurrence, year int, month time.Month, anchor int, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	day := anchor
	if day > last {
		day = last
	}
	candidate := atTime(rec, year, month, day, loc)
	if !rec.Weekend {
		return candidate
	}
	for candidate.Weekday() != time.Saturday && candidate.Weekday() != time.Sunday {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
