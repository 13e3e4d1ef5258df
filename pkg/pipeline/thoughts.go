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

package pipeline

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/signal"
)

const (
	// MaxThoughtDepth bounds thought-triggers-thought recursion.
	MaxThoughtDepth = 4

	// MaxThoughtsPerTick bounds how many thoughts cognition may enqueue
	// in a single tick.
	MaxThoughtsPerTick = 3

	thoughtDedupeWindow = 10 * time.Minute
	dedupeKeyBytes      = 48
)

var (
	ErrMaxDepth       = errors.New("thought depth limit reached")
	ErrThoughtBudget  = errors.New("per-tick thought budget exhausted")
	ErrDuplicateThought = errors.New("duplicate thought within dedupe window")
)

// thoughtGovernor enforces the recursion, budget and dedupe rules on
// thoughts leaving cognition. Depth is always derived from the trigger,
// never trusted from the caller; budget violations and duplicates are
// dropped silently with a counter.
type thoughtGovernor struct {
	metrics *observability.Metrics
	logger  *zap.Logger

	tickID  string
	emitted int
	seen    map[string]time.Time
}

func newThoughtGovernor(metrics *observability.Metrics, logger *zap.Logger) *thoughtGovernor {
	return &thoughtGovernor{
		metrics: metrics,
		logger:  logger,
		seen:    make(map[string]time.Time),
	}
}

// dedupeKey is the lowercased head of the thought content.
func dedupeKey(content string) string {
	lower := strings.ToLower(content)
	if len(lower) > dedupeKeyBytes {
		lower = lower[:dedupeKeyBytes]
	}
	return lower
}

// admit validates a thought and returns its derived depth. A root thought
// (depth 0) can only originate from a non-thought trigger.
func (t *thoughtGovernor) admit(content string, trigger *signal.Signal, now time.Time, tickID string) (int, error) {
	if tickID != t.tickID {
		t.tickID = tickID
		t.emitted = 0
	}

	depth := 0
	if trigger != nil && trigger.Type == signal.TypeThought {
		depth = trigger.ThoughtDepth() + 1
	}
	if depth > MaxThoughtDepth {
		t.metrics.Inc(observability.MetricThoughtMaxDepth)
		t.logger.Debug("thought_rejected",
			zap.String("reason", "max_depth"), zap.Int("depth", depth))
		return 0, ErrMaxDepth
	}
	if t.emitted >= MaxThoughtsPerTick {
		t.metrics.Inc(observability.MetricThoughtOverBudget)
		return 0, ErrThoughtBudget
	}

	key := dedupeKey(content)
	if last, ok := t.seen[key]; ok && now.Sub(last) < thoughtDedupeWindow {
		t.metrics.Inc(observability.MetricThoughtDuplicate)
		return 0, ErrDuplicateThought
	}

	t.prune(now)
	t.seen[key] = now
	t.emitted++
	return depth, nil
}

func (t *thoughtGovernor) prune(now time.Time) {
	for key, at := range t.seen {
		if now.Sub(at) >= thoughtDedupeWindow {
			delete(t.seen, key)
		}
	}
}
