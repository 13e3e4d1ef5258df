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
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/pkg/fabric"
)

// RateLimiterConfig configures the shared request limiter.
type RateLimiterConfig struct {
	// Enabled enables rate limiting.
	Enabled bool

	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64

	// BurstCapacity is the maximum burst of requests allowed.
	BurstCapacity int

	// TokensPerMinute caps token throughput over a sliding minute.
	TokensPerMinute int64

	// QueueTimeout bounds how long Acquire may wait.
	QueueTimeout time.Duration
}

// DefaultRateLimiterConfig returns conservative provider-friendly defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 2.0,
		BurstCapacity:     5,
		TokensPerMinute:   40000,
		QueueTimeout:      2 * time.Minute,
	}
}

// RateLimiter implements token-bucket limiting for model requests plus a
// sliding-window token budget. One limiter is shared by both model tiers.
type RateLimiter struct {
	config RateLimiterConfig
	logger *zap.Logger

	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time

	window []tokenUsage

	now func() time.Time
}

type tokenUsage struct {
	at     time.Time
	tokens int64
}

// NewRateLimiter creates a limiter. Zero fields fall back to the defaults.
func NewRateLimiter(config RateLimiterConfig, logger *zap.Logger) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = def.RequestsPerSecond
	}
	if config.BurstCapacity <= 0 {
		config.BurstCapacity = def.BurstCapacity
	}
	if config.TokensPerMinute <= 0 {
		config.TokensPerMinute = def.TokensPerMinute
	}
	if config.QueueTimeout <= 0 {
		config.QueueTimeout = def.QueueTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		config:     config,
		logger:     logger,
		tokens:     float64(config.BurstCapacity),
		maxTokens:  float64(config.BurstCapacity),
		refillRate: config.RequestsPerSecond,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Acquire blocks until a request slot and the estimated token budget are
// available, or the context or queue timeout expires. Disabled limiters
// return immediately.
func (r *RateLimiter) Acquire(ctx context.Context, estimatedTokens int64) error {
	if !r.config.Enabled {
		return nil
	}
	deadline := r.now().Add(r.config.QueueTimeout)
	for {
		wait, ok := r.tryAcquire(estimatedTokens)
		if ok {
			return nil
		}
		if r.now().Add(wait).After(deadline) {
			return fabric.Budget(fmt.Sprintf("rate limiter queue timeout after %s", r.config.QueueTimeout))
		}
		r.logger.Debug("rate_limit_waiting", zap.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RecordUsage charges actual token consumption against the sliding window.
func (r *RateLimiter) RecordUsage(tokens int64) {
	if !r.config.Enabled || tokens <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.window = append(r.window, tokenUsage{at: r.now(), tokens: tokens})
}

func (r *RateLimiter) tryAcquire(estimatedTokens int64) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens = minf(r.maxTokens, r.tokens+elapsed*r.refillRate)
	r.lastRefill = now

	if r.tokens < 1.0 {
		needed := (1.0 - r.tokens) / r.refillRate
		return time.Duration(needed * float64(time.Second)), false
	}

	cutoff := now.Add(-time.Minute)
	pruned := r.window[:0]
	var used int64
	for _, u := range r.window {
		if u.at.After(cutoff) {
			pruned = append(pruned, u)
			used += u.tokens
		}
	}
	r.window = pruned
	if used+estimatedTokens > r.config.TokensPerMinute {
		// Wait for the oldest window entry to age out.
		wait := time.Second
		if len(r.window) > 0 {
			wait = r.window[0].at.Add(time.Minute).Sub(now)
		}
		return wait, false
	}

	r.tokens -= 1.0
	return 0, true
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
