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
package fabric

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls exponential-backoff retries around outbound calls.
type RetryConfig struct {
	Enabled      bool
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the runtime defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:      true,
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry runs op with exponential backoff. Non-retryable errors short-circuit
// immediately; retryable errors are retried until the budget is exhausted.
// Context cancellation aborts between attempts.
func Retry(ctx context.Context, config RetryConfig, name string, op func() error) error {
	if !config.Enabled || config.MaxRetries <= 0 {
		return op()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			if attempt > 0 {
				zap.L().Info("retry_succeeded",
					zap.String("operation", name),
					zap.Int("attempt", attempt+1))
			}
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s failed (attempt %d/%d): %w (context cancelled)",
				name, attempt+1, config.MaxRetries+1, err)
		}
		if attempt >= config.MaxRetries {
			break
		}

		zap.L().Warn("retrying_operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", config.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s failed (attempt %d/%d): %w (context cancelled during backoff)",
				name, attempt+1, config.MaxRetries+1, ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, config.MaxRetries+1, lastErr)
}
