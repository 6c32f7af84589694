// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud. This file wraps the Gemini model handle with a rate limiter
// and a bounded, context-aware retry of transient failures. It is the only
// retry layer for Gemini calls.
//
// Structs:
//   - QuotaAwareGenerativeAIModel: a model name, its generation config and the
//     shared genai.Models handle, guarded by a token bucket.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// RetryBackoff is the base wait between failed model calls. It doubles per
// attempt.
var RetryBackoff = 2 * time.Second

// ContentGenerator is the subset of *genai.Models the wrapper needs.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// QuotaAwareGenerativeAIModel decorates a Gemini model with rate limiting.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             ContentGenerator
	RateLimit               *rate.Limiter
	MaxAttempts             int
	RetryCounter            metric.Int64Counter // Optional.
}

// NewQuotaAwareModel wraps a model handle. requestsPerSecond is both the
// refill rate and the burst; values below 1 are treated as 1.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, handle ContentGenerator, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             handle,
		RateLimit:               rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		MaxAttempts:             MaxRetries + 1,
	}
}

// GenerateContent waits for a limiter token, then calls the model. A transient
// failure (see IsTransient) is retried after a backoff until MaxAttempts is
// reached or ctx ends. Any other failure is returned at once.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	var lastErr error
	attempts := 0
	for attempts < q.MaxAttempts {
		if err := q.RateLimit.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		resp, err := q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
		attempts++
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsTransient(err) {
			break
		}
		if attempts < q.MaxAttempts {
			if q.RetryCounter != nil {
				q.RetryCounter.Add(ctx, 1)
			}
			if err := sleepWithContext(ctx, RetryBackoff<<(attempts-1)); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("failed generation after %d attempts: %w", attempts, lastErr)
}

// IsTransient reports whether a Gemini failure is worth retrying: quota
// exhaustion, server errors and network timeouts.
func IsTransient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
