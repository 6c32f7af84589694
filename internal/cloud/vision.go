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

// Package cloud. This file defines the vision model abstraction used to infer
// a mood from sampled video frames, and its two providers.
//
// Structs:
//   - GeminiVisionModel: inline PNG parts sent through a QuotaAwareGenerativeAIModel.
//   - OpenAIVisionModel: data-URI image parts sent to the chat completions API.
package cloud

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// VisionModel turns a text prompt plus frames into the model's raw text answer.
type VisionModel interface {
	Name() string
	GenerateFromFrames(ctx context.Context, prompt string, frames []*model.Frame) (string, error)
}

type tokenCounters struct {
	input  metric.Int64Counter
	output metric.Int64Counter
	retry  metric.Int64Counter
}

func newTokenCounters(prefix string) tokenCounters {
	meter := otel.Meter("github.com/jaycherian/gcp-go-syncwave/cloud")
	in, _ := meter.Int64Counter(prefix + ".token.input")
	out, _ := meter.Int64Counter(prefix + ".token.output")
	retry, _ := meter.Int64Counter(prefix + ".retry")
	return tokenCounters{input: in, output: out, retry: retry}
}

// GeminiVisionModel sends frames to a Gemini model.
type GeminiVisionModel struct {
	model    *QuotaAwareGenerativeAIModel
	counters tokenCounters
}

// NewGeminiVisionModel wraps an agent model.
func NewGeminiVisionModel(m *QuotaAwareGenerativeAIModel) *GeminiVisionModel {
	counters := newTokenCounters("vision.gemini")
	if m.RetryCounter == nil {
		m.RetryCounter = counters.retry
	}
	return &GeminiVisionModel{model: m, counters: counters}
}

func (g *GeminiVisionModel) Name() string {
	return ProviderGemini + ":" + g.model.ModelName
}

func (g *GeminiVisionModel) GenerateFromFrames(ctx context.Context, prompt string, frames []*model.Frame) (string, error) {
	if len(frames) == 0 {
		return "", errors.New("no frames to analyze")
	}
	parts := make([]*genai.Part, 0, len(frames)+1)
	for _, f := range frames {
		parts = append(parts, genai.NewPartFromBytes(f.Data, f.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	return GenerateMultiModalResponse(ctx, g.counters.input, g.counters.output, g.model, contents)
}

// ChatCompleter is the subset of *openai.Client the OpenAI provider needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIVisionModel sends frames to an OpenAI chat model as data URIs.
type OpenAIVisionModel struct {
	client   ChatCompleter
	config   OpenAIModel
	limiter  *rate.Limiter
	counters tokenCounters
}

// NewOpenAIVisionModel creates the OpenAI provider. A RateLimit below 1 is
// treated as 1 request per second.
func NewOpenAIVisionModel(client ChatCompleter, config OpenAIModel) *OpenAIVisionModel {
	rps := config.RateLimit
	if rps < 1 {
		rps = 1
	}
	return &OpenAIVisionModel{
		client:   client,
		config:   config,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		counters: newTokenCounters("vision.openai"),
	}
}

func (o *OpenAIVisionModel) Name() string {
	return ProviderOpenAI + ":" + o.config.Model
}

func (o *OpenAIVisionModel) GenerateFromFrames(ctx context.Context, prompt string, frames []*model.Frame) (string, error) {
	if len(frames) == 0 {
		return "", errors.New("no frames to analyze")
	}
	detail := openai.ImageURLDetail(o.config.ImageDetail)
	if detail == "" {
		detail = openai.ImageURLDetailLow
	}
	parts := make([]openai.ChatMessagePart, 0, len(frames)+1)
	parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: prompt})
	for _, f := range frames {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURI(f),
				Detail: detail,
			},
		})
	}

	request := openai.ChatCompletionRequest{
		Model:       o.config.Model,
		MaxTokens:   o.config.MaxTokens,
		Temperature: o.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
		resp, err := o.client.CreateChatCompletion(ctx, request)
		if err != nil {
			lastErr = err
			if !retryableOpenAIError(err) {
				break
			}
			if o.counters.retry != nil {
				o.counters.retry.Add(ctx, 1)
			}
			if err := sleepWithContext(ctx, RetryBackoff<<attempt); err != nil {
				return "", err
			}
			continue
		}
		if o.counters.input != nil {
			o.counters.input.Add(ctx, int64(resp.Usage.PromptTokens))
			o.counters.output.Add(ctx, int64(resp.Usage.CompletionTokens))
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("openai returned no choices")
		}
		return StripCodeFence(resp.Choices[0].Message.Content), nil
	}
	return "", fmt.Errorf("openai chat completion: %w", lastErr)
}

func retryableOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	return false
}

func dataURI(f *model.Frame) string {
	mime := f.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	var sb strings.Builder
	sb.WriteString("data:")
	sb.WriteString(mime)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(f.Data))
	return sb.String()
}
