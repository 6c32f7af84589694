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

package cloud_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
	test "github.com/jaycherian/gcp-go-syncwave/internal/testutil"
)

func TestMain(m *testing.M) {
	cloud.RetryBackoff = 0
	os.Exit(m.Run())
}

func TestLoadConfig(t *testing.T) {
	config := test.GetConfig()
	require.NotNil(t, config)

	// Runtime file overrides.
	assert.Equal(t, "syncwave-test", config.Application.Name)
	assert.Equal(t, "debug", config.Application.LogLevel)
	assert.Equal(t, 2, config.Catalog.MaxRetries)
	assert.Equal(t, time.Millisecond, config.Catalog.RetryBackoff.Duration)
	assert.Equal(t, time.Minute, config.Storage.SweepInterval.Duration)

	// Base file values.
	assert.Equal(t, 10, config.Catalog.RecommendLimit)
	assert.Equal(t, 5, config.Catalog.RecommendReturn)
	assert.Equal(t, 50, config.Catalog.RecommendMaxShift)
	assert.Equal(t, cloud.ProviderGemini, config.Vision.Provider)
	assert.Equal(t, "gemini-2.0-flash", config.AgentModels["vibe-flash"].Model)
	assert.Equal(t, 600, config.TopicSubscriptions["merge_jobs"].TimeoutInSeconds)
	assert.Contains(t, config.PromptTemplates.VibePrompt, "{{.GENRES}}")
}

func TestDurationUnmarshalText(t *testing.T) {
	var d cloud.Duration
	require.NoError(t, d.UnmarshalText([]byte("1h30m")))
	assert.Equal(t, 90*time.Minute, d.Duration)
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	text, err := cloud.Duration{Duration: 5 * time.Second}.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "5s", string(text))
}

func TestLoadSecretsKeepsEnvironment(t *testing.T) {
	dotenv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("SPOTIPY_CLIENT_ID=from-file\nYOUTUBE_API_KEY=yt-from-file\n"), 0o600))

	t.Setenv(cloud.EnvSpotifyClientID, "from-env")
	t.Setenv(cloud.EnvYouTubeAPIKey, "")
	require.NoError(t, os.Unsetenv(cloud.EnvYouTubeAPIKey))

	secrets := cloud.LoadSecrets(dotenv, filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, "from-env", secrets.SpotifyClientID)
	assert.Equal(t, "yt-from-file", secrets.YouTubeAPIKey)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cloud.StripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cloud.StripCodeFence("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, cloud.StripCodeFence("  {\"a\":1}  "))
	assert.Equal(t, "", cloud.StripCodeFence("```json```"))
}

func newCatalog(t *testing.T, handler http.HandlerFunc) *cloud.SpotifyCatalog {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return cloud.NewSpotifyCatalogWithClient(server.Client(), cloud.Catalog{
		BaseURL:      server.URL + "/v1/",
		Market:       "US",
		MaxRetries:   3,
		RetryBackoff: cloud.Duration{Duration: time.Millisecond},
	})
}

func TestCatalogSearchTracks(t *testing.T) {
	catalog := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "genre:jazz", q.Get("q"))
		assert.Equal(t, "track", q.Get("type"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "17", q.Get("offset"))
		assert.Equal(t, "US", q.Get("market"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, test.CatalogSearchJSON(test.GenreItems("jazz", 3)...))
	})

	items, err := catalog.SearchTracks(context.Background(), "genre:jazz", 10, 17)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "jazz song 0", items[0].Name)
	assert.Equal(t, "jazz artist 0", items[0].Artists[0].Name)
	assert.Equal(t, "https://i.scdn.co/image/track000", items[0].Album.Images[0].URL)
	assert.Equal(t, "https://open.spotify.com/track/track002", items[2].ExternalURLs["spotify"])
}

func TestCatalogRetriesThrottledRequests(t *testing.T) {
	var hits atomic.Int32
	catalog := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = fmt.Fprint(w, test.CatalogSearchJSON(test.CatalogItem{Name: "Song", Artist: "Artist"}))
	})

	items, err := catalog.SearchTracks(context.Background(), "song", 10, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCatalogGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	catalog := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := catalog.SearchTracks(context.Background(), "song", 10, 0)
	var catalogErr *cloud.CatalogError
	require.ErrorAs(t, err, &catalogErr)
	assert.Equal(t, http.StatusBadGateway, catalogErr.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestCatalogClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	catalog := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, `{"error":{"status":400,"message":"No search query"}}`)
	})

	_, err := catalog.SearchTracks(context.Background(), "", 10, 0)
	var catalogErr *cloud.CatalogError
	require.ErrorAs(t, err, &catalogErr)
	assert.Equal(t, http.StatusBadRequest, catalogErr.StatusCode)
	assert.Contains(t, catalogErr.Message, "No search query")
	assert.Equal(t, int32(1), hits.Load())
}

func TestCatalogHonoursCancellation(t *testing.T) {
	catalog := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := catalog.SearchTracks(ctx, "song", 10, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeGenerator struct {
	failures int
	failWith error
	calls    int
	models   []string
	answer   string
}

func (f *fakeGenerator) GenerateContent(_ context.Context, name string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.models = append(f.models, name)
	if f.calls <= f.failures {
		if f.failWith != nil {
			return nil, f.failWith
		}
		return nil, genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED", Message: "resource exhausted"}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.answer}}},
		}},
	}, nil
}

func testFrames() []*model.Frame {
	return []*model.Frame{
		{Index: 0, Data: test.TestPNG(), MIMEType: "image/png"},
		{Index: 450, Data: test.TestPNG(), MIMEType: "image/png"},
	}
}

func TestGeminiVisionModel(t *testing.T) {
	generator := &fakeGenerator{failures: 1, answer: "```json\n{\"seed_genres\":[\"house\"]}\n```"}
	quota := cloud.NewQuotaAwareModel(cloud.NewGenerateContentConfig(cloud.VertexAiLLMModel{Temperature: 0.4}), "gemini-2.0-flash", generator, 100)
	vision := cloud.NewGeminiVisionModel(quota)

	out, err := vision.GenerateFromFrames(context.Background(), "describe", testFrames())
	require.NoError(t, err)
	assert.Equal(t, `{"seed_genres":["house"]}`, out)
	assert.Equal(t, 2, generator.calls)
	assert.Equal(t, "gemini:gemini-2.0-flash", vision.Name())
	assert.Equal(t, []string{"gemini-2.0-flash", "gemini-2.0-flash"}, generator.models)

	_, err = vision.GenerateFromFrames(context.Background(), "describe", nil)
	assert.Error(t, err)
}

func TestQuotaAwareModelStopsAfterMaxAttempts(t *testing.T) {
	generator := &fakeGenerator{failures: 100}
	quota := cloud.NewQuotaAwareModel(nil, "m", generator, 100)

	_, err := quota.GenerateContent(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource exhausted")
	assert.Equal(t, quota.MaxAttempts, generator.calls)
	assert.Equal(t, cloud.MaxRetries+1, generator.calls)
}

func TestQuotaAwareModelDoesNotRetryPermanentFailures(t *testing.T) {
	for _, failure := range []error{
		genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT", Message: "bad image"},
		errors.New("malformed request"),
	} {
		generator := &fakeGenerator{failures: 100, failWith: failure}
		vision := cloud.NewGeminiVisionModel(cloud.NewQuotaAwareModel(nil, "m", generator, 100))

		_, err := vision.GenerateFromFrames(context.Background(), "describe", testFrames())
		require.Error(t, err)
		assert.Equal(t, 1, generator.calls, failure.Error())
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, cloud.IsTransient(genai.APIError{Code: http.StatusTooManyRequests}))
	assert.True(t, cloud.IsTransient(fmt.Errorf("wrapped: %w", genai.APIError{Code: http.StatusServiceUnavailable})))
	assert.False(t, cloud.IsTransient(genai.APIError{Code: http.StatusForbidden}))
	assert.False(t, cloud.IsTransient(context.Canceled))
}

type fakeChat struct {
	errs     []error
	calls    int
	requests []openai.ChatCompletionRequest
	answer   string
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.requests = append(f.requests, request)
	if f.calls <= len(f.errs) {
		return openai.ChatCompletionResponse{}, f.errs[f.calls-1]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.answer}}},
	}, nil
}

func TestOpenAIVisionModel(t *testing.T) {
	chat := &fakeChat{
		errs:   []error{&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}},
		answer: "```json\n{\"seed_genres\":[\"jazz\"]}\n```",
	}
	vision := cloud.NewOpenAIVisionModel(chat, cloud.OpenAIModel{Model: "gpt-4o-mini", RateLimit: 100})

	out, err := vision.GenerateFromFrames(context.Background(), "describe", testFrames())
	require.NoError(t, err)
	assert.Equal(t, `{"seed_genres":["jazz"]}`, out)
	assert.Equal(t, 2, chat.calls)
	assert.Equal(t, "openai:gpt-4o-mini", vision.Name())

	parts := chat.requests[0].Messages[0].MultiContent
	require.Len(t, parts, 3)
	assert.Equal(t, "describe", parts[0].Text)
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
	assert.Equal(t, openai.ImageURLDetailLow, parts[1].ImageURL.Detail)
}

func TestOpenAIVisionModelDoesNotRetryClientErrors(t *testing.T) {
	chat := &fakeChat{errs: []error{errors.New("invalid api key")}}
	vision := cloud.NewOpenAIVisionModel(chat, cloud.OpenAIModel{Model: "gpt-4o-mini", RateLimit: 100})

	_, err := vision.GenerateFromFrames(context.Background(), "describe", testFrames())
	require.Error(t, err)
	assert.Equal(t, 1, chat.calls)
}

func TestYouTubeResolver(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/search"))
		assert.Equal(t, "M83 - Midnight City official audio", r.URL.Query().Get("q"))
		assert.Equal(t, "10", r.URL.Query().Get("videoCategoryId"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"items":[{"id":{"kind":"youtube#video","videoId":"dX3k_QDnzHE"}}]}`)
	}))
	defer server.Close()

	resolver, err := cloud.NewYouTubeResolver(context.Background(), "key",
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	url, err := resolver.Resolve(context.Background(), "M83 - Midnight City official audio")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/watch?v=dX3k_QDnzHE", url)
}

type failingJob struct {
	cor.BaseCommand
	err  error
	seen string
}

func (f *failingJob) Execute(context cor.Context) {
	f.seen, _ = cor.GetAs[string](context, f.GetInputParam())
	if f.err != nil {
		f.Fail(context, f.err)
		return
	}
	f.Succeed(context, nil)
}

func TestProcessMessageAcksSuccessAndPermanentFailures(t *testing.T) {
	cases := []struct {
		err error
		ack bool
	}{
		{nil, true},
		{model.Errorf(model.KindInvalidInput, "merge_job", "invalid merge job"), true},
		{model.Errorf(model.KindNotFound, "merge_video", "video expired"), true},
		{model.Errorf(model.KindInternal, "merge_video", "ffmpeg failed"), false},
		{model.Errorf(model.KindServiceUnavailable, "archive", "bucket unavailable"), false},
		{errors.New("unclassified"), false},
	}
	for _, tc := range cases {
		job := &failingJob{BaseCommand: *cor.NewBaseCommand("job"), err: tc.err}
		ack := cloud.ProcessMessage(context.Background(), job, []byte(`{"video_id":"x"}`))
		assert.Equal(t, tc.ack, ack, fmt.Sprint(tc.err))
		assert.Equal(t, `{"video_id":"x"}`, job.seen)
	}
}
