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

// Package services_test contains the test suite for the services package.
// This file holds the fakes shared by the tests.
package services_test

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
	test "github.com/jaycherian/gcp-go-syncwave/internal/testutil"
)

type catalogCall struct {
	query  string
	limit  int
	offset int
}

// fakeCatalog answers every search with the same items or error.
type fakeCatalog struct {
	mu    sync.Mutex
	items []cloud.CatalogTrack
	err   error
	calls []catalogCall
}

func newFakeCatalog(items ...test.CatalogItem) *fakeCatalog {
	var payload struct {
		Tracks struct {
			Items []cloud.CatalogTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := json.Unmarshal([]byte(test.CatalogSearchJSON(items...)), &payload); err != nil {
		panic(err)
	}
	return &fakeCatalog{items: payload.Tracks.Items}
}

func (f *fakeCatalog) SearchTracks(_ context.Context, query string, limit, offset int) ([]cloud.CatalogTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, catalogCall{query: query, limit: limit, offset: offset})
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *fakeCatalog) Calls() []catalogCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]catalogCall(nil), f.calls...)
}

// fakeVibe returns a fixed result.
type fakeVibe struct {
	result *model.VibeResult
	paths  []string
}

func (f *fakeVibe) AnalyzeVibe(_ context.Context, videoPath string) *model.VibeResult {
	f.paths = append(f.paths, videoPath)
	return f.result
}

// stubVision is a cloud.VisionModel with a canned answer.
type stubVision struct {
	answer string
	err    error
	calls  int
	frames int
}

func (s *stubVision) Name() string { return "stub" }

func (s *stubVision) GenerateFromFrames(_ context.Context, _ string, frames []*model.Frame) (string, error) {
	s.calls++
	s.frames = len(frames)
	return s.answer, s.err
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.PipelineEvent
}

func (r *recordingPublisher) Publish(_ context.Context, event *model.PipelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func moodFor(genre string) *model.MoodDescriptor {
	return &model.MoodDescriptor{SeedGenres: []string{genre}, TargetEnergy: 0.4, TargetValence: 0.6}
}
