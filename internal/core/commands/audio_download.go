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

// Package commands. This file acquires the audio of a chosen track.
//
// Logic Flow:
//  1. The query "<artist> - <song> official audio" is built from the request.
//  2. With a resolver (YouTube Data API) the first matching video URL is
//     downloaded; otherwise yt-dlp's own "ytsearch1:" search is used.
//  3. yt-dlp extracts the best audio stream as mp3 into
//     temp_audio_<uuid>.mp3 inside the work directory.
//  4. The file is registered as a temp file of the workflow so the chain's
//     cleanup step removes it whether or not the merge succeeds.
package commands

import (
	goctx "context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// AudioSource finds and downloads the audio for a text query into dir.
type AudioSource interface {
	Acquire(ctx goctx.Context, query string, dir string) (*model.AudioClip, error)
}

// URLResolver turns a query into a downloadable URL.
type URLResolver interface {
	Resolve(ctx goctx.Context, query string) (string, error)
}

// YtDlpSource downloads audio with yt-dlp.
type YtDlpSource struct {
	runner   ToolRunner
	config   cloud.AudioSource
	resolver URLResolver
}

// NewYtDlpSource creates a source. resolver may be nil.
func NewYtDlpSource(runner ToolRunner, config cloud.AudioSource, resolver URLResolver) *YtDlpSource {
	return &YtDlpSource{runner: runner, config: config, resolver: resolver}
}

func (s *YtDlpSource) Acquire(ctx goctx.Context, query string, dir string) (*model.AudioClip, error) {
	if s.config.DownloadTimeout.Duration > 0 {
		var cancel goctx.CancelFunc
		ctx, cancel = goctx.WithTimeout(ctx, s.config.DownloadTimeout.Duration)
		defer cancel()
	}

	target := "ytsearch1:" + query
	sourceID := ""
	if s.resolver != nil {
		url, err := s.resolver.Resolve(ctx, query)
		if err != nil {
			slog.WarnContext(ctx, "video id resolution failed, falling back to search", "query", query, "error", err)
		} else {
			target = url
			sourceID = url
		}
	}

	format := s.config.AudioFormat
	if format == "" {
		format = "mp3"
	}
	quality := s.config.AudioQuality
	if quality == "" {
		quality = "192K"
	}
	base := filepath.Join(dir, model.AudioFilePrefix+uuid.NewString())
	expected := base + "." + format

	_, err := runnerOrDefault(s.runner).Run(ctx, s.config.YtDlpPath,
		"--quiet",
		"--no-warnings",
		"--no-playlist",
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", format,
		"--audio-quality", quality,
		"-o", base+".%(ext)s",
		target,
	)
	if err != nil {
		removeMatching(base + ".*")
		return nil, fmt.Errorf("audio download for %q: %w", query, err)
	}
	if _, err := os.Stat(expected); err != nil {
		removeMatching(base + ".*")
		return nil, fmt.Errorf("audio download for %q produced no %s file: %w", query, format, err)
	}
	return &model.AudioClip{Path: expected, Query: query, SourceID: sourceID}, nil
}

func removeMatching(pattern string) {
	matches, _ := filepath.Glob(pattern)
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove partial download", "file", m, "error", err)
		}
	}
}

// AudioDownload is the workflow step wrapping an AudioSource. It reads the
// *model.MergeRequest and writes the *model.AudioClip plus its path.
type AudioDownload struct {
	cor.BaseCommand
	source AudioSource
	dir    string
}

func NewAudioDownload(name string, source AudioSource, dir string) *AudioDownload {
	out := &AudioDownload{BaseCommand: *cor.NewBaseCommand(name), source: source, dir: dir}
	out.InputParamName = GetMergeRequestParameterName()
	out.OutputParamName = GetAudioClipParameterName()
	return out
}

func (c *AudioDownload) Execute(context cor.Context) {
	req, ok := cor.GetAs[*model.MergeRequest](context, c.GetInputParam())
	if !ok {
		c.Fail(context, model.Errorf(model.KindInternal, c.GetName(), "no merge request in context"))
		return
	}
	clip, err := c.source.Acquire(context.GetContext(), req.AudioQuery(), c.dir)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.KindServiceUnavailable, c.GetName(), err))
		return
	}
	context.AddTempFile(clip.Path)
	context.Add(GetAudioPathParameterName(), clip.Path)
	c.Succeed(context, clip)
}
