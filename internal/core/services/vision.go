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

// Package services. This file is the Vision Analyzer, the boundary between
// the vibe workflow and its callers: every failure is folded into the
// returned VibeResult.
package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/commands"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/workflow"
)

// VisionAnalyzer samples frames from a video and infers its mood.
type VisionAnalyzer struct {
	extractor *commands.FrameExtractor
	workflow  cor.Command
	vision    cloud.VisionModel
}

// NewVisionAnalyzer creates the analyzer. vision may be nil, in which case
// every analysis reports the provider as unavailable.
func NewVisionAnalyzer(config *cloud.Config, vision cloud.VisionModel, runner commands.ToolRunner) *VisionAnalyzer {
	return &VisionAnalyzer{
		extractor: commands.NewFrameExtractor("extract-frames", runner,
			config.Media.FFMpegPath, config.Media.FFProbePath, config.Application.ThreadPoolSize),
		workflow: workflow.NewVibeAnalysisWorkflow(config, vision, runner),
		vision:   vision,
	}
}

// ExtractFrames returns the frames at the start, middle and near the end of
// the video, in that order. Unreadable frames are skipped, so zero to three
// frames come back; an unopenable video yields none.
func (v *VisionAnalyzer) ExtractFrames(ctx context.Context, videoPath string) []*model.Frame {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(commands.GetVideoPathParameterName(), videoPath)
	defer chCtx.Close()

	v.extractor.Execute(chCtx)
	frames, _ := cor.GetAs[[]*model.Frame](chCtx, commands.GetFramesParameterName())
	if frames == nil {
		frames = []*model.Frame{}
	}
	return frames
}

// AnalyzeVibe infers the mood of the video. It never returns a Go error:
// with no readable frame the result carries an invalid-input error and the
// model is not called; a failed model call or an unusable answer carries a
// service-unavailable error.
func (v *VisionAnalyzer) AnalyzeVibe(ctx context.Context, videoPath string) *model.VibeResult {
	if v.vision == nil {
		return model.NewVibeError(model.KindServiceUnavailable, errors.New("no vision model is configured"))
	}

	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(commands.GetVideoPathParameterName(), videoPath)
	defer chCtx.Close()

	v.workflow.Execute(chCtx)

	if chCtx.HasErrors() {
		err := chCtx.Err()
		slog.WarnContext(ctx, "vibe analysis failed", "path", videoPath, "error", err)
		return model.NewVibeError(model.KindOf(err), err)
	}
	mood, ok := cor.GetAs[*model.MoodDescriptor](chCtx, commands.GetMoodParameterName())
	if !ok || mood == nil {
		return model.NewVibeError(model.KindInternal, errors.New("vibe analysis produced no result"))
	}
	return &model.VibeResult{Mood: mood}
}
