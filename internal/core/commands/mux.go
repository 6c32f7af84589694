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

// Package commands. This file defines the final merge step: the upload's
// video stream and the trimmed track are muxed into one mp4.
//
// Logic Flow:
//  1. Inputs are the upload path, the trimmed audio, the fit plan and the
//     target path chosen by the caller.
//  2. When the plan loops, ffmpeg repeats the audio input (-stream_loop -1).
//  3. The output is cut to the plan's duration (-t), which is the video's
//     duration, and encoded with the configured video and audio codecs.
//  4. ffmpeg writes to "<target>.part"; the file is renamed into place only
//     on success so a half-written output is never served.
package commands

import (
	"fmt"
	"os"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// Mux combines the upload's video with the processed audio.
type Mux struct {
	cor.BaseCommand
	runner ToolRunner
	media  cloud.Media
}

func NewMux(name string, runner ToolRunner, media cloud.Media) *Mux {
	out := &Mux{BaseCommand: *cor.NewBaseCommand(name), runner: runner, media: media}
	out.InputParamName = GetTrimmedAudioParameterName()
	out.OutputParamName = GetMergedPathParameterName()
	return out
}

func (c *Mux) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) &&
		context.Get(GetVideoPathParameterName()) != nil &&
		context.Get(GetAudioFitPlanParameterName()) != nil &&
		context.Get(GetOutputPathParameterName()) != nil
}

// BuildMuxArgs returns the ffmpeg arguments for one merge.
func BuildMuxArgs(media cloud.Media, videoPath, audioPath string, plan *model.AudioFitPlan, target string) []string {
	videoCodec := media.VideoCodec
	if videoCodec == "" {
		videoCodec = "libx264"
	}
	audioCodec := media.AudioCodec
	if audioCodec == "" {
		audioCodec = "aac"
	}
	args := []string{"-y", "-v", "error", "-i", videoPath}
	if plan.Loop {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-t", seconds(plan.Duration.Seconds()),
		"-c:v", videoCodec,
	)
	if media.Preset != "" {
		args = append(args, "-preset", media.Preset)
	}
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-c:a", audioCodec,
		"-movflags", "+faststart",
		"-f", "mp4",
		target,
	)
	return args
}

func (c *Mux) Execute(context cor.Context) {
	audioPath, _ := cor.GetAs[string](context, c.GetInputParam())
	videoPath, _ := cor.GetAs[string](context, GetVideoPathParameterName())
	plan, _ := cor.GetAs[*model.AudioFitPlan](context, GetAudioFitPlanParameterName())
	target, _ := cor.GetAs[string](context, GetOutputPathParameterName())
	if audioPath == "" || videoPath == "" || plan == nil || target == "" {
		c.Fail(context, model.Errorf(model.KindInternal, c.GetName(), "missing mux inputs"))
		return
	}

	partial := target + ".part"
	context.AddTempFile(partial)
	if _, err := runnerOrDefault(c.runner).Run(context.GetContext(), c.media.FFMpegPath, BuildMuxArgs(c.media, videoPath, audioPath, plan, partial)...); err != nil {
		c.Fail(context, model.NewPipelineError(model.KindInternal, c.GetName(), err))
		return
	}
	if err := os.Rename(partial, target); err != nil {
		c.Fail(context, model.NewPipelineError(model.KindInternal, c.GetName(), fmt.Errorf("move merged output into place: %w", err)))
		return
	}
	c.Succeed(context, target)
}
