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

package commands

import (
	"path/filepath"
	"strings"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// AudioTrim cuts the downloaded track so it starts at the plan's offset. With
// a zero offset the download is passed through untouched.
type AudioTrim struct {
	cor.BaseCommand
	runner ToolRunner
	media  cloud.Media
}

func NewAudioTrim(name string, runner ToolRunner, media cloud.Media) *AudioTrim {
	out := &AudioTrim{BaseCommand: *cor.NewBaseCommand(name), runner: runner, media: media}
	out.InputParamName = GetAudioFitPlanParameterName()
	out.OutputParamName = GetTrimmedAudioParameterName()
	return out
}

func (c *AudioTrim) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(GetAudioPathParameterName()) != nil
}

func (c *AudioTrim) Execute(context cor.Context) {
	plan, _ := cor.GetAs[*model.AudioFitPlan](context, c.GetInputParam())
	audioPath, _ := cor.GetAs[string](context, GetAudioPathParameterName())
	if plan == nil || audioPath == "" {
		c.Fail(context, model.Errorf(model.KindInternal, c.GetName(), "missing plan or audio path"))
		return
	}
	if plan.Start == 0 {
		c.Succeed(context, audioPath)
		return
	}

	ext := filepath.Ext(audioPath)
	trimmed := strings.TrimSuffix(audioPath, ext) + "_trim.m4a"
	context.AddTempFile(trimmed)

	codec := c.media.AudioCodec
	if codec == "" {
		codec = "aac"
	}
	_, err := runnerOrDefault(c.runner).Run(context.GetContext(), c.media.FFMpegPath,
		"-y",
		"-v", "error",
		"-ss", seconds(plan.Start.Seconds()),
		"-i", audioPath,
		"-vn",
		"-c:a", codec,
		"-b:a", "192k",
		trimmed,
	)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.KindInternal, c.GetName(), err))
		return
	}
	c.Succeed(context, trimmed)
}
