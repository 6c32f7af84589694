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

// Package workflow combines commands into the pipelines the services run.
// This file implements the vibe analysis workflow: sampled frames in, a
// normalized mood descriptor out.
package workflow

import (
	"strings"
	"text/template"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/commands"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
)

// VibeAnalysisWorkflow reads the video path under
// commands.GetVideoPathParameterName() and leaves the *model.MoodDescriptor
// under commands.GetMoodParameterName(). The sampled frames stay in the
// context under commands.GetFramesParameterName().
type VibeAnalysisWorkflow struct {
	cor.BaseCommand
	config          *cloud.Config
	vision          cloud.VisionModel
	runner          commands.ToolRunner
	vibeTemplate    *template.Template
	numberOfWorkers int
	chain           cor.Chain
}

func (v *VibeAnalysisWorkflow) Execute(context cor.Context) {
	v.chain.Execute(context)
}

func (v *VibeAnalysisWorkflow) initializeChain() {
	out := cor.NewBaseChain(v.GetName())

	// Step 1: start, middle and near-end frames as RGB PNGs.
	out.AddCommand(commands.NewFrameExtractor("extract-frames", v.runner, v.config.Media.FFMpegPath, v.config.Media.FFProbePath, v.numberOfWorkers))

	// Step 2: frames plus the DJ prompt to the vision model.
	out.AddCommand(commands.NewMoodInference("infer-mood", v.vision, v.vibeTemplate))

	// Step 3: strip fences, parse and normalize the answer.
	out.AddCommand(commands.NewMoodJsonToStruct("convert-mood"))

	v.chain = out
}

// NewVibeAnalysisWorkflow builds the workflow. It panics when the configured
// prompt template does not parse, since no analysis can run without it.
func NewVibeAnalysisWorkflow(config *cloud.Config, vision cloud.VisionModel, runner commands.ToolRunner) *VibeAnalysisWorkflow {
	source := config.PromptTemplates.VibePrompt
	if strings.TrimSpace(source) == "" {
		source = commands.DefaultVibePrompt
	}
	vibeTemplate, err := template.New("vibe-template").Parse(source)
	if err != nil {
		panic(err)
	}

	workflow := &VibeAnalysisWorkflow{
		BaseCommand:     *cor.NewBaseCommand("vibe-analysis-workflow"),
		config:          config,
		vision:          vision,
		runner:          runner,
		vibeTemplate:    vibeTemplate,
		numberOfWorkers: config.Application.ThreadPoolSize,
	}
	workflow.InputParamName = commands.GetVideoPathParameterName()
	workflow.OutputParamName = commands.GetMoodParameterName()
	workflow.initializeChain()
	return workflow
}
