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

package workflow

import (
	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/commands"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
)

// MergeWorkflow lays a track's audio over an uploaded video.
//
// The caller seeds the context with:
//   - commands.GetMergeRequestParameterName(): *model.MergeRequest
//   - commands.GetVideoPathParameterName(): the upload's path
//   - commands.GetOutputPathParameterName(): where the result is written
//
// On success the result path is under commands.GetMergedPathParameterName().
// Downloaded and intermediate audio is always removed.
type MergeWorkflow struct {
	cor.BaseCommand
	config *cloud.Config
	source commands.AudioSource
	runner commands.ToolRunner
	chain  cor.Chain
}

func (m *MergeWorkflow) Execute(context cor.Context) {
	m.chain.Execute(context)
}

func (m *MergeWorkflow) IsExecutable(context cor.Context) bool {
	return m.BaseCommand.IsExecutable(context) &&
		context.Get(commands.GetVideoPathParameterName()) != nil &&
		context.Get(commands.GetOutputPathParameterName()) != nil
}

func (m *MergeWorkflow) initializeChain() {
	media := m.config.Media
	out := cor.NewBaseChain(m.GetName())

	out.AddCommand(commands.NewAudioDownload("download-audio", m.source, m.config.Storage.WorkDir))
	out.AddCommand(commands.NewMediaProbeCommand("probe-video", m.runner, media.FFProbePath,
		commands.GetVideoPathParameterName(), commands.GetVideoProbeParameterName()))
	out.AddCommand(commands.NewMediaProbeCommand("probe-audio", m.runner, media.FFProbePath,
		commands.GetAudioPathParameterName(), commands.GetAudioProbeParameterName()))
	out.AddCommand(commands.NewAudioFit("plan-audio-fit"))
	out.AddCommand(commands.NewAudioTrim("trim-audio", m.runner, media))
	out.AddCommand(commands.NewMux("mux-video", m.runner, media))

	out.AddFinally(commands.NewTempFileCleanup("cleanup-audio"))
	m.chain = out
}

func NewMergeWorkflow(config *cloud.Config, source commands.AudioSource, runner commands.ToolRunner) *MergeWorkflow {
	workflow := &MergeWorkflow{
		BaseCommand: *cor.NewBaseCommand("merge-workflow"),
		config:      config,
		source:      source,
		runner:      runner,
	}
	workflow.InputParamName = commands.GetMergeRequestParameterName()
	workflow.OutputParamName = commands.GetMergedPathParameterName()
	workflow.initializeChain()
	return workflow
}
