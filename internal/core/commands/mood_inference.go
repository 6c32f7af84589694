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

// Package commands. This file defines the command that asks a vision model for
// the mood of the sampled frames.
//
// Logic Flow:
//  1. The frames come from the FrameExtractor. With no frames the command
//     fails with an invalid-input error and the model is never called.
//  2. The prompt is rendered from a Go template. GENRES receives the genre
//     vocabulary and EXAMPLE_JSON a complete example answer (few-shot).
//  3. Frames and prompt go to the configured VisionModel.
//  4. The raw text answer is stored for MoodJsonToStruct.
package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"text/template"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// DefaultVibePrompt is used when prompt_templates.vibe is not configured.
const DefaultVibePrompt = `You are a Professional DJ and Visual Artist.
Look at these video frames. Analyze the lighting, color palette, speed (implied), and mood.

Based on this visual aesthetic, recommend the perfect audio features for a background track.

Return ONLY a JSON object with these exact keys:
- "seed_genres": a list with one genre. Choose from: {{.GENRES}}
- "target_energy": 0.0 to 1.0. High energy for fast or bright footage, low for slow or dark.
- "target_valence": 0.0 to 1.0. 1.0 is happy and bright, 0.0 is sad and dark.
- "target_danceability": 0.0 to 1.0.
- "description": a short sentence describing why you chose this vibe.

Example:
{{.EXAMPLE_JSON}}
`

// ErrNoFrames is the cause recorded when no frame could be read.
var ErrNoFrames = errors.New("no readable frames in video")

// MoodInference renders the vibe prompt and calls the vision model.
type MoodInference struct {
	cor.BaseCommand
	vision   cloud.VisionModel
	template *template.Template
}

// NewMoodInference creates the command. It reads frames and writes the raw
// model answer.
func NewMoodInference(name string, vision cloud.VisionModel, template *template.Template) *MoodInference {
	out := &MoodInference{
		BaseCommand: *cor.NewBaseCommand(name),
		vision:      vision,
		template:    template,
	}
	out.InputParamName = GetFramesParameterName()
	out.OutputParamName = GetMoodJSONParameterName()
	return out
}

// GenerateParams builds the template data.
func (t *MoodInference) GenerateParams(_ cor.Context) map[string]interface{} {
	params := make(map[string]interface{})
	params["GENRES"] = model.VocabularyString()
	example, _ := json.Marshal(model.GetExampleMood())
	params["EXAMPLE_JSON"] = string(example)
	return params
}

func (t *MoodInference) Execute(context cor.Context) {
	frames, _ := cor.GetAs[[]*model.Frame](context, t.GetInputParam())
	if len(frames) == 0 {
		t.Fail(context, model.NewPipelineError(model.KindInvalidInput, t.GetName(), ErrNoFrames))
		return
	}

	var buffer bytes.Buffer
	if err := t.template.Execute(&buffer, t.GenerateParams(context)); err != nil {
		t.Fail(context, model.NewPipelineError(model.KindInternal, t.GetName(), fmt.Errorf("failed to execute prompt template: %w", err)))
		return
	}

	out, err := t.vision.GenerateFromFrames(context.GetContext(), buffer.String(), frames)
	if err != nil {
		t.Fail(context, model.NewPipelineError(model.KindServiceUnavailable, t.GetName(), fmt.Errorf("vision request failed: %w", err)))
		return
	}
	t.Succeed(context, out)
}
