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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// MoodJsonToStruct parses the model's answer into a normalized
// *model.MoodDescriptor.
type MoodJsonToStruct struct {
	cor.BaseCommand
}

func NewMoodJsonToStruct(name string) *MoodJsonToStruct {
	out := &MoodJsonToStruct{BaseCommand: *cor.NewBaseCommand(name)}
	out.InputParamName = GetMoodJSONParameterName()
	out.OutputParamName = GetMoodParameterName()
	return out
}

func (m *MoodJsonToStruct) Execute(context cor.Context) {
	raw, _ := cor.GetAs[string](context, m.GetInputParam())
	mood, err := ParseMood(raw)
	if err != nil {
		m.Fail(context, model.NewPipelineError(model.KindServiceUnavailable, m.GetName(), err))
		return
	}
	m.Succeed(context, mood)
}

// ParseMood strips markdown fences, decodes the JSON object and normalizes it.
// A model that answers with an error object is reported as such.
func ParseMood(raw string) (*model.MoodDescriptor, error) {
	text := cloud.StripCodeFence(raw)
	if text == "" {
		return nil, errors.New("empty model output")
	}
	// Some models wrap the object in prose; keep the outermost braces.
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return nil, fmt.Errorf("malformed model output: %w", err)
	}
	if msg, ok := probe["error"]; ok {
		if _, hasGenres := probe["seed_genres"]; !hasGenres {
			return nil, fmt.Errorf("model returned an error: %s", strings.Trim(string(msg), `"`))
		}
	}

	var mood model.RawMood
	if err := json.Unmarshal([]byte(text), &mood); err != nil {
		return nil, fmt.Errorf("malformed model output: %w", err)
	}
	return mood.Normalize(), nil
}
