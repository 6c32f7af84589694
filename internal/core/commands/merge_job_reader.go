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

// Package commands. This file parses the Pub/Sub message body of an
// asynchronous merge job. It is the first step of the merge-job workflow run
// by the PubSubListener.
package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// MergeJobReader turns the raw message (a JSON string under its input key)
// into a validated *model.MergeJob.
type MergeJobReader struct {
	cor.BaseCommand
}

func NewMergeJobReader(name string) *MergeJobReader {
	out := &MergeJobReader{BaseCommand: *cor.NewBaseCommand(name)}
	out.OutputParamName = GetMergeJobParameterName()
	return out
}

func (c *MergeJobReader) Execute(context cor.Context) {
	in, ok := cor.GetAs[string](context, c.GetInputParam())
	if !ok {
		c.Fail(context, model.Errorf(model.KindInvalidInput, c.GetName(), "message body is not a string"))
		return
	}

	var job model.MergeJob
	if err := json.Unmarshal([]byte(in), &job); err != nil {
		c.Fail(context, model.NewPipelineError(model.KindInvalidInput, c.GetName(), fmt.Errorf("failed to unmarshal merge job: %w", err)))
		return
	}
	if err := job.Validate(); err != nil {
		c.Fail(context, model.NewPipelineError(model.KindInvalidInput, c.GetName(), err))
		return
	}
	context.Add(GetMergeRequestParameterName(), &job.MergeRequest)
	c.Succeed(context, &job)
}
