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
	goctx "context"

	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// Merger performs a complete merge, including locking and existence checks.
type Merger interface {
	Merge(ctx goctx.Context, req *model.MergeRequest) (*model.MergedVideo, error)
}

// MergeRunner runs a Merger for the request in the context and stores the
// *model.MergedVideo. Its Release is left to MergedVideoRelease.
type MergeRunner struct {
	cor.BaseCommand
	merger Merger
}

func NewMergeRunner(name string, merger Merger) *MergeRunner {
	out := &MergeRunner{BaseCommand: *cor.NewBaseCommand(name), merger: merger}
	out.InputParamName = GetMergeRequestParameterName()
	out.OutputParamName = GetMergedVideoParameterName()
	return out
}

func (c *MergeRunner) Execute(context cor.Context) {
	req, _ := cor.GetAs[*model.MergeRequest](context, c.GetInputParam())
	merged, err := c.merger.Merge(context.GetContext(), req)
	if err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context, merged)
}

// MergedVideoRelease calls Release on the merged video, if any. Add it with
// AddFinally.
type MergedVideoRelease struct {
	cor.BaseCommand
}

func NewMergedVideoRelease(name string) *MergedVideoRelease {
	out := &MergedVideoRelease{BaseCommand: *cor.NewBaseCommand(name)}
	out.InputParamName = GetMergedVideoParameterName()
	return out
}

func (c *MergedVideoRelease) Execute(context cor.Context) {
	merged, ok := cor.GetAs[*model.MergedVideo](context, c.GetInputParam())
	if ok && merged.Release != nil {
		merged.Release()
	}
	c.Succeed(context, nil)
}
