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

// Package workflow. This file implements the asynchronous merge-job workflow
// attached to the merge_jobs Pub/Sub subscription.
//
// Logic Flow:
//  1. Parse the message body into a MergeJob.
//  2. Run the same merge the HTTP endpoint runs.
//  3. Archive the result to the output bucket, when one is configured.
//  4. Publish video.merged, when a publisher is configured.
//  5. Always release the merged video: the local output is removed and the
//     video id unlocked.
package workflow

import (
	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/commands"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
)

type MergeJobWorkflow struct {
	cor.BaseCommand
	merger    commands.Merger
	store     cloud.ObjectStore
	bucket    string
	publisher cloud.EventPublisher
	chain     cor.Chain
}

func (m *MergeJobWorkflow) Execute(context cor.Context) {
	m.chain.Execute(context)
}

func (m *MergeJobWorkflow) initializeChain() {
	out := cor.NewBaseChain(m.GetName())
	out.AddCommand(commands.NewMergeJobReader("merge-job-reader"))
	out.AddCommand(commands.NewMergeRunner("merge-job-run", m.merger))
	if m.store != nil && m.bucket != "" {
		out.AddCommand(commands.NewGCSFileUpload("merge-job-archive", m.store, m.bucket))
	}
	if m.publisher != nil {
		out.AddCommand(commands.NewMergeEventPublish("merge-job-event", m.publisher))
	}
	out.AddFinally(commands.NewMergedVideoRelease("merge-job-release"))
	m.chain = out
}

// NewMergeJobWorkflow builds the workflow. store and publisher may be nil.
func NewMergeJobWorkflow(merger commands.Merger, store cloud.ObjectStore, bucket string, publisher cloud.EventPublisher) *MergeJobWorkflow {
	workflow := &MergeJobWorkflow{
		BaseCommand: *cor.NewBaseCommand("merge-job-workflow"),
		merger:      merger,
		store:       store,
		bucket:      bucket,
		publisher:   publisher,
	}
	workflow.initializeChain()
	return workflow
}
