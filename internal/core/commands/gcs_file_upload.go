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

// Package commands. This file defines the command that archives a merged
// video to Cloud Storage.
//
// Logic Flow:
//  1. Get the *model.MergedVideo from the context.
//  2. Name the object after the job's archive_name, or
//     "<video_id>/SyncWave_<song>.mp4" when none was given.
//  3. Stream the local file to the bucket and store the resulting GCSObject
//     under cloud.GetGCSObjectName() for the event step.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// GCSFileUpload uploads the merged output to a bucket.
type GCSFileUpload struct {
	cor.BaseCommand
	store  cloud.ObjectStore
	bucket string
}

func NewGCSFileUpload(name string, store cloud.ObjectStore, bucket string) *GCSFileUpload {
	out := &GCSFileUpload{BaseCommand: *cor.NewBaseCommand(name), store: store, bucket: bucket}
	out.InputParamName = GetMergedVideoParameterName()
	out.OutputParamName = cloud.GetGCSObjectName()
	return out
}

func (c *GCSFileUpload) Execute(context cor.Context) {
	merged, ok := cor.GetAs[*model.MergedVideo](context, c.GetInputParam())
	if !ok {
		c.Fail(context, model.Errorf(model.KindInternal, c.GetName(), "no merged video in context"))
		return
	}

	name := path.Join(merged.VideoID, merged.FileName)
	if job, ok := cor.GetAs[*model.MergeJob](context, GetMergeJobParameterName()); ok && job.ArchiveName != "" {
		name = job.ArchiveName
	}
	object := &cloud.GCSObject{Bucket: c.bucket, Name: name, MIMEType: "video/mp4"}

	dat, err := os.Open(merged.Path)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.KindInternal, c.GetName(), fmt.Errorf("failed to open file %s: %w", merged.Path, err)))
		return
	}
	defer func() { _ = dat.Close() }()

	written, err := c.store.Upload(context.GetContext(), object, dat)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.KindServiceUnavailable, c.GetName(), err))
		return
	}
	slog.InfoContext(context.GetContext(), "archived merged video", "uri", object.URI(), "bytes", written)
	c.Succeed(context, object)
}
