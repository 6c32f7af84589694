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
	"log/slog"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// MergeEventPublish publishes video.archived for the merge job in the
// context, with the archive URI when one exists. video.merged itself is
// published by the merge. Events are best effort: a publish
// failure is logged and counted, and the chain still succeeds.
type MergeEventPublish struct {
	cor.BaseCommand
	publisher cloud.EventPublisher
}

func NewMergeEventPublish(name string, publisher cloud.EventPublisher) *MergeEventPublish {
	out := &MergeEventPublish{BaseCommand: *cor.NewBaseCommand(name), publisher: publisher}
	out.InputParamName = GetMergeJobParameterName()
	return out
}

func (c *MergeEventPublish) Execute(context cor.Context) {
	job, _ := cor.GetAs[*model.MergeJob](context, c.GetInputParam())
	event := model.NewPipelineEvent(model.EventVideoArchive, job.VideoID)
	event.Attributes["song_name"] = job.SongName
	event.Attributes["artist_name"] = job.ArtistName
	if object, ok := cor.GetAs[*cloud.GCSObject](context, cloud.GetGCSObjectName()); ok {
		event.Attributes["uri"] = object.URI()
	}

	if err := c.publisher.Publish(context.GetContext(), event); err != nil {
		if c.ErrorCounter != nil {
			c.ErrorCounter.Add(context.GetContext(), 1)
		}
		slog.WarnContext(context.GetContext(), "failed to publish event", "type", event.Type, "video_id", event.VideoID, "error", err)
		return
	}
	c.Succeed(context, nil)
}
