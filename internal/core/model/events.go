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

package model

import "time"

// Event types published on the events topic.
const (
	EventVibeAnalyzed = "vibe.analyzed"
	EventVideoMerged  = "video.merged"
	EventMergeFailed  = "merge.failed"
	EventVideoArchive = "video.archived"
)

// PipelineEvent is a lifecycle notification published to Pub/Sub.
type PipelineEvent struct {
	Type       string            `json:"type"`
	VideoID    string            `json:"video_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewPipelineEvent stamps an event with the current time.
func NewPipelineEvent(eventType string, videoID string) *PipelineEvent {
	return &PipelineEvent{
		Type:       eventType,
		VideoID:    videoID,
		OccurredAt: time.Now().UTC(),
		Attributes: make(map[string]string),
	}
}

// MergeJob is the payload of an asynchronous merge request received from a
// Pub/Sub subscription. The merged file is archived instead of downloaded.
type MergeJob struct {
	MergeRequest
	ArchiveName string `json:"archive_name,omitempty"`
}

// ArchivedVideo records where a merge job's output was stored.
type ArchivedVideo struct {
	VideoID string `json:"video_id"`
	Bucket  string `json:"bucket"`
	Object  string `json:"object"`
}
