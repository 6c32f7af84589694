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

// Package model defines the core data structures for the application.
// This file, `transient.go`, contains the objects that only live inside a
// workflow execution. They are handed from command to command through the
// chain context and are never returned to API callers as-is.
package model

import "time"

// Frame is one decoded video frame, re-encoded as an RGB PNG.
type Frame struct {
	Index    int    // The frame number inside the source video.
	Data     []byte // Encoded image bytes.
	MIMEType string // Usually "image/png".
}

// MediaProbe is the subset of ffprobe output the pipeline needs.
type MediaProbe struct {
	Path       string
	Duration   time.Duration
	FrameCount int  // Zero for audio-only inputs.
	HasVideo   bool // True when a video stream was found.
	HasAudio   bool // True when an audio stream was found.
}

// AudioFitPlan describes how a downloaded track is cut to the video.
//
// The audio is read from Start; when the remaining audio is shorter than the
// video it is looped, otherwise truncated. Either way the output runs for
// exactly Duration.
type AudioFitPlan struct {
	Start    time.Duration
	Duration time.Duration
	Loop     bool
}

// AudioClip is a temporary audio file acquired for a merge.
type AudioClip struct {
	Path     string
	Query    string
	SourceID string // Resolved video id when the YouTube Data API was used.
}
