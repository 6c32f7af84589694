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

import "encoding/json"

// Track is a display-ready catalog entry. It has no identity beyond its fields
// and is never persisted.
type Track struct {
	Name       string  `json:"name"`
	Artist     string  `json:"artist"`
	URL        string  `json:"url"`
	CoverArt   string  `json:"cover_art"`
	PreviewURL *string `json:"preview_url"`
	DurationMs int     `json:"duration_ms"`
}

// TrackResult is either a (possibly empty) list of tracks or a catalog failure.
type TrackResult struct {
	Tracks []*Track
	Err    *PipelineError
}

// NewTrackError builds a failed result for the named operation.
func NewTrackError(kind ErrorKind, op string, err error) *TrackResult {
	return &TrackResult{Err: NewPipelineError(kind, op, err)}
}

// OK reports whether the result is a track list.
func (t *TrackResult) OK() bool {
	return t != nil && t.Err == nil
}

// MarshalJSON renders a JSON array of tracks, or {"error": "..."}.
func (t *TrackResult) MarshalJSON() ([]byte, error) {
	if !t.OK() {
		msg := "no tracks available"
		if t != nil && t.Err != nil {
			msg = t.Err.Error()
		}
		return json.Marshal(ErrorPayload{Error: msg})
	}
	if t.Tracks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.Tracks)
}
