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

import (
	"fmt"
	"strings"
	"time"
)

// File name prefixes of the temp assets kept in the work directory.
const (
	VideoFilePrefix  = "temp_video_"
	AudioFilePrefix  = "temp_audio_"
	OutputFilePrefix = "final_"
	MergedNamePrefix = "SyncWave_"
)

// VideoAsset is an uploaded video kept for the lifetime of one user session.
type VideoAsset struct {
	ID        string    `json:"video_id"`
	Path      string    `json:"-"`
	Size      int64     `json:"size"`
	MIMEType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}

// MergeRequest asks for a track's audio to be laid over an uploaded video.
// StartTime is the offset into the track, in seconds.
type MergeRequest struct {
	VideoID    string  `json:"video_id" form:"video_id" binding:"required"`
	SongName   string  `json:"song_name" form:"song_name" binding:"required"`
	ArtistName string  `json:"artist_name" form:"artist_name" binding:"required"`
	StartTime  float64 `json:"start_time" form:"start_time"`
}

// Validate checks the request before any file is touched.
func (r *MergeRequest) Validate() error {
	if strings.TrimSpace(r.VideoID) == "" {
		return fmt.Errorf("video_id is required")
	}
	if strings.TrimSpace(r.SongName) == "" || strings.TrimSpace(r.ArtistName) == "" {
		return fmt.Errorf("song_name and artist_name are required")
	}
	if r.StartTime < 0 {
		return fmt.Errorf("start_time must be >= 0, got %v", r.StartTime)
	}
	return nil
}

// AudioQuery is the search string handed to the audio source.
func (r *MergeRequest) AudioQuery() string {
	return fmt.Sprintf("%s - %s official audio", r.ArtistName, r.SongName)
}

// DownloadName is the attachment name of the merged video.
func (r *MergeRequest) DownloadName() string {
	return MergedNamePrefix + r.SongName + ".mp4"
}

// MergedVideo is the output of a successful merge. Release must be called once
// the file has been delivered; it removes the output and frees the video id.
type MergedVideo struct {
	VideoID  string
	Path     string
	FileName string
	Duration time.Duration
	Release  func()
}

// PlaylistResponse is returned by the upload flow.
type PlaylistResponse struct {
	VideoID      string       `json:"video_id"`
	VibeAnalysis *VibeResult  `json:"vibe_analysis"`
	Playlist     *TrackResult `json:"playlist"`
}

// AssetStats summarizes the temp store for the dashboard endpoint.
type AssetStats struct {
	Videos    int           `json:"videos"`
	Audio     int           `json:"audio"`
	Outputs   int           `json:"outputs"`
	Bytes     int64         `json:"bytes"`
	LockedIDs int           `json:"locked_ids"`
	TTL       time.Duration `json:"ttl_ns"`
}
