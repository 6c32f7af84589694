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

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// VideoExpiredMessage is the body text of a merge for an unknown or swept
// upload.
const VideoExpiredMessage = "Video expired."

type handlers struct {
	pipeline       Pipeline
	maxUploadBytes int64 // Zero means unlimited.
}

// SearchRequest is the body of /search-song.
type SearchRequest struct {
	Query string `json:"query"`
}

// RefreshRequest is the body of /refresh-playlist. Every field except
// target_danceability must be present; a missing number is not read as 0.
type RefreshRequest struct {
	SeedGenres         []string `json:"seed_genres" binding:"required"`
	TargetEnergy       *float64 `json:"target_energy" binding:"required"`
	TargetValence      *float64 `json:"target_valence" binding:"required"`
	TargetDanceability *float64 `json:"target_danceability"`
	Description        *string  `json:"description" binding:"required"`
}

// Mood converts a bound request into a descriptor.
func (r *RefreshRequest) Mood() *model.MoodDescriptor {
	return &model.MoodDescriptor{
		SeedGenres:         r.SeedGenres,
		TargetEnergy:       *r.TargetEnergy,
		TargetValence:      *r.TargetValence,
		TargetDanceability: r.TargetDanceability,
		Description:        *r.Description,
	}
}

func errorBody(msg string) model.ErrorPayload {
	return model.ErrorPayload{Error: msg}
}

// uploadStatus maps the kind of a failed upload to a status code. Catalog
// and model outages are reported as 500 with their cause.
func uploadStatus(kind model.ErrorKind) int {
	switch kind {
	case model.KindInvalidInput:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) generatePlaylist(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody(err.Error()))
			return
		}
		c.JSON(http.StatusBadRequest, errorBody("file is required: "+err.Error()))
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	defer func() { _ = file.Close() }()

	resp, err := h.pipeline.UploadAndAnalyze(c.Request.Context(), file)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "generate playlist failed", "file", header.Filename, "error", err)
		c.JSON(uploadStatus(model.KindOf(err)), errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// writeTracks answers with the track array, or with {error}. Only invalid
// input changes the status; other failures are reported in a 200 body.
func writeTracks(c *gin.Context, result *model.TrackResult) {
	if !result.OK() && result != nil && result.Err.Kind == model.KindInvalidInput {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) searchSong(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeTracks(c, h.pipeline.Search(c.Request.Context(), req.Query))
}

func (h *handlers) refreshPlaylist(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeTracks(c, h.pipeline.Refresh(c.Request.Context(), req.Mood()))
}

func (h *handlers) mergeVideo(c *gin.Context) {
	var req model.MergeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	merged, err := h.pipeline.Merge(c.Request.Context(), &req)
	if err != nil {
		switch model.KindOf(err) {
		case model.KindNotFound:
			c.JSON(http.StatusNotFound, errorBody(VideoExpiredMessage))
		case model.KindInvalidInput:
			c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.ErrorContext(c.Request.Context(), "merge failed", "video_id", req.VideoID, "error", err)
			c.JSON(http.StatusInternalServerError, errorBody("Merge failed: "+err.Error()))
		}
		return
	}
	if merged.Release != nil {
		defer merged.Release()
	}
	c.FileAttachment(merged.Path, merged.FileName)
}
