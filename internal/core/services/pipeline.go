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

// Package services. This file is the Pipeline Orchestrator: the four user
// flows (upload and analyze, manual search, refresh, merge) built on the
// asset store, the vision analyzer, the recommender and the merge workflow.
package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/commands"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
	"github.com/jaycherian/gcp-go-syncwave/internal/telemetry"
)

// Operation names of the orchestrator flows.
const (
	OpUpload  = "generate_playlist"
	OpRefresh = "refresh_playlist"
	OpMerge   = "merge_video"
)

// ErrVideoExpired is the cause reported when a merge names an upload that is
// gone.
var ErrVideoExpired = errors.New("video expired")

// VibeAnalyzer is implemented by *VisionAnalyzer.
type VibeAnalyzer interface {
	AnalyzeVibe(ctx context.Context, videoPath string) *model.VibeResult
}

// Recommender is implemented by *TrackRecommender.
type Recommender interface {
	GetRecommendations(ctx context.Context, mood *model.MoodDescriptor) *model.TrackResult
	SearchTracks(ctx context.Context, query string) *model.TrackResult
}

// PipelineService runs the user flows. Publisher and Metrics may be nil.
type PipelineService struct {
	Assets      *AssetStore
	Vision      VibeAnalyzer
	Recommender Recommender
	Merger      cor.Command // Usually a *workflow.MergeWorkflow.
	Publisher   cloud.EventPublisher
	Metrics     *telemetry.Metrics
}

// UploadAndAnalyze stores the upload, infers its vibe and recommends tracks.
//
// A failed vibe is not a failed request: the response carries the vibe error
// and an empty playlist and the video is kept for manual search and merge.
// A failed catalog search removes the video and returns the catalog error.
func (p *PipelineService) UploadAndAnalyze(ctx context.Context, upload io.Reader) (resp *model.PlaylistResponse, err error) {
	defer func() { p.Metrics.ObserveUpload(err) }()

	asset, err := p.Assets.SaveVideo(ctx, upload)
	if err != nil {
		return nil, err
	}

	vibe := p.Vision.AnalyzeVibe(ctx, asset.Path)
	if vibe == nil {
		p.discard(ctx, asset.ID)
		return nil, model.Errorf(model.KindInternal, OpUpload, "vibe analysis returned no result")
	}
	if !vibe.OK() {
		slog.WarnContext(ctx, "continuing without vibe", "video_id", asset.ID, "error", vibe.Err)
		return &model.PlaylistResponse{
			VideoID:      asset.ID,
			VibeAnalysis: vibe,
			Playlist:     &model.TrackResult{Tracks: []*model.Track{}},
		}, nil
	}

	playlist := p.Recommender.GetRecommendations(ctx, vibe.Mood)
	if playlist == nil {
		p.discard(ctx, asset.ID)
		return nil, model.Errorf(model.KindInternal, OpUpload, "recommendation returned no result")
	}
	if !playlist.OK() {
		p.discard(ctx, asset.ID)
		return nil, playlist.Err
	}

	event := model.NewPipelineEvent(model.EventVibeAnalyzed, asset.ID)
	event.Attributes["genre"] = vibe.Mood.PrimaryGenre()
	p.publish(ctx, event)

	return &model.PlaylistResponse{
		VideoID:      asset.ID,
		VibeAnalysis: vibe,
		Playlist:     playlist,
	}, nil
}

// Search is a stateless passthrough to the recommender's free-text search.
func (p *PipelineService) Search(ctx context.Context, query string) *model.TrackResult {
	return p.Recommender.SearchTracks(ctx, query)
}

// Refresh recommends tracks for a caller-supplied mood. Numeric targets
// outside [0,1] are rejected; genres are passed through as given.
func (p *PipelineService) Refresh(ctx context.Context, mood *model.MoodDescriptor) *model.TrackResult {
	if mood == nil {
		return model.NewTrackError(model.KindInvalidInput, OpRefresh, errors.New("mood is required"))
	}
	if err := mood.Validate(); err != nil {
		return model.NewTrackError(model.KindInvalidInput, OpRefresh, err)
	}
	return p.Recommender.GetRecommendations(ctx, mood)
}

// Merge lays the requested track over the uploaded video. The video id stays
// locked until the returned MergedVideo is released, which also removes the
// output. On error nothing needs releasing.
func (p *PipelineService) Merge(ctx context.Context, req *model.MergeRequest) (merged *model.MergedVideo, err error) {
	defer func() { p.Metrics.ObserveMerge(err) }()

	if req == nil {
		return nil, model.Errorf(model.KindInvalidInput, OpMerge, "merge request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, model.NewPipelineError(model.KindInvalidInput, OpMerge, err)
	}

	unlock := p.Assets.Lock(req.VideoID)
	if !p.Assets.Exists(req.VideoID) {
		unlock()
		return nil, model.NewPipelineError(model.KindNotFound, OpMerge, ErrVideoExpired)
	}

	output := p.Assets.OutputPath(req.VideoID)
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(commands.GetMergeRequestParameterName(), req)
	chCtx.Add(commands.GetVideoPathParameterName(), p.Assets.VideoPath(req.VideoID))
	chCtx.Add(commands.GetOutputPathParameterName(), output)
	defer chCtx.Close()

	p.Merger.Execute(chCtx)

	path, ok := cor.GetAs[string](chCtx, commands.GetMergedPathParameterName())
	if chCtx.HasErrors() || !ok {
		cause := chCtx.Err()
		if cause == nil {
			cause = errors.New("merge produced no output")
		}
		_ = p.Assets.RemoveOutput(req.VideoID)
		unlock()
		p.publishMergeFailed(ctx, req, cause)
		return nil, model.NewPipelineError(mergeErrorKind(cause), OpMerge, cause)
	}

	var once sync.Once
	merged = &model.MergedVideo{
		VideoID:  req.VideoID,
		Path:     path,
		FileName: req.DownloadName(),
		Release: func() {
			once.Do(func() {
				if err := p.Assets.RemoveOutput(req.VideoID); err != nil {
					slog.Warn("failed to remove merge output", "video_id", req.VideoID, "error", err)
				}
				unlock()
			})
		},
	}
	if probe, ok := cor.GetAs[*model.MediaProbe](chCtx, commands.GetVideoProbeParameterName()); ok {
		merged.Duration = probe.Duration
	}

	event := model.NewPipelineEvent(model.EventVideoMerged, req.VideoID)
	event.Attributes["song_name"] = req.SongName
	event.Attributes["artist_name"] = req.ArtistName
	p.publish(ctx, event)
	return merged, nil
}

// mergeErrorKind keeps invalid input (a start time past the end of the
// track) and reports every other merge failure as internal.
func mergeErrorKind(err error) model.ErrorKind {
	if model.KindOf(err) == model.KindInvalidInput {
		return model.KindInvalidInput
	}
	return model.KindInternal
}

func (p *PipelineService) publishMergeFailed(ctx context.Context, req *model.MergeRequest, cause error) {
	event := model.NewPipelineEvent(model.EventMergeFailed, req.VideoID)
	event.Attributes["song_name"] = req.SongName
	event.Attributes["artist_name"] = req.ArtistName
	event.Attributes["error"] = cause.Error()
	p.publish(ctx, event)
}

// publish sends a lifecycle event. Failures are logged only.
func (p *PipelineService) publish(ctx context.Context, event *model.PipelineEvent) {
	if p.Publisher == nil {
		return
	}
	if err := p.Publisher.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "failed to publish event", "type", event.Type, "video_id", event.VideoID, "error", err)
	}
}

func (p *PipelineService) discard(ctx context.Context, id string) {
	if err := p.Assets.RemoveVideo(id); err != nil {
		slog.WarnContext(ctx, "failed to remove upload", "video_id", id, "error", err)
	}
}
