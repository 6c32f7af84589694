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

// Package services holds the components the HTTP API and the Pub/Sub
// listener call. This file is the Track Recommender: it turns a mood
// descriptor or a free-text query into a short list of display-ready tracks.
package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
	"github.com/jaycherian/gcp-go-syncwave/internal/telemetry"
)

// Operation names recorded on track errors and catalog metrics.
const (
	OpGetRecommendations = "get_recommendations"
	OpSearchTracks       = "search_tracks"
)

// TrackCatalog is the catalog search the recommender depends on.
// *cloud.SpotifyCatalog implements it.
type TrackCatalog interface {
	SearchTracks(ctx context.Context, query string, limit, offset int) ([]cloud.CatalogTrack, error)
}

// TrackRecommender searches the catalog and normalizes the results.
type TrackRecommender struct {
	Catalog TrackCatalog
	Config  cloud.Catalog
	Rand    func(n int) int // Returns a value in [0, n). Defaults to math/rand/v2.
	Metrics *telemetry.Metrics
}

// NewTrackRecommender creates a recommender with the default random source.
func NewTrackRecommender(catalog TrackCatalog, config cloud.Catalog, metrics *telemetry.Metrics) *TrackRecommender {
	return &TrackRecommender{
		Catalog: catalog,
		Config:  config,
		Rand:    rand.IntN,
		Metrics: metrics,
	}
}

// GetRecommendations searches the catalog for the mood's first genre at a
// random offset and returns at most recommend_return tracks. The genre is not
// checked against the vocabulary; a missing genre becomes "pop".
//
// The random offset in [0, recommend_max_shift] spreads repeated calls for
// the same mood over different slices of the genre.
func (r *TrackRecommender) GetRecommendations(ctx context.Context, mood *model.MoodDescriptor) *model.TrackResult {
	query := "genre:" + mood.PrimaryGenre()
	items, err := r.search(ctx, OpGetRecommendations, query, positiveOr(r.Config.RecommendLimit, 10), r.offset())
	if err != nil {
		return model.NewTrackError(catalogErrorKind(err), OpGetRecommendations, err)
	}
	tracks := CleanTracks(items)
	if limit := positiveOr(r.Config.RecommendReturn, 5); len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return &model.TrackResult{Tracks: tracks}
}

// SearchTracks runs a free-text search. A blank query is rejected without
// calling the catalog.
func (r *TrackRecommender) SearchTracks(ctx context.Context, query string) *model.TrackResult {
	if strings.TrimSpace(query) == "" {
		return model.NewTrackError(model.KindInvalidInput, OpSearchTracks, errors.New("query must not be empty"))
	}
	items, err := r.search(ctx, OpSearchTracks, query, positiveOr(r.Config.SearchLimit, 10), 0)
	if err != nil {
		return model.NewTrackError(catalogErrorKind(err), OpSearchTracks, err)
	}
	return &model.TrackResult{Tracks: CleanTracks(items)}
}

func (r *TrackRecommender) search(ctx context.Context, op string, query string, limit, offset int) ([]cloud.CatalogTrack, error) {
	if r.Catalog == nil {
		return nil, errors.New("music catalog is not configured")
	}
	items, err := r.Catalog.SearchTracks(ctx, query, limit, offset)
	r.Metrics.ObserveCatalog(op, err)
	return items, err
}

func (r *TrackRecommender) offset() int {
	maxShift := r.Config.RecommendMaxShift
	if maxShift <= 0 {
		return 0
	}
	next := r.Rand
	if next == nil {
		next = rand.IntN
	}
	return next(maxShift + 1)
}

// CleanTracks converts raw catalog items to tracks, in order. Items without
// album art are dropped, since the client renders every track as a card.
func CleanTracks(items []cloud.CatalogTrack) []*model.Track {
	out := make([]*model.Track, 0, len(items))
	for _, item := range items {
		if len(item.Album.Images) == 0 {
			continue
		}
		artist := ""
		if len(item.Artists) > 0 {
			artist = item.Artists[0].Name
		}
		out = append(out, &model.Track{
			Name:       item.Name,
			Artist:     artist,
			URL:        item.ExternalURLs["spotify"],
			CoverArt:   item.Album.Images[0].URL,
			PreviewURL: item.PreviewURL,
			DurationMs: item.DurationMs,
		})
	}
	return out
}

// catalogErrorKind maps a rejected query to InvalidInput and everything else
// to ServiceUnavailable.
func catalogErrorKind(err error) model.ErrorKind {
	var ce *cloud.CatalogError
	if errors.As(err, &ce) && ce.StatusCode == http.StatusBadRequest {
		return model.KindInvalidInput
	}
	return model.KindServiceUnavailable
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
