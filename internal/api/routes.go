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

// Package api is the HTTP surface of the service. It binds requests, calls
// the pipeline and maps error kinds to status codes; it holds no state.
//
// Routes:
//   - POST /generate-playlist: multipart "file" upload, analyze, recommend.
//   - POST /search-song: free-text catalog search.
//   - POST /refresh-playlist: recommendations for a caller-supplied mood.
//   - POST /merge-video: audio merge, answered with the mp4 as an attachment.
//   - GET /stats, /healthz, /metrics: operations.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
	"github.com/jaycherian/gcp-go-syncwave/internal/telemetry"
)

// Pipeline is implemented by *services.PipelineService.
type Pipeline interface {
	UploadAndAnalyze(ctx context.Context, upload io.Reader) (*model.PlaylistResponse, error)
	Search(ctx context.Context, query string) *model.TrackResult
	Refresh(ctx context.Context, mood *model.MoodDescriptor) *model.TrackResult
	Merge(ctx context.Context, req *model.MergeRequest) (*model.MergedVideo, error)
}

// StatsSource is implemented by *services.AssetStore.
type StatsSource interface {
	Stats() *model.AssetStats
}

// NewRouter builds the gin engine with CORS, tracing and request metrics.
// metrics may be nil, in which case /metrics is not served.
func NewRouter(config *cloud.Config, pipeline Pipeline, stats StatsSource, metrics *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(config.Application.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     config.Server.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if metrics != nil {
		r.Use(metrics.Middleware())
	}
	if config.Server.MaxUploadMB > 0 {
		r.MaxMultipartMemory = config.Server.MaxUploadMB << 20
	}

	h := &handlers{pipeline: pipeline, maxUploadBytes: config.Server.MaxUploadMB << 20}
	r.POST("/generate-playlist", h.generatePlaylist)
	r.POST("/search-song", h.searchSong)
	r.POST("/refresh-playlist", h.refreshPlaylist)
	r.POST("/merge-video", h.mergeVideo)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	Dashboard(r, stats)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(func() {
			if stats != nil {
				stats.Stats()
			}
		})))
	}
	return r
}
