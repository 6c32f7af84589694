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

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-syncwave/internal/api"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
	"github.com/jaycherian/gcp-go-syncwave/internal/telemetry"
	test "github.com/jaycherian/gcp-go-syncwave/internal/testutil"
)

type fakePipeline struct {
	upload    *model.PlaylistResponse
	uploadErr error
	uploaded  []byte

	search  *model.TrackResult
	queries []string

	refresh *model.TrackResult
	moods   []*model.MoodDescriptor

	mergeDir string
	mergeErr error
	merges   []*model.MergeRequest
	released int
}

func (f *fakePipeline) UploadAndAnalyze(_ context.Context, upload io.Reader) (*model.PlaylistResponse, error) {
	f.uploaded, _ = io.ReadAll(upload)
	return f.upload, f.uploadErr
}

func (f *fakePipeline) Search(_ context.Context, query string) *model.TrackResult {
	f.queries = append(f.queries, query)
	return f.search
}

func (f *fakePipeline) Refresh(_ context.Context, mood *model.MoodDescriptor) *model.TrackResult {
	f.moods = append(f.moods, mood)
	return f.refresh
}

func (f *fakePipeline) Merge(_ context.Context, req *model.MergeRequest) (*model.MergedVideo, error) {
	f.merges = append(f.merges, req)
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	path := filepath.Join(f.mergeDir, model.OutputFilePrefix+req.VideoID+".mp4")
	if err := os.WriteFile(path, []byte("merged video bytes"), 0o644); err != nil {
		return nil, err
	}
	return &model.MergedVideo{
		VideoID:  req.VideoID,
		Path:     path,
		FileName: req.DownloadName(),
		Release: func() {
			f.released++
			_ = os.Remove(path)
		},
	}, nil
}

type fixedStats struct{}

func (fixedStats) Stats() *model.AssetStats {
	return &model.AssetStats{Videos: 2, Outputs: 1}
}

func newRouter(t *testing.T, pipeline *fakePipeline) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if pipeline.mergeDir == "" {
		pipeline.mergeDir = t.TempDir()
	}
	return api.NewRouter(test.GetConfig(), pipeline, fixedStats{}, telemetry.NewMetrics())
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path string, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, field string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, "clip.mp4")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/generate-playlist", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func sampleTracks() *model.TrackResult {
	return &model.TrackResult{Tracks: []*model.Track{{
		Name:     "Midnight City",
		Artist:   "M83",
		URL:      "https://open.spotify.com/track/1",
		CoverArt: "https://i.scdn.co/image/1",
	}}}
}

func TestGeneratePlaylist(t *testing.T) {
	pipeline := &fakePipeline{upload: &model.PlaylistResponse{
		VideoID:      "6f1c1a52-0c55-4b8e-9d67-0f3f8f2d3f11",
		VibeAnalysis: &model.VibeResult{Mood: model.GetExampleMood()},
		Playlist:     sampleTracks(),
	}}
	r := newRouter(t, pipeline)

	rec := serve(r, uploadRequest(t, "file", test.TestMP4Header()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, test.TestMP4Header(), pipeline.uploaded)

	var body struct {
		VideoID      string               `json:"video_id"`
		VibeAnalysis model.MoodDescriptor `json:"vibe_analysis"`
		Playlist     []model.Track        `json:"playlist"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "6f1c1a52-0c55-4b8e-9d67-0f3f8f2d3f11", body.VideoID)
	assert.Equal(t, []string{"ambient"}, body.VibeAnalysis.SeedGenres)
	require.Len(t, body.Playlist, 1)
	assert.Equal(t, "M83", body.Playlist[0].Artist)
}

func TestGeneratePlaylistWithFailedVibe(t *testing.T) {
	pipeline := &fakePipeline{upload: &model.PlaylistResponse{
		VideoID:      "6f1c1a52-0c55-4b8e-9d67-0f3f8f2d3f11",
		VibeAnalysis: model.NewVibeError(model.KindServiceUnavailable, errors.New("quota exceeded")),
		Playlist:     &model.TrackResult{Tracks: []*model.Track{}},
	}}
	r := newRouter(t, pipeline)

	rec := serve(r, uploadRequest(t, "file", test.TestMP4Header()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"video_id":"6f1c1a52-0c55-4b8e-9d67-0f3f8f2d3f11","vibe_analysis":{"error":"quota exceeded"},"playlist":[]}`, rec.Body.String())
}

func TestGeneratePlaylistErrors(t *testing.T) {
	r := newRouter(t, &fakePipeline{})
	rec := serve(r, uploadRequest(t, "video", []byte("x")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "file is required")

	cases := map[model.ErrorKind]int{
		model.KindInvalidInput:       http.StatusBadRequest,
		model.KindServiceUnavailable: http.StatusInternalServerError,
		model.KindInternal:           http.StatusInternalServerError,
	}
	for kind, status := range cases {
		pipeline := &fakePipeline{uploadErr: model.Errorf(kind, "generate_playlist", "failure of kind %s", kind)}
		rec := serve(newRouter(t, pipeline), uploadRequest(t, "file", []byte("x")))
		assert.Equal(t, status, rec.Code, kind.String())
		assert.JSONEq(t, `{"error":"failure of kind `+kind.String()+`"}`, rec.Body.String())
	}
}

func TestGeneratePlaylistRejectsOversizedUpload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config := *test.GetConfig()
	config.Server.MaxUploadMB = 1
	pipeline := &fakePipeline{}
	r := api.NewRouter(&config, pipeline, nil, nil)

	rec := serve(r, uploadRequest(t, "file", bytes.Repeat([]byte{0}, 2<<20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Nil(t, pipeline.uploaded)
}

func TestSearchSong(t *testing.T) {
	pipeline := &fakePipeline{search: sampleTracks()}
	r := newRouter(t, pipeline)

	rec := serve(r, jsonRequest(http.MethodPost, "/search-song", `{"query":"midnight city"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"midnight city"}, pipeline.queries)
	assert.Contains(t, rec.Body.String(), `"cover_art":"https://i.scdn.co/image/1"`)

	pipeline.search = model.NewTrackError(model.KindServiceUnavailable, "search_tracks", errors.New("catalog down"))
	rec = serve(r, jsonRequest(http.MethodPost, "/search-song", `{"query":"x"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"error":"catalog down"}`, rec.Body.String())

	pipeline.search = model.NewTrackError(model.KindInvalidInput, "search_tracks", errors.New("query must not be empty"))
	rec = serve(r, jsonRequest(http.MethodPost, "/search-song", `{"query":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, jsonRequest(http.MethodPost, "/search-song", `{"query":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshPlaylist(t *testing.T) {
	pipeline := &fakePipeline{refresh: sampleTracks()}
	r := newRouter(t, pipeline)

	rec := serve(r, jsonRequest(http.MethodPost, "/refresh-playlist",
		`{"seed_genres":["house"],"target_energy":0.8,"target_valence":0.7,"description":"sunrise"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pipeline.moods, 1)
	assert.Equal(t, []string{"house"}, pipeline.moods[0].SeedGenres)
	assert.Equal(t, 0.8, pipeline.moods[0].TargetEnergy)

	pipeline.refresh = model.NewTrackError(model.KindInvalidInput, "refresh_playlist", errors.New("target_energy must be between 0.0 and 1.0, got 2"))
	rec = serve(r, jsonRequest(http.MethodPost, "/refresh-playlist",
		`{"seed_genres":["house"],"target_energy":2,"target_valence":0.5,"description":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "target_energy")
	assert.Len(t, pipeline.moods, 2)
}

func TestRefreshPlaylistRequiresMoodFields(t *testing.T) {
	pipeline := &fakePipeline{refresh: sampleTracks()}
	r := newRouter(t, pipeline)

	for _, body := range []string{
		`{"seed_genres":["house"],"target_valence":0.7,"description":"x"}`,
		`{"seed_genres":["house"],"target_energy":0.8,"description":"x"}`,
		`{"target_energy":0.8,"target_valence":0.7,"description":"x"}`,
		`{"seed_genres":["house"],"target_energy":0.8,"target_valence":0.7}`,
	} {
		rec := serve(r, jsonRequest(http.MethodPost, "/refresh-playlist", body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, pipeline.moods)

	rec := serve(r, jsonRequest(http.MethodPost, "/refresh-playlist",
		`{"seed_genres":["house"],"target_energy":0,"target_valence":0,"description":""}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pipeline.moods, 1)
	assert.Equal(t, 0.0, pipeline.moods[0].TargetEnergy)
	assert.Nil(t, pipeline.moods[0].TargetDanceability)
}

func TestMergeVideo(t *testing.T) {
	pipeline := &fakePipeline{}
	r := newRouter(t, pipeline)

	rec := serve(r, httptest.NewRequest(http.MethodPost,
		"/merge-video?video_id=6f1c1a52-0c55-4b8e-9d67-0f3f8f2d3f11&song_name=Midnight%20City&artist_name=M83&start_time=12.5", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "merged video bytes", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="SyncWave_Midnight City.mp4"`)

	require.Len(t, pipeline.merges, 1)
	assert.Equal(t, 12.5, pipeline.merges[0].StartTime)
	assert.Equal(t, 1, pipeline.released)
	entries, _ := os.ReadDir(pipeline.mergeDir)
	assert.Empty(t, entries)
}

func TestMergeVideoErrors(t *testing.T) {
	r := newRouter(t, &fakePipeline{})
	rec := serve(r, httptest.NewRequest(http.MethodPost, "/merge-video?video_id=abc&artist_name=M83", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	cases := []struct {
		err    error
		status int
		body   string
	}{
		{model.NewPipelineError(model.KindNotFound, "merge_video", errors.New("video expired")), http.StatusNotFound, `{"error":"Video expired."}`},
		{model.Errorf(model.KindInvalidInput, "merge_video", "start_time is beyond the end of the track"), http.StatusBadRequest, `{"error":"start_time is beyond the end of the track"}`},
		{model.Errorf(model.KindInternal, "merge_video", "ffmpeg failed"), http.StatusInternalServerError, `{"error":"Merge failed: ffmpeg failed"}`},
	}
	for _, tc := range cases {
		pipeline := &fakePipeline{mergeErr: tc.err}
		rec := serve(newRouter(t, pipeline), httptest.NewRequest(http.MethodPost,
			"/merge-video?video_id=abc&song_name=S&artist_name=A", nil))
		assert.Equal(t, tc.status, rec.Code)
		assert.JSONEq(t, tc.body, rec.Body.String())
	}
}

func TestOperationalRoutes(t *testing.T) {
	r := newRouter(t, &fakePipeline{})

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"videos":2`)

	serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec = serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `syncwave_requests_total{route="/healthz",status="200"} 2`)
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(t, &fakePipeline{})
	req := httptest.NewRequest(http.MethodOptions, "/generate-playlist", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := serve(r, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
