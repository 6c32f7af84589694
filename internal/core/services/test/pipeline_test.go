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

package services_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/commands"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/services"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-syncwave/internal/testutil"
)

type pipelineFixture struct {
	service   *services.PipelineService
	store     *services.AssetStore
	runner    *test.FakeMediaRunner
	catalog   *fakeCatalog
	vibe      *fakeVibe
	publisher *recordingPublisher
}

func newPipeline(t *testing.T) *pipelineFixture {
	t.Helper()
	config := *test.GetConfig()
	config.Storage.WorkDir = t.TempDir()

	store, err := services.NewAssetStore(config.Storage, nil)
	require.NoError(t, err)

	runner := test.NewFakeMediaRunner()
	catalog := newFakeCatalog(test.GenreItems("jazz", 10)...)
	vibe := &fakeVibe{result: &model.VibeResult{Mood: moodFor("jazz")}}
	publisher := &recordingPublisher{}

	service := &services.PipelineService{
		Assets:      store,
		Vision:      vibe,
		Recommender: services.NewTrackRecommender(catalog, config.Catalog, nil),
		Merger: workflow.NewMergeWorkflow(&config,
			commands.NewYtDlpSource(runner, config.AudioSource, nil), runner),
		Publisher: publisher,
	}
	return &pipelineFixture{
		service:   service,
		store:     store,
		runner:    runner,
		catalog:   catalog,
		vibe:      vibe,
		publisher: publisher,
	}
}

func videoUpload() *bytes.Reader {
	return bytes.NewReader(append(test.TestMP4Header(), bytes.Repeat([]byte{7}, 1024)...))
}

func filesWithPrefix(t *testing.T, dir, prefix string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestUploadAndAnalyze(t *testing.T) {
	f := newPipeline(t)

	resp, err := f.service.UploadAndAnalyze(context.Background(), videoUpload())
	require.NoError(t, err)
	assert.True(t, f.store.Exists(resp.VideoID))
	assert.True(t, resp.VibeAnalysis.OK())
	require.True(t, resp.Playlist.OK())
	assert.Len(t, resp.Playlist.Tracks, 5)
	assert.Equal(t, []string{f.store.VideoPath(resp.VideoID)}, f.vibe.paths)
	assert.Equal(t, "genre:jazz", f.catalog.Calls()[0].query)

	require.Equal(t, []string{model.EventVibeAnalyzed}, f.publisher.Types())
	assert.Equal(t, "jazz", f.publisher.events[0].Attributes["genre"])
	assert.Equal(t, resp.VideoID, f.publisher.events[0].VideoID)
}

func TestUploadKeepsVideoWhenVibeFails(t *testing.T) {
	f := newPipeline(t)
	f.vibe.result = model.NewVibeError(model.KindServiceUnavailable, errors.New("quota exceeded"))

	resp, err := f.service.UploadAndAnalyze(context.Background(), videoUpload())
	require.NoError(t, err)
	assert.False(t, resp.VibeAnalysis.OK())
	assert.True(t, resp.Playlist.OK())
	assert.Empty(t, resp.Playlist.Tracks)
	assert.True(t, f.store.Exists(resp.VideoID))
	assert.Empty(t, f.catalog.Calls())
	assert.Empty(t, f.publisher.Types())
}

func TestUploadDiscardsVideoWhenCatalogFails(t *testing.T) {
	f := newPipeline(t)
	f.catalog.err = errors.New("catalog unreachable")

	resp, err := f.service.UploadAndAnalyze(context.Background(), videoUpload())
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, model.KindServiceUnavailable, model.KindOf(err))
	assert.Empty(t, filesWithPrefix(t, f.store.Dir(), model.VideoFilePrefix))
}

func TestUploadRejectsNonVideo(t *testing.T) {
	f := newPipeline(t)

	_, err := f.service.UploadAndAnalyze(context.Background(), strings.NewReader("plain text, not a video"))
	require.Error(t, err)
	assert.Equal(t, model.KindInvalidInput, model.KindOf(err))
	assert.Empty(t, f.vibe.paths)
}

func TestSearch(t *testing.T) {
	f := newPipeline(t)

	result := f.service.Search(context.Background(), "blue in green")
	require.True(t, result.OK())
	assert.Equal(t, "blue in green", f.catalog.Calls()[0].query)

	result = f.service.Search(context.Background(), "")
	assert.Equal(t, model.KindInvalidInput, result.Err.Kind)
}

func TestRefresh(t *testing.T) {
	f := newPipeline(t)

	result := f.service.Refresh(context.Background(), moodFor("k-pop"))
	require.True(t, result.OK())
	assert.Equal(t, "genre:k-pop", f.catalog.Calls()[0].query)

	for _, mood := range []*model.MoodDescriptor{
		nil,
		{SeedGenres: []string{"rock"}, TargetEnergy: 1.5, TargetValence: 0.5},
		{SeedGenres: []string{"rock"}, TargetEnergy: 0.5, TargetValence: -0.1},
	} {
		result = f.service.Refresh(context.Background(), mood)
		assert.Equal(t, model.KindInvalidInput, result.Err.Kind)
	}
	assert.Len(t, f.catalog.Calls(), 1)
}

func saveVideo(t *testing.T, f *pipelineFixture) string {
	t.Helper()
	asset, err := f.store.SaveVideo(context.Background(), videoUpload())
	require.NoError(t, err)
	return asset.ID
}

func TestMergeLoopsShortTrack(t *testing.T) {
	f := newPipeline(t)
	id := saveVideo(t, f)

	merged, err := f.service.Merge(context.Background(), &model.MergeRequest{
		VideoID: id, SongName: "Midnight City", ArtistName: "M83",
	})
	require.NoError(t, err)
	assert.Equal(t, f.store.OutputPath(id), merged.Path)
	assert.Equal(t, "SyncWave_Midnight City.mp4", merged.FileName)
	assert.Equal(t, 30*time.Second, merged.Duration)
	assert.FileExists(t, merged.Path)
	assert.True(t, f.store.IsLocked(id))

	downloads := f.runner.Calls("yt-dlp")
	require.Len(t, downloads, 1)
	assert.Equal(t, "ytsearch1:M83 - Midnight City official audio", downloads[0].Args[len(downloads[0].Args)-1])

	var mux []string
	for _, c := range f.runner.Calls("ffmpeg") {
		if strings.HasSuffix(c.Args[len(c.Args)-1], ".part") {
			mux = c.Args
		}
	}
	require.NotNil(t, mux)
	joined := strings.Join(mux, " ")
	assert.Contains(t, joined, "-stream_loop -1")
	assert.Contains(t, joined, "-t 30.000")

	assert.Empty(t, filesWithPrefix(t, f.store.Dir(), model.AudioFilePrefix))
	assert.Equal(t, []string{model.EventVideoMerged}, f.publisher.Types())

	merged.Release()
	merged.Release()
	assert.NoFileExists(t, merged.Path)
	assert.False(t, f.store.IsLocked(id))
	assert.True(t, f.store.Exists(id))
}

func TestMergeTrimsLongTrack(t *testing.T) {
	f := newPipeline(t)
	f.runner.AudioDuration = 240
	id := saveVideo(t, f)

	merged, err := f.service.Merge(context.Background(), &model.MergeRequest{
		VideoID: id, SongName: "Midnight City", ArtistName: "M83", StartTime: 12.5,
	})
	require.NoError(t, err)
	defer merged.Release()

	var trim, mux []string
	for _, c := range f.runner.Calls("ffmpeg") {
		switch last := c.Args[len(c.Args)-1]; {
		case strings.HasSuffix(last, "_trim.m4a"):
			trim = c.Args
		case strings.HasSuffix(last, ".part"):
			mux = c.Args
		}
	}
	require.NotNil(t, trim)
	assert.Contains(t, strings.Join(trim, " "), "-ss 12.500")
	require.NotNil(t, mux)
	assert.NotContains(t, strings.Join(mux, " "), "-stream_loop")
	assert.Empty(t, filesWithPrefix(t, f.store.Dir(), model.AudioFilePrefix))
}

func TestMergeUnknownVideo(t *testing.T) {
	f := newPipeline(t)
	id := uuid.NewString()

	_, err := f.service.Merge(context.Background(), &model.MergeRequest{
		VideoID: id, SongName: "Song", ArtistName: "Artist",
	})
	require.Error(t, err)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
	assert.ErrorIs(t, err, services.ErrVideoExpired)
	assert.Equal(t, "video expired", err.Error())
	assert.Empty(t, f.runner.Calls("yt-dlp"))
	assert.False(t, f.store.IsLocked(id))
}

func TestMergeRejectsInvalidRequest(t *testing.T) {
	f := newPipeline(t)

	for _, req := range []*model.MergeRequest{
		nil,
		{VideoID: saveVideo(t, f), ArtistName: "Artist"},
		{VideoID: saveVideo(t, f), SongName: "Song", ArtistName: "Artist", StartTime: -3},
	} {
		_, err := f.service.Merge(context.Background(), req)
		assert.Equal(t, model.KindInvalidInput, model.KindOf(err))
	}
	assert.Empty(t, f.runner.Calls(""))
}

func TestMergeStartPastEndOfTrack(t *testing.T) {
	f := newPipeline(t)
	id := saveVideo(t, f)

	_, err := f.service.Merge(context.Background(), &model.MergeRequest{
		VideoID: id, SongName: "Song", ArtistName: "Artist", StartTime: 12.5,
	})
	require.Error(t, err)
	assert.Equal(t, model.KindInvalidInput, model.KindOf(err))
	assert.NoFileExists(t, f.store.OutputPath(id))
	assert.Empty(t, filesWithPrefix(t, f.store.Dir(), model.AudioFilePrefix))
	assert.False(t, f.store.IsLocked(id))
	assert.Equal(t, []string{model.EventMergeFailed}, f.publisher.Types())
}

func TestMergeFailureIsInternal(t *testing.T) {
	f := newPipeline(t)
	f.runner.FailMux = true
	id := saveVideo(t, f)

	_, err := f.service.Merge(context.Background(), &model.MergeRequest{
		VideoID: id, SongName: "Song", ArtistName: "Artist",
	})
	require.Error(t, err)
	assert.Equal(t, model.KindInternal, model.KindOf(err))
	assert.NoFileExists(t, f.store.OutputPath(id))
	assert.NoFileExists(t, f.store.OutputPath(id)+".part")
	assert.Empty(t, filesWithPrefix(t, f.store.Dir(), model.AudioFilePrefix))
	assert.False(t, f.store.IsLocked(id))
	assert.True(t, f.store.Exists(id))
}

func TestMergeDownloadFailure(t *testing.T) {
	f := newPipeline(t)
	f.runner.FailDownload = true
	id := saveVideo(t, f)

	_, err := f.service.Merge(context.Background(), &model.MergeRequest{
		VideoID: id, SongName: "Song", ArtistName: "Artist",
	})
	require.Error(t, err)
	assert.Equal(t, model.KindInternal, model.KindOf(err))
	assert.Empty(t, f.runner.Calls("ffmpeg"))
}

var _ cloud.EventPublisher = (*recordingPublisher)(nil)
