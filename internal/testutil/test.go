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

// Package test provides helpers shared by the test suites: the test
// configuration, sample payloads and a catalog response builder.
package test

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
)

// StateManager caches the configuration across the tests of a package.
type StateManager struct {
	once   sync.Once
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// ConfigDir returns the absolute path of the repository's configs directory,
// independent of the package the test runs in.
func ConfigDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "configs"
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "configs")
}

// SetupOS points the configuration loader at configs/.env.test.toml.
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, ConfigDir())
	if err != nil {
		return err
	}
	err = os.Setenv(cloud.EnvConfigRuntime, "test")
	return err
}

// GetConfig loads the test configuration once and returns it.
func GetConfig() *cloud.Config {
	state.once.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = config
	})
	return state.config
}

// GetTestMergeJobMessageText is a merge job as published on the merge jobs
// subscription.
func GetTestMergeJobMessageText(videoID string) string {
	return fmt.Sprintf(`{
  "video_id": %q,
  "song_name": "Midnight City",
  "artist_name": "M83",
  "start_time": 12.5,
  "archive_name": "jobs/%s/midnight-city.mp4"
}`, videoID, videoID)
}

// CatalogItem is one entry for CatalogSearchJSON.
type CatalogItem struct {
	Name   string
	Artist string // Empty means no credited artist.
	NoArt  bool
}

// CatalogSearchJSON renders a catalog search response holding items.
func CatalogSearchJSON(items ...CatalogItem) string {
	type image struct {
		URL string `json:"url"`
	}
	type artist struct {
		Name string `json:"name"`
	}
	type track struct {
		ID           string            `json:"id"`
		Name         string            `json:"name"`
		Artists      []artist          `json:"artists"`
		Album        map[string]any    `json:"album"`
		ExternalURLs map[string]string `json:"external_urls"`
		PreviewURL   *string           `json:"preview_url"`
		DurationMs   int               `json:"duration_ms"`
	}

	out := make([]track, 0, len(items))
	for i, item := range items {
		id := fmt.Sprintf("track%03d", i)
		t := track{
			ID:           id,
			Name:         item.Name,
			Artists:      []artist{},
			Album:        map[string]any{"name": "album " + id, "images": []image{}},
			ExternalURLs: map[string]string{"spotify": "https://open.spotify.com/track/" + id},
			DurationMs:   180000 + i,
		}
		if item.Artist != "" {
			t.Artists = append(t.Artists, artist{Name: item.Artist})
		}
		if !item.NoArt {
			t.Album["images"] = []image{{URL: "https://i.scdn.co/image/" + id}}
		}
		out = append(out, t)
	}
	body, _ := json.Marshal(map[string]any{
		"tracks": map[string]any{"items": out, "total": len(out)},
	})
	return string(body)
}

// GenreItems returns n items with art named "<genre> song <i>".
func GenreItems(genre string, n int) []CatalogItem {
	out := make([]CatalogItem, n)
	for i := range out {
		out[i] = CatalogItem{Name: fmt.Sprintf("%s song %d", genre, i), Artist: fmt.Sprintf("%s artist %d", genre, i)}
	}
	return out
}
