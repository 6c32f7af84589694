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

// Package model defines the data structures shared by the vibe pipeline.
// This file holds the mood descriptor produced by the vision model and the
// tagged result that carries either a descriptor or the reason there is none.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Genre is one tag of the fixed vocabulary the vibe prompt declares.
type Genre string

const (
	GenreTechno    Genre = "techno"
	GenreHouse     Genre = "house"
	GenreAmbient   Genre = "ambient"
	GenrePop       Genre = "pop"
	GenreRock      Genre = "rock"
	GenreHipHop    Genre = "hip-hop"
	GenreJazz      Genre = "jazz"
	GenreClassical Genre = "classical"

	// DefaultGenre is used whenever a descriptor carries no usable genre.
	DefaultGenre = GenrePop

	// DefaultMoodValue replaces an energy or valence the model left out.
	DefaultMoodValue = 0.5
)

// GenreVocabulary lists the allowed genres in prompt order.
var GenreVocabulary = []Genre{
	GenreTechno, GenreHouse, GenreAmbient, GenrePop,
	GenreRock, GenreHipHop, GenreJazz, GenreClassical,
}

// ParseGenre matches a raw tag against the vocabulary, ignoring case and
// surrounding whitespace.
func ParseGenre(raw string) (Genre, bool) {
	candidate := Genre(strings.ToLower(strings.TrimSpace(raw)))
	for _, g := range GenreVocabulary {
		if g == candidate {
			return g, true
		}
	}
	return "", false
}

// VocabularyString renders the vocabulary as "techno, house, ..." for prompts.
func VocabularyString() string {
	names := make([]string, len(GenreVocabulary))
	for i, g := range GenreVocabulary {
		names[i] = string(g)
	}
	return strings.Join(names, ", ")
}

// MoodDescriptor is the structured "vibe" of a video. It is produced once per
// video by the vision analyzer, or supplied directly by a caller refreshing a
// playlist with hand-tuned values.
type MoodDescriptor struct {
	SeedGenres         []string `json:"seed_genres"`
	TargetEnergy       float64  `json:"target_energy"`
	TargetValence      float64  `json:"target_valence"`
	TargetDanceability *float64 `json:"target_danceability,omitempty"`
	Description        string   `json:"description"`
}

// PrimaryGenre returns the first non-blank seed genre, or DefaultGenre. The
// tag is returned as given; it is not checked against the vocabulary.
func (m *MoodDescriptor) PrimaryGenre() string {
	if m == nil {
		return string(DefaultGenre)
	}
	for _, g := range m.SeedGenres {
		if s := strings.TrimSpace(g); s != "" {
			return s
		}
	}
	return string(DefaultGenre)
}

// Validate reports whether every numeric target lies in [0,1].
func (m *MoodDescriptor) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0.0 and 1.0, got %v", name, v)
		}
		return nil
	}
	if err := check("target_energy", m.TargetEnergy); err != nil {
		return err
	}
	if err := check("target_valence", m.TargetValence); err != nil {
		return err
	}
	if m.TargetDanceability != nil {
		if err := check("target_danceability", *m.TargetDanceability); err != nil {
			return err
		}
	}
	return nil
}

// RawMood mirrors the model's JSON before validation. Pointers distinguish a
// missing value from an explicit zero.
type RawMood struct {
	SeedGenres         []string `json:"seed_genres"`
	TargetEnergy       *float64 `json:"target_energy"`
	TargetValence      *float64 `json:"target_valence"`
	TargetDanceability *float64 `json:"target_danceability"`
	Description        string   `json:"description"`
}

// Normalize turns model output into a descriptor that honors the vocabulary
// and the [0,1] range. Unknown genres are dropped (falling back to
// DefaultGenre), values are clamped, and a missing energy or valence becomes
// DefaultMoodValue.
func (r *RawMood) Normalize() *MoodDescriptor {
	genres := make([]string, 0, len(r.SeedGenres))
	seen := make(map[Genre]bool)
	for _, raw := range r.SeedGenres {
		if g, ok := ParseGenre(raw); ok && !seen[g] {
			seen[g] = true
			genres = append(genres, string(g))
		}
	}
	if len(genres) == 0 {
		genres = append(genres, string(DefaultGenre))
	}

	out := &MoodDescriptor{
		SeedGenres:    genres,
		TargetEnergy:  clampOr(r.TargetEnergy, DefaultMoodValue),
		TargetValence: clampOr(r.TargetValence, DefaultMoodValue),
		Description:   strings.TrimSpace(r.Description),
	}
	if r.TargetDanceability != nil {
		d := clampOr(r.TargetDanceability, DefaultMoodValue)
		out.TargetDanceability = &d
	}
	return out
}

func clampOr(v *float64, fallback float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return fallback
	}
	return math.Max(0, math.Min(1, *v))
}

// VibeResult is either a usable mood or the reason analysis produced none.
// An error result means "do not run a genre search".
type VibeResult struct {
	Mood *MoodDescriptor
	Err  *PipelineError
}

// NewVibeError builds an error result.
func NewVibeError(kind ErrorKind, err error) *VibeResult {
	return &VibeResult{Err: NewPipelineError(kind, "analyze_vibe", err)}
}

// OK reports whether the result carries a descriptor.
func (v *VibeResult) OK() bool {
	return v != nil && v.Err == nil && v.Mood != nil
}

// MarshalJSON renders the descriptor itself, or {"error": "..."}.
func (v *VibeResult) MarshalJSON() ([]byte, error) {
	if v.OK() {
		return json.Marshal(v.Mood)
	}
	msg := "no mood available"
	if v != nil && v.Err != nil {
		msg = v.Err.Error()
	}
	return json.Marshal(ErrorPayload{Error: msg})
}
