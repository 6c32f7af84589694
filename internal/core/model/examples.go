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

// Package model defines the data structures for the application. This file,
// `examples.go`, provides hardcoded example instances used for "few-shot"
// prompting: the vibe prompt embeds the JSON of GetExampleMood so the model
// answers with the same keys and value ranges.
package model

// GetExampleMood returns a sample descriptor for a dim, slow, rain-soaked
// city clip.
func GetExampleMood() *MoodDescriptor {
	danceability := 0.35
	return &MoodDescriptor{
		SeedGenres:         []string{string(GenreAmbient)},
		TargetEnergy:       0.25,
		TargetValence:      0.3,
		TargetDanceability: &danceability,
		Description:        "Cool blue neon, slow camera drift and rain on glass call for a calm, melancholic ambient bed.",
	}
}
