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

package commands

// Context keys shared by the vibe and merge workflows.

func GetVideoPathParameterName() string {
	return "__VIDEO_PATH__"
}

func GetFramesParameterName() string {
	return "__FRAMES__"
}

func GetMoodJSONParameterName() string {
	return "__MOOD_JSON__"
}

func GetMoodParameterName() string {
	return "__MOOD__"
}

func GetMergeRequestParameterName() string {
	return "__MERGE_REQUEST__"
}

func GetAudioClipParameterName() string {
	return "__AUDIO_CLIP__"
}

func GetAudioPathParameterName() string {
	return "__AUDIO_PATH__"
}

func GetVideoProbeParameterName() string {
	return "__VIDEO_PROBE__"
}

func GetAudioProbeParameterName() string {
	return "__AUDIO_PROBE__"
}

func GetAudioFitPlanParameterName() string {
	return "__AUDIO_FIT_PLAN__"
}

func GetTrimmedAudioParameterName() string {
	return "__TRIMMED_AUDIO__"
}

// GetOutputPathParameterName is where the caller names the mux target file.
func GetOutputPathParameterName() string {
	return "__OUTPUT_PATH__"
}

func GetMergedPathParameterName() string {
	return "__MERGED_PATH__"
}

func GetMergeJobParameterName() string {
	return "__MERGE_JOB__"
}

func GetMergedVideoParameterName() string {
	return "__MERGED_VIDEO__"
}
