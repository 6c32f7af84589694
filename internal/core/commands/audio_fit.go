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

import (
	"math"
	"time"

	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// PlanAudioFit decides how the track is cut to the video. The audio is read
// from start seconds; the remainder is looped when shorter than the video and
// truncated otherwise, so the output always runs for the video's duration.
// A start at or past the end of the track is rejected.
func PlanAudioFit(video time.Duration, audio time.Duration, start float64) (*model.AudioFitPlan, error) {
	if math.IsNaN(start) || start < 0 {
		return nil, model.Errorf(model.KindInvalidInput, "plan_audio_fit", "start_time must be >= 0, got %v", start)
	}
	if video <= 0 {
		return nil, model.Errorf(model.KindInvalidInput, "plan_audio_fit", "video has no duration")
	}
	startAt := time.Duration(start * float64(time.Second))
	if startAt >= audio {
		return nil, model.Errorf(model.KindInvalidInput, "plan_audio_fit",
			"start_time %.2fs is beyond the end of the track (%.2fs)", start, audio.Seconds())
	}
	return &model.AudioFitPlan{
		Start:    startAt,
		Duration: video,
		Loop:     audio-startAt < video,
	}, nil
}

// AudioFit reads both probes and the merge request and writes the plan.
type AudioFit struct {
	cor.BaseCommand
}

func NewAudioFit(name string) *AudioFit {
	out := &AudioFit{BaseCommand: *cor.NewBaseCommand(name)}
	out.InputParamName = GetAudioProbeParameterName()
	out.OutputParamName = GetAudioFitPlanParameterName()
	return out
}

func (c *AudioFit) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) &&
		context.Get(GetVideoProbeParameterName()) != nil &&
		context.Get(GetMergeRequestParameterName()) != nil
}

func (c *AudioFit) Execute(context cor.Context) {
	audio, _ := cor.GetAs[*model.MediaProbe](context, GetAudioProbeParameterName())
	video, _ := cor.GetAs[*model.MediaProbe](context, GetVideoProbeParameterName())
	req, _ := cor.GetAs[*model.MergeRequest](context, GetMergeRequestParameterName())
	if audio == nil || video == nil || req == nil {
		c.Fail(context, model.Errorf(model.KindInternal, c.GetName(), "missing probe or request"))
		return
	}
	if !video.HasVideo {
		c.Fail(context, model.Errorf(model.KindInvalidInput, c.GetName(), "upload has no video stream"))
		return
	}
	if !audio.HasAudio {
		c.Fail(context, model.Errorf(model.KindServiceUnavailable, c.GetName(), "downloaded file has no audio stream"))
		return
	}
	plan, err := PlanAudioFit(video.Duration, audio.Duration, req.StartTime)
	if err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context, plan)
}
