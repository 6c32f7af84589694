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
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// FFProbeOutput is the part of `ffprobe -print_format json` output we read.
type FFProbeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		NbFrames     string `json:"nb_frames"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

// ProbeMedia runs ffprobe on path and returns its duration, stream kinds and
// the frame count of the first video stream. The frame count falls back to
// duration * frame rate when the container does not record nb_frames.
func ProbeMedia(ctx context.Context, runner ToolRunner, ffprobePath string, path string) (*model.MediaProbe, error) {
	out, err := runnerOrDefault(runner).Run(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, err
	}
	return ParseProbeOutput(path, out)
}

// ParseProbeOutput decodes ffprobe JSON into a MediaProbe.
func ParseProbeOutput(path string, out []byte) (*model.MediaProbe, error) {
	var probe FFProbeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("error unmarshalling ffprobe output for %s: %w", path, err)
	}

	result := &model.MediaProbe{Path: path}
	formatDuration := parseSeconds(probe.Format.Duration)
	result.Duration = toDuration(formatDuration)

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "audio":
			result.HasAudio = true
		case "video":
			if result.HasVideo {
				continue
			}
			result.HasVideo = true
			if n, err := strconv.Atoi(stream.NbFrames); err == nil && n > 0 {
				result.FrameCount = n
				continue
			}
			streamDuration := parseSeconds(stream.Duration)
			if streamDuration <= 0 {
				streamDuration = formatDuration
			}
			fps := parseRate(stream.AvgFrameRate)
			if fps <= 0 {
				fps = parseRate(stream.RFrameRate)
			}
			result.FrameCount = int(math.Floor(streamDuration * fps))
		}
	}

	if result.Duration <= 0 && !result.HasVideo && !result.HasAudio {
		return nil, fmt.Errorf("ffprobe found no media streams in %s", path)
	}
	return result, nil
}

func parseSeconds(in string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(in), 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// parseRate reads ffprobe's "num/den" rationals.
func parseRate(in string) float64 {
	num, den, found := strings.Cut(in, "/")
	if !found {
		return parseSeconds(in)
	}
	n := parseSeconds(num)
	d := parseSeconds(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func toDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

// MediaProbeCommand probes the file path found under its input key and stores
// the *model.MediaProbe under its output key.
type MediaProbeCommand struct {
	cor.BaseCommand
	runner      ToolRunner
	ffprobePath string
}

// NewMediaProbeCommand creates a probe step reading inputKey and writing outputKey.
func NewMediaProbeCommand(name string, runner ToolRunner, ffprobePath string, inputKey string, outputKey string) *MediaProbeCommand {
	out := &MediaProbeCommand{
		BaseCommand: *cor.NewBaseCommand(name),
		runner:      runner,
		ffprobePath: ffprobePath,
	}
	out.InputParamName = inputKey
	out.OutputParamName = outputKey
	return out
}

func (c *MediaProbeCommand) Execute(context cor.Context) {
	path, ok := cor.GetAs[string](context, c.GetInputParam())
	if !ok {
		c.Fail(context, model.Errorf(model.KindInternal, c.GetName(), "no media path under %s", c.GetInputParam()))
		return
	}
	probe, err := ProbeMedia(context.GetContext(), c.runner, c.ffprobePath, path)
	if err != nil {
		c.Fail(context, model.NewPipelineError(model.KindInternal, c.GetName(), err))
		return
	}
	if probe.Duration <= 0 {
		c.Fail(context, model.Errorf(model.KindInvalidInput, c.GetName(), "media has no duration: %s", path))
		return
	}
	c.Succeed(context, probe)
}
