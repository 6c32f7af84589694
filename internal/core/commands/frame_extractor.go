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

// Package commands. This file defines the command that samples frames from an
// uploaded video for mood inference.
//
// Logic Flow:
//  1. The video is probed for its frame count.
//  2. FrameCheckpoints picks the start, middle and near-end frame numbers.
//  3. A small worker pool decodes each checkpoint with ffmpeg as an RGB PNG.
//     Each decode runs in its own span.
//  4. Frames that cannot be read are skipped. Results are returned in
//     checkpoint order. An unreadable video yields no frames, not an error;
//     the mood inference step decides what an empty sample means.
package commands

import (
	"bytes"
	goctx "context"
	"fmt"
	"image/png"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EndFrameOffset is how far before the last frame the end checkpoint sits.
const EndFrameOffset = 10

// FrameCheckpoints returns the frame numbers sampled from a video with total
// frames: 0, total/2 and total-10. When the video has fewer than ten frames
// the end checkpoint is the last frame. Duplicates are dropped, order kept.
func FrameCheckpoints(total int) []int {
	if total <= 0 {
		return nil
	}
	end := total - EndFrameOffset
	if end < 0 {
		end = total - 1
	}
	candidates := []int{0, total / 2, end}
	out := make([]int, 0, len(candidates))
	seen := make(map[int]bool, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// FrameExtractor reads the video path from its input key and writes the
// sampled []*model.Frame to its output key.
type FrameExtractor struct {
	cor.BaseCommand
	runner          ToolRunner
	ffmpegPath      string
	ffprobePath     string
	numberOfWorkers int
}

// NewFrameExtractor creates the command. numberOfWorkers below 1 means one
// worker per checkpoint.
func NewFrameExtractor(name string, runner ToolRunner, ffmpegPath string, ffprobePath string, numberOfWorkers int) *FrameExtractor {
	out := &FrameExtractor{
		BaseCommand:     *cor.NewBaseCommand(name),
		runner:          runner,
		ffmpegPath:      ffmpegPath,
		ffprobePath:     ffprobePath,
		numberOfWorkers: numberOfWorkers,
	}
	out.InputParamName = GetVideoPathParameterName()
	out.OutputParamName = GetFramesParameterName()
	return out
}

type frameJob struct {
	ctx        goctx.Context
	tracer     trace.Tracer
	runner     ToolRunner
	ffmpegPath string
	videoPath  string
	checkpoint int
	position   int
}

type frameResult struct {
	checkpoint int
	position   int
	frame      *model.Frame
	err        error
}

func (f *FrameExtractor) Execute(context cor.Context) {
	videoPath, ok := cor.GetAs[string](context, f.GetInputParam())
	if !ok {
		f.Fail(context, model.Errorf(model.KindInternal, f.GetName(), "no video path in context"))
		return
	}

	probe, err := ProbeMedia(context.GetContext(), f.runner, f.ffprobePath, videoPath)
	if err != nil {
		slog.WarnContext(context.GetContext(), "unable to open video for frame extraction", "path", videoPath, "error", err)
		f.Succeed(context, []*model.Frame{})
		return
	}

	checkpoints := FrameCheckpoints(probe.FrameCount)
	if len(checkpoints) == 0 {
		slog.WarnContext(context.GetContext(), "video has no frames", "path", videoPath)
		f.Succeed(context, []*model.Frame{})
		return
	}

	workers := f.numberOfWorkers
	if workers < 1 || workers > len(checkpoints) {
		workers = len(checkpoints)
	}

	var wg sync.WaitGroup
	jobs := make(chan *frameJob, len(checkpoints))
	results := make(chan *frameResult, len(checkpoints))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go frameWorker(jobs, results, &wg)
	}
	for i, cp := range checkpoints {
		jobs <- &frameJob{
			ctx:        context.GetContext(),
			tracer:     f.Tracer,
			runner:     f.runner,
			ffmpegPath: f.ffmpegPath,
			videoPath:  videoPath,
			checkpoint: cp,
			position:   i,
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	collected := make([]*frameResult, 0, len(checkpoints))
	for r := range results {
		if r.err != nil {
			slog.WarnContext(context.GetContext(), "skipping unreadable frame", "path", videoPath, "frame", r.checkpoint, "error", r.err)
			continue
		}
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].position < collected[j].position })
	frames := make([]*model.Frame, 0, len(collected))
	for _, r := range collected {
		frames = append(frames, r.frame)
	}
	f.Succeed(context, frames)
}

func frameWorker(jobs <-chan *frameJob, results chan<- *frameResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for j := range jobs {
		results <- j.extract()
	}
}

func (j *frameJob) extract() *frameResult {
	ctx, span := j.tracer.Start(j.ctx, "extract-frame")
	defer span.End()
	span.SetAttributes(attribute.Int("frame", j.checkpoint))

	frame, err := ExtractFrame(ctx, j.runner, j.ffmpegPath, j.videoPath, j.checkpoint)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return &frameResult{checkpoint: j.checkpoint, position: j.position, err: err}
	}
	span.SetStatus(codes.Ok, "frame extracted")
	return &frameResult{checkpoint: j.checkpoint, position: j.position, frame: frame}
}

// ExtractFrame decodes frame number index of videoPath as an RGB PNG.
func ExtractFrame(ctx goctx.Context, runner ToolRunner, ffmpegPath string, videoPath string, index int) (*model.Frame, error) {
	out, err := runnerOrDefault(runner).Run(ctx, ffmpegPath,
		"-v", "error",
		"-i", videoPath,
		"-vf", "select=eq(n\\,"+strconv.Itoa(index)+")",
		"-frames:v", "1",
		"-pix_fmt", "rgb24",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("frame %d not found", index)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(out)); err != nil {
		return nil, fmt.Errorf("frame %d is not a valid image: %w", index, err)
	}
	return &model.Frame{Index: index, Data: out, MIMEType: "image/png"}, nil
}
