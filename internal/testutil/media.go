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

package test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var frameSelect = regexp.MustCompile(`select=eq\(n\\,(\d+)\)`)

// Call is one invocation recorded by FakeMediaRunner.
type Call struct {
	Name string
	Args []string
}

// FakeMediaRunner stands in for ffprobe, ffmpeg and yt-dlp. It answers probes
// from the configured durations, returns PNG frames, and creates the files
// the real tools would write so that later steps find them.
type FakeMediaRunner struct {
	FFProbePath string
	FFMpegPath  string
	YtDlpPath   string

	VideoDuration float64 // Seconds.
	AudioDuration float64 // Seconds.
	FrameCount    int

	FailProbe    bool
	FailFrames   map[int]bool
	FailDownload bool
	FailMux      bool

	mu    sync.Mutex
	calls []Call
}

// NewFakeMediaRunner returns a runner for the default binary names with a
// 30s, 900 frame video and a 10s track.
func NewFakeMediaRunner() *FakeMediaRunner {
	return &FakeMediaRunner{
		FFProbePath:   "ffprobe",
		FFMpegPath:    "ffmpeg",
		YtDlpPath:     "yt-dlp",
		VideoDuration: 30,
		AudioDuration: 10,
		FrameCount:    900,
		FailFrames:    map[int]bool{},
	}
}

// Calls returns the recorded invocations, optionally filtered by binary.
func (f *FakeMediaRunner) Calls(name string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, 0, len(f.calls))
	for _, c := range f.calls {
		if name == "" || c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeMediaRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...)})
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch name {
	case f.FFProbePath:
		return f.probe(args)
	case f.FFMpegPath:
		return f.ffmpeg(args)
	case f.YtDlpPath:
		return f.download(args)
	}
	return nil, fmt.Errorf("unexpected binary %s", name)
}

func (f *FakeMediaRunner) probe(args []string) ([]byte, error) {
	if f.FailProbe {
		return nil, errors.New("ffprobe failed: invalid data found when processing input")
	}
	path := args[len(args)-1]
	if strings.HasPrefix(filepath.Base(path), "temp_audio_") {
		return []byte(fmt.Sprintf(`{"format":{"duration":"%.3f"},"streams":[{"codec_type":"audio","duration":"%.3f"}]}`,
			f.AudioDuration, f.AudioDuration)), nil
	}
	return []byte(fmt.Sprintf(`{"format":{"duration":"%.3f"},"streams":[{"codec_type":"video","nb_frames":"%d","avg_frame_rate":"30/1"},{"codec_type":"audio"}]}`,
		f.VideoDuration, f.FrameCount)), nil
}

func (f *FakeMediaRunner) ffmpeg(args []string) ([]byte, error) {
	target := args[len(args)-1]
	if target != "-" {
		if f.FailMux && contains(args, "-map") {
			return nil, errors.New("ffmpeg failed: conversion failed")
		}
		return nil, os.WriteFile(target, []byte("media"), 0o644)
	}
	for _, a := range args {
		if m := frameSelect.FindStringSubmatch(a); m != nil {
			index, _ := strconv.Atoi(m[1])
			if f.FailFrames[index] || index >= f.FrameCount {
				return nil, nil
			}
			return TestPNG(), nil
		}
	}
	return nil, errors.New("ffmpeg failed: no frame selected")
}

func (f *FakeMediaRunner) download(args []string) ([]byte, error) {
	if f.FailDownload {
		return nil, errors.New("yt-dlp failed: no results")
	}
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			out := strings.Replace(args[i+1], "%(ext)s", "mp3", 1)
			return nil, os.WriteFile(out, []byte("audio"), 0o644)
		}
	}
	return nil, errors.New("yt-dlp failed: no output template")
}

func contains(args []string, v string) bool {
	for _, a := range args {
		if a == v {
			return true
		}
	}
	return false
}

// TestPNG is a 2x2 RGB PNG.
func TestPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 200, G: 40, B: 90, A: 255})
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// TestMP4Header is enough of an ISO base media file for content sniffing.
func TestMP4Header() []byte {
	return append([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'm', 'p', '4', '1'},
		bytes.Repeat([]byte{0}, 64)...)
}
