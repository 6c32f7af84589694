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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file wraps the
// execution of the external media tools (ffmpeg, ffprobe, yt-dlp).
//
// Every tool runs with the workflow's Go context, so a cancelled request kills
// the child process. Stdout is returned to the caller; stderr is kept only to
// enrich the error message.
package commands

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// maxStderrTail bounds the stderr text copied into an error.
const maxStderrTail = 2048

// ToolRunner executes an external binary and returns its stdout.
type ToolRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner is the os/exec ToolRunner.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s cancelled: %w", filepath.Base(name), ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, tail(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// DefaultRunner is used when a command is built without a runner.
var DefaultRunner ToolRunner = ExecRunner{}

func tail(in string) string {
	in = strings.TrimSpace(in)
	if len(in) <= maxStderrTail {
		return in
	}
	return "..." + in[len(in)-maxStderrTail:]
}

func runnerOrDefault(r ToolRunner) ToolRunner {
	if r == nil {
		return DefaultRunner
	}
	return r
}

// seconds formats a duration the way ffmpeg's -ss and -t expect.
func seconds(d float64) string {
	return fmt.Sprintf("%.3f", d)
}
