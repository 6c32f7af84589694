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
	"errors"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
)

// TempFileCleanup removes every temp file registered on the context. It is
// meant to be added with AddFinally so it also runs after a failure.
type TempFileCleanup struct {
	cor.BaseCommand
}

func NewTempFileCleanup(name string) *TempFileCleanup {
	return &TempFileCleanup{BaseCommand: *cor.NewBaseCommand(name)}
}

// IsExecutable needs no input.
func (c *TempFileCleanup) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil
}

func (c *TempFileCleanup) Execute(context cor.Context) {
	removed := 0
	for _, file := range context.GetTempFiles() {
		err := os.Remove(file)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, os.ErrNotExist):
		default:
			slog.WarnContext(context.GetContext(), "failed to remove temp file", "file", file, "error", err)
		}
	}
	slog.DebugContext(context.GetContext(), "temp files removed", "count", removed)
	c.Succeed(context, nil)
}
