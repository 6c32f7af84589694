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

// Package services. This file is the temp-asset store. Uploaded videos,
// downloaded audio and merge outputs are plain files in one work directory;
// the store names them, hands out per-video locks and reclaims expired files.
//
// Logic Flow:
//  1. SaveVideo sniffs the first bytes of an upload, rejects non-video input
//     and writes temp_video_<uuid>.mp4.
//  2. Merges hold Lock(id) while they read the upload and write final_<id>.mp4.
//  3. The sweeper wakes every sweep_interval and removes temp_video_*,
//     temp_audio_* and final_* files older than the TTL, skipping locked ids.
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
	"github.com/jaycherian/gcp-go-syncwave/internal/telemetry"
)

// sniffLen is the number of leading bytes filetype needs to match.
const sniffLen = 261

// ErrNotVideo is returned for uploads whose content is not a video container.
var ErrNotVideo = errors.New("uploaded file is not a video")

type idLock struct {
	mu   sync.Mutex
	refs int
}

// AssetStore owns the temp files in the work directory.
type AssetStore struct {
	dir      string
	ttl      time.Duration
	interval time.Duration
	metrics  *telemetry.Metrics
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*idLock
}

// NewAssetStore creates the store, creating dir when needed.
func NewAssetStore(config cloud.Storage, metrics *telemetry.Metrics) (*AssetStore, error) {
	dir := config.WorkDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory %s: %w", dir, err)
	}
	return &AssetStore{
		dir:      dir,
		ttl:      config.TTL.Duration,
		interval: config.SweepInterval.Duration,
		metrics:  metrics,
		now:      time.Now,
		locks:    make(map[string]*idLock),
	}, nil
}

// Dir is the work directory.
func (s *AssetStore) Dir() string {
	return s.dir
}

// SaveVideo persists an upload under a new id. Non-video content is rejected
// with an invalid-input error and nothing is written.
func (s *AssetStore) SaveVideo(ctx context.Context, r io.Reader) (*model.VideoAsset, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, model.NewPipelineError(model.KindInternal, "save_video", fmt.Errorf("failed to read upload: %w", err))
	}
	head = head[:n]
	kind, _ := filetype.Match(head)
	if !filetype.IsVideo(head) {
		return nil, model.NewPipelineError(model.KindInvalidInput, "save_video", ErrNotVideo)
	}

	asset := &model.VideoAsset{
		ID:        uuid.NewString(),
		MIMEType:  kind.MIME.Value,
		CreatedAt: s.now(),
	}
	asset.Path = s.VideoPath(asset.ID)

	file, err := os.Create(asset.Path)
	if err != nil {
		return nil, model.NewPipelineError(model.KindInternal, "save_video", fmt.Errorf("failed to create %s: %w", asset.Path, err))
	}
	written, err := io.Copy(file, io.MultiReader(bytes.NewReader(head), r))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(asset.Path)
		return nil, model.NewPipelineError(model.KindInternal, "save_video", fmt.Errorf("failed to write %s: %w", asset.Path, err))
	}
	asset.Size = written
	slog.InfoContext(ctx, "stored upload", "video_id", asset.ID, "bytes", written, "mime_type", asset.MIMEType)
	return asset, nil
}

// VideoPath is the location of the upload with the given id.
func (s *AssetStore) VideoPath(id string) string {
	return filepath.Join(s.dir, model.VideoFilePrefix+id+".mp4")
}

// OutputPath is the location of the merge output for the given id.
func (s *AssetStore) OutputPath(id string) string {
	return filepath.Join(s.dir, model.OutputFilePrefix+id+".mp4")
}

// Exists reports whether an upload with the given id is still on disk. Ids
// that are not uuids never exist.
func (s *AssetStore) Exists(id string) bool {
	if _, err := uuid.Parse(id); err != nil {
		return false
	}
	info, err := os.Stat(s.VideoPath(id))
	return err == nil && info.Mode().IsRegular()
}

// RemoveVideo deletes the upload. A missing file is not an error.
func (s *AssetStore) RemoveVideo(id string) error {
	return removeIfExists(s.VideoPath(id))
}

// RemoveOutput deletes the merge output. A missing file is not an error.
func (s *AssetStore) RemoveOutput(id string) error {
	return removeIfExists(s.OutputPath(id))
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Lock blocks until the caller holds the lock for id and returns the unlock
// function. Locked ids are skipped by the sweeper.
func (s *AssetStore) Lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &idLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return s.unlocker(id, l)
}

// tryLock takes the lock for id only when nobody holds or waits for it.
func (s *AssetStore) tryLock(id string) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[id]; ok {
		return nil, false
	}
	l := &idLock{refs: 1}
	l.mu.Lock()
	s.locks[id] = l
	return s.unlocker(id, l), true
}

func (s *AssetStore) unlocker(id string, l *idLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, id)
			}
			s.mu.Unlock()
		})
	}
}

// IsLocked reports whether a merge holds or waits for id.
func (s *AssetStore) IsLocked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locks[id]
	return ok
}

// assetID extracts the id from a temp file name and reports whether the name
// belongs to the store. Audio ids are not video ids and are never locked.
func assetID(name string) (string, bool) {
	for _, prefix := range []string{model.VideoFilePrefix, model.AudioFilePrefix, model.OutputFilePrefix} {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if i := strings.IndexAny(rest, "._"); i >= 0 {
			rest = rest[:i]
		}
		return rest, true
	}
	return "", false
}

// Sweep removes store files older than the TTL and returns how many were
// removed. A TTL of zero disables sweeping.
func (s *AssetStore) Sweep(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	var errs error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		id, ok := assetID(entry.Name())
		if !ok {
			continue
		}
		swept, err := s.sweepEntry(id, entry, cutoff)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if swept {
			slog.DebugContext(ctx, "removed expired temp file", "file", entry.Name())
			removed++
		}
	}
	s.metrics.AddSwept(removed)
	return removed, errs
}

// sweepEntry removes one expired file while holding the lock for its id, so a
// merge that locks the id afterwards sees the file gone instead of losing it
// midway.
func (s *AssetStore) sweepEntry(id string, entry os.DirEntry, cutoff time.Time) (bool, error) {
	unlock, ok := s.tryLock(id)
	if !ok {
		return false, nil
	}
	defer unlock()

	info, err := entry.Info()
	if err != nil || !info.ModTime().Before(cutoff) {
		return false, nil
	}
	if err := removeIfExists(filepath.Join(s.dir, entry.Name())); err != nil {
		return false, err
	}
	return true, nil
}

// StartSweeper runs Sweep every sweep interval until ctx is done.
func (s *AssetStore) StartSweeper(ctx context.Context) {
	if s.interval <= 0 || s.ttl <= 0 {
		slog.Info("temp asset sweeper disabled", "interval", s.interval, "ttl", s.ttl)
		return
	}
	tracer := otel.Tracer("asset-sweeper")
	ticker := time.NewTicker(s.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				traceCtx, span := tracer.Start(ctx, "sweep-temp-assets")
				removed, err := s.Sweep(traceCtx)
				span.SetAttributes(attribute.Int("removed", removed))
				if err != nil {
					slog.WarnContext(traceCtx, "temp asset sweep incomplete", "error", err)
					span.SetStatus(codes.Error, "failed to remove some files")
				} else {
					span.SetStatus(codes.Ok, "swept temp assets")
				}
				span.End()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stats counts the store files for the dashboard and updates the gauges.
func (s *AssetStore) Stats() *model.AssetStats {
	stats := &model.AssetStats{TTL: s.ttl}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.Warn("failed to list work directory", "dir", s.dir, "error", err)
		return stats
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() {
			continue
		}
		switch {
		case strings.HasPrefix(name, model.VideoFilePrefix):
			stats.Videos++
		case strings.HasPrefix(name, model.AudioFilePrefix):
			stats.Audio++
		case strings.HasPrefix(name, model.OutputFilePrefix):
			stats.Outputs++
		default:
			continue
		}
		if info, err := entry.Info(); err == nil {
			stats.Bytes += info.Size()
		}
	}
	s.mu.Lock()
	stats.LockedIDs = len(s.locks)
	s.mu.Unlock()
	s.metrics.SetTempAssets(stats.Videos, stats.Audio, stats.Outputs)
	return stats
}
