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

package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaycherian/gcp-go-syncwave/internal/telemetry"
	test "github.com/jaycherian/gcp-go-syncwave/internal/testutil"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, telemetry.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, telemetry.ParseLevel(" WARN "))
	assert.Equal(t, slog.LevelWarn, telemetry.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, telemetry.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, telemetry.ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, telemetry.ParseLevel("verbose"))
}

func TestLogHandlerUsesCloudLoggingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(telemetry.NewLogHandler(&buf, slog.LevelInfo))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	logger.DebugContext(ctx, "hidden")
	logger.With("video_id", "abc").WarnContext(ctx, "catalog throttled")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARNING", entry["severity"])
	assert.Equal(t, "catalog throttled", entry["message"])
	assert.Equal(t, "abc", entry["video_id"])
	assert.Contains(t, entry, "timestamp")
	assert.NotContains(t, entry, "msg")
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["logging.googleapis.com/trace"])
	assert.Equal(t, "00f067aa0ba902b7", entry["logging.googleapis.com/spanId"])
	assert.Equal(t, true, entry["logging.googleapis.com/trace_sampled"])
}

func TestSetupLoggingMirrorsToFile(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	logFile := filepath.Join(t.TempDir(), "app.log")
	closeLog, err := telemetry.SetupLogging("info", logFile)
	require.NoError(t, err)
	slog.Info("server started", "port", 8000)
	closeLog()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"server started"`)
	assert.Contains(t, string(data), `"severity":"INFO"`)

	_, err = telemetry.SetupLogging("info", filepath.Join(t.TempDir(), "missing", "app.log"))
	assert.Error(t, err)
}

func TestSetupOpenTelemetryWithoutProject(t *testing.T) {
	config := *test.GetConfig()
	config.Application.GoogleProjectId = ""

	shutdown, err := telemetry.SetupOpenTelemetry(context.Background(), &config)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func scrape(t *testing.T, m *telemetry.Metrics, update func()) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler(update).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics(t *testing.T) {
	m := telemetry.NewMetrics()
	m.ObserveUpload(nil)
	m.ObserveUpload(errors.New("bad upload"))
	m.ObserveMerge(nil)
	m.ObserveCatalog("search_tracks", nil)
	m.AddSwept(3)
	m.AddSwept(0)

	body := scrape(t, m, func() { m.SetTempAssets(2, 1, 0) })
	assert.Contains(t, body, `syncwave_uploads_total{outcome="ok"} 1`)
	assert.Contains(t, body, `syncwave_uploads_total{outcome="error"} 1`)
	assert.Contains(t, body, `syncwave_merges_total{outcome="ok"} 1`)
	assert.Contains(t, body, `syncwave_catalog_requests_total{operation="search_tracks",outcome="ok"} 1`)
	assert.Contains(t, body, "syncwave_swept_files_total 3")
	assert.Contains(t, body, `syncwave_temp_assets{kind="video"} 2`)
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *telemetry.Metrics
	assert.NotPanics(t, func() {
		m.ObserveUpload(nil)
		m.ObserveMerge(errors.New("x"))
		m.ObserveCatalog("get_recommendations", nil)
		m.AddSwept(1)
		m.SetTempAssets(1, 1, 1)
	})
}

func TestMiddlewareCountsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := telemetry.NewMetrics()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/items/1", "/items/2", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, m, nil)
	assert.Contains(t, body, `syncwave_requests_total{route="/items/:id",status="200"} 2`)
	assert.Contains(t, body, `syncwave_requests_total{route="unmatched",status="404"} 1`)
	assert.Contains(t, body, "syncwave_errors_total 1")
}
