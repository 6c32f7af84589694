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

package telemetry

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the Prometheus instruments served on /metrics. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	errorsTotal     prometheus.Counter
	uploadsTotal    *prometheus.CounterVec
	mergesTotal     *prometheus.CounterVec
	catalogTotal    *prometheus.CounterVec
	sweptFilesTotal prometheus.Counter
	tempAssets      *prometheus.GaugeVec
}

// NewMetrics creates and registers the instruments on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syncwave_requests_total",
		Help: "Total number of HTTP requests received, by route and status",
	}, []string{"route", "status"})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "syncwave_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	uploadsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syncwave_uploads_total",
		Help: "Uploads analyzed, by outcome",
	}, []string{"outcome"})
	mergesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syncwave_merges_total",
		Help: "Merges attempted, by outcome",
	}, []string{"outcome"})
	catalogTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syncwave_catalog_requests_total",
		Help: "Catalog searches, by operation and outcome",
	}, []string{"operation", "outcome"})
	sweptFilesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "syncwave_swept_files_total",
		Help: "Expired temp files removed by the sweeper",
	})
	tempAssets := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "syncwave_temp_assets",
		Help: "Temp files currently in the work directory, by kind",
	}, []string{"kind"})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		uploadsTotal,
		mergesTotal,
		catalogTotal,
		sweptFilesTotal,
		tempAssets,
	)

	return &Metrics{
		registry:        registry,
		requestsTotal:   requestsTotal,
		errorsTotal:     errorsTotal,
		uploadsTotal:    uploadsTotal,
		mergesTotal:     mergesTotal,
		catalogTotal:    catalogTotal,
		sweptFilesTotal: sweptFilesTotal,
		tempAssets:      tempAssets,
	}
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// ObserveUpload counts one upload.
func (m *Metrics) ObserveUpload(err error) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(outcome(err)).Inc()
}

// ObserveMerge counts one merge.
func (m *Metrics) ObserveMerge(err error) {
	if m == nil {
		return
	}
	m.mergesTotal.WithLabelValues(outcome(err)).Inc()
}

// ObserveCatalog counts one catalog search.
func (m *Metrics) ObserveCatalog(operation string, err error) {
	if m == nil {
		return
	}
	m.catalogTotal.WithLabelValues(operation, outcome(err)).Inc()
}

// AddSwept counts files removed by the sweeper.
func (m *Metrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptFilesTotal.Add(float64(n))
}

// SetTempAssets sets the temp asset gauges.
func (m *Metrics) SetTempAssets(videos, audio, outputs int) {
	if m == nil {
		return
	}
	m.tempAssets.WithLabelValues("video").Set(float64(videos))
	m.tempAssets.WithLabelValues("audio").Set(float64(audio))
	m.tempAssets.WithLabelValues("output").Set(float64(outputs))
}

// Middleware counts every request by route template and status.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		if status >= http.StatusBadRequest {
			m.errorsTotal.Inc()
		}
	}
}

// Handler serves the registry. updateGauges runs before each scrape.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
