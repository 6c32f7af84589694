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

// Package cloud. This file is the music catalog client, a thin wrapper over
// the Spotify Web API search endpoint.
//
// Logic Flow:
//  1. The HTTP client carries a client-credentials token source, so every
//     request is authorized and the token is refreshed when it expires.
//  2. SearchTracks builds /search?q=&type=track&limit=&offset=[&market=].
//  3. 429 and 5xx responses are retried, honouring Retry-After and otherwise
//     backing off exponentially. Cancellation of ctx stops the retry loop.
//  4. Other non-2xx responses become a *CatalogError carrying the status.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// CatalogImage is one album art entry.
type CatalogImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// CatalogArtist is a credited artist.
type CatalogArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CatalogAlbum carries the album art of a track.
type CatalogAlbum struct {
	Name   string         `json:"name"`
	Images []CatalogImage `json:"images"`
}

// CatalogTrack is a raw track item as returned by the catalog search.
type CatalogTrack struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Artists      []CatalogArtist   `json:"artists"`
	Album        CatalogAlbum      `json:"album"`
	ExternalURLs map[string]string `json:"external_urls"`
	PreviewURL   *string           `json:"preview_url"`
	DurationMs   int               `json:"duration_ms"`
}

type catalogSearchResponse struct {
	Tracks struct {
		Items []CatalogTrack `json:"items"`
		Total int            `json:"total"`
	} `json:"tracks"`
}

// CatalogError is a non-retryable (or retry-exhausted) catalog response.
type CatalogError struct {
	StatusCode int
	Message    string
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog: status %d: %s", e.StatusCode, e.Message)
}

// SpotifyCatalog searches the Spotify Web API.
type SpotifyCatalog struct {
	httpClient  *http.Client
	baseURL     string
	market      string
	maxRetries  int
	baseBackoff time.Duration
}

// NewSpotifyCatalog creates a catalog client that authenticates with the
// client-credentials flow. ctx scopes token fetches.
func NewSpotifyCatalog(ctx context.Context, config Catalog, clientID, clientSecret string) *SpotifyCatalog {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     config.TokenURL,
	}
	httpClient := cc.Client(ctx)
	httpClient.Timeout = config.RequestTimeout.Duration
	return NewSpotifyCatalogWithClient(httpClient, config)
}

// NewSpotifyCatalogWithClient uses httpClient as is. Tests point it at an
// httptest server.
func NewSpotifyCatalogWithClient(httpClient *http.Client, config Catalog) *SpotifyCatalog {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := config.RetryBackoff.Duration
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &SpotifyCatalog{
		httpClient:  httpClient,
		baseURL:     strings.TrimSuffix(config.BaseURL, "/"),
		market:      config.Market,
		maxRetries:  maxRetries,
		baseBackoff: backoff,
	}
}

// SearchTracks runs a track search and returns the raw items in catalog order.
func (c *SpotifyCatalog) SearchTracks(ctx context.Context, query string, limit, offset int) ([]CatalogTrack, error) {
	searchURL, err := url.Parse(c.baseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("catalog: invalid search url: %w", err)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	if c.market != "" {
		params.Set("market", c.market)
	}
	searchURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &CatalogError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var payload catalogSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("catalog: decode search response: %w", err)
	}
	return payload.Tracks.Items, nil
}

func (c *SpotifyCatalog) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("catalog: request canceled: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		retryAfter, retry := shouldRetry(resp, err)
		if !retry {
			return resp, err
		}

		if err != nil {
			slog.Warn("catalog request failed, retrying", "attempt", attempt+1, "max", c.maxRetries, "error", err)
		} else {
			slog.Warn("catalog request throttled, retrying", "attempt", attempt+1, "max", c.maxRetries, "status", resp.StatusCode)
		}

		if attempt == c.maxRetries-1 {
			if err != nil {
				return nil, fmt.Errorf("catalog: request failed after %d attempts: %w", c.maxRetries, err)
			}
			status := resp.StatusCode
			_ = resp.Body.Close()
			return nil, &CatalogError{StatusCode: status, Message: fmt.Sprintf("request failed after %d attempts", c.maxRetries)}
		}
		if resp != nil {
			_ = resp.Body.Close()
		}

		backoff := c.baseBackoff * time.Duration(1<<attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, fmt.Errorf("catalog: request canceled: %w", err)
		}
	}
	return nil, fmt.Errorf("catalog: request failed after %d attempts", c.maxRetries)
}

func shouldRetry(resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		// Cancellation is final; everything else at the transport level is retried.
		return 0, !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return 0, false
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return parseRetryAfter(resp), true
	}
	return 0, false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(retryAfter); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}
	return 0
}
