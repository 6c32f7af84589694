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

package cloud

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// youTubeMusicCategory is the Data API category id for "Music".
const youTubeMusicCategory = "10"

// YouTubeResolver finds the watch URL of the best match for an audio query.
type YouTubeResolver struct {
	Client *youtube.Service
}

// NewYouTubeResolver creates a resolver authenticated with an API key.
func NewYouTubeResolver(ctx context.Context, apiKey string, opts ...option.ClientOption) (*YouTubeResolver, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube: create service: %w", err)
	}
	return &YouTubeResolver{Client: svc}, nil
}

// Resolve returns the watch URL of the first music video matching query.
func (y *YouTubeResolver) Resolve(ctx context.Context, query string) (string, error) {
	response, err := y.Client.Search.
		List([]string{"id"}).
		Q(query).
		MaxResults(1).
		Type("video").
		VideoCategoryId(youTubeMusicCategory).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube: search %q: %w", query, err)
	}
	for _, item := range response.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			return "https://www.youtube.com/watch?v=" + item.Id.VideoId, nil
		}
	}
	return "", fmt.Errorf("youtube: no video found for %q", query)
}
