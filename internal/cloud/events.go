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
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
)

// EventPublisher delivers pipeline lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.PipelineEvent) error
}

// PubSubPublisher publishes pipeline lifecycle events to a topic.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher binds a publisher to topicID.
func NewPubSubPublisher(client *pubsub.Client, topicID string) *PubSubPublisher {
	return &PubSubPublisher{topic: client.Topic(topicID)}
}

// Publish sends the event as JSON with its type and video id as attributes,
// and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, event *model.PipelineEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":     event.Type,
			"video_id": event.VideoID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}
