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

// Package cloud. This file creates and holds every external client the
// application needs, so the rest of the code receives them from one place.
//
// Logic Flow:
//  1. NewCloudServiceClients is called once at startup with the config and
//     the secrets read from the environment.
//  2. The vision provider is built: a genai client (Vertex AI when a project
//     id is set, the Gemini API with GOOGLE_API_KEY otherwise) wrapped per
//     agent model, or an OpenAI client.
//  3. The catalog client is built with client-credentials auth.
//  4. The YouTube resolver is built when enabled and a key is present.
//  5. With a project id, Pub/Sub (events, listeners) and Cloud Storage
//     (archive) clients are built as well.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ServiceClients is the container for external clients.
type ServiceClients struct {
	StorageClient   *storage.Client                         // Nil without a project id.
	PubsubClient    *pubsub.Client                          // Nil without a project id.
	GenAIClient     *genai.Client                           // Nil unless the gemini provider is selected.
	OpenAIClient    *openai.Client                          // Nil unless the openai provider is selected.
	AgentModels     map[string]*QuotaAwareGenerativeAIModel // Gemini agent models by logical name.
	Vision          VisionModel                             // The selected frame analysis provider.
	Catalog         *SpotifyCatalog                         // Music catalog.
	YouTube         *YouTubeResolver                        // Nil when disabled.
	Publisher       *PubSubPublisher                        // Nil when events.topic is empty.
	ObjectStore     ObjectStore                             // Nil without a storage client.
	PubSubListeners map[string]*PubSubListener              // Listeners by logical subscription name.
}

// Close releases client connections. Nil clients are skipped.
func (c *ServiceClients) Close() {
	if c.Publisher != nil {
		c.Publisher.Stop()
	}
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
}

// NewCloudServiceClients initializes all clients from config and secrets.
func NewCloudServiceClients(ctx context.Context, config *Config, secrets Secrets) (cloud *ServiceClients, err error) {
	cloud = &ServiceClients{
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
		PubSubListeners: make(map[string]*PubSubListener),
	}

	switch config.Vision.Provider {
	case ProviderOpenAI:
		if secrets.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("vision provider %q requires %s", ProviderOpenAI, EnvOpenAIAPIKey)
		}
		oc := openai.DefaultConfig(secrets.OpenAIAPIKey)
		if config.OpenAI.BaseURL != "" {
			oc.BaseURL = config.OpenAI.BaseURL
		}
		cloud.OpenAIClient = openai.NewClientWithConfig(oc)
		cloud.Vision = NewOpenAIVisionModel(cloud.OpenAIClient, config.OpenAI)
	case ProviderGemini, "":
		gc, err := newGenAIClient(ctx, config, secrets)
		if err != nil {
			return nil, err
		}
		cloud.GenAIClient = gc
		for amKey, values := range config.AgentModels {
			cloud.AgentModels[amKey] = NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, gc.Models, values.RateLimit)
		}
		agent, ok := cloud.AgentModels[config.Vision.AgentModel]
		if !ok {
			return nil, fmt.Errorf("vision agent model %q is not configured", config.Vision.AgentModel)
		}
		cloud.Vision = NewGeminiVisionModel(agent)
	default:
		return nil, fmt.Errorf("unknown vision provider %q", config.Vision.Provider)
	}
	slog.Info("vision provider ready", "model", cloud.Vision.Name())

	if secrets.SpotifyClientID == "" || secrets.SpotifyClientSecret == "" {
		slog.Warn("catalog credentials are not set; catalog calls will fail",
			"id_var", EnvSpotifyClientID, "secret_var", EnvSpotifyClientSecret)
	}
	cloud.Catalog = NewSpotifyCatalog(ctx, config.Catalog, secrets.SpotifyClientID, secrets.SpotifyClientSecret)

	if config.AudioSource.UseYouTubeAPI && secrets.YouTubeAPIKey != "" {
		yt, err := NewYouTubeResolver(ctx, secrets.YouTubeAPIKey)
		if err != nil {
			return nil, err
		}
		cloud.YouTube = yt
	}

	if config.Application.GoogleProjectId == "" {
		return cloud, nil
	}

	pc, err := pubsub.NewClient(ctx, config.Application.GoogleProjectId)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	cloud.PubsubClient = pc
	if config.Events.Topic != "" {
		cloud.Publisher = NewPubSubPublisher(pc, config.Events.Topic)
	}
	for subKey, values := range config.TopicSubscriptions {
		if values.Name == "" {
			continue
		}
		listener, err := NewPubSubListener(pc, values.Name, nil)
		if err != nil {
			return nil, err
		}
		cloud.PubSubListeners[subKey] = listener
	}

	if config.Storage.OutputBucket != "" {
		sc, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		cloud.StorageClient = sc
		cloud.ObjectStore = NewGCSObjectStore(sc)
	}
	return cloud, nil
}

// NewGenerateContentConfig maps a model's settings to a genai request config.
func NewGenerateContentConfig(values VertexAiLLMModel) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](values.Temperature),
		TopP:             genai.Ptr[float32](values.TopP),
		TopK:             genai.Ptr[float32](values.TopK),
		MaxOutputTokens:  values.MaxTokens,
		SafetySettings:   DefaultSafetySettings,
		ResponseMIMEType: values.OutputFormat,
	}
	if values.SystemInstructions != "" {
		out.SystemInstruction = genai.NewContentFromText(values.SystemInstructions, genai.RoleUser)
	}
	return out
}

func newGenAIClient(ctx context.Context, config *Config, secrets Secrets) (*genai.Client, error) {
	var cc *genai.ClientConfig
	switch {
	case config.Application.GoogleProjectId != "":
		cc = &genai.ClientConfig{
			Project:  config.Application.GoogleProjectId,
			Location: config.Application.GoogleLocation,
			Backend:  genai.BackendVertexAI,
		}
	case secrets.GoogleAPIKey != "":
		cc = &genai.ClientConfig{
			APIKey:  secrets.GoogleAPIKey,
			Backend: genai.BackendGeminiAPI,
		}
	default:
		return nil, errors.New("gemini provider requires application.google_project_id or " + EnvGoogleAPIKey)
	}
	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return gc, nil
}
