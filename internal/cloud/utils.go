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

// Package cloud. This file holds general helpers for the package.
//
// Functions:
//   - LoadConfig: hierarchical configuration loader. A base file is read first,
//     then an environment-specific file (e.g. .env.test.toml) overwrites it.
//   - LoadSecrets: pulls API credentials from the process environment,
//     optionally seeded from a .env file.
//   - GenerateMultiModalResponse: calls a Gemini model and records token
//     usage, returning the response text without markdown fences.
//   - StripCodeFence: removes ```json / ``` wrappers from model output.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const (
	ConfigFileBaseName  = ".env"              // Base name for configuration files (".env.toml").
	ConfigFileExtension = ".toml"             // Extension for configuration files.
	ConfigSeparator     = "."                 // Separator used in ".env.<runtime>.toml".
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // Directory holding the config files.
	EnvConfigRuntime    = "GCP_RUNTIME"       // Runtime name, e.g. "local", "test", "prod".
	MaxRetries          = 3                   // Retries for a transient model failure.
)

// Environment variables carrying credentials. The names match the frontend
// deployment's existing .env files.
const (
	EnvGoogleAPIKey        = "GOOGLE_API_KEY"
	EnvSpotifyClientID     = "SPOTIPY_CLIENT_ID"
	EnvSpotifyClientSecret = "SPOTIPY_CLIENT_SECRET"
	EnvOpenAIAPIKey        = "OPENAI_API_KEY"
	EnvYouTubeAPIKey       = "YOUTUBE_API_KEY"
)

// Secrets are credentials that never live in the TOML files.
type Secrets struct {
	GoogleAPIKey        string
	SpotifyClientID     string
	SpotifyClientSecret string
	OpenAIAPIKey        string
	YouTubeAPIKey       string
}

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig decodes the base configuration file and then the runtime
// specific file into baseConfig. Values in the runtime file win.
//
// Inputs:
//   - baseConfig: a pointer to the struct being populated.
//
// Outputs:
//   - error: a decode failure. Missing files are not an error.
func LoadConfig(baseConfig interface{}) error {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension
	slog.Debug("loading configuration", "base", baseConfigFileName, "runtime", envConfigFileName)

	if fileExists(baseConfigFileName) {
		if _, err := toml.DecodeFile(baseConfigFileName, baseConfig); err != nil {
			return fmt.Errorf("failed to decode base configuration file %s: %w", baseConfigFileName, err)
		}
	}
	if fileExists(envConfigFileName) {
		if _, err := toml.DecodeFile(envConfigFileName, baseConfig); err != nil {
			return fmt.Errorf("failed to decode environment configuration file %s: %w", envConfigFileName, err)
		}
	}
	return nil
}

// LoadSecrets reads credentials from the environment. Each dotenv file that
// exists is loaded first; godotenv never overrides variables already set.
func LoadSecrets(dotEnvFiles ...string) Secrets {
	for _, f := range dotEnvFiles {
		if !fileExists(f) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			slog.Warn("failed to load dotenv file", "file", f, "error", err)
		}
	}
	return Secrets{
		GoogleAPIKey:        os.Getenv(EnvGoogleAPIKey),
		SpotifyClientID:     os.Getenv(EnvSpotifyClientID),
		SpotifyClientSecret: os.Getenv(EnvSpotifyClientSecret),
		OpenAIAPIKey:        os.Getenv(EnvOpenAIAPIKey),
		YouTubeAPIKey:       os.Getenv(EnvYouTubeAPIKey),
	}
}

// GenerateMultiModalResponse executes a multi-modal request against a Gemini
// model and records token usage. Retries belong to the model wrapper.
//
// Inputs:
//   - ctx: request context.
//   - inputTokenCounter, outputTokenCounter: OTel counters, may be nil.
//   - model: the rate-limited model.
//   - content: the prompt contents.
//
// Outputs:
//   - string: the concatenated response text, fences removed.
//   - error: the model failure.
func GenerateMultiModalResponse(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	model *QuotaAwareGenerativeAIModel,
	content []*genai.Content) (value string, err error) {
	resp, err := model.GenerateContent(ctx, content)
	if err != nil {
		return "", err
	}
	if resp.UsageMetadata != nil {
		if inputTokenCounter != nil {
			inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		}
		if outputTokenCounter != nil {
			outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
		}
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return StripCodeFence(sb.String()), nil
}

// StripCodeFence removes a leading ```json (or ```) and a trailing ``` from
// model output, plus surrounding whitespace.
func StripCodeFence(in string) string {
	out := strings.TrimSpace(in)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```JSON")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}
