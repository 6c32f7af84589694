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

// Package cloud defines the application configuration, loaded from TOML files,
// and the clients for every external service the pipeline calls: the vision
// models, the music catalog, the audio source, Pub/Sub and Cloud Storage.
//
// Structs:
//   - Server: HTTP listener and CORS settings.
//   - Storage: work directory, temp-asset TTL and the optional archive bucket.
//   - Vision: which provider analyzes frames.
//   - VertexAiLLMModel / OpenAIModel: per-provider model settings.
//   - PromptTemplates: the vibe prompt template.
//   - Catalog: music catalog endpoints and search limits.
//   - AudioSource: yt-dlp and YouTube Data API settings.
//   - Media: ffmpeg/ffprobe binaries.
//   - Events, TopicSubscription: Pub/Sub wiring.
//   - Config: the root of all of the above.
package cloud

import (
	"time"

	"google.golang.org/genai"
)

// DefaultSafetySettings disables blocking for every harm category. Frames are
// user uploads describing mood, not content we moderate.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Vision provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Duration wraps time.Duration so TOML values like "30m" decode directly.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for BurntSushi/toml.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Server holds the HTTP listener settings.
type Server struct {
	Port            int      `toml:"port"`             // Listen port.
	AllowedOrigins  []string `toml:"allowed_origins"`  // CORS origins; the frontend dev server by default.
	MaxUploadMB     int64    `toml:"max_upload_mb"`    // Upload size cap, also the multipart memory limit.
	ShutdownTimeout Duration `toml:"shutdown_timeout"` // Grace period for in-flight requests.
}

// Storage configures the temp-asset store.
type Storage struct {
	WorkDir       string   `toml:"work_dir"`       // Directory holding temp_video_*, temp_audio_* and final_* files.
	TTL           Duration `toml:"ttl"`            // Age after which a temp asset is reclaimed.
	SweepInterval Duration `toml:"sweep_interval"` // How often the sweeper runs.
	OutputBucket  string   `toml:"output_bucket"`  // GCS bucket for merge-job outputs. Empty disables archiving.
}

// Vision selects the frame analysis provider.
type Vision struct {
	Provider   string `toml:"provider"`    // "gemini" or "openai".
	AgentModel string `toml:"agent_model"` // Key into AgentModels for the gemini provider.
}

// VertexAiLLMModel configures a Gemini model served by the genai client.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`               // e.g. "gemini-2.0-flash".
	SystemInstructions string  `toml:"system_instructions"` // System instructions for the model.
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"` // Response MIME type, e.g. "application/json".
	RateLimit          int     `toml:"rate_limit"`    // Requests per second.
}

// OpenAIModel configures the OpenAI vision provider.
type OpenAIModel struct {
	Model       string  `toml:"model"`
	BaseURL     string  `toml:"base_url"` // Empty uses the public endpoint.
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	ImageDetail string  `toml:"image_detail"` // "low", "high" or "auto".
	RateLimit   int     `toml:"rate_limit"`   // Requests per second.
}

// PromptTemplates holds Go text/template sources for model prompts.
type PromptTemplates struct {
	VibePrompt string `toml:"vibe"` // Receives GENRES and EXAMPLE_JSON.
}

// Catalog configures the music catalog (Spotify Web API).
type Catalog struct {
	BaseURL           string   `toml:"base_url"`            // e.g. "https://api.spotify.com/v1".
	TokenURL          string   `toml:"token_url"`           // Client-credentials token endpoint.
	Market            string   `toml:"market"`              // Optional ISO market code.
	RecommendLimit    int      `toml:"recommend_limit"`     // Tracks requested per genre search.
	RecommendReturn   int      `toml:"recommend_return"`    // Tracks returned after normalization.
	RecommendMaxShift int      `toml:"recommend_max_shift"` // Upper bound (inclusive) of the random offset.
	SearchLimit       int      `toml:"search_limit"`        // Tracks requested for a manual search.
	MaxRetries        int      `toml:"max_retries"`         // Attempts for 429/5xx responses.
	RetryBackoff      Duration `toml:"retry_backoff"`       // Base backoff, doubled per attempt.
	RequestTimeout    Duration `toml:"request_timeout"`     // Per-request HTTP timeout.
}

// AudioSource configures the audio search-and-download utility.
type AudioSource struct {
	YtDlpPath       string   `toml:"yt_dlp_path"`      // Path to yt-dlp.
	AudioFormat     string   `toml:"audio_format"`     // Extracted audio codec, "mp3".
	AudioQuality    string   `toml:"audio_quality"`    // e.g. "192K".
	UseYouTubeAPI   bool     `toml:"use_youtube_api"`  // Resolve the video id with the Data API before downloading.
	DownloadTimeout Duration `toml:"download_timeout"` // Upper bound for one download.
}

// Media configures the ffmpeg tool chain.
type Media struct {
	FFMpegPath  string `toml:"ffmpeg_path"`
	FFProbePath string `toml:"ffprobe_path"`
	VideoCodec  string `toml:"video_codec"` // "libx264".
	AudioCodec  string `toml:"audio_codec"` // "aac".
	Preset      string `toml:"preset"`      // x264 preset.
}

// TopicSubscription configures one Pub/Sub subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Events configures lifecycle event publishing.
type Events struct {
	Topic string `toml:"topic"` // Empty disables publishing.
}

// Config is the root configuration.
type Config struct {
	Application struct {
		Name            string `toml:"name"`
		GoogleProjectId string `toml:"google_project_id"` // Enables Vertex AI, Pub/Sub, GCS and GCP exporters when set.
		GoogleLocation  string `toml:"location"`
		LogLevel        string `toml:"log_level"` // debug, info, warn, error.
		LogFile         string `toml:"log_file"`  // Optional file mirrored with stdout.
		ThreadPoolSize  int    `toml:"thread_pool_size"`
	} `toml:"application"`
	Server             Server                       `toml:"server"`
	Storage            Storage                      `toml:"storage"`
	Vision             Vision                       `toml:"vision"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	Catalog            Catalog                      `toml:"catalog"`
	AudioSource        AudioSource                  `toml:"audio_source"`
	Media              Media                        `toml:"media"`
	Events             Events                       `toml:"events"`
	OpenAI             OpenAIModel                  `toml:"openai"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Keyed by logical name, e.g. "merge_jobs".
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`        // Keyed by logical name, e.g. "vibe-flash".
}

// NewConfig returns a Config with maps initialized and working defaults, so
// an empty TOML still runs.
func NewConfig() *Config {
	c := &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
	c.Application.Name = "syncwave"
	c.Application.LogLevel = "info"
	c.Application.ThreadPoolSize = 3
	c.Server = Server{
		Port:            8000,
		AllowedOrigins:  []string{"http://localhost:3000"},
		MaxUploadMB:     64,
		ShutdownTimeout: Duration{5 * time.Second},
	}
	c.Storage = Storage{
		WorkDir:       ".",
		TTL:           Duration{time.Hour},
		SweepInterval: Duration{5 * time.Minute},
	}
	c.Vision = Vision{Provider: ProviderGemini, AgentModel: "vibe-flash"}
	c.Catalog = Catalog{
		BaseURL:           "https://api.spotify.com/v1",
		TokenURL:          "https://accounts.spotify.com/api/token",
		RecommendLimit:    10,
		RecommendReturn:   5,
		RecommendMaxShift: 50,
		SearchLimit:       10,
		MaxRetries:        3,
		RetryBackoff:      Duration{500 * time.Millisecond},
		RequestTimeout:    Duration{15 * time.Second},
	}
	c.AudioSource = AudioSource{
		YtDlpPath:       "yt-dlp",
		AudioFormat:     "mp3",
		AudioQuality:    "192K",
		DownloadTimeout: Duration{3 * time.Minute},
	}
	c.Media = Media{
		FFMpegPath:  "ffmpeg",
		FFProbePath: "ffprobe",
		VideoCodec:  "libx264",
		AudioCodec:  "aac",
		Preset:      "veryfast",
	}
	c.OpenAI = OpenAIModel{Model: "gpt-4o-mini", MaxTokens: 512, ImageDetail: "low", RateLimit: 2}
	return c
}
