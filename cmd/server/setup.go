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

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jaycherian/gcp-go-syncwave/internal/cloud"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/commands"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/services"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/workflow"
	"github.com/jaycherian/gcp-go-syncwave/internal/telemetry"
)

// MergeJobsSubscription is the topic_subscriptions key of the merge job
// listener.
const MergeJobsSubscription = "merge_jobs"

type StateManager struct {
	config   *cloud.Config
	cloud    *cloud.ServiceClients
	metrics  *telemetry.Metrics
	assets   *services.AssetStore
	pipeline *services.PipelineService
}

var state = &StateManager{}

// SetupOS defaults the configuration location to ./configs and the runtime
// to "local". Values already in the environment are kept.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

func GetConfig() *cloud.Config {
	if state.config == nil {
		err := SetupOS()
		if err != nil {
			log.Fatalf("failed to setup os: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load configuration: %v\n", err)
		}
		state.config = config
	}
	return state.config
}

// InitState builds the clients and services and starts the background work:
// the temp asset sweeper and the merge job listener.
func InitState(ctx context.Context) error {
	config := GetConfig()
	secrets := cloud.LoadSecrets(".env")

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config, secrets)
	if err != nil {
		return fmt.Errorf("failed to create cloud clients: %w", err)
	}
	state.cloud = cloudClients
	state.metrics = telemetry.NewMetrics()

	assets, err := services.NewAssetStore(config.Storage, state.metrics)
	if err != nil {
		return err
	}
	state.assets = assets

	runner := commands.ExecRunner{}
	var resolver commands.URLResolver
	if cloudClients.YouTube != nil {
		resolver = cloudClients.YouTube
	}
	audioSource := commands.NewYtDlpSource(runner, config.AudioSource, resolver)

	pipeline := &services.PipelineService{
		Assets:      assets,
		Vision:      services.NewVisionAnalyzer(config, cloudClients.Vision, runner),
		Recommender: services.NewTrackRecommender(cloudClients.Catalog, config.Catalog, state.metrics),
		Merger:      workflow.NewMergeWorkflow(config, audioSource, runner),
		Metrics:     state.metrics,
	}
	if cloudClients.Publisher != nil {
		pipeline.Publisher = cloudClients.Publisher
	}
	state.pipeline = pipeline

	assets.StartSweeper(ctx)
	SetupListeners(ctx, config, cloudClients)
	return nil
}

// SetupListeners runs merge jobs received on the merge_jobs subscription.
func SetupListeners(ctx context.Context, config *cloud.Config, cloudClients *cloud.ServiceClients) {
	listener, ok := cloudClients.PubSubListeners[MergeJobsSubscription]
	if !ok {
		return
	}
	var publisher cloud.EventPublisher
	if cloudClients.Publisher != nil {
		publisher = cloudClients.Publisher
	}
	mergeJobs := workflow.NewMergeJobWorkflow(state.pipeline, cloudClients.ObjectStore, config.Storage.OutputBucket, publisher)
	listener.SetCommand(mergeJobs)
	listener.Listen(ctx)
}
