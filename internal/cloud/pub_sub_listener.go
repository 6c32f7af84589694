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

// Package cloud. This file defines a Pub/Sub listener that hands every
// message to a cor.Command.
//
// Logic Flow:
//  1. A listener is created for a subscription; the command is attached once
//     the workflows are built.
//  2. Listen starts a goroutine that receives messages until ctx is cancelled.
//  3. Each message runs the command with the message body under cor.CtxIn.
//  4. A message is acked when the chain records no error, or when the error is
//     permanent (invalid input, an expired video): redelivery cannot fix it.
//     Other failures are nacked so the subscription's retry and dead-letter
//     policy applies.
package cloud

import (
	"context"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/cor"
	"github.com/jaycherian/gcp-go-syncwave/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PubSubListener connects a subscription to a processing command.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

// NewPubSubListener creates a listener. command may be nil and set later.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches a command unless one is already set.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen receives messages in the background until ctx is done.
func (m *PubSubListener) Listen(ctx context.Context) {
	if m.command == nil {
		slog.Warn("listener has no command, not listening", "subscription", m.subscription.ID())
		return
	}
	slog.Info("listening", "subscription", m.subscription.ID())

	go func() {
		tracer := otel.Tracer("message-listener")
		err := m.subscription.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(msgCtx, "receive-message")
			defer span.End()
			span.SetAttributes(
				attribute.String("message_id", msg.ID),
				attribute.Int("size", len(msg.Data)),
			)

			if ProcessMessage(spanCtx, m.command, msg.Data) {
				span.SetStatus(codes.Ok, "settled")
				msg.Ack()
				return
			}
			span.SetStatus(codes.Error, "failed")
			msg.Nack()
		})
		if err != nil {
			slog.Error("error receiving data", "subscription", m.subscription.ID(), "error", err)
		}
	}()
}

// ProcessMessage runs command with data as its input and reports whether the
// message should be acked.
func ProcessMessage(ctx context.Context, command cor.Command, data []byte) bool {
	chainCtx := cor.NewContextWithInput(ctx, string(data))
	defer chainCtx.Close()

	command.Execute(chainCtx)
	if !chainCtx.HasErrors() {
		return true
	}
	for key, e := range chainCtx.GetErrors() {
		slog.ErrorContext(ctx, "error executing chain", "command", key, "error", e)
	}
	switch model.KindOf(chainCtx.Err()) {
	case model.KindInvalidInput, model.KindNotFound:
		slog.WarnContext(ctx, "dropping message that cannot succeed", "kind", model.KindOf(chainCtx.Err()).String())
		return true
	default:
		return false
	}
}
