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

// Package cor (Chain of Responsibility) provides the building blocks the
// pipeline workflows are assembled from: commands, chains of commands, and the
// shared context that carries data, errors and temp files between them.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys a BaseChain pipes between consecutive commands:
// whatever a command leaves under CtxOut becomes the next command's CtxIn.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"
)

// Context is the per-execution property bag passed through a chain.
type Context interface {
	// SetContext replaces the Go context (deadline, cancellation, span).
	SetContext(context context.Context)
	// GetContext returns the current Go context.
	GetContext() context.Context

	// Add stores a value under key and returns the Context for chaining.
	Add(key string, value interface{}) Context
	// Get returns the value stored under key, or nil.
	Get(key string) interface{}
	// Remove deletes key.
	Remove(key string)

	// AddError records a failure under the name of the command that produced it.
	AddError(key string, err error)
	// GetErrors returns all recorded failures keyed by command name.
	GetErrors() map[string]error
	// HasErrors reports whether any failure was recorded.
	HasErrors() bool
	// Err joins the recorded failures in the order they were added, or nil.
	Err() error

	// AddTempFile registers a path that Close removes.
	AddTempFile(file string)
	// GetTempFiles lists the registered paths.
	GetTempFiles() []string
	// Close removes every registered temp file. Defer it after creating a context.
	Close()
}

// Executable is anything with a unit of work driven by a Context.
type Executable interface {
	Execute(context Context)
}

// Command is an atomic step of a workflow.
type Command interface {
	Executable

	GetName() string
	GetInputParam() string
	GetOutputParam() string

	// IsExecutable is the precondition checked by a chain before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered sequence of commands and is itself a Command, so chains
// nest.
type Chain interface {
	Command

	// ContinueOnFailure keeps executing after a command records an error.
	ContinueOnFailure(bool) Chain
	// AddCommand appends a step.
	AddCommand(command Command) Chain
	// AddFinally appends a step that runs after the main steps whether or not
	// they failed. Finally steps are used for cleanup.
	AddFinally(command Command) Chain
}
