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

// Package cor (Chain of Responsibility). This file defines `BaseChain`.
//
// Logic Flow:
//  1. A span is opened for the whole chain.
//  2. Each command runs in its own child span. When an earlier command has
//     recorded an error (and continueOnFailure is false) the remaining main
//     commands are skipped.
//  3. After each successful command the value under CtxOut is moved to CtxIn,
//     piping one command's output into the next. A failed command leaves CtxIn
//     untouched so a chain that continues on failure still has an input.
//  4. Finally commands run last, always, with the chain's Go context. They see
//     the errors recorded so far and are expected to only clean up.
//  5. The chain span is closed with Ok or Error depending on the context.
package cor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BaseChain is the default Chain.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool
	commands          []Command
	finally           []Command
}

// NewBaseChain creates an empty chain named name.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

func (c *BaseChain) AddFinally(command Command) Chain {
	c.finally = append(c.finally, command)
	return c
}

// IsExecutable only needs a Go context; input checks belong to the first command.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil
}

// Execute runs the main commands, then the finally commands.
func (c *BaseChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()
	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()

	for _, command := range c.commands {
		if chCtx.HasErrors() && !c.continueOnFailure {
			_, skipped := c.Tracer.Start(outerCtx, command.GetName())
			skipped.SetStatus(codes.Error, "previous error on chain; skipping execution")
			skipped.End()
			break
		}
		c.run(chCtx, outerCtx, command, true)
	}

	for _, command := range c.finally {
		c.run(chCtx, outerCtx, command, false)
	}

	// Leave the caller's Go context in place, not the chain span's.
	chCtx.SetContext(parentCtx)

	if chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Error, "chain failed to execute")
	} else {
		chainSpan.SetStatus(codes.Ok, "chain completed successfully")
	}
}

// run executes one command inside its own span. pipe controls whether the
// command's CtxOut is promoted to CtxIn afterwards.
func (c *BaseChain) run(chCtx Context, outerCtx context.Context, command Command, pipe bool) {
	commandContext, commandSpan := c.Tracer.Start(outerCtx, command.GetName())
	defer commandSpan.End()

	errorsBefore := len(chCtx.GetErrors())
	failed := false
	if command.IsExecutable(chCtx) {
		chCtx.SetContext(commandContext)
		command.Execute(chCtx)
		// Reset so the next command's span is a sibling, not a grandchild.
		chCtx.SetContext(outerCtx)
		failed = len(chCtx.GetErrors()) > errorsBefore
		markSpan(commandSpan, failed)
	} else {
		commandSpan.SetStatus(codes.Error, fmt.Sprintf("command not executable: %s", command.GetName()))
	}

	if !pipe {
		return
	}
	if failed {
		chCtx.Remove(CtxOut)
		return
	}
	outputValue := chCtx.Get(CtxOut)
	chCtx.Remove(CtxIn)
	if outputValue != nil {
		chCtx.Add(CtxIn, outputValue)
	}
	chCtx.Remove(CtxOut)
}

func markSpan(span trace.Span, failed bool) {
	if failed {
		span.SetStatus(codes.Error, "error during command execution")
		return
	}
	span.SetStatus(codes.Ok, "command completed successfully")
}
