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

package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure so the API layer can choose a status
// code. Upstream failures and malformed upstream output share ServiceUnavailable.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindServiceUnavailable
	KindInvalidInput
	KindNotFound
)

// String returns the snake_case name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// PipelineError is the error value crossing component boundaries. Op names the
// operation that failed (e.g. "analyze_vibe"); Err holds the cause.
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewPipelineError wraps err with a kind and operation name.
func NewPipelineError(kind ErrorKind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// Errorf builds a PipelineError from a format string.
func Errorf(kind ErrorKind, op string, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Error returns the cause message only. Callers see the human-readable cause,
// never the operation chain.
func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first PipelineError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// ErrorPayload is the wire shape of every failure: {"error": "<message>"}.
type ErrorPayload struct {
	Error string `json:"error"`
}
