// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tool defines the executable tool surface for Treadle agents.
//
// Tools are the only mechanism the agent has to act on the world. Each tool
// encapsulates a single capability behind a JSON Schema-typed input, and
// returns a Result that the control loop feeds back to the model verbatim.
package tool

import (
	"context"
)

// Tool defines the interface for executable tools in the agent framework.
type Tool interface {
	// Name returns the tool's unique identifier
	Name() string

	// Description returns a human-readable description for LLM context
	Description() string

	// InputSchema returns the JSON Schema for tool parameters
	InputSchema() *JSONSchema

	// SelectionHints returns keywords that suggest this tool is relevant to a
	// task, used by the tool selector when narrowing large catalogs.
	// Empty means the tool is matched on name and description alone.
	SelectionHints() []string

	// Execute runs the tool with given parameters
	Execute(ctx context.Context, params map[string]interface{}) (*Result, error)
}

// Result represents the outcome of tool execution.
type Result struct {
	// OK indicates if the tool executed successfully
	OK bool

	// Output contains the result text handed back to the model
	Output string

	// Error contains error information if execution failed
	Error *Error

	// Meta contains tool-specific metadata
	Meta map[string]interface{}

	// ExecutionTimeMs in milliseconds
	ExecutionTimeMs int64
}

// Error represents a tool execution error with structured information.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Details provides additional error context
	Details map[string]interface{}

	// Retryable indicates if the operation can be retried
	Retryable bool

	// Suggestion provides a suggestion for fixing the error
	Suggestion string
}

// Success builds a successful result with the given output.
func Success(output string) *Result {
	return &Result{OK: true, Output: output}
}

// Failure builds a failed result with a structured error.
func Failure(code, message string) *Result {
	return &Result{
		OK:    false,
		Error: &Error{Code: code, Message: message},
	}
}

// Common error codes returned by the executor and builtin tools.
const (
	ErrCodeNotFound     = "tool_not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeRepeatedCall = "repeated_call"
	ErrCodeExecution    = "execution_error"
	ErrCodePanic        = "tool_panic"
)
