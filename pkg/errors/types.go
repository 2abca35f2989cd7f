// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors defines the error taxonomy shared by the flowgate packages.
//
// Document-level failures (SyntaxError, StructuralError, RepairFailure) stop a
// pipeline before any network call. Remote failures (ConflictError,
// RemoteRejection, TransportError) are produced by the remote client and
// classified by the publisher into publication outcomes.
package errors

import (
	"fmt"
	"strings"
)

// ErrorClassifier is implemented by every error type in this package.
type ErrorClassifier interface {
	error

	// ErrorType returns a string identifying the error category.
	ErrorType() string

	// IsRetryable reports whether repeating the same operation could succeed.
	IsRetryable() bool
}

// ValidationError represents user input validation failures.
// Use this for invalid flags, arguments, or configuration values.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) ErrorType() string { return "validation" }
func (e *ValidationError) IsRetryable() bool { return false }

// NotFoundError represents a missing resource, locally or on the remote engine.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "flow", "execution", "document")
	Resource string

	// ID is the identifier that was not found
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) ErrorType() string { return "not_found" }
func (e *NotFoundError) IsRetryable() bool { return false }

// ConfigError represents configuration problems.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "remote.base_url")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

func (e *ConfigError) ErrorType() string { return "config" }
func (e *ConfigError) IsRetryable() bool { return false }

// SyntaxError is returned when document text cannot be parsed at all.
// No repair is attempted for syntax errors.
type SyntaxError struct {
	// Line and Column locate the error when the parser reports them (1-based, 0 if unknown).
	Line   int
	Column int

	// Message is the parser diagnostic
	Message string

	// Cause is the underlying parser error
	Cause error
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("syntax error at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("syntax error: %s", e.Message)
}

func (e *SyntaxError) Unwrap() error { return e.Cause }

func (e *SyntaxError) ErrorType() string { return "syntax" }
func (e *SyntaxError) IsRetryable() bool { return false }

// StructuralError is returned when a document parses but violates the minimal schema.
type StructuralError struct {
	// Diagnostics lists every violation in document order.
	Diagnostics []string
}

func (e *StructuralError) Error() string {
	switch len(e.Diagnostics) {
	case 0:
		return "structural error"
	case 1:
		return "structural error: " + e.Diagnostics[0]
	default:
		return fmt.Sprintf("structural errors (%d): %s", len(e.Diagnostics), strings.Join(e.Diagnostics, "; "))
	}
}

func (e *StructuralError) ErrorType() string { return "structural" }
func (e *StructuralError) IsRetryable() bool { return false }

// RepairFailure is returned when a repair pass produced text that does not re-parse.
// The repaired document is discarded and the original diagnostics stand.
type RepairFailure struct {
	// Fixes are the fixes that were attempted before the failure
	Fixes []string

	// Cause is the re-parse error
	Cause error
}

func (e *RepairFailure) Error() string {
	return fmt.Sprintf("repair discarded after %d fixes: %v", len(e.Fixes), e.Cause)
}

func (e *RepairFailure) Unwrap() error { return e.Cause }

func (e *RepairFailure) ErrorType() string { return "repair" }
func (e *RepairFailure) IsRetryable() bool { return false }

// ConflictError reports that the remote engine already holds an object with the requested identifier.
type ConflictError struct {
	Namespace  string
	ID         string
	StatusCode int
	Message    string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("flow %s/%s already exists", e.Namespace, e.ID)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	return msg
}

func (e *ConflictError) ErrorType() string { return "conflict" }

// IsRetryable is true because a conflict is resolved by renaming and resubmitting.
func (e *ConflictError) IsRetryable() bool { return true }

// RemoteRejection reports a schema or semantic rejection by the remote engine.
type RemoteRejection struct {
	StatusCode int
	Message    string

	// Details are the individual error messages extracted from a structured error body.
	Details []string
}

func (e *RemoteRejection) Error() string {
	msg := fmt.Sprintf("remote rejected request [HTTP %d]", e.StatusCode)
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	return msg
}

func (e *RemoteRejection) ErrorType() string { return "rejected" }
func (e *RemoteRejection) IsRetryable() bool { return false }

// TransportError reports a network-level failure talking to the remote engine.
type TransportError struct {
	// Op is the operation being attempted (e.g., "create flow")
	Op string

	// URL is the sanitized request URL
	URL string

	// Cause is the underlying network error
	Cause error
}

func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s: transport error calling %s: %v", e.Op, e.URL, e.Cause)
	}
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

func (e *TransportError) ErrorType() string { return "transport" }

// IsRetryable is false at this layer; the publisher never retries transport failures.
func (e *TransportError) IsRetryable() bool { return false }
