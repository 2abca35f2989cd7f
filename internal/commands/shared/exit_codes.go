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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	flowerrors "github.com/tombee/flowgate/pkg/errors"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitFailed          = 1
	ExitInvalidWorkflow = 2
	ExitPublishFailed   = 3
	ExitConfigError     = 4
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewInvalidWorkflowError creates an error for documents that cannot be made valid
func NewInvalidWorkflowError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidWorkflow, Message: msg, Cause: cause}
}

// NewPublishError creates an error for documents the remote did not store
func NewPublishError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitPublishFailed, Message: msg, Cause: cause}
}

// NewConfigError creates an error for unusable configuration
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// Silent returns an ExitError that prints nothing, for commands that have
// already reported the failure themselves.
func Silent(code int) *ExitError {
	return &ExitError{Code: code}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var cfgErr *flowerrors.ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfigError
	}
	return ExitFailed
}

// HandleExitError reports err and exits with its exit code. Under --json the
// report is an error envelope on stdout so agents always receive JSON.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	if GetJSON() {
		os.Exit(ReportJSONError(os.Stdout, "flowgate", err))
	}
	os.Exit(ReportError(os.Stderr, err))
}

// ReportError writes err and any suggestion to w and returns the exit code.
func ReportError(w io.Writer, err error) int {
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, "Error:", msg)
	}

	var validation *flowerrors.ValidationError
	if errors.As(err, &validation) && validation.Suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", validation.Suggestion)
	}
	return ExitCode(err)
}

// ReportJSONError is ReportError for --json. Silent errors write nothing,
// since the command has already emitted its own envelope.
func ReportJSONError(w io.Writer, command string, err error) int {
	if err.Error() != "" {
		_ = EmitJSONError(w, command, NewJSONError(err))
	}
	return ExitCode(err)
}
