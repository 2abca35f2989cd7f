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

package errors

import (
	"errors"
	"fmt"
)

// Wrap adds context to an error. Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. Returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error with the given message.
func New(message string) error {
	return errors.New(message)
}

// TypeOf returns the ErrorType of the first classified error in err's chain,
// or "unknown" when none is found.
func TypeOf(err error) string {
	if err == nil {
		return ""
	}
	var classified ErrorClassifier
	if errors.As(err, &classified) {
		return classified.ErrorType()
	}
	return "unknown"
}

// Diagnostics flattens an error into human-readable lines.
// StructuralError and RemoteRejection expand into their individual entries.
func Diagnostics(err error) []string {
	if err == nil {
		return nil
	}

	var structural *StructuralError
	if errors.As(err, &structural) && len(structural.Diagnostics) > 0 {
		return append([]string(nil), structural.Diagnostics...)
	}

	var rejection *RemoteRejection
	if errors.As(err, &rejection) && len(rejection.Details) > 0 {
		return append([]string(nil), rejection.Details...)
	}

	return []string{err.Error()}
}
