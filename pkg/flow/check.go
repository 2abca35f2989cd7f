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

package flow

import (
	"errors"

	flowerrors "github.com/tombee/flowgate/pkg/errors"
)

// ValidationResult is the combined outcome of parsing, validating and repairing a document.
type ValidationResult struct {
	// Valid is true when no diagnostics remain, after repair when one was applied.
	Valid bool `json:"valid"`

	// Errors are the diagnostics of the document as submitted.
	Errors []string `json:"errors"`

	// Remaining are the diagnostics still present after repair.
	// Equal to Errors when no repair applied.
	Remaining []string `json:"remaining"`

	// Fixes describes each repair that was applied.
	Fixes []string `json:"fixes"`

	// Document is the parsed input; nil on syntax errors.
	Document *Document `json:"-"`

	// Fixed is the repaired document, present only when a repair applied and re-parsed.
	Fixed *Document `json:"-"`

	// Err is the syntax error that stopped the check, if any.
	Err error `json:"-"`

	// RepairErr is set when a repair pass was discarded; the original diagnostics stand.
	RepairErr error `json:"-"`
}

// Final returns the document a caller should continue with: the repaired copy
// when there is one, else the parsed input.
func (r *ValidationResult) Final() *Document {
	if r.Fixed != nil {
		return r.Fixed
	}
	return r.Document
}

// CheckOptions configures Check.
type CheckOptions struct {
	Repair RepairOptions

	// SkipRepair reports diagnostics without attempting any fix.
	SkipRepair bool
}

// Check parses text, validates it and, unless disabled, runs a repair pass.
// Repair is attempted even for documents that validate, since some defects
// (such as a numeric retry) are normalized proactively.
func Check(text []byte, opts CheckOptions) *ValidationResult {
	doc, err := Parse(text)
	if err != nil {
		return &ValidationResult{
			Errors:    []string{err.Error()},
			Remaining: []string{err.Error()},
			Err:       err,
		}
	}
	return CheckDocument(doc, opts)
}

// CheckDocument is Check for an already parsed document.
func CheckDocument(doc *Document, opts CheckOptions) *ValidationResult {
	diags := Validate(doc)
	result := &ValidationResult{
		Errors:    diags,
		Remaining: diags,
		Document:  doc,
	}

	if !opts.SkipRepair {
		outcome, err := Repair(doc, opts.Repair)
		switch {
		case err != nil:
			result.RepairErr = err
		case outcome.Modified:
			result.Fixed = outcome.Document
			result.Fixes = outcome.Fixes
			result.Remaining = Validate(outcome.Document)
		}
	}

	result.Valid = len(result.Remaining) == 0
	return result
}

// AsError converts an invalid result into a typed error: the SyntaxError that
// stopped it, or a StructuralError listing remaining diagnostics, joined with
// the RepairFailure when a repair was discarded.
func (r *ValidationResult) AsError() error {
	if r.Valid {
		return nil
	}
	if r.Err != nil {
		return r.Err
	}
	structural := &flowerrors.StructuralError{Diagnostics: r.Remaining}
	if r.RepairErr != nil {
		return errors.Join(structural, r.RepairErr)
	}
	return structural
}
