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
	"encoding/json"
	"errors"
	"io"

	flowerrors "github.com/tombee/flowgate/pkg/errors"
)

// jsonSchemaVersion is bumped when an envelope field changes meaning.
const jsonSchemaVersion = "1.0"

// JSONResponse is embedded in every --json payload.
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

func NewJSONResponse(command string, success bool) JSONResponse {
	return JSONResponse{Version: jsonSchemaVersion, Command: command, Success: success}
}

// JSONError is one failure in an error envelope. Code is the error category
// from pkg/errors, or "unknown".
type JSONError struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Details    []string `json:"details,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// NewJSONError classifies err for an error envelope.
func NewJSONError(err error) JSONError {
	je := JSONError{Code: flowerrors.TypeOf(err), Message: err.Error()}
	if d := flowerrors.Diagnostics(err); len(d) > 1 {
		je.Details = d
	}
	var v *flowerrors.ValidationError
	if errors.As(err, &v) {
		je.Suggestion = v.Suggestion
	}
	return je
}

// EmitJSON writes v as indented JSON followed by a newline.
func EmitJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// EmitJSONError writes a failed envelope for command.
func EmitJSONError(w io.Writer, command string, errs ...JSONError) error {
	return EmitJSON(w, struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}{NewJSONResponse(command, false), errs})
}
