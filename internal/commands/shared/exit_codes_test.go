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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/tombee/flowgate/pkg/errors"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailed},
		{"invalid workflow", NewInvalidWorkflowError("bad", nil), ExitInvalidWorkflow},
		{"publish failed", NewPublishError("rejected", nil), ExitPublishFailed},
		{"config exit error", NewConfigError("bad config", nil), ExitConfigError},
		{"wrapped config error", fmt.Errorf("load: %w", &flowerrors.ConfigError{Key: "server.url", Reason: "bad"}), ExitConfigError},
		{"silent", Silent(ExitPublishFailed), ExitPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	cause := errors.New("connection refused")

	assert.Equal(t, "publish failed: connection refused", NewPublishError("publish failed", cause).Error())
	assert.Equal(t, "connection refused", NewPublishError("", cause).Error())
	assert.Equal(t, "", Silent(ExitFailed).Error())
	assert.ErrorIs(t, NewPublishError("publish failed", cause), cause)
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	err := &flowerrors.ValidationError{Field: "id", Message: "id is required", Suggestion: "Pass --id"}

	code := ReportError(&buf, err)
	assert.Equal(t, ExitFailed, code)
	assert.Contains(t, buf.String(), "Error: ")
	assert.Contains(t, buf.String(), "Suggestion: Pass --id")

	buf.Reset()
	code = ReportError(&buf, Silent(ExitInvalidWorkflow))
	assert.Equal(t, ExitInvalidWorkflow, code)
	assert.Empty(t, buf.String())
}

func TestReportJSONError(t *testing.T) {
	var buf bytes.Buffer
	err := NewConfigError("failed to load config", &flowerrors.ConfigError{Key: "server.url", Reason: "must be absolute"})

	code := ReportJSONError(&buf, "flowgate", err)
	assert.Equal(t, ExitConfigError, code)

	var got struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got), buf.String())
	assert.False(t, got.Success)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "config", got.Errors[0].Code)
	assert.Contains(t, got.Errors[0].Message, "server.url")

	buf.Reset()
	assert.Equal(t, ExitPublishFailed, ReportJSONError(&buf, "flowgate", Silent(ExitPublishFailed)))
	assert.Empty(t, buf.String())
}

func TestNewJSONError(t *testing.T) {
	je := NewJSONError(&flowerrors.ValidationError{Field: "id", Message: "id is required", Suggestion: "Pass --id"})
	assert.Equal(t, "validation", je.Code)
	assert.Equal(t, "Pass --id", je.Suggestion)

	je = NewJSONError(errors.New("boom"))
	assert.Equal(t, "unknown", je.Code)
	assert.Empty(t, je.Details)
}
