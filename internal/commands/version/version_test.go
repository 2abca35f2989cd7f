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

package version

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/flowgate/internal/commands/shared"
)

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand()

	assert.Equal(t, "version", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
}

func TestVersionOutput(t *testing.T) {
	shared.SetVersion("1.0.0", "test123", "2025-12-22")
	defer shared.SetVersion("dev", "unknown", "unknown")

	cmd := NewVersionCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "flowgate version 1.0.0")
	assert.Contains(t, output, "test123")
	assert.Contains(t, output, runtime.GOOS+"/"+runtime.GOARCH)
	assert.Contains(t, output, mcp.LATEST_PROTOCOL_VERSION)
}

func TestVersionJSONOutput(t *testing.T) {
	shared.SetVersion("1.0.0", "test123", "2025-12-22")
	shared.SetJSONForTest(true)
	defer func() {
		shared.SetVersion("dev", "unknown", "unknown")
		shared.SetJSONForTest(false)
	}()

	cmd := NewVersionCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	var info VersionInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info), buf.String())
	assert.Equal(t, "version", info.Command)
	assert.True(t, info.Success)
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, "test123", info.Commit)
	assert.Equal(t, "2025-12-22", info.BuildDate)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestCollect_KeepsLinkerValues(t *testing.T) {
	shared.SetVersion("2.0.0", "abc", "today")
	defer shared.SetVersion("dev", "unknown", "unknown")

	info := Collect()
	assert.Equal(t, "2.0.0", info.Version)
	assert.Equal(t, "abc", info.Commit)
	assert.Equal(t, "today", info.BuildDate)
}
