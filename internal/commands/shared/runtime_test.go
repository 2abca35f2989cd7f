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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	SetConfigPathForTest(path)
	t.Cleanup(func() { SetConfigPathForTest("") })
}

func TestNewRuntime(t *testing.T) {
	writeConfig(t, "server:\n  url: https://flows.example.com/api/v1\n  namespace: data.team\nlog:\n  level: error\n")

	ctx := context.Background()
	rt, err := NewRuntime(ctx)
	require.NoError(t, err)
	defer rt.Close(ctx)

	assert.Equal(t, "https://flows.example.com/api/v1", rt.Client.BaseURL())
	assert.Equal(t, "data.team", rt.Config.Server.Namespace)
	assert.NotNil(t, rt.Engine)

	conv := rt.Conversation("conv-1")
	assert.Equal(t, "conv-1", conv.ID())
	assert.True(t, conv.SetDocument(ctx, "id: a\n"))
	doc, ok, err := rt.Conversation("conv-1").CurrentDocument(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "id: a\n", doc)
}

func TestNewRuntime_InvalidConfig(t *testing.T) {
	writeConfig(t, "server:\n  url: not-a-url\n")

	_, err := NewRuntime(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestNewRuntime_UnresolvableToken(t *testing.T) {
	writeConfig(t, "server:\n  api_token: env:FLOWGATE_TEST_TOKEN_THAT_IS_UNSET\nlog:\n  level: error\n")

	_, err := NewRuntime(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestNewLogger_FlagOverrides(t *testing.T) {
	writeConfig(t, "log:\n  level: info\n")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	flags.verbose = true
	t.Cleanup(func() { flags.verbose = false })
	assert.True(t, NewLogger(cfg).Enabled(context.Background(), -4))

	flags.verbose, flags.quiet = false, true
	t.Cleanup(func() { flags.quiet = false })
	assert.False(t, NewLogger(cfg).Enabled(context.Background(), 4))
}
