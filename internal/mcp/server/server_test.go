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

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/flowgate/internal/bridge/memory"
	"github.com/tombee/flowgate/internal/engine"
	"github.com/tombee/flowgate/internal/log"
	"github.com/tombee/flowgate/internal/remote"
	"github.com/tombee/flowgate/pkg/flow"
)

const helloFlow = "id: hello\nnamespace: company.team\ntasks:\n  - id: say\n    type: log\n"

// newTestServer returns a server whose remote accepts every create, and a
// counter of create calls.
func newTestServer(t *testing.T, opts ...func(*Config)) (*Server, *atomic.Int32) {
	t.Helper()

	var creates atomic.Int32
	remoteSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		creates.Add(1)
		doc, err := flow.Parse(body)
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": doc.ID(), "namespace": doc.Namespace()})
	}))
	t.Cleanup(remoteSrv.Close)

	client, err := remote.New(remoteSrv.URL, remote.WithHTTPClient(remoteSrv.Client()), remote.WithLogger(log.Discard()))
	require.NoError(t, err)

	cfg := Config{
		Engine: engine.New(client, engine.WithLogger(log.Discard())),
		Store:  memory.New(),
		Logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s, err := New(cfg)
	require.NoError(t, err)
	return s, &creates
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, result.IsError, resultText(t, result))
	var v T
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &v))
	return v
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestValidate_ReportsFixes(t *testing.T) {
	s, creates := newTestServer(t)

	result := callTool(t, s.handleValidate, "flow_validate", map[string]any{
		"document": "id: a\ntasks:\n  - id: t1\n    type: log\n    retry: \"3\"\n",
	})
	resp := decode[ValidateResponse](t, result)

	assert.True(t, resp.Valid)
	assert.Equal(t, []string{"namespace is required"}, resp.Errors)
	assert.Empty(t, resp.Remaining)
	assert.Len(t, resp.Fixes, 2)
	assert.Contains(t, resp.FixedDocument, "maxAttempt: 3")
	assert.Zero(t, creates.Load())
}

func TestValidate_SaveFixedToConversation(t *testing.T) {
	s, _ := newTestServer(t)

	callTool(t, s.handleSetCurrent, "flow_set_current", map[string]any{
		"conversation_id": "c1",
		"document":        "id: a\ntasks:\n  - id: t1\n    type: log\n",
	})

	resp := decode[ValidateResponse](t, callTool(t, s.handleValidate, "flow_validate", map[string]any{
		"conversation_id": "c1",
		"save_fixed":      true,
	}))
	assert.True(t, resp.Saved)

	current := decode[map[string]any](t, callTool(t, s.handleGetCurrent, "flow_get_current", map[string]any{
		"conversation_id": "c1",
	}))
	assert.Equal(t, true, current["found"])
	assert.Contains(t, current["document"], "namespace: company.team")
}

func TestPublish_FromConversation(t *testing.T) {
	s, creates := newTestServer(t)

	callTool(t, s.handleSetCurrent, "flow_set_current", map[string]any{
		"conversation_id": "c1",
		"document":        helloFlow,
	})

	resp := decode[PublishResponse](t, callTool(t, s.handlePublish, "flow_publish", map[string]any{
		"conversation_id": "c1",
		"purpose":         "Say hello",
	}))

	assert.True(t, resp.Published)
	assert.Equal(t, engine.StageDone, resp.Stage)
	assert.Regexp(t, `^say-hello-[0-9a-z]+-[0-9a-z]{8}$`, resp.ID)
	assert.Equal(t, "company.team", resp.Namespace)
	assert.Len(t, resp.Attempts, 1)
	assert.EqualValues(t, 1, creates.Load())
}

func TestPublish_InvalidDocumentIsStructured(t *testing.T) {
	s, creates := newTestServer(t)

	resp := decode[PublishResponse](t, callTool(t, s.handlePublish, "flow_publish", map[string]any{
		"document": `{id: "", namespace: "", tasks: []}`,
	}))

	assert.False(t, resp.Published)
	assert.Equal(t, engine.StageCheck, resp.Stage)
	assert.Equal(t, []string{"id must not be empty", "tasks: at least one task required"}, resp.Diagnostics)
	assert.NotEmpty(t, resp.Error)
	assert.Zero(t, creates.Load())
}

func TestPublish_NoDocumentIsToolError(t *testing.T) {
	s, _ := newTestServer(t)

	result := callTool(t, s.handlePublish, "flow_publish", map[string]any{"conversation_id": "empty"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no document")
}

func TestCurrentDocument_RequiresConversation(t *testing.T) {
	s, _ := newTestServer(t)

	assert.True(t, callTool(t, s.handleGetCurrent, "flow_get_current", map[string]any{}).IsError)
	assert.True(t, callTool(t, s.handleSetCurrent, "flow_set_current", map[string]any{"conversation_id": "c1"}).IsError)

	current := decode[map[string]any](t, callTool(t, s.handleGetCurrent, "flow_get_current", map[string]any{
		"conversation_id": "unknown",
	}))
	assert.Equal(t, false, current["found"])
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(c *Config) {
		c.RateLimit = 0.001
		c.Burst = 2
	})

	args := map[string]any{"document": helloFlow}
	assert.False(t, callTool(t, s.handleValidate, "flow_validate", args).IsError)
	assert.False(t, callTool(t, s.handleValidate, "flow_validate", args).IsError)

	limited := callTool(t, s.handleValidate, "flow_validate", args)
	assert.True(t, limited.IsError)
	assert.Contains(t, resultText(t, limited), "rate limit")
}
