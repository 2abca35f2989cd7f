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
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tombee/flowgate/internal/engine"
	"github.com/tombee/flowgate/internal/log"
	"github.com/tombee/flowgate/internal/publish"
	"github.com/tombee/flowgate/internal/tracing"
)

// errRateLimited is reported when a call exceeds the configured rate.
var errRateLimited = errors.New("rate limit exceeded, try again later")

// ValidateResponse is the flow_validate result.
type ValidateResponse struct {
	Valid         bool     `json:"valid"`
	Errors        []string `json:"errors"`
	Remaining     []string `json:"remaining"`
	Fixes         []string `json:"fixes"`
	FixedDocument string   `json:"fixed_document,omitempty"`
	Saved         bool     `json:"saved,omitempty"`
}

// PublishResponse is the flow_publish result.
type PublishResponse struct {
	Published   bool              `json:"published"`
	Stage       engine.Stage      `json:"stage"`
	ID          string            `json:"id,omitempty"`
	Namespace   string            `json:"namespace,omitempty"`
	ExternalURL string            `json:"external_url,omitempty"`
	Attempts    []publish.Attempt `json:"attempts,omitempty"`
	Diagnostics []string          `json:"diagnostics,omitempty"`
	Fixes       []string          `json:"fixes,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// call applies rate limiting, a correlation id and call logging around fn.
// A returned error becomes a tool error result.
func (s *Server) call(ctx context.Context, tool, conversationID string, fn func(ctx context.Context) (any, map[string]any, error)) (*mcp.CallToolResult, error) {
	if !s.limiter.AllowCall() {
		toolCallsTotal.WithLabelValues(tool, "rate_limited").Inc()
		return errorResponse(errRateLimited.Error()), nil
	}

	ctx, correlationID := tracing.EnsureContext(ctx)
	var result any
	_, err := s.tools.Handle(ctx, &log.ToolCall{
		Tool:           tool,
		CorrelationID:  correlationID.String(),
		ConversationID: conversationID,
	}, func() (map[string]any, error) {
		var metadata map[string]any
		var err error
		result, metadata, err = fn(ctx)
		return metadata, err
	})
	if err != nil {
		toolCallsTotal.WithLabelValues(tool, "error").Inc()
		return errorResponse(err.Error()), nil
	}
	toolCallsTotal.WithLabelValues(tool, "ok").Inc()
	return jsonResponse(result), nil
}

func documentArg(request mcp.CallToolRequest) ([]byte, error) {
	text := request.GetString("document", "")
	if len(text) > maxDocumentSize {
		return nil, fmt.Errorf("document exceeds maximum size of %d bytes", maxDocumentSize)
	}
	return []byte(text), nil
}

// handleValidate implements the flow_validate tool.
func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID := request.GetString("conversation_id", "")
	return s.call(ctx, "flow_validate", conversationID, func(ctx context.Context) (any, map[string]any, error) {
		text, err := documentArg(request)
		if err != nil {
			return nil, nil, err
		}
		conv := s.conversation(conversationID)

		report, err := s.engine.Validate(ctx, engine.Request{
			Text:         text,
			Conversation: conv,
			Namespace:    request.GetString("namespace", ""),
		})
		if err != nil {
			return nil, nil, err
		}

		v := report.Validation
		resp := ValidateResponse{
			Valid:     v.Valid,
			Errors:    nonNil(v.Errors),
			Remaining: nonNil(v.Remaining),
			Fixes:     nonNil(v.Fixes),
		}
		if v.Fixed != nil {
			resp.FixedDocument = string(v.Fixed.Raw())
			if conv != nil && request.GetBool("save_fixed", false) {
				resp.Saved = conv.SetDocument(ctx, resp.FixedDocument)
			}
		}
		return resp, map[string]any{"valid": v.Valid, "fixes": len(v.Fixes)}, nil
	})
}

// handlePublish implements the flow_publish tool. Pipeline failures are
// returned as a structured result rather than a tool error so the agent can
// act on the diagnostics.
func (s *Server) handlePublish(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID := request.GetString("conversation_id", "")
	return s.call(ctx, "flow_publish", conversationID, func(ctx context.Context) (any, map[string]any, error) {
		text, err := documentArg(request)
		if err != nil {
			return nil, nil, err
		}

		report, err := s.engine.Publish(ctx, engine.Request{
			Text:         text,
			Conversation: s.conversation(conversationID),
			ExplicitID:   request.GetString("id", ""),
			PurposeHint:  request.GetString("purpose", ""),
			Namespace:    request.GetString("namespace", ""),
			ServerURL:    request.GetString("server_url", ""),
			UIBaseURL:    request.GetString("ui_url", ""),
			Update:       request.GetBool("update", false),
		})
		if errors.Is(err, engine.ErrNoDocument) {
			return nil, nil, err
		}

		resp := publishResponse(report)
		return resp, map[string]any{"stage": string(resp.Stage), "published": resp.Published}, nil
	})
}

func publishResponse(report *engine.Report) PublishResponse {
	resp := PublishResponse{
		Published: report.Published(),
		Stage:     report.Stage,
		Error:     report.Error,
	}
	if v := report.Validation; v != nil {
		resp.Diagnostics = v.Remaining
		resp.Fixes = v.Fixes
	}
	if pub := report.Publication; pub != nil {
		final := pub.Final()
		resp.Attempts = pub.Attempts
		resp.ID = final.ResultingID
		resp.Namespace = final.Namespace
		resp.ExternalURL = final.ExternalURL
		if !resp.Published && final.Message != "" {
			resp.Error = final.Message
		}
	}
	return resp
}

// handleExecute implements the flow_execute tool.
func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, "flow_execute", "", func(ctx context.Context) (any, map[string]any, error) {
		namespace, err := request.RequireString("namespace")
		if err != nil {
			return nil, nil, err
		}
		flowID, err := request.RequireString("flow_id")
		if err != nil {
			return nil, nil, err
		}

		inputs := map[string]string{}
		if raw, ok := request.GetArguments()["inputs"].(map[string]any); ok {
			for k, v := range raw {
				inputs[k] = fmt.Sprint(v)
			}
		}

		report, err := s.engine.Execute(ctx, engine.ExecuteRequest{
			Namespace: namespace,
			FlowID:    flowID,
			Inputs:    inputs,
			Wait:      request.GetBool("wait", false),
		})
		if err != nil {
			return nil, nil, err
		}
		return report, map[string]any{"state": report.State}, nil
	})
}

// handleSetCurrent implements the flow_set_current tool.
func (s *Server) handleSetCurrent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID := request.GetString("conversation_id", "")
	return s.call(ctx, "flow_set_current", conversationID, func(ctx context.Context) (any, map[string]any, error) {
		if conversationID == "" {
			return nil, nil, errors.New("conversation_id is required")
		}
		text, err := documentArg(request)
		if err != nil {
			return nil, nil, err
		}
		if len(text) == 0 {
			return nil, nil, errors.New("document is required")
		}

		stored := s.conversation(conversationID).SetDocument(ctx, string(text))
		return map[string]any{"conversation_id": conversationID, "stored": stored}, nil, nil
	})
}

// handleGetCurrent implements the flow_get_current tool.
func (s *Server) handleGetCurrent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID := request.GetString("conversation_id", "")
	return s.call(ctx, "flow_get_current", conversationID, func(ctx context.Context) (any, map[string]any, error) {
		if conversationID == "" {
			return nil, nil, errors.New("conversation_id is required")
		}
		text, ok, err := s.conversation(conversationID).CurrentDocument(ctx)
		if err != nil {
			return nil, nil, err
		}
		return map[string]any{"conversation_id": conversationID, "found": ok, "document": text}, nil, nil
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
