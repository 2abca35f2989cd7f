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

package log

import (
	"context"
	"log/slog"
	"time"
)

// ToolCall describes one agent-facing tool invocation for logging purposes.
type ToolCall struct {
	// Tool is the tool name, such as flow_publish.
	Tool string

	// CorrelationID traces the call through the pipeline.
	CorrelationID string

	// ConversationID is the conversation the call acts on, if any.
	ConversationID string
}

func (c *ToolCall) attrs() []any {
	attrs := []any{"tool", c.Tool}
	if c.CorrelationID != "" {
		attrs = append(attrs, CorrelationKey, c.CorrelationID)
	}
	if c.ConversationID != "" {
		attrs = append(attrs, ConversationKey, c.ConversationID)
	}
	return attrs
}

// ToolMiddleware logs tool calls when they arrive and when they complete.
type ToolMiddleware struct {
	logger *slog.Logger
}

// NewToolMiddleware creates a new tool logging middleware.
func NewToolMiddleware(logger *slog.Logger) *ToolMiddleware {
	return &ToolMiddleware{logger: OrDefault(logger)}
}

// Handle runs handler, logging the call and its result. Metadata returned by
// handler is added to the completion entry.
func (m *ToolMiddleware) Handle(ctx context.Context, call *ToolCall, handler func() (map[string]any, error)) (map[string]any, error) {
	start := time.Now()
	m.logger.DebugContext(ctx, "tool call received", append([]any{EventKey, "tool_request"}, call.attrs()...)...)

	metadata, err := handler()

	attrs := append([]any{EventKey, "tool_response", DurationKey, time.Since(start).Milliseconds()}, call.attrs()...)
	for k, v := range metadata {
		attrs = append(attrs, k, v)
	}

	if err != nil {
		m.logger.ErrorContext(ctx, "tool call failed", append(attrs, "error", err.Error())...)
		return metadata, err
	}
	m.logger.InfoContext(ctx, "tool call completed", attrs...)
	return metadata, nil
}
