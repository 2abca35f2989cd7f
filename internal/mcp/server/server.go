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

// Package server implements an MCP server that exposes the validation and
// publication pipeline as tools for a conversational agent.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tombee/flowgate/internal/bridge"
	"github.com/tombee/flowgate/internal/engine"
	"github.com/tombee/flowgate/internal/log"
)

const (
	// maxDocumentSize bounds document text accepted by any tool.
	maxDocumentSize = 1 << 20
)

// Server wraps the MCP server and provides flowgate tools.
type Server struct {
	mcpServer *server.MCPServer
	name      string
	version   string
	engine    *engine.Engine
	store     bridge.Store
	limiter   *RateLimiter
	tools     *log.ToolMiddleware
	logger    *slog.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server name (default: "flowgate").
	Name string

	// Version is the flowgate version.
	Version string

	// Engine runs validation and publication. Required.
	Engine *engine.Engine

	// Store holds conversation context. Defaults to an in-memory store.
	Store bridge.Store

	// RateLimit is the sustained tool calls per second; Burst the calls allowed at once.
	RateLimit float64
	Burst     int

	// Logger must not write to stdout, which carries the protocol.
	Logger *slog.Logger
}

// New creates a new MCP server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Name == "" {
		cfg.Name = "flowgate"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Store == nil {
		store, err := bridge.Open(bridge.Config{})
		if err != nil {
			return nil, err
		}
		cfg.Store = store
	}
	logger := log.WithComponent(log.OrDefault(cfg.Logger), "mcp")

	s := &Server{
		mcpServer: server.NewMCPServer(cfg.Name, cfg.Version, server.WithToolCapabilities(false)),
		name:      cfg.Name,
		version:   cfg.Version,
		engine:    cfg.Engine,
		store:     cfg.Store,
		limiter:   NewRateLimiter(cfg.RateLimit, cfg.Burst),
		tools:     log.NewToolMiddleware(logger),
		logger:    logger,
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all flowgate tools with the MCP server.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("flow_validate",
		mcp.WithDescription("Validate a workflow document and apply heuristic repairs. Returns diagnostics, the fixes made and the repaired document. Uses the conversation's current document when none is passed."),
		mcp.WithString("document", mcp.Description("Workflow YAML text")),
		mcp.WithString("conversation_id", mcp.Description("Conversation whose current document to use and update")),
		mcp.WithString("namespace", mcp.Description("Namespace assigned when the document has none")),
		mcp.WithBoolean("save_fixed", mcp.Description("Store the repaired document as the conversation's current document")),
	), s.handleValidate)

	s.mcpServer.AddTool(mcp.NewTool("flow_publish",
		mcp.WithDescription("Validate, repair, assign a unique id and publish a workflow to the orchestration service. An id conflict is resolved by one automatic rename."),
		mcp.WithString("document", mcp.Description("Workflow YAML text. Defaults to the conversation's current document")),
		mcp.WithString("conversation_id", mcp.Description("Conversation scope")),
		mcp.WithString("id", mcp.Description("Use this id verbatim")),
		mcp.WithString("purpose", mcp.Description("Short description the id is derived from")),
		mcp.WithString("namespace", mcp.Description("Namespace override")),
		mcp.WithString("server_url", mcp.Description("Remote API base URL override")),
		mcp.WithString("ui_url", mcp.Description("UI base URL override")),
		mcp.WithBoolean("update", mcp.Description("Replace an existing workflow instead of creating one")),
	), s.handlePublish)

	s.mcpServer.AddTool(mcp.NewTool("flow_execute",
		mcp.WithDescription("Trigger an execution of a stored workflow and optionally wait for it to finish."),
		mcp.WithString("namespace", mcp.Required(), mcp.Description("Workflow namespace")),
		mcp.WithString("flow_id", mcp.Required(), mcp.Description("Workflow id")),
		mcp.WithObject("inputs", mcp.Description("Execution inputs as string values")),
		mcp.WithBoolean("wait", mcp.Description("Poll until the execution finishes")),
	), s.handleExecute)

	s.mcpServer.AddTool(mcp.NewTool("flow_set_current",
		mcp.WithDescription("Record a workflow document as the conversation's current document."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation scope")),
		mcp.WithString("document", mcp.Required(), mcp.Description("Workflow YAML text")),
	), s.handleSetCurrent)

	s.mcpServer.AddTool(mcp.NewTool("flow_get_current",
		mcp.WithDescription("Return the conversation's current workflow document."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation scope")),
	), s.handleGetCurrent)
}

// Run serves MCP over stdio until ctx is cancelled or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting flowgate MCP server", slog.String("version", s.version))

	stdio := server.NewStdioServer(s.mcpServer)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// MCPServer returns the underlying server, for alternative transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) conversation(id string) *bridge.Conversation {
	if id == "" {
		return nil
	}
	return bridge.NewConversation(s.store, id, s.logger)
}

// errorResponse creates an error result.
func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// jsonResponse encodes v as indented JSON text.
func jsonResponse(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
