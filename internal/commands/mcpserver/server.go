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

package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/flowgate/internal/commands/shared"
	"github.com/tombee/flowgate/internal/log"
	"github.com/tombee/flowgate/internal/mcp/server"
)

// NewCommand creates the mcp command
func NewCommand() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the flowgate MCP server",
		Annotations: map[string]string{
			"group": "agent",
		},
		Long: `Start the flowgate MCP (Model Context Protocol) server on stdio.

The server lets a conversational agent validate, publish and execute workflow
documents and share the current document of a conversation.

Configuration example for an MCP client:
  {
    "mcpServers": {
      "flowgate": {
        "command": "flowgate",
        "args": ["mcp"]
      }
    }
  }

The server exposes these tools:
  - flow_validate: Validate and repair a document
  - flow_publish: Validate, resolve an identifier and publish
  - flow_execute: Trigger a run of a published workflow
  - flow_set_current: Store the conversation's current document
  - flow_get_current: Read the conversation's current document

Logs go to stderr; stdout carries the protocol. With --metrics-addr tool call
and publish metrics are served at /metrics.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPServer(cmd, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")

	return cmd
}

func runMCPServer(cmd *cobra.Command, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := shared.NewRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	if metricsAddr == "" {
		metricsAddr = rt.Config.MCP.MetricsAddr
	}

	versionStr, _, _ := shared.GetVersion()
	srv, err := server.New(server.Config{
		Name:      "flowgate",
		Version:   versionStr,
		Engine:    rt.Engine,
		Store:     rt.Store,
		RateLimit: rt.Config.MCP.RateLimit,
		Burst:     rt.Config.MCP.Burst,
		Logger:    rt.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if metricsAddr != "" {
		metrics := server.MetricsServer(metricsAddr)
		go func() {
			if err := server.ServeMetrics(metrics); err != nil {
				rt.Logger.Error("metrics server failed", log.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metrics.Shutdown(shutdownCtx)
		}()
		rt.Logger.Info("serving metrics", slog.String("addr", metricsAddr))
	}

	return srv.Run(ctx)
}
