// Package dispatch wires the three adapters into an MCP stdio server.
// It owns no retry, timeout, or parsing logic of its own — it only
// translates between the MCP wire shape and engine.InvocationRequest /
// engine.Result (SPEC_FULL.md §4.6).
package dispatch

import (
	"context"
	"encoding/json"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/szstan/ccg-mcp/internal/config"
	"github.com/szstan/ccg-mcp/internal/engine"
	"github.com/szstan/ccg-mcp/internal/logger"
)

// ServerName and ServerVersion identify this process to MCP clients.
const (
	ServerName    = "ccg-mcp"
	ServerVersion = "0.1.0"
)

// Registration pairs one adapter with the MCP tool definition it serves.
type Registration struct {
	Tool    mcp.Tool
	Adapter engine.Adapter
}

// NewServer builds the MCP server with all three tools registered.
func NewServer(cfg *config.Config) *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion)

	regs := []Registration{
		{Tool: coderTool(), Adapter: newCoderAdapter(cfg)},
		{Tool: reviewerTool(), Adapter: newReviewerAdapter(cfg)},
		{Tool: generalistTool(), Adapter: newGeneralistAdapter(cfg)},
	}

	for _, reg := range regs {
		reg := reg
		s.AddTool(reg.Tool, makeHandler(reg.Adapter))
	}

	return s
}

// Serve runs the MCP server over stdio until ctx is cancelled or stdin
// closes, whichever happens first.
func Serve(ctx context.Context, s *server.MCPServer) error {
	stdio := server.NewStdioServer(s)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func makeHandler(adapter engine.Adapter) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		invReq, err := parseInvocationRequest(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		logger.SetContext(adapter.Name(), invReq.SessionID)
		defer logger.ClearContext()

		logger.Info().Str("work_dir", invReq.WorkDir).Msg("dispatching invocation")

		result := engine.Invoke(ctx, adapter, invReq)

		if result.Metrics != nil && invReq.LogMetrics {
			zerolog.New(os.Stderr).Info().Interface("metrics", result.Metrics).Msg("invocation metrics")
		}

		payload, err := json.Marshal(toWireResult(result))
		if err != nil {
			return mcp.NewToolResultError("marshaling result: " + err.Error()), nil
		}

		return mcp.NewToolResultText(string(payload)), nil
	}
}
