// Package mcpserver exposes the registered catalog tools over the Model
// Context Protocol, so external MCP clients can search courses with the
// same tools the generation loop offers the LLM.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lectern-ai/lectern/internal/logging"
	"github.com/lectern-ai/lectern/internal/tools"
)

const shutdownTimeout = 5 * time.Second

// Server wraps an MCP server whose tool list mirrors the tool manager.
type Server struct {
	manager *tools.Manager
	server  *mcp.Server
}

// New builds the MCP server and registers every managed tool under its own
// name and schema.
func New(manager *tools.Manager, version string) *Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "lectern",
		Version: version,
	}, nil)

	s := &Server{manager: manager, server: server}
	for _, tool := range manager.Tools() {
		server.AddTool(&mcp.Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		}, s.callHandler(tool.Name()))
	}
	return s
}

// callHandler routes an MCP tool call to the named managed tool. Tool
// failures come back as error-flagged results, not protocol errors, so the
// client sees what went wrong.
func (s *Server) callHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if args == nil {
			args = json.RawMessage("{}")
		}

		output, err := s.manager.Call(ctx, name, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: output}},
		}, nil
	}
}

// ServeStdio speaks MCP over stdin/stdout until the client disconnects or
// ctx is canceled. Nothing else may write to stdout while it runs.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.serve(ctx, &mcp.StdioTransport{})
}

func (s *Server) serve(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// Handler returns an SSE handler for mounting the server into an HTTP mux.
func (s *Server) Handler() http.Handler {
	return mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return s.server }, nil)
}

// Run serves the SSE transport on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logger().Info("mcp sse server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("mcp server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown mcp server: %w", err)
	}
	logging.Logger().Info("mcp sse server stopped")
	return nil
}
