package server

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
)

// This file contains server startup methods that start blocking servers.
// They are exercised by running the binary rather than by unit tests.

// Serve runs the MCP server over stdio until ctx is cancelled or stdin closes
func (ms *MCPServer) Serve(ctx context.Context) error {
	ms.logger.Info("Starting MCP server with stdio transport")
	stdio := server.NewStdioServer(ms.server)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// ServeHTTP runs the MCP server with the HTTP/SSE transport on addr until ctx is cancelled
func (ms *MCPServer) ServeHTTP(ctx context.Context, addr string) error {
	ms.logger.Info("Starting MCP server with HTTP/SSE transport", "address", addr, "base_path", "/mcp")
	sseServer := server.NewSSEServer(ms.server,
		server.WithBaseURL("http://"+addr),
		server.WithStaticBasePath("/mcp"),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sseServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
		defer cancel()
		return sseServer.Shutdown(shutdownCtx)
	}
}
