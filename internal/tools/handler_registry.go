package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolHandlerFunc is a function that handles a tool call
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Handler is a tool implementation that knows its own definition
type Handler interface {
	Tool() mcp.Tool
	Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

type entry struct {
	tool    mcp.Tool
	handler ToolHandlerFunc
}

// ToolHandlerRegistry maps tool names to their definition and handler
type ToolHandlerRegistry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewToolHandlerRegistry creates a registry holding the given handlers
func NewToolHandlerRegistry(initial ...Handler) *ToolHandlerRegistry {
	r := &ToolHandlerRegistry{
		entries: make(map[string]entry),
	}
	for _, h := range initial {
		r.RegisterHandler(h)
	}
	return r
}

// Register adds or replaces the handler for a tool
func (r *ToolHandlerRegistry) Register(tool mcp.Tool, handler ToolHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[tool.Name] = entry{tool: tool, handler: handler}
}

// RegisterHandler adds or replaces a self-describing handler
func (r *ToolHandlerRegistry) RegisterHandler(h Handler) {
	r.Register(h.Tool(), h.Handle)
}

// GetHandler returns the handler function for a given tool name
func (r *ToolHandlerRegistry) GetHandler(toolName string) (ToolHandlerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[toolName]
	if !ok {
		return nil, fmt.Errorf("no handler registered for tool: %s", toolName)
	}
	return e.handler, nil
}

// GetTool returns the definition of a registered tool
func (r *ToolHandlerRegistry) GetTool(toolName string) (mcp.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[toolName]
	return e.tool, ok
}

// GetAllHandlers returns a shallow copy of the handlers keyed by tool name
func (r *ToolHandlerRegistry) GetAllHandlers() map[string]ToolHandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ToolHandlerFunc, len(r.entries))
	for k, e := range r.entries {
		out[k] = e.handler
	}
	return out
}

// Names returns the registered tool names in sorted order
func (r *ToolHandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for k := range r.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// AddTo registers every tool with an mcp-go server
func (r *ToolHandlerRegistry) AddTo(s *server.MCPServer) {
	for _, name := range r.Names() {
		r.mu.RLock()
		e := r.entries[name]
		r.mu.RUnlock()
		s.AddTool(e.tool, server.ToolHandlerFunc(e.handler))
	}
}
