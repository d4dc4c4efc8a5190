// Package mock provides an in-memory test double for the MCP [mcp.Host] interface.
//
// [Host] records every method call for assertion in tests and exposes exported
// fields that control what the mock returns. It is safe for concurrent use.
//
// Typical usage:
//
//	h := &mock.Host{}
//	h.ExecuteToolResult = &mcp.ToolResult{Content: "kitchen is on"}
//
//	// inject h into the system under test …
//
//	if got := h.CallCount("ExecuteTool"); got != 1 {
//	    t.Errorf("expected 1 ExecuteTool call, got %d", got)
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/hemma/internal/mcp"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// Host is a configurable test double for [mcp.Host].
type Host struct {
	mu    sync.Mutex
	calls []Call

	// RegisterServerErr is returned by RegisterServer when non-nil.
	RegisterServerErr error

	// ToolsResult is returned by Tools.
	ToolsResult []mcp.Tool

	// ExecuteToolResult is returned by ExecuteTool when ExecuteToolErr is nil.
	// A nil value yields a zero ToolResult.
	ExecuteToolResult *mcp.ToolResult

	// ExecuteToolErr is returned by ExecuteTool when non-nil.
	ExecuteToolErr error

	// ExecuteToolFunc, when set, overrides the two fields above.
	ExecuteToolFunc func(ctx context.Context, name, args string) (*mcp.ToolResult, error)

	// HealthResult is returned by Health.
	HealthResult []mcp.ToolHealth

	// CloseErr is returned by Close when non-nil.
	CloseErr error
}

var _ mcp.Host = (*Host)(nil)

func (h *Host) record(method string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of all recorded method invocations.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

// CallCount returns how many times the named method was invoked.
func (h *Host) CallCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// ExecutedArgs returns the args of every ExecuteTool call for tool name.
func (h *Host) ExecutedArgs(name string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, c := range h.calls {
		if c.Method == "ExecuteTool" && c.Args[0] == name {
			out = append(out, c.Args[1].(string))
		}
	}
	return out
}

// Reset clears all recorded calls.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

// RegisterServer implements [mcp.Host].
func (h *Host) RegisterServer(_ context.Context, cfg mcp.ServerConfig) error {
	h.record("RegisterServer", cfg)
	return h.RegisterServerErr
}

// Tools implements [mcp.Host].
func (h *Host) Tools() []mcp.Tool {
	h.record("Tools")
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ToolsResult == nil {
		return []mcp.Tool{}
	}
	return slices.Clone(h.ToolsResult)
}

// ExecuteTool implements [mcp.Host].
func (h *Host) ExecuteTool(ctx context.Context, name string, args string) (*mcp.ToolResult, error) {
	h.record("ExecuteTool", name, args)
	h.mu.Lock()
	fn, res, err := h.ExecuteToolFunc, h.ExecuteToolResult, h.ExecuteToolErr
	h.mu.Unlock()
	if fn != nil {
		return fn(ctx, name, args)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &mcp.ToolResult{}, nil
	}
	cp := *res
	return &cp, nil
}

// Health implements [mcp.Host].
func (h *Host) Health() []mcp.ToolHealth {
	h.record("Health")
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.HealthResult)
}

// Close implements [mcp.Host].
func (h *Host) Close() error {
	h.record("Close")
	return h.CloseErr
}
