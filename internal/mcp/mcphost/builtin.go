package mcphost

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/hemma/internal/mcp"
)

// builtinServerName is the pseudo server name of in-process tools.
const builtinServerName = "builtin"

// BuiltinTool is a tool implemented as a Go function that runs in-process.
// ExecuteTool calls Handler directly; latency is still tracked.
type BuiltinTool struct {
	Name        string
	Description string

	// Handler receives the JSON argument object. A returned error becomes an
	// IsError result, not a Go error.
	Handler func(ctx context.Context, args string) (string, error)
}

// RegisterBuiltin registers an in-process tool, replacing any tool of the
// same name.
func (h *Host) RegisterBuiltin(tool BuiltinTool) error {
	if tool.Name == "" {
		return errors.New("mcp host: builtin tool must have a non-empty name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("mcp host: builtin tool %q must have a non-nil handler", tool.Name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools[tool.Name] = toolEntry{
		tool: mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			Server:      builtinServerName,
		},
		window:  newLatencyWindow(defaultWindowSize),
		builtin: tool.Handler,
	}
	return nil
}
