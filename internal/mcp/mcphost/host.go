// Package mcphost provides a concrete implementation of the [mcp.Host] interface.
//
// It connects to MCP servers via stdio or streamable-HTTP transports using the
// official MCP Go SDK (github.com/modelcontextprotocol/go-sdk), keeps a
// concurrent-safe tool registry, and tracks per-tool latency over a rolling
// window. Stdio servers run in their own process group and are killed with it.
//
// Typical usage:
//
//	h := mcphost.New()
//	err := h.RegisterServer(ctx, mcp.ServerConfig{
//	    Name:      "lights",
//	    Transport: mcp.TransportStdio,
//	    Command:   "/usr/local/bin/hue-mcp",
//	})
//	result, err := h.ExecuteTool(ctx, "set_light", `{"name":"kitchen","is_on":true}`)
//	h.Close()
package mcphost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/hemma/internal/mcp"
	"github.com/MrWong99/hemma/internal/proc"
)

// ErrToolNotFound is returned by ExecuteTool for an unknown tool name.
var ErrToolNotFound = errors.New("mcp host: tool not found")

// toolEntry holds all metadata for a single registered tool.
type toolEntry struct {
	tool    mcp.Tool
	window  *latencyWindow
	builtin func(ctx context.Context, args string) (string, error)
}

// Host is a concrete implementation of [mcp.Host].
//
// The zero value is NOT usable; create instances with [New].
type Host struct {
	mu       sync.RWMutex
	tools    map[string]toolEntry             // key: tool name
	sessions map[string]*mcpsdk.ClientSession // key: server name

	// client is shared by all sessions.
	client *mcpsdk.Client
}

var _ mcp.Host = (*Host)(nil)

// New creates and returns a ready-to-use Host.
func New() *Host {
	return &Host{
		tools:    make(map[string]toolEntry),
		sessions: make(map[string]*mcpsdk.ClientSession),
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "hemma", Version: "1.0.0"},
			nil,
		),
	}
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue. If a server with the same Name is already registered, the
// old connection is closed and its tools are replaced.
//
// Stdio servers are bound to ctx: cancelling it kills the server's process
// group, so pass a context that lives as long as the server should.
func (h *Host) RegisterServer(ctx context.Context, cfg mcp.ServerConfig) error {
	if cfg.Name == "" {
		return errors.New("mcp host: server config must have a non-empty name")
	}
	transport, err := newTransport(ctx, cfg)
	if err != nil {
		return err
	}
	return h.connect(ctx, cfg.Name, transport)
}

// connect opens a session over transport and imports its tools under server.
func (h *Host) connect(ctx context.Context, server string, transport mcpsdk.Transport) error {
	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp host: connect to server %q: %w", server, err)
	}

	var discovered []mcp.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcp host: list tools for server %q: %w", server, err)
		}
		discovered = append(discovered, mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			Server:      server,
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, t := range discovered {
		if prev, ok := h.tools[t.Name]; ok && prev.tool.Server != server {
			_ = session.Close()
			return fmt.Errorf("mcp host: tool %q of server %q already provided by %q", t.Name, server, prev.tool.Server)
		}
	}
	if old, ok := h.sessions[server]; ok {
		_ = old.Close()
		h.dropServerTools(server)
	}
	h.sessions[server] = session
	for _, t := range discovered {
		h.tools[t.Name] = toolEntry{tool: t, window: newLatencyWindow(defaultWindowSize)}
	}
	return nil
}

func newTransport(ctx context.Context, cfg mcp.ServerConfig) (mcpsdk.Transport, error) {
	switch cfg.Transport {
	case mcp.TransportStdio:
		argv, err := proc.Split(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("mcp host: stdio server %q: %w", cfg.Name, err)
		}
		cmd := proc.Command(ctx, argv[0], argv[1:]...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp host: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}, nil
	default:
		return nil, fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}
}

// dropServerTools removes the tools of server. Caller holds h.mu.
func (h *Host) dropServerTools(server string) {
	for name, e := range h.tools {
		if e.tool.Server == server {
			delete(h.tools, name)
		}
	}
}

// Tools implements [mcp.Host].
func (h *Host) Tools() []mcp.Tool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(h.tools))
	for _, e := range h.tools {
		out = append(out, e.tool)
	}
	slices.SortFunc(out, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// ExecuteTool implements [mcp.Host].
func (h *Host) ExecuteTool(ctx context.Context, name string, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	entry, ok := h.tools[name]
	var session *mcpsdk.ClientSession
	if ok && entry.builtin == nil {
		session = h.sessions[entry.tool.Server]
	}
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}

	start := time.Now()
	var (
		result *mcp.ToolResult
		err    error
	)
	if entry.builtin != nil {
		result = executeBuiltin(ctx, entry, args)
	} else {
		result, err = executeRemote(ctx, session, entry.tool, args)
	}
	elapsed := time.Since(start)

	entry.window.Record(elapsed, err != nil || (result != nil && result.IsError))
	if err != nil {
		return nil, err
	}
	result.Duration = elapsed
	return result, nil
}

func executeBuiltin(ctx context.Context, entry toolEntry, args string) *mcp.ToolResult {
	out, err := entry.builtin(ctx, args)
	if err != nil {
		return &mcp.ToolResult{Content: err.Error(), IsError: true}
	}
	return &mcp.ToolResult{Content: out}
}

func executeRemote(ctx context.Context, session *mcpsdk.ClientSession, tool mcp.Tool, args string) (*mcp.ToolResult, error) {
	if session == nil {
		return nil, fmt.Errorf("mcp host: server %q not connected for tool %q", tool.Server, tool.Name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("mcp host: invalid args JSON for tool %q: %w", tool.Name, err)
		}
	}

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tool.Name,
		Arguments: argsMap,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp host: call tool %q: %w", tool.Name, err)
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(tc.Text)
		}
	}
	return &mcp.ToolResult{Content: sb.String(), IsError: res.IsError}, nil
}

// Health implements [mcp.Host].
func (h *Host) Health() []mcp.ToolHealth {
	h.mu.RLock()
	entries := make([]toolEntry, 0, len(h.tools))
	for _, e := range h.tools {
		entries = append(entries, e)
	}
	h.mu.RUnlock()

	out := make([]mcp.ToolHealth, 0, len(entries))
	for _, e := range entries {
		out = append(out, mcp.ToolHealth{
			Name:      e.tool.Name,
			Server:    e.tool.Server,
			Calls:     e.window.Total(),
			P50:       e.window.Percentile(0.5),
			P99:       e.window.Percentile(0.99),
			ErrorRate: e.window.ErrorRate(),
		})
	}
	slices.SortFunc(out, func(a, b mcp.ToolHealth) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Close implements [mcp.Host].
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for name, s := range h.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp host: close server %q: %w", name, err))
		}
		delete(h.sessions, name)
	}
	h.tools = make(map[string]toolEntry)
	return errors.Join(errs...)
}
