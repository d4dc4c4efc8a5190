// Package mcp defines the interface for a Model Context Protocol (MCP) host.
//
// The host owns connections to the MCP servers that actually drive devices
// (lights, the music amplifier, weather lookups) and exposes their tools by
// name to the action handlers.
//
// Lifecycle:
//
//  1. Call [Host.RegisterServer] for each configured server.
//  2. Use [Host.ExecuteTool] from action handlers.
//  3. Call [Host.Close] on shutdown. Stdio servers are also killed when the
//     context passed to RegisterServer is cancelled.
//
// All methods must be safe for concurrent use.
package mcp

import (
	"context"
	"time"
)

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name identifies the server in logs and errors. Unique per Host.
	Name string

	// Transport selects stdio or streamable-http.
	Transport Transport

	// Command is the command line for stdio servers. Quotes group words.
	// Example: "/usr/local/bin/hue-mcp --bridge 10.0.0.2"
	Command string

	// URL is the endpoint for streamable-http servers.
	URL string

	// Env holds extra environment variables for stdio servers, appended to
	// the assistant's own environment. May be nil.
	Env map[string]string
}

// Tool describes one tool offered by a registered server.
type Tool struct {
	Name        string
	Description string
	Server      string
}

// ToolResult holds the outcome of a single tool execution.
type ToolResult struct {
	// Content is the concatenated text output of the tool.
	Content string

	// IsError marks an application-level tool error. Content then holds the
	// error message. Transport failures are returned as Go errors instead.
	IsError bool

	// Duration is the wall time of the call.
	Duration time.Duration
}

// ToolHealth summarizes recent calls of one tool.
type ToolHealth struct {
	Name      string
	Server    string
	Calls     int
	P50       time.Duration
	P99       time.Duration
	ErrorRate float64
}

// Host manages MCP server connections and routes tool calls.
type Host interface {
	// RegisterServer connects to the server described by cfg and imports its
	// tool catalogue. Re-registering a name replaces the old connection.
	RegisterServer(ctx context.Context, cfg ServerConfig) error

	// Tools lists every known tool sorted by name.
	Tools() []Tool

	// ExecuteTool calls the named tool with a JSON object of arguments ("" or
	// "{}" for none). A non-nil result is returned even when IsError is set.
	ExecuteTool(ctx context.Context, name string, args string) (*ToolResult, error)

	// Health reports call statistics per tool, sorted by name.
	Health() []ToolHealth

	// Close shuts down all server connections. The Host must not be used
	// afterwards.
	Close() error
}
