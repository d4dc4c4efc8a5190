package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/hemma/internal/mcp"
	"github.com/MrWong99/hemma/internal/mcp/mcphost"
	"github.com/MrWong99/hemma/internal/observe"
	"github.com/MrWong99/hemma/pkg/memory"
)

const (
	recentTurnsTool    = "recent_turns"
	recentTurnsDefault = 5
	recentTurnsMax     = 50
)

// meteredHost records every tool call the action handlers make.
type meteredHost struct {
	mcp.Host
	metrics *observe.Metrics
}

func (h meteredHost) ExecuteTool(ctx context.Context, name, args string) (*mcp.ToolResult, error) {
	start := time.Now()
	res, err := h.Host.ExecuteTool(ctx, name, args)
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case res != nil && res.IsError:
		status = "tool_error"
	}
	h.metrics.RecordToolCall(ctx, name, status, time.Since(start))
	return res, err
}

// recentTurns exposes the turn log to MCP clients of the host as an
// in-process tool. Arguments: {"limit": n}.
func recentTurns(j *memory.Journal) mcphost.BuiltinTool {
	return mcphost.BuiltinTool{
		Name:        recentTurnsTool,
		Description: "Lists the most recent voice commands and the replies given, newest first.",
		Handler: func(ctx context.Context, args string) (string, error) {
			var in struct {
				Limit int `json:"limit"`
			}
			if strings.TrimSpace(args) != "" {
				if err := json.Unmarshal([]byte(args), &in); err != nil {
					return "", fmt.Errorf("decode args: %w", err)
				}
			}
			switch {
			case in.Limit <= 0:
				in.Limit = recentTurnsDefault
			case in.Limit > recentTurnsMax:
				in.Limit = recentTurnsMax
			}

			turns, err := j.Recent(ctx, in.Limit)
			if err != nil {
				return "", err
			}
			if len(turns) == 0 {
				return "No commands yet.", nil
			}
			var b strings.Builder
			for _, t := range turns {
				fmt.Fprintf(&b, "%s %s: %q", t.At.Format(time.TimeOnly), t.Kind, t.Transcript)
				if t.Result != "" {
					fmt.Fprintf(&b, " -> %q", t.Result)
				}
				if t.Failed {
					b.WriteString(" (failed)")
				}
				b.WriteByte('\n')
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}
