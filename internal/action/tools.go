package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/hemma/internal/intent"
	"github.com/MrWong99/hemma/internal/mcp"
	"github.com/MrWong99/hemma/pkg/provider/llm"
)

// callTool runs an MCP tool with args encoded as JSON and returns its text.
func callTool(ctx context.Context, host mcp.Host, kind intent.Kind, tool string, args any) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", handlerErr(kind, ReasonTool, fmt.Errorf("encode %s args: %w", tool, err))
	}
	res, err := host.ExecuteTool(ctx, tool, string(b))
	if err != nil {
		return "", handlerErr(kind, ReasonTool, err)
	}
	if res.IsError {
		return "", handlerErr(kind, ReasonTool, fmt.Errorf("%s: %s", tool, res.Content))
	}
	return strings.TrimSpace(res.Content), nil
}

// extract asks the model for a JSON object describing the request and
// decodes it into v.
func extract(ctx context.Context, p llm.Provider, kind intent.Kind, system, transcript string, v any) error {
	resp, err := p.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     llm.UserMessage(transcript),
		JSON:         true,
	})
	if err != nil {
		return handlerErr(kind, ReasonLLM, err)
	}
	obj, err := llm.ExtractJSONObject(resp.Content)
	if err != nil {
		return handlerErr(kind, ReasonBadPayload, err)
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return handlerErr(kind, ReasonBadPayload, err)
	}
	return nil
}

func joinReply(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

var errNilProvider = errors.New("llm provider must not be nil")
var errNilHost = errors.New("mcp host must not be nil")
