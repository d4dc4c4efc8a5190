package action

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/hemma/internal/intent"
	"github.com/MrWong99/hemma/internal/mcp"
	"github.com/MrWong99/hemma/pkg/provider/llm"
)

// WeatherHandler fetches weather data through an MCP tool and has the model
// answer the user's question from it.
type WeatherHandler struct {
	llm      llm.Provider
	host     mcp.Host
	tool     string
	location string
}

var _ Handler = (*WeatherHandler)(nil)

// NewWeatherHandler returns a handler that calls tool on host. location is
// passed to the tool and may be empty.
func NewWeatherHandler(p llm.Provider, host mcp.Host, tool, location string) (*WeatherHandler, error) {
	var errs []error
	if p == nil {
		errs = append(errs, errNilProvider)
	}
	if host == nil {
		errs = append(errs, errNilHost)
	}
	if tool == "" {
		errs = append(errs, errors.New("tool name must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("action: weather: %w", err)
	}
	return &WeatherHandler{llm: p, host: host, tool: tool, location: location}, nil
}

type weatherArgs struct {
	Location string `json:"location,omitempty"`
	Query    string `json:"query"`
}

// Handle implements [Handler].
func (h *WeatherHandler) Handle(ctx context.Context, transcript string) (string, error) {
	data, err := callTool(ctx, h.host, intent.GetWeather, h.tool, weatherArgs{Location: h.location, Query: transcript})
	if err != nil {
		return "", err
	}
	if data == "" {
		return "", handlerErr(intent.GetWeather, ReasonTool, errors.New("no weather data"))
	}

	resp, err := h.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: AnswerSystemPrompt + " Answer the user's question about the weather in one or two short spoken sentences using only this data:\n" + data,
		Messages:     llm.UserMessage(transcript),
	})
	if err != nil {
		return "", handlerErr(intent.GetWeather, ReasonLLM, err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", handlerErr(intent.GetWeather, ReasonEmpty, nil)
	}
	return text, nil
}
