package action

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/hemma/internal/intent"
	"github.com/MrWong99/hemma/internal/mcp"
	"github.com/MrWong99/hemma/internal/transcript/phonetic"
	"github.com/MrWong99/hemma/pkg/provider/llm"
)

// LightCommand is what the model extracts from a light request and what the
// light tool receives after the name has been resolved.
type LightCommand struct {
	Name  string `json:"name"`
	IsOn  *bool  `json:"is_on,omitempty"`
	Color string `json:"color,omitempty"`
}

// LightsHandler switches lights through an MCP tool.
type LightsHandler struct {
	llm   llm.Provider
	host  mcp.Host
	tool  string
	rooms *phonetic.Index
}

var _ Handler = (*LightsHandler)(nil)

// NewLightsHandler returns a handler that resolves light names against rooms
// and calls tool on host.
func NewLightsHandler(p llm.Provider, host mcp.Host, tool string, rooms []string) (*LightsHandler, error) {
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
	ix := phonetic.NewIndex(rooms)
	if len(ix.Names()) == 0 {
		errs = append(errs, errors.New("at least one room is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("action: lights: %w", err)
	}
	return &LightsHandler{llm: p, host: host, tool: tool, rooms: ix}, nil
}

func (h *LightsHandler) prompt() string {
	return "You control the lights of a home. The known lights and rooms are: " +
		strings.Join(h.rooms.Names(), ", ") + ".\n" +
		`Reply with a JSON object {"name": "<one of the known names>", "is_on": true or false, "color": "<color>"}. ` +
		"Leave out is_on or color when the user does not ask to change it."
}

// Handle implements [Handler].
func (h *LightsHandler) Handle(ctx context.Context, transcript string) (string, error) {
	var cmd LightCommand
	if err := extract(ctx, h.llm, intent.LightControl, h.prompt(), transcript, &cmd); err != nil {
		return "", err
	}
	if cmd.IsOn == nil && strings.TrimSpace(cmd.Color) == "" {
		return "", handlerErr(intent.LightControl, ReasonBadPayload, errors.New("nothing to change"))
	}
	m, ok := h.rooms.Lookup(cmd.Name)
	if !ok {
		return "", handlerErr(intent.LightControl, ReasonUnknownTarget, fmt.Errorf("no light named %q", cmd.Name))
	}
	cmd.Name = m.Name
	cmd.Color = strings.TrimSpace(cmd.Color)

	if _, err := callTool(ctx, h.host, intent.LightControl, h.tool, cmd); err != nil {
		return "", err
	}
	return confirmLights(cmd), nil
}

func confirmLights(cmd LightCommand) string {
	switch {
	case cmd.IsOn != nil && !*cmd.IsOn:
		return fmt.Sprintf("Turned off the %s lights.", cmd.Name)
	case cmd.Color != "" && cmd.IsOn != nil:
		return fmt.Sprintf("Turned on the %s lights and set them to %s.", cmd.Name, cmd.Color)
	case cmd.Color != "":
		return fmt.Sprintf("Set the %s lights to %s.", cmd.Name, cmd.Color)
	default:
		return fmt.Sprintf("Turned on the %s lights.", cmd.Name)
	}
}
