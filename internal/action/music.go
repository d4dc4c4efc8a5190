package action

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/hemma/internal/intent"
	"github.com/MrWong99/hemma/internal/mcp"
	"github.com/MrWong99/hemma/internal/transcript/phonetic"
	"github.com/MrWong99/hemma/pkg/provider/llm"
)

// MusicAction is one of the supported music operations.
type MusicAction string

const (
	MusicTurnOnAmp     MusicAction = "turn_on_amp"
	MusicTurnOffAmp    MusicAction = "turn_off_amp"
	MusicListPlaylists MusicAction = "list_playlists"
	MusicPlay          MusicAction = "play"
	MusicPause         MusicAction = "pause"
	MusicResume        MusicAction = "resume"
	MusicVolume        MusicAction = "volume"
	MusicHelp          MusicAction = "help"
	MusicListDevices   MusicAction = "list_devices"
)

var musicActions = []MusicAction{
	MusicTurnOnAmp, MusicTurnOffAmp, MusicListPlaylists, MusicPlay,
	MusicPause, MusicResume, MusicVolume, MusicHelp, MusicListDevices,
}

// PlayTypes are the media kinds a play request may search for.
var PlayTypes = []string{"track", "album", "artist", "playlist", "show", "episode", "audiobook"}

// ParseMusicAction maps a model-produced action name to a MusicAction.
// "play_playlist" is accepted for play.
func ParseMusicAction(s string) (MusicAction, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm == "play_playlist" {
		return MusicPlay, true
	}
	a := MusicAction(norm)
	return a, slices.Contains(musicActions, a)
}

// MusicArgs are the parameters of a music command.
type MusicArgs struct {
	Device   string `json:"device,omitempty"`
	PlayType string `json:"play_type,omitempty"`
	Query    string `json:"query,omitempty"`
	Volume   *int   `json:"volume,omitempty"`
}

// MusicCommand is what the model extracts from a music request.
type MusicCommand struct {
	Action  string    `json:"action"`
	Args    MusicArgs `json:"args"`
	Message string    `json:"message"`
}

type musicToolArgs struct {
	Action MusicAction `json:"action"`
	MusicArgs
}

// MusicHandler controls music playback through an MCP tool.
type MusicHandler struct {
	llm           llm.Provider
	host          mcp.Host
	tool          string
	devices       *phonetic.Index
	defaultDevice string
}

var _ Handler = (*MusicHandler)(nil)

// NewMusicHandler returns a handler that calls tool on host. Device names
// are resolved against devices. Requests naming no device use
// defaultDevice, which must be one of devices when devices is non-empty.
func NewMusicHandler(p llm.Provider, host mcp.Host, tool string, devices []string, defaultDevice string) (*MusicHandler, error) {
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
	ix := phonetic.NewIndex(devices)
	if defaultDevice != "" && len(ix.Names()) > 0 {
		if _, ok := ix.Lookup(defaultDevice); !ok {
			errs = append(errs, fmt.Errorf("default device %q is not a known device", defaultDevice))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("action: music: %w", err)
	}
	return &MusicHandler{llm: p, host: host, tool: tool, devices: ix, defaultDevice: defaultDevice}, nil
}

func (h *MusicHandler) prompt() string {
	names := make([]string, len(musicActions))
	for i, a := range musicActions {
		names[i] = string(a)
	}
	var b strings.Builder
	b.WriteString("You control music playback in a home.\n")
	fmt.Fprintf(&b, "Actions: %s.\n", strings.Join(names, ", "))
	if devs := h.devices.Names(); len(devs) > 0 {
		fmt.Fprintf(&b, "Devices: %s.\n", strings.Join(devs, ", "))
	}
	fmt.Fprintf(&b, "Play types: %s.\n", strings.Join(PlayTypes, ", "))
	b.WriteString(`Reply with a JSON object {"action": "<action>", "args": {"device": "<device>", "play_type": "<play type>", "query": "<search text>", "volume": <0-100>}, "message": "<short spoken reply>"}. `)
	b.WriteString("Only include the args the action needs and leave out device unless the user names one.")
	return b.String()
}

// Handle implements [Handler].
func (h *MusicHandler) Handle(ctx context.Context, transcript string) (string, error) {
	var cmd MusicCommand
	if err := extract(ctx, h.llm, intent.MusicControl, h.prompt(), transcript, &cmd); err != nil {
		return "", err
	}
	action, ok := ParseMusicAction(cmd.Action)
	if !ok {
		return "", handlerErr(intent.MusicControl, ReasonBadPayload, fmt.Errorf("unknown music action %q", cmd.Action))
	}

	switch action {
	case MusicHelp:
		return joinReply(cmd.Message, musicHelp()), nil
	case MusicListDevices:
		if devs := h.devices.Names(); len(devs) > 0 {
			return joinReply(cmd.Message, strings.Join(devs, ", ")), nil
		}
	}

	args := musicToolArgs{Action: action, MusicArgs: cmd.Args}
	if err := validateMusicArgs(action, &args.MusicArgs); err != nil {
		return "", handlerErr(intent.MusicControl, ReasonBadPayload, err)
	}
	device, err := h.resolveDevice(args.Device)
	if err != nil {
		return "", err
	}
	args.Device = device

	out, err := callTool(ctx, h.host, intent.MusicControl, h.tool, args)
	if err != nil {
		return "", err
	}
	return joinReply(cmd.Message, out), nil
}

func (h *MusicHandler) resolveDevice(spoken string) (string, error) {
	if strings.TrimSpace(spoken) == "" {
		spoken = h.defaultDevice
	}
	if len(h.devices.Names()) == 0 || spoken == "" {
		return spoken, nil
	}
	m, ok := h.devices.Lookup(spoken)
	if !ok {
		return "", handlerErr(intent.MusicControl, ReasonUnknownTarget, fmt.Errorf("no device named %q", spoken))
	}
	return m.Name, nil
}

func validateMusicArgs(action MusicAction, args *MusicArgs) error {
	switch action {
	case MusicPlay:
		args.Query = strings.TrimSpace(args.Query)
		args.PlayType = strings.ToLower(strings.TrimSpace(args.PlayType))
		if args.PlayType == "" {
			args.PlayType = "track"
		}
		if !slices.Contains(PlayTypes, args.PlayType) {
			return fmt.Errorf("unknown play type %q", args.PlayType)
		}
		if args.Query == "" {
			return errors.New("play needs a query")
		}
	case MusicVolume:
		if args.Volume == nil {
			return errors.New("volume needs a level")
		}
		if v := *args.Volume; v < 0 || v > 100 {
			return fmt.Errorf("volume %d out of range [0,100]", v)
		}
	}
	return nil
}

func musicHelp() string {
	names := make([]string, len(musicActions))
	for i, a := range musicActions {
		names[i] = strings.ReplaceAll(string(a), "_", " ")
	}
	return "I can " + strings.Join(names, ", ") + "."
}
