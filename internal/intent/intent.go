// Package intent classifies an accepted transcript into exactly one
// [Directive] from a closed set of kinds.
//
// The classifier (usually a language model, see [LLMClassifier]) returns an
// opaque JSON payload {"action": "...", "message": "..."}. [Router] parses and
// validates it and never fails: anything it cannot make sense of, including a
// classifier error, degrades to [NoAction] with [FallbackMessage].
package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/hemma/pkg/provider/llm"
)

// Kind is the closed set of actions the assistant can take.
type Kind int

const (
	NoAction Kind = iota
	AnswerQuestion
	LightControl
	MusicControl
	GetWeather
)

// kinds lists every valid Kind in declaration order.
var kinds = []Kind{NoAction, AnswerQuestion, LightControl, MusicControl, GetWeather}

// Kinds returns every valid Kind.
func Kinds() []Kind { return append([]Kind(nil), kinds...) }

// String returns the Go-style name, e.g. "LightControl".
func (k Kind) String() string {
	switch k {
	case NoAction:
		return "NoAction"
	case AnswerQuestion:
		return "AnswerQuestion"
	case LightControl:
		return "LightControl"
	case MusicControl:
		return "MusicControl"
	case GetWeather:
		return "GetWeather"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Tag returns the wire tag the classifier is asked to emit, e.g.
// "LIGHT_CONTROL". Invalid kinds return "".
func (k Kind) Tag() string {
	switch k {
	case NoAction:
		return "NO_ACTION"
	case AnswerQuestion:
		return "ANSWER_QUESTION"
	case LightControl:
		return "LIGHT_CONTROL"
	case MusicControl:
		return "MUSIC_CONTROL"
	case GetWeather:
		return "GET_WEATHER"
	default:
		return ""
	}
}

// Valid reports whether k is a member of the closed set.
func (k Kind) Valid() bool { return k >= NoAction && k <= GetWeather }

// aliases maps older tags to their kind.
var aliases = map[string]Kind{
	"ASK_QUESTION": AnswerQuestion,
	"TOGGLE_LIGHT": LightControl,
}

// ParseKind maps a tag to its Kind. Matching is case-insensitive and treats
// '-' and ' ' like '_'. The Go-style names ("LightControl") are accepted too.
func ParseKind(tag string) (Kind, bool) {
	norm := strings.ToUpper(strings.TrimSpace(tag))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for _, k := range kinds {
		if norm == k.Tag() || norm == strings.ToUpper(k.String()) {
			return k, true
		}
	}
	k, ok := aliases[norm]
	return k, ok
}

// FallbackMessage accompanies every degraded NoAction directive.
const FallbackMessage = "could not determine which action to perform"

// Directive is the classified intent of one transcript.
type Directive struct {
	Kind Kind

	// Message is the classifier's short acknowledgement, spoken before the
	// action runs. May be empty.
	Message string
}

// Fallback returns the degraded directive.
func Fallback() Directive {
	return Directive{Kind: NoAction, Message: FallbackMessage}
}

var (
	// ErrMalformedPayload means the payload held no usable JSON object.
	ErrMalformedPayload = errors.New("intent: malformed payload")

	// ErrMissingAction means the JSON object had no action tag.
	ErrMissingAction = errors.New("intent: missing action")

	// ErrUnknownAction means the action tag is not in the closed set.
	ErrUnknownAction = errors.New("intent: unknown action")
)

type payload struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Parse decodes a classifier payload into a Directive.
func Parse(raw string) (Directive, error) {
	obj, err := llm.ExtractJSONObject(raw)
	if err != nil {
		return Directive{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	var p payload
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return Directive{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(p.Action) == "" {
		return Directive{}, ErrMissingAction
	}
	k, ok := ParseKind(p.Action)
	if !ok {
		return Directive{}, fmt.Errorf("%w: %q", ErrUnknownAction, p.Action)
	}
	return Directive{Kind: k, Message: strings.TrimSpace(p.Message)}, nil
}
