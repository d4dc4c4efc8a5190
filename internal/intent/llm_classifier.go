package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/hemma/pkg/provider/llm"
)

// kindDescriptions explains each tag to the model.
var kindDescriptions = map[Kind]string{
	NoAction:       "the request is unclear or none of the other actions fit",
	AnswerQuestion: "answer a general question or hold a short conversation",
	LightControl:   "switch lights on or off or change their color",
	MusicControl:   "control music playback, playlists, volume or the amplifier",
	GetWeather:     "report current weather or a forecast",
}

// SystemPrompt returns the classification instructions sent to the model.
func SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are the dispatcher of a home voice assistant. ")
	b.WriteString("Pick exactly one action for the user's request from this list:\n")
	for _, k := range kinds {
		fmt.Fprintf(&b, "- %s: %s\n", k.Tag(), kindDescriptions[k])
	}
	b.WriteString("Reply with a JSON object of the form ")
	b.WriteString(`{"action": "<ACTION>", "message": "<short spoken acknowledgement>"}`)
	b.WriteString(". The message is read aloud before the action runs, so keep it to one short sentence.")
	return b.String()
}

// LLMClassifierOption configures an [LLMClassifier].
type LLMClassifierOption func(*LLMClassifier)

// WithTemperature sets the sampling temperature. Default 0.
func WithTemperature(t float64) LLMClassifierOption {
	return func(c *LLMClassifier) { c.temperature = t }
}

// WithMaxTokens caps the reply length. Default 200.
func WithMaxTokens(n int) LLMClassifierOption {
	return func(c *LLMClassifier) { c.maxTokens = n }
}

// LLMClassifier asks a language model to pick the action. It implements
// [Classifier].
type LLMClassifier struct {
	provider    llm.Provider
	prompt      string
	temperature float64
	maxTokens   int
}

var _ Classifier = (*LLMClassifier)(nil)

// NewLLMClassifier returns a classifier backed by p.
func NewLLMClassifier(p llm.Provider, opts ...LLMClassifierOption) (*LLMClassifier, error) {
	if p == nil {
		return nil, errors.New("intent: llm provider must not be nil")
	}
	c := &LLMClassifier{provider: p, prompt: SystemPrompt(), maxTokens: 200}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Classify implements [Classifier].
func (c *LLMClassifier) Classify(ctx context.Context, transcript string) (string, error) {
	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: c.prompt,
		Messages:     llm.UserMessage(transcript),
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
		JSON:         true,
	})
	if err != nil {
		return "", fmt.Errorf("intent: classify: %w", err)
	}
	return resp.Content, nil
}
