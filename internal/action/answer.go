package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/hemma/internal/intent"
	"github.com/MrWong99/hemma/internal/observe"
	"github.com/MrWong99/hemma/pkg/memory"
	"github.com/MrWong99/hemma/pkg/provider/llm"
)

// AnswerSystemPrompt is the base instruction for general questions.
const AnswerSystemPrompt = "You are a helpful assistant."

// AnswerOption configures an [AnswerHandler].
type AnswerOption func(*AnswerHandler)

// WithInstructions appends extra instructions to [AnswerSystemPrompt].
func WithInstructions(s string) AnswerOption {
	return func(h *AnswerHandler) { h.instructions = strings.TrimSpace(s) }
}

// WithRecall adds up to topK similar past turns from j to the prompt.
// Ignored when j has no recall index.
func WithRecall(j *memory.Journal, topK int) AnswerOption {
	return func(h *AnswerHandler) {
		h.journal = j
		h.topK = topK
	}
}

// WithAnswerMaxTokens caps the reply length.
func WithAnswerMaxTokens(n int) AnswerOption {
	return func(h *AnswerHandler) { h.maxTokens = n }
}

// AnswerHandler answers free-form questions with a language model.
type AnswerHandler struct {
	llm          llm.Provider
	instructions string
	journal      *memory.Journal
	topK         int
	maxTokens    int
}

var _ Handler = (*AnswerHandler)(nil)

// NewAnswerHandler returns a handler backed by p.
func NewAnswerHandler(p llm.Provider, opts ...AnswerOption) (*AnswerHandler, error) {
	if p == nil {
		return nil, fmt.Errorf("action: answer: %w", errNilProvider)
	}
	h := &AnswerHandler{llm: p}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// Handle implements [Handler].
func (h *AnswerHandler) Handle(ctx context.Context, transcript string) (string, error) {
	resp, err := h.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: h.systemPrompt(ctx, transcript),
		Messages:     llm.UserMessage(transcript),
		MaxTokens:    h.maxTokens,
	})
	if err != nil {
		return "", handlerErr(intent.AnswerQuestion, ReasonLLM, err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", handlerErr(intent.AnswerQuestion, ReasonEmpty, nil)
	}
	return text, nil
}

func (h *AnswerHandler) systemPrompt(ctx context.Context, transcript string) string {
	var b strings.Builder
	b.WriteString(AnswerSystemPrompt)
	if h.instructions != "" {
		b.WriteString("\n")
		b.WriteString(h.instructions)
	}

	if h.journal == nil || !h.journal.RecallEnabled() || h.topK <= 0 {
		return b.String()
	}
	related, err := h.journal.Related(ctx, transcript, h.topK)
	if err != nil {
		// Recall is best effort.
		observe.Logger(ctx).Warn("action: recall failed", "err", err)
		return b.String()
	}
	first := true
	for _, r := range related {
		if r.Turn.Failed || r.Turn.Result == "" {
			continue
		}
		if first {
			b.WriteString("\n\nEarlier exchanges that may be relevant:")
			first = false
		}
		fmt.Fprintf(&b, "\n- User: %s\n  Assistant: %s", r.Turn.Transcript, r.Turn.Result)
	}
	return b.String()
}
