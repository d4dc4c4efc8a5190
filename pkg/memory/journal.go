package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/hemma/pkg/provider/embeddings"
)

// ErrRecallDisabled is returned by [Journal.Related] when the journal was built
// without an index or embeddings provider.
var ErrRecallDisabled = errors.New("memory: recall disabled")

// JournalOption configures a [Journal].
type JournalOption func(*Journal)

// WithRecall enables semantic recall. Every recorded turn is embedded with
// embedder and stored in index.
func WithRecall(index Index, embedder embeddings.Provider) JournalOption {
	return func(j *Journal) {
		j.index = index
		j.embedder = embedder
	}
}

// Journal records turns into a [TurnLog] and, when recall is enabled, indexes
// their embeddings for later similarity search.
type Journal struct {
	log      TurnLog
	index    Index
	embedder embeddings.Provider
}

// NewJournal returns a Journal writing to log. log must not be nil.
func NewJournal(log TurnLog, opts ...JournalOption) (*Journal, error) {
	if log == nil {
		return nil, errors.New("memory: turn log must not be nil")
	}
	j := &Journal{log: log}
	for _, o := range opts {
		o(j)
	}
	if (j.index == nil) != (j.embedder == nil) {
		return nil, errors.New("memory: recall needs both an index and an embeddings provider")
	}
	return j, nil
}

// RecallEnabled reports whether [Journal.Related] can return results.
func (j *Journal) RecallEnabled() bool { return j.index != nil }

// Record writes t and returns its ID. When recall is enabled the turn text is
// embedded and indexed; an indexing failure is returned together with the
// valid ID because the turn itself is already persisted.
func (j *Journal) Record(ctx context.Context, t Turn) (int64, error) {
	id, err := j.log.WriteTurn(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("memory: record turn: %w", err)
	}
	if j.index == nil {
		return id, nil
	}
	text := EmbedText(t)
	if text == "" {
		return id, nil
	}
	vec, err := j.embedder.Embed(ctx, text)
	if err != nil {
		return id, fmt.Errorf("memory: embed turn %d: %w", id, err)
	}
	if err := j.index.IndexTurn(ctx, id, vec); err != nil {
		return id, fmt.Errorf("memory: index turn %d: %w", id, err)
	}
	return id, nil
}

// Related returns up to topK past turns most similar to text.
func (j *Journal) Related(ctx context.Context, text string, topK int) ([]Recalled, error) {
	if j.index == nil {
		return nil, ErrRecallDisabled
	}
	if topK <= 0 || strings.TrimSpace(text) == "" {
		return []Recalled{}, nil
	}
	vec, err := j.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	out, err := j.index.Similar(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("memory: similar: %w", err)
	}
	return out, nil
}

// Recent returns the newest limit turns from the log.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Turn, error) {
	return j.log.Recent(ctx, limit)
}

// EmbedText is the text that represents t in the vector index: the user's
// words followed by the assistant's result.
func EmbedText(t Turn) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(t.Transcript); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(t.Result); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}
