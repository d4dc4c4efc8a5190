package memory

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Guard wraps a [Store] so that a failing backend degrades recall instead of
// failing turns. Reads that fail return empty results and a nil error. Writes
// still return their error, because callers need to know a turn was not
// persisted, but they too mark the store degraded. Any successful call clears
// the flag.
//
// All methods are safe for concurrent use.
type Guard struct {
	store    Store
	degraded atomic.Bool
}

var _ Store = (*Guard)(nil)

// NewGuard wraps store.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// WriteTurn implements [TurnLog].
func (g *Guard) WriteTurn(ctx context.Context, t Turn) (int64, error) {
	id, err := g.store.WriteTurn(ctx, t)
	g.observe(err)
	return id, err
}

// Recent implements [TurnLog]. On failure an empty slice is returned.
func (g *Guard) Recent(ctx context.Context, limit int) ([]Turn, error) {
	turns, err := g.store.Recent(ctx, limit)
	if err != nil {
		g.observe(err)
		slog.Warn("memory guard: Recent failed, returning empty", "limit", limit, "err", err)
		return []Turn{}, nil
	}
	g.observe(nil)
	return turns, nil
}

// IndexTurn implements [Index].
func (g *Guard) IndexTurn(ctx context.Context, id int64, embedding []float32) error {
	err := g.store.IndexTurn(ctx, id, embedding)
	g.observe(err)
	return err
}

// Similar implements [Index]. On failure an empty slice is returned.
func (g *Guard) Similar(ctx context.Context, embedding []float32, topK int) ([]Recalled, error) {
	hits, err := g.store.Similar(ctx, embedding, topK)
	if err != nil {
		g.observe(err)
		slog.Warn("memory guard: Similar failed, returning empty", "top_k", topK, "err", err)
		return []Recalled{}, nil
	}
	g.observe(nil)
	return hits, nil
}

// IsDegraded reports whether the most recent operation on the underlying
// store failed.
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}

func (g *Guard) observe(err error) {
	was := g.degraded.Swap(err != nil)
	switch {
	case err != nil && !was:
		slog.Warn("memory guard: store degraded", "err", err)
	case err == nil && was:
		slog.Info("memory guard: store recovered")
	}
}
