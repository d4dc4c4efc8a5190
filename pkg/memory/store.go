// Package memory defines the turn history kept by the voice loop.
//
// Two layers are exposed:
//
//   - [TurnLog]: append-only, time-ordered record of accepted turns.
//   - [Index]: vector index over turn text for embedding-based recall.
//
// [Journal] ties both to an embeddings provider so callers can record a turn
// and later ask for related turns by plain text.
//
// Every implementation must be safe for concurrent use.
package memory

import "context"

// TurnLog is the append-only turn history.
type TurnLog interface {
	// WriteTurn persists t and returns the assigned ID. t.ID is ignored.
	WriteTurn(ctx context.Context, t Turn) (int64, error)

	// Recent returns up to limit turns, newest first. A limit <= 0 returns an
	// empty slice.
	Recent(ctx context.Context, limit int) ([]Turn, error)
}

// Index stores one embedding per turn and answers nearest-neighbour queries.
type Index interface {
	// IndexTurn attaches embedding to the turn with the given ID, replacing
	// any previous vector.
	IndexTurn(ctx context.Context, id int64, embedding []float32) error

	// Similar returns up to topK indexed turns ordered by ascending cosine
	// distance to embedding.
	Similar(ctx context.Context, embedding []float32, topK int) ([]Recalled, error)
}

// Store is a backend that provides both layers.
type Store interface {
	TurnLog
	Index
}
