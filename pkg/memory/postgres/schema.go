// Package postgres provides a PostgreSQL-backed [memory.Store]: the turn log
// lives in a single turns table whose nullable embedding column carries a
// pgvector HNSW index for recall.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	id, _ := store.WriteTurn(ctx, turn)
//	_ = store.IndexTurn(ctx, id, vec)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlTurns returns the turns DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at creation time.
func ddlTurns(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS turns (
    id          BIGSERIAL    PRIMARY KEY,
    transcript  TEXT         NOT NULL,
    kind        TEXT         NOT NULL DEFAULT '',
    ack         TEXT         NOT NULL DEFAULT '',
    result      TEXT         NOT NULL DEFAULT '',
    failed      BOOLEAN      NOT NULL DEFAULT false,
    at          TIMESTAMPTZ  NOT NULL DEFAULT now(),
    duration_ns BIGINT       NOT NULL DEFAULT 0,
    embedding   vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_turns_at
    ON turns (at);

CREATE INDEX IF NOT EXISTS idx_turns_embedding
    ON turns USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates the turns table and its indexes. It is idempotent and safe
// to call on every start.
//
// embeddingDimensions must match the configured embeddings model. Changing it
// after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("postgres migrate: embedding dimensions must be positive, got %d", embeddingDimensions)
	}
	if _, err := pool.Exec(ctx, ddlTurns(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
