package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/hemma/pkg/memory"
)

var _ memory.Store = (*Store)(nil)

// Store is the PostgreSQL-backed turn log and recall index. It holds a single
// [pgxpool.Pool]. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, registers pgvector types on every connection, and
// runs [Migrate].
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

const turnColumns = `id, transcript, kind, ack, result, failed, at, duration_ns`

// WriteTurn implements [memory.TurnLog].
func (s *Store) WriteTurn(ctx context.Context, t memory.Turn) (int64, error) {
	const q = `
		INSERT INTO turns (transcript, kind, ack, result, failed, at, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, q,
		t.Transcript,
		t.Kind,
		t.Ack,
		t.Result,
		t.Failed,
		t.At,
		t.Duration.Nanoseconds(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("turn log: write turn: %w", err)
	}
	return id, nil
}

// Recent implements [memory.TurnLog].
func (s *Store) Recent(ctx context.Context, limit int) ([]memory.Turn, error) {
	if limit <= 0 {
		return []memory.Turn{}, nil
	}
	q := `SELECT ` + turnColumns + ` FROM turns ORDER BY at DESC, id DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("turn log: recent: %w", err)
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Turn, error) {
		return scanTurn(row)
	})
	if err != nil {
		return nil, fmt.Errorf("turn log: scan rows: %w", err)
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	return turns, nil
}

// IndexTurn implements [memory.Index].
func (s *Store) IndexTurn(ctx context.Context, id int64, embedding []float32) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE turns SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), id)
	if err != nil {
		return fmt.Errorf("recall: index turn %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recall: index turn %d: no such turn", id)
	}
	return nil
}

// Similar implements [memory.Index]. Turns without an embedding are skipped.
func (s *Store) Similar(ctx context.Context, embedding []float32, topK int) ([]memory.Recalled, error) {
	if topK <= 0 {
		return []memory.Recalled{}, nil
	}
	q := `
		SELECT ` + turnColumns + `, embedding <=> $1 AS distance
		FROM   turns
		WHERE  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("recall: similar: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Recalled, error) {
		var (
			r     memory.Recalled
			durNs int64
		)
		if err := row.Scan(
			&r.Turn.ID,
			&r.Turn.Transcript,
			&r.Turn.Kind,
			&r.Turn.Ack,
			&r.Turn.Result,
			&r.Turn.Failed,
			&r.Turn.At,
			&durNs,
			&r.Distance,
		); err != nil {
			return memory.Recalled{}, err
		}
		r.Turn.Duration = time.Duration(durNs)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("recall: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.Recalled{}
	}
	return results, nil
}

func scanTurn(row pgx.CollectableRow) (memory.Turn, error) {
	var (
		t     memory.Turn
		durNs int64
	)
	if err := row.Scan(
		&t.ID,
		&t.Transcript,
		&t.Kind,
		&t.Ack,
		&t.Result,
		&t.Failed,
		&t.At,
		&durNs,
	); err != nil {
		return memory.Turn{}, err
	}
	t.Duration = time.Duration(durNs)
	return t, nil
}
