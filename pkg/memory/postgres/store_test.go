package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/hemma/pkg/memory"
	"github.com/MrWong99/hemma/pkg/memory/postgres"
)

const testEmbeddingDim = 3

// testDSN returns the test database DSN, or skips when
// HEMMA_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("HEMMA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HEMMA_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a Store on a freshly dropped schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// pgvector may not be installed yet on a fresh database.
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS turns CASCADE"); err != nil {
		t.Fatalf("drop turns: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestNewStore_BadDSN(t *testing.T) {
	t.Parallel()

	if _, err := postgres.NewStore(context.Background(), "postgres://%zz", 3); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStore_WriteAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i, text := range []string{"first", "second", "third"} {
		id, err := store.WriteTurn(ctx, memory.Turn{
			Transcript: text,
			Kind:       "AnswerQuestion",
			Ack:        "on it",
			Result:     "done " + text,
			Failed:     i == 1,
			At:         base.Add(time.Duration(i) * time.Second),
			Duration:   1500 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("WriteTurn(%q): %v", text, err)
		}
		if id <= 0 {
			t.Errorf("WriteTurn(%q) id = %d", text, id)
		}
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent len = %d, want 2", len(got))
	}
	if got[0].Transcript != "third" || got[1].Transcript != "second" {
		t.Errorf("order = %q, %q; want third, second", got[0].Transcript, got[1].Transcript)
	}
	if !got[1].Failed {
		t.Error("second turn should be marked failed")
	}
	if got[0].Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", got[0].Duration)
	}
	if !got[0].At.Equal(base.Add(2 * time.Second)) {
		t.Errorf("At = %v, want %v", got[0].At, base.Add(2*time.Second))
	}

	none, err := store.Recent(ctx, 0)
	if err != nil || len(none) != 0 {
		t.Errorf("Recent(0) = %v, %v", none, err)
	}
}

func TestStore_IndexAndSimilar(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	write := func(text string) int64 {
		t.Helper()
		id, err := store.WriteTurn(ctx, memory.Turn{Transcript: text, At: time.Now()})
		if err != nil {
			t.Fatalf("WriteTurn: %v", err)
		}
		return id
	}
	kitchen := write("kitchen lights")
	weather := write("weather today")
	_ = write("never indexed")

	if err := store.IndexTurn(ctx, kitchen, []float32{1, 0, 0}); err != nil {
		t.Fatalf("IndexTurn: %v", err)
	}
	if err := store.IndexTurn(ctx, weather, []float32{0, 1, 0}); err != nil {
		t.Fatalf("IndexTurn: %v", err)
	}

	got, err := store.Similar(ctx, []float32{0.9, 0.1, 0}, 5)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Similar len = %d, want 2 (unindexed turn excluded)", len(got))
	}
	if got[0].Turn.ID != kitchen {
		t.Errorf("nearest = %d, want %d", got[0].Turn.ID, kitchen)
	}
	if got[0].Distance > got[1].Distance {
		t.Errorf("distances not ascending: %v, %v", got[0].Distance, got[1].Distance)
	}
}

func TestStore_IndexUnknownTurn(t *testing.T) {
	store := newTestStore(t)

	if err := store.IndexTurn(context.Background(), 9999, []float32{1, 0, 0}); err == nil {
		t.Fatal("expected error for unknown turn id")
	}
}
