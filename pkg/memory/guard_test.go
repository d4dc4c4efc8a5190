package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/hemma/pkg/memory"
	memmock "github.com/MrWong99/hemma/pkg/memory/mock"
)

func TestGuard_WriteTurn(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		store := &memmock.Store{}
		g := memory.NewGuard(store)

		id, err := g.WriteTurn(context.Background(), memory.Turn{Transcript: "hey computer lights on"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != 1 {
			t.Errorf("id = %d, want 1", id)
		}
		if g.IsDegraded() {
			t.Error("should not be degraded after successful write")
		}
	})

	t.Run("failure is returned and degrades", func(t *testing.T) {
		store := &memmock.Store{WriteTurnErr: errors.New("connection refused")}
		g := memory.NewGuard(store)

		if _, err := g.WriteTurn(context.Background(), memory.Turn{}); err == nil {
			t.Fatal("expected write error to be returned")
		}
		if !g.IsDegraded() {
			t.Error("should be degraded after failed write")
		}
	})

	t.Run("recovers after successful write", func(t *testing.T) {
		store := &memmock.Store{WriteTurnErr: errors.New("temporary failure")}
		g := memory.NewGuard(store)

		_, _ = g.WriteTurn(context.Background(), memory.Turn{})
		if !g.IsDegraded() {
			t.Fatal("should be degraded")
		}

		store.WriteTurnErr = nil
		if _, err := g.WriteTurn(context.Background(), memory.Turn{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if g.IsDegraded() {
			t.Error("should have recovered")
		}
	})
}

func TestGuard_ReadsSwallowErrors(t *testing.T) {
	t.Parallel()

	store := &memmock.Store{
		RecentErr:  errors.New("timeout"),
		SimilarErr: errors.New("timeout"),
	}
	g := memory.NewGuard(store)
	ctx := context.Background()

	turns, err := g.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("Recent error = %v, want nil", err)
	}
	if turns == nil || len(turns) != 0 {
		t.Errorf("Recent = %v, want empty non-nil slice", turns)
	}

	hits, err := g.Similar(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Similar error = %v, want nil", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("Similar = %v, want empty non-nil slice", hits)
	}
	if !g.IsDegraded() {
		t.Error("should be degraded after failed reads")
	}
}

func TestGuard_JournalRecallThroughGuard(t *testing.T) {
	t.Parallel()

	store := &memmock.Store{}
	g := memory.NewGuard(store)
	emb := tableEmbedder{
		"hey computer play jazz":         {1, 0},
		"hey computer play some jazz":    {0.9, 0.1},
		"hey computer turn off the lamp": {0, 1},
	}
	j, err := memory.NewJournal(g, memory.WithRecall(g, emb))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}

	ctx := context.Background()
	for _, text := range []string{"hey computer play jazz", "hey computer turn off the lamp"} {
		if _, err := j.Record(ctx, memory.Turn{Transcript: text}); err != nil {
			t.Fatalf("Record(%q): %v", text, err)
		}
	}

	store.SimilarErr = errors.New("index unavailable")
	hits, err := j.Related(ctx, "hey computer play some jazz", 1)
	if err != nil {
		t.Fatalf("Related error = %v, want nil through guard", err)
	}
	if len(hits) != 0 {
		t.Errorf("Related = %v, want none while degraded", hits)
	}
	if !g.IsDegraded() {
		t.Error("guard should report degraded")
	}
}
