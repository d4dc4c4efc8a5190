// Package mock provides an in-memory test double for the memory layer
// interfaces.
//
// [Store] keeps turns in a slice and answers similarity queries with an exact
// cosine-distance scan, so it behaves like the Postgres backend in tests
// without a database. It records every method call for assertion and is safe
// for concurrent use.
package mock

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/MrWong99/hemma/pkg/memory"
)

var _ memory.Store = (*Store)(nil)

// Call records the name and arguments of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// Store is an in-memory [memory.Store].
type Store struct {
	mu sync.Mutex

	calls   []Call
	turns   []memory.Turn
	vectors map[int64][]float32
	nextID  int64

	// WriteTurnErr is returned by [Store.WriteTurn] when non-nil.
	WriteTurnErr error

	// RecentErr is returned by [Store.Recent] when non-nil.
	RecentErr error

	// IndexTurnErr is returned by [Store.IndexTurn] when non-nil.
	IndexTurnErr error

	// SimilarErr is returned by [Store.Similar] when non-nil.
	SimilarErr error
}

func (s *Store) record(method string, args ...any) {
	s.calls = append(s.calls, Call{Method: method, Args: args})
}

// WriteTurn implements [memory.TurnLog].
func (s *Store) WriteTurn(_ context.Context, t memory.Turn) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("WriteTurn", t)
	if s.WriteTurnErr != nil {
		return 0, s.WriteTurnErr
	}
	s.nextID++
	t.ID = s.nextID
	s.turns = append(s.turns, t)
	return t.ID, nil
}

// Recent implements [memory.TurnLog].
func (s *Store) Recent(_ context.Context, limit int) ([]memory.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Recent", limit)
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	out := []memory.Turn{}
	for i := len(s.turns) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.turns[i])
	}
	return out, nil
}

// IndexTurn implements [memory.Index].
func (s *Store) IndexTurn(_ context.Context, id int64, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("IndexTurn", id, embedding)
	if s.IndexTurnErr != nil {
		return s.IndexTurnErr
	}
	if s.find(id) < 0 {
		return fmt.Errorf("mock memory: turn %d not found", id)
	}
	if s.vectors == nil {
		s.vectors = make(map[int64][]float32)
	}
	s.vectors[id] = slices.Clone(embedding)
	return nil
}

// Similar implements [memory.Index].
func (s *Store) Similar(_ context.Context, embedding []float32, topK int) ([]memory.Recalled, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Similar", embedding, topK)
	if s.SimilarErr != nil {
		return nil, s.SimilarErr
	}
	out := []memory.Recalled{}
	for id, vec := range s.vectors {
		out = append(out, memory.Recalled{
			Turn:     s.turns[s.find(id)],
			Distance: cosineDistance(embedding, vec),
		})
	}
	slices.SortFunc(out, func(a, b memory.Recalled) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return int(a.Turn.ID - b.Turn.ID)
	})
	if len(out) > topK {
		out = out[:max(topK, 0)]
	}
	return out, nil
}

// Turns returns a copy of every written turn in write order.
func (s *Store) Turns() []memory.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.turns)
}

// Calls returns a copy of all recorded calls.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallCount returns how many times method was invoked.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (s *Store) find(id int64) int {
	for i, t := range s.turns {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// cosineDistance mirrors pgvector's <=> operator: 1 - cos(a, b). Mismatched or
// zero-length vectors are maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
