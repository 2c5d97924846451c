package tokenstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	p, err := s.Load(ctx)
	if err != nil || !p.Empty() {
		t.Fatalf("Load on empty store = %+v, %v", p, err)
	}

	want := Pair{Access: "A1", Refresh: "R1"}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, _ := s.Load(ctx); got != want {
		t.Fatalf("Load()=%+v want=%+v", got, want)
	}

	if err := s.Save(ctx, Pair{Access: "A2"}); !errors.Is(err, ErrPartialPair) {
		t.Fatalf("expected ErrPartialPair, got %v", err)
	}
	if got, _ := s.Load(ctx); got != want {
		t.Fatalf("partial save must not change stored pair, got %+v", got)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	if got, _ := s.Load(ctx); !got.Empty() {
		t.Fatalf("expected empty after Clear, got %+v", got)
	}
}
