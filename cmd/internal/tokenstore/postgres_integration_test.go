package tokenstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when TEAMDASH_TEST_DATABASE_URL is set.

func TestPostgresStore_SaveLoadClear(t *testing.T) {
	t.Parallel()

	dbURL := os.Getenv("TEAMDASH_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEAMDASH_TEST_DATABASE_URL is not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}

	profile := "test-" + ulid.Make().String()
	s, err := NewPostgresStore(pool, profile)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() { _ = s.Clear(context.Background()) })

	if p, err := s.Load(ctx); err != nil || !p.Empty() {
		t.Fatalf("Load empty = %+v, %v", p, err)
	}

	for _, want := range []Pair{{Access: "A1", Refresh: "R1"}, {Access: "A2", Refresh: "R2"}} {
		if err := s.Save(ctx, want); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got != want {
			t.Fatalf("Load()=%+v want=%+v", got, want)
		}
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if p, _ := s.Load(ctx); !p.Empty() {
		t.Fatalf("expected empty after Clear, got %+v", p)
	}
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	t.Parallel()

	if _, err := NewPostgresStore(nil, "x"); err == nil {
		t.Fatalf("expected error for nil pool")
	}
}
