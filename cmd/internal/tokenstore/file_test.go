package tokenstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"teamdash/cmd/security/vault"
)

func TestFileStore_Plaintext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")

	s, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if p, err := s.Load(ctx); err != nil || !p.Empty() {
		t.Fatalf("Load missing file = %+v, %v", p, err)
	}

	want := Pair{Access: "A1", Refresh: "R1"}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Fatalf("file mode=%o want 600", perm)
	}

	raw, _ := os.ReadFile(path)
	if !bytes.Contains(raw, []byte(`"refreshToken":"R1"`)) {
		t.Fatalf("unexpected file contents: %s", raw)
	}

	// A second store on the same path sees the persisted pair.
	s2, _ := NewFileStore(path, nil)
	if got, _ := s2.Load(ctx); got != want {
		t.Fatalf("Load()=%+v want=%+v", got, want)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear on missing file: %v", err)
	}
}

func TestFileStore_Sealed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.bin")

	v, err := vault.New("passphrase", vault.Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1})
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}

	s, _ := NewFileStore(path, v)
	want := Pair{Access: "A1", Refresh: "R1-secret"}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, _ := os.ReadFile(path)
	if !vault.IsSealed(raw) || bytes.Contains(raw, []byte("R1-secret")) {
		t.Fatalf("file is not sealed")
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("Load()=%+v want=%+v", got, want)
	}

	other, _ := vault.New("wrong", vault.Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1})
	s2, _ := NewFileStore(path, other)
	if _, err := s2.Load(ctx); err == nil {
		t.Fatalf("expected error opening with wrong passphrase")
	}
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewFileStore("", nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
