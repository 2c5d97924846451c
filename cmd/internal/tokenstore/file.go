package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Sealer encrypts the file contents at rest. *vault.Vault satisfies it.
type Sealer interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// FileStore keeps the pair in a single JSON file (mode 0600).
// Writes go to a temp file in the same directory followed by rename, so a crash
// never leaves a half-written pair behind.
type FileStore struct {
	path   string
	sealer Sealer

	mu sync.Mutex
}

// NewFileStore returns a FileStore at path. sealer may be nil (plaintext JSON).
func NewFileStore(path string, sealer Sealer) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrConfig)
	}
	return &FileStore{path: path, sealer: sealer}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) (Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Pair{}, nil
	}
	if err != nil {
		return Pair{}, fmt.Errorf("tokenstore: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return Pair{}, nil
	}

	if s.sealer != nil {
		data, err = s.sealer.Open(data)
		if err != nil {
			return Pair{}, fmt.Errorf("tokenstore: open %s: %w", s.path, err)
		}
	}

	var p Pair
	if err := json.Unmarshal(data, &p); err != nil {
		return Pair{}, fmt.Errorf("tokenstore: decode %s: %w", s.path, err)
	}
	return p, nil
}

func (s *FileStore) Save(ctx context.Context, p Pair) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.Empty() {
		return s.Clear(ctx)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if s.sealer != nil {
		data, err = s.sealer.Seal(data)
		if err != nil {
			return fmt.Errorf("tokenstore: seal: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.path, data)
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenstore: remove %s: %w", s.path, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("tokenstore: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("tokenstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
