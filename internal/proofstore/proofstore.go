package proofstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store persists proof images (payment receipts, transfer confirmations) and
// hands back an opaque reference. Orders carry only the reference; the bytes
// never touch the database.
type Store interface {
	Save(ctx context.Context, filename string, content []byte) (string, error)
	Load(ctx context.Context, ref string) ([]byte, error)
}

// FileStore writes proofs under a single directory, one file per proof,
// named by a fresh UUID plus the original extension.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create proof directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Save(_ context.Context, filename string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	ref := uuid.New().String() + ext
	path := filepath.Join(s.dir, ref)
	if err := os.WriteFile(path, content, 0o640); err != nil {
		return "", fmt.Errorf("write proof file: %w", err)
	}
	return ref, nil
}

func (s *FileStore) Load(_ context.Context, ref string) ([]byte, error) {
	// The ref is server-generated, but it still arrives back over HTTP.
	if ref != filepath.Base(ref) {
		return nil, fmt.Errorf("invalid proof reference %q", ref)
	}
	content, err := os.ReadFile(filepath.Join(s.dir, ref))
	if err != nil {
		return nil, fmt.Errorf("read proof file: %w", err)
	}
	return content, nil
}

// MemStore keeps proofs in memory for tests.
type MemStore struct {
	mu     sync.Mutex
	proofs map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{proofs: make(map[string][]byte)}
}

func (s *MemStore) Save(_ context.Context, filename string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := uuid.New().String() + strings.ToLower(filepath.Ext(filename))
	s.proofs[ref] = append([]byte(nil), content...)
	return ref, nil
}

func (s *MemStore) Load(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.proofs[ref]
	if !ok {
		return nil, fmt.Errorf("proof %q not found", ref)
	}
	return content, nil
}
