package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"edith/models"
)

// KnowledgeStore holds the single knowledge document injected into every
// system prompt. Load must return the latest document on every call; Replace
// swaps the whole document so readers never observe a partial write.
type KnowledgeStore interface {
	Load(ctx context.Context) (models.KnowledgeDocument, error)
	Replace(ctx context.Context, doc models.KnowledgeDocument) error
}

// MemoryKnowledgeStore keeps the document in process memory.
type MemoryKnowledgeStore struct {
	doc atomic.Pointer[models.KnowledgeDocument]
}

func NewMemoryKnowledgeStore(initial models.KnowledgeDocument) *MemoryKnowledgeStore {
	s := &MemoryKnowledgeStore{}
	s.store(initial)
	return s
}

func (s *MemoryKnowledgeStore) Load(ctx context.Context) (models.KnowledgeDocument, error) {
	if doc := s.doc.Load(); doc != nil {
		return *doc, nil
	}
	return models.KnowledgeDocument{}, nil
}

func (s *MemoryKnowledgeStore) Replace(ctx context.Context, doc models.KnowledgeDocument) error {
	s.store(doc)
	return nil
}

func (s *MemoryKnowledgeStore) store(doc models.KnowledgeDocument) {
	if doc == nil {
		doc = models.KnowledgeDocument{}
	}
	s.doc.Store(&doc)
}

// FileKnowledgeStore reads a JSON file on every Load. Replace writes to a
// temporary file in the same directory and renames it over the original.
type FileKnowledgeStore struct {
	path string
	mu   sync.Mutex
}

func NewFileKnowledgeStore(path string) *FileKnowledgeStore {
	return &FileKnowledgeStore{path: path}
}

// Path returns the file backing the store.
func (s *FileKnowledgeStore) Path() string { return s.path }

// Exists reports whether the knowledge file is present.
func (s *FileKnowledgeStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *FileKnowledgeStore) Load(ctx context.Context) (models.KnowledgeDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge file: %w", err)
	}

	doc := models.KnowledgeDocument{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge file: %w", err)
	}
	return doc, nil
}

func (s *FileKnowledgeStore) Replace(ctx context.Context, doc models.KnowledgeDocument) error {
	if doc == nil {
		return errors.New("knowledge document is required")
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode knowledge: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".knowledge-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write knowledge: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write knowledge: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace knowledge file: %w", err)
	}
	return nil
}
