// Package store persists corpus chunks and gives the engine id-based access
// to them. Two backends: Redis for deployments, memory for tests and
// single-shot CLI runs.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/models"
)

// ChunkStore is the persistence boundary for corpus chunks.
type ChunkStore interface {
	SaveChunks(ctx context.Context, chunks []models.Chunk) error
	// GetChunks returns the chunks for ids, preserving the id order.
	// Unknown ids are skipped, not errors.
	GetChunks(ctx context.Context, ids []string) ([]models.Chunk, error)
	// AllChunks returns every stored chunk ordered by id.
	AllChunks(ctx context.Context) ([]models.Chunk, error)
	Close() error
}

// New selects a backend from configuration.
func New(ctx context.Context, cfg config.StorageConfig) (ChunkStore, error) {
	switch cfg.Backend {
	case "redis":
		return NewRedisStore(ctx, cfg.Redis)
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// MemoryStore keeps chunks in a mutex-guarded map.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]models.Chunk
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[string]models.Chunk)}
}

func (s *MemoryStore) SaveChunks(_ context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *MemoryStore) GetChunks(_ context.Context, ids []string) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Chunk
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) AllChunks(_ context.Context) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.chunks))
	for id := range s.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.Chunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.chunks[id])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
