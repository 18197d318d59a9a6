package settings

import (
	"context"
	"sync"

	"github.com/dmarkelov/notesync/internal/common"
)

type InMemoryRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{values: make(map[string]string)}
}

func (r *InMemoryRepository) Get(ctx context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.values[key]
	if !ok {
		return "", common.ErrNotFound
	}
	return value, nil
}

func (r *InMemoryRepository) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
