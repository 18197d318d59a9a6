package files

import (
	"context"
	"sort"
	"sync"

	"github.com/dmarkelov/notesync/internal/client/models"
)

type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]models.FileRecord
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]models.FileRecord)}
}

func (r *InMemoryRepository) Upsert(ctx context.Context, record *models.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.Path] = *record
	return nil
}

func (r *InMemoryRepository) GetAll(ctx context.Context) ([]*models.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*models.FileRecord, 0, len(r.records))
	for _, record := range r.records {
		rec := record
		result = append(result, &rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, path)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
