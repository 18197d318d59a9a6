package peers

import (
	"context"
	"sort"
	"sync"

	"github.com/dmarkelov/notesync/internal/client/models"
	"github.com/dmarkelov/notesync/internal/common"
)

type InMemoryRepository struct {
	mu    sync.RWMutex
	peers map[string]models.Peer
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{peers: make(map[string]models.Peer)}
}

func (r *InMemoryRepository) Upsert(ctx context.Context, peer *models.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[peer.ID] = *peer
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*models.Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peer, ok := r.peers[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &peer, nil
}

func (r *InMemoryRepository) GetAll(ctx context.Context) ([]*models.Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*models.Peer, 0, len(r.peers))
	for _, peer := range r.peers {
		p := peer
		result = append(result, &p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
	return nil
}

func (r *InMemoryRepository) DeleteNonPersistent(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, peer := range r.peers {
		if !peer.Persistent {
			delete(r.peers, id)
		}
	}
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
