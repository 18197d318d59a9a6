package invitations

import (
	"context"
	"sync"
	"time"

	"github.com/dmarkelov/notesync/internal/common"
	"github.com/dmarkelov/notesync/internal/relay/models"
)

// InMemoryRepository keeps invitation keys in a map. In-memory keys are
// an acceptable loss on relay restart: they expire after minutes
// anyway, and the issuing device can generate a new one.
type InMemoryRepository struct {
	mu   sync.Mutex
	keys map[string]*models.Invitation
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{keys: make(map[string]*models.Invitation)}
}

func (r *InMemoryRepository) Create(_ context.Context, invitation *models.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *invitation
	r.keys[invitation.Key] = &copy
	return nil
}

func (r *InMemoryRepository) Redeem(_ context.Context, key string, now time.Time) (*models.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	invitation, ok := r.keys[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	if invitation.Consumed {
		return nil, common.ErrKeyConsumed
	}
	if !invitation.ExpiresAt.After(now) {
		return nil, common.ErrKeyExpired
	}

	invitation.Consumed = true
	result := *invitation
	return &result, nil
}

func (r *InMemoryRepository) DeleteExpired(_ context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, invitation := range r.keys {
		if !invitation.ExpiresAt.After(now) {
			delete(r.keys, key)
		}
	}
	return nil
}
