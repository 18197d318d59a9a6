// Package trust tracks which remote devices may exchange file data with
// this one, and queues incoming trust requests for operator review.
package trust

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmarkelov/notesync/internal/client/models"
	"github.com/dmarkelov/notesync/internal/client/repositories/peers"
	"github.com/dmarkelov/notesync/internal/common"
	"github.com/dmarkelov/notesync/internal/logging"
)

// Store is safe for concurrent use. Trusted peers live in the peers
// repository; pending requests are kept in memory only and expire after
// common.PendingRequestTTL.
type Store struct {
	repo   peers.Repository
	logger logging.Logger

	mu      sync.Mutex
	pending map[string]models.PendingSyncRequest
}

func NewStore(repo peers.Repository, logger logging.Logger) *Store {
	return &Store{
		repo:    repo,
		logger:  logger,
		pending: make(map[string]models.PendingSyncRequest),
	}
}

// PurgeSessionGrants drops trust rows that were granted for one session
// only. Run once at startup, before any message is processed.
func (s *Store) PurgeSessionGrants(ctx context.Context) error {
	if err := s.repo.DeleteNonPersistent(ctx); err != nil {
		return fmt.Errorf("error purging session grants: %w", err)
	}
	return nil
}

func (s *Store) IsTrusted(ctx context.Context, deviceID string) bool {
	peer, err := s.repo.Get(ctx, deviceID)
	if err != nil {
		return false
	}
	return peer.Trusted
}

// Add records a trust grant for the device, replacing any previous
// entry. A non-persistent grant lasts until the next startup.
func (s *Store) Add(ctx context.Context, deviceID, deviceName string, persistent bool) error {
	return s.repo.Upsert(ctx, &models.Peer{
		ID:         deviceID,
		Name:       deviceName,
		Trusted:    true,
		Persistent: persistent,
		LastSeen:   time.Now(),
	})
}

// Revoke removes the device from the trusted set. Subsequent messages
// from it are dropped; no notification is sent to the device.
func (s *Store) Revoke(ctx context.Context, deviceID string) error {
	peer, err := s.repo.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return err
	}
	peer.Trusted = false
	return s.repo.Upsert(ctx, peer)
}

func (s *Store) TrustedPeers(ctx context.Context) ([]*models.Peer, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var trusted []*models.Peer
	for _, peer := range all {
		if peer.Trusted {
			trusted = append(trusted, peer)
		}
	}
	return trusted, nil
}

// QueuePending stores an incoming trust request for operator review.
// Requests from already-trusted devices and duplicate request ids are
// dropped; the return value reports whether the request was queued.
func (s *Store) QueuePending(ctx context.Context, req models.PendingSyncRequest) bool {
	if s.IsTrusted(ctx, req.DeviceID) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[req.RequestID]; ok {
		return false
	}
	if req.IssuedAt.IsZero() {
		req.IssuedAt = time.Now()
	}
	s.pending[req.RequestID] = req
	return true
}

// TakePending removes and returns the pending request, if still queued.
func (s *Store) TakePending(requestID string) (models.PendingSyncRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pending[requestID]
	if ok {
		delete(s.pending, requestID)
	}
	return req, ok
}

func (s *Store) PendingRequests() []models.PendingSyncRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.PendingSyncRequest, 0, len(s.pending))
	for _, req := range s.pending {
		result = append(result, req)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].IssuedAt.Before(result[j].IssuedAt) })
	return result
}

// SweepPending drops requests older than common.PendingRequestTTL.
func (s *Store) SweepPending(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, req := range s.pending {
		if now.Sub(req.IssuedAt) > common.PendingRequestTTL {
			s.logger.Info(context.Background(), "pending trust request expired",
				"request_id", id, "device", req.DeviceName)
			delete(s.pending, id)
		}
	}
}
