// Package memory is an in-memory storage.Store, used when persistence is
// disabled and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gitunderstand/gitunderstand-go/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu      sync.RWMutex
	history map[string][]storage.StoredMessage
	digests map[string]*storage.DigestRecord
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		history: make(map[string][]storage.StoredMessage),
		digests: make(map[string]*storage.DigestRecord),
	}
}

func (s *Store) History(ctx context.Context, digestID string) ([]storage.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.history[digestID]
	messages := make([]storage.StoredMessage, len(stored))
	copy(messages, stored)
	return messages, nil
}

func (s *Store) SaveHistory(ctx context.Context, digestID string, messages []storage.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]storage.StoredMessage, len(messages))
	copy(stored, messages)
	s.history[digestID] = stored
	return nil
}

func (s *Store) ClearHistory(ctx context.Context, digestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.history, digestID)
	return nil
}

func (s *Store) SaveDigest(ctx context.Context, rec *storage.DigestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	stored := *rec
	s.digests[rec.ID] = &stored
	return nil
}

func (s *Store) Digest(ctx context.Context, id string) (*storage.DigestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.digests[id]
	if !exists {
		return nil, fmt.Errorf("digest %s not found", id)
	}
	out := *rec
	return &out, nil
}

func (s *Store) ListDigests(ctx context.Context, limit int) ([]*storage.DigestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit == 0 {
		limit = 100
	}

	records := make([]*storage.DigestRecord, 0, len(s.digests))
	for _, rec := range s.digests {
		out := *rec
		records = append(records, &out)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) DeleteDigest(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.digests[id]; !exists {
		return fmt.Errorf("digest %s not found", id)
	}
	delete(s.digests, id)
	delete(s.history, id)
	return nil
}

func (s *Store) Close() error {
	return nil
}
