package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessionguard/core/session"
)

// Store is an in-memory session store guarded by a mutex.
// Suitable for tests and single-process deployments; records do not survive
// restarts.
type Store struct {
	mu       sync.RWMutex
	byHandle map[uuid.UUID]session.Record
	byHash   map[string]uuid.UUID
	byUser   map[uuid.UUID]map[uuid.UUID]struct{}
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		byHandle: make(map[uuid.UUID]session.Record),
		byHash:   make(map[string]uuid.UUID),
		byUser:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// GetByHandle returns the record for a handle.
func (s *Store) GetByHandle(ctx context.Context, handle uuid.UUID) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byHandle[handle]
	if !ok {
		return nil, session.ErrSessionNotFound
	}

	out := rec.Clone()
	return &out, nil
}

// GetByTokenHash returns the record whose stored token hash matches.
func (s *Store) GetByTokenHash(ctx context.Context, hash string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle, ok := s.byHash[hash]
	if !ok {
		return nil, session.ErrSessionNotFound
	}

	rec, ok := s.byHandle[handle]
	if !ok {
		return nil, session.ErrSessionNotFound
	}

	out := rec.Clone()
	return &out, nil
}

// GetByUserID returns every record owned by the user.
func (s *Store) GetByUserID(ctx context.Context, userID uuid.UUID) ([]session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handles := s.byUser[userID]
	out := make([]session.Record, 0, len(handles))
	for handle := range handles {
		if rec, ok := s.byHandle[handle]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// Create persists a new record, failing on handle or token hash collision.
func (s *Store) Create(ctx context.Context, record *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHandle[record.Handle]; exists {
		return session.ErrHandleCollision
	}
	if _, exists := s.byHash[record.TokenHash]; exists {
		return session.ErrHandleCollision
	}

	s.byHandle[record.Handle] = record.Clone()
	s.byHash[record.TokenHash] = record.Handle
	if record.UserID.Valid {
		if s.byUser[record.UserID.UUID] == nil {
			s.byUser[record.UserID.UUID] = make(map[uuid.UUID]struct{})
		}
		s.byUser[record.UserID.UUID][record.Handle] = struct{}{}
	}

	return nil
}

// Update replaces an existing, unexpired record.
func (s *Store) Update(ctx context.Context, record *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byHandle[record.Handle]
	if !ok || existing.IsExpired() {
		return session.ErrSessionNotFound
	}

	// The token hash is immutable per handle; rotation creates a new record.
	updated := record.Clone()
	updated.TokenHash = existing.TokenHash
	s.byHandle[record.Handle] = updated

	return nil
}

// Delete removes a record. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, handle uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(handle)
	return nil
}

// DeleteByUserID removes every record owned by the user.
func (s *Store) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for handle := range s.byUser[userID] {
		s.remove(handle)
		n++
	}
	return n, nil
}

// DeleteExpired removes expired records.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var n int64
	for handle, rec := range s.byHandle {
		if !now.Before(rec.ExpiresAt) {
			s.remove(handle)
			n++
		}
	}
	return n, nil
}

// remove deletes a record and its indexes. Caller holds the write lock.
func (s *Store) remove(handle uuid.UUID) {
	rec, ok := s.byHandle[handle]
	if !ok {
		return
	}

	delete(s.byHandle, handle)
	delete(s.byHash, rec.TokenHash)
	if rec.UserID.Valid {
		delete(s.byUser[rec.UserID.UUID], handle)
		if len(s.byUser[rec.UserID.UUID]) == 0 {
			delete(s.byUser, rec.UserID.UUID)
		}
	}
}
