package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/sessionguard/core/session"
)

// Store is a Redis-backed session store. Records are stored as JSON under
// handle keys with native TTL; a token-hash key maps lookups to the handle,
// and a per-user set supports revoke-all and session enumeration.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Option configures the store.
type Option func(*Store)

// WithPrefix sets the key namespace. Default "sg:".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New creates a Redis-backed session store.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "sg:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) recordKey(handle uuid.UUID) string { return s.prefix + "h:" + handle.String() }
func (s *Store) hashKey(hash string) string        { return s.prefix + "t:" + hash }
func (s *Store) userKey(userID uuid.UUID) string   { return s.prefix + "u:" + userID.String() }

// GetByHandle returns the record for a handle.
func (s *Store) GetByHandle(ctx context.Context, handle uuid.UUID) (*session.Record, error) {
	return s.getRecord(ctx, s.recordKey(handle))
}

// GetByTokenHash resolves the token-hash index and returns the record.
func (s *Store) GetByTokenHash(ctx context.Context, hash string) (*session.Record, error) {
	handleStr, err := s.client.Get(ctx, s.hashKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis store: get token index: %w", err)
	}

	handle, err := uuid.Parse(handleStr)
	if err != nil {
		return nil, session.ErrSessionNotFound
	}

	return s.getRecord(ctx, s.recordKey(handle))
}

// GetByUserID returns the user's records, lazily pruning index entries
// whose records were evicted by TTL.
func (s *Store) GetByUserID(ctx context.Context, userID uuid.UUID) ([]session.Record, error) {
	handles, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: list user sessions: %w", err)
	}

	out := make([]session.Record, 0, len(handles))
	for _, handleStr := range handles {
		handle, err := uuid.Parse(handleStr)
		if err != nil {
			s.client.SRem(ctx, s.userKey(userID), handleStr)
			continue
		}

		rec, err := s.getRecord(ctx, s.recordKey(handle))
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				s.client.SRem(ctx, s.userKey(userID), handleStr)
				continue
			}
			return nil, err
		}
		out = append(out, *rec)
	}

	return out, nil
}

// Create persists a new record, failing on handle or token-hash collision.
func (s *Store) Create(ctx context.Context, record *session.Record) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("redis store: create record: already expired at %s", record.ExpiresAt)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis store: marshal record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.recordKey(record.Handle), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis store: create record: %w", err)
	}
	if !ok {
		return session.ErrHandleCollision
	}

	ok, err = s.client.SetNX(ctx, s.hashKey(record.TokenHash), record.Handle.String(), ttl).Result()
	if err != nil {
		return fmt.Errorf("redis store: create token index: %w", err)
	}
	if !ok {
		s.client.Del(ctx, s.recordKey(record.Handle))
		return session.ErrHandleCollision
	}

	if record.UserID.Valid {
		if err := s.client.SAdd(ctx, s.userKey(record.UserID.UUID), record.Handle.String()).Err(); err != nil {
			return fmt.Errorf("redis store: add user index: %w", err)
		}
	}

	return nil
}

// Update replaces an existing, unexpired record and refreshes TTLs.
func (s *Store) Update(ctx context.Context, record *session.Record) error {
	existing, err := s.getRecord(ctx, s.recordKey(record.Handle))
	if err != nil {
		return err
	}

	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return session.ErrSessionNotFound
	}

	// The token hash is immutable per handle; rotation creates a new record.
	updated := record.Clone()
	updated.TokenHash = existing.TokenHash

	data, err := json.Marshal(&updated)
	if err != nil {
		return fmt.Errorf("redis store: marshal record: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(record.Handle), data, ttl)
		pipe.Expire(ctx, s.hashKey(existing.TokenHash), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: update record: %w", err)
	}

	return nil
}

// Delete removes a record and its indexes. Absent records are not an error.
func (s *Store) Delete(ctx context.Context, handle uuid.UUID) error {
	rec, err := s.getRecord(ctx, s.recordKey(handle))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(handle), s.hashKey(rec.TokenHash))
		if rec.UserID.Valid {
			pipe.SRem(ctx, s.userKey(rec.UserID.UUID), handle.String())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: delete record: %w", err)
	}

	return nil
}

// DeleteByUserID removes every record owned by the user.
func (s *Store) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	handles, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis store: list user sessions: %w", err)
	}

	var n int64
	for _, handleStr := range handles {
		handle, err := uuid.Parse(handleStr)
		if err != nil {
			continue
		}
		if err := s.Delete(ctx, handle); err != nil {
			return n, err
		}
		n++
	}

	if err := s.client.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return n, fmt.Errorf("redis store: delete user index: %w", err)
	}

	return n, nil
}

// DeleteExpired prunes user-index entries whose records Redis already
// evicted by TTL. Record and token keys expire natively, so only the
// per-user sets accumulate stale members.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	var pruned int64

	iter := s.client.Scan(ctx, 0, s.prefix+"u:*", 100).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()

		handles, err := s.client.SMembers(ctx, userKey).Result()
		if err != nil {
			return pruned, fmt.Errorf("redis store: scan user index: %w", err)
		}

		for _, handleStr := range handles {
			handle, err := uuid.Parse(handleStr)
			if err != nil {
				s.client.SRem(ctx, userKey, handleStr)
				pruned++
				continue
			}

			exists, err := s.client.Exists(ctx, s.recordKey(handle)).Result()
			if err != nil {
				return pruned, fmt.Errorf("redis store: check record: %w", err)
			}
			if exists == 0 {
				s.client.SRem(ctx, userKey, handleStr)
				pruned++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("redis store: scan user indexes: %w", err)
	}

	return pruned, nil
}

// getRecord fetches and decodes a record, treating missing and expired
// records identically.
func (s *Store) getRecord(ctx context.Context, key string) (*session.Record, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis store: get record: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redis store: unmarshal record: %w", err)
	}

	if rec.IsExpired() {
		return nil, session.ErrSessionNotFound
	}

	return &rec, nil
}
