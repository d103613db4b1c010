package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionguard/core/session"
	"github.com/dmitrymomot/sessionguard/store/redis"
)

func newStore(t *testing.T) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return redis.New(client), mr
}

func newRecord(userID uuid.NullUUID, expiresIn time.Duration) session.Record {
	now := time.Now()
	return session.Record{
		Handle:    uuid.New(),
		UserID:    userID,
		TokenHash: uuid.NewString(),
		CSRFToken: uuid.NewString(),
		Public:    session.Data{session.KeyUserID: nil},
		ExpiresAt: now.Add(expiresIn),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("lookup by handle and token hash", func(t *testing.T) {
		t.Parallel()

		s, _ := newStore(t)
		rec := newRecord(uuid.NullUUID{}, time.Hour)
		require.NoError(t, s.Create(ctx, &rec))

		got, err := s.GetByHandle(ctx, rec.Handle)
		require.NoError(t, err)
		assert.Equal(t, rec.TokenHash, got.TokenHash)
		assert.Equal(t, rec.CSRFToken, got.CSRFToken)

		got, err = s.GetByTokenHash(ctx, rec.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, rec.Handle, got.Handle)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		s, _ := newStore(t)
		_, err := s.GetByHandle(ctx, uuid.New())
		assert.ErrorIs(t, err, session.ErrSessionNotFound)

		_, err = s.GetByTokenHash(ctx, "missing")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("handle collision", func(t *testing.T) {
		t.Parallel()

		s, _ := newStore(t)
		rec := newRecord(uuid.NullUUID{}, time.Hour)
		require.NoError(t, s.Create(ctx, &rec))

		dup := newRecord(uuid.NullUUID{}, time.Hour)
		dup.Handle = rec.Handle
		assert.ErrorIs(t, s.Create(ctx, &dup), session.ErrHandleCollision)
	})

	t.Run("token hash collision rolls back the record", func(t *testing.T) {
		t.Parallel()

		s, _ := newStore(t)
		rec := newRecord(uuid.NullUUID{}, time.Hour)
		require.NoError(t, s.Create(ctx, &rec))

		dup := newRecord(uuid.NullUUID{}, time.Hour)
		dup.TokenHash = rec.TokenHash
		assert.ErrorIs(t, s.Create(ctx, &dup), session.ErrHandleCollision)

		_, err := s.GetByHandle(ctx, dup.Handle)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("already expired record is rejected", func(t *testing.T) {
		t.Parallel()

		s, _ := newStore(t)
		rec := newRecord(uuid.NullUUID{}, -time.Minute)
		err := s.Create(ctx, &rec)
		require.Error(t, err)
		// A create failure must not masquerade as a lookup miss or collision.
		assert.NotErrorIs(t, err, session.ErrSessionNotFound)
		assert.NotErrorIs(t, err, session.ErrHandleCollision)
	})

	t.Run("record vanishes with its TTL", func(t *testing.T) {
		t.Parallel()

		s, mr := newStore(t)
		rec := newRecord(uuid.NullUUID{}, time.Minute)
		require.NoError(t, s.Create(ctx, &rec))

		mr.FastForward(2 * time.Minute)

		_, err := s.GetByHandle(ctx, rec.Handle)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
		_, err = s.GetByTokenHash(ctx, rec.TokenHash)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})
}

func TestStore_GetByUserID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, mr := newStore(t)
	userID := uuid.New()
	owned := uuid.NullUUID{UUID: userID, Valid: true}

	first := newRecord(owned, time.Hour)
	second := newRecord(owned, time.Minute)
	require.NoError(t, s.Create(ctx, &first))
	require.NoError(t, s.Create(ctx, &second))

	recs, err := s.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	// Evicted records are pruned from the user index lazily.
	mr.FastForward(2 * time.Minute)

	recs, err = s.GetByUserID(ctx, userID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, first.Handle, recs[0].Handle)
}

func TestStore_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("updates data and refreshes TTL", func(t *testing.T) {
		t.Parallel()

		s, _ := newStore(t)
		rec := newRecord(uuid.NullUUID{}, time.Hour)
		require.NoError(t, s.Create(ctx, &rec))

		updated := rec.Clone()
		updated.Public = session.Data{"theme": "dark"}
		updated.ExpiresAt = time.Now().Add(2 * time.Hour)
		require.NoError(t, s.Update(ctx, &updated))

		got, err := s.GetByHandle(ctx, rec.Handle)
		require.NoError(t, err)
		assert.Equal(t, "dark", got.Public["theme"])
	})

	t.Run("token hash is immutable", func(t *testing.T) {
		t.Parallel()

		s, _ := newStore(t)
		rec := newRecord(uuid.NullUUID{}, time.Hour)
		require.NoError(t, s.Create(ctx, &rec))

		updated := rec.Clone()
		updated.TokenHash = "swapped"
		require.NoError(t, s.Update(ctx, &updated))

		got, err := s.GetByTokenHash(ctx, rec.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, rec.TokenHash, got.TokenHash)
	})

	t.Run("absent record", func(t *testing.T) {
		t.Parallel()

		s, _ := newStore(t)
		rec := newRecord(uuid.NullUUID{}, time.Hour)
		assert.ErrorIs(t, s.Update(ctx, &rec), session.ErrSessionNotFound)
	})
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("removes record and indexes", func(t *testing.T) {
		t.Parallel()

		s, _ := newStore(t)
		userID := uuid.New()
		rec := newRecord(uuid.NullUUID{UUID: userID, Valid: true}, time.Hour)
		require.NoError(t, s.Create(ctx, &rec))

		require.NoError(t, s.Delete(ctx, rec.Handle))

		_, err := s.GetByHandle(ctx, rec.Handle)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
		_, err = s.GetByTokenHash(ctx, rec.TokenHash)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)

		recs, err := s.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()

		s, _ := newStore(t)
		assert.NoError(t, s.Delete(ctx, uuid.New()))
	})
}

func TestStore_DeleteByUserID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, _ := newStore(t)
	userID := uuid.New()
	owned := uuid.NullUUID{UUID: userID, Valid: true}

	first := newRecord(owned, time.Hour)
	second := newRecord(owned, time.Hour)
	other := newRecord(uuid.NullUUID{UUID: uuid.New(), Valid: true}, time.Hour)
	require.NoError(t, s.Create(ctx, &first))
	require.NoError(t, s.Create(ctx, &second))
	require.NoError(t, s.Create(ctx, &other))

	n, err := s.DeleteByUserID(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = s.GetByHandle(ctx, first.Handle)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = s.GetByHandle(ctx, other.Handle)
	assert.NoError(t, err)
}

func TestStore_DeleteExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, mr := newStore(t)
	userID := uuid.New()
	owned := uuid.NullUUID{UUID: userID, Valid: true}

	live := newRecord(owned, time.Hour)
	shortLived := newRecord(owned, time.Minute)
	require.NoError(t, s.Create(ctx, &live))
	require.NoError(t, s.Create(ctx, &shortLived))

	mr.FastForward(2 * time.Minute)

	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	recs, err := s.GetByUserID(ctx, userID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, live.Handle, recs[0].Handle)
}
