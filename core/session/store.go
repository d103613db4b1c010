package session

import (
	"context"

	"github.com/google/uuid"
)

// Store defines the persistence port for session records.
// Implementations must handle concurrent access safely and provide
// atomic create (fail on handle or token-hash collision) and conditional
// update (fail if the record is absent).
//
// Expected sentinel errors: ErrSessionNotFound for missing records,
// ErrHandleCollision for create conflicts. Any other error is treated
// as a persistence failure and propagated uncaught.
type Store interface {
	// GetByHandle returns the record for a handle.
	GetByHandle(ctx context.Context, handle uuid.UUID) (*Record, error)

	// GetByTokenHash returns the record whose stored token hash matches.
	GetByTokenHash(ctx context.Context, hash string) (*Record, error)

	// GetByUserID returns every record owned by the user, including expired
	// ones not yet swept; callers filter expiry.
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]Record, error)

	// Create persists a new record. Fails with ErrHandleCollision if the
	// handle or token hash already exists.
	Create(ctx context.Context, record *Record) error

	// Update replaces an existing record. Fails with ErrSessionNotFound if
	// the record is absent or already expired.
	Update(ctx context.Context, record *Record) error

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, handle uuid.UUID) error

	// DeleteByUserID removes every record owned by the user and returns the
	// number removed.
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error)

	// DeleteExpired removes expired records and returns the number removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
