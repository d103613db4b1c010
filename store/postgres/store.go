package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sessionguard/core/session"
)

// Schema is the table expected by the store. Schema migration tooling is
// out of scope; apply this with your migration tool of choice or call
// CreateSchema for development setups.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	handle       UUID PRIMARY KEY,
	user_id      UUID,
	token_hash   TEXT NOT NULL UNIQUE,
	csrf_token   TEXT NOT NULL,
	public_data  JSONB NOT NULL DEFAULT '{}'::jsonb,
	private_data JSONB,
	expires_at   TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions (user_id) WHERE user_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at);
`

// uniqueViolation is the Postgres error code for unique constraint conflicts.
const uniqueViolation = "23505"

// Store is a Postgres-backed session store over a pgx connection pool.
type Store struct {
	db *pgxpool.Pool
}

// New creates a Postgres-backed session store.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// CreateSchema applies the sessions table schema. Intended for development
// and tests; production deployments manage schema externally.
func (s *Store) CreateSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres store: create schema: %w", err)
	}
	return nil
}

const selectColumns = `handle, user_id, token_hash, csrf_token, public_data, private_data, expires_at, created_at, updated_at`

// GetByHandle returns the record for a handle.
func (s *Store) GetByHandle(ctx context.Context, handle uuid.UUID) (*session.Record, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM sessions WHERE handle = $1`, handle)
	return scanRecord(row)
}

// GetByTokenHash returns the record whose stored token hash matches.
func (s *Store) GetByTokenHash(ctx context.Context, hash string) (*session.Record, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM sessions WHERE token_hash = $1`, hash)
	return scanRecord(row)
}

// GetByUserID returns every record owned by the user.
func (s *Store) GetByUserID(ctx context.Context, userID uuid.UUID) ([]session.Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+` FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list user sessions: %w", err)
	}
	defer rows.Close()

	var out []session.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: list user sessions: %w", err)
	}

	return out, nil
}

// Create persists a new record. Unique violations on handle or token hash
// surface as ErrHandleCollision.
func (s *Store) Create(ctx context.Context, record *session.Record) error {
	public, private, err := marshalData(record)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO sessions (handle, user_id, token_hash, csrf_token, public_data, private_data, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.Handle, nullableUUID(record.UserID), record.TokenHash, record.CSRFToken,
		public, private, record.ExpiresAt, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return session.ErrHandleCollision
		}
		return fmt.Errorf("postgres store: create record: %w", err)
	}

	return nil
}

// Update replaces an existing, unexpired record. The conditional WHERE
// clause makes the update atomic: a record revoked or expired concurrently
// is reported as not found.
func (s *Store) Update(ctx context.Context, record *session.Record) error {
	public, private, err := marshalData(record)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE sessions
		SET csrf_token = $2, public_data = $3, private_data = $4, expires_at = $5, updated_at = $6
		WHERE handle = $1 AND expires_at > now()`,
		record.Handle, record.CSRFToken, public, private, record.ExpiresAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}

	return nil
}

// Delete removes a record. Absent records are not an error.
func (s *Store) Delete(ctx context.Context, handle uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE handle = $1`, handle); err != nil {
		return fmt.Errorf("postgres store: delete record: %w", err)
	}
	return nil
}

// DeleteByUserID removes every record owned by the user.
func (s *Store) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("postgres store: delete user sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes expired records.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("postgres store: delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*session.Record, error) {
	var (
		rec     session.Record
		userID  *uuid.UUID
		public  []byte
		private []byte
	)

	err := row.Scan(&rec.Handle, &userID, &rec.TokenHash, &rec.CSRFToken,
		&public, &private, &rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("postgres store: scan record: %w", err)
	}

	if userID != nil {
		rec.UserID = uuid.NullUUID{UUID: *userID, Valid: true}
	}

	if err := json.Unmarshal(public, &rec.Public); err != nil {
		return nil, fmt.Errorf("postgres store: decode public data: %w", err)
	}
	if private != nil {
		if err := json.Unmarshal(private, &rec.Private); err != nil {
			return nil, fmt.Errorf("postgres store: decode private data: %w", err)
		}
	}

	return &rec, nil
}

func marshalData(record *session.Record) (public, private []byte, err error) {
	public, err = json.Marshal(record.Public)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres store: encode public data: %w", err)
	}

	if record.Private != nil {
		private, err = json.Marshal(record.Private)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: encode private data: %w", err)
		}
	}

	return public, private, nil
}

func nullableUUID(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	return &id.UUID
}
