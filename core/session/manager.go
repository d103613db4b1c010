package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessionguard/core/logger"
	"github.com/dmitrymomot/sessionguard/core/token"
)

// Manager is the authoritative session lifecycle state machine.
// It orchestrates anonymous and authenticated sessions over a Store,
// generating tokens through the token codec and keeping the persisted
// record in sync with the request-scoped Session it hands out.
type Manager struct {
	store      Store
	cfg        Config
	authorizer Authorizer
	log        *slog.Logger
}

// New creates a session manager. It verifies the process has a working
// entropy source and refuses to construct without one: a session engine
// that cannot generate unguessable tokens must not start.
func New(store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, ErrNoStore
	}

	if err := token.VerifyEntropy(); err != nil {
		return nil, err
	}

	m := &Manager{
		store: store,
		cfg:   defaultConfig(),
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Config returns a copy of the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// NewAnonymous builds a fresh anonymous session with publicData {userId: null}.
// Nothing is persisted; the session lives entirely in the client-held token.
// In advanced CSRF mode the session carries its own anti-CSRF token so that
// anonymous state changes can be double-submit protected.
func (m *Manager) NewAnonymous() (Session, error) {
	s := Session{
		state:    StateAnonymous,
		public:   Data{KeyUserID: nil},
		modified: true,
	}

	if m.cfg.Method == CSRFAdvanced {
		csrfToken, err := token.Generate()
		if err != nil {
			return Session{}, err
		}
		s.csrfToken = csrfToken
	}

	return s, nil
}

// Create promotes the current session to an authenticated one owned by userID.
// A new access token and a new anti-CSRF token are generated, a record is
// persisted, and any data carried by the prior anonymous session is merged
// underneath the explicit values (explicit wins on key conflict). The old
// anonymous token is discarded.
//
// Two sequential logins from the same client each produce independent
// records; the engine never implicitly invalidates a user's other sessions.
func (m *Manager) Create(ctx context.Context, sess *Session, userID uuid.UUID, public, private Data) error {
	if sess.IsRevoked() {
		return ErrRevoked
	}
	if userID == uuid.Nil {
		return ErrInvalidUserID
	}

	rawToken, err := token.Generate()
	if err != nil {
		return err
	}
	csrfToken, err := token.Generate()
	if err != nil {
		return err
	}

	// Only data carried by a prior anonymous session is merged under the
	// explicit values. An authenticated session's data belongs to its user
	// and never leaks into the new record.
	var carriedPub, carriedPriv Data
	if sess.state == StateAnonymous {
		carriedPub = sess.public
		carriedPriv = sess.private
	}
	pub := merged(carriedPub, public)
	pub[KeyUserID] = userID.String()
	priv := merged(carriedPriv, private)
	if len(priv) == 0 {
		priv = nil
	}

	now := time.Now()
	rec := &Record{
		Handle:    uuid.New(),
		UserID:    uuid.NullUUID{UUID: userID, Valid: true},
		TokenHash: token.Hash(rawToken),
		CSRFToken: csrfToken,
		Public:    pub,
		Private:   priv,
		ExpiresAt: now.Add(m.cfg.Expiry),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.Create(ctx, rec); err != nil {
		return errors.Join(ErrStoreFailed, err)
	}

	// A persisted anonymous session is superseded by the login. An
	// authenticated session's record stays live: sequential logins produce
	// independent records, never implicit invalidation.
	if sess.state == StateAnonymous && sess.handle != uuid.Nil {
		if err := m.store.Delete(ctx, sess.handle); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.log.WarnContext(ctx, "failed to delete superseded session record",
				logger.Handle(sess.handle), logger.Error(err))
		}
	}

	var privCopy Data
	if priv != nil {
		privCopy = priv.Clone()
	}

	*sess = Session{
		state:       StateAuthenticated,
		handle:      rec.Handle,
		userID:      userID,
		token:       rawToken,
		csrfToken:   csrfToken,
		expiresAt:   rec.ExpiresAt,
		public:      pub.Clone(),
		private:     privCopy,
		tokenIssued: true,
	}

	return nil
}

// LoadFromToken resolves a raw access token to a session. The token is
// hashed and looked up; absent, malformed, and expired records all surface
// as ErrInvalidToken so callers cannot distinguish them. On success the
// expiry is extended (sliding expiration, throttled by TouchInterval) and
// the supplied anti-CSRF token is recorded for the guard to consult.
func (m *Manager) LoadFromToken(ctx context.Context, rawToken, suppliedCSRF string) (Session, error) {
	if rawToken == "" {
		return Session{}, ErrInvalidToken
	}

	rec, err := m.store.GetByTokenHash(ctx, token.Hash(rawToken))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, errors.Join(ErrStoreFailed, err)
	}

	// Expired records are indistinguishable from absent ones.
	if rec.IsExpired() {
		return Session{}, ErrInvalidToken
	}

	if m.cfg.TouchInterval <= 0 || time.Since(rec.UpdatedAt) >= m.cfg.TouchInterval {
		now := time.Now()
		rec.ExpiresAt = now.Add(m.cfg.Expiry)
		rec.UpdatedAt = now
		if err := m.store.Update(ctx, rec); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				// Revoked between read and extend. Fail closed.
				return Session{}, ErrInvalidToken
			}
			return Session{}, errors.Join(ErrStoreFailed, err)
		}
	}

	state := StateAnonymous
	if rec.UserID.Valid {
		state = StateAuthenticated
	}

	return Session{
		state:        state,
		handle:       rec.Handle,
		userID:       rec.UserID.UUID,
		csrfToken:    rec.CSRFToken,
		expiresAt:    rec.ExpiresAt,
		public:       rec.Public.Clone(),
		private:      rec.Private.Clone(),
		suppliedCSRF: suppliedCSRF,
		csrfSupplied: suppliedCSRF != "",
	}, nil
}

// SetPublicData shallow-merges partial into the session's public data.
// The userId key is immutable and silently skipped. For purely client-held
// anonymous sessions only the in-memory copy changes; for persisted sessions
// the record is updated before returning.
//
// Changes to keys listed in PublicDataKeysToSync are propagated to every
// other live session of the same user, best effort.
func (m *Manager) SetPublicData(ctx context.Context, sess *Session, partial Data) error {
	if sess.IsRevoked() {
		return ErrRevoked
	}

	changes := partial.Clone()
	delete(changes, KeyUserID)
	if len(changes) == 0 {
		return nil
	}

	sess.public = merged(sess.public, changes)
	sess.modified = true

	if sess.handle == uuid.Nil {
		return nil
	}

	if err := m.updateRecordData(ctx, sess); err != nil {
		return err
	}

	if sess.userID != uuid.Nil {
		if synced := m.syncedSubset(changes); len(synced) > 0 {
			m.propagate(ctx, sess.userID, sess.handle, synced)
		}
	}

	return nil
}

// SetPrivateData shallow-merges partial into the session's private data.
// Private data never reaches the client, so writing it on a purely
// client-held anonymous session forces creation of a persisted record at
// that point; the session stays anonymous but gains a handle and a token.
func (m *Manager) SetPrivateData(ctx context.Context, sess *Session, partial Data) error {
	if sess.IsRevoked() {
		return ErrRevoked
	}
	if len(partial) == 0 {
		return nil
	}

	sess.private = merged(sess.private, partial)
	sess.modified = true

	if sess.handle == uuid.Nil {
		return m.persistAnonymous(ctx, sess)
	}

	return m.updateRecordData(ctx, sess)
}

// Revoke deletes the backing record and transitions the session to the
// terminal Revoked state. The middleware clears cookies and signals the
// client to drop its cached anti-CSRF token.
func (m *Manager) Revoke(ctx context.Context, sess *Session) error {
	if sess.handle != uuid.Nil {
		if err := m.store.Delete(ctx, sess.handle); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return errors.Join(ErrStoreFailed, err)
		}
	}

	*sess = Session{state: StateRevoked}
	return nil
}

// RevokeAll deletes every record owned by userID ("log out everywhere").
// Anonymous sessions carry no user-indexed record and are unaffected.
func (m *Manager) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return ErrInvalidUserID
	}

	n, err := m.store.DeleteByUserID(ctx, userID)
	if err != nil {
		return errors.Join(ErrStoreFailed, err)
	}

	m.log.InfoContext(ctx, "revoked all sessions for user",
		logger.UserID(userID), logger.Count("count", n))
	return nil
}

// Sessions returns the user's live (unexpired) session records, e.g. for an
// active-devices listing.
func (m *Manager) Sessions(ctx context.Context, userID uuid.UUID) ([]Record, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}

	recs, err := m.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrStoreFailed, err)
	}

	live := recs[:0]
	for _, rec := range recs {
		if !rec.IsExpired() {
			live = append(live, rec)
		}
	}
	return live, nil
}

// Authorize consults the injected authorization predicate for the requested
// action. Without a predicate every action is allowed; the engine carries no
// business rules of its own.
func (m *Manager) Authorize(sess Session, action string) error {
	if m.authorizer == nil {
		return nil
	}
	if !m.authorizer(sess, action) {
		return ErrNotAuthorized
	}
	return nil
}

// CleanupExpired removes expired records from the store and returns the
// number removed. Call it periodically (see Janitor) to keep the store from
// growing unbounded.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx)
	if err != nil {
		return 0, errors.Join(ErrStoreFailed, err)
	}
	return n, nil
}

// persistAnonymous creates a record for an anonymous session that can no
// longer live purely client-side. The record has no owning user.
func (m *Manager) persistAnonymous(ctx context.Context, sess *Session) error {
	rawToken, err := token.Generate()
	if err != nil {
		return err
	}

	csrfToken := sess.csrfToken
	if csrfToken == "" {
		if csrfToken, err = token.Generate(); err != nil {
			return err
		}
	}

	now := time.Now()
	rec := &Record{
		Handle:    uuid.New(),
		TokenHash: token.Hash(rawToken),
		CSRFToken: csrfToken,
		Public:    sess.public.Clone(),
		Private:   sess.private.Clone(),
		ExpiresAt: now.Add(m.cfg.Expiry),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.Create(ctx, rec); err != nil {
		return errors.Join(ErrStoreFailed, err)
	}

	sess.handle = rec.Handle
	sess.token = rawToken
	sess.csrfToken = csrfToken
	sess.expiresAt = rec.ExpiresAt
	sess.tokenIssued = true

	return nil
}

// updateRecordData writes the session's current data maps to its record.
func (m *Manager) updateRecordData(ctx context.Context, sess *Session) error {
	rec, err := m.store.GetByHandle(ctx, sess.handle)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return ErrInvalidToken
		}
		return errors.Join(ErrStoreFailed, err)
	}

	rec.Public = sess.public.Clone()
	rec.Private = sess.private.Clone()
	rec.UpdatedAt = time.Now()

	if err := m.store.Update(ctx, rec); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return ErrInvalidToken
		}
		return errors.Join(ErrStoreFailed, err)
	}

	return nil
}

// syncedSubset returns the subset of changes restricted to the configured
// cross-session sync keys.
func (m *Manager) syncedSubset(changes Data) Data {
	out := Data{}
	for k, v := range changes {
		if slices.Contains(m.cfg.PublicDataKeysToSync, k) {
			out[k] = v
		}
	}
	return out
}

// propagate pushes synced public data keys to the user's other live
// sessions. Read-after-write consistency across sessions is best effort:
// failures are logged, never surfaced to the originating request.
func (m *Manager) propagate(ctx context.Context, userID, origin uuid.UUID, synced Data) {
	recs, err := m.store.GetByUserID(ctx, userID)
	if err != nil {
		m.log.WarnContext(ctx, "failed to list sessions for sync",
			logger.UserID(userID), logger.Error(err))
		return
	}

	for _, rec := range recs {
		if rec.Handle == origin || rec.IsExpired() {
			continue
		}

		rec.Public = merged(rec.Public, synced)
		rec.UpdatedAt = time.Now()

		update := rec
		if err := m.store.Update(ctx, &update); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.log.WarnContext(ctx, "failed to sync public data to session",
				logger.UserID(userID), logger.Handle(rec.Handle), logger.Error(err))
		}
	}
}
