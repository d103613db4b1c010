package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/sessionguard/core/session"
)

// Store is a MongoDB-backed session store.
type Store struct {
	coll *mongo.Collection
}

// New creates a store over the given collection. Call EnsureIndexes once at
// startup: the unique indexes provide atomic create semantics and the TTL
// index lets MongoDB expire records on its own.
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// EnsureIndexes creates the unique handle/token-hash indexes, the user
// index, and a TTL index on the expiry field.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tokenHash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetPartialFilterExpression(
				bson.D{{Key: "userId", Value: bson.D{{Key: "$type", Value: "string"}}}},
			),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo store: ensure indexes: %w", err)
	}
	return nil
}

// document is the BSON shape of a session record. UUIDs are stored as
// strings to keep documents readable and index-friendly.
type document struct {
	Handle    string       `bson:"_id"`
	UserID    *string      `bson:"userId,omitempty"`
	TokenHash string       `bson:"tokenHash"`
	CSRFToken string       `bson:"csrfToken"`
	Public    session.Data `bson:"publicData"`
	Private   session.Data `bson:"privateData,omitempty"`
	ExpiresAt time.Time    `bson:"expiresAt"`
	CreatedAt time.Time    `bson:"createdAt"`
	UpdatedAt time.Time    `bson:"updatedAt"`
}

func toDocument(rec *session.Record) document {
	doc := document{
		Handle:    rec.Handle.String(),
		TokenHash: rec.TokenHash,
		CSRFToken: rec.CSRFToken,
		Public:    rec.Public,
		Private:   rec.Private,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.UserID.Valid {
		id := rec.UserID.UUID.String()
		doc.UserID = &id
	}
	return doc
}

func (d document) toRecord() (*session.Record, error) {
	handle, err := uuid.Parse(d.Handle)
	if err != nil {
		return nil, fmt.Errorf("mongo store: invalid handle %q: %w", d.Handle, err)
	}

	rec := session.Record{
		Handle:    handle,
		TokenHash: d.TokenHash,
		CSRFToken: d.CSRFToken,
		Public:    d.Public,
		Private:   d.Private,
		ExpiresAt: d.ExpiresAt,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}

	if d.UserID != nil {
		userID, err := uuid.Parse(*d.UserID)
		if err != nil {
			return nil, fmt.Errorf("mongo store: invalid user id %q: %w", *d.UserID, err)
		}
		rec.UserID = uuid.NullUUID{UUID: userID, Valid: true}
	}

	return &rec, nil
}

// GetByHandle returns the record for a handle.
func (s *Store) GetByHandle(ctx context.Context, handle uuid.UUID) (*session.Record, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: handle.String()}})
}

// GetByTokenHash returns the record whose stored token hash matches.
func (s *Store) GetByTokenHash(ctx context.Context, hash string) (*session.Record, error) {
	return s.findOne(ctx, bson.D{{Key: "tokenHash", Value: hash}})
}

// GetByUserID returns every record owned by the user.
func (s *Store) GetByUserID(ctx context.Context, userID uuid.UUID) ([]session.Record, error) {
	cursor, err := s.coll.Find(ctx, bson.D{{Key: "userId", Value: userID.String()}})
	if err != nil {
		return nil, fmt.Errorf("mongo store: list user sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []session.Record
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo store: decode record: %w", err)
		}
		rec, err := doc.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo store: list user sessions: %w", err)
	}

	return out, nil
}

// Create persists a new record. Duplicate keys on handle or token hash
// surface as ErrHandleCollision.
func (s *Store) Create(ctx context.Context, record *session.Record) error {
	if _, err := s.coll.InsertOne(ctx, toDocument(record)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return session.ErrHandleCollision
		}
		return fmt.Errorf("mongo store: create record: %w", err)
	}
	return nil
}

// Update replaces an existing, unexpired record. The filter makes the
// update conditional, matching the persistence port contract.
func (s *Store) Update(ctx context.Context, record *session.Record) error {
	doc := toDocument(record)

	res, err := s.coll.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: doc.Handle},
			{Key: "expiresAt", Value: bson.D{{Key: "$gt", Value: time.Now()}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "csrfToken", Value: doc.CSRFToken},
			{Key: "publicData", Value: doc.Public},
			{Key: "privateData", Value: doc.Private},
			{Key: "expiresAt", Value: doc.ExpiresAt},
			{Key: "updatedAt", Value: doc.UpdatedAt},
		}}},
	)
	if err != nil {
		return fmt.Errorf("mongo store: update record: %w", err)
	}
	if res.MatchedCount == 0 {
		return session.ErrSessionNotFound
	}

	return nil
}

// Delete removes a record. Absent records are not an error.
func (s *Store) Delete(ctx context.Context, handle uuid.UUID) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: handle.String()}}); err != nil {
		return fmt.Errorf("mongo store: delete record: %w", err)
	}
	return nil
}

// DeleteByUserID removes every record owned by the user.
func (s *Store) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.D{{Key: "userId", Value: userID.String()}})
	if err != nil {
		return 0, fmt.Errorf("mongo store: delete user sessions: %w", err)
	}
	return res.DeletedCount, nil
}

// DeleteExpired removes expired records not yet collected by the TTL
// monitor, which runs on a coarse interval.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.coll.DeleteMany(ctx,
		bson.D{{Key: "expiresAt", Value: bson.D{{Key: "$lte", Value: time.Now()}}}})
	if err != nil {
		return 0, fmt.Errorf("mongo store: delete expired: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) findOne(ctx context.Context, filter bson.D) (*session.Record, error) {
	var doc document
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("mongo store: find record: %w", err)
	}
	return doc.toRecord()
}
