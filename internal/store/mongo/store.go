// Package mongo stores the directory in a MongoDB collection.
//
// Each record is one document keyed by its canonical name. A unique partial
// index on code enforces that a code identifies at most one document while
// allowing any number of documents without one.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/JonMunkholm/idlookup/internal/core"
)

var _ core.Store = (*Store)(nil)

const collectionName = "users"

type userDoc struct {
	Name   string `bson:"_id"`
	Code   string `bson:"code,omitempty"`
	UserID string `bson:"user_id"`
}

func (d userDoc) record() core.Record {
	return core.Record{Name: d.Name, Code: d.Code, ExternalID: d.UserID}
}

func docFor(rec core.Record) userDoc {
	return userDoc{Name: rec.Name, Code: rec.Code, UserID: rec.ExternalID}
}

// Store implements core.Store on MongoDB.
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
}

// Open connects to uri and uses the named database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}
	return New(client, client.Database(database)), nil
}

// New wraps a connected client and database.
func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{client: client, users: db.Collection(collectionName)}
}

// EnsureSchema creates the unique code index. Documents written before codes
// existed simply lack the field and read as code-absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	codeIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "code", Value: 1}},
		Options: options.Index().
			SetName("code_unique").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"code": bson.M{"$type": "string"}}),
	}
	if _, err := s.users.Indexes().CreateOne(ctx, codeIndex); err != nil {
		return fmt.Errorf("create code index: %w", err)
	}
	return nil
}

// Get returns the document stored under a canonical name.
func (s *Store) Get(ctx context.Context, name string) (core.Record, error) {
	return s.findOne(ctx, bson.M{"_id": name})
}

// GetByCode returns the document holding a canonical code.
func (s *Store) GetByCode(ctx context.Context, code string) (core.Record, error) {
	if code == "" {
		return core.Record{}, core.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"code": code})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (core.Record, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return core.Record{}, core.ErrNotFound
		}
		return core.Record{}, err
	}
	return doc.record(), nil
}

// Upsert releases rec's code from any other document, then replaces the
// document for rec.Name.
func (s *Store) Upsert(ctx context.Context, rec core.Record) error {
	if rec.HasCode() {
		if _, err := s.users.UpdateMany(ctx,
			bson.M{"code": rec.Code, "_id": bson.M{"$ne": rec.Name}},
			bson.M{"$unset": bson.M{"code": ""}},
		); err != nil {
			return fmt.Errorf("release code %q: %w", rec.Code, err)
		}
	}
	_, err := s.users.ReplaceOne(ctx,
		bson.M{"_id": rec.Name}, docFor(rec),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", rec.Name, err)
	}
	return nil
}

// Rename writes rec before removing oldName, so a failure between the two
// writes leaves both documents rather than neither.
func (s *Store) Rename(ctx context.Context, oldName string, rec core.Record) error {
	if err := s.Upsert(ctx, rec); err != nil {
		return err
	}
	if oldName == rec.Name {
		return nil
	}
	if _, err := s.users.DeleteOne(ctx, bson.M{"_id": oldName}); err != nil {
		return fmt.Errorf("delete %q: %w", oldName, err)
	}
	return nil
}

// DeleteByName removes one document.
func (s *Store) DeleteByName(ctx context.Context, name string) (bool, error) {
	res, err := s.users.DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", name, err)
	}
	return res.DeletedCount > 0, nil
}

// DeleteAll removes every document.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.users.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	return res.DeletedCount, nil
}

// ListAll returns every document ordered like the SQL stores.
func (s *Store) ListAll(ctx context.Context) ([]core.Record, error) {
	cursor, err := s.users.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	out := make([]core.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	core.SortRecords(out)
	return out, nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}
