// Package mongo stores normalized events in a MongoDB collection, one document
// per fingerprint.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
	"github.com/pfrederiksen/discovr-ingest/internal/storage"
)

// Default database and collection names.
const (
	DefaultDatabase   = "discovr"
	DefaultCollection = "events"
)

// Store is a storage.Store backed by a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Open connects to uri, verifies the connection and ensures the collection's
// indexes exist.
func Open(ctx context.Context, uri, database, collection string) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	s := &Store{client: client, coll: client.Database(database).Collection(collection)}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique fingerprint and display id indexes and the
// city/start index used by the client API.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("fingerprint_unique"),
		},
		{
			Keys:    bson.D{{Key: "display_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("display_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "city", Value: 1}, {Key: "start_time", Value: 1}},
			Options: options.Index().SetName("city_start"),
		},
	})
	if err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}
	return nil
}

// FindByFingerprint implements storage.Store.
func (s *Store) FindByFingerprint(ctx context.Context, key string) (*event.NormalizedEvent, error) {
	var e event.NormalizedEvent
	err := s.coll.FindOne(ctx, bson.M{"fingerprint": key}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding %s: %w", key, err)
	}
	return &e, nil
}

// Upsert implements storage.Store with a ReplaceOne upsert on fingerprint.
func (s *Store) Upsert(ctx context.Context, e *event.NormalizedEvent) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"fingerprint": e.Fingerprint}, e, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting %s: %w", e.Fingerprint, err)
	}
	return nil
}

// UpsertMany implements storage.BatchUpserter with one unordered bulk write.
func (s *Store) UpsertMany(ctx context.Context, events []*event.NormalizedEvent) error {
	if len(events) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(events))
	for _, e := range events {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"fingerprint": e.Fingerprint}).
			SetReplacement(e).
			SetUpsert(true))
	}

	if _, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("bulk upserting %d events: %w", len(events), err)
	}
	return nil
}

// List implements storage.Lister using the city/start index.
func (s *Store) List(ctx context.Context, city string) ([]*event.NormalizedEvent, error) {
	filter := bson.M{}
	if city != "" {
		filter["city"] = city
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}, {Key: "fingerprint", Value: 1}})

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	var events []*event.NormalizedEvent
	if err := cur.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decoding events: %w", err)
	}
	return events, nil
}

// Close implements storage.Closer.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
