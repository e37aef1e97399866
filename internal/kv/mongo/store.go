// Package mongo stores records as documents keyed by _id in one collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"expenses/internal/kv"
)

var _ kv.Store = (*Store)(nil)

// Collection is the subset of *mongo.Collection the store needs.
type Collection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

type document struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type Store struct {
	coll   Collection
	client *mongo.Client
}

// Connect dials uri, pings the deployment and returns a store over
// database.collection.
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	slog.InfoContext(ctx, "Connected to MongoDB", "database", database, "collection", collection)
	return &Store{coll: client.Database(database).Collection(collection), client: client}, nil
}

// NewWithCollection wraps an existing collection.
func NewWithCollection(coll Collection) *Store {
	return &Store{coll: coll}
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, nil)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find %s: %w", key, err)
	}
	return doc.Value, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	update := bson.M{"$set": bson.M{"value": value, "updatedAt": time.Now().UTC()}}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix, cursor string, limit int) (kv.Page, error) {
	if limit <= 0 {
		limit = kv.DefaultPageSize
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit + 1)).
		SetProjection(bson.M{"_id": 1})
	cur, err := s.coll.Find(ctx, listFilter(prefix, cursor), opts)
	if err != nil {
		return kv.Page{}, fmt.Errorf("find %s: %w", prefix, err)
	}
	defer cur.Close(ctx)

	var keys []string
	for cur.Next(ctx) {
		var doc struct {
			Key string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return kv.Page{}, fmt.Errorf("decode key: %w", err)
		}
		keys = append(keys, doc.Key)
	}
	if err := cur.Err(); err != nil {
		return kv.Page{}, fmt.Errorf("iterate %s: %w", prefix, err)
	}
	if len(keys) <= limit {
		return kv.Page{Keys: keys, Complete: true}, nil
	}
	keys = keys[:limit]
	return kv.Page{Keys: keys, Cursor: keys[len(keys)-1]}, nil
}

// listFilter selects _id values in [prefix, PrefixEnd(prefix)) strictly after cursor.
func listFilter(prefix, cursor string) bson.M {
	rng := bson.M{"$gte": prefix}
	if cursor != "" {
		rng = bson.M{"$gt": cursor}
	}
	if end := kv.PrefixEnd(prefix); end != "" {
		rng["$lt"] = end
	}
	return bson.M{"_id": rng}
}
