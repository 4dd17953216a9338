// Package store is the MongoDB-backed durable store: contest records, the
// rotating crawl cursor and notifications.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eun2chd/allround/metrics"
)

const (
	ContestsCollection      = "contests"
	CrawlStateCollection    = "crawl_state"
	NotificationsCollection = "notifications"
	DeliveriesCollection    = "notification_user_state"
	ProfilesCollection      = "profiles"
)

type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Connect opens a client, verifies it with a ping and returns the store for
// the named database.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, New(client.Database(database)), nil
}

// Ping checks the connection behind the store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// EnsureIndexes creates the unique natural-key indexes the upserts rely on,
// plus the indexes behind the listing queries.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		ContestsCollection: {
			{
				Keys:    bson.D{{Key: "source", Value: 1}, {Key: "id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "category", Value: 1}}},
		},
		CrawlStateCollection: {
			{
				Keys:    bson.D{{Key: "source", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		NotificationsCollection: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		DeliveriesCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "notification_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		ProfilesCollection: {
			{Keys: bson.D{{Key: "role", Value: 1}}},
		},
	}

	for coll, indexes := range specs {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func observe(operation, collection string, start time.Time, err error) {
	metrics.MongoOperationsTotal.WithLabelValues(operation, collection, metrics.StatusLabel(err)).Inc()
	metrics.MongoOperationDuration.WithLabelValues(operation, collection).Observe(time.Since(start).Seconds())
}
