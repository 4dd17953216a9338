package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eun2chd/allround/model"
)

// ReadCursor returns the next page to crawl for source. A source that has
// never stored a cursor starts at page 1.
func (s *Store) ReadCursor(ctx context.Context, source string) (int, error) {
	start := time.Now()
	var cur model.CrawlCursor
	err := s.db.Collection(CrawlStateCollection).FindOne(ctx, bson.M{"source": source}).Decode(&cur)
	if errors.Is(err, mongo.ErrNoDocuments) {
		observe("find_one", CrawlStateCollection, start, nil)
		return 1, nil
	}
	observe("find_one", CrawlStateCollection, start, err)
	if err != nil {
		return 0, fmt.Errorf("read cursor for %s: %w", source, err)
	}
	if cur.NextPage < 1 {
		return 1, nil
	}
	return cur.NextPage, nil
}

// WriteCursor stores the next page for source as of at, creating the row on
// first use.
func (s *Store) WriteCursor(ctx context.Context, source string, nextPage int, at time.Time) error {
	start := time.Now()
	_, err := s.db.Collection(CrawlStateCollection).UpdateOne(ctx,
		bson.M{"source": source},
		bson.M{"$set": bson.M{"next_page": nextPage, "updated_at": at.UTC()}},
		options.Update().SetUpsert(true),
	)
	observe("upsert", CrawlStateCollection, start, err)
	if err != nil {
		return fmt.Errorf("write cursor for %s: %w", source, err)
	}
	return nil
}
