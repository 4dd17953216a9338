package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eun2chd/allround/model"
)

// CountBySource returns how many records are stored for source.
func (s *Store) CountBySource(ctx context.Context, source string) (int64, error) {
	start := time.Now()
	n, err := s.db.Collection(ContestsCollection).CountDocuments(ctx, bson.M{"source": source})
	observe("count", ContestsCollection, start, err)
	if err != nil {
		return 0, fmt.Errorf("count contests for %s: %w", source, err)
	}
	return n, nil
}

// FindProvenance reads created_at / first_seen_at for the given ids in one
// query.
func (s *Store) FindProvenance(ctx context.Context, source string, ids []string) (map[string]model.Provenance, error) {
	out := make(map[string]model.Provenance, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	start := time.Now()
	opts := options.Find().SetProjection(bson.M{"_id": 0, "id": 1, "created_at": 1, "first_seen_at": 1})
	cursor, err := s.db.Collection(ContestsCollection).Find(ctx,
		bson.M{"source": source, "id": bson.M{"$in": ids}}, opts)
	if err != nil {
		observe("find", ContestsCollection, start, err)
		return nil, fmt.Errorf("find contests: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID               string `bson:"id"`
		model.Provenance `bson:",inline"`
	}
	err = cursor.All(ctx, &rows)
	observe("find", ContestsCollection, start, err)
	if err != nil {
		return nil, fmt.Errorf("decode contests: %w", err)
	}

	for _, r := range rows {
		out[r.ID] = r.Provenance
	}
	return out, nil
}

// UpsertContests writes every record keyed by (source, id), replacing the
// whole document when the key exists. Any write error fails the call.
func (s *Store) UpsertContests(ctx context.Context, records []model.ContestRecord) error {
	if len(records) == 0 {
		return nil
	}

	operations := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		operations = append(operations, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"source": rec.Source, "id": rec.ID}).
			SetReplacement(rec).
			SetUpsert(true))
	}

	start := time.Now()
	_, err := s.db.Collection(ContestsCollection).BulkWrite(ctx, operations, options.BulkWrite().SetOrdered(false))
	observe("bulk_upsert", ContestsCollection, start, err)
	if err != nil {
		return fmt.Errorf("upsert contests: %w", err)
	}
	return nil
}

// ContestQuery filters the contest listing. Empty fields do not filter.
type ContestQuery struct {
	Source   string
	Category string
	Search   string
	Page     int
	Limit    int
}

// ListContests returns one page of records, newest first, and the total
// number of matches.
func (s *Store) ListContests(ctx context.Context, q ContestQuery) ([]model.ContestRecord, int64, error) {
	filter := bson.M{}
	if q.Source != "" {
		filter["source"] = q.Source
	}
	if q.Category != "" {
		filter["category"] = q.Category
	}
	if q.Search != "" {
		pattern := searchPattern(q.Search)
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"host": pattern},
			bson.M{"category": pattern},
		}
	}

	coll := s.db.Collection(ContestsCollection)
	skip := int64((q.Page - 1) * q.Limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(skip).
		SetLimit(int64(q.Limit)).
		SetProjection(bson.M{"_id": 0})

	start := time.Now()
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		observe("find", ContestsCollection, start, err)
		return nil, 0, fmt.Errorf("list contests: %w", err)
	}
	defer cursor.Close(ctx)

	records := []model.ContestRecord{}
	err = cursor.All(ctx, &records)
	observe("find", ContestsCollection, start, err)
	if err != nil {
		return nil, 0, fmt.Errorf("decode contests: %w", err)
	}

	start = time.Now()
	total, err := coll.CountDocuments(ctx, filter)
	observe("count", ContestsCollection, start, err)
	if err != nil {
		return nil, 0, fmt.Errorf("count contests: %w", err)
	}
	return records, total, nil
}

// ContestFilters returns the distinct categories and sources, sorted.
func (s *Store) ContestFilters(ctx context.Context) (categories, sources []string, err error) {
	coll := s.db.Collection(ContestsCollection)

	start := time.Now()
	rawCats, err := coll.Distinct(ctx, "category", bson.M{})
	observe("distinct", ContestsCollection, start, err)
	if err != nil {
		return nil, nil, fmt.Errorf("distinct categories: %w", err)
	}

	start = time.Now()
	rawSources, err := coll.Distinct(ctx, "source", bson.M{})
	observe("distinct", ContestsCollection, start, err)
	if err != nil {
		return nil, nil, fmt.Errorf("distinct sources: %w", err)
	}

	return sortedStrings(rawCats), sortedStrings(rawSources), nil
}

func searchPattern(search string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(search), "$options": "i"}
}

func sortedStrings(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
