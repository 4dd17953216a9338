// Package reconcile merges freshly crawled records with what the store
// already holds, carrying forward provenance timestamps.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/eun2chd/allround/model"
)

// ProvenanceReader looks up stored timestamps for ids within one source.
// Ids with no stored record are absent from the returned map.
type ProvenanceReader interface {
	FindProvenance(ctx context.Context, source string, ids []string) (map[string]model.Provenance, error)
}

type Result struct {
	ToUpsert []model.ContestRecord
	Inserted []string
	Updated  []string
	RunAt    time.Time
}

type Engine struct {
	reader ProvenanceReader
	now    func() time.Time
}

func NewEngine(reader ProvenanceReader) *Engine {
	return &Engine{reader: reader, now: time.Now}
}

// WithClock returns a copy of the engine that reads time from now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

// Reconcile stamps every candidate with the run time as updated_at. Known
// ids keep their stored created_at and first_seen_at and count as updated;
// unknown ids get the run time for both and count as inserted. Field values
// are not compared: seeing an id again is an update.
//
// Duplicate ids keep their first occurrence. A failed lookup returns an error
// and no result.
func (e *Engine) Reconcile(ctx context.Context, source string, candidates []model.ContestRecord) (*Result, error) {
	// Mongo keeps millisecond precision; truncating keeps the returned
	// records equal to what a later read gives back.
	runAt := e.now().UTC().Truncate(time.Millisecond)
	res := &Result{RunAt: runAt}
	if len(candidates) == 0 {
		return res, nil
	}

	unique := make([]model.ContestRecord, 0, len(candidates))
	ids := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		unique = append(unique, c)
		ids = append(ids, c.ID)
	}

	existing, err := e.reader.FindProvenance(ctx, source, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup existing records: %w", err)
	}

	res.ToUpsert = make([]model.ContestRecord, 0, len(unique))
	for _, c := range unique {
		rec := c
		rec.Source = source
		rec.UpdatedAt = runAt

		if prov, ok := existing[c.ID]; ok {
			rec.CreatedAt = valueOr(prov.CreatedAt, runAt)
			first := valueOr(prov.FirstSeenAt, runAt)
			rec.FirstSeenAt = &first
			res.Updated = append(res.Updated, c.ID)
		} else {
			rec.CreatedAt = runAt
			first := runAt
			rec.FirstSeenAt = &first
			res.Inserted = append(res.Inserted, c.ID)
		}
		res.ToUpsert = append(res.ToUpsert, rec)
	}

	return res, nil
}

func valueOr(t *time.Time, def time.Time) time.Time {
	if t == nil || t.IsZero() {
		return def
	}
	return *t
}
