package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eun2chd/allround/model"
	"github.com/eun2chd/allround/reconcile"
)

type fakeReader struct {
	stored map[string]model.Provenance
	err    error
	calls  int
	gotIDs []string
}

func (f *fakeReader) FindProvenance(_ context.Context, _ string, ids []string) (map[string]model.Provenance, error) {
	f.calls++
	f.gotIDs = ids
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]model.Provenance)
	for _, id := range ids {
		if p, ok := f.stored[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func ptr(t time.Time) *time.Time { return &t }

func candidates(ids ...string) []model.ContestRecord {
	out := make([]model.ContestRecord, len(ids))
	for i, id := range ids {
		out[i] = model.ContestRecord{Source: "S", ID: id, Title: "t" + id}
	}
	return out
}

var runTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func TestReconcile_PreservesProvenance(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	firstSeen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reader := &fakeReader{stored: map[string]model.Provenance{
		"1": {CreatedAt: ptr(created), FirstSeenAt: ptr(firstSeen)},
	}}
	engine := reconcile.NewEngine(reader).WithClock(func() time.Time { return runTime })

	res, err := engine.Reconcile(context.Background(), "S", candidates("1", "2"))
	require.NoError(t, err)
	require.Len(t, res.ToUpsert, 2)

	old := res.ToUpsert[0]
	assert.Equal(t, created, old.CreatedAt)
	require.NotNil(t, old.FirstSeenAt)
	assert.Equal(t, firstSeen, *old.FirstSeenAt)
	assert.Equal(t, runTime, old.UpdatedAt)

	fresh := res.ToUpsert[1]
	assert.Equal(t, runTime, fresh.CreatedAt)
	require.NotNil(t, fresh.FirstSeenAt)
	assert.Equal(t, runTime, *fresh.FirstSeenAt)
	assert.Equal(t, runTime, fresh.UpdatedAt)

	assert.Equal(t, []string{"2"}, res.Inserted)
	assert.Equal(t, []string{"1"}, res.Updated)
	assert.Equal(t, 1, reader.calls, "one bulk lookup")
}

func TestReconcile_IdenticalRecordStillCountsAsUpdated(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{stored: map[string]model.Provenance{
		"7": {CreatedAt: ptr(runTime.Add(-time.Hour)), FirstSeenAt: ptr(runTime.Add(-time.Hour))},
	}}
	engine := reconcile.NewEngine(reader).WithClock(func() time.Time { return runTime })

	res, err := engine.Reconcile(context.Background(), "S", candidates("7"))
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, res.Updated)
	assert.Empty(t, res.Inserted)
}

func TestReconcile_FillsMissingLegacyFirstSeen(t *testing.T) {
	t.Parallel()

	created := runTime.Add(-48 * time.Hour)
	reader := &fakeReader{stored: map[string]model.Provenance{
		"9": {CreatedAt: ptr(created)},
	}}
	engine := reconcile.NewEngine(reader).WithClock(func() time.Time { return runTime })

	res, err := engine.Reconcile(context.Background(), "S", candidates("9"))
	require.NoError(t, err)
	rec := res.ToUpsert[0]
	assert.Equal(t, created, rec.CreatedAt)
	assert.Equal(t, runTime, *rec.FirstSeenAt)
	assert.Equal(t, []string{"9"}, res.Updated)
}

func TestReconcile_DuplicateCandidatesKeepFirst(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{}
	engine := reconcile.NewEngine(reader).WithClock(func() time.Time { return runTime })

	in := candidates("1", "2")
	dup := model.ContestRecord{Source: "S", ID: "1", Title: "later"}
	res, err := engine.Reconcile(context.Background(), "S", append(in, dup))
	require.NoError(t, err)

	require.Len(t, res.ToUpsert, 2)
	assert.Equal(t, "t1", res.ToUpsert[0].Title)
	assert.Equal(t, []string{"1", "2"}, reader.gotIDs)
	assert.Equal(t, []string{"1", "2"}, res.Inserted)
}

func TestReconcile_LookupFailureIsFatal(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	engine := reconcile.NewEngine(&fakeReader{err: boom})

	res, err := engine.Reconcile(context.Background(), "S", candidates("1"))
	require.ErrorIs(t, err, boom)
	assert.Nil(t, res)
}

func TestReconcile_EmptyInputSkipsLookup(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{}
	res, err := reconcile.NewEngine(reader).Reconcile(context.Background(), "S", nil)
	require.NoError(t, err)
	assert.Empty(t, res.ToUpsert)
	assert.Zero(t, reader.calls)
}

func TestReconcile_TruncatesRunTimeToMillis(t *testing.T) {
	t.Parallel()

	precise := runTime.Add(123456789 * time.Nanosecond)
	engine := reconcile.NewEngine(&fakeReader{}).WithClock(func() time.Time { return precise })

	res, err := engine.Reconcile(context.Background(), "S", candidates("1"))
	require.NoError(t, err)
	assert.Equal(t, runTime.Add(123*time.Millisecond), res.RunAt)
	assert.Equal(t, res.RunAt, res.ToUpsert[0].CreatedAt)
}
