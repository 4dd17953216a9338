package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eun2chd/allround/config"
	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/model"
	"github.com/eun2chd/allround/source"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.msgs = append(f.msgs, published{subj, data})
	return &nats.PubAck{Stream: StreamName}, f.err
}

type fakeCrawler struct {
	reqs   []model.CrawlRequest
	result *model.CrawlResult
	err    error
}

func (f *fakeCrawler) Crawl(_ context.Context, slug string, full bool) (*model.CrawlResult, error) {
	f.reqs = append(f.reqs, model.CrawlRequest{Source: slug, Full: full})
	return f.result, f.err
}

func (f *fakeCrawler) Sources() []*source.Source {
	reg, _ := source.NewRegistry(source.Builtin(), config.DefaultSources())
	return reg.All()
}

func newTestWorker(c *fakeCrawler, p *fakePublisher) *Worker {
	return &Worker{crawler: c, publisher: p, log: logger.NewNop(), runTimeout: time.Minute}
}

func TestProcess_PublishesResult(t *testing.T) {
	crawler := &fakeCrawler{result: &model.CrawlResult{Success: true, Source: "위비티", Total: 6}}
	pub := &fakePublisher{}
	w := newTestWorker(crawler, pub)

	err := w.process(context.Background(), []byte(`{"source":"wevity","full":true,"requestId":"r-1"}`))
	require.NoError(t, err)
	assert.Equal(t, []model.CrawlRequest{{Source: "wevity", Full: true}}, crawler.reqs)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, ResultSubject, pub.msgs[0].subject)
	var res model.CrawlResult
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &res))
	assert.Equal(t, "r-1", res.RequestID)
	assert.Equal(t, 6, res.Total)
}

func TestProcess_Malformed(t *testing.T) {
	crawler := &fakeCrawler{}
	pub := &fakePublisher{}
	w := newTestWorker(crawler, pub)

	require.ErrorIs(t, w.process(context.Background(), []byte(`{`)), errMalformed)
	require.ErrorIs(t, w.process(context.Background(), []byte(`{"full":true}`)), errMalformed)
	assert.Empty(t, crawler.reqs)
	assert.Empty(t, pub.msgs)
}

func TestProcess_FailureStillPublishes(t *testing.T) {
	crawler := &fakeCrawler{err: fmt.Errorf("%w: %q", source.ErrUnknownSource, "x")}
	pub := &fakePublisher{err: errors.New("nats: timeout")}
	w := newTestWorker(crawler, pub)

	err := w.process(context.Background(), []byte(`{"source":"x","requestId":"r-2"}`))
	require.ErrorIs(t, err, source.ErrUnknownSource)

	require.Len(t, pub.msgs, 1)
	var res model.CrawlResult
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &res))
	assert.False(t, res.Success)
	assert.Equal(t, "r-2", res.RequestID)
	assert.Contains(t, res.Error, "unknown source")
}

func TestDispatch_PublishesRequest(t *testing.T) {
	pub := &fakePublisher{}
	w := newTestWorker(&fakeCrawler{}, pub)

	require.NoError(t, w.Dispatch(context.Background(), model.CrawlRequest{Source: "allforyoung", RequestID: "abc"}))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, RequestSubject, pub.msgs[0].subject)
	assert.JSONEq(t, `{"source":"allforyoung","full":false,"requestId":"abc"}`, string(pub.msgs[0].data))
}

type recordingDispatcher struct {
	reqs []model.CrawlRequest
}

func (r *recordingDispatcher) Dispatch(_ context.Context, req model.CrawlRequest) error {
	r.reqs = append(r.reqs, req)
	return nil
}

func TestScheduler_Jobs(t *testing.T) {
	d := &recordingDispatcher{}
	sources := (&fakeCrawler{}).Sources()
	s, err := NewScheduler(d, sources, "*/30 * * * *", "0 */4 * * *", logger.NewNop())
	require.NoError(t, err)

	s.RunIncremental()
	require.Len(t, d.reqs, 2)
	assert.Equal(t, "allforyoung", d.reqs[0].Source)
	assert.False(t, d.reqs[0].Full)
	assert.NotEmpty(t, d.reqs[0].RequestID)
	assert.NotEqual(t, d.reqs[0].RequestID, d.reqs[1].RequestID)

	d.reqs = nil
	s.RunFull()
	require.Len(t, d.reqs, 1)
	assert.Equal(t, model.CrawlRequest{Source: "wevity", Full: true, RequestID: d.reqs[0].RequestID}, d.reqs[0])
}

func TestScheduler_BadSpec(t *testing.T) {
	_, err := NewScheduler(&recordingDispatcher{}, nil, "every minute", "0 * * * *", logger.NewNop())
	require.Error(t, err)
}

func TestDirectDispatcher(t *testing.T) {
	crawler := &fakeCrawler{result: &model.CrawlResult{Success: true, Source: "요즘것들"}}
	d := DirectDispatcher{Crawler: crawler, Log: logger.NewNop(), RunTimeout: time.Second}

	require.NoError(t, d.Dispatch(context.Background(), model.CrawlRequest{Source: "allforyoung"}))
	assert.Len(t, crawler.reqs, 1)

	crawler.err = errors.New("boom")
	require.Error(t, d.Dispatch(context.Background(), model.CrawlRequest{Source: "allforyoung"}))
}

func TestAuditor_Decodes(t *testing.T) {
	a := NewAuditor(logger.NewNop())

	next := 3
	data, err := json.Marshal(model.CrawlResult{Success: true, Source: "위비티", NextPage: &next})
	require.NoError(t, err)
	assert.NoError(t, a.HandleResult(data))
	assert.NoError(t, a.HandleResult([]byte(`{"success":false,"error":"upsert contests: E11000"}`)))
	assert.Error(t, a.HandleResult([]byte(`nope`)))

	assert.NoError(t, a.HandleNotification([]byte(`{"event":{"id":"n1","type":"insert","source":"S","count":2},"version":"1.0"}`)))
	assert.Error(t, a.HandleNotification([]byte(`[`)))
}

type fakeAck struct {
	acked, termed int
}

func (f *fakeAck) Ack(...nats.AckOpt) error  { f.acked++; return nil }
func (f *fakeAck) Term(...nats.AckOpt) error { f.termed++; return nil }

func TestSettle(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		acked int
	}{
		{"success", nil, 1},
		{"malformed", errMalformed, 0},
		{"unknown source", fmt.Errorf("%w: %q", source.ErrUnknownSource, "x"), 0},
		{"fatal run error", errors.New("upsert contests: mongo down"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeAck{}
			settle(m, tt.err)
			assert.Equal(t, tt.acked, m.acked)
			assert.Equal(t, 1-tt.acked, m.termed)
		})
	}
}
