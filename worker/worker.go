// Package worker consumes crawl requests from JetStream, publishes their
// results and schedules periodic crawls.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/metrics"
	"github.com/eun2chd/allround/model"
	"github.com/eun2chd/allround/source"
)

const (
	StreamName     = "CONTEST_CRAWL"
	RequestSubject = "contests.crawl.request"
	ResultSubject  = "contests.crawl.result"
	durableName    = "contest-crawl-workers"

	// Redelivery only covers a worker that died before settling.
	maxDeliver = 2
)

// Crawler runs one invocation for a source slug.
type Crawler interface {
	Crawl(ctx context.Context, slug string, forceFull bool) (*model.CrawlResult, error)
	Sources() []*source.Source
}

// Publisher is the JetStream publish call the worker needs.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type Worker struct {
	crawler    Crawler
	js         nats.JetStreamContext
	publisher  Publisher
	log        logger.Logger
	runTimeout time.Duration
}

// New creates the stream if needed and returns a worker bound to it.
func New(crawler Crawler, nc *nats.Conn, log logger.Logger, runTimeout time.Duration) (*Worker, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	if err := SetupStreams(js, log); err != nil {
		return nil, err
	}
	return &Worker{
		crawler:    crawler,
		js:         js,
		publisher:  js,
		log:        log,
		runTimeout: runTimeout,
	}, nil
}

// Start subscribes the durable consumer and blocks until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	sub, err := w.js.Subscribe(RequestSubject, w.handleCrawlRequest,
		nats.Durable(durableName),
		nats.ManualAck(),
		nats.MaxAckPending(1),
		nats.MaxDeliver(maxDeliver),
		nats.AckWait(w.runTimeout+time.Minute),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Drain(); err != nil {
			w.log.Warn("Subscription drain failed", logger.Error(err))
		}
	}()

	w.log.Info("Crawl worker started", logger.String("subject", RequestSubject))
	<-ctx.Done()
	return ctx.Err()
}

func (w *Worker) handleCrawlRequest(msg *nats.Msg) {
	metrics.NatsMessagesReceived.WithLabelValues(RequestSubject, "received").Inc()

	ctx, cancel := context.WithTimeout(context.Background(), w.runTimeout)
	defer cancel()

	settle(msg, w.process(ctx, msg.Data))
}

// acker is the part of *nats.Msg used to settle a request.
type acker interface {
	Ack(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// settle acks a finished request and terminates a failed one. A failed run
// has already published its result and is retried by the next scheduled
// request, never by redelivery.
func settle(m acker, err error) {
	if err != nil {
		_ = m.Term()
		return
	}
	_ = m.Ack()
}

var errMalformed = errors.New("malformed crawl request")

// process runs the crawl a message asks for and publishes its result. The
// error decides how the message is acknowledged.
func (w *Worker) process(ctx context.Context, data []byte) error {
	var req model.CrawlRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Source == "" {
		w.log.Error("Failed to decode crawl request", logger.Error(err))
		return errMalformed
	}

	w.log.Info("Processing crawl request",
		logger.String("slug", req.Source),
		logger.Bool("full", req.Full),
		logger.String("request_id", req.RequestID),
	)

	result, err := w.crawler.Crawl(ctx, req.Source, req.Full)
	if result == nil {
		result = &model.CrawlResult{Source: req.Source, FetchedAt: time.Now().UTC()}
		if err != nil {
			result.Error = err.Error()
		}
	}
	result.RequestID = req.RequestID
	w.publishResult(result)

	if err != nil {
		w.log.Error("Crawl request failed",
			logger.String("slug", req.Source),
			logger.String("request_id", req.RequestID),
			logger.Error(err),
		)
	}
	return err
}

func (w *Worker) publishResult(result *model.CrawlResult) {
	data, err := json.Marshal(result)
	if err != nil {
		w.log.Error("Failed to marshal crawl result", logger.Error(err))
		return
	}

	_, err = w.publisher.Publish(ResultSubject, data)
	metrics.NatsMessagesPublished.WithLabelValues(ResultSubject, metrics.StatusLabel(err)).Inc()
	if err != nil {
		w.log.Warn("Failed to publish crawl result", logger.Error(err))
	}
}

// Dispatch enqueues a crawl request on the stream.
func (w *Worker) Dispatch(_ context.Context, req model.CrawlRequest) error {
	return publishRequest(w.publisher, req)
}

func publishRequest(p Publisher, req model.CrawlRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = p.Publish(RequestSubject, data)
	metrics.NatsMessagesPublished.WithLabelValues(RequestSubject, metrics.StatusLabel(err)).Inc()
	return err
}

// SetupStreams creates the work-queue stream. Results share the stream so
// they are retained for consumers that attach later.
func SetupStreams(js nats.JetStreamContext, log logger.Logger) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"contests.crawl.>"},
		Retention: nats.WorkQueuePolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return err
	}

	log.Info("NATS streams configured", logger.String("stream", StreamName))
	return nil
}
