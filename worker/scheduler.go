package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/model"
	"github.com/eun2chd/allround/source"
)

// Dispatcher hands a crawl request to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.CrawlRequest) error
}

// DirectDispatcher runs crawls in-process when no message bus is configured.
type DirectDispatcher struct {
	Crawler    Crawler
	Log        logger.Logger
	RunTimeout time.Duration
}

func (d DirectDispatcher) Dispatch(ctx context.Context, req model.CrawlRequest) error {
	if d.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.RunTimeout)
		defer cancel()
	}
	result, err := d.Crawler.Crawl(ctx, req.Source, req.Full)
	if err != nil {
		return err
	}
	d.Log.Info("Scheduled crawl finished",
		logger.String("request_id", req.RequestID),
		logger.String("source", result.Source),
		logger.Int("total", result.Total),
	)
	return nil
}

// Scheduler enqueues an incremental crawl of every source on one schedule
// and a forced full crawl of the rotating sources on another.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher Dispatcher
	sources    []*source.Source
	log        logger.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewScheduler(d Dispatcher, sources []*source.Source, incrementalSpec, fullSpec string, log logger.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	clog := cronLogger{log}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		dispatcher: d,
		sources:    sources,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}

	if _, err := s.cron.AddFunc(incrementalSpec, s.RunIncremental); err != nil {
		cancel()
		return nil, fmt.Errorf("incremental schedule %q: %w", incrementalSpec, err)
	}
	if _, err := s.cron.AddFunc(fullSpec, s.RunFull); err != nil {
		cancel()
		return nil, fmt.Errorf("full schedule %q: %w", fullSpec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started", logger.Int("entries", len(s.cron.Entries())))
}

// Stop cancels in-flight dispatches and waits for running jobs.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// RunIncremental requests a default-mode crawl of every source.
func (s *Scheduler) RunIncremental() {
	for _, src := range s.sources {
		s.dispatch(src, false)
	}
}

// RunFull requests a full crawl of every rotating source.
func (s *Scheduler) RunFull() {
	for _, src := range s.sources {
		if src.Mode == source.ModeRotating {
			s.dispatch(src, true)
		}
	}
}

func (s *Scheduler) dispatch(src *source.Source, full bool) {
	req := model.CrawlRequest{Source: src.Slug, Full: full, RequestID: uuid.NewString()}
	if err := s.dispatcher.Dispatch(s.ctx, req); err != nil {
		s.log.Error("Failed to dispatch crawl",
			logger.String("slug", src.Slug),
			logger.Bool("full", full),
			logger.String("request_id", req.RequestID),
			logger.Error(err),
		)
		return
	}
	s.log.Debug("Crawl dispatched",
		logger.String("slug", src.Slug),
		logger.Bool("full", full),
		logger.String("request_id", req.RequestID),
	)
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
