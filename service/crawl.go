// Package service runs one crawl invocation end to end: plan, fetch,
// reconcile, upsert, notify and advance the cursor.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/metrics"
	"github.com/eun2chd/allround/model"
	"github.com/eun2chd/allround/planner"
	"github.com/eun2chd/allround/reconcile"
	"github.com/eun2chd/allround/runner"
	"github.com/eun2chd/allround/source"
)

// ContestStore is the durable store for contest records.
type ContestStore interface {
	reconcile.ProvenanceReader
	CountBySource(ctx context.Context, source string) (int64, error)
	UpsertContests(ctx context.Context, records []model.ContestRecord) error
}

// CursorStore keeps the rotating cursor per source.
type CursorStore interface {
	ReadCursor(ctx context.Context, source string) (int, error)
	WriteCursor(ctx context.Context, source string, nextPage int, at time.Time) error
}

type PageRunner interface {
	Run(ctx context.Context, t runner.Target, pages []int, opts runner.Options) (*runner.Result, error)
}

type Notifier interface {
	Notify(ctx context.Context, source string, inserted, updated int) []model.NotificationEvent
}

type CrawlService struct {
	sources  *source.Registry
	contests ContestStore
	cursors  CursorStore
	runner   PageRunner
	engine   *reconcile.Engine
	notifier Notifier
	log      logger.Logger
	now      func() time.Time
}

func NewCrawlService(
	sources *source.Registry,
	contests ContestStore,
	cursors CursorStore,
	run PageRunner,
	notifier Notifier,
	log logger.Logger,
) *CrawlService {
	return &CrawlService{
		sources:  sources,
		contests: contests,
		cursors:  cursors,
		runner:   run,
		engine:   reconcile.NewEngine(contests),
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the clock that stamps each run. Records, cursor and
// result of one run share a single reading.
func (s *CrawlService) WithClock(now func() time.Time) *CrawlService {
	s.now = now
	return s
}

// Sources lists the registered sources.
func (s *CrawlService) Sources() []*source.Source {
	return s.sources.All()
}

// Crawl runs one invocation for the source slug. forceFull requests a full
// run regardless of the stored count, and is the only way to get a full run
// for a rotating source. The returned error is non-nil only for fatal
// failures; in that case the result still describes what was planned.
func (s *CrawlService) Crawl(ctx context.Context, slug string, forceFull bool) (*model.CrawlResult, error) {
	src, err := s.sources.Get(slug)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	runAt := s.now().UTC().Truncate(time.Millisecond)
	log := s.log.With(logger.String("source", src.Name))

	plan, err := s.plan(ctx, src, forceFull)
	if err != nil {
		s.recordRun(src.Name, model.ModeIncremental, start, err)
		log.Error("Crawl planning failed", logger.Error(err))
		return s.failed(src, model.ModeIncremental, err), err
	}
	mode := modeOf(plan)

	log.Info("Crawl started",
		logger.String("mode", string(mode)),
		logger.Int("start_page", plan.Start()),
		logger.Int("end_page", plan.End()),
	)

	res, err := s.runner.Run(ctx, src.Target(), plan.Pages, runner.Options{
		Delay:       src.Delay(plan.IsFull),
		StopOnEmpty: plan.StopOnEmpty,
	})
	if err != nil {
		s.recordRun(src.Name, mode, start, err)
		log.Error("Crawl aborted", logger.Error(err))
		return s.failed(src, mode, fmt.Errorf("crawl pages: %w", err)), err
	}

	result := &model.CrawlResult{
		Success:   true,
		Source:    src.Name,
		Mode:      mode,
		Pages:     res.PagesCrawled,
		FetchedAt: runAt,
	}

	if len(res.Records) == 0 {
		result.Message = "No data"
		s.advanceCursor(ctx, src, plan, res, result, runAt, log)
		s.recordRun(src.Name, mode, start, nil)
		log.Info("Crawl found no records", logger.Ints("failed_pages", res.FailedPages))
		return result, nil
	}

	rec, err := s.engine.WithClock(func() time.Time { return runAt }).Reconcile(ctx, src.Name, res.Records)
	if err != nil {
		s.recordRun(src.Name, mode, start, err)
		log.Error("Reconciliation failed", logger.Error(err))
		return s.failed(src, mode, err), err
	}

	if err := s.contests.UpsertContests(ctx, rec.ToUpsert); err != nil {
		s.recordRun(src.Name, mode, start, err)
		log.Error("Upsert failed", logger.Error(err))
		return s.failed(src, mode, err), err
	}
	metrics.RecordsReconciledTotal.WithLabelValues(src.Name, "inserted").Add(float64(len(rec.Inserted)))
	metrics.RecordsReconciledTotal.WithLabelValues(src.Name, "updated").Add(float64(len(rec.Updated)))

	result.Total = len(rec.ToUpsert)
	result.Inserted = len(rec.Inserted)
	result.Updated = len(rec.Updated)
	result.Message = summary(src, plan, res, result.Total)

	s.notifier.Notify(ctx, src.Name, result.Inserted, result.Updated)
	s.advanceCursor(ctx, src, plan, res, result, runAt, log)

	s.recordRun(src.Name, mode, start, nil)
	log.Info("Crawl completed",
		logger.String("mode", string(mode)),
		logger.Int("pages", res.PagesCrawled),
		logger.Int("total", result.Total),
		logger.Int("inserted", result.Inserted),
		logger.Int("updated", result.Updated),
		logger.Ints("failed_pages", res.FailedPages),
		logger.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (s *CrawlService) plan(ctx context.Context, src *source.Source, forceFull bool) (planner.Plan, error) {
	switch src.Mode {
	case source.ModeRotating:
		if !forceFull {
			return src.Rotating.Plan(1, false), nil
		}
		cursor, err := s.cursors.ReadCursor(ctx, src.Name)
		if err != nil {
			return planner.Plan{}, err
		}
		return src.Rotating.Plan(cursor, true), nil
	default:
		if forceFull {
			return src.CountGated.Plan(0, true), nil
		}
		n, err := s.contests.CountBySource(ctx, src.Name)
		if err != nil {
			return planner.Plan{}, err
		}
		return src.CountGated.Plan(n, false), nil
	}
}

// advanceCursor persists the next page after a rotating full run. A failed
// write is logged and does not fail the run.
func (s *CrawlService) advanceCursor(ctx context.Context, src *source.Source, plan planner.Plan, res *runner.Result, result *model.CrawlResult, runAt time.Time, log logger.Logger) {
	if src.Mode != source.ModeRotating || !plan.IsFull {
		return
	}
	next := src.Rotating.Next(plan, planner.Outcome{
		LastPage:  res.LastPage,
		Records:   len(res.Records),
		Exhausted: res.Exhausted,
	})
	result.NextPage = &next

	if err := s.cursors.WriteCursor(ctx, src.Name, next, runAt); err != nil {
		log.Error("Cursor write failed", logger.Int("next_page", next), logger.Error(err))
		return
	}
	metrics.CursorPosition.WithLabelValues(src.Name).Set(float64(next))
}

func (s *CrawlService) failed(src *source.Source, mode model.CrawlMode, err error) *model.CrawlResult {
	return &model.CrawlResult{
		Success:   false,
		Source:    src.Name,
		Mode:      mode,
		Error:     err.Error(),
		FetchedAt: s.now().UTC(),
	}
}

func (s *CrawlService) recordRun(name string, mode model.CrawlMode, start time.Time, err error) {
	metrics.CrawlRunsTotal.WithLabelValues(name, string(mode), metrics.StatusLabel(err)).Inc()
	metrics.CrawlRunDuration.WithLabelValues(name, string(mode)).Observe(time.Since(start).Seconds())
}

func modeOf(p planner.Plan) model.CrawlMode {
	if p.IsFull {
		return model.ModeFull
	}
	return model.ModeIncremental
}

func summary(src *source.Source, plan planner.Plan, res *runner.Result, total int) string {
	if src.Mode == source.ModeRotating {
		return fmt.Sprintf("%s %d건 upsert 완료 (%d페이지)", src.Name, total, res.PagesCrawled)
	}
	if plan.IsFull {
		return fmt.Sprintf("%d건 upsert 완료 (전체)", total)
	}
	return fmt.Sprintf("%d건 upsert 완료 (1~%d페이지만)", total, plan.End())
}
