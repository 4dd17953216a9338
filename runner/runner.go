// Package runner fetches planned listing pages one at a time and collects
// normalized, de-duplicated records.
package runner

import (
	"context"
	"time"

	"github.com/eun2chd/allround/extractor"
	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/metrics"
	"github.com/eun2chd/allround/model"
)

// Fetcher retrieves the raw body behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Target is everything the runner needs to know about one source.
type Target struct {
	Source     string
	PageURL    func(page int) string
	Extractor  extractor.Extractor
	Normalizer *extractor.Normalizer
}

type Options struct {
	// Delay is the pause between two fetches. There is no pause after the
	// last page.
	Delay time.Duration
	// StopOnEmpty ends the run at the first successfully fetched page that
	// adds no new ids, provided earlier pages produced records.
	StopOnEmpty bool
}

type Result struct {
	Records      []model.ContestRecord
	PagesCrawled int
	LastPage     int
	FailedPages  []int
	Exhausted    bool
}

type Runner struct {
	fetcher Fetcher
	log     logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*Runner)

// WithSleep replaces the inter-page sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = fn }
}

func New(f Fetcher, log logger.Logger, opts ...Option) *Runner {
	r := &Runner{fetcher: f, log: log, sleep: sleepContext}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run visits pages in order. A page that fails to fetch or parse contributes
// nothing and the run moves on. Only context cancellation aborts the run; the
// records gathered so far are returned alongside the error.
func (r *Runner) Run(ctx context.Context, t Target, pages []int, opts Options) (*Result, error) {
	res := &Result{}
	seen := make(map[string]struct{})

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.PagesCrawled++
		res.LastPage = page

		added, err := r.crawlPage(ctx, t, page, seen, res)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.FailedPages = append(res.FailedPages, page)
			metrics.PagesFetchedTotal.WithLabelValues(t.Source, "error").Inc()
			r.log.Warn("Page crawl failed",
				logger.String("source", t.Source),
				logger.Int("page", page),
				logger.Error(err),
			)
		} else {
			metrics.PagesFetchedTotal.WithLabelValues(t.Source, "ok").Inc()
			r.log.Debug("Page crawled",
				logger.String("source", t.Source),
				logger.Int("page", page),
				logger.Int("new_records", added),
			)
			if opts.StopOnEmpty && added == 0 && len(res.Records) > 0 {
				res.Exhausted = true
				r.log.Info("Empty page after data, stopping",
					logger.String("source", t.Source),
					logger.Int("page", page),
				)
				break
			}
		}

		if i < len(pages)-1 {
			if err := r.sleep(ctx, opts.Delay); err != nil {
				return res, err
			}
		}
	}

	return res, nil
}

// crawlPage appends records whose id has not been seen in this run and
// reports how many it added.
func (r *Runner) crawlPage(ctx context.Context, t Target, page int, seen map[string]struct{}, res *Result) (int, error) {
	body, err := r.fetcher.Fetch(ctx, t.PageURL(page))
	if err != nil {
		return 0, err
	}
	raws, err := t.Extractor.Extract(body)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, rec := range t.Normalizer.Normalize(raws) {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		res.Records = append(res.Records, rec)
		added++
	}
	return added, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
