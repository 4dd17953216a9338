package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/eun2chd/allround/config"
	"github.com/eun2chd/allround/fetcher"
	"github.com/eun2chd/allround/handler"
	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/metrics"
	"github.com/eun2chd/allround/notifier"
	"github.com/eun2chd/allround/router"
	"github.com/eun2chd/allround/runner"
	"github.com/eun2chd/allround/service"
	"github.com/eun2chd/allround/source"
	"github.com/eun2chd/allround/store"
	"github.com/eun2chd/allround/worker"
)

const (
	serviceName = "allround-crawler"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Must("info").Fatal("Failed to load configuration", logger.Error(err))
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		logger.Must("info").Fatal("Failed to create logger", logger.Error(err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting contest crawler", logger.String("version", version), logger.String("env", cfg.Environment))
	metrics.Init(serviceName, version, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := handler.Deps{
		Log:         log,
		RunTimeout:  cfg.RunTimeout,
		ServiceName: serviceName,
	}

	var crawlService *service.CrawlService
	var nc *nats.Conn

	if err := cfg.Validate(); err != nil {
		// Keep serving health and return config_error from crawl endpoints.
		log.Error("Store not configured, running degraded", logger.Error(err))
		deps.ConfigErr = err
	} else {
		client, st, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB", logger.Error(err))
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		log.Info("Connected to MongoDB", logger.String("database", cfg.MongoDatabase))

		if err := st.EnsureIndexes(ctx); err != nil {
			log.Warn("Failed to ensure indexes", logger.Error(err))
		}

		var publisher notifier.Publisher
		if cfg.NATSUrl != "" {
			nc, err = worker.Connect(cfg.NATSUrl, serviceName, log)
			if err != nil {
				log.Fatal("Failed to connect to NATS", logger.Error(err))
			}
			defer nc.Close()
			publisher = notifier.NewNATSPublisher(nc)
			log.Info("Connected to NATS", logger.String("url", cfg.NATSUrl))
		}

		registry, err := source.NewRegistry(source.Builtin(), cfg.Sources)
		if err != nil {
			log.Fatal("Failed to build source registry", logger.Error(err))
		}

		run := runner.New(fetcher.NewFetcher(cfg.HTTPTimeout), log)
		notify := notifier.New(st, publisher, cfg.SubscriberRole, log)
		crawlService = service.NewCrawlService(registry, st, st, run, notify, log)

		deps.Crawler = crawlService
		deps.Contests = st
		deps.Notifications = st
		deps.Pinger = st
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.Setup(handler.New(deps), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening", logger.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})

	if crawlService != nil {
		var dispatcher worker.Dispatcher = worker.DirectDispatcher{
			Crawler:    crawlService,
			Log:        log,
			RunTimeout: cfg.RunTimeout,
		}

		if nc != nil {
			w, err := worker.New(crawlService, nc, log, cfg.RunTimeout)
			if err != nil {
				log.Fatal("Failed to create worker", logger.Error(err))
			}
			dispatcher = w
			g.Go(func() error {
				if err := w.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}

		if cfg.SchedulerEnabled {
			sched, err := worker.NewScheduler(dispatcher, crawlService.Sources(),
				cfg.IncrementalSchedule, cfg.FullSchedule, log)
			if err != nil {
				log.Fatal("Failed to create scheduler", logger.Error(err))
			}
			sched.Start()
			g.Go(func() error {
				<-gctx.Done()
				sched.Stop()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		log.Error("Service stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Contest crawler stopped")
}
