// Command consumer follows crawl results and notification events on NATS
// and writes them to the structured log.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/eun2chd/allround/config"
	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Must("info").Fatal("Failed to load configuration", logger.Error(err))
	}
	log := logger.Must(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	url := cfg.NATSUrl
	if url == "" {
		url = "nats://localhost:4222"
	}

	nc, err := worker.Connect(url, "allround-consumer", log)
	if err != nil {
		log.Fatal("Failed to connect to NATS", logger.Error(err))
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatal("Failed to create JetStream context", logger.Error(err))
	}
	if err := worker.SetupStreams(js, log); err != nil {
		log.Fatal("Failed to configure streams", logger.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subs, err := worker.NewAuditor(log).Start(ctx, nc, js)
	if err != nil {
		log.Fatal("Failed to start consumers", logger.Error(err))
	}
	<-ctx.Done()

	log.Info("Shutting down consumer")
	for _, s := range subs {
		_ = s.Drain()
	}
}
