package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"archivo/features/document"
	"archivo/internal/app"
	"archivo/internal/config"
	"archivo/internal/logger"
	"archivo/internal/worker"
)

func main() {
	slog.SetDefault(slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	var taskPub document.EventPublisher
	if deps.NSQProducer != nil {
		taskPub = deps.NSQProducer
	}

	a, err := app.New(cfg, deps.DB, deps.Store, taskPub)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	if cfg.EnableIngestWorker {
		consumer, err := nsq.NewConsumer(worker.TopicIngestTask, worker.ChannelBackend, nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create NSQ consumer", "error", err)
			os.Exit(1)
		}
		consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
			return a.IngestConsumer.HandleMessage(m)
		}))
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "error", err)
			os.Exit(1)
		}
		defer consumer.Stop()
		slog.Info("ingest consumer connected", "topic", worker.TopicIngestTask)
	}

	if err := a.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
