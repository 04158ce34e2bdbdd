package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/StreamDrop/internal/api"
	"github.com/dharsanguruparan/StreamDrop/internal/config"
	"github.com/dharsanguruparan/StreamDrop/internal/database"
	"github.com/dharsanguruparan/StreamDrop/internal/events"
	"github.com/dharsanguruparan/StreamDrop/internal/logging"
	"github.com/dharsanguruparan/StreamDrop/internal/queue"
	"github.com/dharsanguruparan/StreamDrop/internal/repository"
	"github.com/dharsanguruparan/StreamDrop/internal/s3storage"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to $STREAMDROP_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.WithError(err).Fatal("init logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("connect database")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.WithError(err).Fatal("ensure schema")
	}

	store, err := s3storage.New(cfg.S3)
	if err != nil {
		logger.WithError(err).Fatal("init storage")
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		logger.WithError(err).Fatal("ensure buckets")
	}

	jobs := queue.NewClient(cfg.Redis)
	defer jobs.Close()
	publisher := events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	defer publisher.Close()

	srv := api.New(cfg, api.Deps{
		Uploads:   repository.NewUploadRepository(pool),
		Documents: repository.NewDocumentRepository(pool),
		Objects:   store,
		Queue:     jobs,
		Events:    publisher,
		Logger:    logger,
	})
	if err := srv.Run(ctx); err != nil {
		logger.WithError(err).Error("api stopped")
		os.Exit(1)
	}
}
