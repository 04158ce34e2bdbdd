package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/StreamDrop/internal/config"
	"github.com/dharsanguruparan/StreamDrop/internal/database"
	"github.com/dharsanguruparan/StreamDrop/internal/logging"
	"github.com/dharsanguruparan/StreamDrop/internal/queue"
	"github.com/dharsanguruparan/StreamDrop/internal/repository"
	"github.com/dharsanguruparan/StreamDrop/internal/s3storage"
	"github.com/dharsanguruparan/StreamDrop/internal/worker"
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

	server := asynq.NewServer(queue.RedisOpt(cfg.Redis), asynq.Config{
		Concurrency: cfg.ProcessingPool,
		Logger:      logger,
	})
	processor := worker.NewProcessor(repository.NewDocumentRepository(pool), store, logger)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.WithField("concurrency", cfg.ProcessingPool).Info("worker starting")
	if err := server.Run(processor.Handler()); err != nil {
		logger.WithError(err).Error("worker stopped")
		os.Exit(1)
	}
}
