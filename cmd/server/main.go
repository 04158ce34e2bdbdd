// Command server runs StreamDrop in local mode: no database, object store
// or queue, files on disk and metadata in memory.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/StreamDrop/internal/config"
	"github.com/dharsanguruparan/StreamDrop/internal/logging"
	"github.com/dharsanguruparan/StreamDrop/internal/processing"
	"github.com/dharsanguruparan/StreamDrop/internal/server"
	"github.com/dharsanguruparan/StreamDrop/internal/signing"
	"github.com/dharsanguruparan/StreamDrop/internal/storage"
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

	store := storage.NewMemoryStore()
	processor := processing.New(store, cfg.ProcessingPool, server.TextStep(store), logger)
	srv, err := server.New(cfg, store, processor, signing.NewSigner(cfg.SigningSecret), logger)
	if err != nil {
		logger.WithError(err).Fatal("init server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := srv.Serve(ctx); err != nil {
		logger.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
