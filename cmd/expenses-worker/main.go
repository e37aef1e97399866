package main

import (
	"context"
	"errors"
	"os"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/backend"
	"expenses/internal/cache"
	"expenses/internal/cli"
	"expenses/internal/export/gsheets"
	"expenses/internal/records"
	"expenses/internal/worker"
)

// exportMemory is how many finished exports the worker remembers.
const exportMemory = 1024

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("worker")
	logger.Info("Starting expenses-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid store configuration", "error", err)
		os.Exit(1)
	}
	// The memory driver would give the worker its own empty store.
	if backendCfg.Type == backend.MemoryBackend {
		logger.Error("The worker needs a shared store, STORE_DRIVER=memory is not supported")
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	store, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err, "driver", cfg.StoreDriver)
		os.Exit(1)
	}
	defer store.Close()

	exporter, err := gsheets.New(ctx, gsheets.Config{
		TemplateSpreadsheetID: cfg.GoogleTemplateSpreadsheetID,
		FolderID:              cfg.GoogleExportFolderID,
		ServiceAccountJSON:    cfg.GoogleServiceAccountJSON,
		ServiceAccountFile:    cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets exporter", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets exporter initialized", "template", cfg.GoogleTemplateSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exportWorker := worker.NewExportWorker(records.New(store.Store, records.WithPageSize(cfg.ListPageSize)), exporter, exportMemory)
	janitor := cache.NewJanitor(exportWorker.Cache())
	janitor.Start(time.Hour)
	defer janitor.Stop()

	go func() {
		for {
			err := amqpClient.ConsumeWeekEvents(ctx, exportWorker.HandleWeekEvent)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("Message consumption failed, reconnecting", "error", err)
			if err := amqpClient.Reconnect(ctx); err != nil {
				return
			}
		}
	}()

	logger.Info("Worker started, waiting for week events", "queue", cfg.AMQPQueue)
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
