// The conti worker exports ledger transactions to the configured
// spreadsheet, consuming AMQP sync messages with a periodic sweep as
// backstop.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/cli"
	applog "conti/internal/log"
	"conti/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("Failed to close repository", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer, err := backend.NewTransactionWriter(ctx, cfg)
	if err != nil {
		logger.Error("Failed to configure spreadsheet export", "error", err)
		os.Exit(1)
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, running on the sweep only", "error", err)
		} else {
			amqpClient = client
			defer func() {
				if err := client.Close(); err != nil {
					logger.Error("Failed to close AMQP client", "error", err)
				}
			}()
		}
	}

	syncWorker := worker.NewSyncWorker(repo, writer, cfg.SyncBatchSize)

	// Recover anything left pending while the worker was down.
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", "error", err)
	}

	logger.Info("Worker running", "sweep_interval", cfg.SyncInterval, "batch_size", cfg.SyncBatchSize)
	if err := syncWorker.Run(ctx, amqpClient, cfg.SyncInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}
