// The conti server: double-entry ledger web UI backed by SQLite, with
// transaction export queued over AMQP.
package main

import (
	"context"
	"os"
	"time"

	"conti/internal/amqp"
	"conti/internal/cli"
	"conti/internal/http"
	applog "conti/internal/log"
	"conti/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	// AMQP is optional: without it transactions still persist and the
	// worker sweep exports them later.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, exports rely on the worker sweep", "error", err)
		} else {
			amqpClient = client
		}
	}

	service := services.NewLedgerService(repo, amqpClient)

	server, err := http.NewServer(cfg, service, repo)
	if err != nil {
		logger.Error("Failed to build HTTP server", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger.Logger, 10*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown failed", "error", err)
		}
		if err := service.Close(); err != nil {
			logger.Error("Service close failed", "error", err)
		}
	})

	logger.Info("Starting conti", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := server.Start(); err != nil {
		logger.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
