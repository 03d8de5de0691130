// Package worker exports ledger transactions to Google Sheets, driven
// by AMQP messages with a periodic sweep as backstop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/sheets"
	"conti/internal/storage"
)

type SyncWorker struct {
	storage   *storage.SQLiteRepository
	writer    sheets.TransactionWriter
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, writer sheets.TransactionWriter, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   storage,
		writer:    writer,
		batchSize: batchSize,
	}
}

// Run consumes sync messages and sweeps for pending transactions until
// ctx is cancelled. The AMQP client may be nil, in which case only the
// sweep runs.
func (w *SyncWorker) Run(ctx context.Context, client *amqp.Client, sweepInterval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	if client != nil {
		g.Go(func() error {
			return client.ConsumeTransactionSync(ctx, func(msg *amqp.TransactionSyncMessage) error {
				return w.HandleSyncMessage(ctx, msg)
			})
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.ProcessPendingTransactions(ctx); err != nil {
					slog.ErrorContext(ctx, "Pending sweep failed", "error", err)
				}
			}
		}
	})

	return g.Wait()
}

// HandleSyncMessage exports the transaction named by one AMQP message.
// A transaction that was deleted in the meantime is skipped.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message", "id", msg.ID)

	transaction, err := w.storage.GetTransaction(ctx, msg.ID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Transaction gone before export, skipping", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	return w.syncToSheets(ctx, transaction)
}

// ProcessPendingTransactions exports transactions that are still marked
// pending. This is the backstop for lost AMQP messages.
func (w *SyncWorker) ProcessPendingTransactions(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncTransactions(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	for _, transaction := range pending {
		if err := w.syncToSheets(ctx, transaction); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction",
				"id", transaction.ID, "error", err)
		}
	}
	return nil
}

// StartupSyncCheck drains the pending queue once at worker startup with
// a larger batch, recovering from downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncTransactions(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending transactions for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending transactions on startup", "count", len(pending))

	synced, failed := 0, 0
	for _, transaction := range pending {
		if err := w.syncToSheets(ctx, transaction); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction during startup",
				"id", transaction.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending), "synced", synced, "errors", failed)
	return nil
}

func (w *SyncWorker) syncToSheets(ctx context.Context, transaction core.Transaction) error {
	rows, err := w.exportRows(ctx, transaction)
	if err != nil {
		return err
	}

	ref, err := w.writer.Append(ctx, transaction.ID, rows)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, transaction.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error",
				"id", transaction.ID, "error", markErr)
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, transaction.ID); err != nil {
		// The export itself worked, so the message is not requeued.
		slog.ErrorContext(ctx, "Failed to mark as synced",
			"id", transaction.ID, "error", err)
	}

	slog.InfoContext(ctx, "Transaction synced",
		"id", transaction.ID, "sheets_ref", ref, "rows", len(rows))
	return nil
}

// exportRows flattens a transaction into one sheet row per entry,
// resolving account names. Entries are stored debits first, so the
// sheet reads like a journal.
func (w *SyncWorker) exportRows(ctx context.Context, transaction core.Transaction) ([]sheets.Row, error) {
	accounts, err := w.storage.ListAllAccounts(ctx, transaction.BookID)
	if err != nil {
		return nil, fmt.Errorf("load account names: %w", err)
	}
	names := make(map[string]string, len(accounts))
	for _, a := range accounts {
		names[a.ID] = a.Name
	}

	rows := make([]sheets.Row, len(transaction.Entries))
	for i, e := range transaction.Entries {
		name, ok := names[e.AccountID]
		if !ok {
			return nil, fmt.Errorf("transaction %s: %w", transaction.ID, core.ErrUnknownAccount)
		}
		description := transaction.Description
		if e.Description != "" {
			description = e.Description
		}
		rows[i] = sheets.Row{
			Date:        transaction.Date,
			Description: description,
			Account:     name,
			Side:        e.Side,
			Amount:      e.Amount,
		}
	}
	return rows, nil
}
