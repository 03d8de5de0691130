// Package backend selects the spreadsheet writer implementation from
// configuration.
package backend

import (
	"context"
	"log/slog"

	"conti/internal/config"
	"conti/internal/sheets"
	gsheet "conti/internal/sheets/google"
	"conti/internal/sheets/memory"
)

// NewTransactionWriter returns the Google Sheets writer when a
// spreadsheet is configured. Without one the in-process store is used,
// so the worker still drains the sync queue during development.
func NewTransactionWriter(ctx context.Context, cfg *config.Config) (sheets.TransactionWriter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		slog.Warn("GOOGLE_SPREADSHEET_ID not set, exported rows stay in memory")
		return memory.New(), nil
	}

	client, err := gsheet.NewFromEnv(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("Google Sheets export configured",
		"spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	return client, nil
}
