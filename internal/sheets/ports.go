package sheets

import (
	"context"
	"time"

	"conti/internal/core"
)

// Row is one exported ledger line. A transaction with n entries becomes
// n rows sharing the same transaction reference.
type Row struct {
	Date        time.Time
	Description string
	Account     string
	Side        core.EntrySide
	Amount      core.Money
}

// TransactionWriter is the outbound port the export worker writes
// through.
type TransactionWriter interface {
	Append(ctx context.Context, transactionID string, rows []Row) (rowRef string, err error)
}
