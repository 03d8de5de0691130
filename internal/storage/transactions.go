package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"conti/internal/core"
)

const transactionColumns = `
	id, book_id, date, description, highlight, system, origin_account_id, deleted_at`

// CreateTransaction stores a validated transaction and its entries in
// one database transaction. New rows start in sync state pending so the
// export worker picks them up.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Date.IsZero() {
		t.Date = time.Now().UTC().Truncate(24 * time.Hour)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin create transaction: %w", err)
	}
	defer tx.Rollback()

	var origin sql.NullString
	if t.OriginAccountID != "" {
		origin = sql.NullString{String: t.OriginAccountID, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, book_id, date, description, highlight, system, origin_account_id, sync_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.BookID, encodeTime(t.Date), t.Description, string(t.Highlight),
		boolToInt(t.System), origin, SyncPending, encodeTime(time.Now()))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if err := insertEntries(ctx, tx, t.ID, t.Entries); err != nil {
		return core.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID, "book_id", t.BookID, "entries", len(t.Entries), "system", t.System)
	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions WHERE id = ? AND deleted_at IS NULL`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, err
	}
	if err := r.attachEntries(ctx, []*core.Transaction{&t}); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

// ListTransactions returns every live transaction of a book with its
// entries, newest first. Search, date range and re-sorting happen in
// memory on top of this.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, bookID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions WHERE book_id = ? AND deleted_at IS NULL
		 ORDER BY date DESC, created_at DESC`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var (
		transactions []core.Transaction
		refs         []*core.Transaction
	)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range transactions {
		refs = append(refs, &transactions[i])
	}
	if err := r.attachEntries(ctx, refs); err != nil {
		return nil, err
	}
	return transactions, nil
}

// UpdateTransaction replaces the header and entries of a user
// transaction and queues it for re-export. System transactions are
// managed by the application and cannot be edited.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	current, err := r.GetTransaction(ctx, t.ID)
	if err != nil {
		return err
	}
	if current.System {
		return core.ErrSystemTransaction
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE transactions SET date = ?, description = ?, highlight = ?, sync_status = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		encodeTime(t.Date), t.Description, string(t.Highlight), SyncPending, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE transaction_id = ?`, t.ID); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	if err := insertEntries(ctx, tx, t.ID, t.Entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction updated", "id", t.ID, "entries", len(t.Entries))
	return nil
}

func (r *SQLiteRepository) UpdateHighlight(ctx context.Context, id string, highlight core.Highlight) error {
	if !core.ValidHighlight(highlight) {
		return core.ErrInvalidHighlight
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET highlight = ? WHERE id = ? AND deleted_at IS NULL`,
		string(highlight), id)
	if err != nil {
		return fmt.Errorf("update highlight: %w", err)
	}
	return requireAffected(res)
}

// SoftDeleteTransactions moves the given transactions to the recycle
// bin in one shot. It refuses the whole batch if any of them is a
// system transaction.
func (r *SQLiteRepository) SoftDeleteTransactions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")

	var systemCount int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE id IN (`+placeholders+`) AND system = 1`,
		args...).Scan(&systemCount)
	if err != nil {
		return fmt.Errorf("check system transactions: %w", err)
	}
	if systemCount > 0 {
		return core.ErrSystemTransaction
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET deleted_at = ? WHERE id IN (`+placeholders+`) AND deleted_at IS NULL`,
		append([]any{encodeTime(time.Now())}, args...)...)
	if err != nil {
		return fmt.Errorf("soft delete transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	slog.InfoContext(ctx, "Transactions moved to recycle bin", "requested", len(ids), "deleted", n)
	return nil
}

func (r *SQLiteRepository) RestoreTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET deleted_at = NULL, sync_status = ?
		 WHERE id = ? AND deleted_at IS NOT NULL`, SyncPending, id)
	if err != nil {
		return fmt.Errorf("restore transaction: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) PurgeTransaction(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purge transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE transaction_id = ?`, id); err != nil {
		return fmt.Errorf("purge entries: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("purge transaction: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purge transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction purged", "id", id)
	return nil
}

// DeleteOpeningTransactions hard-deletes the synthesized opening
// transactions of an account, used when its opening balance is edited
// and a fresh one is written.
func (r *SQLiteRepository) DeleteOpeningTransactions(ctx context.Context, accountID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete opening transactions: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE transaction_id IN
		   (SELECT id FROM transactions WHERE origin_account_id = ?)`, accountID); err != nil {
		return fmt.Errorf("delete opening entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE origin_account_id = ?`, accountID); err != nil {
		return fmt.Errorf("delete opening transactions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete opening transactions: %w", err)
	}
	return nil
}

// GetPendingSyncTransactions returns live transactions waiting for
// export, oldest first.
func (r *SQLiteRepository) GetPendingSyncTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions WHERE sync_status = ? AND deleted_at IS NULL
		 ORDER BY created_at LIMIT ?`, SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	defer rows.Close()

	var (
		transactions []core.Transaction
		refs         []*core.Transaction
	)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range transactions {
		refs = append(refs, &transactions[i])
	}
	if err := r.attachEntries(ctx, refs); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if err := r.setSyncStatus(ctx, id, SyncSynced); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if err := r.setSyncStatus(ctx, id, SyncError); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set sync status: %w", err)
	}
	return requireAffected(res)
}

func insertEntries(ctx context.Context, tx *sql.Tx, transactionID string, entries []core.Entry) error {
	for i, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entries (transaction_id, account_id, side, amount_cents, description, position)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			transactionID, e.AccountID, string(e.Side), e.Amount.Cents, e.Description, i)
		if err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}
	return nil
}

// attachEntries loads the entries of the given transactions in one
// query, preserving their stored position.
func (r *SQLiteRepository) attachEntries(ctx context.Context, transactions []*core.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	byID := make(map[string]*core.Transaction, len(transactions))
	args := make([]any, len(transactions))
	for i, t := range transactions {
		byID[t.ID] = t
		args[i] = t.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(transactions)), ", ")

	rows, err := r.db.QueryContext(ctx,
		`SELECT transaction_id, account_id, side, amount_cents, description
		 FROM entries WHERE transaction_id IN (`+placeholders+`)
		 ORDER BY transaction_id, position`, args...)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			txID, side string
			e          core.Entry
		)
		if err := rows.Scan(&txID, &e.AccountID, &side, &e.Amount.Cents, &e.Description); err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}
		e.Side = core.EntrySide(side)
		if t, ok := byID[txID]; ok {
			t.Entries = append(t.Entries, e)
		}
	}
	return rows.Err()
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t                 core.Transaction
		date, highlight   string
		system            int64
		origin, deletedAt sql.NullString
	)
	err := row.Scan(&t.ID, &t.BookID, &date, &t.Description, &highlight,
		&system, &origin, &deletedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.Date, err = decodeTime(date); err != nil {
		return core.Transaction{}, err
	}
	t.Highlight = core.Highlight(highlight)
	t.System = system != 0
	t.OriginAccountID = origin.String
	if t.DeletedAt, err = decodeNullTime(deletedAt); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
