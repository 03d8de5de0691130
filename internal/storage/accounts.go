package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"conti/internal/core"
)

// Names of the per-book equity account that absorbs the counter-entries
// of synthesized opening-balance transactions.
const (
	openingCategoryName = "Equity"
	openingAccountName  = "Opening Balances"
)

const accountColumns = `
	a.id, a.book_id, a.category_id, a.name, c.type,
	a.opening_cents, a.opening_side, a.deleted_at`

func (r *SQLiteRepository) CreateAccount(ctx context.Context, account core.Account) (core.Account, error) {
	account.ID = uuid.NewString()
	if err := account.Validate(); err != nil {
		return core.Account{}, err
	}

	category, err := r.GetCategory(ctx, account.CategoryID)
	if err != nil {
		return core.Account{}, err
	}
	account.Type = category.Type

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, book_id, category_id, name, opening_cents, opening_side, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.BookID, account.CategoryID, account.Name,
		account.Opening.Cents, string(account.OpeningSide), encodeTime(time.Now()))
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}

	slog.InfoContext(ctx, "Account created",
		"id", account.ID, "book_id", account.BookID, "name", account.Name, "type", account.Type)
	return account, nil
}

// ListAccounts returns the live accounts of a book with their category
// classification resolved.
func (r *SQLiteRepository) ListAccounts(ctx context.Context, bookID string) ([]core.Account, error) {
	return r.queryAccounts(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts a JOIN categories c ON c.id = a.category_id
		 WHERE a.book_id = ? AND a.deleted_at IS NULL
		 ORDER BY c.type, a.name`, bookID)
}

// ListAllAccounts includes soft-deleted accounts. Balance computation
// needs them to classify entries of historical transactions.
func (r *SQLiteRepository) ListAllAccounts(ctx context.Context, bookID string) ([]core.Account, error) {
	return r.queryAccounts(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts a JOIN categories c ON c.id = a.category_id
		 WHERE a.book_id = ?
		 ORDER BY c.type, a.name`, bookID)
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts a JOIN categories c ON c.id = a.category_id
		 WHERE a.id = ? AND a.deleted_at IS NULL`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, ErrNotFound
	}
	return a, err
}

// UpdateAccount persists a changed name, category or opening balance.
// The caller is responsible for re-synthesizing the opening transaction
// when the opening balance changed.
func (r *SQLiteRepository) UpdateAccount(ctx context.Context, account core.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	if _, err := r.GetCategory(ctx, account.CategoryID); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, category_id = ?, opening_cents = ?, opening_side = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		account.Name, account.CategoryID, account.Opening.Cents,
		string(account.OpeningSide), account.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return requireAffected(res)
}

// SoftDeleteAccount moves an account to the recycle bin together with
// its synthesized opening transaction. It refuses while any other live
// transaction still posts to the account.
func (r *SQLiteRepository) SoftDeleteAccount(ctx context.Context, id string) error {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries e
		 JOIN transactions t ON t.id = e.transaction_id
		 WHERE e.account_id = ? AND t.deleted_at IS NULL
		   AND (t.origin_account_id IS NULL OR t.origin_account_id != ?)`,
		id, id).Scan(&n)
	if err != nil {
		return fmt.Errorf("count account references: %w", err)
	}
	if n > 0 {
		return core.ErrStillReferenced
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin soft delete account: %w", err)
	}
	defer tx.Rollback()

	now := encodeTime(time.Now())
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now, id)
	if err != nil {
		return fmt.Errorf("soft delete account: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions SET deleted_at = ? WHERE origin_account_id = ? AND deleted_at IS NULL`,
		now, id); err != nil {
		return fmt.Errorf("soft delete opening transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit soft delete account: %w", err)
	}
	slog.InfoContext(ctx, "Account moved to recycle bin", "id", id)
	return nil
}

// RestoreAccount brings an account back from the recycle bin along with
// its opening transaction. A trashed owning category is restored too,
// otherwise the account would come back unclassifiable.
func (r *SQLiteRepository) RestoreAccount(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore account: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET deleted_at = NULL WHERE id = ? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("restore account: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE categories SET deleted_at = NULL WHERE deleted_at IS NOT NULL
		   AND id = (SELECT category_id FROM accounts WHERE id = ?)`, id); err != nil {
		return fmt.Errorf("restore owning category: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions SET deleted_at = NULL WHERE origin_account_id = ? AND deleted_at IS NOT NULL`,
		id); err != nil {
		return fmt.Errorf("restore opening transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore account: %w", err)
	}
	slog.InfoContext(ctx, "Account restored", "id", id)
	return nil
}

// PurgeAccount permanently removes a soft-deleted account. Entries of
// other transactions, trashed or not, still block it.
func (r *SQLiteRepository) PurgeAccount(ctx context.Context, id string) error {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries e
		 JOIN transactions t ON t.id = e.transaction_id
		 WHERE e.account_id = ? AND (t.origin_account_id IS NULL OR t.origin_account_id != ?)`,
		id, id).Scan(&n)
	if err != nil {
		return fmt.Errorf("count account references: %w", err)
	}
	if n > 0 {
		return core.ErrStillReferenced
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purge account: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE transaction_id IN
		   (SELECT id FROM transactions WHERE origin_account_id = ?)`, id); err != nil {
		return fmt.Errorf("purge opening entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE origin_account_id = ?`, id); err != nil {
		return fmt.Errorf("purge opening transaction: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM accounts WHERE id = ? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("purge account: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purge account: %w", err)
	}
	slog.InfoContext(ctx, "Account purged", "id", id)
	return nil
}

// EnsureOpeningAccount returns the book's equity account that receives
// opening-balance counter-entries, creating the account and its Equity
// category on first use.
func (r *SQLiteRepository) EnsureOpeningAccount(ctx context.Context, bookID string) (core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts a JOIN categories c ON c.id = a.category_id
		 WHERE a.book_id = ? AND a.name = ? AND c.type = ? AND a.deleted_at IS NULL`,
		bookID, openingAccountName, string(core.TypeEquity))
	account, err := scanAccount(row)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, err
	}

	categoryID, err := r.findOrCreateEquityCategory(ctx, bookID)
	if err != nil {
		return core.Account{}, err
	}
	return r.CreateAccount(ctx, core.Account{
		BookID:      bookID,
		CategoryID:  categoryID,
		Name:        openingAccountName,
		OpeningSide: core.Credit,
	})
}

func (r *SQLiteRepository) findOrCreateEquityCategory(ctx context.Context, bookID string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM categories
		 WHERE book_id = ? AND type = ? AND deleted_at IS NULL
		 ORDER BY created_at LIMIT 1`,
		bookID, string(core.TypeEquity)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("find equity category: %w", err)
	}

	category, err := r.CreateCategory(ctx, bookID, openingCategoryName, core.TypeEquity)
	if err != nil {
		return "", err
	}
	return category.ID, nil
}

func (r *SQLiteRepository) queryAccounts(ctx context.Context, query string, args ...any) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a           core.Account
		ctype, side string
		deletedAt   sql.NullString
	)
	err := row.Scan(&a.ID, &a.BookID, &a.CategoryID, &a.Name, &ctype,
		&a.Opening.Cents, &side, &deletedAt)
	if err != nil {
		return core.Account{}, err
	}
	a.Type = core.CategoryType(ctype)
	a.OpeningSide = core.EntrySide(side)
	if a.DeletedAt, err = decodeNullTime(deletedAt); err != nil {
		return core.Account{}, err
	}
	return a, nil
}
