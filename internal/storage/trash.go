package storage

import (
	"context"
	"fmt"

	"conti/internal/core"
)

// ListTrash returns the recycle bin contents, newest deletions first.
// Items inside a trashed book are hidden because restoring the book
// brings them all back at once, and opening transactions trashed
// alongside their account ride with the account instead of showing up
// on their own.
func (r *SQLiteRepository) ListTrash(ctx context.Context) ([]core.TrashItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT 'book' AS kind, id, id AS book_id, name AS label, deleted_at
		FROM books WHERE deleted_at IS NOT NULL
		UNION ALL
		SELECT 'category', c.id, c.book_id, c.name, c.deleted_at
		FROM categories c JOIN books b ON b.id = c.book_id
		WHERE c.deleted_at IS NOT NULL AND b.deleted_at IS NULL
		UNION ALL
		SELECT 'account', a.id, a.book_id, a.name, a.deleted_at
		FROM accounts a JOIN books b ON b.id = a.book_id
		WHERE a.deleted_at IS NOT NULL AND b.deleted_at IS NULL
		UNION ALL
		SELECT 'transaction', t.id, t.book_id, t.description, t.deleted_at
		FROM transactions t JOIN books b ON b.id = t.book_id
		WHERE t.deleted_at IS NOT NULL AND b.deleted_at IS NULL
		  AND (t.origin_account_id IS NULL OR t.origin_account_id NOT IN
		       (SELECT id FROM accounts WHERE deleted_at IS NOT NULL))
		ORDER BY deleted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	defer rows.Close()

	var items []core.TrashItem
	for rows.Next() {
		var (
			item      core.TrashItem
			kind      string
			deletedAt string
		)
		if err := rows.Scan(&kind, &item.ID, &item.BookID, &item.Label, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan trash item: %w", err)
		}
		item.Kind = core.TrashKind(kind)
		if item.DeletedAt, err = decodeTime(deletedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
