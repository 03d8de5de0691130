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

func (r *SQLiteRepository) CreateCategory(ctx context.Context, bookID, name string, categoryType core.CategoryType) (core.Category, error) {
	category := core.Category{
		ID:     uuid.NewString(),
		BookID: bookID,
		Name:   name,
		Type:   categoryType,
	}
	if err := category.Validate(); err != nil {
		return core.Category{}, err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, book_id, name, type, created_at) VALUES (?, ?, ?, ?, ?)`,
		category.ID, category.BookID, category.Name, string(category.Type), encodeTime(time.Now()))
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}

	slog.InfoContext(ctx, "Category created",
		"id", category.ID, "book_id", bookID, "name", name, "type", categoryType)
	return category, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, bookID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, book_id, name, type, deleted_at
		 FROM categories WHERE book_id = ? AND deleted_at IS NULL
		 ORDER BY type, name`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, book_id, name, type, deleted_at
		 FROM categories WHERE id = ? AND deleted_at IS NULL`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, ErrNotFound
	}
	return c, err
}

// UpdateCategory renames a category and, when it has no live accounts,
// allows changing its classification. A type change under live accounts
// would silently flip their balance polarity, so it is refused.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, id, name string, categoryType core.CategoryType) error {
	current, err := r.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	updated := current
	updated.Name = name
	updated.Type = categoryType
	if err := updated.Validate(); err != nil {
		return err
	}

	if categoryType != current.Type {
		n, err := r.countLiveAccounts(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return core.ErrStillReferenced
		}
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, type = ? WHERE id = ? AND deleted_at IS NULL`,
		name, string(categoryType), id)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// SoftDeleteCategory refuses while any live account still belongs to
// the category.
func (r *SQLiteRepository) SoftDeleteCategory(ctx context.Context, id string) error {
	n, err := r.countLiveAccounts(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return core.ErrStillReferenced
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		encodeTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("soft delete category: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Category moved to recycle bin", "id", id)
	return nil
}

func (r *SQLiteRepository) RestoreCategory(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET deleted_at = NULL WHERE id = ? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("restore category: %w", err)
	}
	return requireAffected(res)
}

// PurgeCategory removes a soft-deleted category for good. Any remaining
// account row, live or trashed, still blocks it.
func (r *SQLiteRepository) PurgeCategory(ctx context.Context, id string) error {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE category_id = ?`, id).Scan(&n)
	if err != nil {
		return fmt.Errorf("count category accounts: %w", err)
	}
	if n > 0 {
		return core.ErrStillReferenced
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("purge category: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) countLiveAccounts(ctx context.Context, categoryID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE category_id = ? AND deleted_at IS NULL`,
		categoryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count live accounts: %w", err)
	}
	return n, nil
}

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c         core.Category
		ctype     string
		deletedAt sql.NullString
	)
	if err := row.Scan(&c.ID, &c.BookID, &c.Name, &ctype, &deletedAt); err != nil {
		return core.Category{}, err
	}
	c.Type = core.CategoryType(ctype)
	var err error
	if c.DeletedAt, err = decodeNullTime(deletedAt); err != nil {
		return core.Category{}, err
	}
	return c, nil
}
