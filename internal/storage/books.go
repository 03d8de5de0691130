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

func (r *SQLiteRepository) CreateBook(ctx context.Context, name string) (core.Book, error) {
	book := core.Book{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := book.Validate(); err != nil {
		return core.Book{}, err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO books (id, name, created_at) VALUES (?, ?, ?)`,
		book.ID, book.Name, encodeTime(book.CreatedAt))
	if err != nil {
		return core.Book{}, fmt.Errorf("insert book: %w", err)
	}

	slog.InfoContext(ctx, "Book created", "id", book.ID, "name", book.Name)
	return book, nil
}

func (r *SQLiteRepository) ListBooks(ctx context.Context) ([]core.Book, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at, deleted_at
		 FROM books WHERE deleted_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []core.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (r *SQLiteRepository) GetBook(ctx context.Context, id string) (core.Book, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, deleted_at
		 FROM books WHERE id = ? AND deleted_at IS NULL`, id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Book{}, ErrNotFound
	}
	return b, err
}

func (r *SQLiteRepository) RenameBook(ctx context.Context, id, name string) error {
	if err := (core.Book{Name: name}).Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE books SET name = ? WHERE id = ? AND deleted_at IS NULL`, name, id)
	if err != nil {
		return fmt.Errorf("rename book: %w", err)
	}
	return requireAffected(res)
}

// SoftDeleteBook moves the book to the recycle bin. Its categories,
// accounts and transactions stay in place but are no longer reachable
// because every listing is scoped to live books.
func (r *SQLiteRepository) SoftDeleteBook(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE books SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		encodeTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("soft delete book: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Book moved to recycle bin", "id", id)
	return nil
}

func (r *SQLiteRepository) RestoreBook(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE books SET deleted_at = NULL WHERE id = ? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("restore book: %w", err)
	}
	return requireAffected(res)
}

// PurgeBook removes a soft-deleted book and everything in it.
func (r *SQLiteRepository) PurgeBook(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purge book: %w", err)
	}
	defer tx.Rollback()

	// Entries have no book_id column, so delete them through the
	// transactions of this book before the cascade runs.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE transaction_id IN
		   (SELECT id FROM transactions WHERE book_id = ?)`, id); err != nil {
		return fmt.Errorf("purge book entries: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM books WHERE id = ? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("purge book: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purge book: %w", err)
	}
	slog.InfoContext(ctx, "Book purged", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (core.Book, error) {
	var (
		b         core.Book
		createdAt string
		deletedAt sql.NullString
	)
	if err := row.Scan(&b.ID, &b.Name, &createdAt, &deletedAt); err != nil {
		return core.Book{}, err
	}
	var err error
	if b.CreatedAt, err = decodeTime(createdAt); err != nil {
		return core.Book{}, err
	}
	if b.DeletedAt, err = decodeNullTime(deletedAt); err != nil {
		return core.Book{}, err
	}
	return b, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
