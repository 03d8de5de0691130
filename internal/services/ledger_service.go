package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/storage"
)

// LedgerService orchestrates ledger writes across SQLite and AMQP. The
// AMQP client may be nil, in which case transactions are still saved
// and the periodic worker sweep picks them up for export later.
type LedgerService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewLedgerService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *LedgerService {
	return &LedgerService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// RecordTransaction validates and saves a user transaction, then queues
// it for export. Entries are stored normalized, debits before credits.
func (s *LedgerService) RecordTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	normalized, err := s.validate(ctx, &t)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Entries = normalized
	t.System = false
	t.OriginAccountID = ""

	saved, err := s.storage.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.publishSync(ctx, saved.ID)
	return saved, nil
}

// AmendTransaction revalidates and replaces an existing user
// transaction, then queues it for re-export.
func (s *LedgerService) AmendTransaction(ctx context.Context, t core.Transaction) error {
	normalized, err := s.validate(ctx, &t)
	if err != nil {
		return err
	}
	t.Entries = normalized

	if err := s.storage.UpdateTransaction(ctx, t); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	s.publishSync(ctx, t.ID)
	return nil
}

func (s *LedgerService) validate(ctx context.Context, t *core.Transaction) ([]core.Entry, error) {
	if !core.ValidHighlight(t.Highlight) {
		return nil, core.ErrInvalidHighlight
	}
	if t.Date.IsZero() {
		// Ledger dates are day-granular; a defaulted date must not
		// carry a time of day.
		t.Date = time.Now().UTC().Truncate(24 * time.Hour)
	}

	accounts, err := s.storage.ListAccounts(ctx, t.BookID)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return core.ValidateTransaction(t.Description, t.Entries, core.NewAccountSet(accounts))
}

func (s *LedgerService) SetHighlight(ctx context.Context, id string, highlight core.Highlight) error {
	return s.storage.UpdateHighlight(ctx, id, highlight)
}

// DeleteTransactions moves the given transactions to the recycle bin.
// The export sheet is an append log, so nothing is published for
// deletions.
func (s *LedgerService) DeleteTransactions(ctx context.Context, ids []string) error {
	return s.storage.SoftDeleteTransactions(ctx, ids)
}

// OpenAccount creates an account and, when it has a non-zero opening
// balance, synthesizes the balancing system transaction against the
// book's opening-balances equity account.
func (s *LedgerService) OpenAccount(ctx context.Context, account core.Account) (core.Account, error) {
	created, err := s.storage.CreateAccount(ctx, account)
	if err != nil {
		return core.Account{}, err
	}

	if created.Opening.Cents > 0 {
		if err := s.writeOpeningTransaction(ctx, created); err != nil {
			return core.Account{}, err
		}
	}
	return created, nil
}

// UpdateAccount persists account changes and re-synthesizes the opening
// transaction when the opening balance changed.
func (s *LedgerService) UpdateAccount(ctx context.Context, account core.Account) error {
	current, err := s.storage.GetAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	if err := s.storage.UpdateAccount(ctx, account); err != nil {
		return err
	}

	openingChanged := current.Opening != account.Opening || current.OpeningSide != account.OpeningSide
	if !openingChanged {
		return nil
	}

	if err := s.storage.DeleteOpeningTransactions(ctx, account.ID); err != nil {
		return err
	}
	if account.Opening.Cents > 0 {
		return s.writeOpeningTransaction(ctx, account)
	}
	return nil
}

func (s *LedgerService) writeOpeningTransaction(ctx context.Context, account core.Account) error {
	equity, err := s.storage.EnsureOpeningAccount(ctx, account.BookID)
	if err != nil {
		return fmt.Errorf("ensure opening account: %w", err)
	}

	opening := core.OpeningTransaction(account, equity.ID)
	saved, err := s.storage.CreateTransaction(ctx, opening)
	if err != nil {
		return fmt.Errorf("save opening transaction: %w", err)
	}

	s.publishSync(ctx, saved.ID)
	return nil
}

// Restore brings a recycle bin item back, dispatching on its kind.
func (s *LedgerService) Restore(ctx context.Context, kind core.TrashKind, id string) error {
	switch kind {
	case core.TrashBook:
		return s.storage.RestoreBook(ctx, id)
	case core.TrashCategory:
		return s.storage.RestoreCategory(ctx, id)
	case core.TrashAccount:
		return s.storage.RestoreAccount(ctx, id)
	case core.TrashTransaction:
		return s.storage.RestoreTransaction(ctx, id)
	default:
		return fmt.Errorf("restore: unknown trash kind %q", kind)
	}
}

// Purge permanently removes a recycle bin item.
func (s *LedgerService) Purge(ctx context.Context, kind core.TrashKind, id string) error {
	switch kind {
	case core.TrashBook:
		return s.storage.PurgeBook(ctx, id)
	case core.TrashCategory:
		return s.storage.PurgeCategory(ctx, id)
	case core.TrashAccount:
		return s.storage.PurgeAccount(ctx, id)
	case core.TrashTransaction:
		return s.storage.PurgeTransaction(ctx, id)
	default:
		return fmt.Errorf("purge: unknown trash kind %q", kind)
	}
}

// Balances returns the signed balance per live account of a book.
// Soft-deleted accounts still classify their historical entries.
func (s *LedgerService) Balances(ctx context.Context, bookID string) (map[string]core.Money, error) {
	accounts, transactions, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return core.ComputeBalances(accounts, transactions)
}

// TypeTotals returns one aggregate balance per category classification.
func (s *LedgerService) TypeTotals(ctx context.Context, bookID string) (map[core.CategoryType]core.Money, error) {
	accounts, transactions, err := s.loadBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return core.TypeTotals(accounts, transactions)
}

func (s *LedgerService) loadBook(ctx context.Context, bookID string) ([]core.Account, []core.Transaction, error) {
	accounts, err := s.storage.ListAllAccounts(ctx, bookID)
	if err != nil {
		return nil, nil, fmt.Errorf("load accounts: %w", err)
	}
	transactions, err := s.storage.ListTransactions(ctx, bookID)
	if err != nil {
		return nil, nil, fmt.Errorf("load transactions: %w", err)
	}
	return accounts, transactions, nil
}

func (s *LedgerService) publishSync(ctx context.Context, id string) {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message", "id", id)
		return
	}
	if err := s.amqpClient.PublishTransactionSync(ctx, id); err != nil {
		// The transaction is saved locally; the worker's pending sweep
		// will still find it.
		slog.ErrorContext(ctx, "Failed to publish sync message", "id", id, "error", err)
	}
}

// Close closes both storage and AMQP connections.
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}
