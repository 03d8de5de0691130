package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"conti/internal/core"
	"conti/internal/storage"
)

func newTestService(t *testing.T) *LedgerService {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	svc := NewLedgerService(repo, nil)
	t.Cleanup(func() { svc.Close() })
	return svc
}

type fixture struct {
	book core.Book
	cash core.Account
	food core.Account
}

func seed(t *testing.T, svc *LedgerService) fixture {
	t.Helper()
	ctx := context.Background()

	book, err := svc.storage.CreateBook(ctx, "Personal")
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	assets, err := svc.storage.CreateCategory(ctx, book.ID, "Bank", core.TypeAsset)
	if err != nil {
		t.Fatalf("create asset category: %v", err)
	}
	expenses, err := svc.storage.CreateCategory(ctx, book.ID, "Living", core.TypeExpense)
	if err != nil {
		t.Fatalf("create expense category: %v", err)
	}
	cash, err := svc.OpenAccount(ctx, core.Account{
		BookID: book.ID, CategoryID: assets.ID, Name: "Cash", OpeningSide: core.Debit,
	})
	if err != nil {
		t.Fatalf("open cash: %v", err)
	}
	food, err := svc.OpenAccount(ctx, core.Account{
		BookID: book.ID, CategoryID: expenses.ID, Name: "Food", OpeningSide: core.Debit,
	})
	if err != nil {
		t.Fatalf("open food: %v", err)
	}
	return fixture{book: book, cash: cash, food: food}
}

func TestRecordTransactionNormalizesEntries(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	saved, err := svc.RecordTransaction(ctx, core.Transaction{
		BookID:      f.book.ID,
		Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Description: "Groceries",
		Entries: []core.Entry{
			{AccountID: f.cash.ID, Side: core.Credit, Amount: core.Money{Cents: 4500}},
			{AccountID: f.food.ID, Side: core.Debit, Amount: core.Money{Cents: 4500}},
		},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := svc.storage.GetTransaction(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Entries[0].Side != core.Debit || got.Entries[0].AccountID != f.food.ID {
		t.Fatalf("entries should be stored debits first, got %+v", got.Entries)
	}
}

func TestRecordTransactionDefaultsDateToDay(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	saved, err := svc.RecordTransaction(ctx, core.Transaction{
		BookID:      f.book.ID,
		Description: "Groceries",
		Entries: []core.Entry{
			{AccountID: f.food.ID, Side: core.Debit, Amount: core.Money{Cents: 4500}},
			{AccountID: f.cash.ID, Side: core.Credit, Amount: core.Money{Cents: 4500}},
		},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if !saved.Date.Equal(saved.Date.Truncate(24 * time.Hour)) {
		t.Fatalf("defaulted date should be midnight, got %v", saved.Date)
	}
}

func TestRecordTransactionRejectsUnbalanced(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	_, err := svc.RecordTransaction(ctx, core.Transaction{
		BookID: f.book.ID,
		Entries: []core.Entry{
			{AccountID: f.food.ID, Side: core.Debit, Amount: core.Money{Cents: 100}},
			{AccountID: f.cash.ID, Side: core.Credit, Amount: core.Money{Cents: 99}},
		},
	})
	if !errors.Is(err, core.ErrUnbalanced) {
		t.Fatalf("expected ErrUnbalanced, got %v", err)
	}
}

func TestRecordTransactionRejectsDeletedAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	if err := svc.storage.SoftDeleteAccount(ctx, f.food.ID); err != nil {
		t.Fatalf("delete food: %v", err)
	}

	_, err := svc.RecordTransaction(ctx, core.Transaction{
		BookID: f.book.ID,
		Entries: []core.Entry{
			{AccountID: f.food.ID, Side: core.Debit, Amount: core.Money{Cents: 100}},
			{AccountID: f.cash.ID, Side: core.Credit, Amount: core.Money{Cents: 100}},
		},
	})
	if !errors.Is(err, core.ErrUnresolvedAccount) {
		t.Fatalf("expected ErrUnresolvedAccount, got %v", err)
	}
}

func TestOpenAccountSynthesizesOpeningBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	assets, err := svc.storage.GetCategory(ctx, f.cash.CategoryID)
	if err != nil {
		t.Fatalf("get category: %v", err)
	}
	savings, err := svc.OpenAccount(ctx, core.Account{
		BookID: f.book.ID, CategoryID: assets.ID, Name: "Savings",
		OpeningSide: core.Debit, Opening: core.Money{Cents: 50000},
	})
	if err != nil {
		t.Fatalf("open savings: %v", err)
	}

	balances, err := svc.Balances(ctx, f.book.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances[savings.ID].Cents != 50000 {
		t.Fatalf("savings balance = %d, want 50000", balances[savings.ID].Cents)
	}

	// The equity counterpost keeps the book balanced.
	totals, err := svc.TypeTotals(ctx, f.book.ID)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals[core.TypeAsset].Cents != 50000 || totals[core.TypeEquity].Cents != 50000 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}

func TestUpdateAccountReplacesOpeningTransaction(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	savings, err := svc.OpenAccount(ctx, core.Account{
		BookID: f.book.ID, CategoryID: f.cash.CategoryID, Name: "Savings",
		OpeningSide: core.Debit, Opening: core.Money{Cents: 10000},
	})
	if err != nil {
		t.Fatalf("open savings: %v", err)
	}

	savings.Opening = core.Money{Cents: 25000}
	if err := svc.UpdateAccount(ctx, savings); err != nil {
		t.Fatalf("update: %v", err)
	}

	balances, err := svc.Balances(ctx, f.book.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances[savings.ID].Cents != 25000 {
		t.Fatalf("savings balance = %d, want 25000", balances[savings.ID].Cents)
	}

	// Exactly one opening transaction must remain.
	txs, err := svc.storage.ListTransactions(ctx, f.book.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	openings := 0
	for _, tx := range txs {
		if tx.OriginAccountID == savings.ID {
			openings++
		}
	}
	if openings != 1 {
		t.Fatalf("expected one opening transaction, got %d", openings)
	}

	// Dropping the opening to zero removes it entirely.
	savings.Opening = core.Money{}
	if err := svc.UpdateAccount(ctx, savings); err != nil {
		t.Fatalf("update to zero: %v", err)
	}
	balances, err = svc.Balances(ctx, f.book.ID)
	if err != nil || balances[savings.ID].Cents != 0 {
		t.Fatalf("expected zero balance: %v %d", err, balances[savings.ID].Cents)
	}
}

func TestRestoreAndPurgeDispatch(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	f := seed(t, svc)

	saved, err := svc.RecordTransaction(ctx, core.Transaction{
		BookID: f.book.ID,
		Entries: []core.Entry{
			{AccountID: f.food.ID, Side: core.Debit, Amount: core.Money{Cents: 100}},
			{AccountID: f.cash.ID, Side: core.Credit, Amount: core.Money{Cents: 100}},
		},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := svc.DeleteTransactions(ctx, []string{saved.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Restore(ctx, core.TrashTransaction, saved.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := svc.storage.GetTransaction(ctx, saved.ID); err != nil {
		t.Fatalf("transaction should be live again: %v", err)
	}

	if err := svc.DeleteTransactions(ctx, []string{saved.ID}); err != nil {
		t.Fatalf("delete again: %v", err)
	}
	if err := svc.Purge(ctx, core.TrashTransaction, saved.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}

	if err := svc.Restore(ctx, core.TrashKind("widget"), "x"); err == nil {
		t.Fatalf("unknown trash kind should error")
	}
}
