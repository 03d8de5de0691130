package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/sheets/memory"
	"conti/internal/storage"
)

type harness struct {
	repo   *storage.SQLiteRepository
	store  *memory.Store
	worker *SyncWorker
	book   core.Book
	cash   core.Account
	food   core.Account
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	book, err := repo.CreateBook(ctx, "Personal")
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	assets, err := repo.CreateCategory(ctx, book.ID, "Bank", core.TypeAsset)
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	expenses, err := repo.CreateCategory(ctx, book.ID, "Living", core.TypeExpense)
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	cash, err := repo.CreateAccount(ctx, core.Account{
		BookID: book.ID, CategoryID: assets.ID, Name: "Cash", OpeningSide: core.Debit,
	})
	if err != nil {
		t.Fatalf("create cash: %v", err)
	}
	food, err := repo.CreateAccount(ctx, core.Account{
		BookID: book.ID, CategoryID: expenses.ID, Name: "Food", OpeningSide: core.Debit,
	})
	if err != nil {
		t.Fatalf("create food: %v", err)
	}

	store := memory.New()
	return &harness{
		repo:   repo,
		store:  store,
		worker: NewSyncWorker(repo, store, 10),
		book:   book,
		cash:   cash,
		food:   food,
	}
}

func (h *harness) record(t *testing.T, cents int64) core.Transaction {
	t.Helper()
	saved, err := h.repo.CreateTransaction(context.Background(), core.Transaction{
		BookID:      h.book.ID,
		Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Description: "Groceries",
		Entries: []core.Entry{
			{AccountID: h.food.ID, Side: core.Debit, Amount: core.Money{Cents: cents}},
			{AccountID: h.cash.ID, Side: core.Credit, Amount: core.Money{Cents: cents}},
		},
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return saved
}

func TestHandleSyncMessageExportsRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	saved := h.record(t, 4500)

	if err := h.worker.HandleSyncMessage(ctx, amqp.NewTransactionSyncMessage(saved.ID)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	rows := h.store.Rows(saved.ID)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Account != "Food" || rows[0].Side != core.Debit {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Account != "Cash" || rows[1].Side != core.Credit {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}

	pending, err := h.repo.GetPendingSyncTransactions(ctx, 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("transaction should be marked synced: %v %d", err, len(pending))
	}
}

func TestHandleSyncMessageSkipsDeleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	saved := h.record(t, 100)

	if err := h.repo.SoftDeleteTransactions(ctx, []string{saved.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// A stale message for a trashed transaction is acked, not requeued.
	if err := h.worker.HandleSyncMessage(ctx, amqp.NewTransactionSyncMessage(saved.ID)); err != nil {
		t.Fatalf("handle should not error: %v", err)
	}
	if rows := h.store.Rows(saved.ID); rows != nil {
		t.Fatalf("nothing should be exported, got %+v", rows)
	}
}

func TestSyncFailureMarksError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	saved := h.record(t, 100)

	h.store.FailWith(saved.ID, errors.New("quota exceeded"))

	err := h.worker.HandleSyncMessage(ctx, amqp.NewTransactionSyncMessage(saved.ID))
	if err == nil {
		t.Fatalf("expected export error")
	}

	// The transaction leaves the pending queue via the error state.
	pending, err := h.repo.GetPendingSyncTransactions(ctx, 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected empty pending queue: %v %d", err, len(pending))
	}
}

func TestProcessPendingTransactions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.record(t, 100)
	second := h.record(t, 200)

	if err := h.worker.ProcessPendingTransactions(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if h.store.Rows(first.ID) == nil || h.store.Rows(second.ID) == nil {
		t.Fatalf("both transactions should be exported")
	}
	pending, err := h.repo.GetPendingSyncTransactions(ctx, 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("queue should be drained: %v %d", err, len(pending))
	}
}

func TestStartupSyncCheckContinuesPastFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bad := h.record(t, 100)
	good := h.record(t, 200)

	h.store.FailWith(bad.ID, errors.New("quota exceeded"))

	if err := h.worker.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("startup check: %v", err)
	}
	if h.store.Rows(good.ID) == nil {
		t.Fatalf("good transaction should still be exported")
	}
}
