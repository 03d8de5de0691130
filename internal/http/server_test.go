package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"conti/internal/config"
	"conti/internal/core"
	"conti/internal/services"
	"conti/internal/storage"
)

type serverHarness struct {
	server *Server
	ts     *httptest.Server
	repo   *storage.SQLiteRepository
	book   core.Book
	cash   core.Account
	food   core.Account
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}

	service := services.NewLedgerService(repo, nil)
	server, err := NewServer(&config.Config{
		Port:               "0",
		RateLimitPerMinute: 120,
		TrustedProxies:     []string{"127.0.0.0/8"},
	}, service, repo)
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	ts := httptest.NewServer(server.httpServer.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = server.Shutdown(context.Background())
		_ = repo.Close()
	})

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

	return &serverHarness{server: server, ts: ts, repo: repo, book: book, cash: cash, food: food}
}

func (h *serverHarness) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(h.ts.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *serverHarness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(h.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return resp, sb.String()
}

func transactionForm(bookID, cashID, foodID, amount string) url.Values {
	return url.Values{
		"book":          {bookID},
		"date":          {"2025-06-01"},
		"description":   {"Groceries"},
		"entry_account": {foodID, cashID},
		"entry_side":    {"debit", "credit"},
		"entry_amount":  {amount, amount},
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := newServerHarness(t)

	resp, _ := h.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	resp, _ = h.get(t, "/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d", resp.StatusCode)
	}
}

func TestIndexListsBooks(t *testing.T) {
	h := newServerHarness(t)

	resp, body := h.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Personal") {
		t.Fatalf("index should list the book, got: %.200s", body)
	}
}

func TestCreateBookFiresTriggers(t *testing.T) {
	h := newServerHarness(t)

	resp := h.postForm(t, "/books", url.Values{"name": {"Household"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	trigger := resp.Header.Get("HX-Trigger")
	if !strings.Contains(trigger, "books:changed") {
		t.Fatalf("HX-Trigger = %q, want books:changed", trigger)
	}
}

func TestCreateBookRejectsEmptyName(t *testing.T) {
	h := newServerHarness(t)

	resp := h.postForm(t, "/books", url.Values{"name": {"   "}})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestRecordTransactionAndList(t *testing.T) {
	h := newServerHarness(t)

	resp := h.postForm(t, "/transactions", transactionForm(h.book.ID, h.cash.ID, h.food.ID, "45,00"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if trigger := resp.Header.Get("HX-Trigger"); !strings.Contains(trigger, "ledger:changed") {
		t.Fatalf("HX-Trigger = %q, want ledger:changed", trigger)
	}

	_, body := h.get(t, "/ui/transactions?book="+h.book.ID)
	if !strings.Contains(body, "Groceries") {
		t.Fatalf("transaction list should contain the description")
	}
	if !strings.Contains(body, "€45,00") {
		t.Fatalf("transaction list should contain the amount, got: %.300s", body)
	}
	if !strings.Contains(body, "Food") || !strings.Contains(body, "Cash") {
		t.Fatalf("to/from view should name both accounts")
	}
}

func TestRecordTransactionRejectsUnbalanced(t *testing.T) {
	h := newServerHarness(t)

	form := transactionForm(h.book.ID, h.cash.ID, h.food.ID, "45,00")
	form["entry_amount"] = []string{"45,00", "40,00"}

	resp := h.postForm(t, "/transactions", form)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestRecordTransactionRejectsBadAmount(t *testing.T) {
	h := newServerHarness(t)

	form := transactionForm(h.book.ID, h.cash.ID, h.food.ID, "-3")
	resp := h.postForm(t, "/transactions", form)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestFilterBySearch(t *testing.T) {
	h := newServerHarness(t)

	h.postForm(t, "/transactions", transactionForm(h.book.ID, h.cash.ID, h.food.ID, "45,00"))

	second := transactionForm(h.book.ID, h.cash.ID, h.food.ID, "12,00")
	second.Set("description", "Cinema")
	h.postForm(t, "/transactions", second)

	_, body := h.get(t, "/ui/transactions?book="+h.book.ID+"&q=cinema")
	if !strings.Contains(body, "Cinema") || strings.Contains(body, "Groceries") {
		t.Fatalf("search filter should keep only matching transactions")
	}
}

func TestHighlightEndpoint(t *testing.T) {
	h := newServerHarness(t)
	ctx := context.Background()

	h.postForm(t, "/transactions", transactionForm(h.book.ID, h.cash.ID, h.food.ID, "45,00"))
	transactions, err := h.repo.ListTransactions(ctx, h.book.ID)
	if err != nil || len(transactions) != 1 {
		t.Fatalf("expected one transaction: %v", err)
	}

	resp := h.postForm(t, "/transactions/highlight", url.Values{
		"id":    {transactions[0].ID},
		"book":  {h.book.ID},
		"color": {"yellow"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp = h.postForm(t, "/transactions/highlight", url.Values{
		"id":    {transactions[0].ID},
		"book":  {h.book.ID},
		"color": {"purple"},
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid color status = %d, want 422", resp.StatusCode)
	}
}

func TestDeleteAndRestoreTransaction(t *testing.T) {
	h := newServerHarness(t)
	ctx := context.Background()

	h.postForm(t, "/transactions", transactionForm(h.book.ID, h.cash.ID, h.food.ID, "45,00"))
	transactions, err := h.repo.ListTransactions(ctx, h.book.ID)
	if err != nil || len(transactions) != 1 {
		t.Fatalf("expected one transaction: %v", err)
	}
	id := transactions[0].ID

	resp := h.postForm(t, "/transactions/delete", url.Values{
		"book": {h.book.ID},
		"ids":  {id},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	_, body := h.get(t, "/ui/trash")
	if !strings.Contains(body, "Groceries") {
		t.Fatalf("recycle bin should list the deleted transaction")
	}

	resp = h.postForm(t, "/trash/restore", url.Values{
		"kind": {"transaction"},
		"id":   {id},
		"book": {h.book.ID},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore status = %d", resp.StatusCode)
	}

	restored, err := h.repo.ListTransactions(ctx, h.book.ID)
	if err != nil || len(restored) != 1 {
		t.Fatalf("transaction should be live again: %v", err)
	}
}

func TestAccountDeleteStillReferencedConflict(t *testing.T) {
	h := newServerHarness(t)

	h.postForm(t, "/transactions", transactionForm(h.book.ID, h.cash.ID, h.food.ID, "45,00"))

	resp := h.postForm(t, "/accounts/delete", url.Values{
		"id":   {h.cash.ID},
		"book": {h.book.ID},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestBalancesPartial(t *testing.T) {
	h := newServerHarness(t)

	h.postForm(t, "/transactions", transactionForm(h.book.ID, h.cash.ID, h.food.ID, "45,00"))

	_, body := h.get(t, "/ui/balances?book="+h.book.ID)
	if !strings.Contains(body, "Food") || !strings.Contains(body, "€45,00") {
		t.Fatalf("balances should show the expense account total, got: %.300s", body)
	}
	if !strings.Contains(body, "-€45,00") {
		t.Fatalf("cash should show a negative balance")
	}
}

func TestBalancesCacheInvalidatedOnWrite(t *testing.T) {
	h := newServerHarness(t)

	h.postForm(t, "/transactions", transactionForm(h.book.ID, h.cash.ID, h.food.ID, "45,00"))
	_, first := h.get(t, "/ui/balances?book="+h.book.ID)
	if !strings.Contains(first, "€45,00") {
		t.Fatalf("first read should show the balance")
	}

	h.postForm(t, "/transactions", transactionForm(h.book.ID, h.cash.ID, h.food.ID, "5,00"))
	_, second := h.get(t, "/ui/balances?book="+h.book.ID)
	if !strings.Contains(second, "€50,00") {
		t.Fatalf("balance should reflect the second transaction, got: %.300s", second)
	}
}

func TestBalancesRefreshAfterCategoryRename(t *testing.T) {
	h := newServerHarness(t)

	h.postForm(t, "/transactions", transactionForm(h.book.ID, h.cash.ID, h.food.ID, "45,00"))
	_, first := h.get(t, "/ui/balances?book="+h.book.ID)
	if !strings.Contains(first, "Living") {
		t.Fatalf("balances should show the category name, got: %.300s", first)
	}

	resp := h.postForm(t, "/categories/update", url.Values{
		"id":   {h.food.CategoryID},
		"book": {h.book.ID},
		"name": {"Household"},
		"type": {"expense"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rename status = %d", resp.StatusCode)
	}

	_, second := h.get(t, "/ui/balances?book="+h.book.ID)
	if !strings.Contains(second, "Household") || strings.Contains(second, "Living") {
		t.Fatalf("balances should show the renamed category, got: %.300s", second)
	}
}

func TestViewTogglePersistsInCookie(t *testing.T) {
	h := newServerHarness(t)

	resp, _ := h.get(t, "/ui/transactions?book="+h.book.ID+"&view=dr_cr")
	var cookie string
	for _, c := range resp.Cookies() {
		if c.Name == "ledger_view" {
			cookie = c.Value
		}
	}
	if cookie != "dr_cr" {
		t.Fatalf("view cookie = %q, want dr_cr", cookie)
	}
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	h := newServerHarness(t)

	resp, _ := h.get(t, "/.env")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}

	if _, blocked := h.server.SecurityStats(); blocked == 0 {
		t.Fatalf("blocked scan counter should increment")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newServerHarness(t)

	resp, _ := h.get(t, "/books")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}
