package core

import (
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func sampleTransactions() []Transaction {
	return []Transaction{
		{ID: "t1", Date: day(1), Description: "Groceries", Entries: []Entry{
			{AccountID: "exp", Side: Debit, Amount: Money{Cents: 4500}},
			{AccountID: "cash", Side: Credit, Amount: Money{Cents: 4500}},
		}},
		{ID: "t2", Date: day(5), Description: "Salary", Entries: []Entry{
			{AccountID: "cash", Side: Debit, Amount: Money{Cents: 200000}},
			{AccountID: "inc", Side: Credit, Amount: Money{Cents: 200000}},
		}},
		{ID: "t3", Date: day(3), Description: "groceries again", Entries: []Entry{
			{AccountID: "exp", Side: Debit, Amount: Money{Cents: 1200}},
			{AccountID: "cash", Side: Credit, Amount: Money{Cents: 1200}},
		}},
	}
}

func ids(ts []Transaction) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func assertOrder(t *testing.T, got []Transaction, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", ids(got), want)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("got %v, want %v", ids(got), want)
		}
	}
}

func TestSelectSearchCaseInsensitive(t *testing.T) {
	got := Select(sampleTransactions(), Criteria{Search: "GROCER", Sort: SortByDate})
	assertOrder(t, got, "t1", "t3")
}

func TestSelectDateRange(t *testing.T) {
	txs := sampleTransactions()

	got := Select(txs, Criteria{From: day(2), To: day(4), Sort: SortByDate})
	assertOrder(t, got, "t3")

	// Only a lower bound.
	got = Select(txs, Criteria{From: day(3), Sort: SortByDate})
	assertOrder(t, got, "t3", "t2")

	// Inclusive upper bound.
	got = Select(txs, Criteria{To: day(3), Sort: SortByDate})
	assertOrder(t, got, "t1", "t3")
}

func TestSelectSortAmount(t *testing.T) {
	got := Select(sampleTransactions(), Criteria{Sort: SortByAmount})
	assertOrder(t, got, "t3", "t1", "t2")

	got = Select(sampleTransactions(), Criteria{Sort: SortByAmount, Descending: true})
	assertOrder(t, got, "t2", "t1", "t3")
}

func TestSelectStableOnTies(t *testing.T) {
	txs := []Transaction{
		{ID: "a", Date: day(1), Description: "same"},
		{ID: "b", Date: day(2), Description: "same"},
		{ID: "c", Date: day(3), Description: "same"},
	}
	got := Select(txs, Criteria{Sort: SortByDescription})
	assertOrder(t, got, "a", "b", "c")

	// Descending on equal keys must also preserve input order.
	got = Select(txs, Criteria{Sort: SortByDescription, Descending: true})
	assertOrder(t, got, "a", "b", "c")
}

func TestSelectDoesNotMutateInput(t *testing.T) {
	txs := sampleTransactions()
	_ = Select(txs, Criteria{Sort: SortByAmount, Descending: true})
	assertOrder(t, txs, "t1", "t2", "t3")
}

func TestSelectSkipsDeleted(t *testing.T) {
	txs := sampleTransactions()
	txs[1].DeletedAt = ptrNow()
	got := Select(txs, Criteria{Sort: SortByDate})
	assertOrder(t, got, "t1", "t3")
}

func TestSelectLocaleAwareDescriptionSort(t *testing.T) {
	txs := []Transaction{
		{ID: "t1", Date: day(1), Description: "Zucchini"},
		{ID: "t2", Date: day(2), Description: "Èclair"},
		{ID: "t3", Date: day(3), Description: "apple"},
	}
	got := Select(txs, Criteria{Sort: SortByDescription})
	// Loose collation folds case and diacritics: apple < Èclair < Zucchini.
	assertOrder(t, got, "t3", "t2", "t1")
}
