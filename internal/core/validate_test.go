package core

import (
	"errors"
	"testing"
)

func testAccounts() AccountSet {
	return NewAccountSet([]Account{
		{ID: "cash", BookID: "b1", Name: "Cash", Type: TypeAsset},
		{ID: "sales", BookID: "b1", Name: "Sales", Type: TypeIncome},
		{ID: "rent", BookID: "b1", Name: "Rent", Type: TypeExpense},
	})
}

func TestValidateTransactionBalanced(t *testing.T) {
	entries := []Entry{
		{AccountID: "cash", Side: Debit, Amount: Money{Cents: 10000}},
		{AccountID: "sales", Side: Credit, Amount: Money{Cents: 10000}},
	}
	normalized, err := ValidateTransaction("Sale", entries, testAccounts())
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if len(normalized) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(normalized))
	}
}

func TestValidateTransactionUnbalanced(t *testing.T) {
	entries := []Entry{
		{AccountID: "cash", Side: Debit, Amount: Money{Cents: 10000}},
		{AccountID: "sales", Side: Credit, Amount: Money{Cents: 9000}},
	}
	if _, err := ValidateTransaction("Sale", entries, testAccounts()); !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("expected ErrUnbalanced, got %v", err)
	}
}

func TestValidateTransactionCardinality(t *testing.T) {
	cases := [][]Entry{
		nil,
		{},
		{{AccountID: "cash", Side: Debit, Amount: Money{Cents: 100}}},
	}
	for i, entries := range cases {
		if _, err := ValidateTransaction("x", entries, testAccounts()); !errors.Is(err, ErrInsufficientEntries) {
			t.Fatalf("case %d expected ErrInsufficientEntries, got %v", i, err)
		}
	}
}

func TestValidateTransactionPositivity(t *testing.T) {
	for i, cents := range []int64{0, -500} {
		entries := []Entry{
			{AccountID: "cash", Side: Debit, Amount: Money{Cents: cents}},
			{AccountID: "sales", Side: Credit, Amount: Money{Cents: cents}},
		}
		if _, err := ValidateTransaction("x", entries, testAccounts()); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("case %d expected ErrInvalidAmount, got %v", i, err)
		}
	}
}

func TestValidateTransactionUnresolvedAccount(t *testing.T) {
	entries := []Entry{
		{AccountID: "cash", Side: Debit, Amount: Money{Cents: 100}},
		{AccountID: "ghost", Side: Credit, Amount: Money{Cents: 100}},
	}
	if _, err := ValidateTransaction("x", entries, testAccounts()); !errors.Is(err, ErrUnresolvedAccount) {
		t.Fatalf("expected ErrUnresolvedAccount, got %v", err)
	}

	// Soft-deleted accounts are excluded from the set and therefore
	// unresolved too.
	deleted := NewAccountSet([]Account{
		{ID: "cash", Name: "Cash", Type: TypeAsset},
		{ID: "sales", Name: "Sales", Type: TypeIncome, DeletedAt: ptrNow()},
	})
	entries = []Entry{
		{AccountID: "cash", Side: Debit, Amount: Money{Cents: 100}},
		{AccountID: "sales", Side: Credit, Amount: Money{Cents: 100}},
	}
	if _, err := ValidateTransaction("x", entries, deleted); !errors.Is(err, ErrUnresolvedAccount) {
		t.Fatalf("expected ErrUnresolvedAccount for deleted account, got %v", err)
	}
}

func TestValidateTransactionInvalidSide(t *testing.T) {
	entries := []Entry{
		{AccountID: "cash", Side: "both", Amount: Money{Cents: 100}},
		{AccountID: "sales", Side: Credit, Amount: Money{Cents: 100}},
	}
	if _, err := ValidateTransaction("x", entries, testAccounts()); !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("expected ErrInvalidSide, got %v", err)
	}
}

func TestValidateTransactionNormalizesOrder(t *testing.T) {
	// Mixed input: credits interleaved with debits. Output must be debits
	// first, then credits, each side keeping input order.
	entries := []Entry{
		{AccountID: "sales", Side: Credit, Amount: Money{Cents: 3000}},
		{AccountID: "cash", Side: Debit, Amount: Money{Cents: 1000}},
		{AccountID: "sales", Side: Credit, Amount: Money{Cents: 1000}},
		{AccountID: "rent", Side: Debit, Amount: Money{Cents: 3000}},
	}
	normalized, err := ValidateTransaction("split", entries, testAccounts())
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	wantSides := []EntrySide{Debit, Debit, Credit, Credit}
	wantAccounts := []string{"cash", "rent", "sales", "sales"}
	for i, e := range normalized {
		if e.Side != wantSides[i] || e.AccountID != wantAccounts[i] {
			t.Fatalf("position %d: got %s/%s, want %s/%s", i, e.Side, e.AccountID, wantSides[i], wantAccounts[i])
		}
	}
}

func TestValidateTransactionEmptyDescriptionAllowed(t *testing.T) {
	entries := []Entry{
		{AccountID: "cash", Side: Debit, Amount: Money{Cents: 100}},
		{AccountID: "sales", Side: Credit, Amount: Money{Cents: 100}},
	}
	if _, err := ValidateTransaction("", entries, testAccounts()); err != nil {
		t.Fatalf("empty description should validate, got %v", err)
	}
}

func TestDebitTotal(t *testing.T) {
	tx := Transaction{Entries: []Entry{
		{AccountID: "cash", Side: Debit, Amount: Money{Cents: 1500}},
		{AccountID: "rent", Side: Debit, Amount: Money{Cents: 500}},
		{AccountID: "sales", Side: Credit, Amount: Money{Cents: 2000}},
	}}
	if got := DebitTotal(tx).Cents; got != 2000 {
		t.Fatalf("expected 2000, got %d", got)
	}
}
