package core

import "fmt"

// signFor maps an entry side to +1 or -1 for the given account
// classification: debits increase asset and expense balances and decrease
// the rest; credits invert. Balances come out positive when the account
// carries its conventional side.
func signFor(t CategoryType, side EntrySide) int64 {
	natural := side == Debit
	switch t {
	case TypeAsset, TypeExpense:
		// natural debit balance
	case TypeLiability, TypeEquity, TypeIncome:
		natural = !natural
	}
	if natural {
		return 1
	}
	return -1
}

// ComputeBalances walks every entry of the non-deleted transactions once
// and returns the signed balance per live account. Soft-deleted accounts
// are excluded from the result, but their historical entries are only
// skipped when the whole transaction was deleted; deleting an account
// independently of its transactions is the caller's policy concern.
//
// The computation is deterministic and order independent: integer cents,
// commutative sums, no rounding.
func ComputeBalances(accounts []Account, transactions []Transaction) (map[string]Money, error) {
	types := make(map[string]CategoryType, len(accounts))
	balances := make(map[string]Money)
	for _, a := range accounts {
		types[a.ID] = a.Type
		if !a.Deleted() {
			balances[a.ID] = Money{}
		}
	}

	for _, t := range transactions {
		if t.Deleted() {
			continue
		}
		for _, e := range t.Entries {
			ct, ok := types[e.AccountID]
			if !ok {
				return nil, fmt.Errorf("transaction %s: %w", t.ID, ErrUnknownAccount)
			}
			if b, live := balances[e.AccountID]; live {
				b.Cents += signFor(ct, e.Side) * e.Amount.Cents
				balances[e.AccountID] = b
			}
		}
	}

	return balances, nil
}

// TypeTotals aggregates the account balances of ComputeBalances into one
// total per category classification, for the dashboard summary.
func TypeTotals(accounts []Account, transactions []Transaction) (map[CategoryType]Money, error) {
	balances, err := ComputeBalances(accounts, transactions)
	if err != nil {
		return nil, err
	}
	totals := map[CategoryType]Money{
		TypeAsset:     {},
		TypeLiability: {},
		TypeEquity:    {},
		TypeIncome:    {},
		TypeExpense:   {},
	}
	for _, a := range accounts {
		if a.Deleted() {
			continue
		}
		totals[a.Type] = totals[a.Type].Add(balances[a.ID])
	}
	return totals, nil
}

// OpeningTransaction synthesizes the system transaction recorded when an
// account is created with a non-zero opening balance. The counterpost goes
// to the book's opening-balances equity account so that every stored
// transaction stays balanced.
func OpeningTransaction(account Account, equityAccountID string) Transaction {
	counter := Credit
	if account.OpeningSide == Credit {
		counter = Debit
	}
	return Transaction{
		BookID:          account.BookID,
		Description:     "Opening Balance for " + account.Name,
		System:          true,
		OriginAccountID: account.ID,
		Entries: []Entry{
			{AccountID: account.ID, Side: account.OpeningSide, Amount: account.Opening},
			{AccountID: equityAccountID, Side: counter, Amount: account.Opening},
		},
	}
}
