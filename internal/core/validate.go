package core

import "strings"

// AccountSet indexes the live accounts of one book by id. Soft-deleted
// accounts must not be included; entries pointing at them are rejected.
type AccountSet map[string]Account

// NewAccountSet builds an AccountSet from a snapshot, skipping deleted
// accounts.
func NewAccountSet(accounts []Account) AccountSet {
	set := make(AccountSet, len(accounts))
	for _, a := range accounts {
		if a.Deleted() {
			continue
		}
		set[a.ID] = a
	}
	return set
}

// ValidateTransaction checks a proposed transaction against the
// double-entry rules and returns the normalized entry list: debits first,
// then credits, preserving relative input order within each side.
//
// The description may be empty (system transactions carry their own), but
// is capped at 200 characters like every other narration field. Validation
// is pure; persisting the result is the caller's job.
func ValidateTransaction(description string, entries []Entry, accounts AccountSet) ([]Entry, error) {
	if len(description) > 200 {
		return nil, ErrNameTooLong
	}
	if len(entries) < 2 {
		return nil, ErrInsufficientEntries
	}

	var (
		debits, credits       []Entry
		debitCents, creditCents int64
	)
	for _, e := range entries {
		if e.Amount.Cents <= 0 {
			return nil, ErrInvalidAmount
		}
		if _, ok := accounts[e.AccountID]; !ok {
			return nil, ErrUnresolvedAccount
		}
		e.Description = strings.TrimSpace(e.Description)
		switch e.Side {
		case Debit:
			debitCents += e.Amount.Cents
			debits = append(debits, e)
		case Credit:
			creditCents += e.Amount.Cents
			credits = append(credits, e)
		default:
			return nil, ErrInvalidSide
		}
	}

	// Integer cents, so the tolerance is exactly zero.
	if debitCents != creditCents {
		return nil, ErrUnbalanced
	}

	return append(debits, credits...), nil
}

// DebitTotal returns the sum of the transaction's debit legs, which by the
// balance invariant equals the credit total. It is the amount shown in
// lists and used as the sort key.
func DebitTotal(t Transaction) Money {
	var cents int64
	for _, e := range t.Entries {
		if e.Side == Debit {
			cents += e.Amount.Cents
		}
	}
	return Money{Cents: cents}
}
