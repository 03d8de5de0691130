package core

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	SortByDate        SortKey = "date"
	SortByAmount      SortKey = "amount"
	SortByDescription SortKey = "description"
)

type SortKey string

// Criteria describes how the transaction list is filtered and ordered.
// Zero time bounds mean "unbounded" on that side; both bounds are
// inclusive.
type Criteria struct {
	Search     string
	From       time.Time
	To         time.Time
	Sort       SortKey
	Descending bool
}

// Select returns the filtered, ordered view of a transaction snapshot.
// The input slice is never mutated and each call recomputes from scratch;
// ties keep their relative input order so repeated renders are stable.
func Select(transactions []Transaction, c Criteria) []Transaction {
	search := strings.ToLower(strings.TrimSpace(c.Search))

	out := make([]Transaction, 0, len(transactions))
	for _, t := range transactions {
		if t.Deleted() {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		if !c.From.IsZero() && t.Date.Before(c.From) {
			continue
		}
		if !c.To.IsZero() && t.Date.After(c.To) {
			continue
		}
		out = append(out, t)
	}

	less := lessFunc(c.Sort)
	sort.SliceStable(out, func(i, j int) bool {
		if c.Descending {
			i, j = j, i
		}
		return less(out[i], out[j])
	})

	return out
}

func lessFunc(key SortKey) func(a, b Transaction) bool {
	switch key {
	case SortByAmount:
		return func(a, b Transaction) bool {
			return DebitTotal(a).Cents < DebitTotal(b).Cents
		}
	case SortByDescription:
		// Locale-aware, case-insensitive ordering.
		col := collate.New(language.Und, collate.Loose)
		return func(a, b Transaction) bool {
			return col.CompareString(a.Description, b.Description) < 0
		}
	default:
		return func(a, b Transaction) bool {
			return a.Date.Before(b.Date)
		}
	}
}
