package core

import (
	"errors"
	"strings"
	"time"
)

const (
	TypeAsset     CategoryType = "asset"
	TypeLiability CategoryType = "liability"
	TypeEquity    CategoryType = "equity"
	TypeIncome    CategoryType = "income"
	TypeExpense   CategoryType = "expense"
)

const (
	Debit  EntrySide = "debit"
	Credit EntrySide = "credit"
)

const (
	HighlightNone   Highlight = ""
	HighlightYellow Highlight = "yellow"
	HighlightBlue   Highlight = "blue"
	HighlightGreen  Highlight = "green"
)

type (
	CategoryType string

	EntrySide string

	Highlight string

	Money struct {
		Cents int64
	}

	Book struct {
		ID        string
		Name      string
		CreatedAt time.Time
		DeletedAt *time.Time
	}

	Category struct {
		ID        string
		BookID    string
		Name      string
		Type      CategoryType
		DeletedAt *time.Time
	}

	Account struct {
		ID         string
		BookID     string
		CategoryID string
		Name       string
		// Type is the owning category's classification, resolved when the
		// account is loaded. It drives debit/credit polarity.
		Type        CategoryType
		OpeningSide EntrySide
		Opening     Money
		DeletedAt   *time.Time
	}

	// Entry is one debit or credit leg of a transaction.
	Entry struct {
		AccountID string
		Side      EntrySide
		Amount    Money
		// Description optionally overrides the transaction narration for
		// this line.
		Description string
	}

	Transaction struct {
		ID          string
		BookID      string
		Date        time.Time
		Description string
		Highlight   Highlight
		// System marks transactions synthesized by the application, such as
		// opening balances. They are excluded from user edit/delete flows.
		System bool
		// OriginAccountID links a synthesized opening transaction to the
		// account it opens, so the two share a recycle bin fate.
		OriginAccountID string
		Entries         []Entry
		DeletedAt       *time.Time
	}
)

var (
	ErrInsufficientEntries = errors.New("transaction needs at least two entries")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidSide         = errors.New("entry side must be debit or credit")
	ErrUnresolvedAccount   = errors.New("entry references no live account in this book")
	ErrUnbalanced          = errors.New("debit total does not equal credit total")
	ErrUnknownAccount      = errors.New("entry references an unknown account")
	ErrStillReferenced     = errors.New("item is still referenced and cannot be deleted")
	ErrEmptyName           = errors.New("name cannot be empty")
	ErrNameTooLong         = errors.New("name too long (max 100 characters)")
	ErrInvalidCategoryType = errors.New("invalid category type")
	ErrInvalidHighlight    = errors.New("invalid highlight color")
	ErrSystemTransaction   = errors.New("system transactions cannot be edited or deleted")
)

// ValidType reports whether t is one of the five category classifications.
func ValidType(t CategoryType) bool {
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeIncome, TypeExpense:
		return true
	default:
		return false
	}
}

// ValidHighlight reports whether h is an allowed highlight color or empty.
func ValidHighlight(h Highlight) bool {
	switch h {
	case HighlightNone, HighlightYellow, HighlightBlue, HighlightGreen:
		return true
	default:
		return false
	}
}

func validateName(name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return ErrEmptyName
	}
	if len(name) > 100 {
		return ErrNameTooLong
	}
	return nil
}

func (b Book) Validate() error {
	return validateName(b.Name)
}

func (c Category) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if !ValidType(c.Type) {
		return ErrInvalidCategoryType
	}
	return nil
}

func (a Account) Validate() error {
	if err := validateName(a.Name); err != nil {
		return err
	}
	if a.CategoryID == "" {
		return errors.New("account requires a category")
	}
	if a.Opening.Cents < 0 {
		return ErrInvalidAmount
	}
	if a.OpeningSide != Debit && a.OpeningSide != Credit {
		return ErrInvalidSide
	}
	return nil
}

// Deleted reports whether the transaction sits in the recycle bin.
func (t Transaction) Deleted() bool {
	return t.DeletedAt != nil
}

// Deleted reports whether the account sits in the recycle bin.
func (a Account) Deleted() bool {
	return a.DeletedAt != nil
}
