package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"conti/internal/core"
)

type categoriesView struct {
	BookID     string
	Categories []core.Category
}

type accountRow struct {
	ID          string
	Name        string
	CategoryID  string
	OpeningSide core.EntrySide
	Opening     string
}

type accountGroup struct {
	Category core.Category
	Accounts []accountRow
}

type accountsView struct {
	BookID     string
	Categories []core.Category
	Groups     []accountGroup
}

func (s *Server) handleCategoriesPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	bookID := r.URL.Query().Get("book")
	categories, err := s.storage.ListCategories(r.Context(), bookID)
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}
	s.render(w, r, "categories.html", categoriesView{BookID: bookID, Categories: categories})
}

func (s *Server) handleAccountsPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	bookID := r.URL.Query().Get("book")
	categories, err := s.storage.ListCategories(r.Context(), bookID)
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}
	accounts, err := s.storage.ListAccounts(r.Context(), bookID)
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	view := accountsView{BookID: bookID, Categories: categories}
	for _, c := range categories {
		group := accountGroup{Category: c}
		for _, a := range accounts {
			if a.CategoryID != c.ID {
				continue
			}
			group.Accounts = append(group.Accounts, accountRow{
				ID:          a.ID,
				Name:        a.Name,
				CategoryID:  a.CategoryID,
				OpeningSide: a.OpeningSide,
				Opening:     openingValue(a.Opening),
			})
		}
		view.Groups = append(view.Groups, group)
	}
	s.render(w, r, "accounts.html", view)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	bookID := r.FormValue("book")
	name := sanitizeInput(r.FormValue("name"))
	categoryType := core.CategoryType(r.FormValue("type"))

	category, err := s.storage.CreateCategory(r.Context(), bookID, name, categoryType)
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	slog.InfoContext(r.Context(), "Category created",
		"id", category.ID, "book", bookID, "type", category.Type)
	NewHTMXResponse().
		TriggerAccountsChanged(bookID).
		TriggerFormReset().
		TriggerSuccessNotification("Category created").
		Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	id := r.FormValue("id")
	bookID := r.FormValue("book")
	name := sanitizeInput(r.FormValue("name"))
	categoryType := core.CategoryType(r.FormValue("type"))

	if err := s.storage.UpdateCategory(r.Context(), id, name, categoryType); err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	// The balances view embeds category names, so a rename must drop it.
	s.invalidateBook(bookID)
	NewHTMXResponse().
		TriggerAccountsChanged(bookID).
		TriggerSuccessNotification("Category updated").
		Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	id := r.FormValue("id")
	bookID := r.FormValue("book")
	if err := s.storage.SoftDeleteCategory(r.Context(), id); err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	s.invalidateBook(bookID)
	NewHTMXResponse().
		TriggerAccountsChanged(bookID).
		TriggerTrashChanged().
		TriggerSuccessNotification("Category moved to the recycle bin").
		Write(w)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	account, resp := s.accountFromForm(r)
	if resp != nil {
		resp.Write(w)
		return
	}

	created, err := s.service.OpenAccount(r.Context(), account)
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	s.invalidateBook(account.BookID)
	slog.InfoContext(r.Context(), "Account created",
		"id", created.ID, "book", created.BookID, "opening_cents", created.Opening.Cents)
	NewHTMXResponse().
		TriggerAccountsChanged(account.BookID).
		TriggerLedgerChanged(account.BookID).
		TriggerFormReset().
		TriggerSuccessNotification("Account created").
		Write(w)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	account, resp := s.accountFromForm(r)
	if resp != nil {
		resp.Write(w)
		return
	}
	account.ID = r.FormValue("id")

	if err := s.service.UpdateAccount(r.Context(), account); err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	s.invalidateBook(account.BookID)
	NewHTMXResponse().
		TriggerAccountsChanged(account.BookID).
		TriggerLedgerChanged(account.BookID).
		TriggerSuccessNotification("Account updated").
		Write(w)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	id := r.FormValue("id")
	bookID := r.FormValue("book")
	if err := s.storage.SoftDeleteAccount(r.Context(), id); err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	s.invalidateBook(bookID)
	NewHTMXResponse().
		TriggerAccountsChanged(bookID).
		TriggerLedgerChanged(bookID).
		TriggerTrashChanged().
		TriggerSuccessNotification("Account moved to the recycle bin").
		Write(w)
}

// accountFromForm builds an account from the create/edit form. The
// opening side defaults to the natural side of the category type when
// the form leaves it blank.
func (s *Server) accountFromForm(r *http.Request) (core.Account, *HTMXResponseBuilder) {
	account := core.Account{
		BookID:     r.FormValue("book"),
		CategoryID: r.FormValue("category"),
		Name:       sanitizeInput(r.FormValue("name")),
	}

	opening, err := parseOpening(r.FormValue("opening"))
	if err != nil {
		return core.Account{}, UnprocessableEntityError(err.Error())
	}
	account.Opening = opening

	side := core.EntrySide(r.FormValue("opening_side"))
	if side != core.Debit && side != core.Credit {
		category, err := s.storage.GetCategory(r.Context(), account.CategoryID)
		if err != nil {
			return core.Account{}, errorResponseFor(err)
		}
		side = defaultOpeningSide(category.Type)
	}
	account.OpeningSide = side

	return account, nil
}

// parseOpening accepts an empty or zero opening balance; anything else
// must be a valid positive amount.
func parseOpening(value string) (core.Money, error) {
	value = strings.TrimSpace(value)
	switch value {
	case "", "0", "0.00", "0,00":
		return core.Money{}, nil
	}
	cents, err := core.ParseDecimalToCents(value)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

// openingValue renders an opening balance back into the edit form,
// empty when there is none.
func openingValue(m core.Money) string {
	if m.Cents == 0 {
		return ""
	}
	return fmt.Sprintf("%d.%02d", m.Cents/100, m.Cents%100)
}

func defaultOpeningSide(t core.CategoryType) core.EntrySide {
	if t == core.TypeAsset || t == core.TypeExpense {
		return core.Debit
	}
	return core.Credit
}
