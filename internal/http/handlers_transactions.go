package http

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"conti/internal/core"
)

const (
	viewToFrom = "to_from"
	viewDrCr   = "dr_cr"

	viewCookie = "ledger_view"
)

type entryLine struct {
	Account     string
	Description string
	Debit       string
	Credit      string
}

type transactionRow struct {
	ID          string
	BookID      string
	Date        string
	Description string
	Highlight   core.Highlight
	System      bool
	Amount      string
	To          string
	From        string
	Lines       []entryLine
}

type transactionsView struct {
	BookID       string
	View         string
	Query        string
	From         string
	To           string
	Sort         string
	Dir          string
	Transactions []transactionRow
}

// viewMode resolves the list rendering mode: an explicit query value
// wins and is remembered in a cookie, otherwise the cookie decides,
// otherwise the simplified to/from view.
func (s *Server) viewMode(w http.ResponseWriter, r *http.Request) string {
	switch v := r.URL.Query().Get("view"); v {
	case viewToFrom, viewDrCr:
		http.SetCookie(w, &http.Cookie{
			Name:     viewCookie,
			Value:    v,
			Path:     "/",
			MaxAge:   365 * 24 * 3600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		return v
	}
	if c, err := r.Cookie(viewCookie); err == nil {
		if c.Value == viewToFrom || c.Value == viewDrCr {
			return c.Value
		}
	}
	return viewToFrom
}

func (s *Server) handleTransactionsPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	query := r.URL.Query()
	bookID := query.Get("book")

	criteria, err := ParseCriteria(query)
	if err != nil {
		BadRequestError("Invalid date filter, use YYYY-MM-DD").Write(w)
		return
	}

	transactions, err := s.storage.ListTransactions(r.Context(), bookID)
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}
	accounts, err := s.storage.ListAllAccounts(r.Context(), bookID)
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	selected := core.Select(transactions, criteria)

	view := transactionsView{
		BookID: bookID,
		View:   s.viewMode(w, r),
		Query:  criteria.Search,
		Sort:   string(criteria.Sort),
		Dir:    "desc",
	}
	if !criteria.Descending {
		view.Dir = "asc"
	}
	if !criteria.From.IsZero() {
		view.From = criteria.From.Format("2006-01-02")
	}
	if !criteria.To.IsZero() {
		view.To = criteria.To.Format("2006-01-02")
	}
	view.Transactions = buildTransactionRows(selected, accounts)

	s.render(w, r, "transactions.html", view)
}

// buildTransactionRows prepares both renderings of each transaction:
// the journal lines for the debit/credit view and the collapsed to/from
// summary.
func buildTransactionRows(transactions []core.Transaction, accounts []core.Account) []transactionRow {
	names := make(map[string]string, len(accounts))
	for _, a := range accounts {
		names[a.ID] = a.Name
	}

	rows := make([]transactionRow, 0, len(transactions))
	for _, t := range transactions {
		row := transactionRow{
			ID:          t.ID,
			BookID:      t.BookID,
			Date:        t.Date.Format("2006-01-02"),
			Description: t.Description,
			Highlight:   t.Highlight,
			System:      t.System,
			Amount:      formatEuros(core.DebitTotal(t)),
		}

		var to, from []string
		for _, e := range t.Entries {
			name := names[e.AccountID]
			if name == "" {
				name = "(deleted account)"
			}
			line := entryLine{Account: name, Description: e.Description}
			if e.Side == core.Debit {
				line.Debit = formatEuros(e.Amount)
				to = append(to, name)
			} else {
				line.Credit = formatEuros(e.Amount)
				from = append(from, name)
			}
			row.Lines = append(row.Lines, line)
		}
		row.To = strings.Join(to, ", ")
		row.From = strings.Join(from, ", ")

		rows = append(rows, row)
	}
	return rows
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	transaction, resp := s.transactionFromForm(r)
	if resp != nil {
		resp.Write(w)
		return
	}

	saved, err := s.service.RecordTransaction(r.Context(), transaction)
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	s.invalidateBook(saved.BookID)
	slog.InfoContext(r.Context(), "Transaction recorded",
		"id", saved.ID, "book", saved.BookID, "entries", len(saved.Entries))
	NewHTMXResponse().
		TriggerLedgerChanged(saved.BookID).
		TriggerFormReset().
		TriggerSuccessNotification("Transaction recorded").
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	transaction, resp := s.transactionFromForm(r)
	if resp != nil {
		resp.Write(w)
		return
	}
	transaction.ID = r.FormValue("id")

	if err := s.service.AmendTransaction(r.Context(), transaction); err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	s.invalidateBook(transaction.BookID)
	NewHTMXResponse().
		TriggerLedgerChanged(transaction.BookID).
		TriggerSuccessNotification("Transaction updated").
		Write(w)
}

func (s *Server) handleDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	bookID := r.FormValue("book")
	ids := r.Form["ids"]
	if len(ids) == 0 {
		BadRequestError("No transactions selected").Write(w)
		return
	}

	if err := s.service.DeleteTransactions(r.Context(), ids); err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	s.invalidateBook(bookID)
	slog.InfoContext(r.Context(), "Transactions moved to recycle bin",
		"book", bookID, "count", len(ids))
	NewHTMXResponse().
		TriggerLedgerChanged(bookID).
		TriggerTrashChanged().
		TriggerSuccessNotification("Moved to the recycle bin").
		Write(w)
}

// handleHighlight toggles the marker color of one transaction. HTMX
// sends this as JSON, plain forms work too.
func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	id := parser.Get("id")
	bookID := parser.Get("book")
	highlight := core.Highlight(parser.Get("color"))

	if err := s.service.SetHighlight(r.Context(), id, highlight); err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	NewHTMXResponse().
		TriggerLedgerChanged(bookID).
		Write(w)
}

func (s *Server) transactionFromForm(r *http.Request) (core.Transaction, *HTMXResponseBuilder) {
	date, err := parseDate(r.FormValue("date"))
	if err != nil {
		return core.Transaction{}, BadRequestError("Invalid date, use YYYY-MM-DD")
	}

	entries, err := ParseEntries(r.Form)
	if err != nil {
		return core.Transaction{}, errorResponseFor(err)
	}

	return core.Transaction{
		BookID:      r.FormValue("book"),
		Date:        date,
		Description: sanitizeInput(r.FormValue("description")),
		Highlight:   core.Highlight(r.FormValue("highlight")),
		Entries:     entries,
	}, nil
}

type balanceRow struct {
	Name   string
	Amount string
}

type balanceSection struct {
	Category string
	Type     core.CategoryType
	Rows     []balanceRow
}

type totalRow struct {
	Label  string
	Amount string
}

type balancesView struct {
	BookID   string
	Totals   []totalRow
	Sections []balanceSection
}

// handleBalancesPartial renders per-account balances grouped by
// category plus one aggregate per classification. The computed view is
// cached per book and dropped on every write.
func (s *Server) handleBalancesPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	bookID := r.URL.Query().Get("book")
	if view, ok := s.balancesCache.Get(bookID); ok {
		s.render(w, r, "balances.html", view)
		return
	}

	view, err := s.buildBalancesView(r, bookID)
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	s.balancesCache.Set(bookID, view)
	s.render(w, r, "balances.html", view)
}

func (s *Server) buildBalancesView(r *http.Request, bookID string) (balancesView, error) {
	var (
		balances map[string]core.Money
		totals   map[core.CategoryType]core.Money
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		balances, err = s.service.Balances(ctx, bookID)
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = s.service.TypeTotals(ctx, bookID)
		return err
	})
	if err := g.Wait(); err != nil {
		return balancesView{}, err
	}

	categories, err := s.storage.ListCategories(r.Context(), bookID)
	if err != nil {
		return balancesView{}, err
	}
	accounts, err := s.storage.ListAccounts(r.Context(), bookID)
	if err != nil {
		return balancesView{}, err
	}

	view := balancesView{BookID: bookID}
	for _, c := range categories {
		section := balanceSection{Category: c.Name, Type: c.Type}
		for _, a := range accounts {
			if a.CategoryID != c.ID {
				continue
			}
			section.Rows = append(section.Rows, balanceRow{
				Name:   a.Name,
				Amount: formatEuros(balances[a.ID]),
			})
		}
		if len(section.Rows) > 0 {
			view.Sections = append(view.Sections, section)
		}
	}

	for _, t := range []core.CategoryType{
		core.TypeAsset, core.TypeLiability, core.TypeEquity,
		core.TypeIncome, core.TypeExpense,
	} {
		if total, ok := totals[t]; ok {
			view.Totals = append(view.Totals, totalRow{
				Label:  typeLabels[t],
				Amount: formatEuros(total),
			})
		}
	}

	return view, nil
}

var typeLabels = map[core.CategoryType]string{
	core.TypeAsset:     "Assets",
	core.TypeLiability: "Liabilities",
	core.TypeEquity:    "Equity",
	core.TypeIncome:    "Income",
	core.TypeExpense:   "Expenses",
}
