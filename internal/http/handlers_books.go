package http

import (
	"log/slog"
	"net/http"

	"conti/internal/core"
)

type indexView struct {
	Books []core.Book
}

type bookView struct {
	Book     core.Book
	View     string
	Accounts []core.Account
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	books, err := s.storage.ListBooks(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list books", "error", err)
		errorResponseFor(err).Write(w)
		return
	}
	s.render(w, r, "index.html", indexView{Books: books})
}

func (s *Server) handleBooksPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	books, err := s.storage.ListBooks(r.Context())
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}
	s.render(w, r, "books.html", indexView{Books: books})
}

// handleBookPage renders the dashboard shell of one book. The panels
// load themselves over HTMX.
func (s *Server) handleBookPage(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	book, err := s.storage.GetBook(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}
	accounts, err := s.storage.ListAccounts(r.Context(), book.ID)
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}
	s.render(w, r, "book.html", bookView{
		Book:     book,
		View:     s.viewMode(w, r),
		Accounts: accounts,
	})
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	name := sanitizeInput(r.FormValue("name"))
	book, err := s.storage.CreateBook(r.Context(), name)
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	slog.InfoContext(r.Context(), "Book created", "id", book.ID, "name", book.Name)
	NewHTMXResponse().
		TriggerBooksChanged().
		TriggerFormReset().
		TriggerSuccessNotification("Book created").
		Write(w)
}

func (s *Server) handleRenameBook(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	id := r.FormValue("id")
	name := sanitizeInput(r.FormValue("name"))
	if err := s.storage.RenameBook(r.Context(), id, name); err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	NewHTMXResponse().
		TriggerBooksChanged().
		TriggerSuccessNotification("Book renamed").
		Write(w)
}

// handleDeleteBook moves a book and everything in it to the recycle
// bin.
func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	id := r.FormValue("id")
	if err := s.storage.SoftDeleteBook(r.Context(), id); err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	s.invalidateBook(id)
	slog.InfoContext(r.Context(), "Book moved to recycle bin", "id", id)
	NewHTMXResponse().
		TriggerBooksChanged().
		TriggerTrashChanged().
		TriggerSuccessNotification("Book moved to the recycle bin").
		Write(w)
}
