package http

import (
	"log/slog"
	"net/http"

	"conti/internal/core"
)

type trashRow struct {
	Kind      core.TrashKind
	ID        string
	BookID    string
	Label     string
	DeletedAt string
}

type trashView struct {
	Items []trashRow
}

func (s *Server) handleTrashPartial(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	items, err := s.storage.ListTrash(r.Context())
	if err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	view := trashView{Items: make([]trashRow, 0, len(items))}
	for _, item := range items {
		view.Items = append(view.Items, trashRow{
			Kind:      item.Kind,
			ID:        item.ID,
			BookID:    item.BookID,
			Label:     item.Label,
			DeletedAt: item.DeletedAt.Format("2006-01-02 15:04"),
		})
	}
	s.render(w, r, "trash.html", view)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	kind := core.TrashKind(r.FormValue("kind"))
	id := r.FormValue("id")
	bookID := r.FormValue("book")

	if err := s.service.Restore(r.Context(), kind, id); err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	s.invalidateBook(bookID)
	slog.InfoContext(r.Context(), "Item restored", "kind", kind, "id", id)
	NewHTMXResponse().
		TriggerTrashChanged().
		TriggerBooksChanged().
		TriggerLedgerChanged(bookID).
		TriggerAccountsChanged(bookID).
		TriggerSuccessNotification("Restored").
		Write(w)
}

// handlePurge permanently removes a recycle bin item. There is no way
// back from here.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	kind := core.TrashKind(r.FormValue("kind"))
	id := r.FormValue("id")
	bookID := r.FormValue("book")

	if err := s.service.Purge(r.Context(), kind, id); err != nil {
		errorResponseFor(err).Write(w)
		return
	}

	s.invalidateBook(bookID)
	slog.InfoContext(r.Context(), "Item purged", "kind", kind, "id", id)
	NewHTMXResponse().
		TriggerTrashChanged().
		TriggerSuccessNotification("Deleted permanently").
		Write(w)
}
