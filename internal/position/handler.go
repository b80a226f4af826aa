package position

import (
	"net/http"
	"strings"

	"tradecore/internal/httputil"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	book *Book
}

func NewHandler(book *Book) *Handler {
	return &Handler{book: book}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	list, err := h.book.ListByUser(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID string) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	pos, err := h.book.Get(r.Context(), userID, symbol)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pos)
}
