package balance

import (
	"net/http"
	"strconv"
	"strings"

	"tradecore/internal/httputil"
	"tradecore/internal/storage"
	"tradecore/internal/types"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID string) {
	bal, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bal)
}

type cashRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) readAmount(w http.ResponseWriter, r *http.Request) (decimal.Decimal, bool) {
	var req cashRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return decimal.Decimal{}, false
	}
	return amount, true
}

func (h *Handler) RequestDeposit(w http.ResponseWriter, r *http.Request, userID string) {
	amount, ok := h.readAmount(w, r)
	if !ok {
		return
	}
	tx, err := h.svc.RequestDeposit(r.Context(), userID, amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tx)
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request, userID string) {
	amount, ok := h.readAmount(w, r)
	if !ok {
		return
	}
	tx, err := h.svc.RequestWithdrawal(r.Context(), userID, amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tx)
}

func (h *Handler) ListCashTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	f := storage.CashTxFilter{UserID: userID, Limit: 100}
	if raw := r.URL.Query().Get("kind"); raw != "" {
		f.Kind = types.CashTxKind(strings.TrimSpace(raw))
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		f.Status = types.CashTxStatus(strings.TrimSpace(raw))
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			f.Limit = n
		}
	}
	list, err := h.svc.ListCashTransactions(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": list})
}
