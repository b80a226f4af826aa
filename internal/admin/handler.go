package admin

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradecore/internal/httputil"
	"tradecore/internal/storage"
	"tradecore/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func actorFrom(r *http.Request, adminID string) Actor {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	} else {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}
	return Actor{AdminID: adminID, IP: ip}
}

func parseDecimalField(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type forceExecuteRequest struct {
	Qty   string `json:"qty"`
	Price string `json:"price"`
}

func (h *Handler) ForceExecute(w http.ResponseWriter, r *http.Request, adminID string) {
	var req forceExecuteRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	qty, err := parseDecimalField(req.Qty)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid qty"})
		return
	}
	price, err := parseDecimalField(req.Price)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid price"})
		return
	}
	order, err := h.svc.ForceExecute(r.Context(), actorFrom(r, adminID), chi.URLParam(r, "id"), qty, price)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request, adminID string) {
	var req updateStatusRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	order, err := h.svc.UpdateStatus(r.Context(), actorFrom(r, adminID), chi.URLParam(r, "id"), req.Status, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

type bulkCancelRequest struct {
	OrderIDs []string `json:"order_ids"`
	UserID   string   `json:"user_id"`
	Symbol   string   `json:"symbol"`
	Reason   string   `json:"reason"`
}

func (h *Handler) BulkCancel(w http.ResponseWriter, r *http.Request, adminID string) {
	var req bulkCancelRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if len(req.OrderIDs) == 0 && req.UserID == "" && req.Symbol == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "order_ids or a user_id/symbol filter is required"})
		return
	}
	count, err := h.svc.BulkCancel(r.Context(), actorFrom(r, adminID), req.OrderIDs, req.UserID, strings.ToUpper(req.Symbol), req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"cancelled": count})
}

func (h *Handler) ForceExpireDay(w http.ResponseWriter, r *http.Request, adminID string) {
	count, err := h.svc.ForceExpireDay(r.Context(), actorFrom(r, adminID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"expired": count})
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request, adminID string) {
	if err := h.svc.DeleteOrder(r.Context(), actorFrom(r, adminID), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type unwindRequest struct {
	Qty   string `json:"qty"`
	Price string `json:"price"`
}

func (h *Handler) UnwindPosition(w http.ResponseWriter, r *http.Request, adminID string) {
	var req unwindRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid qty"})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid price"})
		return
	}
	userID := chi.URLParam(r, "userID")
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	realized, err := h.svc.UnwindPosition(r.Context(), actorFrom(r, adminID), userID, symbol, qty, price)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"realized_pnl": realized.String()})
}

type decideRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

func (h *Handler) DecideDeposit(w http.ResponseWriter, r *http.Request, adminID string) {
	var req decideRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	tx, err := h.svc.DecideDeposit(r.Context(), actorFrom(r, adminID), chi.URLParam(r, "id"), req.Approve, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tx)
}

func (h *Handler) DecideWithdrawal(w http.ResponseWriter, r *http.Request, adminID string) {
	var req decideRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	tx, err := h.svc.DecideWithdrawal(r.Context(), actorFrom(r, adminID), chi.URLParam(r, "id"), req.Approve, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tx)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request, adminID string) {
	f := storage.OrderFilter{Limit: 100}
	q := r.URL.Query()
	f.UserID = q.Get("user_id")
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			f.Statuses = append(f.Statuses, types.OrderStatus(strings.TrimSpace(s)))
		}
	}
	if raw := q.Get("symbol"); raw != "" {
		f.Symbol = strings.ToUpper(strings.TrimSpace(raw))
	}
	if raw := q.Get("side"); raw != "" {
		f.Side = types.OrderSide(raw)
	}
	if raw := q.Get("kind"); raw != "" {
		f.Kind = types.OrderKind(raw)
	}
	if raw := q.Get("asset_class"); raw != "" {
		f.AssetClass = types.AssetClass(raw)
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.From = &t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.To = &t
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			f.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			f.Offset = n
		}
	}
	list, err := h.svc.ListOrders(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request, adminID string) {
	order, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) OrderStats(w http.ResponseWriter, r *http.Request, adminID string) {
	f := storage.OrderFilter{}
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.From = &t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.To = &t
		}
	}
	stats, err := h.svc.OrderStats(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) ListCashTransactions(w http.ResponseWriter, r *http.Request, adminID string) {
	f := storage.CashTxFilter{Limit: 100}
	q := r.URL.Query()
	f.UserID = q.Get("user_id")
	if raw := q.Get("kind"); raw != "" {
		f.Kind = types.CashTxKind(raw)
	}
	if raw := q.Get("status"); raw != "" {
		f.Status = types.CashTxStatus(raw)
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
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

func (h *Handler) UserBalance(w http.ResponseWriter, r *http.Request, adminID string) {
	bal, err := h.svc.UserBalance(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bal)
}

func (h *Handler) UserPositions(w http.ResponseWriter, r *http.Request, adminID string) {
	list, err := h.svc.UserPositions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request, adminID string) {
	f := storage.AuditFilter{Limit: 100}
	q := r.URL.Query()
	f.AdminID = q.Get("admin_id")
	if raw := q.Get("action"); raw != "" {
		f.Action = types.AuditAction(raw)
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.From = &t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.To = &t
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			f.Limit = n
		}
	}
	list, err := h.svc.AuditLog(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": list})
}
