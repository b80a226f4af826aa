package orders

import (
	"net/http"
	"strconv"
	"strings"

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

type placeOrderRequest struct {
	Symbol      string `json:"symbol"`
	AssetClass  string `json:"asset_class"`
	Kind        string `json:"kind"`
	Side        string `json:"side"`
	Qty         string `json:"qty"`
	LimitPrice  string `json:"limit_price"`
	StopPrice   string `json:"stop_price"`
	RefPrice    string `json:"ref_price"`
	TimeInForce string `json:"time_in_force"`
	Notes       string `json:"notes"`
}

func parseOptionalDecimal(raw, name string, w http.ResponseWriter) (*decimal.Decimal, bool) {
	if raw == "" {
		return nil, true
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid " + name})
		return nil, false
	}
	return &d, true
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(req.Qty))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid qty"})
		return
	}
	limitPrice, ok := parseOptionalDecimal(req.LimitPrice, "limit_price", w)
	if !ok {
		return
	}
	stopPrice, ok := parseOptionalDecimal(req.StopPrice, "stop_price", w)
	if !ok {
		return
	}
	refPrice, ok := parseOptionalDecimal(req.RefPrice, "ref_price", w)
	if !ok {
		return
	}
	order, err := h.svc.Place(r.Context(), PlaceRequest{
		UserID:      userID,
		Symbol:      req.Symbol,
		AssetClass:  types.AssetClass(req.AssetClass),
		Kind:        types.OrderKind(req.Kind),
		Side:        types.OrderSide(req.Side),
		Qty:         qty,
		LimitPrice:  limitPrice,
		StopPrice:   stopPrice,
		RefPrice:    refPrice,
		TimeInForce: types.TimeInForce(req.TimeInForce),
		Notes:       req.Notes,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, userID string) {
	orderID := chi.URLParam(r, "id")
	order, err := h.svc.Get(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if order.UserID != userID {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "order not found"})
		return
	}
	cancelled, err := h.svc.Cancel(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cancelled)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID string) {
	order, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if order.UserID != userID {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "order not found"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	f := storage.OrderFilter{UserID: userID, Limit: 100}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			f.Statuses = append(f.Statuses, types.OrderStatus(strings.TrimSpace(s)))
		}
	}
	if raw := r.URL.Query().Get("symbol"); raw != "" {
		f.Symbol = strings.ToUpper(strings.TrimSpace(raw))
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			f.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			f.Offset = n
		}
	}
	list, err := h.svc.List(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": list})
}
