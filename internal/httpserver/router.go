package httpserver

import (
	"net/http"

	"tradecore/internal/admin"
	"tradecore/internal/balance"
	"tradecore/internal/health"
	"tradecore/internal/httputil"
	"tradecore/internal/orders"
	"tradecore/internal/position"
	"tradecore/internal/pricefeed"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	OrderHandler    *orders.Handler
	BalanceHandler  *balance.Handler
	PositionHandler *position.Handler
	AdminHandler    *admin.Handler
	FeedHandler     *pricefeed.Handler
	HealthHandler   *health.Handler
	EventsWSHandler http.Handler
	Verifier        *TokenVerifier
	InternalToken   string
	Registry        *prometheus.Registry
}

type userHandlerFunc func(w http.ResponseWriter, r *http.Request, userID string)

func authed(fn userHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		fn(w, r, userID)
	}
}

func asAdmin(fn userHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, ok := AdminID(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		fn(w, r, adminID)
	}
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)

	r.Get("/health", d.HealthHandler.Ready)
	r.Get("/health/live", d.HealthHandler.Live)
	r.Get("/health/ready", d.HealthHandler.Ready)
	if d.Registry != nil {
		r.Get("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	r.Route("/v1", func(r chi.Router) {
		if d.EventsWSHandler != nil {
			r.Get("/events/ws", d.EventsWSHandler.ServeHTTP)
		}
		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.Verifier))
			r.Post("/orders", authed(d.OrderHandler.Place))
			r.Get("/orders", authed(d.OrderHandler.List))
			r.Get("/orders/{id}", authed(d.OrderHandler.Get))
			r.Delete("/orders/{id}", authed(d.OrderHandler.Cancel))
			r.Get("/balance", authed(d.BalanceHandler.Get))
			r.Post("/balance/deposits", authed(d.BalanceHandler.RequestDeposit))
			r.Post("/balance/withdrawals", authed(d.BalanceHandler.RequestWithdrawal))
			r.Get("/balance/transactions", authed(d.BalanceHandler.ListCashTransactions))
			r.Get("/positions", authed(d.PositionHandler.List))
			r.Get("/positions/{symbol}", authed(d.PositionHandler.Get))
		})
		r.Group(func(r chi.Router) {
			r.Use(InternalAuth(d.InternalToken))
			r.Post("/internal/ticks", d.FeedHandler.Tick)
			r.Get("/internal/quotes/{symbol}", d.FeedHandler.Quote)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(InternalAuth(d.InternalToken))
			r.Use(WithAdminAuth(d.Verifier))
			r.Get("/orders", asAdmin(d.AdminHandler.ListOrders))
			r.Get("/orders/stats", asAdmin(d.AdminHandler.OrderStats))
			r.Get("/orders/{id}", asAdmin(d.AdminHandler.GetOrder))
			r.Post("/orders/{id}/execute", asAdmin(d.AdminHandler.ForceExecute))
			r.Post("/orders/{id}/status", asAdmin(d.AdminHandler.UpdateStatus))
			r.Delete("/orders/{id}", asAdmin(d.AdminHandler.DeleteOrder))
			r.Post("/orders/bulk-cancel", asAdmin(d.AdminHandler.BulkCancel))
			r.Post("/orders/expire-day", asAdmin(d.AdminHandler.ForceExpireDay))
			r.Post("/deposits/{id}/decision", asAdmin(d.AdminHandler.DecideDeposit))
			r.Post("/withdrawals/{id}/decision", asAdmin(d.AdminHandler.DecideWithdrawal))
			r.Get("/transactions", asAdmin(d.AdminHandler.ListCashTransactions))
			r.Get("/users/{userID}/balance", asAdmin(d.AdminHandler.UserBalance))
			r.Get("/users/{userID}/positions", asAdmin(d.AdminHandler.UserPositions))
			r.Post("/users/{userID}/positions/{symbol}/unwind", asAdmin(d.AdminHandler.UnwindPosition))
			r.Get("/audit", asAdmin(d.AdminHandler.AuditLog))
		})
	})
	return r
}
