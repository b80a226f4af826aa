// Package admin exposes the back-office operations: forced executions,
// status overrides, cash-transaction decisions and position corrections.
// Every mutation leaves an audit trail entry.
package admin

import (
	"context"
	"errors"
	"fmt"

	"tradecore/internal/apperr"
	"tradecore/internal/audit"
	"tradecore/internal/balance"
	"tradecore/internal/metrics"
	"tradecore/internal/model"
	"tradecore/internal/orders"
	"tradecore/internal/position"
	"tradecore/internal/storage"
	"tradecore/internal/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Service struct {
	orders   *orders.Service
	balances *balance.Service
	book     *position.Book
	trail    *audit.Service
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewService(o *orders.Service, b *balance.Service, book *position.Book, trail *audit.Service, m *metrics.Metrics, log zerolog.Logger) *Service {
	return &Service{orders: o, balances: b, book: book, trail: trail, metrics: m, log: log}
}

// Actor identifies the admin performing an operation.
type Actor struct {
	AdminID string
	IP      string
}

func (a Actor) entry(action types.AuditAction, targetUser, targetID, desc string, meta map[string]string) model.AuditLogEntry {
	return model.AuditLogEntry{
		AdminID:      a.AdminID,
		Action:       action,
		TargetUserID: targetUser,
		TargetID:     targetID,
		Description:  desc,
		Metadata:     meta,
		ActorIP:      a.IP,
	}
}

// ForceExecute fills an order on the admin's authority. A pending order
// is promoted to working first so the fill walks the normal transitions.
// Qty defaults to the unfilled remainder, price to the reference price.
func (s *Service) ForceExecute(ctx context.Context, actor Actor, orderID string, qty, price *decimal.Decimal) (model.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if o.Status.Terminal() {
		return model.Order{}, apperr.Transitionf("order %s is already %s", o.ID, o.Status)
	}
	fillQty := o.RemainingQty()
	if qty != nil {
		fillQty = *qty
	}
	fillPrice := o.RefPrice
	if price != nil {
		fillPrice = *price
	}
	e := actor.entry(types.AuditActionForceExecute, o.UserID, orderID,
		fmt.Sprintf("force executed %s %s %s at %s", fillQty, o.Symbol, o.Side, fillPrice),
		map[string]string{"qty": fillQty.String(), "price": fillPrice.String()})
	filled, err := s.orders.Fill(ctx, orderID, fillQty, fillPrice, orders.PromotePending(), orders.WithAudit(e))
	if err != nil {
		return model.Order{}, err
	}
	s.metrics.AdminOverride()
	return filled, nil
}

// UpdateStatus forces an order into cancelled or rejected. The legacy
// "failed" status is accepted as an alias for rejected.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, orderID, status, reason string) (model.Order, error) {
	var to types.OrderStatus
	switch status {
	case "failed", string(types.OrderStatusRejected):
		to = types.OrderStatusRejected
	case string(types.OrderStatusCancelled):
		to = types.OrderStatusCancelled
	default:
		return model.Order{}, apperr.Validationf("status %q cannot be set by override", status)
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	e := actor.entry(types.AuditActionStatusOverride, o.UserID, orderID,
		fmt.Sprintf("status override %s -> %s: %s", o.Status, to, reason),
		map[string]string{"from": string(o.Status), "to": string(to)})
	out, err := s.orders.OverrideStatus(ctx, orderID, to, reason, orders.WithAudit(e))
	if err != nil {
		return model.Order{}, err
	}
	s.metrics.AdminOverride()
	return out, nil
}

// BulkCancel cancels the given orders, or every open order matching
// userID/symbol when no ids are supplied. Orders that reach a terminal
// state concurrently are skipped, not errors. A single summary entry
// covers the sweep.
func (s *Service) BulkCancel(ctx context.Context, actor Actor, orderIDs []string, userID, symbol, reason string) (int, error) {
	ids := orderIDs
	if len(ids) == 0 {
		f := storage.OrderFilter{
			UserID:   userID,
			Symbol:   symbol,
			Statuses: openStatuses(),
		}
		list, err := s.orders.List(ctx, f)
		if err != nil {
			return 0, err
		}
		for _, o := range list {
			ids = append(ids, o.ID)
		}
	}
	cancelled := 0
	for _, id := range ids {
		if _, err := s.orders.Cancel(ctx, id); err != nil {
			if errors.Is(err, apperr.ErrInvalidTransition) || errors.Is(err, apperr.ErrOrderNotFound) {
				continue
			}
			return cancelled, err
		}
		cancelled++
	}
	e := actor.entry(types.AuditActionBulkCancel, userID, "",
		fmt.Sprintf("bulk cancelled %d orders: %s", cancelled, reason),
		map[string]string{"symbol": symbol, "count": fmt.Sprint(cancelled)})
	if err := s.trail.Record(ctx, e); err != nil {
		s.log.Error().Err(err).Str("admin_id", actor.AdminID).Msg("bulk cancel audit entry failed")
	}
	return cancelled, nil
}

// ForceExpireDay cancels every open day order, the end-of-session sweep.
func (s *Service) ForceExpireDay(ctx context.Context, actor Actor) (int, error) {
	list, err := s.orders.List(ctx, storage.OrderFilter{Statuses: openStatuses()})
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, o := range list {
		if o.TimeInForce != types.TimeInForceDay {
			continue
		}
		if _, err := s.orders.Cancel(ctx, o.ID); err != nil {
			if errors.Is(err, apperr.ErrInvalidTransition) || errors.Is(err, apperr.ErrOrderNotFound) {
				continue
			}
			return expired, err
		}
		expired++
	}
	e := actor.entry(types.AuditActionDayExpire, "", "",
		fmt.Sprintf("expired %d day orders", expired),
		map[string]string{"count": fmt.Sprint(expired)})
	if err := s.trail.Record(ctx, e); err != nil {
		s.log.Error().Err(err).Str("admin_id", actor.AdminID).Msg("day expire audit entry failed")
	}
	return expired, nil
}

// DeleteOrder removes a pending, unfilled order entirely.
func (s *Service) DeleteOrder(ctx context.Context, actor Actor, orderID string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	e := actor.entry(types.AuditActionOrderDelete, o.UserID, orderID,
		fmt.Sprintf("deleted pending order %s %s %s", o.Side, o.Qty, o.Symbol), nil)
	return s.orders.Delete(ctx, orderID, orders.WithAudit(e))
}

// UnwindPosition reduces a user's position by qty at the given price,
// a manual correction outside the order flow.
func (s *Service) UnwindPosition(ctx context.Context, actor Actor, userID, symbol string, qty, price decimal.Decimal) (decimal.Decimal, error) {
	realized, err := s.book.Unwind(ctx, userID, symbol, qty, price)
	if err != nil {
		return decimal.Decimal{}, err
	}
	e := actor.entry(types.AuditActionPositionUnwind, userID, symbol,
		fmt.Sprintf("unwound %s %s at %s, realized %s", qty, symbol, price, realized),
		map[string]string{"qty": qty.String(), "price": price.String(), "realized": realized.String()})
	if err := s.trail.Record(ctx, e); err != nil {
		s.log.Error().Err(err).Str("admin_id", actor.AdminID).Msg("unwind audit entry failed")
	}
	return realized, nil
}

// DecideDeposit resolves a pending deposit. Approve credits the amount,
// reject leaves balances untouched.
func (s *Service) DecideDeposit(ctx context.Context, actor Actor, txID string, approve bool, reason string) (model.CashTransaction, error) {
	verdict := "rejected"
	if approve {
		verdict = "approved"
	}
	e := actor.entry(types.AuditActionDepositDecision, "", txID,
		fmt.Sprintf("deposit %s: %s", verdict, reason), nil)
	if approve {
		return s.balances.ConfirmDeposit(ctx, txID, balance.WithAudit(e))
	}
	return s.balances.RejectDeposit(ctx, txID, reason, balance.WithAudit(e))
}

// DecideWithdrawal resolves a pending withdrawal. Approve pays out the
// reserved amount, reject releases the reservation.
func (s *Service) DecideWithdrawal(ctx context.Context, actor Actor, txID string, approve bool, reason string) (model.CashTransaction, error) {
	verdict := "rejected"
	if approve {
		verdict = "approved"
	}
	e := actor.entry(types.AuditActionWithdrawDecided, "", txID,
		fmt.Sprintf("withdrawal %s: %s", verdict, reason), nil)
	if approve {
		return s.balances.ConfirmWithdrawal(ctx, txID, balance.WithAudit(e))
	}
	return s.balances.RejectWithdrawal(ctx, txID, reason, balance.WithAudit(e))
}

// ListOrders is the unrestricted order view.
func (s *Service) ListOrders(ctx context.Context, f storage.OrderFilter) ([]model.Order, error) {
	return s.orders.List(ctx, f)
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
	return s.orders.Get(ctx, orderID)
}

func (s *Service) OrderStats(ctx context.Context, f storage.OrderFilter) (storage.OrderStats, error) {
	return s.orders.Stats(ctx, f)
}

func (s *Service) ListCashTransactions(ctx context.Context, f storage.CashTxFilter) ([]model.CashTransaction, error) {
	return s.balances.ListCashTransactions(ctx, f)
}

func (s *Service) UserBalance(ctx context.Context, userID string) (model.AccountBalance, error) {
	return s.balances.GetBalance(ctx, userID)
}

func (s *Service) UserPositions(ctx context.Context, userID string) ([]model.Position, error) {
	return s.book.ListByUser(ctx, userID)
}

func (s *Service) AuditLog(ctx context.Context, f storage.AuditFilter) ([]model.AuditLogEntry, error) {
	return s.trail.List(ctx, f)
}

func openStatuses() []types.OrderStatus {
	return []types.OrderStatus{
		types.OrderStatusPending,
		types.OrderStatusWorking,
		types.OrderStatusPartiallyFilled,
	}
}
