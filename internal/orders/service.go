// Package orders owns the order state machine. Every transition settles
// its side effects on the balance ledger and the position book inside the
// same transaction, under the owning user's lock.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradecore/internal/apperr"
	"tradecore/internal/audit"
	"tradecore/internal/balance"
	"tradecore/internal/metrics"
	"tradecore/internal/model"
	"tradecore/internal/notify"
	"tradecore/internal/position"
	"tradecore/internal/storage"
	"tradecore/internal/types"
	"tradecore/internal/userlock"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Service struct {
	db        storage.DB
	locks     *userlock.Keyed
	notifier  notify.Emitter
	metrics   *metrics.Metrics
	log       zerolog.Logger
	currency  string
	allowFlip bool
}

func NewService(db storage.DB, locks *userlock.Keyed, notifier notify.Emitter, m *metrics.Metrics, log zerolog.Logger, currency string, allowFlip bool) *Service {
	if notifier == nil {
		notifier = notify.NewNopEmitter()
	}
	return &Service{db: db, locks: locks, notifier: notifier, metrics: m, log: log, currency: currency, allowFlip: allowFlip}
}

type PlaceRequest struct {
	UserID      string
	Symbol      string
	AssetClass  types.AssetClass
	Kind        types.OrderKind
	Side        types.OrderSide
	Qty         decimal.Decimal
	LimitPrice  *decimal.Decimal
	StopPrice   *decimal.Decimal
	RefPrice    *decimal.Decimal // caller-supplied reference, required for market orders
	TimeInForce types.TimeInForce
	Notes       string
}

func (r *PlaceRequest) validate() error {
	if r.UserID == "" {
		return apperr.Validationf("user id is required")
	}
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	if r.Symbol == "" {
		return apperr.Validationf("symbol is required")
	}
	if !types.ValidOrderSide(r.Side) {
		return apperr.Validationf("invalid side %q", r.Side)
	}
	if !types.ValidOrderKind(r.Kind) {
		return apperr.Validationf("invalid order kind %q", r.Kind)
	}
	if r.TimeInForce == "" {
		r.TimeInForce = types.TimeInForceGTC
	}
	if !types.ValidTimeInForce(r.TimeInForce) {
		return apperr.Validationf("invalid time in force %q", r.TimeInForce)
	}
	if r.AssetClass == "" {
		r.AssetClass = types.AssetClassStock
	}
	if !types.ValidAssetClass(r.AssetClass) {
		return apperr.Validationf("invalid asset class %q", r.AssetClass)
	}
	if !r.Qty.IsPositive() {
		return apperr.Validationf("qty must be positive, got %s", r.Qty)
	}
	switch r.Kind {
	case types.OrderKindLimit:
		if r.LimitPrice == nil || !r.LimitPrice.IsPositive() {
			return apperr.Validationf("limit orders require a positive limit price")
		}
	case types.OrderKindStop:
		if r.StopPrice == nil || !r.StopPrice.IsPositive() {
			return apperr.Validationf("stop orders require a positive stop price")
		}
	case types.OrderKindStopLimit:
		if r.StopPrice == nil || !r.StopPrice.IsPositive() {
			return apperr.Validationf("stop limit orders require a positive stop price")
		}
		if r.LimitPrice == nil || !r.LimitPrice.IsPositive() {
			return apperr.Validationf("stop limit orders require a positive limit price")
		}
	case types.OrderKindMarket:
		if r.RefPrice == nil || !r.RefPrice.IsPositive() {
			return apperr.Validationf("market orders require a positive reference price")
		}
	}
	return nil
}

// referencePrice is the price the reservation is sized against: the limit
// price for limit orders, the stop price for stop kinds, the caller's
// reference for market orders.
func (r *PlaceRequest) referencePrice() decimal.Decimal {
	switch r.Kind {
	case types.OrderKindLimit:
		return *r.LimitPrice
	case types.OrderKindStop, types.OrderKindStopLimit:
		return *r.StopPrice
	default:
		return *r.RefPrice
	}
}

// Place validates the request, reserves the estimated cost for buy orders,
// and persists the order. Market orders start working, everything else
// waits pending for its trigger. On insufficient funds nothing persists.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (model.Order, error) {
	if err := req.validate(); err != nil {
		return model.Order{}, err
	}
	defer s.metrics.Observe("orders.place", time.Now())

	refPrice := req.referencePrice()
	status := types.OrderStatusPending
	if req.Kind == types.OrderKindMarket {
		status = types.OrderStatusWorking
	}
	now := time.Now().UTC()
	order := model.Order{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		Symbol:       req.Symbol,
		AssetClass:   req.AssetClass,
		Kind:         req.Kind,
		Side:         req.Side,
		Qty:          req.Qty,
		LimitPrice:   req.LimitPrice,
		StopPrice:    req.StopPrice,
		RefPrice:     refPrice,
		TimeInForce:  req.TimeInForce,
		Status:       status,
		FilledQty:    decimal.Zero,
		AvgFillPrice: decimal.Zero,
		Notes:        req.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.locks.With(req.UserID, func() error {
		return s.db.WithinTx(ctx, func(tx storage.Tx) error {
			if req.Side == types.OrderSideBuy {
				b, err := tx.Balances().Ensure(ctx, req.UserID, s.currency)
				if err != nil {
					return err
				}
				if err := balance.Reserve(&b, req.Qty.Mul(refPrice)); err != nil {
					return err
				}
				if err := tx.Balances().Put(ctx, b); err != nil {
					return err
				}
			}
			return tx.Orders().Create(ctx, order)
		})
	})
	if err != nil {
		s.observeFailure("orders.place", req.UserID, err)
		return model.Order{}, err
	}
	s.metrics.OrderPlaced()
	s.notifier.Emit(ctx, notify.NewEvent(req.UserID, types.EventOrderPlaced, types.EventPriorityNormal,
		fmt.Sprintf("%s %s order for %s %s placed", req.Side, req.Kind, req.Qty, req.Symbol)))
	s.log.Info().Str("order_id", order.ID).Str("user_id", req.UserID).Str("symbol", req.Symbol).
		Str("side", string(req.Side)).Str("kind", string(req.Kind)).Msg("order placed")
	return order, nil
}

// Option carries extras applied inside the transaction of a transition.
type Option func(*txExtras)

type txExtras struct {
	audit          *model.AuditLogEntry
	promotePending bool
}

// WithAudit appends an audit entry in the same transaction as the
// transition, so the override and its record commit together.
func WithAudit(e model.AuditLogEntry) Option {
	return func(x *txExtras) { x.audit = &e }
}

// PromotePending lets an administrative fill walk a pending order through
// working first, using the same state machine edge a trigger would.
func PromotePending() Option {
	return func(x *txExtras) { x.promotePending = true }
}

func applyOptions(opts []Option) txExtras {
	var x txExtras
	for _, o := range opts {
		o(&x)
	}
	return x
}

// Fill applies one execution to a working or partially filled order:
// position update, balance settlement, realized P&L, and the resulting
// status, all in one transaction.
func (s *Service) Fill(ctx context.Context, orderID string, fillQty, fillPrice decimal.Decimal, opts ...Option) (model.Order, error) {
	if !fillQty.IsPositive() {
		return model.Order{}, apperr.Validationf("fill qty must be positive, got %s", fillQty)
	}
	if !fillPrice.IsPositive() {
		return model.Order{}, apperr.Validationf("fill price must be positive, got %s", fillPrice)
	}
	defer s.metrics.Observe("orders.fill", time.Now())
	x := applyOptions(opts)

	peek, err := s.peek(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	var out model.Order
	err = s.locks.With(peek.UserID, func() error {
		return s.db.WithinTx(ctx, func(tx storage.Tx) error {
			o, err := tx.Orders().Get(ctx, orderID)
			if err != nil {
				return err
			}
			if o.Status == types.OrderStatusPending && x.promotePending {
				if !o.Status.CanTransition(types.OrderStatusWorking) {
					return apperr.Transitionf("order %s cannot move from %s to working", o.ID, o.Status)
				}
				o.Status = types.OrderStatusWorking
			}
			if o.Status != types.OrderStatusWorking && o.Status != types.OrderStatusPartiallyFilled {
				return apperr.Transitionf("order %s is %s, fills require working or partially_filled", o.ID, o.Status)
			}
			if fillQty.GreaterThan(o.RemainingQty()) {
				return apperr.Validationf("fill qty %s exceeds remaining %s", fillQty, o.RemainingQty())
			}

			var existing *model.Position
			p, err := tx.Positions().Get(ctx, o.UserID, o.Symbol)
			if err == nil {
				existing = &p
			} else if !errors.Is(err, apperr.ErrPositionNotFound) {
				return err
			}
			res, err := position.Apply(existing, position.Fill{
				UserID:     o.UserID,
				Symbol:     o.Symbol,
				Side:       o.Side,
				Qty:        fillQty,
				Price:      fillPrice,
				AssetClass: o.AssetClass,
			}, s.allowFlip)
			if err != nil {
				return err
			}
			if res.Position == nil {
				if err := tx.Positions().Delete(ctx, o.UserID, o.Symbol); err != nil {
					return err
				}
			} else if err := tx.Positions().Put(ctx, *res.Position); err != nil {
				return err
			}

			b, err := tx.Balances().Ensure(ctx, o.UserID, s.currency)
			if err != nil {
				return err
			}
			if o.Side == types.OrderSideBuy {
				if err := balance.SettleBuy(&b, fillQty.Mul(o.RefPrice)); err != nil {
					return err
				}
			} else {
				if err := balance.SettleSell(&b, fillQty.Mul(fillPrice)); err != nil {
					return err
				}
			}
			if !res.Realized.IsZero() {
				if err := balance.AddRealizedPnL(&b, res.Realized); err != nil {
					return err
				}
			}
			if err := tx.Balances().Put(ctx, b); err != nil {
				return err
			}

			prevFilled := o.FilledQty
			o.AvgFillPrice = prevFilled.Mul(o.AvgFillPrice).Add(fillQty.Mul(fillPrice)).Div(prevFilled.Add(fillQty))
			o.FilledQty = prevFilled.Add(fillQty)
			next := types.OrderStatusPartiallyFilled
			if o.FilledQty.Equal(o.Qty) {
				next = types.OrderStatusFilled
			}
			if !o.Status.CanTransition(next) {
				return apperr.Transitionf("order %s cannot move from %s to %s", o.ID, o.Status, next)
			}
			o.Status = next
			o.UpdatedAt = time.Now().UTC()
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
			if x.audit != nil {
				if err := appendAudit(ctx, tx, *x.audit); err != nil {
					return err
				}
			}
			out = o
			return nil
		})
	})
	if err != nil {
		s.observeFailure("orders.fill", peek.UserID, err)
		return model.Order{}, err
	}
	s.metrics.FillApplied()
	if out.Status == types.OrderStatusFilled {
		s.metrics.OrderFilled()
	}
	s.notifier.Emit(ctx, notify.NewEvent(out.UserID, types.EventOrderFilled, types.EventPriorityNormal,
		fmt.Sprintf("Order %s filled %s of %s %s at %s", out.ID, out.FilledQty, out.Qty, out.Symbol, fillPrice)))
	s.log.Info().Str("order_id", out.ID).Str("status", string(out.Status)).
		Str("filled_qty", out.FilledQty.String()).Str("fill_price", fillPrice.String()).Msg("fill applied")
	return out, nil
}

// Cancel releases the unfilled remainder's reservation and ends the order.
// Recorded fills stay; only the remainder is cancellable.
func (s *Service) Cancel(ctx context.Context, orderID string, opts ...Option) (model.Order, error) {
	defer s.metrics.Observe("orders.cancel", time.Now())
	x := applyOptions(opts)
	peek, err := s.peek(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	var out model.Order
	err = s.locks.With(peek.UserID, func() error {
		return s.db.WithinTx(ctx, func(tx storage.Tx) error {
			o, err := tx.Orders().Get(ctx, orderID)
			if err != nil {
				return err
			}
			if !o.Status.CanTransition(types.OrderStatusCancelled) {
				return apperr.Transitionf("order %s is %s, cancel requires pending, working or partially_filled", o.ID, o.Status)
			}
			remainder := o.ReservedRemainder()
			if remainder.IsPositive() {
				b, err := tx.Balances().Ensure(ctx, o.UserID, s.currency)
				if err != nil {
					return err
				}
				if err := balance.Release(&b, remainder); err != nil {
					return err
				}
				if err := tx.Balances().Put(ctx, b); err != nil {
					return err
				}
			}
			o.Status = types.OrderStatusCancelled
			o.UpdatedAt = time.Now().UTC()
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
			if x.audit != nil {
				if err := appendAudit(ctx, tx, *x.audit); err != nil {
					return err
				}
			}
			out = o
			return nil
		})
	})
	if err != nil {
		s.observeFailure("orders.cancel", peek.UserID, err)
		return model.Order{}, err
	}
	s.metrics.OrderCancelled()
	s.notifier.Emit(ctx, notify.NewEvent(out.UserID, types.EventOrderCancelled, types.EventPriorityNormal,
		fmt.Sprintf("Order %s cancelled", out.ID)))
	return out, nil
}

// OverrideStatus is the administrative correction path: it forces an open
// order into cancelled or rejected, releasing the unfilled remainder's
// reservation. A partially filled order keeps its fills and position; its
// requested qty is adjusted down to the filled qty so the order's own
// arithmetic stays consistent with what actually executed. Any non-terminal
// order may be overridden, including partially_filled to rejected, an edge
// the normal state machine does not offer.
func (s *Service) OverrideStatus(ctx context.Context, orderID string, newStatus types.OrderStatus, reason string, opts ...Option) (model.Order, error) {
	if newStatus != types.OrderStatusCancelled && newStatus != types.OrderStatusRejected {
		return model.Order{}, apperr.Validationf("status override must target cancelled or rejected, got %q", newStatus)
	}
	defer s.metrics.Observe("orders.override_status", time.Now())
	x := applyOptions(opts)
	peek, err := s.peek(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	var out model.Order
	err = s.locks.With(peek.UserID, func() error {
		return s.db.WithinTx(ctx, func(tx storage.Tx) error {
			o, err := tx.Orders().Get(ctx, orderID)
			if err != nil {
				return err
			}
			if o.Status.Terminal() {
				return apperr.Transitionf("order %s cannot move from %s to %s", o.ID, o.Status, newStatus)
			}
			remainder := o.ReservedRemainder()
			if remainder.IsPositive() {
				b, err := tx.Balances().Ensure(ctx, o.UserID, s.currency)
				if err != nil {
					return err
				}
				if err := balance.Release(&b, remainder); err != nil {
					return err
				}
				if err := tx.Balances().Put(ctx, b); err != nil {
					return err
				}
			}
			if o.FilledQty.IsPositive() {
				o.Qty = o.FilledQty
			}
			o.Status = newStatus
			if reason != "" {
				if o.Notes != "" {
					o.Notes += "; "
				}
				o.Notes += reason
			}
			o.UpdatedAt = time.Now().UTC()
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
			if x.audit != nil {
				if err := appendAudit(ctx, tx, *x.audit); err != nil {
					return err
				}
			}
			out = o
			return nil
		})
	})
	if err != nil {
		s.observeFailure("orders.override_status", peek.UserID, err)
		return model.Order{}, err
	}
	if newStatus == types.OrderStatusCancelled {
		s.metrics.OrderCancelled()
	}
	s.notifier.Emit(ctx, notify.NewEvent(out.UserID, types.EventOrderCancelled, types.EventPriorityHigh,
		fmt.Sprintf("Order %s %s by an administrator", out.ID, newStatus)))
	return out, nil
}

// Trigger moves a pending order to working once its price condition is
// met. The pricefeed sweep drives this on each tick.
func (s *Service) Trigger(ctx context.Context, orderID string) (model.Order, error) {
	peek, err := s.peek(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	var out model.Order
	err = s.locks.With(peek.UserID, func() error {
		return s.db.WithinTx(ctx, func(tx storage.Tx) error {
			o, err := tx.Orders().Get(ctx, orderID)
			if err != nil {
				return err
			}
			if o.Status != types.OrderStatusPending {
				return apperr.Transitionf("order %s is %s, trigger requires pending", o.ID, o.Status)
			}
			o.Status = types.OrderStatusWorking
			o.UpdatedAt = time.Now().UTC()
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
			out = o
			return nil
		})
	})
	if err != nil {
		return model.Order{}, err
	}
	s.log.Debug().Str("order_id", out.ID).Msg("order triggered")
	return out, nil
}

// TriggerMet reports whether price satisfies the order's entry condition.
func TriggerMet(o model.Order, price decimal.Decimal) bool {
	switch o.Kind {
	case types.OrderKindLimit:
		if o.Side == types.OrderSideBuy {
			return price.LessThanOrEqual(*o.LimitPrice)
		}
		return price.GreaterThanOrEqual(*o.LimitPrice)
	case types.OrderKindStop, types.OrderKindStopLimit:
		if o.Side == types.OrderSideBuy {
			return price.GreaterThanOrEqual(*o.StopPrice)
		}
		return price.LessThanOrEqual(*o.StopPrice)
	}
	return false
}

// SweepTriggers promotes every pending order in the symbol whose condition
// the tick satisfies. Returns the number of orders moved to working.
func (s *Service) SweepTriggers(ctx context.Context, symbol string, price decimal.Decimal) (int, error) {
	pending, err := s.List(ctx, storage.OrderFilter{
		Symbol:   strings.ToUpper(symbol),
		Statuses: []types.OrderStatus{types.OrderStatusPending},
	})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, o := range pending {
		if !TriggerMet(o, price) {
			continue
		}
		if _, err := s.Trigger(ctx, o.ID); err != nil {
			// a concurrent transition is fine, anything else is not
			if errors.Is(err, apperr.ErrInvalidTransition) || errors.Is(err, apperr.ErrOrderNotFound) {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}

// Delete removes an order entirely. Only a pending, unfilled order may be
// deleted; anything with execution history is immutable.
func (s *Service) Delete(ctx context.Context, orderID string, opts ...Option) error {
	x := applyOptions(opts)
	peek, err := s.peek(ctx, orderID)
	if err != nil {
		return err
	}
	err = s.locks.With(peek.UserID, func() error {
		return s.db.WithinTx(ctx, func(tx storage.Tx) error {
			o, err := tx.Orders().Get(ctx, orderID)
			if err != nil {
				return err
			}
			if o.Status != types.OrderStatusPending || o.FilledQty.IsPositive() {
				return apperr.Transitionf("order %s is %s with %s filled, only pending unfilled orders are deletable", o.ID, o.Status, o.FilledQty)
			}
			remainder := o.ReservedRemainder()
			if remainder.IsPositive() {
				b, err := tx.Balances().Ensure(ctx, o.UserID, s.currency)
				if err != nil {
					return err
				}
				if err := balance.Release(&b, remainder); err != nil {
					return err
				}
				if err := tx.Balances().Put(ctx, b); err != nil {
					return err
				}
			}
			if err := tx.Orders().Delete(ctx, orderID); err != nil {
				return err
			}
			if x.audit != nil {
				return appendAudit(ctx, tx, *x.audit)
			}
			return nil
		})
	})
	if err != nil {
		s.observeFailure("orders.delete", peek.UserID, err)
	}
	return err
}

func (s *Service) peek(ctx context.Context, orderID string) (model.Order, error) {
	if orderID == "" {
		return model.Order{}, apperr.Validationf("order id is required")
	}
	var o model.Order
	err := s.db.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		o, err = tx.Orders().Get(ctx, orderID)
		return err
	})
	return o, err
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, orderID string) (model.Order, error) {
	return s.peek(ctx, orderID)
}

// List is the read-only query surface over orders.
func (s *Service) List(ctx context.Context, f storage.OrderFilter) ([]model.Order, error) {
	var out []model.Order
	err := s.db.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.Orders().List(ctx, f)
		return err
	})
	return out, err
}

// Stats aggregates counts, volumes and notional over matching orders.
func (s *Service) Stats(ctx context.Context, f storage.OrderFilter) (storage.OrderStats, error) {
	var out storage.OrderStats
	err := s.db.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.Orders().Stats(ctx, f)
		return err
	})
	return out, err
}

func appendAudit(ctx context.Context, tx storage.Tx, e model.AuditLogEntry) error {
	return audit.Append(ctx, tx, e)
}

func (s *Service) observeFailure(op, userID string, err error) {
	if apperr.Internal(err) {
		s.metrics.InvariantFailure()
		s.log.Error().Str("op", op).Str("user_id", userID).Err(err).Msg("ledger invariant violation")
	}
}
