// Package storage defines the durable record store the engine runs on.
// Implementations must give per-entity atomic read-modify-write inside one
// transaction: WithinTx applies every write of fn or none of them.
package storage

import (
	"context"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/types"

	"github.com/shopspring/decimal"
)

type OrderFilter struct {
	UserID     string
	Statuses   []types.OrderStatus
	Side       types.OrderSide
	Kind       types.OrderKind
	AssetClass types.AssetClass
	Symbol     string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// Matches reports whether o passes every set field of the filter.
// Limit/Offset are applied by the store, not here.
func (f OrderFilter) Matches(o model.Order) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if o.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Side != "" && o.Side != f.Side {
		return false
	}
	if f.Kind != "" && o.Kind != f.Kind {
		return false
	}
	if f.AssetClass != "" && o.AssetClass != f.AssetClass {
		return false
	}
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && o.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

type SymbolVolume struct {
	Symbol   string          `json:"symbol"`
	Orders   int             `json:"orders"`
	Volume   decimal.Decimal `json:"volume"`
	Notional decimal.Decimal `json:"notional"`
}

type UserVolume struct {
	UserID   string          `json:"user_id"`
	Orders   int             `json:"orders"`
	Notional decimal.Decimal `json:"notional"`
}

type OrderStats struct {
	TotalOrders    int                       `json:"total_orders"`
	CountByStatus  map[types.OrderStatus]int `json:"count_by_status"`
	TotalFilledQty decimal.Decimal           `json:"total_filled_qty"`
	TotalNotional  decimal.Decimal           `json:"total_notional"`
	TopSymbols     []SymbolVolume            `json:"top_symbols"`
	TopUsers       []UserVolume              `json:"top_users"`
}

type CashTxFilter struct {
	UserID string
	Kind   types.CashTxKind
	Status types.CashTxStatus
	Limit  int
	Offset int
}

type AuditFilter struct {
	AdminID string
	Action  types.AuditAction
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}

type OrderStore interface {
	Create(ctx context.Context, o model.Order) error
	Get(ctx context.Context, id string) (model.Order, error)
	Update(ctx context.Context, o model.Order) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f OrderFilter) ([]model.Order, error)
	Stats(ctx context.Context, f OrderFilter) (OrderStats, error)
}

type PositionStore interface {
	Get(ctx context.Context, userID, symbol string) (model.Position, error)
	Put(ctx context.Context, p model.Position) error
	Delete(ctx context.Context, userID, symbol string) error
	ListByUser(ctx context.Context, userID string) ([]model.Position, error)
	ListBySymbol(ctx context.Context, symbol string) ([]model.Position, error)
}

type BalanceStore interface {
	// Ensure returns the user's balance row, creating a zeroed one on first
	// touch (account onboarding happens externally, the row lazily).
	Ensure(ctx context.Context, userID, currency string) (model.AccountBalance, error)
	Get(ctx context.Context, userID string) (model.AccountBalance, error)
	Put(ctx context.Context, b model.AccountBalance) error
}

type CashTxStore interface {
	Create(ctx context.Context, t model.CashTransaction) error
	Get(ctx context.Context, id string) (model.CashTransaction, error)
	Update(ctx context.Context, t model.CashTransaction) error
	List(ctx context.Context, f CashTxFilter) ([]model.CashTransaction, error)
}

type AuditStore interface {
	Append(ctx context.Context, e model.AuditLogEntry) error
	List(ctx context.Context, f AuditFilter) ([]model.AuditLogEntry, error)
}

type Tx interface {
	Orders() OrderStore
	Positions() PositionStore
	Balances() BalanceStore
	CashTxs() CashTxStore
	Audit() AuditStore
}

type DB interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}
