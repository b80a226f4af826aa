package model

import (
	"time"

	"tradecore/internal/types"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Symbol       string            `json:"symbol"`
	AssetClass   types.AssetClass  `json:"asset_class"`
	Kind         types.OrderKind   `json:"kind"`
	Side         types.OrderSide   `json:"side"`
	Qty          decimal.Decimal   `json:"qty"`
	LimitPrice   *decimal.Decimal  `json:"limit_price,omitempty"`
	StopPrice    *decimal.Decimal  `json:"stop_price,omitempty"`
	RefPrice     decimal.Decimal   `json:"ref_price"`
	TimeInForce  types.TimeInForce `json:"time_in_force"`
	Status       types.OrderStatus `json:"status"`
	FilledQty    decimal.Decimal   `json:"filled_qty"`
	AvgFillPrice decimal.Decimal   `json:"avg_fill_price"`
	Notes        string            `json:"notes,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// RemainingQty is the portion of the order not yet executed.
func (o Order) RemainingQty() decimal.Decimal {
	return o.Qty.Sub(o.FilledQty)
}

// ReservedRemainder is the cash still locked for the unfilled portion of a
// buy order. Sell orders never reserve cash.
func (o Order) ReservedRemainder() decimal.Decimal {
	if o.Side != types.OrderSideBuy {
		return decimal.Zero
	}
	return o.RemainingQty().Mul(o.RefPrice)
}
