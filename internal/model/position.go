package model

import (
	"time"

	"tradecore/internal/types"

	"github.com/shopspring/decimal"
)

type Position struct {
	UserID        string             `json:"user_id"`
	Symbol        string             `json:"symbol"`
	AssetClass    types.AssetClass   `json:"asset_class"`
	Side          types.PositionSide `json:"side"`
	Qty           decimal.Decimal    `json:"qty"`
	AvgEntryPrice decimal.Decimal    `json:"avg_entry_price"`
	TotalCost     decimal.Decimal    `json:"total_cost"`
	MarkPrice     *decimal.Decimal   `json:"mark_price,omitempty"`
	OpenedAt      time.Time          `json:"opened_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// MarketValue is qty times the last seen mark price, zero before the first tick.
func (p Position) MarketValue() decimal.Decimal {
	if p.MarkPrice == nil {
		return decimal.Zero
	}
	return p.Qty.Mul(*p.MarkPrice)
}

// UnrealizedPnL is the mark-to-market gain on the open quantity. For shorts
// the sign flips: the position gains when the mark falls below entry.
func (p Position) UnrealizedPnL() decimal.Decimal {
	if p.MarkPrice == nil {
		return decimal.Zero
	}
	diff := p.MarketValue().Sub(p.TotalCost)
	if p.Side == types.PositionSideShort {
		return diff.Neg()
	}
	return diff
}

// UnrealizedPnLPct is the unrealized gain relative to cost basis, in percent.
func (p Position) UnrealizedPnLPct() decimal.Decimal {
	if p.MarkPrice == nil || !p.TotalCost.IsPositive() {
		return decimal.Zero
	}
	return p.UnrealizedPnL().Div(p.TotalCost).Mul(decimal.NewFromInt(100))
}
