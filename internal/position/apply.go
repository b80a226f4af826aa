// Package position owns per-(user, symbol) net positions with
// weighted-average cost accounting: repeated same-direction fills blend
// into one average entry price instead of discrete lots, keeping state
// O(1) per symbol.
package position

import (
	"time"

	"tradecore/internal/apperr"
	"tradecore/internal/model"
	"tradecore/internal/types"

	"github.com/shopspring/decimal"
)

type Fill struct {
	UserID     string
	Symbol     string
	Side       types.OrderSide
	Qty        decimal.Decimal
	Price      decimal.Decimal
	AssetClass types.AssetClass
}

type ApplyResult struct {
	// Position is the state after the fill, nil when the fill closed it.
	Position *model.Position
	// Realized is the P&L locked in by the closing portion of the fill.
	Realized decimal.Decimal
	Closed   bool
}

func sameDirection(side types.PositionSide, fill types.OrderSide) bool {
	if side == types.PositionSideLong {
		return fill == types.OrderSideBuy
	}
	return fill == types.OrderSideSell
}

// Apply folds one fill into an existing position (pass nil for none).
// Opposite-direction fills larger than the open quantity are rejected
// unless allowFlip is set, in which case the residual reopens as a fresh
// position on the other side at the fill price.
func Apply(existing *model.Position, f Fill, allowFlip bool) (ApplyResult, error) {
	if !f.Qty.IsPositive() {
		return ApplyResult{}, apperr.Validationf("fill qty must be positive, got %s", f.Qty)
	}
	if !f.Price.IsPositive() {
		return ApplyResult{}, apperr.Validationf("fill price must be positive, got %s", f.Price)
	}
	if !types.ValidOrderSide(f.Side) {
		return ApplyResult{}, apperr.Validationf("invalid fill side %q", f.Side)
	}
	now := time.Now().UTC()

	if existing == nil {
		side := types.PositionSideLong
		if f.Side == types.OrderSideSell {
			side = types.PositionSideShort
		}
		p := &model.Position{
			UserID:        f.UserID,
			Symbol:        f.Symbol,
			AssetClass:    f.AssetClass,
			Side:          side,
			Qty:           f.Qty,
			AvgEntryPrice: f.Price,
			TotalCost:     f.Qty.Mul(f.Price),
			OpenedAt:      now,
			UpdatedAt:     now,
		}
		return ApplyResult{Position: p, Realized: decimal.Zero}, nil
	}

	p := *existing
	if sameDirection(p.Side, f.Side) {
		newCost := p.TotalCost.Add(f.Qty.Mul(f.Price))
		newQty := p.Qty.Add(f.Qty)
		p.Qty = newQty
		p.AvgEntryPrice = newCost.Div(newQty)
		p.TotalCost = newQty.Mul(p.AvgEntryPrice)
		p.UpdatedAt = now
		return ApplyResult{Position: &p, Realized: decimal.Zero}, nil
	}

	// Opposite direction: the fill closes part or all of the position.
	if f.Qty.GreaterThan(p.Qty) && !allowFlip {
		return ApplyResult{}, apperr.Validationf(
			"fill of %s would flip %s position of %s through zero; close the position first", f.Qty, p.Side, p.Qty)
	}
	closeQty := decimal.Min(f.Qty, p.Qty)
	realized := closeQty.Mul(f.Price.Sub(p.AvgEntryPrice))
	if p.Side == types.PositionSideShort {
		realized = realized.Neg()
	}
	remaining := p.Qty.Sub(closeQty)
	if remaining.IsPositive() {
		p.Qty = remaining
		p.TotalCost = remaining.Mul(p.AvgEntryPrice)
		p.UpdatedAt = now
		return ApplyResult{Position: &p, Realized: realized}, nil
	}

	residual := f.Qty.Sub(p.Qty)
	if residual.IsPositive() {
		// allowFlip only: reopen the residual on the other side
		flipped, err := Apply(nil, Fill{
			UserID:     f.UserID,
			Symbol:     f.Symbol,
			Side:       f.Side,
			Qty:        residual,
			Price:      f.Price,
			AssetClass: f.AssetClass,
		}, false)
		if err != nil {
			return ApplyResult{}, err
		}
		return ApplyResult{Position: flipped.Position, Realized: realized, Closed: true}, nil
	}
	return ApplyResult{Position: nil, Realized: realized, Closed: true}, nil
}
