package position

import (
	"context"
	"time"

	"tradecore/internal/apperr"
	"tradecore/internal/metrics"
	"tradecore/internal/model"
	"tradecore/internal/storage"
	"tradecore/internal/types"
	"tradecore/internal/userlock"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Book is the position query and mark-to-market surface. Fill application
// happens inside the order manager's transactions via Apply; the Book
// never mutates cost basis on its own.
type Book struct {
	db      storage.DB
	locks   *userlock.Keyed
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewBook(db storage.DB, locks *userlock.Keyed, m *metrics.Metrics, log zerolog.Logger) *Book {
	return &Book{db: db, locks: locks, metrics: m, log: log}
}

func (b *Book) Get(ctx context.Context, userID, symbol string) (model.Position, error) {
	var p model.Position
	err := b.db.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		p, err = tx.Positions().Get(ctx, userID, symbol)
		return err
	})
	return p, err
}

func (b *Book) ListByUser(ctx context.Context, userID string) ([]model.Position, error) {
	var out []model.Position
	err := b.db.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.Positions().ListByUser(ctx, userID)
		return err
	})
	return out, err
}

// MarkToMarket stamps the latest price on every open position in the
// symbol. Market value and unrealized P&L derive from the stamp; cost
// basis is untouched. Returns the number of positions updated.
func (b *Book) MarkToMarket(ctx context.Context, symbol string, price decimal.Decimal) (int, error) {
	if !price.IsPositive() {
		return 0, apperr.Validationf("mark price must be positive, got %s", price)
	}
	defer b.metrics.Observe("position.mark_to_market", time.Now())
	count := 0
	err := b.db.WithinTx(ctx, func(tx storage.Tx) error {
		positions, err := tx.Positions().ListBySymbol(ctx, symbol)
		if err != nil {
			return err
		}
		for _, p := range positions {
			mark := price
			p.MarkPrice = &mark
			if err := tx.Positions().Put(ctx, p); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	b.metrics.MarkToMarketTick()
	return count, nil
}

// Unwind is the administrative correction path: it reduces an open
// position by qty at the given price and returns the realized P&L of the
// closed portion. Reducing a symbol with no open position fails with
// ErrPositionNotFound.
func (b *Book) Unwind(ctx context.Context, userID, symbol string, qty, price decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, apperr.Validationf("unwind qty must be positive, got %s", qty)
	}
	var realized decimal.Decimal
	err := b.locks.With(userID, func() error {
		return b.db.WithinTx(ctx, func(tx storage.Tx) error {
			p, err := tx.Positions().Get(ctx, userID, symbol)
			if err != nil {
				return err
			}
			if qty.GreaterThan(p.Qty) {
				return apperr.Validationf("unwind qty %s exceeds open qty %s", qty, p.Qty)
			}
			side := p.Side
			res, err := Apply(&p, Fill{
				UserID:     userID,
				Symbol:     symbol,
				Side:       closingSide(side),
				Qty:        qty,
				Price:      price,
				AssetClass: p.AssetClass,
			}, false)
			if err != nil {
				return err
			}
			realized = res.Realized
			if res.Position == nil {
				return tx.Positions().Delete(ctx, userID, symbol)
			}
			return tx.Positions().Put(ctx, *res.Position)
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	return realized, nil
}

// closingSide is the order side that reduces a position: longs close by
// selling, shorts by buying back.
func closingSide(side types.PositionSide) types.OrderSide {
	if side == types.PositionSideLong {
		return types.OrderSideSell
	}
	return types.OrderSideBuy
}
