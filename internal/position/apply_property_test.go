package position

import (
	"reflect"
	"testing"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/types"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

type fillCase struct {
	Buy   bool
	Qty   float64
	Price float64
}

// Property: folding any fill sequence keeps the cost basis coherent:
// an open position always has positive qty and total_cost == qty * avg.
func TestProperty_CostBasisStaysCoherent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	fillGen := gen.Struct(reflect.TypeOf(fillCase{}), map[string]gopter.Gen{
		"Buy":   gen.Bool(),
		"Qty":   gen.Float64Range(0.1, 50),
		"Price": gen.Float64Range(1, 1000),
	})

	properties.Property("open positions satisfy total_cost == qty * avg", prop.ForAll(
		func(fills []fillCase) bool {
			var p *model.Position
			for _, f := range fills {
				side := types.OrderSideSell
				if f.Buy {
					side = types.OrderSideBuy
				}
				res, err := Apply(p, Fill{
					UserID: "u1", Symbol: "AAPL", Side: side,
					Qty:        decimal.NewFromFloat(f.Qty).Round(4),
					Price:      decimal.NewFromFloat(f.Price).Round(4),
					AssetClass: types.AssetClassStock,
				}, true)
				if err != nil {
					// only rejected inputs leave the state untouched
					continue
				}
				p = res.Position
				if p == nil {
					continue
				}
				if !p.Qty.IsPositive() {
					return false
				}
				want := p.Qty.Mul(p.AvgEntryPrice)
				if !p.TotalCost.Sub(want).Abs().LessThan(decimal.New(1, -8)) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(fillGen),
	))

	properties.TestingRun(t)
}
