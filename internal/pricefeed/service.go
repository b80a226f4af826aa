package pricefeed

import (
	"context"
	"strings"
	"time"

	"tradecore/internal/apperr"
	"tradecore/internal/metrics"
	"tradecore/internal/orders"
	"tradecore/internal/position"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Service struct {
	cache   Cache
	book    *position.Book
	orders  *orders.Service
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewService(cache Cache, book *position.Book, o *orders.Service, m *metrics.Metrics, log zerolog.Logger) *Service {
	return &Service{cache: cache, book: book, orders: o, metrics: m, log: log}
}

// TickResult reports what a single tick touched.
type TickResult struct {
	Symbol    string `json:"symbol"`
	Marked    int    `json:"positions_marked"`
	Triggered int    `json:"orders_triggered"`
}

// Tick records a price observation. The cache write happens first; a
// failure there aborts the tick so readers never see marks ahead of the
// cached price.
func (s *Service) Tick(ctx context.Context, symbol string, price decimal.Decimal) (TickResult, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return TickResult{}, apperr.Validationf("symbol is required")
	}
	if !price.IsPositive() {
		return TickResult{}, apperr.Validationf("price must be positive")
	}
	if err := s.cache.Set(ctx, symbol, price, time.Now().UTC()); err != nil {
		return TickResult{}, err
	}
	marked, err := s.book.MarkToMarket(ctx, symbol, price)
	if err != nil {
		return TickResult{}, err
	}
	triggered, err := s.orders.SweepTriggers(ctx, symbol, price)
	if err != nil {
		return TickResult{Symbol: symbol, Marked: marked}, err
	}
	s.metrics.MarkToMarketTick()
	s.log.Debug().Str("symbol", symbol).Str("price", price.String()).
		Int("marked", marked).Int("triggered", triggered).Msg("tick applied")
	return TickResult{Symbol: symbol, Marked: marked, Triggered: triggered}, nil
}

// Quote returns the last cached price for a symbol.
func (s *Service) Quote(ctx context.Context, symbol string) (Quote, error) {
	return s.cache.Get(ctx, strings.ToUpper(strings.TrimSpace(symbol)))
}
