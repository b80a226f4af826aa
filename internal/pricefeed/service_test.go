package pricefeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradecore/internal/apperr"
	"tradecore/internal/balance"
	"tradecore/internal/orders"
	"tradecore/internal/position"
	"tradecore/internal/storage/memory"
	"tradecore/internal/types"
	"tradecore/internal/userlock"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	at := time.Now().UTC()
	if err := c.Set(ctx, "AAPL", dec("187.5"), at); err != nil {
		t.Fatal(err)
	}
	q, err := c.Get(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if q.Symbol != "AAPL" || !q.Price.Equal(dec("187.5")) || !q.At.Equal(at) {
		t.Errorf("unexpected quote: %+v", q)
	}
	if _, err := c.Get(ctx, "MSFT"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type tickFixture struct {
	svc      *Service
	orders   *orders.Service
	book     *position.Book
	balances *balance.Service
}

func newTickFixture(t *testing.T, cache Cache) *tickFixture {
	t.Helper()
	db := memory.New()
	locks := userlock.New()
	balances := balance.NewService(db, locks, nil, nil, zerolog.Nop(), "USD")
	book := position.NewBook(db, locks, nil, zerolog.Nop())
	orderSvc := orders.NewService(db, locks, nil, nil, zerolog.Nop(), "USD", false)
	return &tickFixture{
		svc:      NewService(cache, book, orderSvc, nil, zerolog.Nop()),
		orders:   orderSvc,
		book:     book,
		balances: balances,
	}
}

func (f *tickFixture) fund(t *testing.T, userID, amount string) {
	t.Helper()
	tx, err := f.balances.RequestDeposit(context.Background(), userID, dec(amount))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.balances.ConfirmDeposit(context.Background(), tx.ID); err != nil {
		t.Fatal(err)
	}
}

func TestTick_MarksPositionsAndSweepsTriggers(t *testing.T) {
	f := newTickFixture(t, NewMemoryCache())
	ctx := context.Background()
	f.fund(t, "u1", "10000")

	// open a long so mark-to-market has something to stamp
	ref := dec("100")
	mkt, err := f.orders.Place(ctx, orders.PlaceRequest{
		UserID: "u1", Symbol: "AAPL", Kind: types.OrderKindMarket,
		Side: types.OrderSideBuy, Qty: dec("10"), RefPrice: &ref,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.orders.Fill(ctx, mkt.ID, dec("10"), dec("100")); err != nil {
		t.Fatal(err)
	}

	// resting limit buy at 96, reachable by a tick at 95
	limit := dec("96")
	if _, err := f.orders.Place(ctx, orders.PlaceRequest{
		UserID: "u1", Symbol: "AAPL", Kind: types.OrderKindLimit,
		Side: types.OrderSideBuy, Qty: dec("1"), LimitPrice: &limit,
	}); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.Tick(ctx, "aapl", dec("95"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Symbol != "AAPL" {
		t.Errorf("symbol not normalized: %q", res.Symbol)
	}
	if res.Marked != 1 || res.Triggered != 1 {
		t.Errorf("expected 1 marked / 1 triggered, got %d / %d", res.Marked, res.Triggered)
	}

	p, err := f.book.Get(ctx, "u1", "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if p.MarkPrice == nil || !p.MarkPrice.Equal(dec("95")) {
		t.Errorf("mark price not stamped: %v", p.MarkPrice)
	}

	q, err := f.svc.Quote(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if !q.Price.Equal(dec("95")) {
		t.Errorf("quote not cached: %s", q.Price)
	}
}

func TestTick_Validation(t *testing.T) {
	f := newTickFixture(t, NewMemoryCache())
	if _, err := f.svc.Tick(context.Background(), "  ", dec("95")); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank symbol: expected validation error, got %v", err)
	}
	if _, err := f.svc.Tick(context.Background(), "AAPL", dec("0")); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("zero price: expected validation error, got %v", err)
	}
}

type failCache struct{}

func (failCache) Set(context.Context, string, decimal.Decimal, time.Time) error {
	return errors.New("cache down")
}
func (failCache) Get(context.Context, string) (Quote, error) { return Quote{}, errors.New("cache down") }
func (failCache) Close() error                               { return nil }

func TestTick_CacheFailureAbortsBeforeMarking(t *testing.T) {
	f := newTickFixture(t, failCache{})
	ctx := context.Background()
	f.fund(t, "u1", "10000")
	ref := dec("100")
	mkt, err := f.orders.Place(ctx, orders.PlaceRequest{
		UserID: "u1", Symbol: "AAPL", Kind: types.OrderKindMarket,
		Side: types.OrderSideBuy, Qty: dec("1"), RefPrice: &ref,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.orders.Fill(ctx, mkt.ID, dec("1"), dec("100")); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Tick(ctx, "AAPL", dec("95")); err == nil {
		t.Fatal("expected tick to fail when the cache is down")
	}
	p, err := f.book.Get(ctx, "u1", "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if p.MarkPrice != nil {
		t.Errorf("position marked despite cache failure: %v", p.MarkPrice)
	}
}
