package orders

import (
	"context"
	"errors"
	"testing"

	"tradecore/internal/apperr"
	"tradecore/internal/balance"
	"tradecore/internal/model"
	"tradecore/internal/storage"
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

func newTestService(t *testing.T) (*Service, storage.DB) {
	t.Helper()
	db := memory.New()
	svc := NewService(db, userlock.New(), nil, nil, zerolog.Nop(), "USD", false)
	return svc, db
}

func fund(t *testing.T, db storage.DB, userID, amount string) {
	t.Helper()
	err := db.WithinTx(context.Background(), func(tx storage.Tx) error {
		b, err := tx.Balances().Ensure(context.Background(), userID, "USD")
		if err != nil {
			return err
		}
		if err := balance.ApplyDeposit(&b, dec(amount)); err != nil {
			return err
		}
		return tx.Balances().Put(context.Background(), b)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func getBalance(t *testing.T, db storage.DB, userID string) model.AccountBalance {
	t.Helper()
	var b model.AccountBalance
	err := db.WithinTx(context.Background(), func(tx storage.Tx) error {
		var err error
		b, err = tx.Balances().Get(context.Background(), userID)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func getPosition(t *testing.T, db storage.DB, userID, symbol string) (model.Position, error) {
	t.Helper()
	var p model.Position
	err := db.WithinTx(context.Background(), func(tx storage.Tx) error {
		var err error
		p, err = tx.Positions().Get(context.Background(), userID, symbol)
		return err
	})
	return p, err
}

func marketBuy(qty, ref string) PlaceRequest {
	r := dec(ref)
	return PlaceRequest{
		UserID: "u1", Symbol: "AAPL", Kind: types.OrderKindMarket,
		Side: types.OrderSideBuy, Qty: dec(qty), RefPrice: &r,
	}
}

func TestPlace_LimitBuyReservesAndWaitsPending(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	limit := dec("100")
	o, err := svc.Place(context.Background(), PlaceRequest{
		UserID: "u1", Symbol: "aapl", Kind: types.OrderKindLimit,
		Side: types.OrderSideBuy, Qty: dec("5"), LimitPrice: &limit,
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != types.OrderStatusPending {
		t.Errorf("expected pending, got %s", o.Status)
	}
	if o.Symbol != "AAPL" {
		t.Errorf("symbol not normalized: %s", o.Symbol)
	}
	if !o.RefPrice.Equal(dec("100")) {
		t.Errorf("reference price: want 100, got %s", o.RefPrice)
	}
	b := getBalance(t, db, "u1")
	if !b.Available.Equal(dec("500")) || !b.Locked.Equal(dec("500")) || !b.Total.Equal(dec("1000")) {
		t.Errorf("reservation wrong: available %s locked %s total %s", b.Available, b.Locked, b.Total)
	}
}

func TestPlace_MarketBuyStartsWorking(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	o, err := svc.Place(context.Background(), marketBuy("5", "100"))
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != types.OrderStatusWorking {
		t.Errorf("expected working, got %s", o.Status)
	}
}

func TestPlace_InsufficientFundsPersistsNothing(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "400")
	_, err := svc.Place(context.Background(), marketBuy("5", "100"))
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	list, err := svc.List(context.Background(), storage.OrderFilter{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("expected no orders, got %d", len(list))
	}
	b := getBalance(t, db, "u1")
	if !b.Available.Equal(dec("400")) || !b.Locked.IsZero() {
		t.Errorf("balance moved on failed place: %+v", b)
	}
}

func TestPlace_SellReservesNothing(t *testing.T) {
	svc, db := newTestService(t)
	ref := dec("100")
	_, err := svc.Place(context.Background(), PlaceRequest{
		UserID: "u1", Symbol: "AAPL", Kind: types.OrderKindMarket,
		Side: types.OrderSideSell, Qty: dec("5"), RefPrice: &ref,
	})
	if err != nil {
		t.Fatal(err)
	}
	// the balance store is never touched, so no row exists at all
	err = db.WithinTx(context.Background(), func(tx storage.Tx) error {
		_, err := tx.Balances().Get(context.Background(), "u1")
		return err
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected no balance row, got %v", err)
	}
}

func TestFill_BuySettlesAtReferenceNotFillPrice(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	o, err := svc.Place(context.Background(), marketBuy("5", "100"))
	if err != nil {
		t.Fatal(err)
	}
	filled, err := svc.Fill(context.Background(), o.ID, dec("5"), dec("90"))
	if err != nil {
		t.Fatal(err)
	}
	if filled.Status != types.OrderStatusFilled {
		t.Errorf("expected filled, got %s", filled.Status)
	}
	if !filled.AvgFillPrice.Equal(dec("90")) {
		t.Errorf("avg fill: want 90, got %s", filled.AvgFillPrice)
	}
	b := getBalance(t, db, "u1")
	if !b.Available.Equal(dec("500")) || !b.Locked.IsZero() || !b.Total.Equal(dec("500")) {
		t.Errorf("settlement wrong: available %s locked %s total %s", b.Available, b.Locked, b.Total)
	}
	if !b.TotalInvested.Equal(dec("500")) {
		t.Errorf("total invested: want 500, got %s", b.TotalInvested)
	}
	p, err := getPosition(t, db, "u1", "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Qty.Equal(dec("5")) || !p.AvgEntryPrice.Equal(dec("90")) {
		t.Errorf("position: want 5 @ 90, got %s @ %s", p.Qty, p.AvgEntryPrice)
	}
}

func TestFill_PartialThenCancelReleasesRemainder(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	o, _ := svc.Place(context.Background(), marketBuy("10", "100"))
	if _, err := svc.Fill(context.Background(), o.ID, dec("4"), dec("100")); err != nil {
		t.Fatal(err)
	}
	b := getBalance(t, db, "u1")
	if !b.Locked.Equal(dec("600")) {
		t.Fatalf("locked after partial: want 600, got %s", b.Locked)
	}
	cancelled, err := svc.Cancel(context.Background(), o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != types.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
	b = getBalance(t, db, "u1")
	if !b.Locked.IsZero() || !b.Available.Equal(dec("600")) {
		t.Errorf("release wrong: available %s locked %s", b.Available, b.Locked)
	}
	// the executed part keeps its position
	p, err := getPosition(t, db, "u1", "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Qty.Equal(dec("4")) {
		t.Errorf("position: want 4, got %s", p.Qty)
	}
}

func TestFill_BeyondRemainingRejected(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	o, _ := svc.Place(context.Background(), marketBuy("5", "100"))
	if _, err := svc.Fill(context.Background(), o.ID, dec("3"), dec("100")); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Fill(context.Background(), o.ID, dec("3"), dec("100"))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	b := getBalance(t, db, "u1")
	if !b.Locked.Equal(dec("200")) {
		t.Errorf("rejected fill moved the ledger: locked %s", b.Locked)
	}
}

func TestFill_RunningWeightedAverage(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "2500")
	o, _ := svc.Place(context.Background(), marketBuy("20", "110"))
	if _, err := svc.Fill(context.Background(), o.ID, dec("10"), dec("100")); err != nil {
		t.Fatal(err)
	}
	out, err := svc.Fill(context.Background(), o.ID, dec("10"), dec("120"))
	if err != nil {
		t.Fatal(err)
	}
	if !out.AvgFillPrice.Equal(dec("110")) {
		t.Errorf("avg fill: want 110, got %s", out.AvgFillPrice)
	}
	if out.Status != types.OrderStatusFilled {
		t.Errorf("expected filled, got %s", out.Status)
	}
}

func TestFill_ClosingSellRealizesPnL(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	buy, _ := svc.Place(context.Background(), marketBuy("10", "100"))
	if _, err := svc.Fill(context.Background(), buy.ID, dec("10"), dec("100")); err != nil {
		t.Fatal(err)
	}
	ref := dec("110")
	sell, err := svc.Place(context.Background(), PlaceRequest{
		UserID: "u1", Symbol: "AAPL", Kind: types.OrderKindMarket,
		Side: types.OrderSideSell, Qty: dec("4"), RefPrice: &ref,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Fill(context.Background(), sell.ID, dec("4"), dec("110")); err != nil {
		t.Fatal(err)
	}
	b := getBalance(t, db, "u1")
	// 1000 - 1000 invested + 440 proceeds
	if !b.Available.Equal(dec("440")) || !b.Total.Equal(dec("440")) {
		t.Errorf("proceeds wrong: available %s total %s", b.Available, b.Total)
	}
	if !b.RealizedPnL.Equal(dec("40")) {
		t.Errorf("realized pnl: want 40, got %s", b.RealizedPnL)
	}
	p, err := getPosition(t, db, "u1", "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Qty.Equal(dec("6")) {
		t.Errorf("position after partial close: want 6, got %s", p.Qty)
	}
}

func TestFill_FullCloseDeletesPosition(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	buy, _ := svc.Place(context.Background(), marketBuy("5", "100"))
	if _, err := svc.Fill(context.Background(), buy.ID, dec("5"), dec("100")); err != nil {
		t.Fatal(err)
	}
	ref := dec("100")
	sell, _ := svc.Place(context.Background(), PlaceRequest{
		UserID: "u1", Symbol: "AAPL", Kind: types.OrderKindMarket,
		Side: types.OrderSideSell, Qty: dec("5"), RefPrice: &ref,
	})
	if _, err := svc.Fill(context.Background(), sell.ID, dec("5"), dec("100")); err != nil {
		t.Fatal(err)
	}
	if _, err := getPosition(t, db, "u1", "AAPL"); !errors.Is(err, apperr.ErrPositionNotFound) {
		t.Fatalf("expected position gone, got %v", err)
	}
}

func TestFill_FlipThroughZeroRejected(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	buy, _ := svc.Place(context.Background(), marketBuy("5", "100"))
	if _, err := svc.Fill(context.Background(), buy.ID, dec("5"), dec("100")); err != nil {
		t.Fatal(err)
	}
	ref := dec("100")
	sell, _ := svc.Place(context.Background(), PlaceRequest{
		UserID: "u1", Symbol: "AAPL", Kind: types.OrderKindMarket,
		Side: types.OrderSideSell, Qty: dec("8"), RefPrice: &ref,
	})
	_, err := svc.Fill(context.Background(), sell.ID, dec("8"), dec("100"))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	// nothing settled
	b := getBalance(t, db, "u1")
	if !b.Available.Equal(dec("500")) {
		t.Errorf("rejected flip moved the ledger: available %s", b.Available)
	}
	p, _ := getPosition(t, db, "u1", "AAPL")
	if !p.Qty.Equal(dec("5")) {
		t.Errorf("position changed: %s", p.Qty)
	}
}

func TestCancel_FilledOrderRejectedLedgerUntouched(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	o, _ := svc.Place(context.Background(), marketBuy("5", "100"))
	if _, err := svc.Fill(context.Background(), o.ID, dec("5"), dec("100")); err != nil {
		t.Fatal(err)
	}
	before := getBalance(t, db, "u1")
	_, err := svc.Cancel(context.Background(), o.ID)
	if !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	after := getBalance(t, db, "u1")
	if !before.Available.Equal(after.Available) || !before.Locked.Equal(after.Locked) || !before.Total.Equal(after.Total) {
		t.Errorf("ledger moved on rejected cancel: before %+v after %+v", before, after)
	}
}

func TestFill_PendingOrderRequiresPromotion(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	limit := dec("100")
	o, _ := svc.Place(context.Background(), PlaceRequest{
		UserID: "u1", Symbol: "AAPL", Kind: types.OrderKindLimit,
		Side: types.OrderSideBuy, Qty: dec("5"), LimitPrice: &limit,
	})
	if _, err := svc.Fill(context.Background(), o.ID, dec("5"), dec("100")); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for pending order, got %v", err)
	}
	out, err := svc.Fill(context.Background(), o.ID, dec("5"), dec("100"), PromotePending())
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != types.OrderStatusFilled {
		t.Errorf("expected filled, got %s", out.Status)
	}
}

func TestFill_WithAuditCommitsEntryTogether(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	o, _ := svc.Place(context.Background(), marketBuy("5", "100"))
	entry := model.AuditLogEntry{
		AdminID: "admin-1", Action: types.AuditActionForceExecute,
		TargetUserID: "u1", TargetID: o.ID, Description: "forced",
	}
	if _, err := svc.Fill(context.Background(), o.ID, dec("5"), dec("100"), WithAudit(entry)); err != nil {
		t.Fatal(err)
	}
	var entries []model.AuditLogEntry
	err := db.WithinTx(context.Background(), func(tx storage.Tx) error {
		var err error
		entries, err = tx.Audit().List(context.Background(), storage.AuditFilter{AdminID: "admin-1"})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	if entries[0].ID == "" || entries[0].CreatedAt.IsZero() {
		t.Errorf("audit defaults not filled: %+v", entries[0])
	}
}

func TestOverrideStatus_PartialAdjustsQtyDown(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	o, _ := svc.Place(context.Background(), marketBuy("10", "100"))
	if _, err := svc.Fill(context.Background(), o.ID, dec("4"), dec("100")); err != nil {
		t.Fatal(err)
	}
	out, err := svc.OverrideStatus(context.Background(), o.ID, types.OrderStatusRejected, "venue failure")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != types.OrderStatusRejected {
		t.Errorf("expected rejected, got %s", out.Status)
	}
	if !out.Qty.Equal(dec("4")) || !out.FilledQty.Equal(dec("4")) {
		t.Errorf("qty not adjusted to fills: qty %s filled %s", out.Qty, out.FilledQty)
	}
	if out.Notes == "" {
		t.Error("expected the reason recorded in notes")
	}
	b := getBalance(t, db, "u1")
	if !b.Locked.IsZero() {
		t.Errorf("remainder not released: locked %s", b.Locked)
	}
}

func TestOverrideStatus_TerminalRefused(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	o, _ := svc.Place(context.Background(), marketBuy("5", "100"))
	if _, err := svc.Fill(context.Background(), o.ID, dec("5"), dec("100")); err != nil {
		t.Fatal(err)
	}
	_, err := svc.OverrideStatus(context.Background(), o.ID, types.OrderStatusRejected, "too late")
	if !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestOverrideStatus_OnlyCancelledOrRejected(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.OverrideStatus(context.Background(), "any", types.OrderStatusFilled, "")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSweepTriggers_PromotesOnlyMetConditions(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "10000")
	limitLow := dec("90")
	limitHigh := dec("100")
	buyLow, _ := svc.Place(context.Background(), PlaceRequest{
		UserID: "u1", Symbol: "AAPL", Kind: types.OrderKindLimit,
		Side: types.OrderSideBuy, Qty: dec("1"), LimitPrice: &limitLow,
	})
	buyHigh, _ := svc.Place(context.Background(), PlaceRequest{
		UserID: "u1", Symbol: "AAPL", Kind: types.OrderKindLimit,
		Side: types.OrderSideBuy, Qty: dec("1"), LimitPrice: &limitHigh,
	})
	count, err := svc.SweepTriggers(context.Background(), "AAPL", dec("95"))
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected one trigger, got %d", count)
	}
	low, _ := svc.Get(context.Background(), buyLow.ID)
	if low.Status != types.OrderStatusPending {
		t.Errorf("limit 90 should not trigger at 95, got %s", low.Status)
	}
	high, _ := svc.Get(context.Background(), buyHigh.ID)
	if high.Status != types.OrderStatusWorking {
		t.Errorf("limit 100 should trigger at 95, got %s", high.Status)
	}
}

func TestDelete_PendingReleasesReservation(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	limit := dec("100")
	o, _ := svc.Place(context.Background(), PlaceRequest{
		UserID: "u1", Symbol: "AAPL", Kind: types.OrderKindLimit,
		Side: types.OrderSideBuy, Qty: dec("5"), LimitPrice: &limit,
	})
	if err := svc.Delete(context.Background(), o.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(context.Background(), o.ID); !errors.Is(err, apperr.ErrOrderNotFound) {
		t.Fatalf("expected order gone, got %v", err)
	}
	b := getBalance(t, db, "u1")
	if !b.Available.Equal(dec("1000")) || !b.Locked.IsZero() {
		t.Errorf("reservation not released: %+v", b)
	}
}

func TestDelete_WorkingOrderImmutable(t *testing.T) {
	svc, db := newTestService(t)
	fund(t, db, "u1", "1000")
	o, _ := svc.Place(context.Background(), marketBuy("5", "100"))
	if err := svc.Delete(context.Background(), o.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestTriggerMet_Conditions(t *testing.T) {
	limit := dec("100")
	stop := dec("100")
	cases := []struct {
		name  string
		order model.Order
		price string
		want  bool
	}{
		{"limit buy at or below", model.Order{Kind: types.OrderKindLimit, Side: types.OrderSideBuy, LimitPrice: &limit}, "100", true},
		{"limit buy above", model.Order{Kind: types.OrderKindLimit, Side: types.OrderSideBuy, LimitPrice: &limit}, "101", false},
		{"limit sell at or above", model.Order{Kind: types.OrderKindLimit, Side: types.OrderSideSell, LimitPrice: &limit}, "100", true},
		{"limit sell below", model.Order{Kind: types.OrderKindLimit, Side: types.OrderSideSell, LimitPrice: &limit}, "99", false},
		{"stop buy at or above", model.Order{Kind: types.OrderKindStop, Side: types.OrderSideBuy, StopPrice: &stop}, "100", true},
		{"stop buy below", model.Order{Kind: types.OrderKindStop, Side: types.OrderSideBuy, StopPrice: &stop}, "99", false},
		{"stop sell at or below", model.Order{Kind: types.OrderKindStopLimit, Side: types.OrderSideSell, StopPrice: &stop}, "100", true},
		{"market never triggers", model.Order{Kind: types.OrderKindMarket, Side: types.OrderSideBuy}, "100", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TriggerMet(tc.order, dec(tc.price)); got != tc.want {
				t.Errorf("want %v, got %v", tc.want, got)
			}
		})
	}
}
