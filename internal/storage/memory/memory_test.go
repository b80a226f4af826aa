package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradecore/internal/apperr"
	"tradecore/internal/model"
	"tradecore/internal/storage"
	"tradecore/internal/types"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testOrder(id, userID, symbol string, createdAt time.Time) model.Order {
	return model.Order{
		ID:           id,
		UserID:       userID,
		Symbol:       symbol,
		AssetClass:   types.AssetClassStock,
		Kind:         types.OrderKindLimit,
		Side:         types.OrderSideBuy,
		Qty:          dec("1"),
		RefPrice:     dec("100"),
		TimeInForce:  types.TimeInForceGTC,
		Status:       types.OrderStatusPending,
		FilledQty:    decimal.Zero,
		AvgFillPrice: decimal.Zero,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func mustPutOrder(t *testing.T, db *DB, o model.Order) {
	t.Helper()
	err := db.WithinTx(context.Background(), func(tx storage.Tx) error {
		return tx.Orders().Create(context.Background(), o)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWithinTx_ErrorDiscardsStagedWrites(t *testing.T) {
	db := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.Orders().Create(ctx, testOrder("o1", "u1", "AAPL", time.Now())); err != nil {
			return err
		}
		if _, err := tx.Balances().Ensure(ctx, "u1", "USD"); err != nil {
			return err
		}
		if err := tx.Audit().Append(ctx, model.AuditLogEntry{ID: "a1", AdminID: "adm"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = db.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.Orders().Get(ctx, "o1"); !errors.Is(err, apperr.ErrOrderNotFound) {
			t.Errorf("order survived a failed tx: %v", err)
		}
		if _, err := tx.Balances().Get(ctx, "u1"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("balance survived a failed tx: %v", err)
		}
		entries, err := tx.Audit().List(ctx, storage.AuditFilter{})
		if err != nil {
			return err
		}
		if len(entries) != 0 {
			t.Errorf("audit entries survived a failed tx: %d", len(entries))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTx_ReadsOwnWrites(t *testing.T) {
	db := New()
	ctx := context.Background()
	err := db.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.Orders().Create(ctx, testOrder("o1", "u1", "AAPL", time.Now())); err != nil {
			return err
		}
		o, err := tx.Orders().Get(ctx, "o1")
		if err != nil {
			return err
		}
		o.Status = types.OrderStatusWorking
		if err := tx.Orders().Update(ctx, o); err != nil {
			return err
		}
		got, err := tx.Orders().Get(ctx, "o1")
		if err != nil {
			return err
		}
		if got.Status != types.OrderStatusWorking {
			t.Errorf("update not visible inside tx: %s", got.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestOrderCreate_DuplicateID(t *testing.T) {
	db := New()
	ctx := context.Background()
	mustPutOrder(t, db, testOrder("o1", "u1", "AAPL", time.Now()))
	err := db.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.Orders().Create(ctx, testOrder("o1", "u2", "MSFT", time.Now()))
	})
	if !errors.Is(err, apperr.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestOrderDelete_HidesWithinTxAndAfter(t *testing.T) {
	db := New()
	ctx := context.Background()
	mustPutOrder(t, db, testOrder("o1", "u1", "AAPL", time.Now()))
	err := db.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.Orders().Delete(ctx, "o1"); err != nil {
			return err
		}
		if _, err := tx.Orders().Get(ctx, "o1"); !errors.Is(err, apperr.ErrOrderNotFound) {
			t.Errorf("deleted order still visible inside tx: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	err = db.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.Orders().Get(ctx, "o1")
		return err
	})
	if !errors.Is(err, apperr.ErrOrderNotFound) {
		t.Fatalf("deleted order still visible after commit: %v", err)
	}
}

func TestOrderList_NewestFirstWithPaging(t *testing.T) {
	db := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mustPutOrder(t, db, testOrder("o1", "u1", "AAPL", base))
	mustPutOrder(t, db, testOrder("o2", "u1", "AAPL", base.Add(time.Minute)))
	mustPutOrder(t, db, testOrder("o3", "u1", "MSFT", base.Add(2*time.Minute)))
	mustPutOrder(t, db, testOrder("o4", "u2", "AAPL", base.Add(3*time.Minute)))

	err := db.WithinTx(ctx, func(tx storage.Tx) error {
		list, err := tx.Orders().List(ctx, storage.OrderFilter{UserID: "u1"})
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(list))
		for _, o := range list {
			ids = append(ids, o.ID)
		}
		want := []string{"o3", "o2", "o1"}
		if len(ids) != len(want) {
			t.Fatalf("expected %v, got %v", want, ids)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, ids)
			}
		}

		page, err := tx.Orders().List(ctx, storage.OrderFilter{UserID: "u1", Limit: 1, Offset: 1})
		if err != nil {
			return err
		}
		if len(page) != 1 || page[0].ID != "o2" {
			t.Errorf("paging wrong: %+v", page)
		}

		none, err := tx.Orders().List(ctx, storage.OrderFilter{UserID: "u1", Offset: 10})
		if err != nil {
			return err
		}
		if len(none) != 0 {
			t.Errorf("offset past end should be empty, got %d", len(none))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestOrderStats_AggregatesFilledNotional(t *testing.T) {
	db := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := testOrder("o1", "u1", "AAPL", base)
	a.Status = types.OrderStatusFilled
	a.FilledQty = dec("10")
	a.AvgFillPrice = dec("100")
	b := testOrder("o2", "u2", "MSFT", base)
	b.Status = types.OrderStatusFilled
	b.FilledQty = dec("2")
	b.AvgFillPrice = dec("300")
	c := testOrder("o3", "u1", "AAPL", base)
	mustPutOrder(t, db, a)
	mustPutOrder(t, db, b)
	mustPutOrder(t, db, c)

	err := db.WithinTx(ctx, func(tx storage.Tx) error {
		stats, err := tx.Orders().Stats(ctx, storage.OrderFilter{})
		if err != nil {
			return err
		}
		if stats.TotalOrders != 3 {
			t.Errorf("total orders: %d", stats.TotalOrders)
		}
		if stats.CountByStatus[types.OrderStatusFilled] != 2 || stats.CountByStatus[types.OrderStatusPending] != 1 {
			t.Errorf("count by status: %v", stats.CountByStatus)
		}
		if !stats.TotalNotional.Equal(dec("1600")) {
			t.Errorf("total notional: %s", stats.TotalNotional)
		}
		if len(stats.TopSymbols) != 2 || stats.TopSymbols[0].Symbol != "AAPL" {
			t.Errorf("top symbols: %+v", stats.TopSymbols)
		}
		if len(stats.TopUsers) != 2 || stats.TopUsers[0].UserID != "u1" {
			t.Errorf("top users: %+v", stats.TopUsers)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCloneIsolation(t *testing.T) {
	db := New()
	ctx := context.Background()
	limit := dec("100")
	o := testOrder("o1", "u1", "AAPL", time.Now())
	o.LimitPrice = &limit
	mustPutOrder(t, db, o)

	err := db.WithinTx(ctx, func(tx storage.Tx) error {
		got, err := tx.Orders().Get(ctx, "o1")
		if err != nil {
			return err
		}
		*got.LimitPrice = dec("999")
		again, err := tx.Orders().Get(ctx, "o1")
		if err != nil {
			return err
		}
		if !again.LimitPrice.Equal(dec("100")) {
			t.Errorf("stored order aliased by caller mutation: %s", again.LimitPrice)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPositions_PutDeleteList(t *testing.T) {
	db := New()
	ctx := context.Background()
	err := db.WithinTx(ctx, func(tx storage.Tx) error {
		for _, p := range []model.Position{
			{UserID: "u1", Symbol: "AAPL", Side: types.PositionSideLong, Qty: dec("10")},
			{UserID: "u1", Symbol: "MSFT", Side: types.PositionSideLong, Qty: dec("5")},
			{UserID: "u2", Symbol: "AAPL", Side: types.PositionSideShort, Qty: dec("3")},
		} {
			if err := tx.Positions().Put(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.WithinTx(ctx, func(tx storage.Tx) error {
		bySymbol, err := tx.Positions().ListBySymbol(ctx, "AAPL")
		if err != nil {
			return err
		}
		if len(bySymbol) != 2 {
			t.Errorf("expected 2 AAPL positions, got %d", len(bySymbol))
		}
		if err := tx.Positions().Delete(ctx, "u1", "AAPL"); err != nil {
			return err
		}
		byUser, err := tx.Positions().ListByUser(ctx, "u1")
		if err != nil {
			return err
		}
		if len(byUser) != 1 || byUser[0].Symbol != "MSFT" {
			t.Errorf("delete not reflected in list: %+v", byUser)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.Positions().Delete(ctx, "u1", "AAPL")
	})
	if !errors.Is(err, apperr.ErrPositionNotFound) {
		t.Fatalf("expected position not found, got %v", err)
	}
}

func TestBalances_EnsureIsIdempotent(t *testing.T) {
	db := New()
	ctx := context.Background()
	err := db.WithinTx(ctx, func(tx storage.Tx) error {
		b, err := tx.Balances().Ensure(ctx, "u1", "USD")
		if err != nil {
			return err
		}
		b.Available = dec("50")
		b.Total = dec("50")
		if err := tx.Balances().Put(ctx, b); err != nil {
			return err
		}
		again, err := tx.Balances().Ensure(ctx, "u1", "USD")
		if err != nil {
			return err
		}
		if !again.Available.Equal(dec("50")) {
			t.Errorf("ensure reset an existing balance: %s", again.Available)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAuditList_FiltersAndNewestFirst(t *testing.T) {
	db := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := db.WithinTx(ctx, func(tx storage.Tx) error {
		for i, e := range []model.AuditLogEntry{
			{ID: "a1", AdminID: "adm1", Action: types.AuditActionBulkCancel},
			{ID: "a2", AdminID: "adm2", Action: types.AuditActionStatusOverride},
			{ID: "a3", AdminID: "adm1", Action: types.AuditActionStatusOverride},
		} {
			e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			if err := tx.Audit().Append(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.WithinTx(ctx, func(tx storage.Tx) error {
		all, err := tx.Audit().List(ctx, storage.AuditFilter{})
		if err != nil {
			return err
		}
		if len(all) != 3 || all[0].ID != "a3" {
			t.Errorf("expected newest first, got %+v", all)
		}
		byAdmin, err := tx.Audit().List(ctx, storage.AuditFilter{AdminID: "adm1"})
		if err != nil {
			return err
		}
		if len(byAdmin) != 2 {
			t.Errorf("admin filter: %d", len(byAdmin))
		}
		from := base.Add(90 * time.Second)
		recent, err := tx.Audit().List(ctx, storage.AuditFilter{From: &from})
		if err != nil {
			return err
		}
		if len(recent) != 1 || recent[0].ID != "a3" {
			t.Errorf("time filter: %+v", recent)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
