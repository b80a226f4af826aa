package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradecore/internal/apperr"
	"tradecore/internal/model"
	"tradecore/internal/storage"
	"tradecore/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = "id, user_id, symbol, asset_class, kind, side, qty, limit_price, stop_price, ref_price, time_in_force, status, filled_qty, avg_fill_price, notes, created_at, updated_at"

type orderStore struct {
	tx pgx.Tx
}

func (s *orderStore) Create(ctx context.Context, o model.Order) error {
	_, err := s.tx.Exec(ctx,
		"insert into orders ("+orderColumns+") values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)",
		o.ID, o.UserID, o.Symbol, string(o.AssetClass), string(o.Kind), string(o.Side), o.Qty, o.LimitPrice, o.StopPrice,
		o.RefPrice, string(o.TimeInForce), string(o.Status), o.FilledQty, o.AvgFillPrice, o.Notes, o.CreatedAt, o.UpdatedAt)
	return err
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var assetClass, kind, side, tif, status string
	err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &assetClass, &kind, &side, &o.Qty, &o.LimitPrice, &o.StopPrice,
		&o.RefPrice, &tif, &status, &o.FilledQty, &o.AvgFillPrice, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.AssetClass = types.AssetClass(assetClass)
	o.Kind = types.OrderKind(kind)
	o.Side = types.OrderSide(side)
	o.TimeInForce = types.TimeInForce(tif)
	o.Status = types.OrderStatus(status)
	return o, nil
}

func (s *orderStore) Get(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(s.tx.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1 for update", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, apperr.ErrOrderNotFound
	}
	return o, err
}

func (s *orderStore) Update(ctx context.Context, o model.Order) error {
	tag, err := s.tx.Exec(ctx,
		"update orders set qty = $1, limit_price = $2, stop_price = $3, ref_price = $4, status = $5, filled_qty = $6, avg_fill_price = $7, notes = $8, updated_at = $9 where id = $10",
		o.Qty, o.LimitPrice, o.StopPrice, o.RefPrice, string(o.Status), o.FilledQty, o.AvgFillPrice, o.Notes, time.Now().UTC(), o.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrOrderNotFound
	}
	return nil
}

func (s *orderStore) Delete(ctx context.Context, id string) error {
	tag, err := s.tx.Exec(ctx, "delete from orders where id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrOrderNotFound
	}
	return nil
}

func orderWhere(f storage.OrderFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		add("status = any($%d)", statuses)
	}
	if f.Side != "" {
		add("side = $%d", string(f.Side))
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.AssetClass != "" {
		add("asset_class = $%d", string(f.AssetClass))
	}
	if f.Symbol != "" {
		add("symbol = $%d", f.Symbol)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " where " + strings.Join(conds, " and "), args
}

func (s *orderStore) List(ctx context.Context, f storage.OrderFilter) ([]model.Order, error) {
	where, args := orderWhere(f)
	q := "select " + orderColumns + " from orders" + where + " order by created_at desc, id asc"
	if f.Limit > 0 {
		q += fmt.Sprintf(" limit %d", f.Limit)
	}
	if f.Offset > 0 {
		q += fmt.Sprintf(" offset %d", f.Offset)
	}
	rows, err := s.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *orderStore) Stats(ctx context.Context, f storage.OrderFilter) (storage.OrderStats, error) {
	stats := storage.OrderStats{
		CountByStatus:  make(map[types.OrderStatus]int),
		TotalFilledQty: decimal.Zero,
		TotalNotional:  decimal.Zero,
	}
	where, args := orderWhere(f)
	rows, err := s.tx.Query(ctx,
		"select status, count(*), coalesce(sum(filled_qty), 0), coalesce(sum(filled_qty * avg_fill_price), 0) from orders"+where+" group by status", args...)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		var filled, notional decimal.Decimal
		if err := rows.Scan(&status, &count, &filled, &notional); err != nil {
			return stats, err
		}
		stats.CountByStatus[types.OrderStatus(status)] = count
		stats.TotalOrders += count
		stats.TotalFilledQty = stats.TotalFilledQty.Add(filled)
		stats.TotalNotional = stats.TotalNotional.Add(notional)
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	symRows, err := s.tx.Query(ctx,
		"select symbol, count(*), coalesce(sum(filled_qty), 0), coalesce(sum(filled_qty * avg_fill_price), 0) as notional from orders"+where+" group by symbol order by notional desc limit 10", args...)
	if err != nil {
		return stats, err
	}
	defer symRows.Close()
	for symRows.Next() {
		var sv storage.SymbolVolume
		if err := symRows.Scan(&sv.Symbol, &sv.Orders, &sv.Volume, &sv.Notional); err != nil {
			return stats, err
		}
		stats.TopSymbols = append(stats.TopSymbols, sv)
	}
	if err := symRows.Err(); err != nil {
		return stats, err
	}

	userRows, err := s.tx.Query(ctx,
		"select user_id, count(*), coalesce(sum(filled_qty * avg_fill_price), 0) as notional from orders"+where+" group by user_id order by notional desc limit 10", args...)
	if err != nil {
		return stats, err
	}
	defer userRows.Close()
	for userRows.Next() {
		var uv storage.UserVolume
		if err := userRows.Scan(&uv.UserID, &uv.Orders, &uv.Notional); err != nil {
			return stats, err
		}
		stats.TopUsers = append(stats.TopUsers, uv)
	}
	return stats, userRows.Err()
}
