package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradecore/internal/apperr"
	"tradecore/internal/model"
	"tradecore/internal/storage"
	"tradecore/internal/types"

	"github.com/jackc/pgx/v5"
)

const positionColumns = "user_id, symbol, asset_class, side, qty, avg_entry_price, total_cost, mark_price, opened_at, updated_at"

type positionStore struct {
	tx pgx.Tx
}

func scanPosition(row pgx.Row) (model.Position, error) {
	var p model.Position
	var assetClass, side string
	err := row.Scan(&p.UserID, &p.Symbol, &assetClass, &side, &p.Qty, &p.AvgEntryPrice, &p.TotalCost, &p.MarkPrice, &p.OpenedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.AssetClass = types.AssetClass(assetClass)
	p.Side = types.PositionSide(side)
	return p, nil
}

func (s *positionStore) Get(ctx context.Context, userID, symbol string) (model.Position, error) {
	p, err := scanPosition(s.tx.QueryRow(ctx, "select "+positionColumns+" from positions where user_id = $1 and symbol = $2 for update", userID, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Position{}, apperr.ErrPositionNotFound
	}
	return p, err
}

func (s *positionStore) Put(ctx context.Context, p model.Position) error {
	_, err := s.tx.Exec(ctx, `
		insert into positions (`+positionColumns+`) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		on conflict (user_id, symbol) do update set
			asset_class = excluded.asset_class,
			side = excluded.side,
			qty = excluded.qty,
			avg_entry_price = excluded.avg_entry_price,
			total_cost = excluded.total_cost,
			mark_price = excluded.mark_price,
			updated_at = excluded.updated_at`,
		p.UserID, p.Symbol, string(p.AssetClass), string(p.Side), p.Qty, p.AvgEntryPrice, p.TotalCost, p.MarkPrice, p.OpenedAt, time.Now().UTC())
	return err
}

func (s *positionStore) Delete(ctx context.Context, userID, symbol string) error {
	tag, err := s.tx.Exec(ctx, "delete from positions where user_id = $1 and symbol = $2", userID, symbol)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrPositionNotFound
	}
	return nil
}

func (s *positionStore) listQuery(ctx context.Context, q string, args ...any) ([]model.Position, error) {
	rows, err := s.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *positionStore) ListByUser(ctx context.Context, userID string) ([]model.Position, error) {
	return s.listQuery(ctx, "select "+positionColumns+" from positions where user_id = $1 order by symbol asc", userID)
}

func (s *positionStore) ListBySymbol(ctx context.Context, symbol string) ([]model.Position, error) {
	return s.listQuery(ctx, "select "+positionColumns+" from positions where symbol = $1 order by user_id asc for update", symbol)
}

const balanceColumns = "user_id, currency, available, locked, total, total_deposited, total_withdrawn, total_invested, realized_pnl, created_at, updated_at"

type balanceStore struct {
	tx pgx.Tx
}

func scanBalance(row pgx.Row) (model.AccountBalance, error) {
	var b model.AccountBalance
	err := row.Scan(&b.UserID, &b.Currency, &b.Available, &b.Locked, &b.Total, &b.TotalDeposited, &b.TotalWithdrawn, &b.TotalInvested, &b.RealizedPnL, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (s *balanceStore) Ensure(ctx context.Context, userID, currency string) (model.AccountBalance, error) {
	b, err := scanBalance(s.tx.QueryRow(ctx, "select "+balanceColumns+" from account_balances where user_id = $1 for update", userID))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return b, err
	}
	now := time.Now().UTC()
	_, err = s.tx.Exec(ctx, "insert into account_balances (user_id, currency, created_at, updated_at) values ($1, $2, $3, $4)", userID, currency, now, now)
	if err != nil {
		return model.AccountBalance{}, err
	}
	return scanBalance(s.tx.QueryRow(ctx, "select "+balanceColumns+" from account_balances where user_id = $1 for update", userID))
}

func (s *balanceStore) Get(ctx context.Context, userID string) (model.AccountBalance, error) {
	b, err := scanBalance(s.tx.QueryRow(ctx, "select "+balanceColumns+" from account_balances where user_id = $1 for update", userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AccountBalance{}, apperr.ErrNotFound
	}
	return b, err
}

func (s *balanceStore) Put(ctx context.Context, b model.AccountBalance) error {
	tag, err := s.tx.Exec(ctx,
		"update account_balances set available = $1, locked = $2, total = $3, total_deposited = $4, total_withdrawn = $5, total_invested = $6, realized_pnl = $7, updated_at = $8 where user_id = $9",
		b.Available, b.Locked, b.Total, b.TotalDeposited, b.TotalWithdrawn, b.TotalInvested, b.RealizedPnL, time.Now().UTC(), b.UserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

const cashTxColumns = "id, user_id, kind, amount, currency, status, reason, created_at, decided_at"

type cashTxStore struct {
	tx pgx.Tx
}

func scanCashTx(row pgx.Row) (model.CashTransaction, error) {
	var t model.CashTransaction
	var kind, status string
	err := row.Scan(&t.ID, &t.UserID, &kind, &t.Amount, &t.Currency, &status, &t.Reason, &t.CreatedAt, &t.DecidedAt)
	if err != nil {
		return t, err
	}
	t.Kind = types.CashTxKind(kind)
	t.Status = types.CashTxStatus(status)
	return t, nil
}

func (s *cashTxStore) Create(ctx context.Context, t model.CashTransaction) error {
	_, err := s.tx.Exec(ctx,
		"insert into cash_transactions ("+cashTxColumns+") values ($1,$2,$3,$4,$5,$6,$7,$8,$9)",
		t.ID, t.UserID, string(t.Kind), t.Amount, t.Currency, string(t.Status), t.Reason, t.CreatedAt, t.DecidedAt)
	return err
}

func (s *cashTxStore) Get(ctx context.Context, id string) (model.CashTransaction, error) {
	t, err := scanCashTx(s.tx.QueryRow(ctx, "select "+cashTxColumns+" from cash_transactions where id = $1 for update", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CashTransaction{}, apperr.ErrNotFound
	}
	return t, err
}

func (s *cashTxStore) Update(ctx context.Context, t model.CashTransaction) error {
	tag, err := s.tx.Exec(ctx,
		"update cash_transactions set status = $1, reason = $2, decided_at = $3 where id = $4",
		string(t.Status), t.Reason, t.DecidedAt, t.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *cashTxStore) List(ctx context.Context, f storage.CashTxFilter) ([]model.CashTransaction, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	q := "select " + cashTxColumns + " from cash_transactions"
	if len(conds) > 0 {
		q += " where " + strings.Join(conds, " and ")
	}
	q += " order by created_at desc, id asc"
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
	var out []model.CashTransaction
	for rows.Next() {
		t, err := scanCashTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type auditStore struct {
	tx pgx.Tx
}

func (s *auditStore) Append(ctx context.Context, e model.AuditLogEntry) error {
	var meta []byte
	if e.Metadata != nil {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
	}
	_, err := s.tx.Exec(ctx,
		"insert into audit_log (id, admin_id, action, target_user_id, target_id, description, metadata, actor_ip, created_at) values ($1,$2,$3,$4,$5,$6,$7,$8,$9)",
		e.ID, e.AdminID, string(e.Action), e.TargetUserID, e.TargetID, e.Description, meta, e.ActorIP, e.CreatedAt)
	return err
}

func (s *auditStore) List(ctx context.Context, f storage.AuditFilter) ([]model.AuditLogEntry, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.AdminID != "" {
		add("admin_id = $%d", f.AdminID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	q := "select id, admin_id, action, target_user_id, target_id, description, metadata, actor_ip, created_at from audit_log"
	if len(conds) > 0 {
		q += " where " + strings.Join(conds, " and ")
	}
	q += " order by created_at desc, id asc"
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
	var out []model.AuditLogEntry
	for rows.Next() {
		var e model.AuditLogEntry
		var action string
		var meta []byte
		if err := rows.Scan(&e.ID, &e.AdminID, &action, &e.TargetUserID, &e.TargetID, &e.Description, &meta, &e.ActorIP, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = types.AuditAction(action)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
