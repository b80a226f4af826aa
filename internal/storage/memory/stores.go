package memory

import (
	"context"
	"sort"
	"time"

	"tradecore/internal/apperr"
	"tradecore/internal/model"
	"tradecore/internal/storage"

	"github.com/shopspring/decimal"
)

type positionStore struct {
	tx *tx
}

func (s *positionStore) lookup(key string) (model.Position, bool) {
	if s.tx.posDel[key] {
		return model.Position{}, false
	}
	if p, ok := s.tx.posPut[key]; ok {
		return p, true
	}
	p, ok := s.tx.db.positions[key]
	return p, ok
}

func (s *positionStore) Get(ctx context.Context, userID, symbol string) (model.Position, error) {
	p, ok := s.lookup(posKey(userID, symbol))
	if !ok {
		return model.Position{}, apperr.ErrPositionNotFound
	}
	return clonePosition(p), nil
}

func (s *positionStore) Put(ctx context.Context, p model.Position) error {
	key := posKey(p.UserID, p.Symbol)
	delete(s.tx.posDel, key)
	s.tx.posPut[key] = clonePosition(p)
	return nil
}

func (s *positionStore) Delete(ctx context.Context, userID, symbol string) error {
	key := posKey(userID, symbol)
	if _, ok := s.lookup(key); !ok {
		return apperr.ErrPositionNotFound
	}
	delete(s.tx.posPut, key)
	s.tx.posDel[key] = true
	return nil
}

func (s *positionStore) list(keep func(model.Position) bool) []model.Position {
	var out []model.Position
	seen := make(map[string]bool)
	for key, p := range s.tx.posPut {
		seen[key] = true
		if keep(p) {
			out = append(out, clonePosition(p))
		}
	}
	for key, p := range s.tx.db.positions {
		if seen[key] || s.tx.posDel[key] {
			continue
		}
		if keep(p) {
			out = append(out, clonePosition(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func (s *positionStore) ListByUser(ctx context.Context, userID string) ([]model.Position, error) {
	return s.list(func(p model.Position) bool { return p.UserID == userID }), nil
}

func (s *positionStore) ListBySymbol(ctx context.Context, symbol string) ([]model.Position, error) {
	return s.list(func(p model.Position) bool { return p.Symbol == symbol }), nil
}

type balanceStore struct {
	tx *tx
}

func (s *balanceStore) lookup(userID string) (model.AccountBalance, bool) {
	if b, ok := s.tx.balPut[userID]; ok {
		return b, true
	}
	b, ok := s.tx.db.balances[userID]
	return b, ok
}

func (s *balanceStore) Ensure(ctx context.Context, userID, currency string) (model.AccountBalance, error) {
	if b, ok := s.lookup(userID); ok {
		return b, nil
	}
	now := time.Now().UTC()
	b := model.AccountBalance{
		UserID:         userID,
		Currency:       currency,
		Available:      decimal.Zero,
		Locked:         decimal.Zero,
		Total:          decimal.Zero,
		TotalDeposited: decimal.Zero,
		TotalWithdrawn: decimal.Zero,
		TotalInvested:  decimal.Zero,
		RealizedPnL:    decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.tx.balPut[userID] = b
	return b, nil
}

func (s *balanceStore) Get(ctx context.Context, userID string) (model.AccountBalance, error) {
	b, ok := s.lookup(userID)
	if !ok {
		return model.AccountBalance{}, apperr.ErrNotFound
	}
	return b, nil
}

func (s *balanceStore) Put(ctx context.Context, b model.AccountBalance) error {
	s.tx.balPut[b.UserID] = b
	return nil
}

type cashTxStore struct {
	tx *tx
}

func (s *cashTxStore) lookup(id string) (model.CashTransaction, bool) {
	if t, ok := s.tx.cashPut[id]; ok {
		return t, true
	}
	t, ok := s.tx.db.cashTxs[id]
	return t, ok
}

func (s *cashTxStore) Create(ctx context.Context, t model.CashTransaction) error {
	if _, ok := s.lookup(t.ID); ok {
		return apperr.Invariantf("cash transaction %s already exists", t.ID)
	}
	s.tx.cashPut[t.ID] = cloneCashTx(t)
	return nil
}

func (s *cashTxStore) Get(ctx context.Context, id string) (model.CashTransaction, error) {
	t, ok := s.lookup(id)
	if !ok {
		return model.CashTransaction{}, apperr.ErrNotFound
	}
	return cloneCashTx(t), nil
}

func (s *cashTxStore) Update(ctx context.Context, t model.CashTransaction) error {
	if _, ok := s.lookup(t.ID); !ok {
		return apperr.ErrNotFound
	}
	s.tx.cashPut[t.ID] = cloneCashTx(t)
	return nil
}

func (s *cashTxStore) List(ctx context.Context, f storage.CashTxFilter) ([]model.CashTransaction, error) {
	var out []model.CashTransaction
	seen := make(map[string]bool)
	keep := func(t model.CashTransaction) bool {
		if f.UserID != "" && t.UserID != f.UserID {
			return false
		}
		if f.Kind != "" && t.Kind != f.Kind {
			return false
		}
		if f.Status != "" && t.Status != f.Status {
			return false
		}
		return true
	}
	for id, t := range s.tx.cashPut {
		seen[id] = true
		if keep(t) {
			out = append(out, cloneCashTx(t))
		}
	}
	for id, t := range s.tx.db.cashTxs {
		if seen[id] {
			continue
		}
		if keep(t) {
			out = append(out, cloneCashTx(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type auditStore struct {
	tx *tx
}

func (s *auditStore) Append(ctx context.Context, e model.AuditLogEntry) error {
	s.tx.auditAdd = append(s.tx.auditAdd, cloneAudit(e))
	return nil
}

func (s *auditStore) List(ctx context.Context, f storage.AuditFilter) ([]model.AuditLogEntry, error) {
	keep := func(e model.AuditLogEntry) bool {
		if f.AdminID != "" && e.AdminID != f.AdminID {
			return false
		}
		if f.Action != "" && e.Action != f.Action {
			return false
		}
		if f.From != nil && e.CreatedAt.Before(*f.From) {
			return false
		}
		if f.To != nil && e.CreatedAt.After(*f.To) {
			return false
		}
		return true
	}
	var out []model.AuditLogEntry
	for _, e := range s.tx.db.audit {
		if keep(e) {
			out = append(out, cloneAudit(e))
		}
	}
	for _, e := range s.tx.auditAdd {
		if keep(e) {
			out = append(out, cloneAudit(e))
		}
	}
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
