// Package memory is a mutex-guarded in-memory implementation of the record
// store. Writes inside a transaction are buffered and applied on commit, so
// a failed operation leaves nothing behind. It backs the test suite and the
// standalone mode when no database is configured.
package memory

import (
	"context"
	"sync"

	"tradecore/internal/model"
	"tradecore/internal/storage"
)

type DB struct {
	mu        sync.Mutex
	orders    map[string]model.Order
	positions map[string]model.Position
	balances  map[string]model.AccountBalance
	cashTxs   map[string]model.CashTransaction
	audit     []model.AuditLogEntry
}

func New() *DB {
	return &DB{
		orders:    make(map[string]model.Order),
		positions: make(map[string]model.Position),
		balances:  make(map[string]model.AccountBalance),
		cashTxs:   make(map[string]model.CashTransaction),
	}
}

func (d *DB) Close() {}

func (d *DB) Ping(ctx context.Context) error { return ctx.Err() }

func (d *DB) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t := newTx(d)
	if err := fn(t); err != nil {
		return err
	}
	t.apply()
	return nil
}

func posKey(userID, symbol string) string {
	return userID + "|" + symbol
}

type tx struct {
	db *DB

	orderPut map[string]model.Order
	orderDel map[string]bool
	posPut   map[string]model.Position
	posDel   map[string]bool
	balPut   map[string]model.AccountBalance
	cashPut  map[string]model.CashTransaction
	auditAdd []model.AuditLogEntry
}

func newTx(d *DB) *tx {
	return &tx{
		db:       d,
		orderPut: make(map[string]model.Order),
		orderDel: make(map[string]bool),
		posPut:   make(map[string]model.Position),
		posDel:   make(map[string]bool),
		balPut:   make(map[string]model.AccountBalance),
		cashPut:  make(map[string]model.CashTransaction),
	}
}

func (t *tx) apply() {
	for id, o := range t.orderPut {
		t.db.orders[id] = o
	}
	for id := range t.orderDel {
		delete(t.db.orders, id)
	}
	for k, p := range t.posPut {
		t.db.positions[k] = p
	}
	for k := range t.posDel {
		delete(t.db.positions, k)
	}
	for id, b := range t.balPut {
		t.db.balances[id] = b
	}
	for id, c := range t.cashPut {
		t.db.cashTxs[id] = c
	}
	t.db.audit = append(t.db.audit, t.auditAdd...)
}

func (t *tx) Orders() storage.OrderStore       { return &orderStore{t} }
func (t *tx) Positions() storage.PositionStore { return &positionStore{t} }
func (t *tx) Balances() storage.BalanceStore   { return &balanceStore{t} }
func (t *tx) CashTxs() storage.CashTxStore     { return &cashTxStore{t} }
func (t *tx) Audit() storage.AuditStore        { return &auditStore{t} }

func cloneOrder(o model.Order) model.Order {
	if o.LimitPrice != nil {
		p := *o.LimitPrice
		o.LimitPrice = &p
	}
	if o.StopPrice != nil {
		p := *o.StopPrice
		o.StopPrice = &p
	}
	return o
}

func clonePosition(p model.Position) model.Position {
	if p.MarkPrice != nil {
		m := *p.MarkPrice
		p.MarkPrice = &m
	}
	return p
}

func cloneAudit(e model.AuditLogEntry) model.AuditLogEntry {
	if e.Metadata != nil {
		m := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			m[k] = v
		}
		e.Metadata = m
	}
	return e
}

func cloneCashTx(t model.CashTransaction) model.CashTransaction {
	if t.DecidedAt != nil {
		d := *t.DecidedAt
		t.DecidedAt = &d
	}
	return t
}
