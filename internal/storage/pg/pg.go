// Package pg implements the record store on PostgreSQL. Multi-entity
// mutations run inside one serializable transaction so a failed operation
// commits nothing.
package pg

import (
	"context"
	_ "embed"

	"tradecore/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

type DB struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{pool: pool}, nil
}

// EnsureSchema creates the engine's tables when they do not exist yet.
func (d *DB) EnsureSchema(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, schema)
	return err
}

func (d *DB) Close() {
	d.pool.Close()
}

// Ping reports whether the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *DB) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Orders() storage.OrderStore       { return &orderStore{t.tx} }
func (t *pgTx) Positions() storage.PositionStore { return &positionStore{t.tx} }
func (t *pgTx) Balances() storage.BalanceStore   { return &balanceStore{t.tx} }
func (t *pgTx) CashTxs() storage.CashTxStore     { return &cashTxStore{t.tx} }
func (t *pgTx) Audit() storage.AuditStore        { return &auditStore{t.tx} }
