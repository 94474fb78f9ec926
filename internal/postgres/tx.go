package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txKey struct{}

// TxRunner runs a function inside one pgx transaction. The open transaction
// is carried in the context, so persistence code reached through the
// function picks it up with DB and joins the same transaction.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner builds a runner over the pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx begins a transaction, runs fn with the transaction in the context,
// and commits. Any error from fn rolls everything back.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// DB returns the transaction carried by ctx, or fallback when the context
// holds none. Code that may run either inside or outside a transaction
// resolves its handle through this.
func DB(ctx context.Context, fallback DBTX) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return fallback
}
