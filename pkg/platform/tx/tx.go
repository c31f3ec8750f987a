// Package tx carries a SQL transaction through context so the atomic
// mutation-plus-audit units (taxonomy transitions, channel corrections,
// bootstrap seeding) span multiple stores without the stores knowing about
// each other. Stores resolve their executor from context and fall back to
// their own *sql.DB when no transaction is present.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores the transaction opened by a RunInTx runner.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts the ambient transaction, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}
