package service

import (
	"context"
	"time"

	dErrors "tidemark/pkg/domain-errors"
)

// TxRunner is the transactional boundary for a state write plus its audit
// row. The PostgreSQL implementation wraps both in one database transaction;
// the in-memory implementation is a pass-through because the store's
// compare-and-swap already decides the race before any audit write happens.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const defaultTxTimeout = 5 * time.Second

type passthroughTx struct{}

// NewMemoryTx returns the pass-through runner used with in-memory stores.
func NewMemoryTx() TxRunner {
	return passthroughTx{}
}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}
	return fn(ctx)
}
