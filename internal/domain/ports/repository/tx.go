package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// TransactionManager runs a function inside a database transaction, passing
// the underlying handle via `tx`.
//
// Repositories accept `tx Tx` on every method and MUST gracefully accept nil
// (non-transactional path). The concrete type is infra-defined (pgx.Tx for
// Postgres). Keeping the handle opaque means no transaction types leak into
// use-case interfaces, and the same repositories serve both the router's
// single-statement writes and the multi-entity commits at stage boundaries.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
