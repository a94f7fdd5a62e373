package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// NoTX marks the non-transactional path; repositories accept it anywhere
// a Tx is expected and fall back to the pool.
var NoTX Tx

// TransactionManager executes a function inside a database transaction,
// passing the transaction handle through the Tx argument so use-case
// interfaces stay free of driver types. The concrete type of the handle is
// infra-defined (pgx.Tx for Postgres); repositories must gracefully accept
// a nil handle and run against the pool.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
