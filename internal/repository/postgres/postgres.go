package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgExecutor is the subset of pgx behaviour the repositories need. Both
// pgxpool.Pool and pgx.Tx satisfy it, which keeps the repositories mockable.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgBeginner additionally starts transactions; the registry needs it for the
// atomic admission unit.
type pgBeginner interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}
