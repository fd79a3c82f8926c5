package bulkdb

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgx that both *pgxpool.Pool and pgx.Tx satisfy.
// Core packages take a DB so they run the same inside or outside a transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner starts a transaction. pgx.Tx also satisfies it, in which case
// Begin opens a savepoint.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ErrRollback aborts an Atomic block without being treated as a failure by
// callers that choose to swallow it.
var ErrRollback = errors.New("bulkdb: rollback requested")

// Atomic runs fn inside a transaction (or a savepoint when db is already a
// transaction) and commits unless fn errors. onRollback hooks run after a
// rollback caused by ErrRollback.
func Atomic(ctx context.Context, db Beginner, fn func(tx pgx.Tx) error, onRollback ...func()) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, ErrRollback) {
			for _, hook := range onRollback {
				hook()
			}
		}
		return err
	}
	return tx.Commit(ctx)
}
