package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type txKey struct{}

func injectTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func extractTx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

type dbExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *PostgresStore) executor(ctx context.Context) dbExecutor {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return p.pool
}

// RunInTx runs fn in a transaction carried by ctx. Nested calls join the outer one.
func (p *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if extractTx(ctx) != nil {
		return fn(ctx)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cerr)
		}
	}()

	return fn(injectTx(ctx, tx))
}

// lockCluster serialises resolves and corrections touching one cache cluster until
// the surrounding transaction ends.
func (p *PostgresStore) lockCluster(ctx context.Context, cacheID string) error {
	_, err := p.executor(ctx).Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", cacheID)
	if err != nil {
		return fmt.Errorf("failed to lock cluster %s: %w", cacheID, err)
	}
	return nil
}
