package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres SQLSTATE codes the engine reacts to.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgCheckViolation       = "23514"
	pgQueryCanceled        = "57014"
)

// TxRunner opens READ COMMITTED transactions with a bounded lock wait.
type TxRunner struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewTxRunner(pool *pgxpool.Pool, lockTimeout time.Duration) *TxRunner {
	return &TxRunner{pool: pool, lockTimeout: lockTimeout}
}

// Pool returns the underlying connection pool for read-only queries.
func (r *TxRunner) Pool() *pgxpool.Pool { return r.pool }

// InTx runs fn inside one transaction. The transaction is committed only when fn
// returns nil. Returned errors are classified with ClassifyError.
func (r *TxRunner) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return ClassifyError(err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return ClassifyError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if r.lockTimeout > 0 {
		// SET does not accept bind parameters; the value is an integer we format ourselves.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return ClassifyError(fmt.Errorf("failed to set lock timeout: %w", err))
		}
	}

	if err := fn(tx); err != nil {
		return ClassifyError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ClassifyError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// ClassifyError maps store-level failures onto the engine's error taxonomy while
// keeping the original error in the chain. Errors that already carry a domain
// sentinel are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrBusy) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
		case pgLockNotAvailable, pgQueryCanceled:
			return fmt.Errorf("%w: %w", ErrBusy, err)
		case pgCheckViolation:
			if !errors.Is(err, ErrInsufficientStock) {
				return fmt.Errorf("%w: %w", ErrInsufficientStock, err)
			}
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return err
}

// RetryOnConflict calls fn until it succeeds, fails with anything other than
// ErrConcurrencyConflict, or attempts are exhausted. fn must open its own
// transaction so each attempt starts from fresh reads.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		if i == attempts-1 {
			break
		}
		backoff := time.Duration(i+1) * 25 * time.Millisecond
		select {
		case <-ctx.Done():
			return ClassifyError(ctx.Err())
		case <-time.After(backoff):
		}
	}
	return err
}
