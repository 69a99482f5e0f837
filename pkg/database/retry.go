package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/richxcame/risk-engine/pkg/resilience"
)

// Querier is the subset of pgxpool.Pool used by RetryableQuery.
type Querier interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// Execer is the subset of pgxpool.Pool used by RetryableExec.
type Execer interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
}

// TxBeginner is the subset of pgxpool.Pool used by RetryableTransaction.
type TxBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// Write paths run off the request path, so they can afford a few hundred
// milliseconds of backoff.
func retryConfig(initial, ceiling time.Duration) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 3
	cfg.InitialBackoff = initial
	cfg.MaxBackoff = ceiling
	cfg.RetryableChecker = isPostgresRetryable
	return cfg
}

func retry[T any](ctx context.Context, cfg resilience.RetryConfig, name string, op func(context.Context) (T, error)) (T, error) {
	result, err := resilience.RetryWithName(ctx, cfg, func(ctx context.Context) (interface{}, error) {
		return op(ctx)
	}, name)
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// RetryableQuery runs query and hands the rows to scanner, retrying the
// whole round trip on transient failures.
func RetryableQuery[T any](ctx context.Context, pool Querier, query string, args []interface{}, scanner func(pgx.Rows) (T, error)) (T, error) {
	return retry(ctx, retryConfig(100*time.Millisecond, 2*time.Second), "database.query", func(ctx context.Context) (T, error) {
		rows, err := pool.Query(ctx, query, args...)
		if err != nil {
			var zero T
			return zero, err
		}
		defer rows.Close()
		return scanner(rows)
	})
}

// RetryableExec executes a command, retrying on transient failures.
func RetryableExec(ctx context.Context, pool Execer, query string, args ...interface{}) (pgconn.CommandTag, error) {
	return retry(ctx, retryConfig(100*time.Millisecond, 2*time.Second), "database.exec", func(ctx context.Context) (pgconn.CommandTag, error) {
		return pool.Exec(ctx, query, args...)
	})
}

// RetryableTransaction runs fn inside a transaction. A serialization failure
// or dropped connection replays fn in a fresh transaction.
func RetryableTransaction(ctx context.Context, pool TxBeginner, fn func(pgx.Tx) error) error {
	_, err := retry(ctx, retryConfig(50*time.Millisecond, time.Second), "database.transaction", func(ctx context.Context) (struct{}, error) {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return struct{}{}, err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			return struct{}{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			_ = tx.Rollback(ctx)
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

// SQLSTATE codes worth another attempt. Classes 22, 23 and 42 are caller
// mistakes and never appear here.
var retryableSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"53000": true, // insufficient_resources
	"53300": true, // too_many_connections
	"53400": true, // configuration_limit_exceeded
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
	"58000": true, // system_error
	"XX000": true, // internal_error
}

var retryableNetworkErrors = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"temporary failure",
	"timeout",
	"too many connections",
	"server closed",
	"unexpected eof",
}

func isPostgresRetryable(err error) bool {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection_exception
		return retryableSQLStates[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}

	if pgconn.SafeToRetry(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range retryableNetworkErrors {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
