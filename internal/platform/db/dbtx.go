package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and RetryingDB.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner opens transactions.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Pool is what the retrying decorator wraps: a DBTX that can also begin transactions.
type Pool interface {
	DBTX
	TxBeginner
}

// RetryingDB applies the Retrier to every store call. Rows returned by Query are
// not retried once iteration has started.
type RetryingDB struct {
	inner   Pool
	retrier *Retrier
}

// NewRetryingDB decorates inner with retrier.
func NewRetryingDB(inner Pool, retrier *Retrier) *RetryingDB {
	return &RetryingDB{inner: inner, retrier: retrier}
}

// Exec runs a statement with retry.
func (r *RetryingDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	var tag pgconn.CommandTag
	err := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		tag, err = r.inner.Exec(ctx, sql, args...)
		return err
	})
	return tag, err
}

// Query runs a query with retry on the initial round trip.
func (r *RetryingDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	var rows pgx.Rows
	err := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		rows, err = r.inner.Query(ctx, sql, args...)
		return err
	})
	return rows, err
}

// QueryRow defers execution until Scan so that the whole round trip is retried.
func (r *RetryingDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &retryRow{db: r, ctx: ctx, sql: sql, args: args}
}

// BeginTx opens a transaction, retrying the begin only.
func (r *RetryingDB) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	var tx pgx.Tx
	err := r.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		tx, err = r.inner.BeginTx(ctx, opts)
		return err
	})
	return tx, err
}

// InTx runs fn in a RepeatableRead transaction and retries the whole transaction
// on transient failures such as serialization conflicts.
func (r *RetryingDB) InTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return r.retrier.Do(ctx, func(ctx context.Context) error {
		return WithTx(ctx, r.inner, fn)
	})
}

type retryRow struct {
	db   *RetryingDB
	ctx  context.Context
	sql  string
	args []any
}

func (r *retryRow) Scan(dest ...any) error {
	return r.db.retrier.Do(r.ctx, func(ctx context.Context) error {
		return r.db.inner.QueryRow(ctx, r.sql, r.args...).Scan(dest...)
	})
}

// Transactor runs a callback inside a transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Store is the handle repositories receive: plain queries plus transactions.
type Store interface {
	DBTX
	Transactor
}
