package db

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// Retrier runs store calls with bounded exponential backoff. Only transient
// network/protocol failures are retried.
type Retrier struct {
	Attempts  int
	BaseDelay time.Duration
	// Retryable overrides IsTransient when set.
	Retryable func(error) bool
}

// NewRetrier builds a Retrier; attempts below one are raised to one.
func NewRetrier(attempts int, base time.Duration) *Retrier {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	return &Retrier{Attempts: attempts, BaseDelay: base}
}

// Do executes fn until it succeeds, returns a non-transient error or attempts run out.
// Exhaustion is reported as *shared.TransientError.
func (r *Retrier) Do(ctx context.Context, fn func(context.Context) error) error {
	if r == nil || r.Attempts <= 1 {
		return fn(ctx)
	}
	retryable := r.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	backoff := retry.WithMaxRetries(uint64(r.Attempts-1), retry.NewExponential(r.BaseDelay))
	calls := 0
	var last error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		calls++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if retryable(err) {
			last = err
			return retry.RetryableError(err)
		}
		last = nil
		return err
	})
	if err != nil && last != nil && errors.Is(err, last) {
		return &shared.TransientError{Attempts: calls, Err: err}
	}
	return err
}

// IsTransient reports whether err is a network/protocol level failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return true
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return true
		case pgErr.Code == "53300":
			return true
		}
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
