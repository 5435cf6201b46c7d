package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrTxTimeout is returned when a transaction body does not finish within its timeout.
var ErrTxTimeout = errors.New("transaction timed out")

// IsolationLevel selects the transaction isolation.
type IsolationLevel = sql.IsolationLevel

const (
	ReadCommitted  = sql.LevelReadCommitted
	RepeatableRead = sql.LevelRepeatableRead
	Serializable   = sql.LevelSerializable
)

// TxOptions configures a transaction.
type TxOptions struct {
	Isolation IsolationLevel
	Timeout   time.Duration
}

type TxOption func(*TxOptions)

func WithIsolation(level IsolationLevel) TxOption {
	return func(o *TxOptions) { o.Isolation = level }
}

func WithTimeout(d time.Duration) TxOption {
	return func(o *TxOptions) { o.Timeout = d }
}

// Beginner starts transactions. *sql.DB satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// TxFunc is the body of a transaction.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// WithTx runs fn inside a transaction on the pool's database.
func (cp *ConnectionPool) WithTx(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	return WithTx(ctx, cp.db, cp.logger, fn, opts...)
}

// BeginTx satisfies Beginner so a pool can be handed to code that only needs transactions.
func (cp *ConnectionPool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return cp.db.BeginTx(ctx, opts)
}

// WithTx runs fn inside a transaction. The transaction commits when fn returns nil and
// rolls back when fn returns an error, panics, or outlives the timeout. On timeout or
// cancellation WithTx still waits for fn to return before handing control back, so fn
// must honour ctx; its result is then discarded.
func WithTx(ctx context.Context, db Beginner, logger *slog.Logger, fn TxFunc, opts ...TxOption) error {
	if logger == nil {
		logger = slog.Default()
	}
	o := TxOptions{Isolation: sql.LevelDefault}
	for _, opt := range opts {
		opt(&o)
	}

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: o.Isolation})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic in transaction: %v", p)
			}
		}()
		done <- fn(ctx, tx)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		rollback(tx, logger)
		<-done
		if o.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warn("transaction timed out", slog.Duration("timeout", o.Timeout))
			return ErrTxTimeout
		}
		return ctx.Err()
	}

	if err != nil {
		rollback(tx, logger)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func rollback(tx *sql.Tx, logger *slog.Logger) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Error("failed to roll back transaction", slog.String("error", err.Error()))
	}
}
