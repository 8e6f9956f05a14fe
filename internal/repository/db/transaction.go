package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Transaction outcomes reported to the TxObserver.
const (
	TxCommitted  = "committed"
	TxRolledBack = "rolled_back"
)

// TxObserver receives the outcome and duration of every top-level transaction.
type TxObserver interface {
	ObserveTransaction(status string, duration time.Duration)
}

type txKey struct{}

// TxFromContext returns the transaction bound to ctx by Transaction, if any.
func TxFromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}

// Conn returns the transaction bound to ctx, or the root session scoped to ctx.
func (d *Database) Conn(ctx context.Context) *gorm.DB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return d.ORM.WithContext(ctx)
}

// TxOptions returns the options every transaction is started with.
func (d *Database) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: d.isolation}
}

// Transaction runs fn inside a database transaction bound to ctx. The
// transaction commits when fn returns nil and rolls back when fn returns an
// error or panics; the panic is propagated after the rollback. A call made
// with a context that already carries a transaction joins it instead of
// opening a new one, so the outermost call decides commit or rollback.
func (d *Database) Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if tx, ok := TxFromContext(ctx); ok {
		return fn(ctx, tx)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	status := TxRolledBack
	defer func() {
		if d.observer != nil {
			d.observer.ObserveTransaction(status, time.Since(start))
		}
	}()

	err := d.ORM.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx), tx)
	}, d.TxOptions())
	if err != nil {
		return withContextError(ctx, err)
	}

	status = TxCommitted
	return nil
}

// Query runs fn in a transaction and returns its result.
func Query[T any](ctx context.Context, d *Database, fn func(ctx context.Context, tx *gorm.DB) (T, error)) (T, error) {
	var result T
	err := d.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		result, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// withContextError keeps context.Canceled and DeadlineExceeded matchable with
// errors.Is whatever the driver reported.
func withContextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
