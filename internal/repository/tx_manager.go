package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	"grantsbackend/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type contextKey string

const txKey contextKey = "gorm_tx"

// ErrNoTransaction is returned when a write is attempted outside RunInTx.
var ErrNoTransaction = errors.New("repository write requires an active transaction")

// ErrStaleState is returned by guarded updates whose WHERE state = ? matched no
// row because a concurrent transaction changed the row first.
var ErrStaleState = errors.New("row state changed concurrently")

// TransactionManager manages database transactions via context injection.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewTransactionManager bounds every transaction by timeout (zero means no bound).
func NewTransactionManager(db *gorm.DB, timeout time.Duration) TransactionManager {
	return &transactionManager{db: db, timeout: timeout}
}

// RunInTx runs fn inside one transaction: commit on nil, rollback on error or
// panic. A ctx that already carries a transaction joins it instead of opening a
// second one.
func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return fn(ctx)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey, tx)
		return fn(txCtx)
	})
	return classifyTxError(ctx, err)
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
// Only reads may use the root fallback.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}

// MustTx returns the transaction carried by ctx. Repositories call it on every
// write so a mutation can never run on its own pooled connection.
func MustTx(ctx context.Context) (*gorm.DB, error) {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx), nil
	}
	return nil, apperr.Wrap(apperr.KindInternal, ErrNoTransaction, "unit of work missing")
}

// lockForUpdate adds SELECT ... FOR UPDATE where the dialect has row locks.
// SQLite serialises writers on the database file instead.
func lockForUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Postgres error codes after which the whole transaction is safe to retry.
var retryablePgCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57014": true, // query_canceled (statement_timeout)
	"57P01": true, // admin_shutdown
}

func classifyTxError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindInternal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return apperr.Unavailable(err)
	}
	if errors.Is(err, driver.ErrBadConn) {
		return apperr.Unavailable(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if retryablePgCodes[pgErr.Code] || len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" {
			return apperr.Unavailable(err)
		}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return apperr.Unavailable(err)
	}
	return err
}
