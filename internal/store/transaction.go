package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contextKey int

const transactionKey contextKey = iota

var errNoTransaction = errors.New("transaction already finished")

// Tx is a gorm transaction carried through a context. Store methods called with that
// context join it instead of using the pool.
type Tx struct {
	id int64
	db *gorm.DB
}

// Commit commits the transaction carried by ctx, if any, and returns a context without it.
func Commit(ctx context.Context) (context.Context, error) {
	return finish(ctx, "commit", func(db *gorm.DB) error { return db.Commit().Error })
}

// Rollback aborts the transaction carried by ctx, if any, and returns a context without it.
func Rollback(ctx context.Context) (context.Context, error) {
	return finish(ctx, "rollback", func(db *gorm.DB) error { return db.Rollback().Error })
}

// FromContext returns the open transaction carried by ctx, or nil.
func FromContext(ctx context.Context) *gorm.DB {
	tx, ok := ctx.Value(transactionKey).(*Tx)
	if !ok || tx == nil {
		return nil
	}
	return tx.db
}

func finish(ctx context.Context, action string, end func(db *gorm.DB) error) (context.Context, error) {
	tx, ok := ctx.Value(transactionKey).(*Tx)
	if !ok || tx == nil {
		return ctx, nil
	}
	stripped := context.WithValue(ctx, transactionKey, (*Tx)(nil))

	if tx.db == nil {
		return stripped, errNoTransaction
	}

	logger := zap.S().Named("store").With("txid", tx.id, "action", action)
	if err := end(tx.db); err != nil {
		logger.Errorw("failed to end transaction", "error", err)
		return stripped, err
	}
	tx.db = nil
	logger.Debug("transaction ended")
	return stripped, nil
}

// newTransactionContext opens a transaction unless ctx already carries one, in which case
// the caller joins it.
func newTransactionContext(ctx context.Context, db *gorm.DB) (context.Context, error) {
	if FromContext(ctx) != nil {
		return ctx, nil
	}

	begun := db.Session(&gorm.Session{Context: ctx}).Begin()
	if begun.Error != nil {
		return ctx, begun.Error
	}

	tx := &Tx{db: begun}
	// txid_current only exists on postgres
	if begun.Dialector.Name() == "postgres" {
		var row struct{ ID int64 }
		begun.Raw("select txid_current() as id").Scan(&row)
		tx.id = row.ID
	}

	return context.WithValue(ctx, transactionKey, tx), nil
}
