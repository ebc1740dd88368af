package db

import (
	"context"

	"gorm.io/gorm"
)

// TransactionManager wraps the atomic multi-row writes the refund and
// notify engines need when a channel reports a synchronous terminal
// result: a Refund insert plus its parent Order's balance update, or a
// Charge/Order pair's state transition, must commit or roll back
// together.
type TransactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// Transaction runs fn inside a db transaction, committing on a nil
// return and rolling back otherwise.
func (tm *TransactionManager) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return tm.db.WithContext(ctx).Transaction(fn)
}
