package db

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-memdb"
)

type MemTxnContextKey struct{}

type memdbTransactor struct {
	db *memdb.MemDB
}

// NewMemdbTransactor returns a Transactor over an in-memory database.
// memdb admits a single writer, so transactions are serialized.
func NewMemdbTransactor(db *memdb.MemDB) Transactor {
	return &memdbTransactor{db: db}
}

func (t *memdbTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(MemTxnContextKey{}).(*memdb.Txn); ok {
		return fn(ctx)
	}

	txn := t.db.Txn(true)
	defer txn.Abort()

	if err := fn(context.WithValue(ctx, MemTxnContextKey{}, txn)); err != nil {
		return fmt.Errorf("transaction function failed: %w", err)
	}

	txn.Commit()
	return nil
}

// MemdbRead runs fn against the transaction bound to ctx, or a fresh
// read transaction.
func MemdbRead(ctx context.Context, db *memdb.MemDB, fn func(txn *memdb.Txn) error) error {
	if txn, ok := ctx.Value(MemTxnContextKey{}).(*memdb.Txn); ok {
		return fn(txn)
	}

	txn := db.Txn(false)
	defer txn.Abort()

	return fn(txn)
}

// MemdbWrite runs fn against the transaction bound to ctx, or a fresh write
// transaction that is committed when fn succeeds.
func MemdbWrite(ctx context.Context, db *memdb.MemDB, fn func(txn *memdb.Txn) error) error {
	if txn, ok := ctx.Value(MemTxnContextKey{}).(*memdb.Txn); ok {
		return fn(txn)
	}

	txn := db.Txn(true)
	defer txn.Abort()

	if err := fn(txn); err != nil {
		return err
	}

	txn.Commit()
	return nil
}
