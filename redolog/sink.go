// Package redolog implements the redo (change-history) log that a committed transaction is
// appended to before its locks are released (spec.md §3 "Redo log entry", §4.3, C5).
package redolog

import (
	"context"

	"github.com/sharedcode/vtm/fs"
)

// Record is one durable redo-log entry: every byte range a single transaction wrote, in commit
// order.
type Record struct {
	SequenceID uint64
	TxnID      uint64
	Writes     []fs.WriteRecord
}

// Sink is the redo-log write side. fs.TransactionManager depends only on fs.RedoSink, which this
// interface is structurally identical to; it is named separately here so sink implementations can
// document themselves without importing fs's transaction-manager internals.
type Sink interface {
	AppendTransaction(ctx context.Context, txnID uint64, writes []fs.WriteRecord) error
	Flush(ctx context.Context) error
}

var _ fs.RedoSink = (Sink)(nil)
