package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sharedcode/vtm"
	"github.com/sharedcode/vtm/fs"
)

func TestCreateNewThenOpenRoundTripsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.vtm")

	opts := vtm.NewSegmentOptions().SegmentSize(8192)
	e, err := CreateNew(path, opts, nil)
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}

	txn := e.Transactions.BeginTransaction()
	strAddr, err := e.Strings.Insert(txn, []byte("persisted across reopen"))
	if err != nil {
		t.Fatalf("Strings.Insert: %v", err)
	}
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	readTxn := reopened.Transactions.BeginReadonlyTransaction()
	defer readTxn.Release()
	var got []byte
	if err := reopened.Strings.Get(readTxn, strAddr, 0, int64(len("persisted across reopen")), &got); err != nil {
		t.Fatalf("Strings.Get after reopen: %v", err)
	}
	if string(got) != "persisted across reopen" {
		t.Fatalf("Get after reopen = %q, want %q", got, "persisted across reopen")
	}
}

func TestCreateNewAllocatesThroughHeap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine-heap.vtm")
	opts := vtm.NewSegmentOptions().SegmentSize(8192)
	e, err := CreateNew(path, opts, nil)
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	defer e.Close()

	txn := e.Transactions.BeginTransaction()
	defer txn.Release()
	addr, err := e.Heap.Allocate(txn, 128)
	if err != nil {
		t.Fatalf("Heap.Allocate: %v", err)
	}
	if addr.IsNil() {
		t.Fatal("Heap.Allocate returned a nil address")
	}
}

func TestCreateNewWithMemoryRedoSinkRecordsCommits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine-redo.vtm")
	opts := vtm.NewSegmentOptions().SegmentSize(8192)
	e, err := CreateNew(path, opts, &RedoLogConfig{UseMemory: true})
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	defer e.Close()

	txn := e.Transactions.BeginTransaction()
	if _, err := txn.WritableBlock(vtm.FarAddress{Segment: 0, Offset: 4000}, 8, fs.UpdateHint); err != nil {
		t.Fatalf("WritableBlock: %v", err)
	}
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestCreateNewWithFileRedoSinkRotatesToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine-file-redo.vtm")
	redoDir := t.TempDir()
	opts := vtm.NewSegmentOptions().SegmentSize(8192)
	e, err := CreateNew(path, opts, &RedoLogConfig{Dir: redoDir})
	if err != nil {
		t.Fatalf("CreateNew: %v", err)
	}
	defer e.Close()

	txn := e.Transactions.BeginTransaction()
	if _, err := txn.WritableBlock(vtm.FarAddress{Segment: 0, Offset: 4000}, 8, fs.UpdateHint); err != nil {
		t.Fatalf("WritableBlock: %v", err)
	}
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestOpenRejectsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.vtm")
	if _, err := Open(path, nil); err == nil {
		t.Fatal("Open on a missing file did not fail")
	}
}
