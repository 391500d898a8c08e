package redolog

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sharedcode/vtm"
	"github.com/sharedcode/vtm/fs"
)

func TestFileSinkAppendAndFlush(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	writes := []fs.WriteRecord{{Addr: vtm.FarAddress{Segment: 0, Offset: 10}, Data: []byte("payload")}}
	if err := sink.AppendTransaction(ctx, 1, writes); err != nil {
		t.Fatalf("AppendTransaction: %v", err)
	}
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("rotation file count = %d, want 1", len(entries))
	}
}

func TestFileSinkRotatesOnTransactionCount(t *testing.T) {
	dir := t.TempDir()
	// transactionsPerFile=1 forces a rotation on every append after the first.
	sink, err := NewFileSink(dir, 0, 1, nil)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		writes := []fs.WriteRecord{{Addr: vtm.FarAddress{Segment: 0, Offset: uint32(i)}, Data: []byte("x")}}
		if err := sink.AppendTransaction(ctx, uint64(i+1), writes); err != nil {
			t.Fatalf("AppendTransaction(%d): %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("rotation file count = %d, want exactly 3 with transactionsPerFile=1", len(entries))
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for i := range names {
		if names[i] != sorted[i] {
			t.Fatalf("rotation filenames not already lexically sorted by creation order: %v", names)
		}
	}
}

// Rotation cuts over once a file accumulates exactly transactionsPerFile commits, not before and
// not based on how many bytes that turns out to be.
func TestFileSinkRotatesEveryKTransactions(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, 0, 2, nil)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		writes := []fs.WriteRecord{{Addr: vtm.FarAddress{Segment: 0, Offset: uint32(i)}, Data: []byte("payload")}}
		if err := sink.AppendTransaction(ctx, uint64(i+1), writes); err != nil {
			t.Fatalf("AppendTransaction(%d): %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("rotation file count = %d, want 2 rotation files for 4 commits at transactionsPerFile=2", len(entries))
	}
}

// Each rotation file is preallocated up front to the configured segment size, rather than growing
// byte-by-byte as records are appended.
func TestFileSinkPreallocatesRotationFileToSegmentSize(t *testing.T) {
	dir := t.TempDir()
	const segmentSize = 64 << 10
	sink, err := NewFileSink(dir, segmentSize, 0, nil)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	defer sink.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("rotation file count = %d, want 1", len(entries))
	}
	info, err := os.Stat(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != segmentSize {
		t.Fatalf("rotation file size = %d, want preallocated %d", info.Size(), segmentSize)
	}
}

func TestFileSinkErasureRoundTripsThroughAppend(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, 0, 0, &ErasureConfig{DataShardsCount: 2, ParityShardsCount: 1})
	if err != nil {
		t.Fatalf("NewFileSink with erasure: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	writes := []fs.WriteRecord{{Addr: vtm.FarAddress{Segment: 0, Offset: 0}, Data: []byte("erasure-coded payload")}}
	if err := sink.AppendTransaction(ctx, 1, writes); err != nil {
		t.Fatalf("AppendTransaction: %v", err)
	}
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("rotation file count = %d, want 1", len(entries))
	}
	info, err := os.Stat(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("rotation file is empty after an erasure-coded append")
	}
}

func TestFileSinkSatisfiesRedoSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	defer sink.Close()
	var _ fs.RedoSink = sink
}
