package heap

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/sharedcode/vtm"
	"github.com/sharedcode/vtm/fs"
)

func newTestAllocator(t *testing.T) (*Allocator, *fs.TransactionManager) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heap.vtm")
	alloc := NewAllocator("heap", nil)
	topology := fs.NewTopology(alloc)

	opts := vtm.NewSegmentOptions().SegmentSize(8192)
	base, err := fs.CreateNew(path, opts, topology)
	if err != nil {
		t.Fatalf("fs.CreateNew: %v", err)
	}
	t.Cleanup(func() { base.Close() })
	alloc.Bind(base)
	if err := alloc.InitDescriptor(); err != nil {
		t.Fatalf("InitDescriptor: %v", err)
	}

	mgr := fs.NewTransactionManager(base, nil)
	return alloc, mgr
}

func mustCommit(t *testing.T, txn *fs.Transaction) {
	t.Helper()
	if err := txn.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

// HEAP-1: an allocated block can be deallocated and the bytes it occupied rejoin the free list.
func TestAllocateDeallocateRoundTrip(t *testing.T) {
	alloc, mgr := newTestAllocator(t)

	txn := mgr.BeginTransaction()
	addr, err := alloc.Allocate(txn, 64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr.IsNil() {
		t.Fatal("Allocate returned a nil address")
	}
	mustCommit(t, txn)

	txn2 := mgr.BeginTransaction()
	if err := alloc.Deallocate(txn2, addr); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	mustCommit(t, txn2)

	txn3 := mgr.BeginTransaction()
	defer txn3.Release()
	if ok, notes := alloc.CheckIntegrity(txn3, true); !ok {
		t.Fatalf("CheckIntegrity after round trip failed: %v", notes)
	}
}

// HEAP-2: a large free span that is only partially consumed is split, leaving a smaller free
// remainder behind rather than being handed out whole.
func TestAllocateSplitsLargeSpan(t *testing.T) {
	alloc, mgr := newTestAllocator(t)

	txn := mgr.BeginTransaction()
	seg0, err := alloc.Available(txn, 0)
	if err != nil {
		t.Fatalf("Available (segment 0): %v", err)
	}
	if seg0 != 0 {
		t.Fatalf("segment 0 has %d free heap bytes, want 0: it holds only slot descriptors", seg0)
	}

	addr, err := alloc.Allocate(txn, 32)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr.IsNil() {
		t.Fatal("Allocate returned nil address")
	}

	// The first allocation grows a fresh segment whose whole arena starts as one free span.
	before := fs.ArenaSize(mgr.Base().SegmentSize())
	after, err := alloc.Available(txn, addr.Segment)
	if err != nil {
		t.Fatalf("Available (after): %v", err)
	}
	consumed := before - after
	// A 32-byte request plus its allocation header is far smaller than the whole arena: the
	// remainder must have been split back into the free list rather than handed out whole.
	if consumed >= before {
		t.Fatalf("consumed %d of %d available bytes, want split remainder left free", consumed, before)
	}
	if consumed < 32 {
		t.Fatalf("consumed only %d bytes for a 32-byte request", consumed)
	}
	mustCommit(t, txn)
}

// HEAP-3: deallocating two address-adjacent blocks coalesces them into a single free span rather
// than leaving two adjacent-but-distinct spans behind.
func TestDeallocateCoalescesAdjacentSpans(t *testing.T) {
	alloc, mgr := newTestAllocator(t)

	txn := mgr.BeginTransaction()
	a1, err := alloc.Allocate(txn, 32)
	if err != nil {
		t.Fatalf("Allocate a1: %v", err)
	}
	a2, err := alloc.Allocate(txn, 32)
	if err != nil {
		t.Fatalf("Allocate a2: %v", err)
	}
	a3, err := alloc.Allocate(txn, 32)
	if err != nil {
		t.Fatalf("Allocate a3: %v", err)
	}
	mustCommit(t, txn)

	// Free the first and third blocks, leaving the middle one (a2) allocated, then free a2 too:
	// every adjacent pair must coalesce back into one span, leaving no two free spans touching.
	txn2 := mgr.BeginTransaction()
	if err := alloc.Deallocate(txn2, a1); err != nil {
		t.Fatalf("Deallocate a1: %v", err)
	}
	if err := alloc.Deallocate(txn2, a3); err != nil {
		t.Fatalf("Deallocate a3: %v", err)
	}
	if err := alloc.Deallocate(txn2, a2); err != nil {
		t.Fatalf("Deallocate a2: %v", err)
	}
	mustCommit(t, txn2)

	txn3 := mgr.BeginTransaction()
	defer txn3.Release()
	if ok, notes := alloc.CheckIntegrity(txn3, true); !ok {
		t.Fatalf("CheckIntegrity found adjacent uncoalesced spans: %v", notes)
	}
}

// HEAP-3 (negative path): CheckIntegrity must actually detect adjacency, not just pass vacuously.
func TestCheckIntegrityDetectsAdjacentSpans(t *testing.T) {
	alloc, mgr := newTestAllocator(t)

	txn := mgr.BeginTransaction()
	d, err := alloc.readDescriptor(txn)
	if err != nil {
		t.Fatalf("readDescriptor: %v", err)
	}
	// Hand-insert two adjacent spans directly, bypassing Deallocate's own coalescing, to exercise
	// CheckIntegrity's detection path in isolation.
	if err := alloc.insert(txn, &d, vtm.FarAddress{Segment: 0, Offset: 4096}, 64); err != nil {
		t.Fatalf("insert span 1: %v", err)
	}
	if err := alloc.insert(txn, &d, vtm.FarAddress{Segment: 0, Offset: 4160}, 64); err != nil {
		t.Fatalf("insert span 2: %v", err)
	}
	mustCommit(t, txn)

	txn2 := mgr.BeginTransaction()
	defer txn2.Release()
	ok, notes := alloc.CheckIntegrity(txn2, true)
	if ok {
		t.Fatal("CheckIntegrity reported healthy despite two hand-inserted adjacent free spans")
	}
	if len(notes) == 0 {
		t.Fatal("CheckIntegrity reported unhealthy with no diagnostic notes")
	}
}

// Allocating more than fits in one segment forces growSegment to map a new segment and link its
// whole arena in as one giant free span.
func TestAllocateGrowsSegmentWhenExhausted(t *testing.T) {
	alloc, mgr := newTestAllocator(t)

	txn := mgr.BeginTransaction()
	before, err := mgr.Base().SegmentCount()
	if err != nil {
		t.Fatalf("SegmentCount (before): %v", err)
	}

	// No free span exists yet (segment 0 holds only the slot descriptors), so a request just shy of
	// the whole arena fits only the full arena of a freshly grown segment, forcing exactly one
	// growSegment round trip.
	arena := fs.ArenaSize(mgr.Base().SegmentSize())
	addr, err := alloc.Allocate(txn, arena-64)
	if err != nil {
		t.Fatalf("Allocate near-arena-sized request: %v", err)
	}
	if addr.IsNil() {
		t.Fatal("Allocate returned nil address")
	}
	mustCommit(t, txn)

	after, err := mgr.Base().SegmentCount()
	if err != nil {
		t.Fatalf("SegmentCount (after): %v", err)
	}
	if after <= before {
		t.Fatalf("SegmentCount did not grow: before=%d after=%d", before, after)
	}
}

type fixedString string

func (s fixedString) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16)
	copy(buf, s)
	return buf, nil
}

func (s *fixedString) UnmarshalBinary(data []byte) error {
	*s = fixedString(bytes.TrimRight(data, "\x00"))
	return nil
}

func TestMakeNewRoundTrips(t *testing.T) {
	alloc, mgr := newTestAllocator(t)

	txn := mgr.BeginTransaction()
	addr, err := MakeNew(alloc, txn, fixedString("hello-world"))
	if err != nil {
		t.Fatalf("MakeNew: %v", err)
	}
	buf, err := txn.ReadonlyBlock(addr, 16)
	if err != nil {
		t.Fatalf("ReadonlyBlock: %v", err)
	}
	var got fixedString
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	mustCommit(t, txn)
}

func TestMakeArrayRoundTrips(t *testing.T) {
	alloc, mgr := newTestAllocator(t)

	txn := mgr.BeginTransaction()
	values := []fixedString{"first-elem-____", "second-elem-___", "third-elem-____"}
	addr, err := MakeArray[fixedString](alloc, txn, 16, values)
	if err != nil {
		t.Fatalf("MakeArray: %v", err)
	}
	for i, want := range values {
		buf, err := txn.ReadonlyBlock(addr.Add(uint32(i*16)), 16)
		if err != nil {
			t.Fatalf("ReadonlyBlock(%d): %v", i, err)
		}
		var got fixedString
		if err := got.UnmarshalBinary(buf); err != nil {
			t.Fatalf("UnmarshalBinary(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("element %d = %q, want %q", i, got, want)
		}
	}
	mustCommit(t, txn)
}

func TestMakeArrayRejectsMismatchedElementSize(t *testing.T) {
	alloc, mgr := newTestAllocator(t)

	txn := mgr.BeginTransaction()
	defer txn.Release()
	_, err := MakeArray[fixedString](alloc, txn, 4, []fixedString{"too-long-for-4-bytes"})
	if err == nil {
		t.Fatal("MakeArray with mismatched element size did not fail")
	}
}
