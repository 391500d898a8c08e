package fs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sharedcode/vtm"
)

// TransactionID is a monotonically increasing identifier assigned on begin (spec.md §3).
type TransactionID uint64

// TransactionState is one of {active, committed, aborted, ghost} per spec.md §3.
type TransactionState int

const (
	Active TransactionState = iota
	Committed
	Aborted
	// Ghost: an operation failed part-way (a shadow-page fault, or a failed flush or redo append
	// during Commit) and the transaction has not yet been torn down by its scoped guard. An
	// ordinary lock conflict leaves the transaction Active.
	Ghost
)

// WriteRecord is one committed byte range, handed to a RedoSink on commit.
type WriteRecord struct {
	Addr vtm.FarAddress
	Data []byte
}

// RedoSink receives committed write batches durably (spec.md §4.3, C5). Implementations live in
// the redolog package; this interface is structural so fs need not import it.
type RedoSink interface {
	AppendTransaction(ctx context.Context, txnID uint64, writes []WriteRecord) error
	Flush(ctx context.Context) error
}

// TransactionManager is the transactional segment manager (C4): it wraps a BaseManager to
// provide MVCC-style read/write isolation, conflict detection, and durable commit.
type TransactionManager struct {
	base     *BaseManager
	locks    *lockRegistry
	sink     RedoSink
	nextID   uint64
	mu       sync.Mutex
	roActive map[TransactionID]bool
}

// NewTransactionManager wraps base with MVCC semantics. sink may be nil, in which case commits
// skip the durable-redo step (useful for tests exercising only shadow/lock behavior).
func NewTransactionManager(base *BaseManager, sink RedoSink) *TransactionManager {
	return &TransactionManager{base: base, locks: newLockRegistry(), sink: sink, roActive: make(map[TransactionID]bool)}
}

// Transaction is a handle returned by Begin*; it embeds a sync.Mutex so `go vet` flags accidental
// copies (spec.md §9: the transaction handle "MUST NOT be copyable"). Callers must defer
// Release() immediately after a successful Begin, so it rolls back on any exit path that isn't an
// explicit Commit or Rollback (spec.md §4.2 "Scoped transaction guard").
type Transaction struct {
	sync.Mutex
	id       TransactionID
	readonly bool
	state    TransactionState
	mgr      *TransactionManager
	shadows  *shadowSet
	touched  map[uint32]bool
}

// Base returns the underlying segment manager, for callers (e.g. diagnostics) that need
// segment-level facts the transaction/lock layer does not itself expose.
func (m *TransactionManager) Base() *BaseManager { return m.base }

// LockCount reports the number of outstanding lock records held across all segments, an
// operator-facing health signal rather than anything consulted by transaction logic itself.
func (m *TransactionManager) LockCount() int { return m.locks.count() }

// ActiveReadonlyCount reports the number of read-only transactions currently registered. Writers
// aren't tracked here; combined with LockCount it gives a rough concurrency picture for /stats.
func (m *TransactionManager) ActiveReadonlyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.roActive)
}

// ID returns this transaction's identifier.
func (t *Transaction) ID() TransactionID { return t.id }

// State returns the transaction's current lifecycle state.
func (t *Transaction) State() TransactionState {
	t.Lock()
	defer t.Unlock()
	return t.state
}

// BeginTransaction allocates the next TransactionId, registers an active writer state, and
// returns a handle. Never blocks (spec.md §5).
func (m *TransactionManager) BeginTransaction() *Transaction {
	id := TransactionID(atomic.AddUint64(&m.nextID, 1))
	return &Transaction{id: id, state: Active, mgr: m, shadows: newShadowSet(), touched: make(map[uint32]bool)}
}

// BeginReadonlyTransaction registers a read-only handle. Per spec.md §4.2 it does not pre-check
// exclusivity against the whole file (that would require knowing every range up front); instead,
// like writers, conflicts surface lazily at the first ReadonlyBlock call that finds an exclusive
// lock held by another transaction.
func (m *TransactionManager) BeginReadonlyTransaction() *Transaction {
	id := TransactionID(atomic.AddUint64(&m.nextID, 1))
	m.mu.Lock()
	m.roActive[id] = true
	m.mu.Unlock()
	return &Transaction{id: id, readonly: true, state: Active, mgr: m, shadows: newShadowSet(), touched: make(map[uint32]bool)}
}

func (t *Transaction) checkActive() error {
	t.Lock()
	defer t.Unlock()
	switch t.state {
	case Active:
		return nil
	case Ghost:
		return vtm.ErrTransactionGhostState()
	default:
		return vtm.ErrTransactionNotStarted()
	}
}

// ReadonlyBlock acquires a shared lock for [addr,addr+length) and returns its bytes: the
// transaction's own shadowed bytes if it has already written there (read-your-writes), otherwise
// the base manager's current committed view.
func (t *Transaction) ReadonlyBlock(addr vtm.FarAddress, length int) ([]byte, error) {
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	rng := byteRange{start: addr.Offset, end: addr.Offset + uint32(length)}
	if err := t.mgr.locks.acquire(addr.Segment, rng, Shared, t.id); err != nil {
		t.markGhostOnConflict()
		return nil, err
	}
	t.touched[addr.Segment] = true

	if p := t.shadows.find(addr.Segment, rng.start, rng.end); p != nil {
		out := make([]byte, length)
		copy(out, p.data[rng.start-p.rng.start:rng.end-p.rng.start])
		return out, nil
	}
	return t.mgr.base.ReadonlyBlock(addr, length)
}

// WritableBlock acquires or upgrades to an exclusive lock for [addr,addr+length), allocates or
// extends a shadow page covering the range, and returns the shadow bytes directly: writes through
// the returned slice mutate the transaction's shadow in place.
func (t *Transaction) WritableBlock(addr vtm.FarAddress, length int, hint WriteHint) ([]byte, error) {
	if t.readonly {
		return nil, vtm.ErrROTransactionStarted()
	}
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	rng := byteRange{start: addr.Offset, end: addr.Offset + uint32(length)}
	if err := t.mgr.locks.acquire(addr.Segment, rng, Exclusive, t.id); err != nil {
		t.markGhostOnConflict()
		return nil, err
	}
	t.touched[addr.Segment] = true

	preserve := hint == UpdateHint
	page, err := t.shadows.touch(addr.Segment, rng.start, rng.end, preserve, func(lo, hi uint32) ([]byte, error) {
		return t.mgr.base.ReadonlyBlock(vtm.FarAddress{Segment: addr.Segment, Offset: lo}, int(hi-lo))
	})
	if err != nil {
		t.abortLocked()
		return nil, err
	}
	return page.data[rng.start-page.rng.start : rng.end-page.rng.start], nil
}

// markGhostOnConflict is a no-op for ordinary conflicts (the caller simply sees the error and may
// retry); it exists to document the distinction from abortLocked, which is used when an operation
// fails mid-way through mutating transaction-local state and the transaction can no longer be
// trusted to resume (spec.md §7: "leaves locks in pre-call state when possible and aborts the
// transaction otherwise").
func (t *Transaction) markGhostOnConflict() {}

func (t *Transaction) abortLocked() {
	t.Lock()
	t.state = Ghost
	t.Unlock()
}

// Commit flushes each shadow page back through the base manager, durably appends a redo record of
// all writes, and releases locks. Committed deltas become visible to new transactions once flush
// completes, before locks are released (spec.md §4.2).
func (t *Transaction) Commit(ctx context.Context) error {
	if t.readonly {
		return t.Rollback(ctx)
	}
	if err := t.checkActive(); err != nil {
		return err
	}

	var writes []WriteRecord
	var flushErr error
	t.shadows.forEach(func(seg uint32, p *shadowPage) {
		if flushErr != nil {
			return
		}
		dst, err := t.mgr.base.WritableBlock(vtm.FarAddress{Segment: seg, Offset: p.rng.start}, len(p.data), UpdateHint)
		if err != nil {
			flushErr = err
			return
		}
		copy(dst, p.data)
		rec := make([]byte, len(p.data))
		copy(rec, p.data)
		writes = append(writes, WriteRecord{Addr: vtm.FarAddress{Segment: seg, Offset: p.rng.start}, Data: rec})
	})
	if flushErr != nil {
		t.abortLocked()
		return flushErr
	}

	if t.mgr.sink != nil && len(writes) > 0 {
		if err := t.mgr.sink.AppendTransaction(ctx, uint64(t.id), writes); err != nil {
			t.abortLocked()
			return err
		}
		if err := t.mgr.sink.Flush(ctx); err != nil {
			t.abortLocked()
			return err
		}
	}

	t.mgr.locks.releaseAll(t.id)
	t.shadows.clear()
	t.Lock()
	t.state = Committed
	t.Unlock()
	t.unregisterReadonly()
	return nil
}

// Rollback discards all shadow pages and releases locks, per spec.md §4.2. Safe to call more
// than once; subsequent calls are no-ops once the transaction is no longer Active.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.Lock()
	if t.state != Active && t.state != Ghost {
		t.Unlock()
		return nil
	}
	t.state = Aborted
	t.Unlock()

	t.mgr.locks.releaseAll(t.id)
	t.shadows.clear()
	t.unregisterReadonly()
	return nil
}

// Release implements the scoped transaction guard (spec.md §4.2, §9): call it via defer
// immediately after Begin*. If the caller already Committed or Rolled back, Release is a no-op;
// otherwise it rolls back implicitly so no transaction ever outlives its guard.
func (t *Transaction) Release() {
	if t.State() == Active || t.State() == Ghost {
		_ = t.Rollback(context.Background())
	}
}

func (t *Transaction) unregisterReadonly() {
	if !t.readonly {
		return
	}
	t.mgr.mu.Lock()
	delete(t.mgr.roActive, t.id)
	t.mgr.mu.Unlock()
}

// String implements fmt.Stringer for diagnostics.
func (s TransactionState) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	case Ghost:
		return "ghost"
	default:
		return fmt.Sprintf("TransactionState(%d)", int(s))
	}
}
