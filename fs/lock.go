package fs

import (
	"sync"

	"github.com/sharedcode/vtm"
)

// LockMode is a lock's access mode, per spec.md §3 "Lock" record.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

type byteRange struct {
	start, end uint32 // [start, end) within one segment
}

func (r byteRange) overlaps(o byteRange) bool {
	return r.start < o.end && o.start < r.end
}

type lockRecord struct {
	rng    byteRange
	mode   LockMode
	holder TransactionID
}

// lockRegistry is the per-segment-manager lock table from spec.md §3 "Lock": a (range, mode,
// holder) record set grouped by segment, guarded by a short critical section per acquire/release
// (spec.md §5). No waiting and no deadlock detection: conflicting acquisitions fail immediately,
// per spec.md §4.2.
type lockRegistry struct {
	mu    sync.Mutex
	byseg map[uint32][]*lockRecord
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{byseg: make(map[uint32][]*lockRecord)}
}

// acquire attempts to grant holder a lock in mode over [seg,start,end). On success, any existing
// record(s) held by holder over overlapping ranges are merged into a single (possibly upgraded)
// record, per the "Overlap rule inside a transaction" in spec.md §4.2. On conflict with another
// transaction's incompatible lock, returns transaction_concurrent_lock.
func (l *lockRegistry) acquire(seg uint32, rng byteRange, mode LockMode, holder TransactionID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := l.byseg[seg]
	for _, r := range records {
		if !r.rng.overlaps(rng) {
			continue
		}
		if r.holder == holder {
			continue // same transaction: merging handled below, never a conflict with itself.
		}
		if r.mode == Shared && mode == Shared {
			continue // shared locks stack across distinct readers.
		}
		return vtm.ErrTransactionConcurrentLock(nil)
	}

	// Merge with this holder's own overlapping records (if any), upgrading mode to the
	// strongest of the two (Exclusive wins over Shared).
	merged := rng
	finalMode := mode
	kept := records[:0]
	for _, r := range records {
		if r.holder == holder && r.rng.overlaps(rng) {
			if r.rng.start < merged.start {
				merged.start = r.rng.start
			}
			if r.rng.end > merged.end {
				merged.end = r.rng.end
			}
			if r.mode == Exclusive {
				finalMode = Exclusive
			}
			continue // drop: folded into merged
		}
		kept = append(kept, r)
	}
	kept = append(kept, &lockRecord{rng: merged, mode: finalMode, holder: holder})
	l.byseg[seg] = kept
	return nil
}

// hasExclusiveFromOther reports whether any other transaction holds an exclusive lock
// overlapping rng in segment seg. Nothing calls it at present: BeginReadonlyTransaction does no
// pre-check, and read-only conflicts surface through the shared-lock acquire in ReadonlyBlock.
func (l *lockRegistry) hasExclusiveFromOther(seg uint32, rng byteRange, self TransactionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.byseg[seg] {
		if r.holder != self && r.mode == Exclusive && r.rng.overlaps(rng) {
			return true
		}
	}
	return false
}

// count returns the total number of outstanding lock records across all segments.
func (l *lockRegistry) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, records := range l.byseg {
		n += len(records)
	}
	return n
}

// releaseAll drops every lock record held by holder, across all segments.
func (l *lockRegistry) releaseAll(holder TransactionID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for seg, records := range l.byseg {
		kept := records[:0]
		for _, r := range records {
			if r.holder != holder {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(l.byseg, seg)
		} else {
			l.byseg[seg] = kept
		}
	}
}
