package redolog

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/sharedcode/vtm/fs"
)

// MemorySink is a bounded, TTL-evicting redo-log sink backed by go-cache. It never touches disk;
// it exists for tests and for deployments that accept losing recent history across a restart in
// exchange for zero I/O (spec.md §4.3 lists an in-memory sink as a valid, if non-durable, choice).
type MemorySink struct {
	cache  *gocache.Cache
	nextID uint64
}

// NewMemorySink builds a sink whose entries expire after ttl (no expiry if ttl <= 0) and are
// swept every cleanupInterval.
func NewMemorySink(ttl, cleanupInterval time.Duration) *MemorySink {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemorySink{cache: gocache.New(ttl, cleanupInterval)}
}

func (s *MemorySink) AppendTransaction(_ context.Context, txnID uint64, writes []fs.WriteRecord) error {
	id := atomic.AddUint64(&s.nextID, 1)
	rec := Record{SequenceID: id, TxnID: txnID, Writes: append([]fs.WriteRecord(nil), writes...)}
	s.cache.Set(fmt.Sprintf("%020d", id), rec, gocache.DefaultExpiration)
	return nil
}

// Flush is a no-op: entries are already visible to readers the moment Set returns.
func (s *MemorySink) Flush(context.Context) error { return nil }

// Records returns every currently retained record, oldest first, for replay or diagnostics.
func (s *MemorySink) Records() []Record {
	items := s.cache.Items()
	out := make([]Record, 0, len(items))
	for _, it := range items {
		if rec, ok := it.Object.(Record); ok {
			out = append(out, rec)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].SequenceID > out[j].SequenceID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Count reports the number of retained (not yet expired) records.
func (s *MemorySink) Count() int { return s.cache.ItemCount() }
