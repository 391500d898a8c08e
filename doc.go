// Package vtm defines the cross-cutting types shared by this engine's subsystems: error codes,
// UUIDs, retry helpers, logging configuration, and segment sizing options. Concrete subsystems
// live in subpackages: fs (segmented mmap file manager and MVCC transactions), heap (free-list
// allocator and string manager), redolog (change-history sink), and seq (lazy sequence
// combinators).
//
// This package has no knowledge of any particular backend's wire format beyond the FarAddress
// handle; it is a foundation the subpackages build on, not a usable store by itself.
package vtm

// Concurrency model
//
// Transactions never block: begin_transaction is non-blocking and lock contention surfaces
// immediately as a transaction_concurrent_lock error at the first conflicting access (fs
// package). Retrying is the caller's responsibility; RetryN/YieldRetryN in this package provide
// bounded, count-based retry (no time-based deadlines, per spec.md §5) for exactly that error.
//
// Sequence traversals (seq package) are single-threaded pull iterators except parallel_sort,
// which fans work out across a worker pool and merges the partial results back into one ordered
// stream.
