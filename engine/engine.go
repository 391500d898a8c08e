// Package engine assembles the transactional segment manager (C4), the heap allocator family
// (C6, C7) and a redo sink (C5) into one opened or newly created storage engine — the composition
// root an application embeds, mirroring how in_red_cfs/in_red.go wires the teacher's own
// transaction manager, blob store, and registry together behind a couple of constructor
// functions.
package engine

import (
	"time"

	"github.com/sharedcode/vtm"
	"github.com/sharedcode/vtm/fs"
	"github.com/sharedcode/vtm/heap"
	"github.com/sharedcode/vtm/redolog"
)

const (
	heapSlotName   = "heap"
	stringSlotName = "strings"
)

// Engine is one opened storage engine: a transactional segment manager plus the heap allocator
// and string manager slots registered into its topology.
type Engine struct {
	Transactions *fs.TransactionManager
	Heap         *heap.Allocator
	Strings      *heap.StringManager
	sink         redolog.Sink
}

// RedoLogConfig selects how committed writes are made durable. Exactly one of Dir (file-backed,
// rotating, optionally erasure-coded) or UseMemory (in-process TTL cache, for tests) should be
// set; if neither is set, commits skip the durable-redo step entirely.
type RedoLogConfig struct {
	Dir                 string
	TransactionsPerFile int
	SegmentSize         int64
	Erasure             *redolog.ErasureConfig
	UseMemory           bool
	MemoryTTLSeconds    int
}

func (c *RedoLogConfig) buildSink() (redolog.Sink, error) {
	switch {
	case c == nil:
		return nil, nil
	case c.UseMemory:
		ttl := c.MemoryTTLSeconds
		if ttl <= 0 {
			ttl = 300
		}
		d := time.Duration(ttl) * time.Second
		return redolog.NewMemorySink(d, d), nil
	case c.Dir != "":
		segSize := c.SegmentSize
		if segSize <= 0 {
			segSize = 2 << 20
		}
		return redolog.NewFileSink(c.Dir, segSize, c.TransactionsPerFile, c.Erasure)
	default:
		return nil, nil
	}
}

// CreateNew lays out a fresh backing file at path with the heap allocator and string manager
// slots registered in segment 0, wraps it with a transaction manager, and wires redoCfg's sink.
func CreateNew(path string, opts *vtm.SegmentOptions, redoCfg *RedoLogConfig) (*Engine, error) {
	allocator := heap.NewAllocator(heapSlotName, nil)
	strMgr := heap.NewStringManager(stringSlotName, allocator)
	topology := fs.NewTopology(allocator, strMgr)

	base, err := fs.CreateNew(path, opts, topology)
	if err != nil {
		return nil, err
	}
	allocator.Bind(base)
	if err := allocator.InitDescriptor(); err != nil {
		base.Close()
		return nil, err
	}

	sink, err := redoCfg.buildSink()
	if err != nil {
		base.Close()
		return nil, err
	}
	return &Engine{
		Transactions: fs.NewTransactionManager(base, sink),
		Heap:         allocator,
		Strings:      strMgr,
		sink:         sink,
	}, nil
}

// Open reopens an existing backing file, rebinding the heap allocator and string manager to
// their persisted descriptors.
func Open(path string, redoCfg *RedoLogConfig) (*Engine, error) {
	allocator := heap.NewAllocator(heapSlotName, nil)
	strMgr := heap.NewStringManager(stringSlotName, allocator)
	topology := fs.NewTopology(allocator, strMgr)

	base, err := fs.Open(path, topology)
	if err != nil {
		return nil, err
	}
	allocator.Bind(base)

	sink, err := redoCfg.buildSink()
	if err != nil {
		base.Close()
		return nil, err
	}
	return &Engine{
		Transactions: fs.NewTransactionManager(base, sink),
		Heap:         allocator,
		Strings:      strMgr,
		sink:         sink,
	}, nil
}

// Close releases the redo sink (if it implements io.Closer) and the backing file.
func (e *Engine) Close() error {
	if closer, ok := e.sink.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return err
		}
	}
	return e.Transactions.Base().Close()
}
