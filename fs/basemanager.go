package fs

import (
	"fmt"
	"os"
	"sync"

	"github.com/sharedcode/vtm"
)

// BaseManager is the base segment manager (C3): it creates or opens the backing file, maps
// segments lazily as OS file-mappings, and exposes raw (unlocked) byte-level access. It performs
// no locking of its own beyond serializing segment growth; isolation is the transactional
// manager's job (C4, transaction.go).
type BaseManager struct {
	mu          sync.Mutex
	file        *os.File
	segmentSize int64
	cache       *regionCache
	topology    *Topology
}

// WriteHint documents why a writable_block is being requested, per spec.md §4.2.
type WriteHint int

const (
	// UpdateHint (default) means the range holds meaningful existing bytes that must be
	// preserved when a shadow copy is taken.
	UpdateHint WriteHint = iota
	// NewHint means the range was just allocated; original bytes are undefined and copying them
	// into a shadow page is unnecessary.
	NewHint
)

// CreateNew creates a new backing file at path, sized per opts, and lays out segment 0 by asking
// each of topology's slots for its byte_size(segment0) in order (spec.md §4.1). Fails with
// er_file_already_exists if path exists, er_file_open on other I/O setup failures.
func CreateNew(path string, opts *vtm.SegmentOptions, topology *Topology) (*BaseManager, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, vtm.ErrFileAlreadyExists(fmt.Errorf("%s", path))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, vtm.ErrFileOpen(err)
	}
	if topology == nil {
		topology = NewTopology()
	}
	if opts == nil {
		opts = vtm.NewSegmentOptions()
	}
	segSize := opts.Resolve()
	bm := &BaseManager{file: f, segmentSize: segSize, cache: newRegionCache(), topology: topology}

	if err := bm.createSegment(0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	offset := uint32(0)
	for _, s := range topology.Slots() {
		if !s.HasResidence0() {
			continue
		}
		size := s.ByteSize()
		addr := vtm.FarAddress{Segment: 0, Offset: offset}
		if int64(offset)+size > ArenaSize(segSize) {
			f.Close()
			os.Remove(path)
			return nil, vtm.ErrNoMemory(fmt.Errorf("segment 0 arena too small for slot %q: need %d more bytes", s.Name(), int64(offset)+size-ArenaSize(segSize)))
		}
		if err := s.OnNewSegment0(addr); err != nil {
			f.Close()
			os.Remove(path)
			return nil, err
		}
		offset += uint32(vtm.AlignUp(size))
	}
	return bm, nil
}

// Open opens an existing backing file, validates segment 0's header, and rebinds each topology
// slot via Open(addr) using the same deterministic offset walk CreateNew used.
func Open(path string, topology *Topology) (*BaseManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, vtm.ErrFileOpen(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, vtm.ErrFileOpen(err)
	}

	hdrBuf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		f.Close()
		return nil, vtm.ErrReadFile(err)
	}
	hdr, err := DecodeSegmentHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := hdr.Validate(); err != nil {
		f.Close()
		return nil, err
	}
	segSize := int64(hdr.SegmentSize)
	if segSize <= 0 || info.Size()%segSize != 0 {
		f.Close()
		return nil, vtm.ErrInvalidSignature(fmt.Errorf("file size %d is not a multiple of segment size %d", info.Size(), segSize))
	}

	if topology == nil {
		topology = NewTopology()
	}
	bm := &BaseManager{file: f, segmentSize: segSize, cache: newRegionCache(), topology: topology}

	offset := uint32(0)
	for _, s := range topology.Slots() {
		if !s.HasResidence0() {
			continue
		}
		addr := vtm.FarAddress{Segment: 0, Offset: offset}
		if err := s.Open(addr); err != nil {
			f.Close()
			return nil, err
		}
		offset += uint32(vtm.AlignUp(s.ByteSize()))
	}
	return bm, nil
}

// SegmentSize returns the fixed segment size for the life of this file.
func (bm *BaseManager) SegmentSize() int64 { return bm.segmentSize }

// AvailableSegments returns the count of materialized (currently mapped) segments. This is a
// diagnostic count of mappings held open, not the total segment count on disk.
func (bm *BaseManager) AvailableSegments() int {
	return bm.cache.count()
}

// SegmentCount returns the total number of segments present in the backing file.
func (bm *BaseManager) SegmentCount() (uint32, error) {
	info, err := bm.file.Stat()
	if err != nil {
		return 0, vtm.ErrReadFile(err)
	}
	return uint32(info.Size() / bm.segmentSize), nil
}

// EnsureSegment maps segment idx, creating and zero-filling it (with its header) if the file
// does not yet contain it. Concurrent calls for the same idx are serialized via regionCache's
// singleflight so at most one mapping per segment is ever created (spec.md §4.1).
func (bm *BaseManager) EnsureSegment(idx uint32) error {
	_, err := bm.cache.ensure(idx, bm.file, bm.segmentSize, bm.createSegmentIfMissing)
	return err
}

func (bm *BaseManager) createSegmentIfMissing(idx uint32, f *os.File, segmentSize int64) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	info, err := f.Stat()
	if err != nil {
		return vtm.ErrReadFile(err)
	}
	needed := int64(idx+1) * segmentSize
	if info.Size() >= needed {
		return nil
	}
	return bm.createSegmentLocked(idx)
}

func (bm *BaseManager) createSegment(idx uint32) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.createSegmentLocked(idx)
}

// createSegmentLocked extends the file to hold segment idx and writes its zero-filled header.
// Caller must hold bm.mu.
func (bm *BaseManager) createSegmentLocked(idx uint32) error {
	needed := int64(idx+1) * bm.segmentSize
	if err := bm.file.Truncate(needed); err != nil {
		return vtm.ErrWriteFile(err)
	}
	hdr := NewSegmentHeader(uint32(bm.segmentSize))
	enc := hdr.Encode()
	if _, err := bm.file.WriteAt(enc[:], int64(idx)*bm.segmentSize); err != nil {
		return vtm.ErrWriteFile(err)
	}
	return nil
}

// ReadonlyBlock returns a read-only byte view of len bytes at addr. The base manager performs no
// locking; isolation is enforced by the transactional manager layered above it.
func (bm *BaseManager) ReadonlyBlock(addr vtm.FarAddress, length int) ([]byte, error) {
	if err := bm.EnsureSegment(addr.Segment); err != nil {
		return nil, err
	}
	r, _ := bm.cache.get(addr.Segment)
	start := int(addr.Offset) + HeaderSize
	end := start + length
	if end > len(r.data) {
		return nil, vtm.ErrInvalidBlock(fmt.Errorf("block [%d:%d) exceeds segment size %d", start, end, len(r.data)))
	}
	out := make([]byte, length)
	copy(out, r.data[start:end])
	return out, nil
}

// WritableBlock returns a direct window onto the OS mapping for len bytes at addr: writes through
// this slice are writes to the memory-mapped file. hint is accepted for interface symmetry with
// the transactional manager; the base manager itself never shadows.
func (bm *BaseManager) WritableBlock(addr vtm.FarAddress, length int, hint WriteHint) ([]byte, error) {
	if err := bm.EnsureSegment(addr.Segment); err != nil {
		return nil, err
	}
	r, _ := bm.cache.get(addr.Segment)
	start := int(addr.Offset) + HeaderSize
	end := start + length
	if end > len(r.data) {
		return nil, vtm.ErrInvalidBlock(fmt.Errorf("block [%d:%d) exceeds segment size %d", start, end, len(r.data)))
	}
	return r.data[start:end], nil
}

// HeaderOf returns the decoded SegmentHeader for segment idx, validating its signature.
func (bm *BaseManager) HeaderOf(idx uint32) (SegmentHeader, error) {
	if err := bm.EnsureSegment(idx); err != nil {
		return SegmentHeader{}, err
	}
	r, _ := bm.cache.get(idx)
	hdrBuf := make([]byte, HeaderSize)
	// The header lives in the file but is mapped into the same region as a prefix; since
	// mmapSegment maps the whole segment including its header, the header bytes are the first
	// HeaderSize bytes of r.data.
	copy(hdrBuf, r.data[:HeaderSize])
	hdr, err := DecodeSegmentHeader(hdrBuf)
	if err != nil {
		return SegmentHeader{}, err
	}
	if err := hdr.Validate(); err != nil {
		return SegmentHeader{}, err
	}
	return hdr, nil
}

// Close unmaps all regions and closes the backing file.
func (bm *BaseManager) Close() error {
	if err := bm.cache.closeAll(); err != nil {
		return err
	}
	return bm.file.Close()
}

// Topology returns the slot topology this manager was opened/created with.
func (bm *BaseManager) Topology() *Topology { return bm.topology }
