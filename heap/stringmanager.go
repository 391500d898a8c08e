package heap

import (
	"encoding/binary"
	"fmt"

	"github.com/sharedcode/vtm"
	"github.com/sharedcode/vtm/fs"
)

// chunkHeaderSize is {thisLen uint32, next FarAddress(8 bytes)} preceding every chunk's payload.
const chunkHeaderSize = 4 + 8

type chunkHeader struct {
	thisLen uint32
	next    vtm.FarAddress
}

func encodeChunkHeader(h chunkHeader) []byte {
	buf := make([]byte, chunkHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.thisLen)
	binary.BigEndian.PutUint32(buf[4:8], h.next.Segment)
	binary.BigEndian.PutUint32(buf[8:12], h.next.Offset)
	return buf
}

func decodeChunkHeader(buf []byte) chunkHeader {
	return chunkHeader{
		thisLen: binary.BigEndian.Uint32(buf[0:4]),
		next: vtm.FarAddress{
			Segment: binary.BigEndian.Uint32(buf[4:8]),
			Offset:  binary.BigEndian.Uint32(buf[8:12]),
		},
	}
}

// StringManager is the string manager slot (C7): chunked, immutable variable-length byte buffers
// built entirely on top of an Allocator. It needs no segment-0 residence of its own — every string
// is independently addressed by the FarAddress Insert returns, the same way a heap-allocated block
// is addressed, so callers (e.g. a trie node) simply store that FarAddress.
type StringManager struct {
	name string
	heap *Allocator
}

// NewStringManager returns a string manager slot named name, allocating chunks through heap.
func NewStringManager(name string, heap *Allocator) *StringManager {
	return &StringManager{name: name, heap: heap}
}

func (s *StringManager) Name() string              { return s.name }
func (s *StringManager) HasResidence0() bool        { return false }
func (s *StringManager) ByteSize() int64            { return 0 }
func (s *StringManager) OnNewSegment0(vtm.FarAddress) error { return nil }
func (s *StringManager) Open(vtm.FarAddress) error          { return nil }

// maxSingleChunk is the largest payload one chunk may hold: a full segment's arena, minus the
// chunk header and the allocator's own block header. Insert splits a buffer into chunks of at most
// this size; a buffer of a full arena (fs.ArenaSize) or more fails outright with an out-of-range
// error instead (spec.md §4.5, Scenario D).
func (s *StringManager) maxSingleChunk() int64 {
	return fs.ArenaSize(s.heap.base.SegmentSize()) - chunkHeaderSize - allocHeaderSize
}

// Insert stores data as one or more chunks and returns the FarAddress of the first chunk.
func (s *StringManager) Insert(txn *fs.Transaction, data []byte) (vtm.FarAddress, error) {
	limit := s.maxSingleChunk()
	if int64(len(data)) >= fs.ArenaSize(s.heap.base.SegmentSize()) {
		return vtm.NilFarAddress, vtm.ErrOutOfRange(fmt.Errorf("string manager: buffer of %d bytes meets or exceeds segment capacity", len(data)))
	}

	var chunks [][]byte
	for off := 0; off < len(data) || (off == 0 && len(data) == 0); {
		end := off + int(limit)
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
		if end == off {
			break
		}
		off = end
	}

	var first, prev vtm.FarAddress
	for i := len(chunks) - 1; i >= 0; i-- {
		chunk := chunks[i]
		addr, err := s.heap.Allocate(txn, int64(chunkHeaderSize+len(chunk)))
		if err != nil {
			return vtm.NilFarAddress, err
		}
		hdr := chunkHeader{thisLen: uint32(len(chunk)), next: prev}
		buf, err := txn.WritableBlock(addr, chunkHeaderSize+len(chunk), fs.NewHint)
		if err != nil {
			return vtm.NilFarAddress, err
		}
		copy(buf, encodeChunkHeader(hdr))
		copy(buf[chunkHeaderSize:], chunk)
		prev = addr
		first = addr
	}
	return first, nil
}

// Get appends data[offset : offset+length] (clamped to the buffer's actual length) to sink.
// Requesting an offset at or beyond the buffer's length yields no output and no error (spec.md
// §4.5, §8 STR-2).
func (s *StringManager) Get(txn *fs.Transaction, addr vtm.FarAddress, offset, length int64, sink *[]byte) error {
	var pos int64
	remaining := length
	cur := addr
	for !cur.IsNil() && remaining > 0 {
		hdrBuf, err := txn.ReadonlyBlock(cur, chunkHeaderSize)
		if err != nil {
			return err
		}
		hdr := decodeChunkHeader(hdrBuf)
		chunkLen := int64(hdr.thisLen)

		if pos+chunkLen > offset {
			lo := int64(0)
			if offset > pos {
				lo = offset - pos
			}
			hi := chunkLen
			if pos+hi > offset+length {
				hi = offset + length - pos
			}
			if hi > lo {
				payload, err := txn.ReadonlyBlock(vtm.FarAddress{Segment: cur.Segment, Offset: cur.Offset + chunkHeaderSize}, int(chunkLen))
				if err != nil {
					return err
				}
				*sink = append(*sink, payload[lo:hi]...)
				remaining -= hi - lo
			}
		}
		pos += chunkLen
		cur = hdr.next
	}
	return nil
}

// Destroy frees every chunk in addr's chain through the heap allocator.
func (s *StringManager) Destroy(txn *fs.Transaction, addr vtm.FarAddress) error {
	cur := addr
	for !cur.IsNil() {
		hdrBuf, err := txn.ReadonlyBlock(cur, chunkHeaderSize)
		if err != nil {
			return err
		}
		hdr := decodeChunkHeader(hdrBuf)
		next := hdr.next
		if err := s.heap.Deallocate(txn, cur); err != nil {
			return err
		}
		cur = next
	}
	return nil
}
