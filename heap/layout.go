// Package heap implements the heap allocator slot (C6) and the string manager slot (C7) that
// lives above it: a free-list/skip-list allocator producing stable FarAddresses inside VTM
// segments, persisted entirely through the transactional segment manager so every mutation is
// transactional and crash-consistent (spec.md §4.4, §4.5).
package heap

import (
	"encoding/binary"

	"github.com/sharedcode/vtm"
)

// maxLevel bounds the skip list's height. log2 of an expected several-million-node free list
// comfortably fits in 16 levels.
const maxLevel = 16

// freeBlockHeaderSize is the on-disk size of a freeBlockHeader: 4 (size) + 1 (level) + 3 (pad) +
// maxLevel forward pointers (8 bytes each: two uint32s).
const freeBlockHeaderSize = 4 + 1 + 3 + maxLevel*8

// allocHeaderSize is the on-disk size of an allocatedBlockHeader: the block's 4-byte total size,
// padded to 8 bytes so the user region stays aligned.
const allocHeaderSize = 8

// freeBlockHeader is the record living at the head of every free span (spec.md §3 "Free-memory
// block"), generalized from a singly-linked {next_same_size, next_diff_size} pair to a full
// skip-list node so best-fit search is O(log N) rather than O(N).
type freeBlockHeader struct {
	size    uint32 // total span size, including this header
	level   uint8
	forward [maxLevel]vtm.FarAddress
}

func encodeFreeBlock(h freeBlockHeader) []byte {
	buf := make([]byte, freeBlockHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.size)
	buf[4] = h.level
	off := 8
	for i := 0; i < maxLevel; i++ {
		binary.BigEndian.PutUint32(buf[off:off+4], h.forward[i].Segment)
		binary.BigEndian.PutUint32(buf[off+4:off+8], h.forward[i].Offset)
		off += 8
	}
	return buf
}

func decodeFreeBlock(buf []byte) freeBlockHeader {
	var h freeBlockHeader
	h.size = binary.BigEndian.Uint32(buf[0:4])
	h.level = buf[4]
	off := 8
	for i := 0; i < maxLevel; i++ {
		h.forward[i] = vtm.FarAddress{
			Segment: binary.BigEndian.Uint32(buf[off : off+4]),
			Offset:  binary.BigEndian.Uint32(buf[off+4 : off+8]),
		}
		off += 8
	}
	return h
}

// allocatedBlockHeader precedes every allocated block's user bytes so deallocate (and coalescing
// of adjacent siblings) knows its size without consulting the skip list (spec.md §3
// "Allocated-memory block header").
type allocatedBlockHeader struct {
	size uint32 // total block size, including this header and any alignment or split slack
}

func encodeAllocHeader(h allocatedBlockHeader) []byte {
	buf := make([]byte, allocHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.size)
	return buf
}

func decodeAllocHeader(buf []byte) allocatedBlockHeader {
	return allocatedBlockHeader{size: binary.BigEndian.Uint32(buf[0:4])}
}

// descriptorSize is the fixed, segment-0-resident root descriptor: the skip list's per-level head
// pointers plus its current top level.
const descriptorSize = 1 + maxLevel*8

type descriptor struct {
	topLevel uint8
	heads    [maxLevel]vtm.FarAddress
}

func encodeDescriptor(d descriptor) []byte {
	buf := make([]byte, descriptorSize)
	buf[0] = d.topLevel
	off := 1
	for i := 0; i < maxLevel; i++ {
		binary.BigEndian.PutUint32(buf[off:off+4], d.heads[i].Segment)
		binary.BigEndian.PutUint32(buf[off+4:off+8], d.heads[i].Offset)
		off += 8
	}
	return buf
}

func decodeDescriptor(buf []byte) descriptor {
	var d descriptor
	d.topLevel = buf[0]
	off := 1
	for i := 0; i < maxLevel; i++ {
		d.heads[i] = vtm.FarAddress{
			Segment: binary.BigEndian.Uint32(buf[off : off+4]),
			Offset:  binary.BigEndian.Uint32(buf[off+4 : off+8]),
		}
		off += 8
	}
	return d
}
