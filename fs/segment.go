// Package fs implements the segmented, memory-mapped backing file: segment geometry, the base
// segment manager (C3), and the transactional segment manager with MVCC semantics (C4). It is
// the filesystem-facing layer the heap allocator and string manager build on, grounded on the
// teacher's fs package (fs/fileio.go, fs/direct_io.go, fs/registry.go) but rewritten around a
// single local backing file instead of hash-partitioned, replicated registry shards.
package fs

import (
	"encoding/binary"
	"fmt"

	"github.com/sharedcode/vtm"
)

// Magic is the 4-byte segment header signature, "mgtr" per spec.md §6.
var Magic = [4]byte{'m', 'g', 't', 'r'}

// HeaderSize is the fixed size in bytes of a SegmentHeader as persisted on disk.
const HeaderSize = 16

// SegmentHeader is the first bytes of every segment: {magic, segment_size, reserved}. Reserved
// bytes are zero-filled and unused, keeping the header's fixed size stable even if spec'd fields
// grow in number without growing in total size.
type SegmentHeader struct {
	Magic       [4]byte
	SegmentSize uint32
	Reserved    [8]byte
}

// Encode serializes the header into a HeaderSize-byte buffer using the writer host's native
// byte order (spec.md §6: "Byte order and alignment follow the writer host").
func (h SegmentHeader) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	copy(buf[0:4], h.Magic[:])
	binary.NativeEndian.PutUint32(buf[4:8], h.SegmentSize)
	copy(buf[8:16], h.Reserved[:])
	return buf
}

// DecodeSegmentHeader parses a HeaderSize-byte buffer into a SegmentHeader.
func DecodeSegmentHeader(buf []byte) (SegmentHeader, error) {
	if len(buf) < HeaderSize {
		return SegmentHeader{}, fmt.Errorf("segment header buffer too short: %d bytes", len(buf))
	}
	var h SegmentHeader
	copy(h.Magic[:], buf[0:4])
	h.SegmentSize = binary.NativeEndian.Uint32(buf[4:8])
	copy(h.Reserved[:], buf[8:16])
	return h, nil
}

// Validate checks the SegmentHeader invariant from spec.md §3: signature must equal Magic.
// Violation is fatal corruption, surfaced as an invalid_signature error at open.
func (h SegmentHeader) Validate() error {
	if h.Magic != Magic {
		return vtm.ErrInvalidSignature(fmt.Errorf("got signature %q, want %q", h.Magic[:], Magic[:]))
	}
	return nil
}

// NewSegmentHeader builds a header for a freshly zero-filled segment of the given size.
func NewSegmentHeader(segmentSize uint32) SegmentHeader {
	return SegmentHeader{Magic: Magic, SegmentSize: segmentSize}
}

// fileOffset returns the absolute byte offset within the backing file for a FarAddress, given
// the fixed segment size. The header occupies the first HeaderSize bytes of every segment, so
// arena offsets are measured from HeaderSize, not from the segment's start (spec.md §3: "Offsets
// are measured in bytes from the start of a segment" — the arena, i.e. "beyond its header" per
// the GLOSSARY, is what offsets into).
func fileOffset(addr vtm.FarAddress, segmentSize int64) int64 {
	return int64(addr.Segment)*segmentSize + int64(HeaderSize) + int64(addr.Offset)
}

// ArenaSize returns the usable, allocatable byte count of a segment of the given total size.
func ArenaSize(segmentSize int64) int64 {
	return segmentSize - HeaderSize
}
