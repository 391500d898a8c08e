package heap

import (
	"encoding"
	"fmt"
	"math/rand"

	"github.com/sharedcode/vtm"
	"github.com/sharedcode/vtm/fs"
)

// minFreeSpan is the smallest span worth leaving behind as a standalone free block after a split;
// anything smaller is handed out whole rather than fragmenting the heap with a sliver no
// allocation could ever use (it could not even hold a freeBlockHeader of its own).
const minFreeSpan = freeBlockHeaderSize

// Allocator is the heap allocator slot (C6): a best-fit allocator over a skip-list-ordered free
// list, keyed by (size, address) so equal-sized spans still sort deterministically. It implements
// fs.Slot so a Topology can reserve its root descriptor in segment 0.
type Allocator struct {
	name      string
	base      *fs.BaseManager
	descrAddr vtm.FarAddress
}

// NewAllocator returns an unopened Allocator slot named name. Register it with fs.NewTopology
// before creating or opening a backing file.
func NewAllocator(name string, base *fs.BaseManager) *Allocator {
	return &Allocator{name: name, base: base}
}

// Bind attaches base after construction, for the common two-phase wiring where the allocator must
// be registered into a Topology before the BaseManager it will eventually belong to exists yet
// (fs.CreateNew/fs.Open take the topology as an argument). Call Bind immediately after CreateNew
// or Open returns, before issuing any transaction against this allocator.
func (a *Allocator) Bind(base *fs.BaseManager) { a.base = base }

// InitDescriptor writes a freshly zeroed descriptor's NilFarAddress sentinels directly through the
// base manager, bypassing the transaction manager: a zero-filled segment 0 (what CreateSegment
// actually lays down) decodes every head pointer as FarAddress{0,0}, a real-looking address rather
// than vtm.NilFarAddress (all bits set), so locate would wrongly chase segment 0 offset 0 as the
// skip list's first node. Call this exactly once, right after Bind, on the CreateNew path only —
// an opened, pre-existing file already has a correctly initialized descriptor on disk.
func (a *Allocator) InitDescriptor() error {
	var d descriptor
	for lvl := range d.heads {
		d.heads[lvl] = vtm.NilFarAddress
	}
	buf, err := a.base.WritableBlock(a.descrAddr, descriptorSize, fs.NewHint)
	if err != nil {
		return err
	}
	copy(buf, encodeDescriptor(d))
	return nil
}

func (a *Allocator) Name() string        { return a.name }
func (a *Allocator) HasResidence0() bool { return true }
func (a *Allocator) ByteSize() int64     { return descriptorSize }

func (a *Allocator) OnNewSegment0(addr vtm.FarAddress) error {
	a.descrAddr = addr
	return nil
}

func (a *Allocator) Open(addr vtm.FarAddress) error {
	a.descrAddr = addr
	return nil
}

func (a *Allocator) readDescriptor(txn *fs.Transaction) (descriptor, error) {
	buf, err := txn.ReadonlyBlock(a.descrAddr, descriptorSize)
	if err != nil {
		return descriptor{}, err
	}
	return decodeDescriptor(buf), nil
}

func (a *Allocator) writeDescriptor(txn *fs.Transaction, d descriptor) error {
	buf, err := txn.WritableBlock(a.descrAddr, descriptorSize, fs.UpdateHint)
	if err != nil {
		return err
	}
	copy(buf, encodeDescriptor(d))
	return nil
}

func (a *Allocator) readFree(txn *fs.Transaction, addr vtm.FarAddress) (freeBlockHeader, error) {
	buf, err := txn.ReadonlyBlock(addr, freeBlockHeaderSize)
	if err != nil {
		return freeBlockHeader{}, err
	}
	return decodeFreeBlock(buf), nil
}

func (a *Allocator) writeFree(txn *fs.Transaction, addr vtm.FarAddress, h freeBlockHeader, hint fs.WriteHint) error {
	buf, err := txn.WritableBlock(addr, freeBlockHeaderSize, hint)
	if err != nil {
		return err
	}
	copy(buf, encodeFreeBlock(h))
	return nil
}

// forwardAt returns node's forward pointer at lvl, where a Nil node address means "the virtual
// head node", i.e. d.heads[lvl].
func (a *Allocator) forwardAt(txn *fs.Transaction, node vtm.FarAddress, lvl int, d descriptor) (vtm.FarAddress, error) {
	if node.IsNil() {
		return d.heads[lvl], nil
	}
	h, err := a.readFree(txn, node)
	if err != nil {
		return vtm.NilFarAddress, err
	}
	return h.forward[lvl], nil
}

// setForwardAt sets node's forward pointer at lvl, writing through to the descriptor's head array
// when node is Nil (the virtual head). d is mutated in place for head updates; callers persist it
// via writeDescriptor once all level updates for an operation are applied.
func (a *Allocator) setForwardAt(txn *fs.Transaction, node vtm.FarAddress, lvl int, value vtm.FarAddress, d *descriptor) error {
	if node.IsNil() {
		d.heads[lvl] = value
		return nil
	}
	h, err := a.readFree(txn, node)
	if err != nil {
		return err
	}
	h.forward[lvl] = value
	return a.writeFree(txn, node, h, fs.UpdateHint)
}

// randomLevel picks a skip-list level using a geometric distribution with p=1/2, per spec.md
// §9's "any p in (0,1) yielding expected O(log N) is acceptable".
func randomLevel() uint8 {
	lvl := uint8(1)
	for lvl < maxLevel && rand.Intn(2) == 0 {
		lvl++
	}
	return lvl
}

// locate walks the skip list from the top level down, returning, at every level, the address of
// the last node strictly less than the search key. When exact is false the key is size alone
// (used for best-fit: the first node not-less-than size is the best fit). When exact is true the
// key is (size, tie) — used to locate the exact predecessors of a node about to be inserted or
// removed, which may coexist with other same-sized nodes.
func (a *Allocator) locate(txn *fs.Transaction, d descriptor, size uint32, tie vtm.FarAddress, exact bool) (update [maxLevel]vtm.FarAddress, candidate vtm.FarAddress, err error) {
	cur := vtm.NilFarAddress
	for lvl := maxLevel - 1; lvl >= 0; lvl-- {
		for {
			next, ferr := a.forwardAt(txn, cur, lvl, d)
			if ferr != nil {
				return update, vtm.NilFarAddress, ferr
			}
			if next.IsNil() {
				break
			}
			nh, rerr := a.readFree(txn, next)
			if rerr != nil {
				return update, vtm.NilFarAddress, rerr
			}
			less := nh.size < size
			if exact && nh.size == size {
				less = next.Compare(tie) < 0
			}
			if !less {
				break
			}
			cur = next
		}
		update[lvl] = cur
	}
	candidate, err = a.forwardAt(txn, cur, 0, d)
	return update, candidate, err
}

// insert links a free span of size bytes at addr into the skip list.
func (a *Allocator) insert(txn *fs.Transaction, d *descriptor, addr vtm.FarAddress, size uint32) error {
	level := randomLevel()
	update, _, err := a.locate(txn, *d, size, addr, true)
	if err != nil {
		return err
	}
	if int(level) > int(d.topLevel) {
		for lvl := int(d.topLevel); lvl < int(level); lvl++ {
			update[lvl] = vtm.NilFarAddress
		}
		d.topLevel = level
	}

	var node freeBlockHeader
	node.size = size
	node.level = level
	for lvl := 0; lvl < int(level); lvl++ {
		next, err := a.forwardAt(txn, update[lvl], lvl, *d)
		if err != nil {
			return err
		}
		node.forward[lvl] = next
	}
	if err := a.writeFree(txn, addr, node, fs.NewHint); err != nil {
		return err
	}
	for lvl := 0; lvl < int(level); lvl++ {
		if err := a.setForwardAt(txn, update[lvl], lvl, addr, d); err != nil {
			return err
		}
	}
	return a.writeDescriptor(txn, *d)
}

// remove unlinks the free span at addr (whose header has already been read as hdr) from the skip
// list.
func (a *Allocator) remove(txn *fs.Transaction, d *descriptor, addr vtm.FarAddress, hdr freeBlockHeader) error {
	update, candidate, err := a.locate(txn, *d, hdr.size, addr, true)
	if err != nil {
		return err
	}
	if candidate != addr {
		return vtm.ErrInvalidBlock(fmt.Errorf("heap: free span at %s not found in skip list", addr))
	}
	for lvl := 0; lvl < int(hdr.level); lvl++ {
		if err := a.setForwardAt(txn, update[lvl], lvl, hdr.forward[lvl], d); err != nil {
			return err
		}
	}
	for d.topLevel > 1 && d.heads[d.topLevel-1].IsNil() {
		d.topLevel--
	}
	return a.writeDescriptor(txn, *d)
}

// Allocate reserves nbytes (aligned to vtm.Alignment) and returns a stable FarAddress to the
// user-visible region, best-fit searching the skip list and growing a new segment when no
// existing span is large enough (spec.md §4.4).
func (a *Allocator) Allocate(txn *fs.Transaction, nbytes int64) (vtm.FarAddress, error) {
	needed := uint32(vtm.AlignUp(nbytes)) + allocHeaderSize
	// Every block must be able to hold a freeBlockHeader once it is deallocated.
	if needed < minFreeSpan {
		needed = minFreeSpan
	}
	for attempt := 0; attempt < 2; attempt++ {
		d, err := a.readDescriptor(txn)
		if err != nil {
			return vtm.NilFarAddress, err
		}
		_, candidate, err := a.locate(txn, d, needed, vtm.NilFarAddress, false)
		if err != nil {
			return vtm.NilFarAddress, err
		}
		if candidate.IsNil() {
			if attempt > 0 {
				return vtm.NilFarAddress, vtm.ErrNoMemory(fmt.Errorf("heap: no free span of %d bytes even after growing", needed))
			}
			if err := a.growSegment(txn, &d); err != nil {
				return vtm.NilFarAddress, err
			}
			continue
		}

		hdr, err := a.readFree(txn, candidate)
		if err != nil {
			return vtm.NilFarAddress, err
		}
		if err := a.remove(txn, &d, candidate, hdr); err != nil {
			return vtm.NilFarAddress, err
		}

		remainder := hdr.size - needed
		allocSize := hdr.size
		if remainder >= minFreeSpan {
			allocSize = needed
			tailAddr := candidate.Add(needed)
			if err := a.insert(txn, &d, tailAddr, remainder); err != nil {
				return vtm.NilFarAddress, err
			}
		}

		if err := a.writeAllocHeader(txn, candidate, allocatedBlockHeader{size: allocSize}); err != nil {
			return vtm.NilFarAddress, err
		}
		return candidate.Add(allocHeaderSize), nil
	}
	return vtm.NilFarAddress, vtm.ErrNoMemory(fmt.Errorf("heap: allocation of %d bytes failed", nbytes))
}

func (a *Allocator) writeAllocHeader(txn *fs.Transaction, addr vtm.FarAddress, h allocatedBlockHeader) error {
	buf, err := txn.WritableBlock(addr, allocHeaderSize, fs.NewHint)
	if err != nil {
		return err
	}
	copy(buf, encodeAllocHeader(h))
	return nil
}

// growSegment asks the base manager for a fresh segment and links its whole arena into the skip
// list as one giant free span (spec.md §4.4 "initialize it as one giant free span, retry").
func (a *Allocator) growSegment(txn *fs.Transaction, d *descriptor) error {
	idx, err := a.base.SegmentCount()
	if err != nil {
		return err
	}
	if err := a.base.EnsureSegment(idx); err != nil {
		return err
	}
	arena := uint32(fs.ArenaSize(a.base.SegmentSize()))
	return a.insert(txn, d, vtm.FarAddress{Segment: idx, Offset: 0}, arena)
}

// Deallocate frees the block at addr, coalescing with any immediately adjacent free siblings in
// the same segment before reinserting the merged span (spec.md §4.4).
func (a *Allocator) Deallocate(txn *fs.Transaction, addr vtm.FarAddress) error {
	headerAddr := vtm.FarAddress{Segment: addr.Segment, Offset: addr.Offset - allocHeaderSize}
	abuf, err := txn.ReadonlyBlock(headerAddr, allocHeaderSize)
	if err != nil {
		return err
	}
	ah := decodeAllocHeader(abuf)

	d, err := a.readDescriptor(txn)
	if err != nil {
		return err
	}

	start := headerAddr
	size := ah.size

	left, right, lh, rh, err := a.findAdjacent(txn, d, start, size)
	if err != nil {
		return err
	}
	if !left.IsNil() {
		if err := a.remove(txn, &d, left, lh); err != nil {
			return err
		}
		start = left
		size += lh.size
	}
	if !right.IsNil() {
		if err := a.remove(txn, &d, right, rh); err != nil {
			return err
		}
		size += rh.size
	}
	return a.insert(txn, &d, start, size)
}

// findAdjacent scans every free span in start.Segment (via the skip list's bottom level, which
// links every node) for one immediately preceding or following [start, start+size).
func (a *Allocator) findAdjacent(txn *fs.Transaction, d descriptor, start vtm.FarAddress, size uint32) (left, right vtm.FarAddress, leftHdr, rightHdr freeBlockHeader, err error) {
	left, right = vtm.NilFarAddress, vtm.NilFarAddress
	cur := d.heads[0]
	for !cur.IsNil() {
		h, rerr := a.readFree(txn, cur)
		if rerr != nil {
			return left, right, leftHdr, rightHdr, rerr
		}
		if cur.Segment == start.Segment {
			if cur.Offset+h.size == start.Offset {
				left, leftHdr = cur, h
			}
			if start.Offset+size == cur.Offset {
				right, rightHdr = cur, h
			}
		}
		cur = h.forward[0]
	}
	return left, right, leftHdr, rightHdr, nil
}

// Available sums the sizes of every free span in segment idx, for diagnostics (spec.md §4.4).
func (a *Allocator) Available(txn *fs.Transaction, idx uint32) (int64, error) {
	d, err := a.readDescriptor(txn)
	if err != nil {
		return 0, err
	}
	var total int64
	cur := d.heads[0]
	for !cur.IsNil() {
		h, err := a.readFree(txn, cur)
		if err != nil {
			return 0, err
		}
		if cur.Segment == idx {
			total += int64(h.size)
		}
		cur = h.forward[0]
	}
	return total, nil
}

// CheckIntegrity runs the heap invariants from spec.md §8 (HEAP-3: no two free spans overlap or
// sit immediately adjacent) and returns false plus a diagnostic list on any violation: when verbose
// is false it stops at the first violation found; when verbose is true it reports every violation
// in every segment.
func (a *Allocator) CheckIntegrity(txn *fs.Transaction, verbose bool) (bool, []string) {
	d, err := a.readDescriptor(txn)
	if err != nil {
		return false, []string{err.Error()}
	}

	type span struct {
		start, end uint32
	}
	bySeg := make(map[uint32][]span)
	cur := d.heads[0]
	for !cur.IsNil() {
		h, err := a.readFree(txn, cur)
		if err != nil {
			return false, []string{err.Error()}
		}
		bySeg[cur.Segment] = append(bySeg[cur.Segment], span{cur.Offset, cur.Offset + h.size})
		cur = h.forward[0]
	}

	ok := true
	var notes []string
	for seg, spans := range bySeg {
		for i := 0; i < len(spans); i++ {
			for j := i + 1; j < len(spans); j++ {
				a, b := spans[i], spans[j]
				if a.start < b.end && b.start < a.end {
					ok = false
					notes = append(notes, fmt.Sprintf("segment %d: free spans [%d,%d) and [%d,%d) overlap", seg, a.start, a.end, b.start, b.end))
				} else if a.end == b.start || b.end == a.start {
					ok = false
					notes = append(notes, fmt.Sprintf("segment %d: free spans [%d,%d) and [%d,%d) are adjacent and should have been coalesced", seg, a.start, a.end, b.start, b.end))
				}
				if !ok && !verbose {
					return ok, notes
				}
			}
		}
	}
	return ok, notes
}

// binaryCodec constrains MakeNew/MakeArray element types: Go has no variadic-constructor
// templates, so in-place construction is expressed as marshal-to-bytes into a fixed-size
// allocation, using the standard encoding.BinaryMarshaler rather than a bespoke interface.
// Reading a value back (e.g. via encoding.BinaryUnmarshaler) is left to the caller.
type binaryCodec interface {
	encoding.BinaryMarshaler
}

// MakeNew allocates room for one T and encodes value into it, returning the new FarAddress
// (spec.md §4.4 make_new<T>).
func MakeNew[T binaryCodec](a *Allocator, txn *fs.Transaction, value T) (vtm.FarAddress, error) {
	data, err := value.MarshalBinary()
	if err != nil {
		return vtm.NilFarAddress, err
	}
	addr, err := a.Allocate(txn, int64(len(data)))
	if err != nil {
		return vtm.NilFarAddress, err
	}
	buf, err := txn.WritableBlock(addr, len(data), fs.NewHint)
	if err != nil {
		return vtm.NilFarAddress, err
	}
	copy(buf, data)
	return addr, nil
}

// MakeArray allocates room for n copies of T, encoding each with encode, and returns the base
// FarAddress of the contiguous array (spec.md §4.4 make_array<T>). Every element must encode to
// the same number of bytes (elemSize) so addr.Add(uint32(i*elemSize)) locates element i.
func MakeArray[T binaryCodec](a *Allocator, txn *fs.Transaction, elemSize int64, values []T) (vtm.FarAddress, error) {
	addr, err := a.Allocate(txn, elemSize*int64(len(values)))
	if err != nil {
		return vtm.NilFarAddress, err
	}
	for i, v := range values {
		data, err := v.MarshalBinary()
		if err != nil {
			return vtm.NilFarAddress, err
		}
		if int64(len(data)) != elemSize {
			return vtm.NilFarAddress, vtm.ErrInvalidBlock(fmt.Errorf("heap: element %d encoded to %d bytes, want %d", i, len(data), elemSize))
		}
		buf, err := txn.WritableBlock(addr.Add(uint32(int64(i)*elemSize)), int(elemSize), fs.NewHint)
		if err != nil {
			return vtm.NilFarAddress, err
		}
		copy(buf, data)
	}
	return addr, nil
}
