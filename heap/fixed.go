package heap

import (
	"encoding/binary"

	"github.com/sharedcode/vtm"
	"github.com/sharedcode/vtm/fs"
)

// fixedDescriptorSize holds one FarAddress: the head of the cross-page free chain.
const fixedDescriptorSize = 8

// defaultFixedPageSlots is how many elemSize-sized records a freshly allocated page holds.
const defaultFixedPageSlots = 64

// FixedPool is the "fixed-size fast path" sister slot (spec.md §4.4): O(1) allocation of
// same-sized records from pages drawn from the general Allocator, maintaining one free chain per
// size class that spans every page ever allocated for that class.
type FixedPool struct {
	name      string
	elemSize  int64
	heap      *Allocator
	descrAddr vtm.FarAddress
}

// NewFixedPool returns a fixed-size allocator for records of elemSize bytes, drawing fresh pages
// from heap. Register it as its own Topology slot distinct from heap.
func NewFixedPool(name string, elemSize int64, heap *Allocator) *FixedPool {
	return &FixedPool{name: name, elemSize: elemSize, heap: heap}
}

func (p *FixedPool) Name() string        { return p.name }
func (p *FixedPool) HasResidence0() bool { return true }
func (p *FixedPool) ByteSize() int64     { return fixedDescriptorSize }

func (p *FixedPool) OnNewSegment0(addr vtm.FarAddress) error {
	p.descrAddr = addr
	return nil
}

func (p *FixedPool) Open(addr vtm.FarAddress) error {
	p.descrAddr = addr
	return nil
}

// InitHead writes the free chain's NilFarAddress sentinel directly through the heap allocator's
// base manager, bypassing the transaction manager. A freshly zero-filled segment 0 would otherwise
// decode the head as FarAddress{0,0}, a real-looking address rather than vtm.NilFarAddress, so the
// first Allocate would misread whatever lives at segment 0 offset 0 as a chained free slot. Call
// this exactly once, right after the pool's backing file is created — not on the Open path, where
// the head is already correctly persisted.
func (p *FixedPool) InitHead() error {
	buf, err := p.heap.base.WritableBlock(p.descrAddr, fixedDescriptorSize, fs.NewHint)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf[0:4], vtm.NilFarAddress.Segment)
	binary.BigEndian.PutUint32(buf[4:8], vtm.NilFarAddress.Offset)
	return nil
}

func (p *FixedPool) readHead(txn *fs.Transaction) (vtm.FarAddress, error) {
	buf, err := txn.ReadonlyBlock(p.descrAddr, fixedDescriptorSize)
	if err != nil {
		return vtm.NilFarAddress, err
	}
	return vtm.FarAddress{
		Segment: binary.BigEndian.Uint32(buf[0:4]),
		Offset:  binary.BigEndian.Uint32(buf[4:8]),
	}, nil
}

func (p *FixedPool) writeHead(txn *fs.Transaction, addr vtm.FarAddress) error {
	buf, err := txn.WritableBlock(p.descrAddr, fixedDescriptorSize, fs.UpdateHint)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf[0:4], addr.Segment)
	binary.BigEndian.PutUint32(buf[4:8], addr.Offset)
	return nil
}

func (p *FixedPool) readNext(txn *fs.Transaction, slot vtm.FarAddress) (vtm.FarAddress, error) {
	buf, err := txn.ReadonlyBlock(slot, 8)
	if err != nil {
		return vtm.NilFarAddress, err
	}
	return vtm.FarAddress{
		Segment: binary.BigEndian.Uint32(buf[0:4]),
		Offset:  binary.BigEndian.Uint32(buf[4:8]),
	}, nil
}

func (p *FixedPool) writeNext(txn *fs.Transaction, slot vtm.FarAddress, next vtm.FarAddress, hint fs.WriteHint) error {
	buf, err := txn.WritableBlock(slot, 8, hint)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf[0:4], next.Segment)
	binary.BigEndian.PutUint32(buf[4:8], next.Offset)
	return nil
}

// Allocate pops one record off the free chain, growing a new page through the general heap
// allocator when the chain is empty.
func (p *FixedPool) Allocate(txn *fs.Transaction) (vtm.FarAddress, error) {
	head, err := p.readHead(txn)
	if err != nil {
		return vtm.NilFarAddress, err
	}
	if head.IsNil() {
		if err := p.growPage(txn); err != nil {
			return vtm.NilFarAddress, err
		}
		head, err = p.readHead(txn)
		if err != nil {
			return vtm.NilFarAddress, err
		}
	}
	next, err := p.readNext(txn, head)
	if err != nil {
		return vtm.NilFarAddress, err
	}
	if err := p.writeHead(txn, next); err != nil {
		return vtm.NilFarAddress, err
	}
	return head, nil
}

// Deallocate pushes slot back onto the free chain.
func (p *FixedPool) Deallocate(txn *fs.Transaction, slot vtm.FarAddress) error {
	head, err := p.readHead(txn)
	if err != nil {
		return err
	}
	if err := p.writeNext(txn, slot, head, fs.UpdateHint); err != nil {
		return err
	}
	return p.writeHead(txn, slot)
}

// growPage allocates one fresh page through the general heap allocator, carves it into
// defaultFixedPageSlots records, chains them together, and links the chain onto the pool's head.
func (p *FixedPool) growPage(txn *fs.Transaction) error {
	pageBytes := p.elemSize * defaultFixedPageSlots
	pageAddr, err := p.heap.Allocate(txn, pageBytes)
	if err != nil {
		return err
	}
	head, err := p.readHead(txn)
	if err != nil {
		return err
	}
	for i := defaultFixedPageSlots - 1; i >= 0; i-- {
		slot := pageAddr.Add(uint32(int64(i) * p.elemSize))
		if err := p.writeNext(txn, slot, head, fs.NewHint); err != nil {
			return err
		}
		head = slot
	}
	return p.writeHead(txn, head)
}
