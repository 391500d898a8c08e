package fs

import "github.com/sharedcode/vtm"

// Slot is a topology-registered subsystem with a persisted descriptor in segment 0 (spec.md §4.6,
// GLOSSARY "Slot"). Concrete slots (heap allocator, string manager) live in other packages and
// are registered into a Topology without this package needing to import them, avoiding an
// fs<->heap import cycle.
type Slot interface {
	// Name identifies the slot for diagnostics and error messages.
	Name() string
	// HasResidence0 reports whether this slot requests space in segment 0. Only slots answering
	// true here are offered a byte_size(segment0) allocation there (spec.md §4.1).
	HasResidence0() bool
	// ByteSize returns the number of bytes this slot needs reserved in segment 0.
	ByteSize() int64
	// OnNewSegment0 is called once, at file creation, with the slot's reserved byte range in
	// segment 0, so the slot can initialize its on-disk descriptor.
	OnNewSegment0(addr vtm.FarAddress) error
	// Open is called once, at file open, with the slot's byte range in segment 0, so the slot can
	// rebind its in-memory state to the existing on-disk descriptor.
	Open(addr vtm.FarAddress) error
}

// Topology is the compile-time-ish ordered list of slots determining segment 0's layout
// (spec.md §4.6, C8). It is a typed struct-of-slices in spirit but implemented as an ordered
// slice here so the composing application can register an arbitrary, application-chosen slot
// set; slot<T>() is approximated by SlotNamed plus the generic SlotOf[T] helper below, both O(1).
type Topology struct {
	slots []Slot
	byName map[string]Slot
}

// NewTopology builds a Topology from an ordered list of slots. Order determines the deterministic
// offsets each slot is reserved at within segment 0.
func NewTopology(slots ...Slot) *Topology {
	t := &Topology{slots: slots, byName: make(map[string]Slot, len(slots))}
	for _, s := range slots {
		t.byName[s.Name()] = s
	}
	return t
}

// Slots returns the ordered slot list.
func (t *Topology) Slots() []Slot { return t.slots }

// SlotNamed returns the registered slot with the given name, or nil if absent.
func (t *Topology) SlotNamed(name string) Slot {
	return t.byName[name]
}

// SlotOf is a generic helper returning a registered slot already asserted to type T, mirroring the
// teacher's compile-time slot<SlotType>() accessor (spec.md §4.6) via a name lookup plus a type
// assertion instead of a true compile-time type list — both satisfy the O(1) contract.
func SlotOf[T Slot](t *Topology, name string) (T, bool) {
	var zero T
	s := t.SlotNamed(name)
	if s == nil {
		return zero, false
	}
	typed, ok := s.(T)
	return typed, ok
}
