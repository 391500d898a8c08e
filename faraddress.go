package vtm

import "fmt"

// FarAddress is a (segment, offset) pair: the sole persistent handle this engine ever writes to
// disk. Raw process-memory pointers are never serialized (spec.md §3, §9 "Pointer graphs ->
// arena + FarAddress"). It is totally ordered lexicographically by (Segment, Offset).
type FarAddress struct {
	Segment uint32
	Offset  uint32
}

// NilFarAddress is the reserved sentinel denoting "null" per spec.md §3.
var NilFarAddress = FarAddress{Segment: ^uint32(0), Offset: ^uint32(0)}

// IsNil reports whether a equals the reserved null sentinel.
func (a FarAddress) IsNil() bool {
	return a == NilFarAddress
}

// Compare orders FarAddresses lexicographically: Segment first, then Offset. Implements the same
// three-way shape as btree.Comparer (Compare(other) int) so sequence combinators built for
// ordered keys work unmodified over FarAddress-keyed sequences.
func (a FarAddress) Compare(other FarAddress) int {
	if a.Segment != other.Segment {
		if a.Segment < other.Segment {
			return -1
		}
		return 1
	}
	switch {
	case a.Offset < other.Offset:
		return -1
	case a.Offset > other.Offset:
		return 1
	default:
		return 0
	}
}

// String renders a FarAddress as "segment:offset", or "nil" for the sentinel.
func (a FarAddress) String() string {
	if a.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("%d:%d", a.Segment, a.Offset)
}

// Add returns a FarAddress in the same segment, offset n bytes further in. Callers must not
// produce an offset beyond the segment size; the fs package validates bounds on use.
func (a FarAddress) Add(n uint32) FarAddress {
	return FarAddress{Segment: a.Segment, Offset: a.Offset + n}
}
