package vtm

// Heuristic contributes a byte-size suggestion toward a segment's size. SegmentOptions sums all
// configured heuristics and compares the total against an explicit SegmentSize, taking the max,
// per spec.md §6: "The created segment size is the maximum of explicit segment_size and the sum
// of heuristics." Grounded on the teacher's StoreOptions/StoreCacheConfig struct-building style
// (store_options.go), generalized from per-store cache knobs to per-file segment sizing.
type Heuristic interface {
	bytes() int64
}

// ArrayHeuristic estimates the space needed to hold count elements of elemSize bytes each —
// spec.md §6's "per-type arrays" heuristic.
type ArrayHeuristic struct {
	ElemSize int64
	Count    int64
}

func (h ArrayHeuristic) bytes() int64 { return h.ElemSize * h.Count }

// MixHeuristic sums several heuristics together — spec.md §6's "assorted mixes".
type MixHeuristic struct {
	Of []Heuristic
}

func (h MixHeuristic) bytes() int64 {
	var total int64
	for _, sub := range h.Of {
		total += sub.bytes()
	}
	return total
}

// PercentAddOn inflates a base heuristic's estimate by a percentage — spec.md §6's "percentage
// add-ons", used to leave headroom (e.g. fragmentation slack) above a raw size estimate.
type PercentAddOn struct {
	Base    Heuristic
	Percent float64
}

func (h PercentAddOn) bytes() int64 {
	base := h.Base.bytes()
	return base + int64(float64(base)*h.Percent/100.0)
}

// Alignment is the byte boundary every heap allocation is rounded up to within a segment.
const Alignment = 8

// DefaultSegmentSize is used when neither SegmentSize nor HeuristicSize narrows the choice.
const DefaultSegmentSize int64 = 16 * 1024 * 1024

// SegmentOptions configures how a backing file's fixed segment size is chosen at creation time.
// fs.CreateNew calls Resolve on it once; fs.Open takes no options and reads the segment size from
// the file. Nothing freezes it: setters called after Resolve change the result of later calls.
type SegmentOptions struct {
	explicitSize int64
	heuristics   []Heuristic
}

// NewSegmentOptions returns an empty SegmentOptions; call SegmentSize and/or HeuristicSize to
// configure it, then Resolve (or pass it directly to fs.CreateNew) to compute the final size.
func NewSegmentOptions() *SegmentOptions {
	return &SegmentOptions{}
}

// SegmentSize sets an explicit lower bound on the segment size.
func (o *SegmentOptions) SegmentSize(bytes int64) *SegmentOptions {
	o.explicitSize = bytes
	return o
}

// HeuristicSize appends sizing hints; Resolve sums them and compares against SegmentSize.
func (o *SegmentOptions) HeuristicSize(heuristics ...Heuristic) *SegmentOptions {
	o.heuristics = append(o.heuristics, heuristics...)
	return o
}

// Resolve computes the final segment size: max(explicit SegmentSize, sum of heuristics), rounded
// up to Alignment, falling back to DefaultSegmentSize if nothing was configured.
func (o *SegmentOptions) Resolve() int64 {
	var heuristicTotal int64
	for _, h := range o.heuristics {
		heuristicTotal += h.bytes()
	}
	size := o.explicitSize
	if heuristicTotal > size {
		size = heuristicTotal
	}
	if size <= 0 {
		size = DefaultSegmentSize
	}
	if rem := size % Alignment; rem != 0 {
		size += Alignment - rem
	}
	return size
}

// AlignUp rounds n up to the next multiple of Alignment, matching the heap allocator's alignment
// constant from spec.md §4.4.
func AlignUp(n int64) int64 {
	if rem := n % Alignment; rem != 0 {
		return n + (Alignment - rem)
	}
	return n
}
