package fs

import "sort"

// shadowPage is an in-memory copy-on-write copy of a byte range, scoped to one transaction and
// one segment. Overlapping writes within the same transaction merge into a single, ever-growing
// shadow representing the latest bytes for every address it covers (spec.md §3 "Shadow page").
type shadowPage struct {
	rng  byteRange
	data []byte // len == rng.end - rng.start
}

// shadowSet tracks a transaction's shadow pages, one list per segment (non-overlapping ranges are
// allowed per segment; overlapping ones are merged on write).
type shadowSet struct {
	bySeg map[uint32][]*shadowPage
}

func newShadowSet() *shadowSet {
	return &shadowSet{bySeg: make(map[uint32][]*shadowPage)}
}

// find returns the shadow page covering [start,end) in segment seg, if the full range is already
// shadowed by a single merged page.
func (s *shadowSet) find(seg uint32, start, end uint32) *shadowPage {
	for _, p := range s.bySeg[seg] {
		if p.rng.start <= start && end <= p.rng.end {
			return p
		}
	}
	return nil
}

// touch returns the (possibly newly created or extended) shadow page fully covering [start,end)
// in segment seg, invoking readOriginal(lo,hi) to seed bytes for any newly-covered sub-range when
// preserveOriginal is true (WriteHint update_c); when false (new_c), newly-covered bytes are left
// zeroed, since the caller is about to overwrite them in full.
func (s *shadowSet) touch(seg uint32, start, end uint32, preserveOriginal bool, readOriginal func(lo, hi uint32) ([]byte, error)) (*shadowPage, error) {
	pages := s.bySeg[seg]
	merged := byteRange{start: start, end: end}
	var toMerge []*shadowPage
	var kept []*shadowPage
	for _, p := range pages {
		if p.rng.overlaps(merged) || p.rng.start == merged.end || merged.start == p.rng.end {
			toMerge = append(toMerge, p)
			if p.rng.start < merged.start {
				merged.start = p.rng.start
			}
			if p.rng.end > merged.end {
				merged.end = p.rng.end
			}
			continue
		}
		kept = append(kept, p)
	}

	newData := make([]byte, merged.end-merged.start)
	if preserveOriginal {
		// Seed the whole merged span from the base manager first, then overlay any bytes already
		// captured by the pages being merged (those are the latest-written bytes for that span).
		base, err := readOriginal(merged.start, merged.end)
		if err != nil {
			return nil, err
		}
		copy(newData, base)
	}
	for _, p := range toMerge {
		copy(newData[p.rng.start-merged.start:], p.data)
	}

	np := &shadowPage{rng: merged, data: newData}
	kept = append(kept, np)
	s.bySeg[seg] = kept
	return np, nil
}

// forEach iterates every shadow page across every segment, in commit order (segment ascending,
// then by range start), for flushing to the base manager on commit.
func (s *shadowSet) forEach(f func(seg uint32, p *shadowPage)) {
	segs := make([]uint32, 0, len(s.bySeg))
	for seg := range s.bySeg {
		segs = append(segs, seg)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i] < segs[j] })
	for _, seg := range segs {
		pages := append([]*shadowPage(nil), s.bySeg[seg]...)
		sort.Slice(pages, func(i, j int) bool { return pages[i].rng.start < pages[j].rng.start })
		for _, p := range pages {
			f(seg, p)
		}
	}
}

func (s *shadowSet) clear() {
	s.bySeg = make(map[uint32][]*shadowPage)
}
