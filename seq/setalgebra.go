package seq

// UnionAll concatenates every input in order, duplicates included; ordered only if every input is
// ordered AND the caller also asserts the inputs are pre-sorted in a way that concatenation
// preserves order end-to-end, which in general it does not — so UnionAll always reports
// unordered (spec.md §4.9 union_all is concatenation, not a merge).
func UnionAll[T any](inputs ...Seq[T]) Seq[T] {
	return &unionAllSeq[T]{inputs: inputs}
}

type unionAllSeq[T any] struct {
	inputs []Seq[T]
	idx    int
}

func (u *unionAllSeq[T]) Start() {
	u.idx = 0
	for _, s := range u.inputs {
		s.Start()
	}
	u.skipExhausted()
}
func (u *unionAllSeq[T]) skipExhausted() {
	for u.idx < len(u.inputs) && !u.inputs[u.idx].InRange() {
		u.idx++
	}
}
func (u *unionAllSeq[T]) InRange() bool { return u.idx < len(u.inputs) }
func (u *unionAllSeq[T]) Current() T    { return u.inputs[u.idx].Current() }
func (u *unionAllSeq[T]) Next() {
	u.inputs[u.idx].Next()
	u.skipExhausted()
}
func (u *unionAllSeq[T]) Ordered() bool { return false }

// UnionMerge k-way merges already-ordered inputs under cmp, producing a single ordered sequence
// with duplicates retained (spec.md §4.9 union_merge). Every input must report Ordered() == true;
// violating that is a programmer error caught at Start via panic, mirroring
// OrderingFlatMap's contract.
func UnionMerge[T any](cmp Comparator[T], inputs ...Seq[T]) Seq[T] {
	return &unionMergeSeq[T]{cmp: cmp, inputs: inputs}
}

type unionMergeSeq[T any] struct {
	cmp    Comparator[T]
	inputs []Seq[T]
}

func (u *unionMergeSeq[T]) Start() {
	for _, s := range u.inputs {
		if !s.Ordered() {
			panic("seq: UnionMerge requires every input to be ordered")
		}
		s.Start()
	}
}
func (u *unionMergeSeq[T]) minIdx() int {
	best := -1
	for i, s := range u.inputs {
		if !s.InRange() {
			continue
		}
		if best == -1 || u.cmp(s.Current(), u.inputs[best].Current()) {
			best = i
		}
	}
	return best
}
func (u *unionMergeSeq[T]) InRange() bool { return u.minIdx() >= 0 }
func (u *unionMergeSeq[T]) Current() T    { return u.inputs[u.minIdx()].Current() }
func (u *unionMergeSeq[T]) Next() {
	i := u.minIdx()
	if i >= 0 {
		u.inputs[i].Next()
	}
}
func (u *unionMergeSeq[T]) Ordered() bool { return true }

// Diff yields a multiset difference: an element occurring k times in a and m times in b appears
// max(0, k-m) times in the output, preserving a's ordering tag (spec.md §4.9 diff). b is fully
// drained into memory once at Start; each element consumed from a removes at most one matching
// occurrence from the remaining pool, so excess occurrences on the left survive.
func Diff[T any](a, b Seq[T], cmp Comparator[T]) Seq[T] {
	return &diffSeq[T]{a: a, b: b, cmp: cmp}
}

type diffSeq[T any] struct {
	a, b     Seq[T]
	cmp      Comparator[T]
	pool     []T
}

func (d *diffSeq[T]) equal(x, y T) bool { return !d.cmp(x, y) && !d.cmp(y, x) }
func (d *diffSeq[T]) Start() {
	d.a.Start()
	d.b.Start()
	d.pool = Collect(d.b)
	d.advance()
}
func (d *diffSeq[T]) advance() {
	for d.a.InRange() {
		cur := d.a.Current()
		idx := -1
		for i, ex := range d.pool {
			if d.equal(cur, ex) {
				idx = i
				break
			}
		}
		if idx == -1 {
			return
		}
		d.pool = append(d.pool[:idx], d.pool[idx+1:]...)
		d.a.Next()
	}
}
func (d *diffSeq[T]) InRange() bool { return d.a.InRange() }
func (d *diffSeq[T]) Current() T    { return d.a.Current() }
func (d *diffSeq[T]) Next() {
	d.a.Next()
	d.advance()
}
func (d *diffSeq[T]) Ordered() bool { return d.a.Ordered() }

// Pair is the element type produced by Cartesian and Zip.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Cartesian yields every (a, b) combination, b varying fastest (spec.md §4.9 cartesian). Always
// unordered: no single comparator over Pair is implied by the inputs' own orderings.
func Cartesian[A, B any](a Seq[A], b Seq[B]) Seq[Pair[A, B]] {
	return &cartesianSeq[A, B]{a: a, bSrc: b}
}

type cartesianSeq[A, B any] struct {
	a        Seq[A]
	bSrc     Seq[B]
	bItems   []B
	aHasCur  bool
	bIdx     int
}

func (c *cartesianSeq[A, B]) Start() {
	c.bSrc.Start()
	c.bItems = Collect(c.bSrc)
	c.a.Start()
	c.bIdx = 0
	c.aHasCur = c.a.InRange()
	c.skipToValid()
}
func (c *cartesianSeq[A, B]) skipToValid() {
	for c.aHasCur && c.bIdx >= len(c.bItems) {
		c.a.Next()
		c.aHasCur = c.a.InRange()
		c.bIdx = 0
	}
}
func (c *cartesianSeq[A, B]) InRange() bool { return c.aHasCur && len(c.bItems) > 0 }
func (c *cartesianSeq[A, B]) Current() Pair[A, B] {
	return Pair[A, B]{First: c.a.Current(), Second: c.bItems[c.bIdx]}
}
func (c *cartesianSeq[A, B]) Next() {
	c.bIdx++
	c.skipToValid()
}
func (c *cartesianSeq[A, B]) Ordered() bool { return false }

// Zip pairs elements of a and b positionally, stopping at the shorter input (spec.md §4.9 zip).
func Zip[A, B any](a Seq[A], b Seq[B]) Seq[Pair[A, B]] {
	return &zipSeq[A, B]{a: a, b: b}
}

type zipSeq[A, B any] struct {
	a Seq[A]
	b Seq[B]
}

func (z *zipSeq[A, B]) Start()        { z.a.Start(); z.b.Start() }
func (z *zipSeq[A, B]) InRange() bool { return z.a.InRange() && z.b.InRange() }
func (z *zipSeq[A, B]) Current() Pair[A, B] {
	return Pair[A, B]{First: z.a.Current(), Second: z.b.Current()}
}
func (z *zipSeq[A, B]) Next()         { z.a.Next(); z.b.Next() }
func (z *zipSeq[A, B]) Ordered() bool { return z.a.Ordered() && z.b.Ordered() }

// ZipLongest pairs elements of a and b positionally through the longer input, filling the
// exhausted side with its zero value and reporting which sides were still present via ok flags
// (spec.md §4.9 zip_longest).
func ZipLongest[A, B any](a Seq[A], b Seq[B]) Seq[LongestPair[A, B]] {
	return &zipLongestSeq[A, B]{a: a, b: b}
}

// LongestPair is ZipLongest's element type: First/Second hold the zero value with the matching
// HasFirst/HasSecond false once one input is exhausted.
type LongestPair[A, B any] struct {
	First    A
	Second   B
	HasFirst bool
	HasSecond bool
}

type zipLongestSeq[A, B any] struct {
	a Seq[A]
	b Seq[B]
}

func (z *zipLongestSeq[A, B]) Start()        { z.a.Start(); z.b.Start() }
func (z *zipLongestSeq[A, B]) InRange() bool { return z.a.InRange() || z.b.InRange() }
func (z *zipLongestSeq[A, B]) Current() LongestPair[A, B] {
	var p LongestPair[A, B]
	if z.a.InRange() {
		p.First, p.HasFirst = z.a.Current(), true
	}
	if z.b.InRange() {
		p.Second, p.HasSecond = z.b.Current(), true
	}
	return p
}
func (z *zipLongestSeq[A, B]) Next() {
	if z.a.InRange() {
		z.a.Next()
	}
	if z.b.InRange() {
		z.b.Next()
	}
}
func (z *zipLongestSeq[A, B]) Ordered() bool { return z.a.Ordered() && z.b.Ordered() }
