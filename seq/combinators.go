package seq

// Filter drops elements for which pred is false, preserving the source's ordering tag (spec.md
// §4.8 filter).
func Filter[T any](src Seq[T], pred func(T) bool) Seq[T] {
	return &filterSeq[T]{src: src, pred: pred}
}

type filterSeq[T any] struct {
	src  Seq[T]
	pred func(T) bool
}

func (f *filterSeq[T]) Start() {
	f.src.Start()
	f.advanceToMatch()
}
func (f *filterSeq[T]) advanceToMatch() {
	for f.src.InRange() && !f.pred(f.src.Current()) {
		f.src.Next()
	}
}
func (f *filterSeq[T]) InRange() bool { return f.src.InRange() }
func (f *filterSeq[T]) Current() T    { return f.src.Current() }
func (f *filterSeq[T]) Next() {
	f.src.Next()
	f.advanceToMatch()
}
func (f *filterSeq[T]) Ordered() bool { return f.src.Ordered() }

// Map applies f elementwise. Output ordering is false unless keepOrder is true, per spec.md §4.8
// map's "keep_order hint preserves ordering (implementer promise)" — the caller asserts f is
// monotonic under the relevant comparator.
func Map[T, U any](src Seq[T], f func(T) U, keepOrder bool) Seq[U] {
	return &mapSeq[T, U]{src: src, f: f, keepOrder: keepOrder}
}

type mapSeq[T, U any] struct {
	src       Seq[T]
	f         func(T) U
	keepOrder bool
}

func (m *mapSeq[T, U]) Start()        { m.src.Start() }
func (m *mapSeq[T, U]) InRange() bool { return m.src.InRange() }
func (m *mapSeq[T, U]) Current() U    { return m.f(m.src.Current()) }
func (m *mapSeq[T, U]) Next()         { m.src.Next() }
func (m *mapSeq[T, U]) Ordered() bool { return m.keepOrder && m.src.Ordered() }

// Maf (map-and-filter) runs f(in) -> (out, keep) in a single pass, yielding out when keep is true
// (spec.md §4.8 maf/keep_order_maf). keepOrder mirrors Map's hint.
func Maf[T, U any](src Seq[T], f func(T) (U, bool), keepOrder bool) Seq[U] {
	return &mafSeq[T, U]{src: src, f: f, keepOrder: keepOrder}
}

type mafSeq[T, U any] struct {
	src       Seq[T]
	f         func(T) (U, bool)
	keepOrder bool
	cur       U
	ok        bool
}

func (m *mafSeq[T, U]) Start() {
	m.src.Start()
	m.pull()
}
func (m *mafSeq[T, U]) pull() {
	m.ok = false
	for m.src.InRange() {
		out, keep := m.f(m.src.Current())
		if keep {
			m.cur, m.ok = out, true
			return
		}
		m.src.Next()
	}
}
func (m *mafSeq[T, U]) InRange() bool { return m.ok }
func (m *mafSeq[T, U]) Current() U    { return m.cur }
func (m *mafSeq[T, U]) Next() {
	m.src.Next()
	m.pull()
}
func (m *mafSeq[T, U]) Ordered() bool { return m.keepOrder && m.src.Ordered() }

// FlatMap produces a sub-sequence per source element and flattens the result; output is always
// unordered regardless of input tags (spec.md §4.8 flat_map).
func FlatMap[T, U any](src Seq[T], f func(T) Seq[U]) Seq[U] {
	return &flatMapSeq[T, U]{src: src, f: f}
}

type flatMapSeq[T, U any] struct {
	src  Seq[T]
	f    func(T) Seq[U]
	inner Seq[U]
}

func (fm *flatMapSeq[T, U]) Start() {
	fm.src.Start()
	fm.inner = nil
	fm.advance()
}
func (fm *flatMapSeq[T, U]) advance() {
	for {
		if fm.inner != nil && fm.inner.InRange() {
			return
		}
		if !fm.src.InRange() {
			fm.inner = nil
			return
		}
		fm.inner = fm.f(fm.src.Current())
		fm.inner.Start()
		fm.src.Next()
	}
}
func (fm *flatMapSeq[T, U]) InRange() bool { return fm.inner != nil && fm.inner.InRange() }
func (fm *flatMapSeq[T, U]) Current() U    { return fm.inner.Current() }
func (fm *flatMapSeq[T, U]) Next() {
	fm.inner.Next()
	fm.advance()
}
func (fm *flatMapSeq[T, U]) Ordered() bool { return false }

// OrderingFlatMap requires the outer sequence and every inner sequence it produces to be ordered
// under cmp; the result is a classic k-way merge, itself ordered (spec.md §4.8
// ordering_flat_map). Panics if the outer sequence is not ordered, since that is a programmer
// error detectable at composition time; inner sequences are all produced and checked at Start
// (see loadAll), which panics on the first unordered one.
func OrderingFlatMap[T, U any](src Seq[T], f func(T) Seq[U], cmp Comparator[U]) Seq[U] {
	if !src.Ordered() {
		panic("seq: OrderingFlatMap requires an ordered outer sequence")
	}
	return &orderingFlatMapSeq[T, U]{src: src, f: f, cmp: cmp}
}

type orderingFlatMapSeq[T, U any] struct {
	src     Seq[T]
	f       func(T) Seq[U]
	cmp     Comparator[U]
	pending []Seq[U]
}

func (o *orderingFlatMapSeq[T, U]) Start() {
	o.src.Start()
	o.pending = nil
	o.loadAll()
}

// loadAll materializes every inner sequence up front so the merge below can pick the globally
// smallest current element each step; this trades the protocol's laziness for a simple, correct
// merge, which is acceptable since ordering_flat_map requires all inputs already sorted and
// finite.
func (o *orderingFlatMapSeq[T, U]) loadAll() {
	for o.src.InRange() {
		inner := o.f(o.src.Current())
		if !inner.Ordered() {
			panic("seq: OrderingFlatMap requires every inner sequence to be ordered")
		}
		inner.Start()
		if inner.InRange() {
			o.pending = append(o.pending, inner)
		}
		o.src.Next()
	}
}
func (o *orderingFlatMapSeq[T, U]) minIdx() int {
	best := -1
	for i, s := range o.pending {
		if !s.InRange() {
			continue
		}
		if best == -1 || o.cmp(s.Current(), o.pending[best].Current()) {
			best = i
		}
	}
	return best
}
func (o *orderingFlatMapSeq[T, U]) InRange() bool { return o.minIdx() >= 0 }
func (o *orderingFlatMapSeq[T, U]) Current() U    { return o.pending[o.minIdx()].Current() }
func (o *orderingFlatMapSeq[T, U]) Next() {
	i := o.minIdx()
	if i < 0 {
		return
	}
	o.pending[i].Next()
}
func (o *orderingFlatMapSeq[T, U]) Ordered() bool { return true }

// OrDefault consumes alt instead of src if src yields zero elements (spec.md §4.8 or_default).
func OrDefault[T any](src, alt Seq[T]) Seq[T] {
	return &orDefaultSeq[T]{src: src, alt: alt}
}

type orDefaultSeq[T any] struct {
	src, alt   Seq[T]
	useAlt     bool
}

func (o *orDefaultSeq[T]) Start() {
	o.src.Start()
	o.useAlt = !o.src.InRange()
	if o.useAlt {
		o.alt.Start()
	}
}
func (o *orDefaultSeq[T]) InRange() bool {
	if o.useAlt {
		return o.alt.InRange()
	}
	return o.src.InRange()
}
func (o *orDefaultSeq[T]) Current() T {
	if o.useAlt {
		return o.alt.Current()
	}
	return o.src.Current()
}
func (o *orDefaultSeq[T]) Next() {
	if o.useAlt {
		o.alt.Next()
		return
	}
	o.src.Next()
}
func (o *orDefaultSeq[T]) Ordered() bool { return o.src.Ordered() && o.alt.Ordered() }

// TakeWhile yields the source prefix while pred holds, stopping permanently at the first false
// (spec.md §4.8 take_while).
func TakeWhile[T any](src Seq[T], pred func(T) bool) Seq[T] {
	return &takeWhileSeq[T]{src: src, pred: pred}
}

type takeWhileSeq[T any] struct {
	src  Seq[T]
	pred func(T) bool
	done bool
}

func (t *takeWhileSeq[T]) Start() { t.src.Start(); t.done = false }
func (t *takeWhileSeq[T]) InRange() bool {
	return !t.done && t.src.InRange() && t.pred(t.src.Current())
}
func (t *takeWhileSeq[T]) Current() T { return t.src.Current() }
func (t *takeWhileSeq[T]) Next() {
	t.src.Next()
	if !t.src.InRange() || !t.pred(t.src.Current()) {
		t.done = true
	}
}
func (t *takeWhileSeq[T]) Ordered() bool { return t.src.Ordered() }

// Repeater streams src once, recording every element into an internal slice; subsequent
// traversals replay from that slice instead of re-pulling src (spec.md §4.8 repeater<Container>).
// Useful when src is expensive or non-restartable (e.g. a Generator).
func Repeater[T any](src Seq[T]) Seq[T] {
	return &repeaterSeq[T]{src: src}
}

type repeaterSeq[T any] struct {
	src      Seq[T]
	recorded []T
	captured bool
	idx      int
}

func (r *repeaterSeq[T]) Start() {
	if !r.captured {
		r.src.Start()
		for r.src.InRange() {
			r.recorded = append(r.recorded, r.src.Current())
			r.src.Next()
		}
		r.captured = true
	}
	r.idx = 0
}
func (r *repeaterSeq[T]) InRange() bool { return r.idx < len(r.recorded) }
func (r *repeaterSeq[T]) Current() T    { return r.recorded[r.idx] }
func (r *repeaterSeq[T]) Next()         { r.idx++ }
func (r *repeaterSeq[T]) Ordered() bool { return r.src.Ordered() }
