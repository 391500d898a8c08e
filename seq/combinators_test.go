package seq

import (
	"reflect"
	"testing"
)

func TestFilterPreservesOrderingTag(t *testing.T) {
	ordered := AssumeOrdered(OfContainer([]int{1, 2, 3, 4, 5}))
	f := Filter(ordered, func(v int) bool { return v%2 == 0 })
	if !f.Ordered() {
		t.Fatal("Filter over an ordered source lost the ordering tag")
	}
	f.Start()
	if got := Collect(f); !reflect.DeepEqual(got, []int{2, 4}) {
		t.Fatalf("got %v, want [2 4]", got)
	}

	unordered := OfContainer([]int{1, 2, 3})
	if Filter(unordered, func(int) bool { return true }).Ordered() {
		t.Fatal("Filter over an unordered source reported Ordered() = true")
	}
}

func TestMapKeepOrderHint(t *testing.T) {
	ordered := AssumeOrdered(OfContainer([]int{1, 2, 3}))

	kept := Map(ordered, func(v int) int { return v * 2 }, true)
	if !kept.Ordered() {
		t.Fatal("Map(keepOrder=true) over an ordered source lost the tag")
	}
	kept.Start()
	if got := Collect(kept); !reflect.DeepEqual(got, []int{2, 4, 6}) {
		t.Fatalf("got %v", got)
	}

	dropped := Map(ordered, func(v int) int { return v * 2 }, false)
	if dropped.Ordered() {
		t.Fatal("Map(keepOrder=false) reported Ordered() = true")
	}
}

func TestMafFiltersAndTransformsInOnePass(t *testing.T) {
	src := OfContainer([]int{1, 2, 3, 4, 5, 6})
	m := Maf(src, func(v int) (int, bool) {
		if v%2 != 0 {
			return 0, false
		}
		return v * 10, true
	}, false)
	m.Start()
	if got := Collect(m); !reflect.DeepEqual(got, []int{20, 40, 60}) {
		t.Fatalf("got %v, want [20 40 60]", got)
	}
}

func TestFlatMapAlwaysUnordered(t *testing.T) {
	src := AssumeOrdered(OfContainer([]int{1, 2}))
	fm := FlatMap(src, func(v int) Seq[int] {
		return OfContainer([]int{v, v})
	})
	if fm.Ordered() {
		t.Fatal("FlatMap reported Ordered() = true, want always false")
	}
	fm.Start()
	if got := Collect(fm); !reflect.DeepEqual(got, []int{1, 1, 2, 2}) {
		t.Fatalf("got %v, want [1 1 2 2]", got)
	}
}

func TestOrderingFlatMapMergesOrderedInners(t *testing.T) {
	outer := AssumeOrdered(OfContainer([]int{1, 2}))
	cmp := func(a, b int) bool { return a < b }
	result := OrderingFlatMap(outer, func(v int) Seq[int] {
		if v == 1 {
			return AssumeOrdered(OfContainer([]int{10, 30}))
		}
		return AssumeOrdered(OfContainer([]int{20, 40}))
	}, cmp)
	if !result.Ordered() {
		t.Fatal("OrderingFlatMap result Ordered() = false, want true")
	}
	result.Start()
	if got := Collect(result); !reflect.DeepEqual(got, []int{10, 20, 30, 40}) {
		t.Fatalf("got %v, want [10 20 30 40]", got)
	}
}

func TestOrderingFlatMapPanicsOnUnorderedOuter(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("OrderingFlatMap with an unordered outer sequence did not panic")
		}
	}()
	outer := OfContainer([]int{1, 2})
	OrderingFlatMap(outer, func(v int) Seq[int] { return OfContainer([]int{v}) }, func(a, b int) bool { return a < b })
}

func TestOrDefaultUsesAltOnlyWhenSrcEmpty(t *testing.T) {
	empty := Null[int]()
	alt := OfContainer([]int{9})
	withAlt := OrDefault(empty, alt)
	withAlt.Start()
	if got := Collect(withAlt); !reflect.DeepEqual(got, []int{9}) {
		t.Fatalf("OrDefault(empty, alt) = %v, want [9]", got)
	}

	nonEmpty := OfContainer([]int{1, 2})
	withoutAlt := OrDefault(nonEmpty, OfContainer([]int{9}))
	withoutAlt.Start()
	if got := Collect(withoutAlt); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("OrDefault(nonEmpty, alt) = %v, want [1 2]", got)
	}
}

func TestTakeWhileStopsAtFirstFalse(t *testing.T) {
	src := OfContainer([]int{1, 2, 3, 4, 1, 2})
	tw := TakeWhile(src, func(v int) bool { return v < 4 })
	tw.Start()
	if got := Collect(tw); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
}

func TestRepeaterReplaysWithoutRepullingSource(t *testing.T) {
	pulls := 0
	gen := func() (int, bool) {
		if pulls >= 3 {
			return 0, false
		}
		pulls++
		return pulls, true
	}
	r := Repeater[int](Generator(gen))

	r.Start()
	first := Collect(r)
	if !reflect.DeepEqual(first, []int{1, 2, 3}) {
		t.Fatalf("first pass = %v, want [1 2 3]", first)
	}
	if pulls != 3 {
		t.Fatalf("pulls after first pass = %d, want 3", pulls)
	}

	r.Start()
	second := Collect(r)
	if !reflect.DeepEqual(second, []int{1, 2, 3}) {
		t.Fatalf("second pass = %v, want [1 2 3]", second)
	}
	if pulls != 3 {
		t.Fatalf("pulls after second pass = %d, want still 3 (no re-pull)", pulls)
	}
}

func TestStateStopIsSticky(t *testing.T) {
	src := OfContainer([]int{1, 2, 3, 4})
	src.Start()
	stateful, ok := src.(Stateful)
	if !ok {
		t.Fatal("containerSeq does not implement Stateful")
	}
	var got []int
	for src.InRange() {
		v := src.Current()
		got = append(got, v)
		if v == 2 {
			stateful.State().Stop()
		}
		src.Next()
	}
	if !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("got %v, want [1 2] (stop should end traversal immediately after v==2)", got)
	}
}
