package seq

import (
	"reflect"
	"testing"
)

func TestOfValueYieldsOnce(t *testing.T) {
	s := OfValue(42)
	s.Start()
	if !s.InRange() {
		t.Fatal("OfValue InRange() = false at start")
	}
	if got := s.Current(); got != 42 {
		t.Fatalf("Current() = %d, want 42", got)
	}
	s.Next()
	if s.InRange() {
		t.Fatal("OfValue yielded a second element")
	}
}

func TestOfLazyValueDefersCall(t *testing.T) {
	calls := 0
	s := OfLazyValue(func() int { calls++; return calls }, 3)
	if calls != 0 {
		t.Fatalf("gen called %d times before Start/pull, want 0", calls)
	}
	s.Start()
	var got []int
	for s.InRange() {
		got = append(got, s.Current())
		s.Next()
	}
	if !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
}

func TestOfIotaOrderedForward(t *testing.T) {
	s := OfIota(0, 5, 1)
	if !s.Ordered() {
		t.Fatal("OfIota(step>0) Ordered() = false, want true")
	}
	s.Start()
	got := Collect(s)
	if !reflect.DeepEqual(got, []int{0, 1, 2, 3, 4}) {
		t.Fatalf("got %v", got)
	}
}

func TestOfIotaNegativeStepUnordered(t *testing.T) {
	s := OfIota(5, 0, -1)
	if s.Ordered() {
		t.Fatal("OfIota(step<0) Ordered() = true, want false")
	}
	s.Start()
	got := Collect(s)
	if !reflect.DeepEqual(got, []int{5, 4, 3, 2, 1}) {
		t.Fatalf("got %v", got)
	}
}

func TestOfOptionalPresentAndAbsent(t *testing.T) {
	present := OfOptional(7, true)
	present.Start()
	if got := Collect(present); !reflect.DeepEqual(got, []int{7}) {
		t.Fatalf("present = %v, want [7]", got)
	}

	absent := OfOptional(7, false)
	absent.Start()
	if got := Collect(absent); len(got) != 0 {
		t.Fatalf("absent = %v, want empty", got)
	}
}

func TestNullIsEmpty(t *testing.T) {
	s := Null[string]()
	s.Start()
	if s.InRange() {
		t.Fatal("Null() InRange() = true")
	}
}

func TestGeneratorSinglePass(t *testing.T) {
	vals := []int{1, 2, 3}
	i := 0
	gen := func() (int, bool) {
		if i >= len(vals) {
			return 0, false
		}
		v := vals[i]
		i++
		return v, true
	}
	s := Generator(gen)
	s.Start()
	got := Collect(s)
	if !reflect.DeepEqual(got, vals) {
		t.Fatalf("got %v, want %v", got, vals)
	}
}

func TestOfStringSplitDefaultWhitespace(t *testing.T) {
	s := OfStringSplit("the quick  brown fox", "")
	s.Start()
	got := Collect(s)
	want := []string{"the", "quick", "brown", "fox"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestOfStringSplitCustomSeparators(t *testing.T) {
	s := OfStringSplit("a,b;c,d", ",;")
	s.Start()
	got := Collect(s)
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAssumeOrderedOverridesTag(t *testing.T) {
	s := OfContainer([]int{3, 1, 2})
	if s.Ordered() {
		t.Fatal("OfContainer Ordered() = true, want false (baseline)")
	}
	wrapped := AssumeOrdered(s)
	if !wrapped.Ordered() {
		t.Fatal("AssumeOrdered did not force Ordered() = true")
	}
	wrapped.Start()
	if got := Collect(wrapped); !reflect.DeepEqual(got, []int{3, 1, 2}) {
		t.Fatalf("AssumeOrdered changed element order: got %v", got)
	}
}
