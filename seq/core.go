// Package seq implements the lazy, pull-based sequence combinator library (C9-C12): a
// single-threaded cooperative iteration protocol with a compile-time-ish ordering tag that
// propagates through every combinator, plus a worker-pool-backed parallel sort.
package seq

// State is the optional per-traversal extra accompanying a Seq: a step index and a generation
// counter incremented on every Start, plus a sticky stop flag that the leaf sources in this package
// check in InRange; combinators do not read it themselves (spec.md §4.7 "State extras", "Stop
// signal").
type State struct {
	Step       int
	Generation int
	stop       bool
}

// Stop sets the sticky cancellation flag. Once set it never clears itself; a fresh Start on the
// owning sequence is required to resume, and that Start clears the flag on this same State.
func (s *State) Stop() { s.stop = true }

// Stopped reports whether Stop has been called.
func (s *State) Stopped() bool { return s != nil && s.stop }

// Seq is the pull protocol every concrete sequence and combinator implements (spec.md §4.7):
// Start/InRange/Current/Next, plus Ordered as the type's compile-time-ish tag, collapsed here to a
// method per Design Notes §9 ("zero-cost generics or interface adapters... both must preserve the
// ordering-tag propagation").
type Seq[T any] interface {
	// Start positions the sequence at its first element, resetting any prior traversal.
	Start()
	// InRange reports whether Current is safe to call.
	InRange() bool
	// Current returns the element at the current position.
	Current() T
	// Next advances the position; invalidates any reference into a prior Current result.
	Next()
	// Ordered reports whether Current is guaranteed non-decreasing under the sequence's declared
	// comparator across a single traversal.
	Ordered() bool
}

// Stateful is implemented by sequences and combinators that expose their traversal State, so a
// containing pipeline can observe its step/generation counters or request cancellation.
type Stateful interface {
	State() *State
}

// Comparator orders two elements the way sort.Interface's Less does: true iff a < b.
type Comparator[T any] func(a, b T) bool

// Collect drains seq from its current position to exhaustion into a slice. It does not call
// Start; callers that want a fresh traversal should call Start first.
func Collect[T any](s Seq[T]) []T {
	var out []T
	for s.InRange() {
		out = append(out, s.Current())
		s.Next()
	}
	return out
}

// baseState is embedded by every leaf source to provide a Stateful implementation.
type baseState struct {
	st State
}

func (b *baseState) State() *State { return &b.st }

func (b *baseState) start() {
	b.st.Step = 0
	b.st.Generation++
	b.st.stop = false
}

func (b *baseState) advance() { b.st.Step++ }
