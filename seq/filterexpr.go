package seq

import "github.com/sharedcode/vtm/cel"

// FilterExpr filters src using a compiled CEL expression instead of a Go closure, letting a
// sequence's predicate be supplied as data (e.g. read from configuration or a query string)
// rather than compiled into the binary (spec.md §4.8 filter, extended per SPEC_FULL's CEL
// wiring). toItem converts each element to the map[string]any shape the expression evaluates
// against; a conversion or evaluation error is treated as "does not match" and recorded in
// lastErr, inspectable via the returned *error.
func FilterExpr[T any](src Seq[T], expr *cel.FilterEvaluator, toItem func(T) map[string]any) (Seq[T], *error) {
	fe := &filterExprSeq[T]{src: src, expr: expr, toItem: toItem}
	return fe, &fe.lastErr
}

type filterExprSeq[T any] struct {
	src     Seq[T]
	expr    *cel.FilterEvaluator
	toItem  func(T) map[string]any
	lastErr error
}

func (f *filterExprSeq[T]) matches(v T) bool {
	ok, err := f.expr.Evaluate(f.toItem(v))
	if err != nil {
		f.lastErr = err
		return false
	}
	return ok
}

func (f *filterExprSeq[T]) Start() {
	f.src.Start()
	f.advance()
}
func (f *filterExprSeq[T]) advance() {
	for f.src.InRange() && !f.matches(f.src.Current()) {
		f.src.Next()
	}
}
func (f *filterExprSeq[T]) InRange() bool { return f.src.InRange() }
func (f *filterExprSeq[T]) Current() T    { return f.src.Current() }
func (f *filterExprSeq[T]) Next() {
	f.src.Next()
	f.advance()
}
func (f *filterExprSeq[T]) Ordered() bool { return f.src.Ordered() }
