package cel

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// FilterEvaluator holds a compiled CEL boolean expression evaluated against a single "item"
// variable, the predicate-shaped sibling of Evaluator's two-map comparator form.
type FilterEvaluator struct {
	Expression string
	program    cel.Program
}

// NewFilterEvaluator compiles a CEL expression of item (a map[string]any) to bool.
func NewFilterEvaluator(name string, expression string) (*FilterEvaluator, error) {
	if name == "" {
		return nil, fmt.Errorf("name can't be emptry string")
	}
	if expression == "" {
		return nil, fmt.Errorf("expression can't be emptry string")
	}

	env, err := cel.NewEnv(
		cel.Variable("item", cel.MapType(cel.StringType, cel.AnyType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %v", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("error compiling CEL expression: %v", issues.Err())
	}
	p, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("error creating Program: %v", err)
	}
	return &FilterEvaluator{Expression: expression, program: p}, nil
}

// Evaluate runs the compiled expression against item and returns its boolean result.
func (e *FilterEvaluator) Evaluate(item map[string]any) (bool, error) {
	out, _, err := e.program.Eval(map[string]any{"item": item})
	if err != nil {
		return false, fmt.Errorf("error evaluating CEL expression: %v", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression %q did not evaluate to bool, got %v", e.Expression, out.Value())
	}
	return b, nil
}
