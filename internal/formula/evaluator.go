// Package formula evaluates flat arithmetic expressions over named numeric
// variables. Identifiers are bound as variables rather than substituted into
// the expression text, so an id can never clobber part of another id or a
// function name.
package formula

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
)

// Evaluator evaluates an expression with the supplied variable bindings.
type Evaluator interface {
	Evaluate(expression string, vars map[string]float64) (float64, error)
}

// Evaluation failures. Callers treat every one of them as "no value".
var (
	ErrEmpty      = errors.New("formula: empty expression")
	ErrSyntax     = errors.New("formula: invalid expression")
	ErrNonNumeric = errors.New("formula: result is not a number")
	ErrNonFinite  = errors.New("formula: result is not finite")
)

// unaryFuncs are the math functions registered on top of expr's built-ins
// (abs, ceil, floor, round, min, max).
var unaryFuncs = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"exp":   math.Exp,
	"ln":    math.Log,
	"log":   math.Log,
	"log10": math.Log10,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
}

// reserved holds names an id may not take: registered and built-in
// functions plus expr keywords and literals.
var reserved = func() map[string]struct{} {
	names := []string{
		"pow", "abs", "ceil", "floor", "round", "min", "max",
		"true", "false", "nil", "and", "or", "not", "in", "matches",
		"contains", "startsWith", "endsWith", "let", "if", "else",
		"len", "int", "float", "string", "all", "any", "none", "one",
		"filter", "map", "count", "sum", "mean", "median", "first", "last",
		"find", "reduce", "sort", "keys", "values", "get", "type", "now",
		"date", "duration", "split", "join", "trim", "upper", "lower",
	}
	out := make(map[string]struct{}, len(names)+len(unaryFuncs))
	for _, n := range names {
		out[n] = struct{}{}
	}
	for n := range unaryFuncs {
		out[n] = struct{}{}
	}
	return out
}()

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether id can be referenced from a formula.
func ValidIdentifier(id string) bool {
	return identPattern.MatchString(id) && !Reserved(id)
}

// Reserved reports whether name is taken by a function or keyword.
func Reserved(name string) bool {
	_, ok := reserved[name]
	return ok
}

// Functions lists the callable function names, sorted.
func Functions() []string {
	out := make([]string, 0, len(unaryFuncs)+7)
	for n := range unaryFuncs {
		out = append(out, n)
	}
	out = append(out, "pow", "abs", "ceil", "floor", "round", "min", "max")
	sort.Strings(out)
	return out
}

// ExprEvaluator implements Evaluator on github.com/expr-lang/expr.
type ExprEvaluator struct {
	opts []expr.Option
}

var _ Evaluator = (*ExprEvaluator)(nil)

// floatLiterals rewrites integer literals to floats. expr keeps integer
// literals as int and int arithmetic wraps on overflow; formulas are float64
// throughout.
type floatLiterals struct{}

func (floatLiterals) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IntegerNode); ok {
		ast.Patch(node, &ast.FloatNode{Value: float64(n.Value)})
	}
}

// NewEvaluator constructs an evaluator with the math function set registered.
func NewEvaluator() *ExprEvaluator {
	opts := make([]expr.Option, 0, len(unaryFuncs)+2)
	opts = append(opts, expr.Patch(floatLiterals{}))
	for name, fn := range unaryFuncs {
		opts = append(opts, expr.Function(name, unary(name, fn)))
	}
	opts = append(opts, expr.Function("pow", func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("pow expects 2 arguments, got %d", len(params))
		}
		x, err := toFloat(params[0])
		if err != nil {
			return nil, err
		}
		y, err := toFloat(params[1])
		if err != nil {
			return nil, err
		}
		return math.Pow(x, y), nil
	}))
	return &ExprEvaluator{opts: opts}
}

func unary(name string, fn func(float64) float64) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(params))
		}
		x, err := toFloat(params[0])
		if err != nil {
			return nil, err
		}
		return fn(x), nil
	}
}

// Evaluate compiles expression against vars and runs it. Identifiers not
// present in vars are compile errors.
func (e *ExprEvaluator) Evaluate(expression string, vars map[string]float64) (float64, error) {
	if expression == "" {
		return 0, ErrEmpty
	}
	env := make(map[string]any, len(vars))
	for k, v := range vars {
		env[k] = v
	}
	opts := make([]expr.Option, 0, len(e.opts)+1)
	opts = append(opts, expr.Env(env))
	opts = append(opts, e.opts...)

	program, err := expr.Compile(expression, opts...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	result, err := toFloat(out)
	if err != nil {
		return 0, err
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return 0, ErrNonFinite
	}
	return result, nil
}

// Check reports whether expression evaluates with every id in ids bound to 1.
func Check(e Evaluator, expression string, ids []string) error {
	vars := make(map[string]float64, len(ids))
	for _, id := range ids {
		vars[id] = 1
	}
	_, err := e.Evaluate(expression, vars)
	return err
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrNonNumeric, v)
	}
}
