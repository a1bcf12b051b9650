package builtin

import (
	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/eval"
	"github.com/stytri/oboe/pkg/parser"
)

func truthy(n *ast.Node) bool {
	switch n.Kind {
	case ast.Boolean:
		return n.A.(bool)
	case ast.Integer:
		return n.A.(int64) != 0
	case ast.Float:
		return n.A.(float64) != 0
	case ast.Character:
		return n.A.(rune) != 0
	case ast.ZenKind, ast.VoidKind:
		return false
	default:
		return true
	}
}

// InstallLogical wires the short-circuiting boolean operators and the `..`
// range constructor (spec.md §4.6 "Loops" / §8 property 6). `land`/`lor`
// evaluate their right operand only when the left doesn't already decide
// the result, which is exactly why they're BuiltinOperators rather than
// ordinary arithmetic.Operator entries: their operand trees must arrive
// unevaluated.
func InstallLogical(r *Registrar) {
	r.Operator("land", PLogical, landOperator)
	r.Operator("&&", PLogical, landOperator)
	r.Operator("lor", PLogical, lorOperator)
	r.Operator("||", PLogical, lorOperator)

	// `..` is installed as an ordinary table-resident operator so user code
	// can still redefine it, but its operand trees are consumed raw by
	// subscript/case/while before this function ever runs; reaching this
	// body means `a..b` was evaluated as a bare expression, for which the
	// language materializes the enumerated integer sequence as an array.
	// Binding tier (the tightest), so `lo..hi && cond` groups the range
	// before the conjunction does.
	r.Operator("..", parser.PBinding, rangeOperator)
}

func landOperator(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	lv, err := eval.Eval(ctx, locals, lexpr)
	if err != nil || errs.IsError(lv) {
		return lv, err
	}
	if !truthy(lv) {
		return newBool(ctx, false)
	}
	rv, err := eval.Eval(ctx, locals, rexpr)
	if err != nil || errs.IsError(rv) {
		return rv, err
	}
	return newBool(ctx, truthy(rv))
}

func lorOperator(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	lv, err := eval.Eval(ctx, locals, lexpr)
	if err != nil || errs.IsError(lv) {
		return lv, err
	}
	if truthy(lv) {
		return newBool(ctx, true)
	}
	rv, err := eval.Eval(ctx, locals, rexpr)
	if err != nil || errs.IsError(rv) {
		return rv, err
	}
	return newBool(ctx, truthy(rv))
}

func rangeOperator(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	lv, err := eval.Eval(ctx, locals, lexpr)
	if err != nil || errs.IsError(lv) {
		return lv, err
	}
	rv, err := eval.Eval(ctx, locals, rexpr)
	if err != nil || errs.IsError(rv) {
		return rv, err
	}
	if !lv.Kind.IsNumeric() || !rv.Kind.IsNumeric() {
		return errs.New(ctx.GC, errs.InvalidOperand, loc, ".. operands must be numeric")
	}

	lo, hi := intOf(lv), intOf(rv)
	step := int64(1)
	if hi < lo {
		step = -1
	}

	scope, err := newScope(ctx, locals)
	if err != nil {
		return nil, err
	}
	for i := lo; ; i += step {
		v, err := newInt(ctx, i)
		if err != nil {
			return nil, err
		}
		appendScope(scope, v)
		if i == hi {
			break
		}
	}
	return scope, nil
}
