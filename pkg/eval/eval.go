// Package eval implements the three-layer tree-walking evaluator from
// spec.md §4.6: subeval does one dispatch step over a node's own Kind,
// refeval chases Reference.B until it lands on a non-Reference node, and
// eval further chases Quoted.B so a quoted value evaluates exactly once
// when finally asked for.
//
// The original's subeval is a macro-generated trampoline that flattens tail
// calls into a loop so deeply left-recursive programs don't blow the C
// stack. Go's runtime grows goroutine stacks on demand, so this port uses
// ordinary recursion instead — a deliberate simplification, not a missing
// feature.
package eval

import (
	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/gc"
	"github.com/stytri/oboe/pkg/odt"
)

// Context bundles the collector, scope tables and ODT registry every
// evaluation step threads through, replacing the C original's file-scope
// globals with an explicit, testable value.
type Context struct {
	GC    *gc.Collector
	Tbl   *env.Tables
	Types *odt.Registry
}

// BuiltinOperatorFn is the Go shape a BuiltinOperator node's B slot holds,
// it receives the two unevaluated operand subtrees and the caller's locals,
// and decides for itself what (if anything) to evaluate.
type BuiltinOperatorFn func(ctx *Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error)

// BuiltinFunctionFn is the same shape for a Function-position builtin
// (applicate's callee), receiving the single unevaluated argument tree.
type BuiltinFunctionFn func(ctx *Context, locals *ast.Node, loc ast.Sloc, arg *ast.Node) (*ast.Node, error)

func fail(ctx *Context, kind errs.Kind, loc ast.Sloc, msg string) (*ast.Node, error) {
	n, err := errs.New(ctx.GC, kind, loc, msg)
	if err != nil {
		return errs.Static(errs.OutOfMemory), err
	}
	return n, nil
}

// Eval is refeval plus one round of quote stripping: a Quoted result has its
// wrapper removed and the wrapped tree evaluated once. A doubly-Quoted value
// therefore sheds exactly one layer per Eval, which is what lets `parse`'s
// output survive a binding and still be forced later by the `eval` builtin.
func Eval(ctx *Context, locals *ast.Node, n *ast.Node) (*ast.Node, error) {
	v, err := RefEval(ctx, locals, n)
	if err != nil || v == nil {
		return v, err
	}
	if v.Kind == ast.Quoted {
		return RefEval(ctx, locals, asNode(v.B))
	}
	return v, nil
}

// RefEval is subeval, then unwrapping Reference chains to their final bound
// payload. Bound payloads are already values (Define/Assign only ever store
// evaluated nodes), so no further dispatch happens past the chain.
func RefEval(ctx *Context, locals *ast.Node, n *ast.Node) (*ast.Node, error) {
	v, err := SubEval(ctx, locals, n)
	if err != nil {
		return v, err
	}
	for v != nil && v.Kind == ast.Reference {
		v = asNode(v.B)
	}
	return v, nil
}

// SubEval performs one dispatch step over n's own Kind. Self-evaluating
// kinds (scalars, Function, Environment, Error, the builtins themselves)
// return unchanged, and so does a Reference, which RefEval then chases to
// its bound value; Identifier resolves against locals to the bound
// Reference itself (not its value — callers that want the value go through
// RefEval); Operator invokes Evalop; Sequence/Assemblage evaluate both
// sides and yield the last.
func SubEval(ctx *Context, locals *ast.Node, n *ast.Node) (*ast.Node, error) {
	if n == nil {
		return ast.Zen, nil
	}

	switch n.Kind {
	case ast.ZenKind, ast.VoidKind, ast.Boolean, ast.Integer, ast.Character, ast.Float, ast.String,
		ast.Function, ast.OperatorFunction, ast.OperatorAlias, ast.Reference,
		ast.BuiltinOperator, ast.BuiltinFunction, ast.Environment,
		ast.ErrorKind, ast.OpaqueDataType, ast.OpaqueDataReference:
		return n, nil

	case ast.Identifier:
		name, _ := n.A.(string)
		hash, _ := n.B.(uint64)
		ref, ok := env.Lookup(locals, hash, name, 0)
		if !ok {
			return fail(ctx, errs.InvalidIdentifier, n.Loc, name)
		}
		return ref, nil

	case ast.Operator:
		if n.Qual < 0 {
			return applyOperator(ctx, locals, n)
		}
		lexpr, rexpr := asNode(n.A), asNode(n.B)
		return Evalop(ctx, locals, n.Loc, n.Qual, lexpr, rexpr)

	case ast.Sequence, ast.Assemblage:
		lhs := asNode(n.A)
		lv, err := Eval(ctx, locals, lhs)
		if err != nil || errs.IsError(lv) {
			return lv, err
		}
		rhs := asNode(n.B)
		return Eval(ctx, locals, rhs)

	case ast.Quoted:
		return n, nil

	default:
		return fail(ctx, errs.InvalidOperand, n.Loc, n.Kind.String())
	}
}

// Evalop is the operator dispatch spec.md §4.6 describes: a BuiltinOperator
// is called with its raw operand trees, an OperatorFunction gets a fresh
// child scope with lexpr/rexpr bound before its body is refeval'd, and an
// out-of-range or non-operator index is InvalidOperator.
func Evalop(ctx *Context, locals *ast.Node, loc ast.Sloc, qual int32, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	if qual < 0 {
		return fail(ctx, errs.InvalidOperator, loc, "unregistered operator")
	}

	opr := ctx.Tbl.Operators.At(int(qual))
	if opr == nil {
		return fail(ctx, errs.InvalidOperator, loc, "operator index out of range")
	}

	switch opr.Kind {
	case ast.BuiltinOperator:
		fn, ok := opr.B.(BuiltinOperatorFn)
		if !ok {
			return fail(ctx, errs.InvalidOperator, loc, "malformed builtin operator")
		}
		return fn(ctx, locals, loc, lexpr, rexpr)

	case ast.OperatorFunction:
		return evalOperatorFunction(ctx, locals, loc, opr, lexpr, rexpr)

	case ast.OperatorAlias:
		aliased, _ := opr.A.(string)
		i, _, ok := ctx.Tbl.Operators.Lookup(aliased)
		if !ok {
			return fail(ctx, errs.InvalidOperator, loc, "aliased operator "+aliased+" not found")
		}
		return Evalop(ctx, locals, loc, int32(i), lexpr, rexpr)

	case ast.ErrorKind:
		return opr, nil

	default:
		return fail(ctx, errs.InvalidOperator, loc, opr.Kind.String())
	}
}

// evalOperatorFunction subevals the lexpr/rexpr trees (via BindOperands) and
// binds the results to an OperatorFunction's declared parameter names in a
// fresh child scope, then
// evaluates its body there — mirroring addenv_operands + refeval in the
// original's evalop.
func evalOperatorFunction(ctx *Context, locals *ast.Node, loc ast.Sloc, opr, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	params, _ := opr.A.(*OperatorParams)
	body := asNode(opr.B)
	if params == nil {
		return fail(ctx, errs.InvalidOperator, loc, "missing operator-function parameters")
	}

	child, err := env.New(ctx.GC, locals)
	if err != nil {
		return fail(ctx, errs.OutOfMemory, loc, err.Error())
	}

	if bad, err := BindOperands(ctx, child, locals, params, lexpr, rexpr); err != nil {
		return fail(ctx, errs.InvalidOperand, loc, err.Error())
	} else if bad != nil {
		return bad, nil
	}

	static, err := ctx.Tbl.StaticsFor(ctx.GC, opr.Loc.Source())
	if err != nil {
		return fail(ctx, errs.OutOfMemory, loc, err.Error())
	}
	prevStatics, prevLocals := ctx.Tbl.Statics, ctx.Tbl.Locals
	ctx.Tbl.Statics, ctx.Tbl.Locals = static, child
	result, err := RefEval(ctx, child, body)
	ctx.Tbl.Statics, ctx.Tbl.Locals = prevStatics, prevLocals
	return result, err
}

// OperatorParams names the left/right formal parameters an OperatorFunction
// binds its two operand trees to; an empty name on either side means that
// side is nilary (a prefix or postfix operator).
type OperatorParams struct {
	Left, Right string
}

// BindOperands subevals each operand tree in the caller's scope and defines
// the result under the corresponding parameter name. SubEval (rather than
// RefEval) means an identifier operand binds its Reference chain, so an
// assignment inside the operator body writes through to the caller's slot —
// the untagged-parameter by-reference rule from spec.md §4.5 — while any
// other expression binds its evaluated value. If an operand evaluates to an
// Error node it is returned as bad for the caller to propagate.
func BindOperands(ctx *Context, scope, callerScope *ast.Node, params *OperatorParams, lexpr, rexpr *ast.Node) (bad *ast.Node, err error) {
	bind := func(name string, expr *ast.Node) (*ast.Node, error) {
		if name == "" {
			return nil, nil
		}
		v, err := SubEval(ctx, callerScope, expr)
		if err != nil {
			return nil, err
		}
		if errs.IsError(v) {
			return v, nil
		}
		_, err = env.AddEnv(ctx.GC, scope, name, v, 0)
		return nil, err
	}

	if bad, err := bind(params.Left, lexpr); bad != nil || err != nil {
		return bad, err
	}
	return bind(params.Right, rexpr)
}

// Assign copies expr's observable fields onto the node *past points at,
// never the whole struct: a raw `*past = *expr` would clobber the GC's own
// GCNext/GCColor bookkeeping on the target allocation. If the target carries
// CopyOnAssign, a fresh Void node is allocated and *past is rebound to it
// first, so other references to the old node are unaffected by this
// assignment (the original's "copy semantics" slot kind).
func Assign(ctx *Context, loc ast.Sloc, past **ast.Node, expr *ast.Node) (*ast.Node, error) {
	target := *past
	if target == nil {
		return fail(ctx, errs.InvalidReferent, loc, "nil assignment target")
	}
	if target.Attr.Has(ast.NoAssign) {
		return fail(ctx, errs.InvalidReferent, loc, "assignment to immutable slot")
	}

	if target.Attr.Has(ast.CopyOnAssign) {
		fresh, ok := ctx.GC.Alloc(ast.VoidKind)
		if !ok {
			return fail(ctx, errs.OutOfMemory, loc, "assign")
		}
		*past = fresh
		target = fresh
	}

	attr := expr.Attr
	if !expr.Attr.Has(ast.RetainCopyOnAssign) {
		attr = attr.Clear(ast.CopyOnAssign)
	}

	target.Kind = expr.Kind
	target.Attr = attr
	target.Qual = expr.Qual
	target.Loc = loc
	target.A = expr.A
	target.B = expr.B

	return target, nil
}

// AsNode coerces an A/B payload slot back to *ast.Node, substituting Zen for
// nil or a non-node payload — the same widening every Kind-specific slot
// reader in this package and pkg/builtin uses.
func AsNode(v any) *ast.Node { return asNode(v) }

func asNode(v any) *ast.Node {
	n, _ := v.(*ast.Node)
	if n == nil {
		return ast.Zen
	}
	return n
}
