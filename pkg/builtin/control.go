package builtin

import (
	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/eval"
	"github.com/stytri/oboe/pkg/parser"
)

// InstallControlFlow wires if/ifnot/case/while/until — every one of them a
// BuiltinOperator specifically because its operand trees must arrive
// unevaluated (spec.md §4.6 "Short-circuit and control flow": "they receive
// their operands unevaluated ... and decide themselves what to evaluate").
// Each has a word spelling and a `?`-family symbolic spelling; both names
// resolve to the same table entry semantics.
//
// The loop operators sit at the Declarative tier so that an iterator
// declaration on their left stays their left operand: `i : [1,2,3] ?* body`
// parses left-associatively at equal precedence into `(i : [1,2,3]) ?* body`,
// which is the binding-clause shape loopOverBinding consumes.
func InstallControlFlow(r *Registrar) {
	r.Operator("if", PConditional, ifOperator(false))
	r.Operator("?", PConditional, ifOperator(false))
	r.Operator("ifnot", PConditional, ifOperator(true))
	r.Operator("!", PConditional, ifOperator(true))
	r.Operator("case", PConditional, caseOperator)
	r.Operator("?:", PConditional, caseOperator)
	r.Operator("while", PDeclarative, loopOperator(false))
	r.Operator("?*", PDeclarative, loopOperator(false))
	r.Operator("until", PDeclarative, loopOperator(true))
	r.Operator("!*", PDeclarative, loopOperator(true))
}

// ifOperator implements both `if` (`?`) and `ifnot` (`!`): lexpr is the
// condition; an Assemblage rexpr carries then and else branches as its two
// sides (`c ? (t; e)`), any other rexpr is the then-branch alone. With a
// Zen operand on either side the other side coerces to a Boolean, which is
// what makes prefix `! x` logical negation. A falsy condition with no else
// yields the condition's value.
func ifOperator(invert bool) eval.BuiltinOperatorFn {
	return func(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
		if isZenLiteral(lexpr) || isZenLiteral(rexpr) {
			side := lexpr
			if isZenLiteral(lexpr) {
				side = rexpr
			}
			v, err := eval.Eval(ctx, locals, side)
			if err != nil || errs.IsError(v) {
				return v, err
			}
			return newBool(ctx, truthy(v) != invert)
		}

		cond, err := eval.Eval(ctx, locals, lexpr)
		if err != nil || errs.IsError(cond) {
			return cond, err
		}
		take := truthy(cond) != invert

		if rexpr.Kind == ast.Assemblage {
			if take {
				return eval.Eval(ctx, locals, asArgNode(rexpr.A))
			}
			return eval.Eval(ctx, locals, asArgNode(rexpr.B))
		}
		if take {
			return eval.Eval(ctx, locals, rexpr)
		}
		return cond, nil
	}
}

// caseOperator matches the scrutinee lexpr against a `;`-or-`,`-chained
// list of `tag : result` alternatives in rexpr (spec.md §4.6): a tag whose
// left is a relational operator with a Zen left operand is rewritten with
// the scrutinee substituted for that Zen; a Range tag admits the scrutinee
// if it lies in the closed interval; any other tag is structural equality.
func caseOperator(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	scrutinee, err := eval.Eval(ctx, locals, lexpr)
	if err != nil || errs.IsError(scrutinee) {
		return scrutinee, err
	}

	for _, alt := range eval.FlattenList(rexpr) {
		if tableOperatorName(ctx, alt) != ":" {
			continue
		}
		tag := asArgNode(alt.A)
		result := asArgNode(alt.B)

		matched, err := caseMatches(ctx, locals, loc, tag, scrutinee)
		if err != nil {
			return nil, err
		}
		if matched {
			return eval.Eval(ctx, locals, result)
		}
	}
	return ast.Zen, nil
}

func caseMatches(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, tag, scrutinee *ast.Node) (bool, error) {
	if lo, hi, ok := eval.RangeBounds(ctx, tag); ok {
		loV, err := eval.Eval(ctx, locals, lo)
		if err != nil || errs.IsError(loV) {
			return false, err
		}
		hiV, err := eval.Eval(ctx, locals, hi)
		if err != nil || errs.IsError(hiV) {
			return false, err
		}
		v, ok := numericValue(scrutinee)
		a, aok := numericValue(loV)
		b, bok := numericValue(hiV)
		if !ok || !aok || !bok {
			return false, nil
		}
		if a > b {
			a, b = b, a
		}
		return v >= a && v <= b, nil
	}

	if tag.Kind == ast.Operator && tag.Qual >= 0 {
		if name, ok := ctx.Tbl.Operators.NameAt(int(tag.Qual)); ok && isRelationalName(name) {
			left := asArgNode(tag.A)
			if isZenLiteral(left) {
				rhs := asArgNode(tag.B)
				return evalRelation(ctx, locals, name, scrutinee, rhs)
			}
		}
	}

	v, err := eval.Eval(ctx, locals, tag)
	if err != nil || errs.IsError(v) {
		return false, err
	}
	return structurallyEqual(v, scrutinee), nil
}

func isZenLiteral(n *ast.Node) bool { return n == nil || n.IsZen() }

func isRelationalName(name string) bool {
	switch name {
	case "==", "<>", "!=", "<", "<=", ">", ">=":
		return true
	default:
		return false
	}
}

func evalRelation(ctx *eval.Context, locals *ast.Node, name string, scrutinee, rhsExpr *ast.Node) (bool, error) {
	rhs, err := eval.Eval(ctx, locals, rhsExpr)
	if err != nil || errs.IsError(rhs) {
		return false, err
	}
	r, ok := compareValues(scrutinee, rhs)
	if !ok {
		return false, nil
	}
	switch name {
	case "==":
		return r == 0, nil
	case "<>", "!=":
		return r != 0, nil
	case "<":
		return r < 0, nil
	case "<=":
		return r <= 0, nil
	case ">":
		return r > 0, nil
	case ">=":
		return r >= 0, nil
	default:
		return false, nil
	}
}

// structurallyEqual compares two already-evaluated values for case's
// fallback "otherwise structural equality" rule, through the same ordering
// the relational operators use; values outside its domain match only on
// identity.
func structurallyEqual(a, b *ast.Node) bool {
	if r, ok := compareValues(a, b); ok {
		return r == 0
	}
	return a == b
}

// loopOperator implements both `while` (run body as long as cond holds) and
// `until` (run body as long as cond does not hold). lexpr names the
// iterator clause, rexpr is the body.
//
// Three iterator shapes get specialised handling (spec.md §4.6 "Loops"),
// recognised by the unevaluated iterator node's own syntax: array iteration
// (`name : [1,2,3] ?* body`, a bracket expression), Range iteration
// (`name = lo..hi && cond ?* body`), and Sequence-literal iteration. Any
// other clause — including a bare identifier that happens to be bound to an
// array — falls back to generic re-evaluate-the-condition looping.
func loopOperator(until bool) eval.BuiltinOperatorFn {
	return func(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
		name, iter, cond, isBinding := bindingClause(ctx, lexpr)
		if isBinding && isIteratorShape(ctx, iter) {
			return loopOverBinding(ctx, locals, loc, name, iter, cond, rexpr, until)
		}
		return loopGeneric(ctx, locals, loc, lexpr, rexpr, until)
	}
}

// isIteratorShape reports whether the raw iterator tree is one of the three
// specialised shapes, checked structurally before any evaluation — the same
// syntax-not-value test the original applies to its iterator expression.
func isIteratorShape(ctx *eval.Context, iter *ast.Node) bool {
	if iter == nil {
		return false
	}
	if iter.Kind == ast.Sequence {
		return true
	}
	if _, _, ok := eval.RangeBounds(ctx, iter); ok {
		return true
	}
	return iter.Kind == ast.Operator && (iter.Qual == parser.OpArray || iter.Qual == parser.OpEnv)
}

// tableOperatorName resolves n's table entry back to its operator name, or
// "" when n isn't a table-resident Operator node — the same structural
// recognition eval.RangeBounds applies to `..`.
func tableOperatorName(ctx *eval.Context, n *ast.Node) string {
	if n == nil || n.Kind != ast.Operator || n.Qual < 0 {
		return ""
	}
	name, _ := ctx.Tbl.Operators.NameAt(int(n.Qual))
	return name
}

// bindingClause recognises the iterator-declaration shapes spec.md §4.6
// names: `name : iter`, `name = iter`, and `name = iter && cond` (the `&&`
// joining an extra per-pass condition onto the iterator). Anything whose
// operators aren't literally the declare/assign/conjoin table entries is
// NOT a binding clause — `a < b` has an Operator left child too, and must
// fall through to generic condition looping.
func bindingClause(ctx *eval.Context, lexpr *ast.Node) (name string, iter, cond *ast.Node, ok bool) {
	switch tableOperatorName(ctx, lexpr) {
	case ":", ":=", "=":
	default:
		return "", nil, nil, false
	}
	id := asArgNode(lexpr.A)
	if id.Kind != ast.Identifier {
		return "", nil, nil, false
	}
	name, _ = id.A.(string)

	rest := asArgNode(lexpr.B)
	switch tableOperatorName(ctx, rest) {
	case "&&", "land":
		return name, asArgNode(rest.A), asArgNode(rest.B), true
	}
	return name, rest, nil, true
}

func loopOverBinding(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, name string, iter, cond, body *ast.Node, until bool) (*ast.Node, error) {
	result := ast.Zen

	step := func(value *ast.Node) (bool, error) {
		top := ctx.GC.Depth()
		scope, err := env.New(ctx.GC, locals)
		if err != nil {
			return false, err
		}
		if _, err := env.AddEnv(ctx.GC, scope, name, value, 0); err != nil {
			return false, err
		}
		if cond != nil && !isZenLiteral(cond) {
			cv, err := eval.Eval(ctx, scope, cond)
			if err != nil || errs.IsError(cv) {
				return false, err
			}
			ok := truthy(cv)
			if until {
				ok = !ok
			}
			if !ok {
				ctx.GC.Revert(top)
				return false, nil
			}
		}
		r, err := eval.Eval(ctx, scope, body)
		if err != nil {
			return false, err
		}
		result = ctx.GC.Return(top, r)
		return true, nil
	}

	switch {
	case iter.Kind == ast.Sequence:
		for _, el := range eval.FlattenSequence(iter) {
			v, err := eval.Eval(ctx, locals, el)
			if err != nil || errs.IsError(v) {
				return v, err
			}
			cont, err := step(v)
			if err != nil {
				return nil, err
			}
			if !cont {
				break
			}
		}
		return result, nil

	default:
		if lo, hi, ok := eval.RangeBounds(ctx, iter); ok {
			loV, err := eval.Eval(ctx, locals, lo)
			if err != nil || errs.IsError(loV) {
				return loV, err
			}
			hiV, err := eval.Eval(ctx, locals, hi)
			if err != nil || errs.IsError(hiV) {
				return hiV, err
			}
			a, b := intOf(loV), intOf(hiV)
			dir := int64(1)
			if b < a {
				dir = -1
			}
			for i := a; ; i += dir {
				v, err := newInt(ctx, i)
				if err != nil {
					return nil, err
				}
				cont, err := step(v)
				if err != nil {
					return nil, err
				}
				if !cont {
					break
				}
				if i == b {
					break
				}
			}
			return result, nil
		}

		container, err := eval.Eval(ctx, locals, iter)
		if err != nil || errs.IsError(container) {
			return container, err
		}
		if container.Kind != ast.Environment {
			return argError(ctx, loc, "while iterator must be an array, range, or sequence")
		}
		for i := 0; i < env.Len(container); i++ {
			cont, err := step(env.At(container, i))
			if err != nil {
				return nil, err
			}
			if !cont {
				break
			}
		}
		return result, nil
	}
}

// loopGeneric re-evaluates cond every pass; body result accumulates the
// same gc.Return discipline as loopOverBinding so long loops don't leak.
func loopGeneric(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, cond, body *ast.Node, until bool) (*ast.Node, error) {
	result := ast.Zen
	for {
		cv, err := eval.Eval(ctx, locals, cond)
		if err != nil || errs.IsError(cv) {
			return cv, err
		}
		ok := truthy(cv)
		if until {
			ok = !ok
		}
		if !ok {
			return result, nil
		}

		top := ctx.GC.Depth()
		r, err := eval.Eval(ctx, locals, body)
		if err != nil {
			return nil, err
		}
		result = ctx.GC.Return(top, r)
	}
}
