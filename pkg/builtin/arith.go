// Package builtin installs the operator and function table spec.md §4.7
// describes: arithmetic/compare/bitwise/shift dispatch over the four
// numeric kinds, the declarative operators (tag/tag_ref/const), control
// flow (if/ifnot/case/while/until/land/lor), array/environment
// construction helpers, and the self-referential parse/eval/import trio.
//
// None of this has a dedicated Ast Kind: eval.c's evalop dispatches a
// BuiltinOperator by calling its stored Go function directly with
// unevaluated operand trees, exactly the shape every installer in this
// package builds, mirroring builtins.c's add_operator/add_function calls.
package builtin

import (
	"math"
	"math/bits"
	"strings"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/eval"
)

func numericValue(n *ast.Node) (float64, bool) {
	switch n.Kind {
	case ast.Integer:
		return float64(n.A.(int64)), true
	case ast.Float:
		return n.A.(float64), true
	case ast.Boolean:
		if n.A.(bool) {
			return 1, true
		}
		return 0, true
	case ast.Character:
		return float64(n.A.(rune)), true
	default:
		return 0, false
	}
}

func isFloaty(a, b *ast.Node) bool { return a.Kind == ast.Float || b.Kind == ast.Float }

func newInt(ctx *eval.Context, v int64) (*ast.Node, error) {
	n, ok := ctx.GC.Alloc(ast.Integer)
	if !ok {
		return nil, errOOM
	}
	n.A = v
	return n, nil
}

func newFloat(ctx *eval.Context, v float64) (*ast.Node, error) {
	n, ok := ctx.GC.Alloc(ast.Float)
	if !ok {
		return nil, errOOM
	}
	n.A = v
	return n, nil
}

func newBool(ctx *eval.Context, v bool) (*ast.Node, error) {
	n, ok := ctx.GC.Alloc(ast.Boolean)
	if !ok {
		return nil, errOOM
	}
	n.A = v
	return n, nil
}

var errOOM = errs.ErrOutOfMemory

// arithmetic evaluates both operands, requires both numeric (ZEN broadcasts
// to the operator's neutral element, which is what makes prefix `-x` work:
// the parser leaves its left operand as Zen), and combines them with intF
// (when both sides are Integer/Boolean/Character) or floatF (as soon as
// either side is Float) — the (left_tag<<N)|right_tag dispatch table
// spec.md §9 describes, flattened to a type switch since Go's interface
// dispatch already gives us that table for free.
func arithmetic(neutral int64, intF func(a, b int64) int64, floatF func(a, b float64) float64) eval.BuiltinOperatorFn {
	return func(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
		lv, err := eval.Eval(ctx, locals, lexpr)
		if err != nil || errs.IsError(lv) {
			return lv, err
		}
		rv, err := eval.Eval(ctx, locals, rexpr)
		if err != nil || errs.IsError(rv) {
			return rv, err
		}
		if !(lv.Kind.IsNumeric() || lv.IsZen()) || !(rv.Kind.IsNumeric() || rv.IsZen()) {
			return errs.New(ctx.GC, errs.InvalidOperand, loc, "arithmetic operand must be numeric")
		}
		if isFloaty(lv, rv) {
			return newFloat(ctx, floatF(floatOrNeutral(lv, neutral), floatOrNeutral(rv, neutral)))
		}
		return newInt(ctx, intF(intOrNeutral(lv, neutral), intOrNeutral(rv, neutral)))
	}
}

func intOrNeutral(n *ast.Node, neutral int64) int64 {
	if n.IsZen() {
		return neutral
	}
	return intOf(n)
}

func floatOrNeutral(n *ast.Node, neutral int64) float64 {
	if n.IsZen() {
		return float64(neutral)
	}
	v, _ := numericValue(n)
	return v
}

func intOf(n *ast.Node) int64 {
	switch n.Kind {
	case ast.Integer:
		return n.A.(int64)
	case ast.Boolean:
		if n.A.(bool) {
			return 1
		}
		return 0
	case ast.Character:
		return int64(n.A.(rune))
	default:
		return 0
	}
}

// compareValues orders two already-evaluated values (spec.md §4.7):
// Environments compare lexicographically element-wise (a shorter container
// that is a prefix of the longer orders first), Strings compare
// byte-lexicographically, the numeric kinds compare as scalars with ZEN
// standing in for the neutral 0 / empty string. Mixed non-numeric kinds are
// not comparable.
func compareValues(a, b *ast.Node) (int, bool) {
	a, b = refPayload(a), refPayload(b)

	if a.Kind == ast.Environment || b.Kind == ast.Environment {
		if a.Kind != ast.Environment || b.Kind != ast.Environment {
			return 0, false
		}
		an, bn := env.Len(a), env.Len(b)
		n := an
		if bn < n {
			n = bn
		}
		for i := 0; i < n; i++ {
			r, ok := compareValues(env.At(a, i), env.At(b, i))
			if !ok {
				return 0, false
			}
			if r != 0 {
				return r, true
			}
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}

	if a.Kind == ast.String || b.Kind == ast.String {
		as, aok := stringOperand(a)
		bs, bok := stringOperand(b)
		if !aok || !bok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}

	av, aok := numericValue(a)
	if a.IsZen() {
		av, aok = 0, true
	}
	bv, bok := numericValue(b)
	if b.IsZen() {
		bv, bok = 0, true
	}
	if !aok || !bok {
		return 0, false
	}
	switch {
	case av < bv:
		return -1, true
	case av > bv:
		return 1, true
	default:
		return 0, true
	}
}

func stringOperand(n *ast.Node) (string, bool) {
	if n.Kind == ast.String {
		s, _ := n.A.(string)
		return s, true
	}
	if n.IsZen() {
		return "", true
	}
	return "", false
}

func comparison(cmp func(r int) bool) eval.BuiltinOperatorFn {
	return func(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
		lv, err := eval.Eval(ctx, locals, lexpr)
		if err != nil || errs.IsError(lv) {
			return lv, err
		}
		rv, err := eval.Eval(ctx, locals, rexpr)
		if err != nil || errs.IsError(rv) {
			return rv, err
		}
		r, ok := compareValues(lv, rv)
		if !ok {
			return errs.New(ctx.GC, errs.InvalidOperand, loc, "operands are not comparable")
		}
		return newBool(ctx, cmp(r))
	}
}

func bitwise(op func(a, b int64) int64) eval.BuiltinOperatorFn {
	return arithmetic(0, op, func(a, b float64) float64 { return float64(op(int64(a), int64(b))) })
}

// InstallArithmetic wires + - * / and // % (modulo), the comparisons, the
// bitwise & | ~ (~ is xor) and the shift/rotate family at the precedence
// tiers spec.md §4.4's table assigns them. Unary minus works through the
// Zen-broadcast left operand (0 - x); there is no separate bitwise-not.
func InstallArithmetic(r *Registrar) {
	r.Operator("+", PAdditive, arithmetic(0,
		func(a, b int64) int64 { return a + b },
		func(a, b float64) float64 { return a + b },
	))
	r.Operator("-", PAdditive, arithmetic(0,
		func(a, b int64) int64 { return a - b },
		func(a, b float64) float64 { return a - b },
	))
	r.Operator("*", PMultiplicative, arithmetic(1,
		func(a, b int64) int64 { return a * b },
		func(a, b float64) float64 { return a * b },
	))
	r.Operator("/", PMultiplicative, divide)
	r.Operator("//", PMultiplicative, modulo)
	r.Operator("%", PMultiplicative, modulo)

	eq := comparison(func(r int) bool { return r == 0 })
	neq := comparison(func(r int) bool { return r != 0 })
	r.Operator("==", PRelational, eq)
	r.Operator("<>", PRelational, neq)
	r.Operator("!=", PRelational, neq)
	r.Operator("<", PRelational, comparison(func(r int) bool { return r < 0 }))
	r.Operator("<=", PRelational, comparison(func(r int) bool { return r <= 0 }))
	r.Operator(">", PRelational, comparison(func(r int) bool { return r > 0 }))
	r.Operator(">=", PRelational, comparison(func(r int) bool { return r >= 0 }))

	r.Operator("&", PBitwise, bitwise(func(a, b int64) int64 { return a & b }))
	r.Operator("|", PBitwise, bitwise(func(a, b int64) int64 { return a | b }))
	r.Operator("~", PBitwise, bitwise(func(a, b int64) int64 { return a ^ b }))

	// Shift/rotate count is always taken mod 64 (spec.md §8 property 9), so
	// a shift is total over every int64 count rather than undefined behaviour
	// the way a raw Go `<<`/`>>` by a count >= 64 would otherwise risk. The
	// extract/rotate family also carries word spellings usable infix.
	shl := bitwise(func(a, b int64) int64 { return a << (uint64(b) & 63) })
	shr := bitwise(func(a, b int64) int64 { return a >> (uint64(b) & 63) })
	rol := bitwise(func(a, b int64) int64 {
		return int64(bits.RotateLeft64(uint64(a), int(uint64(b)&63)))
	})
	ror := bitwise(func(a, b int64) int64 {
		return int64(bits.RotateLeft64(uint64(a), -int(uint64(b)&63)))
	})
	// exl/exr extract the top/bottom b bits of a.
	exl := bitwise(func(a, b int64) int64 {
		n := uint64(b) & 63
		if n == 0 {
			return 0
		}
		return int64(uint64(a) >> (64 - n))
	})
	exr := bitwise(func(a, b int64) int64 {
		n := uint64(b) & 63
		return int64(uint64(a) & (1<<n - 1))
	})
	r.Operator("<<", PExponential, shl)
	r.Operator("shl", PExponential, shl)
	r.Operator(">>", PExponential, shr)
	r.Operator("shr", PExponential, shr)
	r.Operator("<<<", PExponential, exl)
	r.Operator("exl", PExponential, exl)
	r.Operator(">>>", PExponential, exr)
	r.Operator("exr", PExponential, exr)
	r.Operator("<<>", PExponential, rol)
	r.Operator("rol", PExponential, rol)
	r.Operator("<>>", PExponential, ror)
	r.Operator("ror", PExponential, ror)
}

func divide(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	lv, err := eval.Eval(ctx, locals, lexpr)
	if err != nil || errs.IsError(lv) {
		return lv, err
	}
	rv, err := eval.Eval(ctx, locals, rexpr)
	if err != nil || errs.IsError(rv) {
		return rv, err
	}
	if !lv.Kind.IsNumeric() || !rv.Kind.IsNumeric() {
		return errs.New(ctx.GC, errs.InvalidOperand, loc, "/ operand must be numeric")
	}
	if isFloaty(lv, rv) {
		a, _ := numericValue(lv)
		b, _ := numericValue(rv)
		if b == 0 {
			return newFloat(ctx, 0)
		}
		return newFloat(ctx, a/b)
	}
	b := intOf(rv)
	if b == 0 {
		// spec.md §9 open question: division by zero is defined to yield 0
		// rather than raise InvalidOperand; preserved per "preserve by default".
		return newInt(ctx, 0)
	}
	return newInt(ctx, intOf(lv)/b)
}

func modulo(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	lv, err := eval.Eval(ctx, locals, lexpr)
	if err != nil || errs.IsError(lv) {
		return lv, err
	}
	rv, err := eval.Eval(ctx, locals, rexpr)
	if err != nil || errs.IsError(rv) {
		return rv, err
	}
	if !lv.Kind.IsNumeric() || !rv.Kind.IsNumeric() {
		return errs.New(ctx.GC, errs.InvalidOperand, loc, "mod operand must be numeric")
	}
	if isFloaty(lv, rv) {
		a, _ := numericValue(lv)
		b, _ := numericValue(rv)
		if b == 0 {
			return newFloat(ctx, 0)
		}
		return newFloat(ctx, math.Mod(a, b))
	}
	b := intOf(rv)
	if b == 0 {
		return newInt(ctx, 0)
	}
	return newInt(ctx, intOf(lv)%b)
}

