package eval_test

import (
	"testing"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/eval"
	"github.com/stytri/oboe/pkg/gc"
	"github.com/stytri/oboe/pkg/odt"
)

func newContext(t *testing.T) (*eval.Context, *ast.Node) {
	t.Helper()
	c := gc.New()
	globals, err := env.New(c, nil)
	if err != nil {
		t.Fatalf("env.New: %v", err)
	}
	tbl := &env.Tables{Globals: globals, Operators: env.NewOperatorTable()}
	c.AddRoot(tbl)
	return &eval.Context{GC: c, Tbl: tbl, Types: odt.NewRegistry()}, globals
}

func integer(c *gc.Collector, v int64) *ast.Node {
	n, _ := c.Alloc(ast.Integer)
	n.A = v
	return n
}

func defineAddOperator(t *testing.T, ctx *eval.Context) int32 {
	t.Helper()
	n, ok := ctx.GC.Alloc(ast.BuiltinOperator)
	if !ok {
		t.Fatal("alloc BuiltinOperator")
	}
	n.B = eval.BuiltinOperatorFn(func(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
		lv, err := eval.Eval(ctx, locals, lexpr)
		if err != nil {
			return nil, err
		}
		rv, err := eval.Eval(ctx, locals, rexpr)
		if err != nil {
			return nil, err
		}
		out, ok := ctx.GC.Alloc(ast.Integer)
		if !ok {
			t.Fatal("alloc result")
		}
		out.A = lv.A.(int64) + rv.A.(int64)
		return out, nil
	})
	return int32(ctx.Tbl.Operators.Define("+", n))
}

func TestEvalopInvokesBuiltinOperator(t *testing.T) {
	ctx, locals := newContext(t)
	idx := defineAddOperator(t, ctx)

	lhs := integer(ctx.GC, 2)
	rhs := integer(ctx.GC, 3)

	result, err := eval.Evalop(ctx, locals, 0, idx, lhs, rhs)
	if err != nil {
		t.Fatalf("Evalop: %v", err)
	}
	if result.Kind != ast.Integer || result.A.(int64) != 5 {
		t.Fatalf("expected 5, got %+v", result)
	}
}

// TestIdentifierResolvesThroughLocals pins both halves of the identifier
// contract from spec.md §4.6: subeval returns the bound Reference itself
// (so assignment targets stay addressable), refeval unwraps it to the value.
func TestIdentifierResolvesThroughLocals(t *testing.T) {
	ctx, locals := newContext(t)
	val := integer(ctx.GC, 42)
	if _, err := env.AddEnv(ctx.GC, locals, "x", val, 0); err != nil {
		t.Fatalf("AddEnv: %v", err)
	}

	id, _ := ctx.GC.Alloc(ast.Identifier)
	id.A, id.B = "x", env.Hash("x")

	ref, err := eval.SubEval(ctx, locals, id)
	if err != nil {
		t.Fatalf("SubEval: %v", err)
	}
	if ref.Kind != ast.Reference {
		t.Fatalf("SubEval of an identifier must return the bound Reference, got %+v", ref)
	}

	result, err := eval.RefEval(ctx, locals, id)
	if err != nil {
		t.Fatalf("RefEval: %v", err)
	}
	if result.Kind != ast.Integer || result.A.(int64) != 42 {
		t.Fatalf("expected 42, got %+v", result)
	}
}

func TestUnknownIdentifierIsInvalidIdentifierError(t *testing.T) {
	ctx, locals := newContext(t)

	id, _ := ctx.GC.Alloc(ast.Identifier)
	id.A, id.B = "missing", env.Hash("missing")

	result, err := eval.SubEval(ctx, locals, id)
	if err != nil {
		t.Fatalf("SubEval: %v", err)
	}
	if result.Kind != ast.ErrorKind {
		t.Fatalf("expected an Error node, got %+v", result)
	}
}

func TestAssignRebindsTargetWithoutClobberingGCFields(t *testing.T) {
	ctx, _ := newContext(t)
	target := integer(ctx.GC, 1)
	source := integer(ctx.GC, 2)
	gcNextBefore := target.GCNext

	result, err := eval.Assign(ctx, 0, &target, source)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if result.A.(int64) != 2 {
		t.Fatalf("expected assigned value 2, got %+v", result)
	}
	if target.GCNext != gcNextBefore {
		t.Fatalf("Assign must not disturb GC linkage")
	}
}

func TestAssignRejectsNoAssignTarget(t *testing.T) {
	ctx, _ := newContext(t)
	target := integer(ctx.GC, 1)
	target.Attr = target.Attr.Set(ast.NoAssign)
	source := integer(ctx.GC, 2)

	result, err := eval.Assign(ctx, 0, &target, source)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if result.Kind != ast.ErrorKind {
		t.Fatalf("expected InvalidReferent error, got %+v", result)
	}
}

func TestSequenceEvaluatesToLastValue(t *testing.T) {
	ctx, locals := newContext(t)
	n, _ := ctx.GC.Alloc(ast.Sequence)
	n.A = integer(ctx.GC, 1)
	n.B = integer(ctx.GC, 2)

	result, err := eval.SubEval(ctx, locals, n)
	if err != nil {
		t.Fatalf("SubEval: %v", err)
	}
	if result.A.(int64) != 2 {
		t.Fatalf("expected last value 2, got %+v", result)
	}
}
