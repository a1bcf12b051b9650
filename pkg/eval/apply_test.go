package eval_test

import (
	"testing"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/eval"
	"github.com/stytri/oboe/pkg/parser"
)

// applyNode builds the Operator node the parser emits for juxtaposition
// (spec.md §4.4 "applicate"), so calling through eval.SubEval exercises the
// exact path a parsed `callee arg` expression would take.
func applyNode(loc ast.Sloc, callee, arg *ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.Operator, Qual: parser.OpApply, Loc: loc, A: callee, B: arg}
}

// TestFunctionCallReseatsStaticsAndLocals exercises spec.md §3.3 ("statics
// ... replaced across function calls by the callee's source-static") and
// §4.6 ("bind statics from callee's source, allocate fresh locals ...
// restore statics and locals"): while the body runs, Tbl.Locals must be the
// fresh child scope (not the caller's) and Tbl.Statics must be the callee's
// defining source's persistent static environment; once the call returns,
// both must be restored to exactly what the caller had.
func TestFunctionCallReseatsStaticsAndLocals(t *testing.T) {
	ctx, callerLocals := newContext(t)

	var sawLocalsDuringCall, sawStaticsDuringCall *ast.Node
	probe, ok := ctx.GC.Alloc(ast.BuiltinFunction)
	if !ok {
		t.Fatal("alloc BuiltinFunction")
	}
	probe.B = eval.BuiltinFunctionFn(func(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, arg *ast.Node) (*ast.Node, error) {
		sawLocalsDuringCall = ctx.Tbl.Locals
		sawStaticsDuringCall = ctx.Tbl.Statics
		return ast.Zen, nil
	})
	probeID := identifierNode(ctx, "probe")
	if _, err := env.AddEnv(ctx.GC, callerLocals, "probe", probe, 0); err != nil {
		t.Fatalf("AddEnv probe: %v", err)
	}

	// body: probe() — applying probe to Zen just to trigger the builtin.
	body := applyNode(0, probeID, ast.Zen)

	fnLoc := ast.NewSloc(7, 1, 0, 0) // defining source id 7
	fn, ok := ctx.GC.Alloc(ast.Function)
	if !ok {
		t.Fatal("alloc Function")
	}
	fn.Loc = fnLoc
	fn.A = &eval.FunctionDef{Body: body}
	fn.B = ctx.Tbl.Globals

	fnID := identifierNode(ctx, "f")
	if _, err := env.AddEnv(ctx.GC, callerLocals, "f", fn, 0); err != nil {
		t.Fatalf("AddEnv f: %v", err)
	}

	// Give the caller's Statics/Locals a known, shared value so reseating
	// during the call (to something else) and restoration afterward (back
	// to this exact value) are both unambiguous to assert on.
	ctx.Tbl.Statics, ctx.Tbl.Locals = callerLocals, callerLocals

	result, err := eval.SubEval(ctx, callerLocals, applyNode(0, fnID, ast.Zen))
	if err != nil {
		t.Fatalf("calling f: %v", err)
	}
	if !result.IsZen() {
		t.Fatalf("expected Zen result, got %+v", result)
	}

	if sawLocalsDuringCall == callerLocals {
		t.Fatalf("Locals was not reseated to a fresh child scope during the call")
	}
	if sawStaticsDuringCall == callerLocals {
		t.Fatalf("Statics was not reseated to the callee's source-static during the call")
	}

	wantStatic, err := ctx.Tbl.StaticsFor(ctx.GC, fnLoc.Source())
	if err != nil {
		t.Fatalf("StaticsFor: %v", err)
	}
	if sawStaticsDuringCall != wantStatic {
		t.Fatalf("Statics during call was not the callee's source-static environment")
	}

	if ctx.Tbl.Statics != callerLocals || ctx.Tbl.Locals != callerLocals {
		t.Fatalf("Statics/Locals were not restored after the call returned")
	}

	// A second call from the same defining source must reuse the same
	// persistent static environment (spec.md §3.3 "persistent scope").
	sawStaticsDuringCall = nil
	if _, err := eval.SubEval(ctx, callerLocals, applyNode(0, fnID, ast.Zen)); err != nil {
		t.Fatalf("second call to f: %v", err)
	}
	if sawStaticsDuringCall != wantStatic {
		t.Fatalf("second call did not reuse the same persistent source-static environment")
	}
}

func identifierNode(ctx *eval.Context, name string) *ast.Node {
	n, _ := ctx.GC.Alloc(ast.Identifier)
	n.A, n.B = name, env.Hash(name)
	return n
}

func integerLit(ctx *eval.Context, v int64) *ast.Node {
	n, _ := ctx.GC.Alloc(ast.Integer)
	n.A = v
	return n
}

// tagOperatorIndex registers a bare colon Operator node and returns the
// table index tagElement looks its name up by; the node itself is never
// evaluated here, only consulted structurally by name (eval.RangeBounds'
// sibling, tagElement).
func tagOperatorIndex(ctx *eval.Context) int32 {
	n, _ := ctx.GC.Alloc(ast.BuiltinOperator)
	return int32(ctx.Tbl.Operators.Define(":", n))
}

// TestEnvironmentLiteralTaggedKeys covers spec.md §8's "Environment as map"
// scenario: both the bare-Identifier form `[a:1; b:2]` and the
// Character-keyed form `['a':1; 'b':2]` build an Environment with named
// slots "a" and "b" bound, retrievable by name lookup (and so by the
// scenario's `e['a'] + e['b']` subscripts).
func TestEnvironmentLiteralTaggedKeys(t *testing.T) {
	ctx, locals := newContext(t)
	colon := tagOperatorIndex(ctx)

	tag := func(key *ast.Node, v int64) *ast.Node {
		return &ast.Node{Kind: ast.Operator, Qual: colon, A: key, B: integerLit(ctx, v)}
	}
	charKey := func(r rune) *ast.Node {
		n, _ := ctx.GC.Alloc(ast.Character)
		n.A = r
		return n
	}
	contents := &ast.Node{Kind: ast.Assemblage, A: tag(identifierNode(ctx, "a"), 1), B: tag(charKey('b'), 2)}
	lit := &ast.Node{Kind: ast.Operator, Qual: parser.OpArray, A: ast.Zen, B: contents}

	result, err := eval.SubEval(ctx, locals, lit)
	if err != nil {
		t.Fatalf("SubEval: %v", err)
	}
	if result.Kind != ast.Environment {
		t.Fatalf("expected an Environment, got %+v", result)
	}

	for name, want := range map[string]int64{"a": 1, "b": 2} {
		ref, ok := env.Lookup(result, env.Hash(name), name, 0)
		if !ok {
			t.Fatalf("expected named slot %q", name)
		}
		v, _ := ref.B.(*ast.Node)
		if v == nil || v.A.(int64) != want {
			t.Fatalf("slot %q: expected %d, got %+v", name, want, v)
		}
	}
}
