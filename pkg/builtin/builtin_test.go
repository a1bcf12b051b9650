package builtin_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/builtin"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/eval"
	"github.com/stytri/oboe/pkg/gc"
	"github.com/stytri/oboe/pkg/lexer"
	"github.com/stytri/oboe/pkg/odt"
	"github.com/stytri/oboe/pkg/parser"
)

// newSession builds the same ready-to-evaluate world cmd/oboe does: a
// collector, the six tables, the full builtin operator/function set and the
// shipped opaque data types.
func newSession(t *testing.T) *eval.Context {
	t.Helper()
	c := gc.New()
	tbl := &env.Tables{Operators: env.NewOperatorTable()}

	globals, err := env.New(c, nil)
	if err != nil {
		t.Fatalf("globals: %v", err)
	}
	tbl.Globals = globals
	tbl.Statics = globals
	tbl.Locals = globals

	system, err := env.New(c, nil)
	if err != nil {
		t.Fatalf("system: %v", err)
	}
	tbl.System = system

	c.AddRoot(tbl)
	builtin.InstallAll(c, tbl)

	types := odt.NewRegistry()
	odt.RegisterShipped(types)

	return &eval.Context{GC: c, Tbl: tbl, Types: types}
}

// run evaluates src statement by statement against globals, mirroring the
// CLI driver's loop (GC safe point between top-level expressions), and
// returns the last statement's value.
func run(t *testing.T, ctx *eval.Context, src string) *ast.Node {
	t.Helper()
	sourceID := ctx.Tbl.InternSource("<test>")
	toks, err := lexer.Tokenize([]byte(src), sourceID)
	if err != nil {
		t.Fatalf("Tokenize %q: %v", src, err)
	}
	p := parser.New(ctx.GC, ctx.Tbl, toks)
	program, err := p.ParseAssemblage()
	if err != nil {
		t.Fatalf("Parse %q: %v", src, err)
	}

	result := ast.Zen
	for _, stmt := range eval.FlattenList(program) {
		top := ctx.GC.Depth()
		v, err := eval.Eval(ctx, ctx.Tbl.Globals, stmt)
		if err != nil {
			t.Fatalf("Eval %q: %v", src, err)
		}
		result = ctx.GC.Return(top, v)
		if errs.IsError(result) {
			return result
		}
		ctx.GC.Collect()
	}
	return result
}

func wantInt(t *testing.T, n *ast.Node, want int64) {
	t.Helper()
	if n == nil || n.Kind != ast.Integer {
		t.Fatalf("expected Integer %d, got %+v", want, n)
	}
	if got := n.A.(int64); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestArithmeticPrecedence(t *testing.T) {
	wantInt(t, run(t, newSession(t), "1 + 2 * 3;"), 7)
	wantInt(t, run(t, newSession(t), "(1+2)*3;"), 9)
}

func TestEnvironmentAsMap(t *testing.T) {
	wantInt(t, run(t, newSession(t), "e := ['a':1; 'b':2]; e['a'] + e['b'];"), 3)
}

func TestArraySubscript(t *testing.T) {
	wantInt(t, run(t, newSession(t), "a := [10,20,30,40]; a[1];"), 20)
}

func TestArraySlice(t *testing.T) {
	result := run(t, newSession(t), "a := [10,20,30,40]; a[1..2];")
	if result.Kind != ast.Environment {
		t.Fatalf("expected a sliced Environment, got %+v", result)
	}
	if got := env.Len(result); got != 2 {
		t.Fatalf("expected slice of length 2, got %d", got)
	}
	wantInt(t, env.At(result, 0), 20)
	wantInt(t, env.At(result, 1), 30)
}

func TestNegativeSubscriptIsError(t *testing.T) {
	result := run(t, newSession(t), "[10,20,30][-1];")
	if !errs.IsError(result) {
		t.Fatalf("expected an error for a negative subscript, got %+v", result)
	}
}

func TestLoopWithReferenceBinding(t *testing.T) {
	wantInt(t, run(t, newSession(t), "sum := 0; i : [1,2,3,4] ?* { sum = sum + i }; sum;"), 10)
}

func TestLoopOverRangeWithCondition(t *testing.T) {
	wantInt(t, run(t, newSession(t), "sum := 0; i = 1..10 && i <= 4 ?* { sum = sum + i }; sum;"), 10)
}

func TestUserDefinedOperator(t *testing.T) {
	wantInt(t, run(t, newSession(t), `"**"(a,b) :: a*b; 2 ** 3;`), 6)
}

func TestUserDefinedOperatorBindsEarlierParse(t *testing.T) {
	// The catch-all parse of `2 @+ 3` interns "@+" as a placeholder; the
	// definition evaluated first overwrites that same table slot, so the
	// already-parsed node dispatches to it (spec.md §4.4 "bound later").
	wantInt(t, run(t, newSession(t), `"@+"(a,b) :: a+b+1; 2 @+ 3;`), 6)
}

func TestIfElse(t *testing.T) {
	// `c ? (t; e)`: an Assemblage right operand carries both branches.
	wantInt(t, run(t, newSession(t), "1 ? (10; 20);"), 10)
	wantInt(t, run(t, newSession(t), "0 ? (10; 20);"), 20)
	wantInt(t, run(t, newSession(t), "3 > 2 ? 10;"), 10)
}

func TestPrefixNotCoercesToBoolean(t *testing.T) {
	result := run(t, newSession(t), "! 0;")
	if result.Kind != ast.Boolean || !result.A.(bool) {
		t.Fatalf("expected ! 0 to be true, got %+v", result)
	}
	result = run(t, newSession(t), "! 7;")
	if result.Kind != ast.Boolean || result.A.(bool) {
		t.Fatalf("expected ! 7 to be false, got %+v", result)
	}
}

func TestCaseMatching(t *testing.T) {
	result := run(t, newSession(t), `2 ?: (1 : "one"; 2 : "two");`)
	if result.Kind != ast.String || result.A.(string) != "two" {
		t.Fatalf(`expected "two", got %+v`, result)
	}

	result = run(t, newSession(t), `3 ?: (< 2 : "small"; < 10 : "medium");`)
	if result.Kind != ast.String || result.A.(string) != "medium" {
		t.Fatalf(`expected "medium", got %+v`, result)
	}

	result = run(t, newSession(t), `5 ?: (1..9 : "digit"; 10..99 : "pair");`)
	if result.Kind != ast.String || result.A.(string) != "digit" {
		t.Fatalf(`expected "digit", got %+v`, result)
	}
}

func wantBool(t *testing.T, n *ast.Node, want bool) {
	t.Helper()
	if n == nil || n.Kind != ast.Boolean {
		t.Fatalf("expected Boolean %v, got %+v", want, n)
	}
	if got := n.A.(bool); got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestStringComparisonIsByteLexicographic(t *testing.T) {
	wantBool(t, run(t, newSession(t), `"a" < "b";`), true)
	wantBool(t, run(t, newSession(t), `"abc" == "abc";`), true)
	wantBool(t, run(t, newSession(t), `"b" <= "ab";`), false)
	wantBool(t, run(t, newSession(t), `"ab" <> "ba";`), true)
}

func TestEnvironmentComparisonIsElementWise(t *testing.T) {
	wantBool(t, run(t, newSession(t), "[1,2] == [1,2];"), true)
	wantBool(t, run(t, newSession(t), "[1,2] < [1,3];"), true)
	// A shorter container that prefixes the longer orders first.
	wantBool(t, run(t, newSession(t), "[1,2] < [1,2,0];"), true)
	wantBool(t, run(t, newSession(t), `["a"] == ["a"];`), true)
}

func TestCaseMatchesStringTags(t *testing.T) {
	result := run(t, newSession(t), `"b" ?: ("a" : 1; "b" : 2);`)
	wantInt(t, result, 2)
}

func TestDivisionByZeroYieldsZero(t *testing.T) {
	wantInt(t, run(t, newSession(t), "1 / 0;"), 0)
}

func TestUndefinedNameIsInvalidIdentifier(t *testing.T) {
	result := run(t, newSession(t), "undefined_name;")
	if !errs.IsError(result) {
		t.Fatalf("expected an error, got %+v", result)
	}
	if errs.Kind(result.Qual) != errs.InvalidIdentifier {
		t.Fatalf("expected InvalidIdentifier, got %v", errs.Kind(result.Qual))
	}
}

func TestShortCircuit(t *testing.T) {
	// The right operand would be an InvalidIdentifier error if evaluated.
	result := run(t, newSession(t), "0 && boom;")
	if result.Kind != ast.Boolean || result.A.(bool) {
		t.Fatalf("expected false without evaluating the right operand, got %+v", result)
	}
	result = run(t, newSession(t), "1 || boom;")
	if result.Kind != ast.Boolean || !result.A.(bool) {
		t.Fatalf("expected true without evaluating the right operand, got %+v", result)
	}
}

func TestShiftCountsAreMasked(t *testing.T) {
	wantInt(t, run(t, newSession(t), "1 << 64;"), 1)
	wantInt(t, run(t, newSession(t), "1 << 65;"), 2)
}

func TestConstBindingRejectsAssignment(t *testing.T) {
	result := run(t, newSession(t), "k :: 7; k = 8;")
	if !errs.IsError(result) {
		t.Fatalf("expected assignment to a const to fail, got %+v", result)
	}
	if errs.Kind(result.Qual) != errs.InvalidReferent {
		t.Fatalf("expected InvalidReferent, got %v", errs.Kind(result.Qual))
	}
}

func TestParseEvalRoundTrip(t *testing.T) {
	wantInt(t, run(t, newSession(t), `p := parse("1+2;"); eval(p);`), 3)
}

func TestPrintParseEvalRoundTrip(t *testing.T) {
	old := builtin.Stdout
	builtin.Stdout = discard{}
	defer func() { builtin.Stdout = old }()

	wantInt(t, run(t, newSession(t), `a := 42; eval(parse(print(a)));`), 42)

	result := run(t, newSession(t), `s := "hi"; eval(parse(print(s)));`)
	if result.Kind != ast.String || result.A.(string) != "hi" {
		t.Fatalf(`expected "hi" back from its printed form, got %+v`, result)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestImportEvaluatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.oboe")
	if err := os.WriteFile(path, []byte("x := 42;\nx;\n"), 0o644); err != nil {
		t.Fatalf("writing sample: %v", err)
	}

	ctx := newSession(t)
	ctx.Tbl.AddSearchPath(dir)
	wantInt(t, run(t, ctx, `import "sample.oboe";`), 42)
}

func TestUnaryMinusBroadcastsZen(t *testing.T) {
	wantInt(t, run(t, newSession(t), "- 5;"), -5)
	wantInt(t, run(t, newSession(t), "3 + - 2;"), 1)
}

func TestAssignThroughSubscript(t *testing.T) {
	wantInt(t, run(t, newSession(t), "a := [1,2,3]; a[1] = 9; a[1];"), 9)
}

func TestFunctionDeclarationAndCall(t *testing.T) {
	wantInt(t, run(t, newSession(t), "f(x) : x + 1; f(41);"), 42)
	wantInt(t, run(t, newSession(t), "add(a, b) : a + b; add(2, 3);"), 5)
}

func TestFunctionTaggedParameterDefault(t *testing.T) {
	wantInt(t, run(t, newSession(t), "g(x, y: 10) : x + y; g(5);"), 15)
	wantInt(t, run(t, newSession(t), "g(x, y: 10) : x + y; g(5, 1);"), 6)
}

func TestFunctionByReferenceParameterWritesThrough(t *testing.T) {
	wantInt(t, run(t, newSession(t), "bump(n) : n = n + 1; v := 7; bump(v); v;"), 8)
}

func TestFunctionTaggedParameterCopiesValue(t *testing.T) {
	// A tagged parameter binds a copy, so assignment inside the callee must
	// not leak back to the caller's binding.
	wantInt(t, run(t, newSession(t), "keep(n: 0) : n = n + 1; v := 7; keep(v); v;"), 7)
}

func TestCompoundAssignment(t *testing.T) {
	wantInt(t, run(t, newSession(t), "x := 1; x += 5; x;"), 6)
	wantInt(t, run(t, newSession(t), "x := 12; x //= 5; x;"), 2)
	wantInt(t, run(t, newSession(t), "x := 1; x <<= 4; x;"), 16)
}

func TestExchange(t *testing.T) {
	wantInt(t, run(t, newSession(t), "a := 1; b := 2; a >< b; a;"), 2)
	wantInt(t, run(t, newSession(t), "a := 1; b := 2; a >< b; b;"), 1)
}
