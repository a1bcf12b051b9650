package parser_test

import (
	"testing"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/gc"
	"github.com/stytri/oboe/pkg/lexer"
	"github.com/stytri/oboe/pkg/parser"
)

func newTables(c *gc.Collector) *env.Tables {
	globals, _ := env.New(c, nil)
	t := &env.Tables{Globals: globals, Operators: env.NewOperatorTable()}

	op := func(name string, prec parser.Precedence) {
		n, _ := c.Alloc(ast.BuiltinOperator)
		n.Qual = int32(prec)
		t.Operators.Define(name, n)
	}
	op("+", parser.PAdditive)
	op("*", parser.PMultiplicative)
	op(":=", parser.PAssigning)

	return t
}

func parse(t *testing.T, src string) *ast.Node {
	n, _ := parseWithTables(t, src)
	return n
}

func parseWithTables(t *testing.T, src string) (*ast.Node, *env.Tables) {
	t.Helper()
	c := gc.New()
	tables := newTables(c)

	toks, err := lexer.Tokenize([]byte(src), 0)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	p := parser.New(c, tables, toks)
	n, err := p.ParseAssemblage()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return n, tables
}

func TestArithmeticPrecedenceClimbsMultiplicationFirst(t *testing.T) {
	n := parse(t, "1 + 2 * 3")
	if n.Kind != ast.Operator {
		t.Fatalf("expected top-level Operator node, got %v", n.Kind)
	}
	rhs := n.B.(*ast.Node)
	if rhs.Kind != ast.Operator {
		t.Fatalf("expected right operand to be the '*' subexpression, got %v", rhs.Kind)
	}
	lhs := n.A.(*ast.Node)
	if lhs.Kind != ast.Integer || lhs.A.(int64) != 1 {
		t.Fatalf("expected left operand to be bare 1, got %+v", lhs)
	}
}

func TestApplicateFoldsIntoSubscript(t *testing.T) {
	n := parse(t, "a[1]")
	if n.Kind != ast.Operator || n.Qual != parser.OpArray {
		t.Fatalf("expected an OpArray node, got kind=%v qual=%d", n.Kind, n.Qual)
	}
	subject := n.A.(*ast.Node)
	if subject.Kind != ast.Identifier || subject.A.(string) != "a" {
		t.Fatalf("expected subject identifier 'a', got %+v", subject)
	}
}

func TestEmptyParensAreZen(t *testing.T) {
	n := parse(t, "()")
	if !n.IsZen() {
		t.Fatalf("expected () to parse as Zen, got %+v", n)
	}
}

func TestSequenceAndAssemblageChain(t *testing.T) {
	n := parse(t, "1, 2; 3")
	if n.Kind != ast.Assemblage {
		t.Fatalf("expected top-level Assemblage, got %v", n.Kind)
	}
	seq := n.A.(*ast.Node)
	if seq.Kind != ast.Sequence {
		t.Fatalf("expected left side to be a Sequence, got %v", seq.Kind)
	}
}

// TestUnregisteredInfixOperatorIsCatchAllNode covers spec.md §4.4's "Unknown
// lexemes fall into a catch-all that still produces an Operator node keyed
// by the name": an infix operator with no table entry must still consume
// both its operands into one Operator node whose Qual indexes a placeholder
// table entry interned under the lexeme's own name — so a later definition
// of "**" binds the already-parsed node — rather than being left unconsumed,
// which would otherwise silently drop "3" from the parse of "1 ** 3".
func TestUnregisteredInfixOperatorIsCatchAllNode(t *testing.T) {
	n, tables := parseWithTables(t, "1 ** 3")
	if n.Kind != ast.Operator || n.Qual < 0 {
		t.Fatalf("expected a catch-all Operator node with an interned index, got kind=%v qual=%d", n.Kind, n.Qual)
	}
	if name, ok := tables.Operators.NameAt(int(n.Qual)); !ok || name != "**" {
		t.Fatalf("expected catch-all node keyed by \"**\", got %q (ok=%v)", name, ok)
	}
	if entry := tables.Operators.At(int(n.Qual)); entry == nil || entry.Kind == ast.BuiltinOperator {
		t.Fatalf("expected a non-operator placeholder entry, got %+v", entry)
	}
	lhs, rhs := n.A.(*ast.Node), n.B.(*ast.Node)
	if lhs.Kind != ast.Integer || lhs.A.(int64) != 1 {
		t.Fatalf("expected left operand 1, got %+v", lhs)
	}
	if rhs.Kind != ast.Integer || rhs.A.(int64) != 3 {
		t.Fatalf("expected right operand 3, got %+v", rhs)
	}
}
