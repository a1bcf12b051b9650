// Package parser implements oboe's precedence-climbing second pass: a
// hand-written recursive-descent reader over the flat pkg/lexer token
// stream, the grammar spec.md §4.4 lays out as
//
//	primary:    '(' assemblage ')' | '[' assemblage ']' | '{' assemblage '}'
//	            Integer | Float | Character | String | Identifier
//	applicate:  primary  [ primary ]*
//	operation:  applicate [ Operator applicate ]*
//	sequence:   operation [ ',' operation ]*
//	assemblage: sequence  [ ';' sequence ]*
//
// Operators are environment-resident: their precedence tier lives in the
// Qual field of their entry in tables.Operators, looked up by name on every
// operator token, so rebinding an operator's precedence changes how every
// later parse reads it (a following parse/import call or source); a source
// is parsed whole before any of it is evaluated, so a rebinding does not
// change how the rest of its own source parses. This package never uses goparsec —
// that stays confined to pkg/lexer's flat tokenizing pass; the tree-to-AST
// walk that follows it is hand-written here, the same way a combinator-based
// text-to-AST step is kept separate from the domain-typed walk over it.
package parser

import (
	"fmt"
	"strconv"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/bitutil"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/gc"
	"github.com/stytri/oboe/pkg/lexer"
)

// Precedence mirrors parse.h's eleven-level table: P_None means "not a known
// operator", P_Binding is tightest.
type Precedence int32

const (
	PNone Precedence = iota
	PDeclarative
	PAssigning
	PConditional
	PLogical
	PRelational
	PBitwise
	PAdditive
	PMultiplicative
	PExponential
	PBinding
)

// The three structural uses of an Operator-kind node that are never a named,
// table-resident operator: function application (juxtaposition), and the
// bracket-literal/subscript forms. A real operator's Qual is always >= 0,
// the table index makopr() would have resolved in the original.
const (
	OpApply        int32 = -1
	OpArray        int32 = -2
	OpEnv          int32 = -3
	OpUnregistered int32 = -4
)

// Parser holds a token cursor over one already-lexed source.
type Parser struct {
	c      *gc.Collector
	tables *env.Tables
	toks   []lexer.Token
	pos    int
}

// New returns a parser over toks, resolving operator names against tables.
func New(c *gc.Collector, tables *env.Tables, toks []lexer.Token) *Parser {
	return &Parser{c: c, tables: tables, toks: toks}
}

func (p *Parser) cur() lexer.Token {
	if p.pos >= len(p.toks) {
		return lexer.Token{Kind: lexer.EOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) advance() lexer.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

// ParseAssemblage parses a full `;`-delimited program (the `all` case in
// parse.c's parse()).
func (p *Parser) ParseAssemblage() (*ast.Node, error) { return p.assemblage() }

// ParseSequence parses one `,`-delimited sequence rather than a whole
// `;`-delimited program.
func (p *Parser) ParseSequence() (*ast.Node, error) { return p.sequence() }

func isPrimaryStart(k lexer.Kind) bool {
	switch k {
	case lexer.Integer, lexer.Float, lexer.Character, lexer.String, lexer.Identifier,
		lexer.Open, lexer.EmptyGroup, lexer.BracketedOperator:
		return true
	default:
		return false
	}
}

func matchingClose(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	default:
		return '}'
	}
}

func isZen(n *ast.Node) bool { return n == nil || n.IsZen() }

func (p *Parser) alloc(kind ast.Kind) (*ast.Node, error) {
	n, ok := p.c.Alloc(kind)
	if !ok {
		return nil, fmt.Errorf("parsing: %w", errs.ErrOutOfMemory)
	}
	return n, nil
}

// bracket builds the Operator-kind node a '[' ']' or '{' '}' group produces:
// subject defaults to Zen (a bare literal) until applicate folds a preceding
// primary into it, turning the literal into a subscript/member expression.
func (p *Parser) bracket(open byte, loc ast.Sloc, contents *ast.Node) (*ast.Node, error) {
	n, err := p.alloc(ast.Operator)
	if err != nil {
		return nil, err
	}
	n.Loc = loc
	if open == '[' {
		n.Qual = OpArray
	} else {
		n.Qual = OpEnv
	}
	n.A = ast.Zen
	n.B = contents
	return n, nil
}

func (p *Parser) primary() (*ast.Node, error) {
	tok := p.cur()

	switch tok.Kind {
	case lexer.Integer:
		p.advance()
		v, err := strconv.ParseInt(tok.Text, 0, 64)
		if err != nil {
			v = 0
		}
		n, err2 := p.alloc(ast.Integer)
		if err2 != nil {
			return nil, err2
		}
		n.Loc, n.A = tok.Loc, v
		return n, nil

	case lexer.Float:
		p.advance()
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			v = 0
		}
		n, err2 := p.alloc(ast.Float)
		if err2 != nil {
			return nil, err2
		}
		n.Loc, n.A = tok.Loc, v
		return n, nil

	case lexer.String:
		p.advance()
		n, err := p.alloc(ast.String)
		if err != nil {
			return nil, err
		}
		n.Loc, n.A = tok.Loc, lexer.UnquoteString(tok.Text)
		return n, nil

	case lexer.Character:
		p.advance()
		text := lexer.UnquoteCharacter(tok.Text)
		r := rune(0)
		for _, c := range text {
			r = c
			break
		}
		n, err := p.alloc(ast.Character)
		if err != nil {
			return nil, err
		}
		n.Loc, n.A = tok.Loc, r
		return n, nil

	case lexer.Identifier:
		p.advance()
		n, err := p.alloc(ast.Identifier)
		if err != nil {
			return nil, err
		}
		n.Loc, n.A, n.B = tok.Loc, tok.Text, bitutil.HashString(tok.Text)
		return n, nil

	case lexer.EmptyGroup:
		p.advance()
		if tok.Text[0] == '(' {
			return ast.Zen, nil
		}
		return p.bracket(tok.Text[0], tok.Loc, ast.Zen)

	case lexer.BracketedOperator:
		// "(+)" / "[+]" / "{+}": the interior operator run is the content,
		// resolved through the table like any operator lexeme.
		p.advance()
		inner, err := p.alloc(ast.Operator)
		if err != nil {
			return nil, err
		}
		interior := tok.Text[1 : len(tok.Text)-1]
		inner.Loc, inner.Qual, inner.A, inner.B = tok.Loc, p.operatorIndex(interior), ast.Zen, ast.Zen
		if tok.Text[0] == '(' {
			return inner, nil
		}
		return p.bracket(tok.Text[0], tok.Loc, inner)

	case lexer.Open:
		open := tok.Text[0]
		close := matchingClose(open)
		p.advance()
		if p.cur().Kind == lexer.Close && p.cur().Text[0] == close {
			p.advance()
			if open == '(' {
				return ast.Zen, nil
			}
			return p.bracket(open, tok.Loc, ast.Zen)
		}
		inner, err := p.assemblage()
		if err != nil {
			return nil, err
		}
		if p.cur().Kind == lexer.Close && p.cur().Text[0] == close {
			p.advance()
		}
		if open == '(' {
			return inner, nil
		}
		return p.bracket(open, tok.Loc, inner)

	case lexer.Operator:
		p.advance()
		n, err := p.alloc(ast.Operator)
		if err != nil {
			return nil, err
		}
		n.Loc, n.Qual, n.A, n.B = tok.Loc, p.operatorIndex(tok.Text), ast.Zen, ast.Zen
		return n, nil

	default:
		return ast.Zen, nil
	}
}

// applicate folds a run of primaries by juxtaposition, mirroring new_ast's
// reuse of an existing Operator node when the left side is already one
// awaiting an operand, or the right side is a bare bracket literal awaiting
// a subject (turning `a` `[i]` into the subscript `a[i]`).
func (p *Parser) applicate() (*ast.Node, error) {
	expr, err := p.primary()
	if err != nil {
		return nil, err
	}

	for isPrimaryStart(p.cur().Kind) && !p.isInfixWord(p.cur()) {
		rhs, err := p.primary()
		if err != nil {
			return nil, err
		}

		switch {
		case expr.Kind == ast.Operator && isZen(asNode(expr.B)):
			expr.B = rhs

		case rhs.Kind == ast.Operator && (rhs.Qual == OpArray || rhs.Qual == OpEnv) && isZen(asNode(rhs.A)):
			rhs.A = expr
			expr = rhs

		default:
			n, err := p.alloc(ast.Operator)
			if err != nil {
				return nil, err
			}
			n.Loc, n.Qual, n.A, n.B = rhs.Loc, OpApply, expr, rhs
			expr = n
		}
	}

	return expr, nil
}

func asNode(v any) *ast.Node {
	n, _ := v.(*ast.Node)
	if n == nil {
		return ast.Zen
	}
	return n
}

func (p *Parser) lookupOperator(name string) (int32, bool) {
	idx, _, ok := p.tables.Operators.Lookup(name)
	if !ok {
		return 0, false
	}
	return int32(idx), true
}

// operatorIndex resolves name's table index, interning a placeholder entry
// for an unknown lexeme so the catch-all Operator node stays keyed by name:
// if the program later defines the operator (`"op"(a,b) :: body`), Define
// overwrites the placeholder at the same index and the already-parsed nodes
// dispatch to it; left undefined, Evalop reports InvalidOperator for the
// placeholder's non-operator Kind.
func (p *Parser) operatorIndex(name string) int32 {
	if idx, ok := p.lookupOperator(name); ok {
		return idx
	}
	placeholder, ok := p.c.Alloc(ast.VoidKind)
	if !ok {
		return OpUnregistered
	}
	placeholder.Qual = int32(PDeclarative)
	return int32(p.tables.Operators.Define(name, placeholder))
}

func (p *Parser) precedenceOf(name string) (Precedence, bool) {
	_, node, ok := p.tables.Operators.Lookup(name)
	if !ok {
		return PNone, false
	}
	return Precedence(node.Qual), true
}

// isInfixWord reports whether tok is an Identifier lexeme whose text names a
// registered operator (`land`, `while`, `else`, ...). Word-spelled operators
// lex as identifiers — operator lexemes proper are maximal runs of operator
// code points — so both the applicate fold and the precedence climb have to
// consult the live operator table to tell an operand identifier from an
// infix word (spec.md §4.4: precedence is read from the `operators`
// environment at parse time).
func (p *Parser) isInfixWord(tok lexer.Token) bool {
	if tok.Kind != lexer.Identifier {
		return false
	}
	_, _, ok := p.tables.Operators.Lookup(tok.Text)
	return ok
}

// matchesLevel reports whether the infix operator token belongs at this
// climb level: either its name is registered at exactly this precedence
// tier, or it is an unregistered operator lexeme, in which case it is still
// consumed — at the loosest (PDeclarative) tier — rather than left sitting
// in the token stream where it would silently truncate the rest of the
// input. spec.md §4.4: "Unknown lexemes fall into a catch-all that still
// produces an Operator node keyed by the name (bound later or reported as
// InvalidOperator at eval)." An identifier token only ever matches when
// registered; an unknown identifier is an operand, not an operator.
func (p *Parser) matchesLevel(tok lexer.Token, level Precedence) bool {
	switch tok.Kind {
	case lexer.Operator:
		prec, ok := p.precedenceOf(tok.Text)
		if ok {
			return prec == level
		}
		return level == PDeclarative
	case lexer.Identifier:
		prec, ok := p.precedenceOf(tok.Text)
		return ok && prec == level
	default:
		return false
	}
}

func (p *Parser) operation(level Precedence) (*ast.Node, error) {
	var expr *ast.Node
	var err error
	if level < PBinding {
		expr, err = p.operation(level + 1)
	} else {
		expr, err = p.applicate()
	}
	if err != nil {
		return nil, err
	}

	for p.matchesLevel(p.cur(), level) {
		tok := p.advance()
		idx := p.operatorIndex(tok.Text)

		var rhs *ast.Node
		if level < PBinding {
			rhs, err = p.operation(level + 1)
		} else {
			rhs, err = p.applicate()
		}
		if err != nil {
			return nil, err
		}

		n, err := p.alloc(ast.Operator)
		if err != nil {
			return nil, err
		}
		n.Loc, n.Qual, n.A, n.B = tok.Loc, idx, expr, rhs
		expr = n
	}

	return expr, nil
}

func (p *Parser) sequence() (*ast.Node, error) {
	expr, err := p.operation(PDeclarative)
	if err != nil {
		return nil, err
	}

	for p.cur().Kind == lexer.Comma {
		tok := p.advance()
		// A trailing separator before EOF or a closing bracket terminates
		// the chain rather than appending a Zen element, so `1+2,` still
		// evaluates to 3, not to Zen.
		if k := p.cur().Kind; k == lexer.EOF || k == lexer.Close {
			break
		}
		rhs, err := p.operation(PDeclarative)
		if err != nil {
			return nil, err
		}
		n, err := p.alloc(ast.Sequence)
		if err != nil {
			return nil, err
		}
		n.Loc, n.A, n.B = tok.Loc, expr, rhs
		expr = n
	}

	return expr, nil
}

func (p *Parser) assemblage() (*ast.Node, error) {
	expr, err := p.sequence()
	if err != nil {
		return nil, err
	}

	for p.cur().Kind == lexer.Semicolon {
		tok := p.advance()
		if k := p.cur().Kind; k == lexer.EOF || k == lexer.Close {
			break
		}
		rhs, err := p.sequence()
		if err != nil {
			return nil, err
		}
		n, err := p.alloc(ast.Assemblage)
		if err != nil {
			return nil, err
		}
		n.Loc, n.A, n.B = tok.Loc, expr, rhs
		expr = n
	}

	return expr, nil
}
