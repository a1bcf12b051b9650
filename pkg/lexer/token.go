package lexer

import "github.com/stytri/oboe/pkg/ast"

// Kind tags a lexeme with enough shape information for the parser's primary
// rule to dispatch on, without re-inspecting the raw text.
type Kind uint8

const (
	Integer Kind = iota
	Float
	Character
	String
	Identifier
	Operator
	BracketedOperator // "(+)", "[..]", "{~}" — an operator named as a value
	EmptyGroup        // "()", "[]", "{}"
	Open              // '(' '[' '{'
	Close             // ')' ']' '}'
	Comma
	Semicolon
	EOF
)

// Token is one lexeme together with its source location. Text is the raw
// slice as it appeared in the source (quotes and escapes included) — string
// and character unescaping happens in the parser, the way lex.c only
// delimits a lexeme and leaves interpretation to a later pass.
type Token struct {
	Kind Kind
	Text string
	Loc  ast.Sloc
}
