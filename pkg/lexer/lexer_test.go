package lexer_test

import (
	"testing"

	"github.com/stytri/oboe/pkg/lexer"
)

func kinds(t *testing.T, toks []lexer.Token) []lexer.Kind {
	t.Helper()
	ks := make([]lexer.Kind, len(toks))
	for i, tok := range toks {
		ks[i] = tok.Kind
	}
	return ks
}

func TestTokenizeArithmeticExpression(t *testing.T) {
	toks, err := lexer.Tokenize([]byte("1 + 2 * 3"), 0)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []lexer.Kind{lexer.Integer, lexer.Operator, lexer.Integer, lexer.Operator, lexer.Integer, lexer.EOF}
	got := kinds(t, toks)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(got), len(want), toks)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v (%+v)", i, got[i], want[i], toks[i])
		}
	}
}

func TestTokenizeSkipsLineAndNestedBlockComments(t *testing.T) {
	src := "1 # a comment\n + #( nested ( parens ) still nested ) 2"
	toks, err := lexer.Tokenize([]byte(src), 0)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []lexer.Kind{lexer.Integer, lexer.Operator, lexer.Integer, lexer.EOF}
	got := kinds(t, toks)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(got), len(want), toks)
	}
}

func TestTokenizeStringAndCharacterLiterals(t *testing.T) {
	toks, err := lexer.Tokenize([]byte(`"raw \n text" 'escaped\n'`), 0)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(toks) < 2 || toks[0].Kind != lexer.String || toks[1].Kind != lexer.Character {
		t.Fatalf("unexpected tokens: %+v", toks)
	}
	if got := lexer.UnquoteString(toks[0].Text); got != `raw \n text` {
		t.Fatalf("double-quoted string should stay raw, got %q", got)
	}
	if got := lexer.UnquoteCharacter(toks[1].Text); got != "escaped\n" {
		t.Fatalf("single-quoted escape should decode, got %q", got)
	}
}

func TestUnrecognisedEscapeIsLiteralCharacter(t *testing.T) {
	// Only \n and \t decode to control characters; everything else escaped
	// stands for itself, so \r is the letter r and \0 is the digit 0.
	if got := lexer.UnquoteCharacter(`'\r'`); got != "r" {
		t.Fatalf(`\r should decode to "r", got %q`, got)
	}
	if got := lexer.UnquoteCharacter(`'\0'`); got != "0" {
		t.Fatalf(`\0 should decode to "0", got %q`, got)
	}
	if got := lexer.UnquoteCharacter(`'\\'`); got != `\` {
		t.Fatalf(`\\ should decode to a backslash, got %q`, got)
	}
}

func TestTokenizeBracketedOperatorAndEmptyGroup(t *testing.T) {
	toks, err := lexer.Tokenize([]byte(`(+) ()`), 0)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []lexer.Kind{lexer.BracketedOperator, lexer.EmptyGroup, lexer.EOF}
	got := kinds(t, toks)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(got), len(want), toks)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestHashInsideStringIsNotAComment(t *testing.T) {
	toks, err := lexer.Tokenize([]byte(`"a#b" 1`), 0)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []lexer.Kind{lexer.String, lexer.Integer, lexer.EOF}
	got := kinds(t, toks)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(got), len(want), toks)
	}
	if lexer.UnquoteString(toks[0].Text) != "a#b" {
		t.Fatalf("string body altered: %q", toks[0].Text)
	}
}

func TestTokenizeLocationsTrackLines(t *testing.T) {
	toks, err := lexer.Tokenize([]byte("1\n22"), 0)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[0].Loc.Line() != 0 {
		t.Fatalf("first token should be on line 0, got %d", toks[0].Loc.Line())
	}
	if toks[1].Loc.Line() != 1 {
		t.Fatalf("second token should be on line 1, got %d", toks[1].Loc.Line())
	}
}
