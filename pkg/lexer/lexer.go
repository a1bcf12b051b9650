// Package lexer turns oboe source text into a flat token stream. Tokenizing
// is the one place in the pipeline that still leans on github.com/prataprc/goparsec:
// each lexeme shape gets its own named combinator, wrapping every alternative
// in ast.And so a DFS pass can switch on GetName(), and Tokenize plays the
// role of that DFS — walking the goparsec result into oboe's own Token type.
// Precedence-climbing itself lives one layer up, in pkg/parser, and never
// touches goparsec at all.
package lexer

import (
	"bytes"
	"fmt"
	"os"

	pc "github.com/prataprc/goparsec"

	"github.com/stytri/oboe/pkg/ast"
)

var astb = pc.NewAST("oboe_tokens", 0)

var (
	bq = "`"

	pTokens = astb.ManyUntil("tokens", nil, pToken, pc.End())

	pToken = astb.OrdChoice("token", nil,
		pHexFloatLit, pHexIntLit, pFloatLit, pIntLit,
		pBracketedOpLit, pEmptyGroupLit,
		pStringLit, pSQuotedLit, pBQuotedLit,
		pIdentLit, pOperatorLit,
		pOpenLit, pCloseLit, pCommaLit, pSemiLit,
	)

	// Not pc.Int()/pc.Float(): those accept a leading sign, and a number
	// lexeme begins with a digit — `1-2` must lex as Integer Operator
	// Integer, with `-` resolved through the operator table.
	pIntLit = astb.And("integer", nil,
		pc.Token(`[0-9]+`, "INT"))
	pFloatLit = astb.And("float", nil,
		pc.Token(`[0-9]+\.[0-9]+([eE][+-]?[0-9]+)?`, "FLOAT"))

	pHexIntLit = astb.And("hexint", nil,
		pc.Token(`0[xX][0-9a-fA-F]+`, "HEXINT"))
	pHexFloatLit = astb.And("hexfloat", nil,
		pc.Token(`0[xX][0-9a-fA-F]+(\.[0-9a-fA-F]+)?[pP][+-]?[0-9]+`, "HEXFLOAT"))

	pIdentLit = astb.And("ident", nil,
		pc.Token(`[\p{L}\p{Nl}_][\p{L}\p{Nl}\p{Mn}\p{Mc}\p{Nd}_]*`, "IDENT"))
	pOperatorLit = astb.And("operator", nil,
		pc.Token(`[!$%&*+\-./:<=>?@^|~]+`, "OPERATOR"))

	pStringLit = astb.And("string", nil,
		pc.Token(`"[^"]*"`, "STRING"))
	pSQuotedLit = astb.And("squoted", nil,
		pc.Token(`'(?:\\.|[^'\\])*'`, "SQUOTED"))
	pBQuotedLit = astb.And("bquoted", nil,
		pc.Token(bq+`(?:\\.|[^`+bq+`\\])*`+bq, "BQUOTED"))

	pBracketedOpLit = astb.And("bracketop", nil,
		pc.Token(`(\([!$%&*+\-./:<=>?@^|~]+\)|\[[!$%&*+\-./:<=>?@^|~]+\]|\{[!$%&*+\-./:<=>?@^|~]+\})`, "BRACKETOP"))
	pEmptyGroupLit = astb.And("emptygroup", nil,
		pc.Token(`(\(\)|\[\]|\{\})`, "EMPTYGROUP"))

	pOpenLit  = astb.And("open", nil, pc.Token(`[([{]`, "OPEN"))
	pCloseLit = astb.And("close", nil, pc.Token(`[)\]}]`, "CLOSE"))
	pCommaLit = astb.And("comma", nil, pc.Token(",", "COMMA"))
	pSemiLit  = astb.And("semi", nil, pc.Token(";", "SEMI"))
)

var kindByName = map[string]Kind{
	"integer":    Integer,
	"hexint":     Integer,
	"float":      Float,
	"hexfloat":   Float,
	"ident":      Identifier,
	"operator":   Operator,
	"string":     String,
	"squoted":    Character,
	"bquoted":    Character,
	"bracketop":  BracketedOperator,
	"emptygroup": EmptyGroup,
	"open":       Open,
	"close":      Close,
	"comma":      Comma,
	"semi":       Semicolon,
}

// Tokenize scans source (one file, interned as sourceID in the caller's
// Tables) into a flat Token stream terminated by an EOF token. Comments are
// blanked, not tokenized, matching lex.c's "skip and restart" comment
// handling rather than emitting comment tokens for the parser to discard.
func Tokenize(source []byte, sourceID int) ([]Token, error) {
	// Feature flag: enable goparsec's own debug tracing via the same
	// PARSEC_DEBUG env var its combinators already gate on.
	if os.Getenv("PARSEC_DEBUG") != "" {
		astb.SetDebug()
	}

	buf := blank(source)

	root, scnr := astb.Parsewith(pTokens, pc.NewScanner(buf))
	if root == nil || !scnr.Endof() {
		return nil, fmt.Errorf("lexing source %d: goparsec could not tokenize the full input", sourceID)
	}

	toks := make([]Token, 0, len(root.GetChildren())+1)

	cursor, line, lineStart := 0, 0, 0
	for _, child := range root.GetChildren() {
		kind, ok := kindByName[child.GetName()]
		if !ok {
			return nil, fmt.Errorf("lexing source %d: unrecognized token node %q", sourceID, child.GetName())
		}
		text := child.GetValue()

		idx := bytes.Index(buf[cursor:], []byte(text))
		if idx < 0 {
			return nil, fmt.Errorf("lexing source %d: lost synchronization looking for %q", sourceID, text)
		}
		idx += cursor

		for cursor < idx {
			if buf[cursor] == '\n' {
				line++
				lineStart = cursor + 1
			}
			cursor++
		}

		loc := ast.NewSloc(sourceID, line, idx-lineStart, len(text))
		toks = append(toks, Token{Kind: kind, Text: text, Loc: loc})
		cursor = idx + len(text)
	}

	for cursor < len(buf) {
		if buf[cursor] == '\n' {
			line++
			lineStart = cursor + 1
		}
		cursor++
	}
	toks = append(toks, Token{Kind: EOF, Loc: ast.NewSloc(sourceID, line, cursor-lineStart, 0)})

	return toks, nil
}

// Dotstring renders the token tree built by the most recent Tokenize call as
// Graphviz DOT source, reusing goparsec's own ast.Dotstring; the CLI's
// g option writes this straight to a file.
func Dotstring(title string) string { return astb.Dotstring(title) }
