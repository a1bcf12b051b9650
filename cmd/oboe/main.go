package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/teris-io/cli"

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

var Description = strings.ReplaceAll(`
oboe evaluates a small expression-oriented language: source text is tokenized,
parsed against a user-extensible operator table, and walked directly against
nested lexical environments. The evaluator is itself exposed to programs via
the parse/eval/import builtins.
`, "\n", " ")

// Oboe exposes the reference-only CLI surface from spec.md §6 (-x/-I/-i,
// positional FILE, -q, -n, plus -t and -g) as flags that drive pkg/lexer, pkg/parser and
// pkg/eval, the same cli.New/WithArg/WithOption/WithAction shape
// cmd/jack_compiler/main.go builds its own front end with.
var Oboe = cli.New(Description).
	WithArg(cli.NewArg("file", "Source file to load and evaluate").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("x", "Evaluate EXPR instead of (or before) FILE").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("I", "Search path(s) consulted by import, comma-separated").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("i", "File(s) to import before FILE/-x, comma-separated").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("q", "Suppress the printed result of the final expression").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("n", "Parse only; print the AST instead of evaluating").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("t", "Enable goparsec's PARSEC_DEBUG-style lexer trace").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("g", "Write the token tree of FILE/-x as Graphviz DOT to PATH").
		WithType(cli.TypeString)).
	WithAction(Handler)

func main() { os.Exit(Oboe.Run(os.Args, os.Stdout)) }

// session bundles the collector and tables every top-level step (import,
// -x, FILE) shares, mirroring Context's role one layer up.
type session struct {
	gc        *gc.Collector
	tbl       *env.Tables
	ctx       *eval.Context
	graphPath string
}

func newSession() *session {
	c := gc.New()
	tbl := &env.Tables{Operators: env.NewOperatorTable()}

	globals, err := env.New(c, nil)
	if err != nil {
		fmt.Printf("ERROR: out of memory constructing globals: %s\n", err)
		os.Exit(-1)
	}
	tbl.Globals = globals
	// Top-level/REPL statements run with Statics/Locals both pointing at
	// Globals; pkg/eval reseats both around every Function/OperatorFunction
	// call and restores this pair on return (see env.Tables' doc comment).
	tbl.Statics = globals
	tbl.Locals = globals

	system, err := env.New(c, nil)
	if err != nil {
		fmt.Printf("ERROR: out of memory constructing system_environment: %s\n", err)
		os.Exit(-1)
	}
	tbl.System = system

	c.AddRoot(tbl)

	builtin.InstallAll(c, tbl)

	types := odt.NewRegistry()
	odt.RegisterShipped(types)

	return &session{gc: c, tbl: tbl, ctx: &eval.Context{GC: c, Tbl: tbl, Types: types}}
}

func Handler(args []string, options map[string]string) int {
	if _, on := options["t"]; on {
		os.Setenv("PARSEC_DEBUG", "1")
	}

	s := newSession()
	s.graphPath, _ = options["g"]

	if paths, ok := options["I"]; ok {
		for _, p := range strings.Split(paths, ",") {
			if p != "" {
				s.tbl.AddSearchPath(p)
			}
		}
	}

	_, noeval := options["n"]
	_, quiet := options["q"]

	if imports, ok := options["i"]; ok {
		for _, path := range strings.Split(imports, ",") {
			if path == "" {
				continue
			}
			if rc := s.runFile(path, noeval, true); rc != 0 {
				return rc
			}
		}
	}

	ran := false

	if expr, ok := options["x"]; ok {
		ran = true
		if rc := s.runSource([]byte(expr), "<-x>", noeval, quiet); rc != 0 {
			return rc
		}
	}

	if len(args) > 0 && args[0] != "" {
		ran = true
		if rc := s.runFile(args[0], noeval, quiet); rc != 0 {
			return rc
		}
	}

	if !ran {
		fmt.Printf("ERROR: nothing to evaluate, provide FILE or -x EXPR; use --help\n")
		return -1
	}

	return 0
}

func (s *session) runFile(path string, noeval, quiet bool) int {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("ERROR: unable to open input file: %s\n", err)
		return -1
	}
	return s.runSource(content, path, noeval, quiet)
}

func (s *session) runSource(content []byte, name string, noeval, quiet bool) int {
	sourceID := s.tbl.InternSource(name)

	toks, err := lexer.Tokenize(content, sourceID)
	if err != nil {
		fmt.Printf("ERROR: unable to complete 'lexing' pass: %s\n", err)
		return -1
	}

	if s.graphPath != "" {
		if err := os.WriteFile(s.graphPath, []byte(lexer.Dotstring(fmt.Sprintf("%q", name))), 0o644); err != nil {
			fmt.Printf("ERROR: unable to write graph file: %s\n", err)
			return -1
		}
	}

	p := parser.New(s.gc, s.tbl, toks)
	program, err := p.ParseAssemblage()
	if err != nil {
		fmt.Printf("ERROR: unable to complete 'parsing' pass: %s\n", err)
		return -1
	}

	if noeval {
		fmt.Printf("%s\n", describe(program))
		return 0
	}

	result := ast.Zen
	for _, stmt := range eval.FlattenList(program) {
		top := s.gc.Depth()
		v, err := eval.Eval(s.ctx, s.tbl.Globals, stmt)
		if err != nil {
			fmt.Printf("ERROR: %s\n", err)
			return -1
		}
		result = s.gc.Return(top, v)
		if errs.IsError(result) {
			fmt.Printf("%s\n", errs.Message(result, s.tbl))
			return -1
		}
		s.gc.Collect()
	}

	if !quiet {
		fmt.Printf("%s\n", describe(result))
	}
	return 0
}

// describe renders a value well enough for the CLI and --noeval dump; it is
// not the language's own `print` builtin, just the driver's diagnostic text.
func describe(n *ast.Node) string {
	if n == nil {
		return "Zen"
	}
	switch n.Kind {
	case ast.ZenKind:
		return "Zen"
	case ast.Boolean:
		return fmt.Sprintf("%v", n.A)
	case ast.Integer:
		return fmt.Sprintf("%d", n.A)
	case ast.Float:
		return fmt.Sprintf("%g", n.A)
	case ast.Character:
		return fmt.Sprintf("%q", n.A)
	case ast.String:
		return fmt.Sprintf("%q", n.A)
	case ast.Identifier:
		return fmt.Sprintf("%v", n.A)
	default:
		return fmt.Sprintf("<%s>", n.Kind)
	}
}
