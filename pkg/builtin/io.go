package builtin

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/eval"
)

// Stdout and Stdin are the streams the I/O builtins talk to, package-level
// so tests can reseat them.
var (
	Stdout io.Writer = os.Stdout
	Stdin  io.Reader = os.Stdin
)

var stdinReader *bufio.Reader

// InstallIO wires the blocking builtins from spec.md §5's suspension-point
// list that belong to the core language surface: print/print_line render a
// value back to source-shaped text (the `print` half of the
// eval(parse(print(a))) round trip, spec.md §8 property 3), read_line
// consumes one line of standard input, and assert reports source, line and
// message — exiting when its trailing argument says "fatal" (spec.md §7).
func InstallIO(r *Registrar) {
	r.Function("print", printFunction(""))
	r.Function("print_line", printFunction("\n"))
	r.Function("read_line", readLineFunction)
	r.Function("assert", assertFunction)

	// The shipped opaque data types (spec.md §4.8) surface as constructor
	// functions: open(path) yields a `file` reference, fpos(file) snapshots
	// its position.
	r.Function("open", odtConstructor("file"))
	r.Function("fpos", odtConstructor("fpos"))
}

func odtConstructor(typeName string) eval.BuiltinFunctionFn {
	return func(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, arg *ast.Node) (*ast.Node, error) {
		v, err := eval.Eval(ctx, locals, arg)
		if err != nil || errs.IsError(v) {
			return v, err
		}
		n, err := ctx.Types.New(ctx.GC, typeName, v)
		if err != nil {
			return errs.New(ctx.GC, errs.KindOf(err), loc, err.Error())
		}
		return n, nil
	}
}

func printFunction(suffix string) eval.BuiltinFunctionFn {
	return func(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, arg *ast.Node) (*ast.Node, error) {
		var b strings.Builder
		for i, el := range eval.FlattenSequence(arg) {
			v, err := eval.Eval(ctx, locals, el)
			if err != nil || errs.IsError(v) {
				return v, err
			}
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(Render(v, ctx.Tbl))
		}
		b.WriteString(suffix)

		text := b.String()
		fmt.Fprint(Stdout, text)

		out, ok := ctx.GC.Alloc(ast.String)
		if !ok {
			return argError(ctx, loc, "out of memory")
		}
		out.A = text
		return out, nil
	}
}

func readLineFunction(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, arg *ast.Node) (*ast.Node, error) {
	if stdinReader == nil {
		stdinReader = bufio.NewReader(Stdin)
	}
	line, err := stdinReader.ReadString('\n')
	if err != nil && err != io.EOF {
		return errs.New(ctx.GC, errs.FailedOperation, loc, err.Error())
	}
	if err == io.EOF && line == "" {
		return errs.New(ctx.GC, errs.FailedOperation, loc, "end of input")
	}

	out, ok := ctx.GC.Alloc(ast.String)
	if !ok {
		return argError(ctx, loc, "out of memory")
	}
	out.A = strings.TrimRight(line, "\r\n")
	return out, nil
}

// assertFunction takes (condition, message[, fatal]): a falsy condition
// prints "SOURCE:LINE:OFFSET:SPAN: assertion failed: MESSAGE" and, when the third
// argument is the string "fatal" or a non-zero number, terminates the
// process with a failing exit code.
func assertFunction(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, arg *ast.Node) (*ast.Node, error) {
	parts := eval.FlattenSequence(arg)
	if len(parts) == 0 {
		return argError(ctx, loc, "assert requires a condition")
	}

	cond, err := eval.Eval(ctx, locals, parts[0])
	if err != nil || errs.IsError(cond) {
		return cond, err
	}
	if truthy(cond) {
		return newBool(ctx, true)
	}

	msg := ""
	if len(parts) > 1 {
		m, err := eval.Eval(ctx, locals, parts[1])
		if err != nil || errs.IsError(m) {
			return m, err
		}
		msg = Render(m, ctx.Tbl)
	}
	fmt.Fprintf(Stdout, "%s: assertion failed: %s\n", loc.Format(ctx.Tbl), msg)

	if len(parts) > 2 {
		f, err := eval.Eval(ctx, locals, parts[2])
		if err != nil || errs.IsError(f) {
			return f, err
		}
		fatal := truthy(f)
		if f.Kind == ast.String {
			fatal = f.A.(string) == "fatal"
		}
		if fatal {
			os.Exit(1)
		}
	}
	return newBool(ctx, false)
}

// Render writes a value as source-shaped text: literals re-read as
// themselves (Character and String quoted so parse(print(a)) reproduces a),
// environments as bracketed element lists, everything else as a
// diagnostic placeholder.
func Render(n *ast.Node, names ast.SourceNamer) string {
	if n == nil {
		return "()"
	}
	switch n.Kind {
	case ast.ZenKind:
		return "()"
	case ast.Boolean:
		if n.A.(bool) {
			return "1"
		}
		return "0"
	case ast.Integer:
		return fmt.Sprintf("%d", n.A)
	case ast.Float:
		return fmt.Sprintf("%g", n.A)
	case ast.Character:
		return renderCharacter(n.A.(rune))
	case ast.String:
		// Double-quoted literals are raw (no escape processing, interior
		// EOLs permitted), so any string free of a double quote re-reads
		// exactly. A string containing '"' is written in Go's %q form, which
		// the lexer's raw double-quoted literal does not read back as the
		// same string.
		s := n.A.(string)
		if !strings.Contains(s, `"`) {
			return `"` + s + `"`
		}
		return fmt.Sprintf("%q", s)
	case ast.Identifier:
		return n.A.(string)
	case ast.Reference:
		return Render(refPayload(n), names)
	case ast.Environment:
		var b strings.Builder
		b.WriteByte('[')
		for i := 0; i < env.Len(n); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(Render(env.At(n, i), names))
		}
		b.WriteByte(']')
		return b.String()
	case ast.ErrorKind:
		return errs.Message(n, names)
	default:
		return fmt.Sprintf("<%s>", n.Kind)
	}
}

func renderCharacter(r rune) string {
	switch r {
	case '\n':
		return `'\n'`
	case '\t':
		return `'\t'`
	case '\\':
		return `'\\'`
	case '\'':
		return `'\''`
	}
	if r >= 0x20 && r < 0x7f {
		return "'" + string(r) + "'"
	}
	return fmt.Sprintf(`'\U%08X'`, r)
}

func refPayload(n *ast.Node) *ast.Node {
	for n != nil && n.Kind == ast.Reference {
		next, _ := n.B.(*ast.Node)
		n = next
	}
	if n == nil {
		return ast.Zen
	}
	return n
}
