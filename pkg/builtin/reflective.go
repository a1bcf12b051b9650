package builtin

import (
	"os"
	"path/filepath"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/eval"
	"github.com/stytri/oboe/pkg/lexer"
	"github.com/stytri/oboe/pkg/parser"
)

// InstallReflective wires the self-referential builtins spec.md §4.9/
// "Design notes" calls out (parse, eval, import), the is_* type predicates
// an eval/parse-capable language needs to inspect its own raw trees, and
// the `` `global` ``/`` `static` ``/`` `local` `` scope operators spec.md
// §4.7 "Scope" describes.
func InstallReflective(r *Registrar) {
	r.Function("parse", parseFunction)
	r.Function("eval", evalFunction)
	r.Function("import", importFunction)

	r.Function("is_Zen", isKind(ast.ZenKind))
	r.Function("is_Boolean", isKind(ast.Boolean))
	r.Function("is_Integer", isKind(ast.Integer))
	r.Function("is_Character", isKind(ast.Character))
	r.Function("is_Float", isKind(ast.Float))
	r.Function("is_String", isKind(ast.String))
	r.Function("is_Identifier", isKind(ast.Identifier))
	r.Function("is_Operator", isKind(ast.Operator))
	r.Function("is_Sequence", isKind(ast.Sequence))
	r.Function("is_Assemblage", isKind(ast.Assemblage))
	r.Function("is_Quoted", isKind(ast.Quoted))
	r.Function("is_Reference", isKind(ast.Reference))
	r.Function("is_Function", isKind(ast.Function))
	r.Function("is_Environment", isKind(ast.Environment))
	r.Function("is_Error", isKind(ast.ErrorKind))
	r.Function("is_Numeric", isPredicate(func(n *ast.Node) bool { return n.Kind.IsNumeric() }))
	r.Function("is_Deferred", isPredicate(func(n *ast.Node) bool { return n.Kind.IsDeferred() }))

	r.Operator("global", PDeclarative, scopeOperator(func(ctx *eval.Context) *ast.Node { return ctx.Tbl.Globals }))
	r.Operator("static", PDeclarative, scopeOperator(func(ctx *eval.Context) *ast.Node { return ctx.Tbl.Statics }))
	r.Operator("local", PDeclarative, scopeOperator(func(ctx *eval.Context) *ast.Node { return ctx.Tbl.Locals }))
}

func isKind(k ast.Kind) eval.BuiltinFunctionFn {
	return isPredicate(func(n *ast.Node) bool { return n.Kind == k })
}

// isPredicate builds an is_* BuiltinFunction: it subevals (not refevals) its
// argument so the raw, unresolved shape of a Reference/Quoted is what gets
// inspected, matching spec.md §4.7's "some, like eval/parse/is_*, inspect
// the raw tree".
func isPredicate(pred func(n *ast.Node) bool) eval.BuiltinFunctionFn {
	return func(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, arg *ast.Node) (*ast.Node, error) {
		n, err := eval.SubEval(ctx, locals, arg)
		if err != nil {
			return nil, err
		}
		if errs.IsError(n) {
			return n, nil
		}
		return newBool(ctx, pred(n))
	}
}

// scopeOperator implements `global`/`static`/`local` (spec.md §4.7
// "Scope"): with a ZEN left operand it simply evaluates rexpr against the
// named scope; otherwise lexpr is evaluated first in the caller's locals
// and, if an Environment, seeds the named scope for the duration of rexpr.
func scopeOperator(pick func(ctx *eval.Context) *ast.Node) eval.BuiltinOperatorFn {
	return func(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
		scope := pick(ctx)

		if lexpr != nil && !lexpr.IsZen() {
			seed, err := eval.Eval(ctx, locals, lexpr)
			if err != nil || errs.IsError(seed) {
				return seed, err
			}
			if seed.Kind == ast.Environment {
				scope = seed
			}
		}

		return eval.Eval(ctx, scope, rexpr)
	}
}

// parseFunction tokenizes and parses the string arg evaluates to, returning
// the result wrapped in Quoted so the caller controls whether and when it
// is executed (spec.md §4.9's introspection factory, and the `parse` half
// of the eval(parse(print(a))) ≡ a round trip, spec.md §8 property 3).
func parseFunction(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, arg *ast.Node) (*ast.Node, error) {
	src, err := eval.Eval(ctx, locals, arg)
	if err != nil || errs.IsError(src) {
		return src, err
	}
	if src.Kind != ast.String {
		return argError(ctx, loc, "parse requires a string")
	}
	text, _ := src.A.(string)

	sourceID := ctx.Tbl.InternSource("<parse>")
	toks, err := lexer.Tokenize([]byte(text), sourceID)
	if err != nil {
		return argError(ctx, loc, err.Error())
	}

	p := parser.New(ctx.GC, ctx.Tbl, toks)
	tree, err := p.ParseAssemblage()
	if err != nil {
		return argError(ctx, loc, err.Error())
	}

	q, ok := ctx.GC.Alloc(ast.Quoted)
	if !ok {
		return argError(ctx, loc, "out of memory parsing")
	}
	q.B = tree
	q.Loc = loc
	return q, nil
}

// evalFunction is the reflective face of eval.Eval itself: refeval the
// argument down to whatever it is bound to, then force one layer of quoting
// — which is exactly what evaluates a tree previously captured by `parse`.
func evalFunction(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, arg *ast.Node) (*ast.Node, error) {
	return eval.Eval(ctx, locals, arg)
}

// importFunction resolves the string arg evaluates to against search_paths
// (unless it is already absolute), reads the file, and evaluates each
// top-level statement of its sequence in turn against globals, taking a GC
// safe point between statements (spec.md §4.2 "between statements of an
// imported file"). The value of the last statement is returned, matching
// spec.md §8's "Import and eval" example.
func importFunction(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, arg *ast.Node) (*ast.Node, error) {
	src, err := eval.Eval(ctx, locals, arg)
	if err != nil || errs.IsError(src) {
		return src, err
	}
	if src.Kind != ast.String {
		return argError(ctx, loc, "import requires a string")
	}
	path, _ := src.A.(string)

	resolved, ok := resolveImportPath(ctx, path)
	if !ok {
		return errs.New(ctx.GC, errs.FailedOperation, loc, "import: file not found: "+path)
	}

	data, ferr := os.ReadFile(resolved)
	if ferr != nil {
		return errs.New(ctx.GC, errs.FailedOperation, loc, "import: "+ferr.Error())
	}

	sourceID := ctx.Tbl.InternSource(resolved)
	toks, terr := lexer.Tokenize(data, sourceID)
	if terr != nil {
		return argError(ctx, loc, terr.Error())
	}

	p := parser.New(ctx.GC, ctx.Tbl, toks)
	program, perr := p.ParseAssemblage()
	if perr != nil {
		return argError(ctx, loc, perr.Error())
	}

	result := ast.Zen
	for _, stmt := range flattenAssemblage(program) {
		top := ctx.GC.Depth()
		v, serr := eval.Eval(ctx, ctx.Tbl.Globals, stmt)
		if serr != nil {
			return nil, serr
		}
		result = ctx.GC.Return(top, v)
		if errs.IsError(result) {
			return result, nil
		}
		ctx.GC.Collect()
	}
	return result, nil
}

// flattenAssemblage splits a `;`-joined top-level program into its
// individual statements, the Assemblage-kind counterpart of
// eval.FlattenSequence (which only unpacks comma-joined Sequence nodes).
func flattenAssemblage(n *ast.Node) []*ast.Node {
	if n == nil || n.IsZen() {
		return nil
	}
	if n.Kind == ast.Assemblage {
		left := flattenAssemblage(eval.AsNode(n.A))
		right := flattenAssemblage(eval.AsNode(n.B))
		return append(left, right...)
	}
	return []*ast.Node{n}
}

// resolveImportPath applies spec.md §3.3's search_paths walk: an absolute
// path is used as-is, otherwise each search path is tried in order.
func resolveImportPath(ctx *eval.Context, path string) (string, bool) {
	if env.IsAbsolute(path) {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
		return "", false
	}
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	for _, dir := range ctx.Tbl.SearchPaths() {
		candidate := filepath.Join(dir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}
