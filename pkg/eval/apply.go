package eval

import (
	"strings"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/odt"
	"github.com/stytri/oboe/pkg/parser"
)

func isZen(n *ast.Node) bool { return n == nil || n.IsZen() }

// Param is one formal parameter of a Function. A non-nil Default marks a
// tagged parameter (`name: default`), which binds by value; an untagged
// parameter binds by reference (spec.md §4.5 "Parameter binding").
type Param struct {
	Name    string
	Default *ast.Node
}

// FunctionDef is the payload a Function node carries in its A slot: the
// formal parameter list and an unevaluated body tree. B carries the
// captured closure environment, so a Function value remembers the scope it
// was defined in rather than the scope it is called from.
type FunctionDef struct {
	Params []Param
	Body   *ast.Node
}

// MarkChildren implements gc.Markable: the body and default-value trees
// hang off the payload struct rather than a node slot, so the collector has
// to be told about them.
func (d *FunctionDef) MarkChildren(mark func(*ast.Node)) {
	mark(d.Body)
	for _, p := range d.Params {
		if p.Default != nil {
			mark(p.Default)
		}
	}
}

// applyOperator dispatches the three structural (non-table-indexed) uses of
// an Operator node the parser produces: OpApply (function application by
// juxtaposition), OpArray/OpEnv (bracket/brace literal construction or, once
// a subject is attached, subscript/member access).
func applyOperator(ctx *Context, locals *ast.Node, n *ast.Node) (*ast.Node, error) {
	switch n.Qual {
	case parser.OpApply:
		return applyApply(ctx, locals, n)
	case parser.OpArray:
		return applyBracket(ctx, locals, n, false)
	case parser.OpEnv:
		return applyBracket(ctx, locals, n, true)
	default:
		return fail(ctx, errs.InvalidOperator, n.Loc, "unregistered operator")
	}
}

// RangeBounds reports whether n is a raw (unevaluated) `a..b` application:
// an Operator node whose table entry is named "..". Range is, per spec.md
// §4.6, recognised structurally by its consumers (subscript, case, while)
// rather than materialized as a runtime value of its own — the AST's closed
// Kind enumeration has no dedicated Range tag, so the only way to tell
// `1..4` from any other binary operator is to ask the operator table what
// name resolved to this node's Qual. Shared by pkg/eval's own subscript
// handling and pkg/builtin's case/while.
func RangeBounds(ctx *Context, n *ast.Node) (lo, hi *ast.Node, ok bool) {
	if n == nil || n.Kind != ast.Operator || n.Qual < 0 {
		return nil, nil, false
	}
	name, ok := ctx.Tbl.Operators.NameAt(int(n.Qual))
	if !ok || name != ".." {
		return nil, nil, false
	}
	return asNode(n.A), asNode(n.B), true
}

func applyApply(ctx *Context, locals *ast.Node, n *ast.Node) (*ast.Node, error) {
	lexpr := asNode(n.A)

	// Sequence left: juxtaposing a value after a comma-separated list
	// appends it as a final element (spec.md §4.6 "Applicate" / "Sequence
	// left") rather than applying the sequence's last value as a callee.
	if lexpr.Kind == ast.Sequence {
		seq, ok := ctx.GC.Alloc(ast.Sequence)
		if !ok {
			return fail(ctx, errs.OutOfMemory, n.Loc, "sequence append")
		}
		seq.Loc = n.Loc
		seq.A = lexpr
		seq.B = n.B
		return Eval(ctx, locals, seq)
	}

	callee, err := Eval(ctx, locals, lexpr)
	if err != nil || errs.IsError(callee) {
		return callee, err
	}
	arg := asNode(n.B)

	switch callee.Kind {
	case ast.Function:
		def, _ := callee.A.(*FunctionDef)
		if def == nil {
			return fail(ctx, errs.InvalidOperand, n.Loc, "malformed function")
		}
		closure := asNode(callee.B)
		child, err := env.New(ctx.GC, closure)
		if err != nil {
			return fail(ctx, errs.OutOfMemory, n.Loc, err.Error())
		}
		if bad, err := bindArgs(ctx, locals, child, n.Loc, def.Params, arg); err != nil {
			return nil, err
		} else if bad != nil {
			return bad, nil
		}

		static, err := ctx.Tbl.StaticsFor(ctx.GC, callee.Loc.Source())
		if err != nil {
			return fail(ctx, errs.OutOfMemory, n.Loc, err.Error())
		}
		prevStatics, prevLocals := ctx.Tbl.Statics, ctx.Tbl.Locals
		ctx.Tbl.Statics, ctx.Tbl.Locals = static, child
		result, err := RefEval(ctx, child, def.Body)
		ctx.Tbl.Statics, ctx.Tbl.Locals = prevStatics, prevLocals
		return result, err

	case ast.BuiltinFunction:
		fn, ok := callee.B.(BuiltinFunctionFn)
		if !ok {
			return fail(ctx, errs.InvalidOperand, n.Loc, "malformed builtin function")
		}
		return fn(ctx, locals, n.Loc, arg)

	case ast.OpaqueDataType, ast.OpaqueDataReference:
		inst, ok := odt.InstanceOf(callee)
		if !ok || inst.Type.Eval == nil {
			return fail(ctx, errs.InvalidOperand, n.Loc, "opaque type is not applicable")
		}
		argv, err := Eval(ctx, locals, arg)
		if err != nil || errs.IsError(argv) {
			return argv, err
		}
		v, err := inst.Type.Eval(ctx.GC, inst, argv)
		if err != nil {
			return fail(ctx, errs.FailedOperation, n.Loc, err.Error())
		}
		return v, nil

	case ast.Environment:
		return applyEnvironment(ctx, locals, n.Loc, callee, arg)

	case ast.ErrorKind:
		return callee, nil

	case ast.Boolean, ast.Integer, ast.Float:
		return applyNumeric(ctx, locals, n.Loc, callee, arg)

	case ast.Character:
		return applyCharacter(ctx, locals, n.Loc, callee, arg)

	case ast.String:
		return applyString(ctx, locals, n.Loc, callee, arg)

	default:
		return fail(ctx, errs.InvalidOperand, n.Loc, "not applicable: "+callee.Kind.String())
	}
}

// bindArgs walks the parameter list and the argument sequence in lockstep
// (spec.md §4.5 "Parameter binding"): an untagged parameter binds its
// argument by reference (SubEval keeps an identifier's Reference chain), a
// tagged parameter binds a by-value copy of its argument — or its default,
// evaluated in the caller's scope, when the argument is absent or Zen.
// Excess parameters bind to Zen; excess arguments are packed into a
// trailing Sequence for the last parameter. A non-nil bad return is an
// Error value to propagate.
func bindArgs(ctx *Context, caller, scope *ast.Node, loc ast.Sloc, params []Param, arg *ast.Node) (bad *ast.Node, err error) {
	args := FlattenSequence(arg)

	for i, p := range params {
		var v *ast.Node
		var err error

		switch {
		case i == len(params)-1 && len(args) > len(params):
			v, err = packSequence(ctx, caller, loc, args[i:])
		case i < len(args):
			v, err = bindOneArg(ctx, caller, p, args[i])
		default:
			v, err = defaultOrZen(ctx, caller, p)
		}
		if err != nil {
			return nil, err
		}
		if errs.IsError(v) {
			return v, nil
		}

		if _, err := env.AddEnv(ctx.GC, scope, p.Name, v, 0); err != nil {
			bad, err2 := fail(ctx, errs.InvalidOperand, loc, err.Error())
			return bad, err2
		}
	}
	return nil, nil
}

func bindOneArg(ctx *Context, caller *ast.Node, p Param, argExpr *ast.Node) (*ast.Node, error) {
	if p.Default == nil {
		return SubEval(ctx, caller, argExpr)
	}

	v, err := Eval(ctx, caller, argExpr)
	if err != nil || errs.IsError(v) {
		return v, err
	}
	if v.IsZen() {
		return Eval(ctx, caller, p.Default)
	}
	return dupValue(ctx, v)
}

func defaultOrZen(ctx *Context, caller *ast.Node, p Param) (*ast.Node, error) {
	if p.Default != nil {
		return Eval(ctx, caller, p.Default)
	}
	return ast.Zen, nil
}

// dupValue shallow-copies v into a fresh node, the dup_ast step that gives
// a tagged parameter its own assignable slot.
func dupValue(ctx *Context, v *ast.Node) (*ast.Node, error) {
	n, ok := ctx.GC.Alloc(v.Kind)
	if !ok {
		return fail(ctx, errs.OutOfMemory, v.Loc, "parameter copy")
	}
	n.Attr = v.Attr
	n.Qual = v.Qual
	n.Loc = v.Loc
	n.A = v.A
	n.B = v.B
	return n, nil
}

// packSequence evaluates the surplus argument trees and folds them into a
// right-leaning Sequence for the final parameter.
func packSequence(ctx *Context, caller *ast.Node, loc ast.Sloc, exprs []*ast.Node) (*ast.Node, error) {
	nodes := make([]*ast.Node, 0, len(exprs))
	for _, e := range exprs {
		v, err := SubEval(ctx, caller, e)
		if err != nil || errs.IsError(v) {
			return v, err
		}
		nodes = append(nodes, v)
	}

	result := nodes[len(nodes)-1]
	for i := len(nodes) - 2; i >= 0; i-- {
		seq, ok := ctx.GC.Alloc(ast.Sequence)
		if !ok {
			return fail(ctx, errs.OutOfMemory, loc, "argument pack")
		}
		seq.Loc = loc
		seq.A = nodes[i]
		seq.B = result
		result = seq
	}
	return result, nil
}

// applyNumeric implements the Number x _ rows of spec.md §4.6's applicate
// table: Number x Number is multiplication, Number x String/Character is
// repetition, Number x Function is a call with the number as sole argument.
func applyNumeric(ctx *Context, locals *ast.Node, loc ast.Sloc, lv *ast.Node, arg *ast.Node) (*ast.Node, error) {
	rv, err := Eval(ctx, locals, arg)
	if err != nil || errs.IsError(rv) {
		return rv, err
	}

	switch rv.Kind {
	case ast.Boolean, ast.Integer, ast.Float:
		return multiplyNumeric(ctx, lv, rv)
	case ast.String:
		return repeatString(ctx, rv.A.(string), lv)
	case ast.Character:
		return repeatString(ctx, string(rv.A.(rune)), lv)
	case ast.Function, ast.BuiltinFunction:
		// Number x Function calls the function with the number as its sole
		// argument; rv is already evaluated, lv is passed through unevaluated
		// (harmless: a literal scalar evaluates to itself).
		return applyApply(ctx, locals, &ast.Node{Loc: loc, Qual: parser.OpApply, A: rv, B: lv})
	default:
		return fail(ctx, errs.InvalidOperand, loc, "number applicate: incompatible right operand")
	}
}

func multiplyNumeric(ctx *Context, a, b *ast.Node) (*ast.Node, error) {
	if a.Kind == ast.Float || b.Kind == ast.Float {
		av, bv := scalarFloat(a), scalarFloat(b)
		n, ok := ctx.GC.Alloc(ast.Float)
		if !ok {
			return fail(ctx, errs.OutOfMemory, a.Loc, "multiply")
		}
		n.A = av * bv
		return n, nil
	}
	n, ok := ctx.GC.Alloc(ast.Integer)
	if !ok {
		return fail(ctx, errs.OutOfMemory, a.Loc, "multiply")
	}
	n.A = scalarInt(a) * scalarInt(b)
	return n, nil
}

func scalarInt(n *ast.Node) int64 {
	switch n.Kind {
	case ast.Integer:
		return n.A.(int64)
	case ast.Character:
		return int64(n.A.(rune))
	case ast.Boolean:
		if n.A.(bool) {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func scalarFloat(n *ast.Node) float64 {
	if n.Kind == ast.Float {
		return n.A.(float64)
	}
	return float64(scalarInt(n))
}

// applyCharacter implements the Character x Character/String applicate row:
// both concatenate, yielding a String (a lone Character never survives
// juxtaposition the way it does as a standalone literal).
func applyCharacter(ctx *Context, locals *ast.Node, loc ast.Sloc, lv *ast.Node, arg *ast.Node) (*ast.Node, error) {
	rv, err := Eval(ctx, locals, arg)
	if err != nil || errs.IsError(rv) {
		return rv, err
	}

	n, ok := ctx.GC.Alloc(ast.String)
	if !ok {
		return fail(ctx, errs.OutOfMemory, loc, "concat")
	}
	switch rv.Kind {
	case ast.Character:
		n.A = string(lv.A.(rune)) + string(rv.A.(rune))
	case ast.String:
		n.A = string(lv.A.(rune)) + rv.A.(string)
	default:
		return fail(ctx, errs.InvalidOperand, loc, "character applicate: incompatible right operand")
	}
	return n, nil
}

func repeatString(ctx *Context, s string, count *ast.Node) (*ast.Node, error) {
	n, ok := ctx.GC.Alloc(ast.String)
	if !ok {
		return fail(ctx, errs.OutOfMemory, count.Loc, "repeat")
	}
	times := scalarInt(count)
	if times < 0 {
		times = 0
	}
	n.A = strings.Repeat(s, int(times))
	return n, nil
}

// applyString implements the String x _ applicate rows: Character x
// Character/String and String x anything-not-bracketed concatenate or
// repeat according to the right operand's kind.
func applyString(ctx *Context, locals *ast.Node, loc ast.Sloc, lv *ast.Node, arg *ast.Node) (*ast.Node, error) {
	rv, err := Eval(ctx, locals, arg)
	if err != nil || errs.IsError(rv) {
		return rv, err
	}

	switch rv.Kind {
	case ast.String:
		n, ok := ctx.GC.Alloc(ast.String)
		if !ok {
			return fail(ctx, errs.OutOfMemory, loc, "concat")
		}
		n.A = lv.A.(string) + rv.A.(string)
		return n, nil
	case ast.Character:
		n, ok := ctx.GC.Alloc(ast.String)
		if !ok {
			return fail(ctx, errs.OutOfMemory, loc, "concat")
		}
		n.A = lv.A.(string) + string(rv.A.(rune))
		return n, nil
	case ast.Boolean, ast.Integer, ast.Float:
		return repeatString(ctx, lv.A.(string), rv)
	default:
		return fail(ctx, errs.InvalidOperand, loc, "string applicate: incompatible right operand")
	}
}

// applyEnvironment implements Environment x Identifier/String (named
// lookup, yielding the slot's Reference so the result stays assignable) and
// Environment x anything-else (enter that environment as an outer scope and
// evaluate the right operand there).
func applyEnvironment(ctx *Context, locals *ast.Node, loc ast.Sloc, env_ *ast.Node, arg *ast.Node) (*ast.Node, error) {
	switch arg.Kind {
	case ast.Identifier:
		name, _ := arg.A.(string)
		hash, _ := arg.B.(uint64)
		idx, ok := env.Locate(env_, hash, name)
		if !ok {
			return fail(ctx, errs.InvalidIdentifier, loc, name)
		}
		return env.At(env_, idx), nil

	case ast.String:
		name := arg.A.(string)
		idx, ok := env.Locate(env_, env.Hash(name), name)
		if !ok {
			return fail(ctx, errs.InvalidIdentifier, loc, name)
		}
		return env.At(env_, idx), nil

	default:
		return Eval(ctx, env_, arg)
	}
}

// applyBracket implements bare-literal construction (subject is Zen) and
// subscript/member access (subject has been attached by the parser's
// applicate folding). An environment literal evaluates its contents as
// assemblage statements in a fresh child scope and yields that scope
// itself; an array literal evaluates each comma-separated element and
// appends it positionally.
func applyBracket(ctx *Context, locals *ast.Node, n *ast.Node, isEnv bool) (*ast.Node, error) {
	subject := asNode(n.A)
	contents := asNode(n.B)

	if isZen(subject) {
		scope, err := env.New(ctx.GC, locals)
		if err != nil {
			return fail(ctx, errs.OutOfMemory, n.Loc, err.Error())
		}

		if isEnv {
			if !isZen(contents) {
				if _, err := Eval(ctx, scope, contents); err != nil {
					return nil, err
				}
			}
			return scope, nil
		}

		for _, el := range FlattenList(contents) {
			if name, rhs, ok := tagElement(ctx, el); ok {
				v, err := Eval(ctx, locals, rhs)
				if err != nil || errs.IsError(v) {
					return v, err
				}
				if _, err := env.AddEnv(ctx.GC, scope, name, v, 0); err != nil {
					return fail(ctx, errs.InvalidOperand, n.Loc, err.Error())
				}
				continue
			}
			v, err := Eval(ctx, locals, el)
			if err != nil || errs.IsError(v) {
				return v, err
			}
			env.Append(scope, v)
		}
		return scope, nil
	}

	subj, err := Eval(ctx, locals, subject)
	if err != nil || errs.IsError(subj) {
		return subj, err
	}
	if subj.Kind != ast.Environment && subj.Kind != ast.String {
		return fail(ctx, errs.InvalidOperand, n.Loc, "subscript of non-indexable value")
	}

	if isEnv {
		if subj.Kind != ast.Environment {
			return fail(ctx, errs.InvalidOperand, n.Loc, "member access requires an environment")
		}
		id, ok := contents.A.(string)
		if !ok || contents.Kind != ast.Identifier {
			return fail(ctx, errs.InvalidOperand, n.Loc, "member access requires an identifier")
		}
		hash, _ := contents.B.(uint64)
		idx, ok := env.Locate(subj, hash, id)
		if !ok {
			return fail(ctx, errs.InvalidIdentifier, n.Loc, id)
		}
		return env.At(subj, idx), nil
	}

	// Range subscript: a[lo..hi] is a shallow copy (Environment) or
	// substring (String), never an index-out-of-range check on a single
	// scalar. Recognised structurally before evaluating contents as an
	// integer, per spec.md §4.6.
	if lo, hi, ok := RangeBounds(ctx, contents); ok {
		return sliceSubject(ctx, locals, n.Loc, subj, lo, hi)
	}

	idx, err := Eval(ctx, locals, contents)
	if err != nil || errs.IsError(idx) {
		return idx, err
	}

	// String/Character index into an Environment is name lookup (spec.md
	// §4.6), yielding the named slot's Reference.
	if subj.Kind == ast.Environment && (idx.Kind == ast.String || idx.Kind == ast.Character) {
		name := ""
		if idx.Kind == ast.String {
			name = idx.A.(string)
		} else {
			name = string(idx.A.(rune))
		}
		slot, ok := env.Locate(subj, env.Hash(name), name)
		if !ok {
			return fail(ctx, errs.InvalidIdentifier, n.Loc, name)
		}
		return env.At(subj, slot), nil
	}

	if idx.Kind != ast.Integer {
		return fail(ctx, errs.InvalidOperand, n.Loc, "subscript index must be an integer")
	}
	i := idx.A.(int64)

	if subj.Kind == ast.String {
		runes := []rune(subj.A.(string))
		if i < 0 || int(i) >= len(runes) {
			return fail(ctx, errs.InvalidOperand, n.Loc, "subscript out of range")
		}
		out, ok := ctx.GC.Alloc(ast.Character)
		if !ok {
			return fail(ctx, errs.OutOfMemory, n.Loc, "subscript")
		}
		out.A = runes[i]
		return out, nil
	}

	// spec.md §8 property 8: negative indices are a hard error, never
	// silently wrapped to a valid position.
	if i < 0 || int(i) >= env.Len(subj) {
		return fail(ctx, errs.InvalidOperand, n.Loc, "subscript out of range")
	}
	entry := env.At(subj, int(i))
	if entry.Kind == ast.Reference {
		return entry, nil
	}
	// Positional slots hold bare values; wrap one in a fresh Reference
	// sharing the container's NoAssign attribute so `a[i] = v` writes
	// through to the container's own node (spec.md §4.6 "returns that slot
	// as a Reference sharing the container's NoAssign attribute").
	ref, ok := ctx.GC.Alloc(ast.Reference)
	if !ok {
		return fail(ctx, errs.OutOfMemory, n.Loc, "subscript")
	}
	ref.A = ""
	ref.B = entry
	ref.Attr = subj.Attr & ast.NoAssign
	ref.Loc = n.Loc
	return ref, nil
}

// sliceSubject evaluates lo/hi (either side may be Zen, meaning "to the
// start"/"to the end") and returns the corresponding substring or shallow
// Environment copy, honouring the direction implied by lo vs hi exactly as
// spec.md §4.6 describes for both subscript ranges and `while` iteration.
func sliceSubject(ctx *Context, locals *ast.Node, loc ast.Sloc, subj *ast.Node, loExpr, hiExpr *ast.Node) (*ast.Node, error) {
	length := 0
	if subj.Kind == ast.String {
		length = len([]rune(subj.A.(string)))
	} else {
		length = env.Len(subj)
	}

	lo, hi := 0, length-1
	if !isZen(loExpr) {
		v, err := Eval(ctx, locals, loExpr)
		if err != nil || errs.IsError(v) {
			return v, err
		}
		lo = int(scalarInt(v))
	}
	if !isZen(hiExpr) {
		v, err := Eval(ctx, locals, hiExpr)
		if err != nil || errs.IsError(v) {
			return v, err
		}
		hi = int(scalarInt(v))
	}

	if lo < 0 || hi < 0 || lo >= length || hi >= length {
		return fail(ctx, errs.InvalidOperand, loc, "range subscript out of bounds")
	}

	step := 1
	if hi < lo {
		step = -1
	}

	if subj.Kind == ast.String {
		runes := []rune(subj.A.(string))
		var b strings.Builder
		for i := lo; ; i += step {
			b.WriteRune(runes[i])
			if i == hi {
				break
			}
		}
		out, ok := ctx.GC.Alloc(ast.String)
		if !ok {
			return fail(ctx, errs.OutOfMemory, loc, "slice")
		}
		out.A = b.String()
		return out, nil
	}

	scope, err := env.New(ctx.GC, locals)
	if err != nil {
		return fail(ctx, errs.OutOfMemory, loc, err.Error())
	}
	for i := lo; ; i += step {
		env.Append(scope, env.At(subj, i))
		if i == hi {
			break
		}
	}
	return scope, nil
}

// FlattenList splits a comma-or-semicolon-joined element list (spec.md
// §4.6's array/environment literal, "a comma-or-semicolon-separated list")
// into its individual elements, unlike FlattenSequence which only unpacks
// Sequence (comma) nodes.
func FlattenList(n *ast.Node) []*ast.Node {
	if isZen(n) {
		return nil
	}
	if n.Kind == ast.Sequence || n.Kind == ast.Assemblage {
		return append(FlattenList(asNode(n.A)), FlattenList(asNode(n.B))...)
	}
	return []*ast.Node{n}
}

// tagElement recognises el as a `name : value` tagged element inside an
// array/environment literal, returning the slot name and the unevaluated
// value subtree. It identifies the operator structurally, by the table
// name at el's Qual, the same way RangeBounds identifies `..`. A bare
// Identifier, a String literal, or a Character literal may key the slot —
// `['a':1; 'b':2]` and `[a:1; b:2]` both build the same named-slot
// Environment (spec.md §8 "Environment as map").
func tagElement(ctx *Context, el *ast.Node) (name string, rhs *ast.Node, ok bool) {
	if el == nil || el.Kind != ast.Operator || el.Qual < 0 {
		return "", nil, false
	}
	opName, ok2 := ctx.Tbl.Operators.NameAt(int(el.Qual))
	if !ok2 || opName != ":" {
		return "", nil, false
	}
	lhs := asNode(el.A)
	switch lhs.Kind {
	case ast.Identifier, ast.String:
		name, _ = lhs.A.(string)
	case ast.Character:
		name = string(lhs.A.(rune))
	default:
		return "", nil, false
	}
	return name, asNode(el.B), true
}

func FlattenSequence(n *ast.Node) []*ast.Node {
	if isZen(n) {
		return nil
	}
	if n.Kind == ast.Sequence {
		return append(FlattenSequence(asNode(n.A)), FlattenSequence(asNode(n.B))...)
	}
	return []*ast.Node{n}
}
