package builtin

import (
	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/eval"
	"github.com/stytri/oboe/pkg/parser"
)

// InstallDeclarative wires `:` (tag, a mutable binding), `:^` (tag_ref, a
// by-reference alias), `::` (const, an immutable binding or operator/alias
// definition) and `=` (assign) — spec.md §4.7 "Declarative".
func InstallDeclarative(r *Registrar) {
	r.Operator(":", PDeclarative, tagOperator(0))
	r.Operator(":=", PDeclarative, tagOperator(0))
	r.Operator(":^", PDeclarative, tagRefOperator)
	r.Operator("::", PDeclarative, constOperator)
	r.Operator("=", PAssigning, assignOperator)
	r.Operator("=^", PAssigning, assignRefOperator)
	r.Operator("><", PAssigning, exchangeOperator)

	// The read-modify-write family: each applies its base operator to the
	// target's current value and the right operand, then assigns the result
	// back through the same reference chain `=` uses.
	for _, ca := range []struct{ name, base string }{
		{"&&=", "land"}, {"||=", "lor"},
		{"&=", "&"}, {"|=", "|"}, {"~=", "~"},
		{"+=", "+"}, {"-=", "-"}, {"*=", "*"}, {"/=", "/"}, {"//=", "//"},
		{"<<=", "<<"}, {">>=", ">>"},
		{"<<<=", "<<<"}, {">>>=", ">>>"}, {"<<>=", "<<>"}, {"<>>=", "<>>"},
	} {
		r.Operator(ca.name, PAssigning, compoundAssign(ca.base))
	}
}

// identifierOf extracts the plain (name, hash) pair a declarative operator's
// left operand must be: a bare Identifier node, never an arbitrary
// expression (spec.md §4.5 addenv takes a name, not a computed slot).
func identifierOf(n *ast.Node) (name string, hash uint64, ok bool) {
	if n == nil || n.Kind != ast.Identifier {
		return "", 0, false
	}
	name, _ = n.A.(string)
	hash, _ = n.B.(uint64)
	return name, hash, true
}

// tagOperator declares name := value in locals, mutable unless attr forces
// otherwise. It is parameterised by attr so `const` can reuse the same
// duplicate-rejection/binding logic with ast.NoAssign set.
func tagOperator(attr ast.Attr) eval.BuiltinOperatorFn {
	return func(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
		// `name(params) : body` declares a function: the Applicate pattern
		// on the left carries the name and formal parameters, the right
		// operand is the unevaluated body.
		if lexpr != nil && lexpr.Kind == ast.Operator && lexpr.Qual == parser.OpApply {
			head := asArgNode(lexpr.A)
			if head.Kind == ast.Identifier {
				return declareFunction(ctx, locals, loc, head, asArgNode(lexpr.B), rexpr, attr)
			}
		}

		name, _, ok := identifierOf(lexpr)
		if !ok {
			return argError(ctx, loc, "tag requires an identifier on the left")
		}
		// RefEval, not Eval: a Quoted value (parse's output) binds with its
		// wrapper intact so the binding stays inert until the `eval` builtin
		// forces it.
		value, err := eval.RefEval(ctx, locals, rexpr)
		if err != nil || errs.IsError(value) {
			return value, err
		}
		ref, err := env.AddEnv(ctx.GC, locals, name, value, attr)
		if err != nil {
			return argError(ctx, loc, err.Error())
		}
		return eval.RefEval(ctx, locals, ref)
	}
}

// tagRefOperator declares name as a by-reference alias of rexpr, which must
// already evaluate (via subeval, not refeval) to a Reference — spec.md
// §4.7: "requires RHS to already be a Reference".
func tagRefOperator(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	name, _, ok := identifierOf(lexpr)
	if !ok {
		return argError(ctx, loc, "tag_ref requires an identifier on the left")
	}
	ref, err := eval.SubEval(ctx, locals, rexpr)
	if err != nil {
		return nil, err
	}
	if errs.IsError(ref) {
		return ref, nil
	}
	if ref.Kind != ast.Reference {
		return argError(ctx, loc, "tag_ref requires a reference on the right")
	}

	hash := env.Hash(name)
	if _, exists := env.Locate(locals, hash, name); exists {
		return argError(ctx, loc, name+" already declared in this scope")
	}
	alias, err2 := env.Define(ctx.GC, locals, hash, name, asArgNode(ref.B), 0)
	if err2 != nil {
		return argError(ctx, loc, err2.Error())
	}
	return eval.RefEval(ctx, locals, alias)
}

// constOperator implements `::`: a plain identifier left side declares an
// immutable binding (ast.NoAssign); an Applicate(String/Applicate, params)
// left side instead installs an operator function or alias into the
// `operators` table, per spec.md §4.7's "const" paragraph.
func constOperator(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	if lexpr.Kind == ast.Identifier {
		return tagOperator(ast.NoAssign)(ctx, locals, loc, lexpr, rexpr)
	}

	if lexpr.Kind == ast.Operator {
		if lexpr.Qual == parser.OpApply && asArgNode(lexpr.A).Kind == ast.Identifier {
			return declareFunction(ctx, locals, loc, asArgNode(lexpr.A), asArgNode(lexpr.B), rexpr, ast.NoAssign)
		}
		return defineOperatorFunction(ctx, locals, loc, lexpr, rexpr)
	}

	if lexpr.Kind == ast.String {
		return defineOperatorAlias(ctx, locals, loc, lexpr, rexpr)
	}

	return argError(ctx, loc, "const requires an identifier or operator pattern on the left")
}

// defineOperatorAlias installs `"name" :: "target"`: a bare string on both
// sides of const, with no parameter pattern, names an OperatorAlias that
// Evalop chases to the target operator by string (spec.md §4.7's
// "or OperatorAlias when the LHS is an Applicate(String, params) pattern",
// here the degenerate nilary-params case).
func defineOperatorAlias(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	name, _ := lexpr.A.(string)

	target, err := eval.Eval(ctx, locals, rexpr)
	if err != nil || errs.IsError(target) {
		return target, err
	}
	if target.Kind != ast.String {
		return argError(ctx, loc, "operator alias target must be a string")
	}
	targetName, _ := target.A.(string)

	aliasNode, ok := ctx.GC.Alloc(ast.OperatorAlias)
	if !ok {
		return argError(ctx, loc, "out of memory defining operator alias")
	}
	aliasNode.A = targetName
	aliasNode.Loc = loc
	if _, targetNode, ok := ctx.Tbl.Operators.Lookup(targetName); ok {
		aliasNode.Qual = targetNode.Qual
	}

	idx := ctx.Tbl.Operators.Define(name, aliasNode)

	n, ok2 := ctx.GC.Alloc(ast.Integer)
	if !ok2 {
		return argError(ctx, loc, "out of memory")
	}
	n.A = int64(idx)
	n.Loc = loc
	return n, nil
}

// defineOperatorFunction handles the two const-pattern forms spec.md §4.7
// names: `"name"(params) :: body` installs an OperatorFunction at the
// pattern's current precedence tier; `Applicate(Applicate(String(prec),
// String(op)), params) :: body` installs one at an explicit precedence.
// Either left/right params slot may be empty, meaning that side is nilary.
func defineOperatorFunction(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, pattern *ast.Node, body *ast.Node) (*ast.Node, error) {
	if pattern.Qual != parser.OpApply {
		return argError(ctx, loc, "const operator pattern must be an application")
	}

	head := asArgNode(pattern.A)
	params := asArgNode(pattern.B)

	prec := Precedence(-1)
	var nameNode *ast.Node

	if head.Kind == ast.Operator && head.Qual == parser.OpApply {
		precNode := asArgNode(head.A)
		opNode := asArgNode(head.B)
		precName, ok := precNode.A.(string)
		if precNode.Kind != ast.String || !ok {
			return argError(ctx, loc, "explicit-precedence operator pattern requires a string precedence name")
		}
		p, ok := precedenceByName[precName]
		if !ok {
			return argError(ctx, loc, "unknown precedence tier "+precName)
		}
		prec = p
		nameNode = opNode
	} else {
		nameNode = head
	}

	if nameNode.Kind != ast.String {
		return argError(ctx, loc, "operator pattern name must be a string literal")
	}
	name, _ := nameNode.A.(string)

	// Without an explicit precedence, a redefinition keeps the name's
	// current tier (for a name the parser has already seen, such as `"**"`,
	// that is the PDeclarative tier of its placeholder entry); a brand-new
	// operator lands at the loosest tier.
	if prec < 0 {
		if _, existing, found := ctx.Tbl.Operators.Lookup(name); found {
			prec = Precedence(existing.Qual)
		} else {
			prec = PDeclarative
		}
	}

	left, right, ok := operatorParamNames(params)
	if !ok {
		return argError(ctx, loc, "operator pattern parameters must be 1 or 2 identifiers")
	}

	opNode, ok := ctx.GC.Alloc(ast.OperatorFunction)
	if !ok {
		return argError(ctx, loc, "out of memory defining operator")
	}
	opNode.Qual = int32(prec)
	opNode.A = &eval.OperatorParams{Left: left, Right: right}
	opNode.B = body
	opNode.Loc = loc

	idx := ctx.Tbl.Operators.Define(name, opNode)

	n, ok2 := ctx.GC.Alloc(ast.Integer)
	if !ok2 {
		return argError(ctx, loc, "out of memory")
	}
	n.A = int64(idx)
	n.Loc = loc
	return n, nil
}

var precedenceByName = map[string]Precedence{
	"none": parser.PNone, "declarative": PDeclarative, "assigning": PAssigning,
	"conditional": PConditional, "logical": PLogical, "relational": PRelational,
	"bitwise": PBitwise, "additive": PAdditive, "multiplicative": PMultiplicative,
	"exponential": PExponential, "binding": parser.PBinding,
}

func asArgNode(v any) *ast.Node {
	n, _ := v.(*ast.Node)
	if n == nil {
		return ast.Zen
	}
	return n
}

// operatorParamNames destructures the parameter pattern of a `const`
// operator definition: a bare identifier (nilary on one side, i.e. a
// prefix/postfix operator) or a two-element Sequence of identifiers.
func operatorParamNames(params *ast.Node) (left, right string, ok bool) {
	if params.Kind == ast.Identifier {
		name, _, idOK := identifierOf(params)
		return "", name, idOK
	}
	if params.Kind == ast.Sequence {
		l, _, lok := identifierOf(asArgNode(params.A))
		r, _, rok := identifierOf(asArgNode(params.B))
		if !lok || !rok {
			return "", "", false
		}
		return l, r, true
	}
	return "", "", false
}

// declareFunction builds a Function node from a `name(params) : body`
// declaration and binds it under name in the declaring scope, which the
// node also captures as its closure environment.
func declareFunction(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, nameNode, paramsTree, body *ast.Node, attr ast.Attr) (*ast.Node, error) {
	params, ok := parseParams(ctx, paramsTree)
	if !ok {
		return argError(ctx, loc, "function parameters must be identifiers, optionally tagged with defaults")
	}

	fn, ok2 := ctx.GC.Alloc(ast.Function)
	if !ok2 {
		return argError(ctx, loc, "out of memory declaring function")
	}
	fn.Loc = loc
	fn.A = &eval.FunctionDef{Params: params, Body: body}
	fn.B = locals

	name, _ := nameNode.A.(string)
	if _, err := env.AddEnv(ctx.GC, locals, name, fn, attr); err != nil {
		return argError(ctx, loc, err.Error())
	}
	return fn, nil
}

// parseParams reads a formal parameter tree: a comma-separated run of bare
// identifiers (by-reference parameters) and `name: default` tags (by-value
// parameters with a caller-scope default).
func parseParams(ctx *eval.Context, tree *ast.Node) ([]eval.Param, bool) {
	if tree == nil || tree.IsZen() {
		return nil, true
	}

	var out []eval.Param
	for _, el := range eval.FlattenList(tree) {
		if el.Kind == ast.Identifier {
			name, _ := el.A.(string)
			out = append(out, eval.Param{Name: name})
			continue
		}
		if tableOperatorName(ctx, el) == ":" {
			id := asArgNode(el.A)
			if id.Kind == ast.Identifier {
				name, _ := id.A.(string)
				out = append(out, eval.Param{Name: name, Default: asArgNode(el.B)})
				continue
			}
		}
		return nil, false
	}
	return out, true
}

// writableSlot subevals lexpr to a Reference and chases a by-reference
// parameter's chain down to the last Reference, so the eventual write lands
// on the caller's bound node rather than an intermediate link. A non-
// Reference result or a NoAssign link anywhere along the chain is rejected.
func writableSlot(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr *ast.Node) (*ast.Node, *ast.Node, error) {
	slot, err := eval.SubEval(ctx, locals, lexpr)
	if err != nil {
		return nil, nil, err
	}
	if errs.IsError(slot) {
		return nil, slot, nil
	}
	if slot.Kind != ast.Reference {
		bad, err := argError(ctx, loc, "assignment target must be a reference")
		return nil, bad, err
	}

	for {
		if slot.Attr.Has(ast.NoAssign) {
			bad, err := errs.New(ctx.GC, errs.InvalidReferent, loc, "assignment to immutable binding")
			return nil, bad, err
		}
		next, _ := slot.B.(*ast.Node)
		if next == nil || next.Kind != ast.Reference {
			break
		}
		slot = next
	}
	return slot, nil, nil
}

// assignThrough writes value into slot's bound node via eval.Assign, which
// honours NoAssign/CopyOnAssign on the node itself.
func assignThrough(ctx *eval.Context, loc ast.Sloc, slot *ast.Node, value *ast.Node) (*ast.Node, error) {
	target, _ := slot.B.(*ast.Node)
	if target == nil {
		return argError(ctx, loc, "assignment target is unbound")
	}
	result, err := eval.Assign(ctx, loc, &target, value)
	if err != nil {
		return nil, err
	}
	// CopyOnAssign may have rebound target to a freshly allocated node
	// (eval.Assign); the Reference must follow so later lookups see it.
	slot.B = target
	return result, nil
}

// assignOperator implements `=`: lexpr must evaluate (via subeval) to a
// writable Reference; its value is overwritten with rexpr's evaluated
// result.
func assignOperator(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	slot, bad, err := writableSlot(ctx, locals, loc, lexpr)
	if bad != nil || err != nil {
		return bad, err
	}
	value, err := eval.RefEval(ctx, locals, rexpr)
	if err != nil || errs.IsError(value) {
		return value, err
	}
	return assignThrough(ctx, loc, slot, value)
}

// compoundAssign builds the `X=` read-modify-write operators: the base
// operator named base is dispatched through the live table (so a program
// that redefines `+` changes `+=` with it), then the result is assigned
// back into lexpr's slot.
func compoundAssign(base string) eval.BuiltinOperatorFn {
	return func(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
		i, _, ok := ctx.Tbl.Operators.Lookup(base)
		if !ok {
			return errs.New(ctx.GC, errs.InvalidOperator, loc, base)
		}
		value, err := eval.Evalop(ctx, locals, loc, int32(i), lexpr, rexpr)
		if err != nil || errs.IsError(value) {
			return value, err
		}
		slot, bad, err := writableSlot(ctx, locals, loc, lexpr)
		if bad != nil || err != nil {
			return bad, err
		}
		return assignThrough(ctx, loc, slot, value)
	}
}

// assignRefOperator implements `=^`: rebind lexpr's Reference to share
// rexpr's referent, the assignment counterpart of `:^`.
func assignRefOperator(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	slot, bad, err := writableSlot(ctx, locals, loc, lexpr)
	if bad != nil || err != nil {
		return bad, err
	}
	ref, err := eval.SubEval(ctx, locals, rexpr)
	if err != nil {
		return nil, err
	}
	if errs.IsError(ref) {
		return ref, nil
	}
	if ref.Kind != ast.Reference {
		return argError(ctx, loc, "assign_ref requires a reference on the right")
	}
	slot.B = ref.B
	return eval.RefEval(ctx, locals, slot)
}

// exchangeOperator implements `><`: swap the referents of two writable
// Reference slots, yielding the left slot's new value.
func exchangeOperator(ctx *eval.Context, locals *ast.Node, loc ast.Sloc, lexpr, rexpr *ast.Node) (*ast.Node, error) {
	left, bad, err := writableSlot(ctx, locals, loc, lexpr)
	if bad != nil || err != nil {
		return bad, err
	}
	right, bad, err := writableSlot(ctx, locals, loc, rexpr)
	if bad != nil || err != nil {
		return bad, err
	}
	left.B, right.B = right.B, left.B
	return eval.RefEval(ctx, locals, left)
}
