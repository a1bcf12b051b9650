package builtin

import (
	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/eval"
	"github.com/stytri/oboe/pkg/gc"
	"github.com/stytri/oboe/pkg/parser"
)

// Precedence aliases save every call site in this package from importing
// pkg/parser directly just to name a tier.
type Precedence = parser.Precedence

const (
	PDeclarative    = parser.PDeclarative
	PAssigning      = parser.PAssigning
	PConditional    = parser.PConditional
	PLogical        = parser.PLogical
	PRelational     = parser.PRelational
	PBitwise        = parser.PBitwise
	PAdditive       = parser.PAdditive
	PMultiplicative = parser.PMultiplicative
	PExponential    = parser.PExponential
)

// Registrar bundles the collector and scope tables every installer in this
// package writes a BuiltinOperator/BuiltinFunction entry into: operators go
// into tables.Operators (consulted by the parser at precedence-climb time),
// functions are bound by name into globals (consulted by the evaluator's
// Identifier case).
type Registrar struct {
	GC     *gc.Collector
	Tables *env.Tables
}

// NewRegistrar returns a Registrar over an already-constructed Tables.
func NewRegistrar(c *gc.Collector, tables *env.Tables) *Registrar {
	return &Registrar{GC: c, Tables: tables}
}

// Operator installs fn as name's entry in the operator table at prec.
func (r *Registrar) Operator(name string, prec Precedence, fn eval.BuiltinOperatorFn) int {
	n, ok := r.GC.Alloc(ast.BuiltinOperator)
	if !ok {
		panic("builtin: out of memory installing operator " + name)
	}
	n.Qual = int32(prec)
	n.B = fn
	return r.Tables.Operators.Define(name, n)
}

// Function binds fn under name in globals, as a BuiltinFunction value —
// what applicate's callee-evaluation step (pkg/eval's applyApply) resolves
// a bare `name(...)` call against.
func (r *Registrar) Function(name string, fn eval.BuiltinFunctionFn) {
	n, ok := r.GC.Alloc(ast.BuiltinFunction)
	if !ok {
		panic("builtin: out of memory installing function " + name)
	}
	n.B = fn
	if _, err := env.AddEnv(r.GC, r.Tables.Globals, name, n, ast.NoAssign); err != nil {
		panic("builtin: " + err.Error())
	}
}

// InstallAll wires every builtin operator and function spec.md §4.7
// names into a freshly-constructed Tables, the single call site
// cmd/oboe and tests use to get a ready-to-evaluate global scope.
func InstallAll(c *gc.Collector, tables *env.Tables) {
	r := NewRegistrar(c, tables)
	InstallArithmetic(r)
	InstallLogical(r)
	InstallDeclarative(r)
	InstallControlFlow(r)
	InstallReflective(r)
	InstallIO(r)
}

func argError(ctx *eval.Context, loc ast.Sloc, msg string) (*ast.Node, error) {
	return errs.New(ctx.GC, errs.InvalidOperand, loc, msg)
}

// newScope and appendScope are the array/range builtins' shared way of
// materializing an Environment-as-vector value without reaching into
// pkg/env's lower-level API at every call site.
func newScope(ctx *eval.Context, outer *ast.Node) (*ast.Node, error) {
	scope, err := env.New(ctx.GC, outer)
	if err != nil {
		return nil, err
	}
	return scope, nil
}

func appendScope(scope *ast.Node, v *ast.Node) { env.Append(scope, v) }
