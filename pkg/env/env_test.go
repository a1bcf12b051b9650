package env_test

import (
	"testing"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/env"
	"github.com/stytri/oboe/pkg/gc"
)

func TestDefineThenLookupRoundTrips(t *testing.T) {
	c := gc.New()
	globals, err := env.New(c, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	val, _ := c.Alloc(ast.Integer)
	val.A = int64(42)

	if _, err := env.AddEnv(c, globals, "answer", val, 0); err != nil {
		t.Fatalf("AddEnv: %v", err)
	}

	ref, ok := env.Lookup(globals, env.Hash("answer"), "answer", 0)
	if !ok {
		t.Fatalf("expected to find 'answer'")
	}
	if ref.Kind != ast.Reference || ref.B.(*ast.Node) != val {
		t.Fatalf("lookup returned wrong reference: %+v", ref)
	}
}

func TestAddEnvRejectsDuplicateInSameScope(t *testing.T) {
	c := gc.New()
	globals, _ := env.New(c, nil)
	val, _ := c.Alloc(ast.Integer)

	if _, err := env.AddEnv(c, globals, "x", val, 0); err != nil {
		t.Fatalf("first AddEnv: %v", err)
	}
	if _, err := env.AddEnv(c, globals, "x", val, 0); err == nil {
		t.Fatalf("expected duplicate declaration of 'x' to be rejected")
	}
}

func TestNestedScopeShadowsOuter(t *testing.T) {
	c := gc.New()
	globals, _ := env.New(c, nil)
	local, _ := env.New(c, globals)

	outerVal, _ := c.Alloc(ast.Integer)
	outerVal.A = int64(1)
	innerVal, _ := c.Alloc(ast.Integer)
	innerVal.A = int64(2)

	env.AddEnv(c, globals, "x", outerVal, 0)
	env.AddEnv(c, local, "x", innerVal, 0)

	ref, ok := env.Lookup(local, env.Hash("x"), "x", 0)
	if !ok {
		t.Fatalf("expected to find 'x'")
	}
	if got := ref.B.(*ast.Node); got != innerVal {
		t.Fatalf("expected inner binding to shadow outer, got %v", got.A)
	}
}

func TestLookupDepthLimit(t *testing.T) {
	c := gc.New()
	globals, _ := env.New(c, nil)
	local, _ := env.New(c, globals)

	val, _ := c.Alloc(ast.Integer)
	env.AddEnv(c, globals, "far", val, 0)

	if _, ok := env.Lookup(local, env.Hash("far"), "far", 1); ok {
		t.Fatalf("depth=1 should not chase past the immediate scope")
	}
	if _, ok := env.Lookup(local, env.Hash("far"), "far", 0); !ok {
		t.Fatalf("depth=0 (unbounded) should find 'far'")
	}
}
