package gc_test

import (
	"testing"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/gc"
)

// rootNode pins a single Ast node as a permanent GC root.
type rootNode struct{ n *ast.Node }

func (r rootNode) MarkRoots(mark func(*ast.Node)) { mark(r.n) }

func TestCollectReclaimsUnreachableTemporaries(t *testing.T) {
	c := gc.New()

	root, _ := c.Alloc(ast.Integer)
	root.A = int64(1)
	c.AddRoot(rootNode{root})

	top := c.Depth()
	for i := 0; i < 10000; i++ {
		n, ok := c.Alloc(ast.Integer)
		if !ok {
			t.Fatalf("alloc %d: unexpected failure", i)
		}
		n.A = int64(i)
	}
	c.Revert(top)

	c.Collect()

	if got := c.Live(); got > 4 {
		t.Fatalf("expected live set close to 1 after collect, got %d", got)
	}
}

func TestReturnKeepsExactlyOneReference(t *testing.T) {
	c := gc.New()
	root, _ := c.Alloc(ast.Environment)
	c.AddRoot(rootNode{root})

	top := c.Depth()
	for i := 0; i < 5; i++ {
		c.Alloc(ast.Integer)
	}
	result, _ := c.Alloc(ast.Integer)
	result.A = int64(99)

	returned := c.Return(top, result)
	if returned != result {
		t.Fatalf("Return must hand back its result node")
	}
	if c.Depth() != top+1 {
		t.Fatalf("expected shadow depth %d after Return, got %d", top+1, c.Depth())
	}
}

func TestMaxLiveSignalsAllocationFailure(t *testing.T) {
	c := gc.New()
	c.MaxLive = 2

	if _, ok := c.Alloc(ast.Integer); !ok {
		t.Fatalf("first alloc should succeed")
	}
	if _, ok := c.Alloc(ast.Integer); !ok {
		t.Fatalf("second alloc should succeed")
	}
	if _, ok := c.Alloc(ast.Integer); ok {
		t.Fatalf("third alloc should fail once MaxLive is reached with no free nodes")
	}
}
