package odt_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/gc"
	"github.com/stytri/oboe/pkg/odt"
)

func newRegistry() *odt.Registry {
	r := odt.NewRegistry()
	odt.RegisterShipped(r)
	return r
}

func TestFileReadReturnsSeededLine(t *testing.T) {
	c := gc.New()
	r := newRegistry()

	path := filepath.Join(t.TempDir(), "greeting.txt")

	// Seed the file directly: fileNew's default mode is read-only, and the
	// constructor argument shape in this harness only carries a path.
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	pathArg, _ := c.Alloc(ast.String)
	pathArg.A = path
	rref, err := r.New(c, "file", pathArg)
	if err != nil {
		t.Fatalf("open for read: %v", err)
	}

	inst, ok := odt.InstanceOf(rref)
	if !ok {
		t.Fatalf("expected an Instance")
	}

	line, err := inst.Type.Eval(c, inst, ast.Zen)
	if err != nil {
		t.Fatalf("reading line: %v", err)
	}
	if got := line.A.(string); got != "hello\n" {
		t.Fatalf("got %q, want %q", got, "hello\n")
	}
}

func TestFposSeekRestoresReadPosition(t *testing.T) {
	c := gc.New()
	r := newRegistry()

	path := filepath.Join(t.TempDir(), "lines.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	pathArg, _ := c.Alloc(ast.String)
	pathArg.A = path
	fref, err := r.New(c, "file", pathArg)
	if err != nil {
		t.Fatalf("open for read: %v", err)
	}
	inst, _ := odt.InstanceOf(fref)

	pos, err := r.New(c, "fpos", fref)
	if err != nil {
		t.Fatalf("capturing fpos: %v", err)
	}

	line, err := inst.Type.Eval(c, inst, ast.Zen)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if got := line.A.(string); got != "one\n" {
		t.Fatalf("first read got %q", got)
	}

	// Applying the file to the captured fpos rewinds it.
	if _, err := inst.Type.Eval(c, inst, pos); err != nil {
		t.Fatalf("seeking back: %v", err)
	}

	line, err = inst.Type.Eval(c, inst, ast.Zen)
	if err != nil {
		t.Fatalf("re-read after seek: %v", err)
	}
	if got := line.A.(string); got != "one\n" {
		t.Fatalf("re-read after seek got %q, want the first line again", got)
	}
}

func TestFposRequiresAFile(t *testing.T) {
	c := gc.New()
	r := newRegistry()

	notAFile, _ := c.Alloc(ast.Integer)
	notAFile.A = int64(1)

	if _, err := r.New(c, "fpos", notAFile); err == nil {
		t.Fatalf("expected fpos() on a non-file to fail")
	} else if errs.KindOf(err) != errs.InvalidOperand {
		t.Fatalf("expected InvalidOperand, got %v", errs.KindOf(err))
	}
}

func TestUnregisteredTypeRejected(t *testing.T) {
	c := gc.New()
	r := odt.NewRegistry()

	if _, err := r.New(c, "socket", ast.Zen); err == nil {
		t.Fatalf("expected lookup of an unregistered ODT to fail")
	}
}
