package odt

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/gc"
)

// fileState is the file ODT's hidden State: an *os.File plus a buffered
// reader, since most oboe programs read line/rune at a time.
type fileState struct {
	f  *os.File
	rd *bufio.Reader
}

// fposState is the fpos ODT's hidden State: a byte offset into the file it
// was taken from, held by value so it does not depend on the originating
// file ODT staying alive.
type fposState struct {
	offset int64
}

// RegisterShipped installs the two ODTs spec.md §4.8 names: `file`, an open
// OS file handle, and `fpos`, an immutable file-position snapshot.
func RegisterShipped(r *Registry) {
	r.Register(&Type{
		Name: "file",
		New:  fileNew,
		Eval: fileEval,
		Sweep: func(inst *Instance) {
			if st, ok := inst.State.(*fileState); ok && st.f != nil {
				st.f.Close()
			}
		},
	})
	r.Register(&Type{
		Name: "fpos",
		New:  fposNew,
	})
}

// fileNew opens arg, a path String, and returns a read-only handle. No other
// argument shape is accepted, so a mode cannot be passed.
func fileNew(c *gc.Collector, arg *ast.Node) (any, ast.Attr, error) {
	path, mode, err := fileArgs(arg)
	if err != nil {
		return nil, 0, err
	}

	flag, err := parseMode(mode)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %q: %w", path, errs.ErrFailedOperation)
	}

	return &fileState{f: f, rd: bufio.NewReader(f)}, 0, nil
}

func fileArgs(arg *ast.Node) (path, mode string, err error) {
	if arg == nil {
		return "", "", fmt.Errorf("file() requires a path: %w", errs.ErrInvalidOperand)
	}
	switch arg.Kind {
	case ast.String:
		return arg.A.(string), "r", nil
	default:
		return "", "", fmt.Errorf("file() path must be a string: %w", errs.ErrInvalidOperand)
	}
}

func parseMode(mode string) (int, error) {
	switch mode {
	case "", "r":
		return os.O_RDONLY, nil
	case "w":
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, nil
	case "a":
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, nil
	case "r+", "rw":
		return os.O_RDWR, nil
	default:
		return 0, fmt.Errorf("unknown file mode %q: %w", mode, errs.ErrInvalidOperand)
	}
}

// fileEval lets `file` be applicated like a function: applying it to Zen
// reads the next line (EOF surfaces as an Error, not a panic); applying it
// to a String writes that string; applying it to an fpos reference seeks
// back to the captured position (the fsetpos path spec.md §4.8/§7 names).
func fileEval(c *gc.Collector, inst *Instance, arg *ast.Node) (*ast.Node, error) {
	st := inst.State.(*fileState)

	if arg != nil {
		if other, ok := InstanceOf(arg); ok {
			if _, isPos := other.State.(*fposState); isPos {
				if err := Seek(inst, other); err != nil {
					return nil, err
				}
				return ast.Zen, nil
			}
			return nil, fmt.Errorf("file applicate expects an fpos reference: %w", errs.ErrInvalidOperand)
		}
	}

	if arg == nil || arg.IsZen() {
		line, err := st.rd.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading: %w", errs.ErrFailedOperation)
		}
		if err == io.EOF && line == "" {
			return nil, fmt.Errorf("end of file: %w", errs.ErrFailedOperation)
		}
		n, ok := c.Alloc(ast.String)
		if !ok {
			return nil, errs.ErrOutOfMemory
		}
		n.A = line
		return n, nil
	}

	if arg.Kind == ast.String {
		if _, err := st.f.WriteString(arg.A.(string)); err != nil {
			return nil, fmt.Errorf("writing: %w", errs.ErrFailedOperation)
		}
		return ast.Zen, nil
	}

	return nil, fmt.Errorf("file applicate expects zen, a string, or an fpos: %w", errs.ErrInvalidOperand)
}

// fposNew captures arg's current read offset. arg must be an
// OpaqueDataReference wrapping a `file` instance.
func fposNew(c *gc.Collector, arg *ast.Node) (any, ast.Attr, error) {
	inst, ok := InstanceOf(arg)
	if !ok {
		return nil, 0, fmt.Errorf("fpos() requires a file: %w", errs.ErrInvalidOperand)
	}
	st, ok := inst.State.(*fileState)
	if !ok {
		return nil, 0, fmt.Errorf("fpos() requires a file: %w", errs.ErrInvalidOperand)
	}

	off, err := st.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("tell: %w", errs.ErrFailedOperation)
	}
	buffered := int64(st.rd.Buffered())

	// NoAssign: spec.md §4.8 forbids assigning a new value into an fpos
	// reference, only re-deriving one via fpos(file) again.
	return &fposState{offset: off - buffered}, ast.NoAssign, nil
}

// Seek moves f to the position captured by pos, discarding f's read buffer
// since the underlying offset moved out from under it.
func Seek(inst *Instance, pos *Instance) error {
	fst, ok := inst.State.(*fileState)
	if !ok {
		return fmt.Errorf("not a file: %w", errs.ErrInvalidOperand)
	}
	pst, ok := pos.State.(*fposState)
	if !ok {
		return fmt.Errorf("not an fpos: %w", errs.ErrInvalidOperand)
	}
	if _, err := fst.f.Seek(pst.offset, io.SeekStart); err != nil {
		return fmt.Errorf("fsetpos: %w", errs.ErrFailedOperation)
	}
	fst.rd.Reset(fst.f)
	return nil
}
