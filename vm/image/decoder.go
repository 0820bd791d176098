package image

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/chazu/beamload/vm"
)

// Decoder reads module files and interns their names into one atom table.
// It implements vm.Decoder.
type Decoder struct {
	atoms *vm.AtomTable
}

// NewDecoder creates a decoder that interns into atoms.
func NewDecoder(atoms *vm.AtomTable) *Decoder {
	return &Decoder{atoms: atoms}
}

// Decode reads and decodes the module file at path. Read failures wrap
// vm.ErrIO; anything wrong with the contents wraps vm.ErrDecode.
func (d *Decoder) Decode(path string) (*vm.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vm.ErrIO, err)
	}
	img, err := d.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	img.Path = path
	return img, nil
}

// DecodeBytes decodes an in-memory image.
func (d *Decoder) DecodeBytes(data []byte) (*vm.Image, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vm.ErrDecode, err)
	}
	img, err := d.convert(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vm.ErrDecode, err)
	}
	img.Hash = sha256.Sum256(data)
	return img, nil
}

// convert maps a parsed file onto machine atoms. Every atom index is
// bounds-checked here; the registry checks offsets and exports and copies
// literals into the module's own heap.
func (d *Decoder) convert(f *File) (*vm.Image, error) {
	if len(f.Atoms) < 2 {
		return nil, fmt.Errorf("atom table is empty")
	}
	ids := make([]vm.Atom, len(f.Atoms))
	for i := 1; i < len(f.Atoms); i++ {
		if f.Atoms[i] == "" {
			return nil, fmt.Errorf("atom %d is empty", i)
		}
		ids[i] = d.atoms.Intern(f.Atoms[i])
	}
	atom := func(idx uint32, what string) (vm.Atom, error) {
		if idx == 0 || int(idx) >= len(ids) {
			return vm.NoAtom, fmt.Errorf("%s: atom index %d out of range", what, idx)
		}
		return ids[idx], nil
	}

	img := &vm.Image{
		Funs:         make(map[vm.FunKey]uint32, len(f.Functions)),
		Imports:      make([]vm.MFA, 0, len(f.Imports)),
		Exports:      make([]vm.Export, 0, len(f.Exports)),
		Lambdas:      make([]vm.Lambda, 0, len(f.Lambdas)),
		Instructions: make([]vm.Instruction, len(f.Code)),
		Lines:        make([]vm.FuncInfo, 0, len(f.Lines)),
	}

	var err error
	if img.Name, err = atom(f.Name, "module name"); err != nil {
		return nil, err
	}
	if f.OnLoad != 0 {
		if img.OnLoad, err = atom(f.OnLoad, "on_load"); err != nil {
			return nil, err
		}
	}

	for i, imp := range f.Imports {
		mod, err := atom(imp.Module, fmt.Sprintf("import %d module", i))
		if err != nil {
			return nil, err
		}
		fn, err := atom(imp.Function, fmt.Sprintf("import %d function", i))
		if err != nil {
			return nil, err
		}
		img.Imports = append(img.Imports, vm.MFA{Module: mod, Function: fn, Arity: imp.Arity})
	}

	for i, fun := range f.Functions {
		fn, err := atom(fun.Name, fmt.Sprintf("function %d", i))
		if err != nil {
			return nil, err
		}
		key := vm.FunKey{Function: fn, Arity: fun.Arity}
		if _, dup := img.Funs[key]; dup {
			return nil, fmt.Errorf("function %s/%d defined twice", f.Atoms[fun.Name], fun.Arity)
		}
		img.Funs[key] = fun.Offset
	}

	for i, e := range f.Exports {
		fn, err := atom(e.Function, fmt.Sprintf("export %d", i))
		if err != nil {
			return nil, err
		}
		img.Exports = append(img.Exports, vm.Export{Function: fn, Arity: e.Arity, Label: e.Label})
	}

	for i, l := range f.Lambdas {
		fn, err := atom(l.Name, fmt.Sprintf("lambda %d", i))
		if err != nil {
			return nil, err
		}
		img.Lambdas = append(img.Lambdas, vm.Lambda{
			Name:    fn,
			Arity:   l.Arity,
			Offset:  l.Offset,
			Index:   l.Index,
			NumFree: l.NumFree,
			OldUniq: l.OldUniq,
		})
	}

	img.Literals = make([]vm.Literal, len(f.Literals))
	for i, l := range f.Literals {
		lit, err := convertLiteral(l, atom)
		if err != nil {
			return nil, fmt.Errorf("literal %d: %w", i, err)
		}
		img.Literals[i] = lit
	}

	for i, ins := range f.Code {
		img.Instructions[i] = vm.Instruction{Op: ins.Op, Args: ins.Args}
	}

	for i, ln := range f.Lines {
		fn, err := atom(ln.Function, fmt.Sprintf("line %d", i))
		if err != nil {
			return nil, err
		}
		img.Lines = append(img.Lines, vm.FuncInfo{Function: fn, Arity: ln.Arity, Line: ln.Line, Offset: ln.Offset})
	}

	return img, nil
}

func convertLiteral(l Literal, atom func(uint32, string) (vm.Atom, error)) (vm.Literal, error) {
	kind := vm.LiteralKind(l.Kind)
	out := vm.Literal{Kind: kind}
	switch kind {
	case vm.LitNil:
	case vm.LitInt:
		out.Int = l.Int
	case vm.LitFloat:
		out.Float = l.Float
	case vm.LitAtom:
		a, err := atom(l.Atom, "atom literal")
		if err != nil {
			return vm.Literal{}, err
		}
		out.Atom = a
	case vm.LitBinary:
		out.Bytes = l.Bytes
	case vm.LitTuple, vm.LitList:
		out.Elems = make([]vm.Literal, len(l.Elems))
		for i, e := range l.Elems {
			el, err := convertLiteral(e, atom)
			if err != nil {
				return vm.Literal{}, err
			}
			out.Elems[i] = el
		}
	default:
		return vm.Literal{}, fmt.Errorf("unknown literal kind %d", l.Kind)
	}
	return out, nil
}
