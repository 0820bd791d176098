package vm

import (
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Image: decoder output
// ---------------------------------------------------------------------------

// Image is a decoded module file. It is plain data: producing one has no
// side effects, and the registry copies what it keeps.
type Image struct {
	Name         Atom
	Imports      []MFA
	Exports      []Export
	Literals     []Literal
	Lambdas      []Lambda
	Funs         map[FunKey]uint32 // (function, arity) -> instruction offset
	Instructions []Instruction
	Lines        []FuncInfo
	OnLoad       Atom // NoAtom when the module has no on_load hook
	Hash         [32]byte
	Path         string
}

// validate checks image shape. Structural problems are ErrDecode; an
// export without a body is ErrUnresolvedExport.
func (img *Image) validate() error {
	if img.Name == NoAtom {
		return decodeErrorf("module has no name")
	}
	n := uint32(len(img.Instructions))
	for k, off := range img.Funs {
		if k.Function == NoAtom {
			return decodeErrorf("function table entry without a name")
		}
		if off >= n {
			return decodeErrorf("function #%d/%d at offset %d outside code (%d instructions)", k.Function, k.Arity, off, n)
		}
	}
	for i, l := range img.Lambdas {
		if l.Index != uint32(i) {
			return decodeErrorf("lambda %d carries index %d", i, l.Index)
		}
		if l.Offset >= n {
			return decodeErrorf("lambda %d at offset %d outside code (%d instructions)", i, l.Offset, n)
		}
	}
	for i, imp := range img.Imports {
		if imp.Module == NoAtom || imp.Function == NoAtom {
			return decodeErrorf("import %d is incomplete", i)
		}
	}
	for _, e := range img.Exports {
		if _, ok := img.Funs[FunKey{Function: e.Function, Arity: e.Arity}]; !ok {
			return fmt.Errorf("%w: #%d/%d", ErrUnresolvedExport, e.Function, e.Arity)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Module: an installed, immutable module
// ---------------------------------------------------------------------------

// Module is a resident (or formerly resident) module. Nothing in it changes
// after construction except the superseded flag, which only ever goes from
// false to true.
type Module struct {
	name     Atom
	imports  []MFA
	exports  []Export
	literals []Literal
	heap     *LiteralHeap
	lambdas  []Lambda
	funs     map[FunKey]uint32
	code     []Instruction
	lines    []FuncInfo
	onLoad   Atom
	hash     [32]byte
	path     string

	version    uint64
	superseded atomic.Bool
	snapshot   ExportSnapshot
}

// newModule validates img and builds a module owning copies of its data.
// The module has no version until the registry seals it.
func newModule(img *Image) (*Module, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}

	m := &Module{
		name:    img.Name,
		imports: slices.Clone(img.Imports),
		exports: slices.Clone(img.Exports),
		lambdas: slices.Clone(img.Lambdas),
		funs:    maps.Clone(img.Funs),
		code:    slices.Clone(img.Instructions),
		lines:   slices.Clone(img.Lines),
		onLoad:  img.OnLoad,
		hash:    img.Hash,
		path:    img.Path,
	}
	if m.funs == nil {
		m.funs = make(map[FunKey]uint32)
	}

	// Each module gets its own arena, even when two are built from one
	// image.
	m.heap = NewLiteralHeap()
	m.literals = make([]Literal, len(img.Literals))
	for i, lit := range img.Literals {
		m.literals[i] = m.heap.AllocLiteral(lit)
	}

	return m, nil
}

// seal assigns the registry generation and computes the export
// publication set. It runs once, under the registry lock, before the
// module becomes reachable from the registry.
func (m *Module) seal(version uint64) {
	m.version = version
	m.snapshot = m.buildSnapshot()
}

func (m *Module) buildSnapshot() ExportSnapshot {
	s := ExportSnapshot{
		Module:  m.name,
		Version: m.version,
		Entries: make([]ExportEntry, 0, len(m.exports)),
	}
	for _, e := range m.exports {
		mfa := MFA{Module: m.name, Function: e.Function, Arity: e.Arity}
		s.Entries = append(s.Entries, ExportEntry{
			MFA:   mfa,
			Entry: EntryPoint{Module: m, Offset: m.funs[mfa.Key()]},
		})
	}
	return s
}

// Name returns the module's name atom.
func (m *Module) Name() Atom { return m.name }

// OnLoad returns the on_load hook function, or NoAtom.
func (m *Module) OnLoad() Atom { return m.onLoad }

// Hash returns the sha256 of the file the module was decoded from.
func (m *Module) Hash() [32]byte { return m.hash }

// Path returns the file the module was loaded from, if any.
func (m *Module) Path() string { return m.path }

// Version returns the registry generation the module was committed at;
// 0 while staged.
func (m *Module) Version() uint64 { return m.version }

// Superseded reports whether a newer module replaced this one, or the
// machine was stopped.
func (m *Module) Superseded() bool { return m.superseded.Load() }

// NumLiterals returns the size of the literal pool.
func (m *Module) NumLiterals() int { return len(m.literals) }

// NumLambdas returns the number of closure templates.
func (m *Module) NumLambdas() int { return len(m.lambdas) }

// NumImports returns the number of external references.
func (m *Module) NumImports() int { return len(m.imports) }

// Heap returns the arena holding the module's literals.
func (m *Module) Heap() *LiteralHeap { return m.heap }

// Imports returns a copy of the import list.
func (m *Module) Imports() []MFA { return slices.Clone(m.imports) }

// Exports returns a copy of the export list.
func (m *Module) Exports() []Export { return slices.Clone(m.exports) }

// Lambdas returns a copy of the closure templates.
func (m *Module) Lambdas() []Lambda { return slices.Clone(m.lambdas) }

// Lines returns a copy of the debug line table.
func (m *Module) Lines() []FuncInfo { return slices.Clone(m.lines) }

// Instructions returns the code body. Callers must not modify it.
func (m *Module) Instructions() []Instruction { return m.code }

// Import returns the i-th import.
func (m *Module) Import(i int) (MFA, bool) {
	if i < 0 || i >= len(m.imports) {
		return MFA{}, false
	}
	return m.imports[i], true
}

// Literal returns the i-th literal.
func (m *Module) Literal(i int) (Literal, bool) {
	if i < 0 || i >= len(m.literals) {
		return Literal{}, false
	}
	return m.literals[i], true
}

// Lambda returns the closure template at the given closure index.
func (m *Module) Lambda(index uint32) (Lambda, bool) {
	if int(index) >= len(m.lambdas) {
		return Lambda{}, false
	}
	return m.lambdas[index], true
}

// FunOffset returns the offset of a local function. Local calls go through
// here, which is how a BIF-overridden export stays reachable from inside
// its own module.
func (m *Module) FunOffset(fn Atom, arity uint32) (uint32, bool) {
	off, ok := m.funs[FunKey{Function: fn, Arity: arity}]
	return off, ok
}

// LineFor returns the line table entry covering an instruction offset.
func (m *Module) LineFor(offset uint32) (FuncInfo, bool) {
	var best FuncInfo
	found := false
	for _, l := range m.lines {
		if l.Offset <= offset && (!found || l.Offset >= best.Offset) {
			best = l
			found = true
		}
	}
	return best, found
}

// ExportSnapshot returns the immutable export publication set.
func (m *Module) ExportSnapshot() ExportSnapshot { return m.snapshot }

func (m *Module) String() string {
	return fmt.Sprintf("module #%d v%d", m.name, m.version)
}

// ---------------------------------------------------------------------------
// EntryPoint and export snapshots
// ---------------------------------------------------------------------------

// EntryPoint is a resolved call target. It holds its module strongly, so a
// caller that captured it keeps running against consistent code and
// literals even after the module is superseded.
type EntryPoint struct {
	Module *Module
	Offset uint32
}

// Valid reports whether the entry point refers to a module.
func (ep EntryPoint) Valid() bool { return ep.Module != nil }

// Stale reports whether a newer module has replaced the one ep points into.
func (ep EntryPoint) Stale() bool { return ep.Module != nil && ep.Module.Superseded() }

// Code returns the instructions starting at the entry offset.
func (ep EntryPoint) Code() []Instruction {
	if ep.Module == nil || int(ep.Offset) >= len(ep.Module.code) {
		return nil
	}
	return ep.Module.code[ep.Offset:]
}

// ExportEntry is one (mfa, entry point) pair of a snapshot.
type ExportEntry struct {
	MFA   MFA
	Entry EntryPoint
}

// ExportSnapshot is the set of exports one module version publishes.
type ExportSnapshot struct {
	Module  Atom
	Version uint64
	Entries []ExportEntry
}
