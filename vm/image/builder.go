package image

// Builder assembles a File by name, handling the file-local atom table.
type Builder struct {
	f     File
	index map[string]uint32
}

// NewBuilder starts a file for the named module.
func NewBuilder(module string) *Builder {
	b := &Builder{
		f:     File{Atoms: []string{""}},
		index: make(map[string]uint32),
	}
	b.f.Name = b.Atom(module)
	return b
}

// Atom returns the file-local index of name, adding it if needed.
func (b *Builder) Atom(name string) uint32 {
	if idx, ok := b.index[name]; ok {
		return idx
	}
	idx := uint32(len(b.f.Atoms))
	b.f.Atoms = append(b.f.Atoms, name)
	b.index[name] = idx
	return idx
}

// Instruction appends one instruction.
func (b *Builder) Instruction(op uint16, args ...int64) *Builder {
	b.f.Code = append(b.f.Code, Instruction{Op: op, Args: args})
	return b
}

// Code pads the body with n zero-opcode instructions.
func (b *Builder) Code(n int) *Builder {
	for range n {
		b.f.Code = append(b.f.Code, Instruction{})
	}
	return b
}

// Function adds a function table entry.
func (b *Builder) Function(name string, arity, offset uint32) *Builder {
	b.f.Functions = append(b.f.Functions, Function{Name: b.Atom(name), Arity: arity, Offset: offset})
	return b
}

// Export adds an export. The label is its position in the export list.
func (b *Builder) Export(name string, arity uint32) *Builder {
	b.f.Exports = append(b.f.Exports, Export{Function: b.Atom(name), Arity: arity, Label: uint32(len(b.f.Exports))})
	return b
}

// Import adds an external reference.
func (b *Builder) Import(module, name string, arity uint32) *Builder {
	b.f.Imports = append(b.f.Imports, Import{Module: b.Atom(module), Function: b.Atom(name), Arity: arity})
	return b
}

// Literal appends a literal to the pool.
func (b *Builder) Literal(l Literal) *Builder {
	b.f.Literals = append(b.f.Literals, l)
	return b
}

// Lambda appends a closure template; its index is its position.
func (b *Builder) Lambda(name string, arity, offset, numFree, uniq uint32) *Builder {
	b.f.Lambdas = append(b.f.Lambdas, Lambda{
		Name:    b.Atom(name),
		Arity:   arity,
		Offset:  offset,
		Index:   uint32(len(b.f.Lambdas)),
		NumFree: numFree,
		OldUniq: uniq,
	})
	return b
}

// Line adds a debug line entry.
func (b *Builder) Line(name string, arity, line, offset uint32) *Builder {
	b.f.Lines = append(b.f.Lines, Line{Function: b.Atom(name), Arity: arity, Line: line, Offset: offset})
	return b
}

// OnLoad sets the module's on_load hook.
func (b *Builder) OnLoad(name string) *Builder {
	b.f.OnLoad = b.Atom(name)
	return b
}

// File returns the assembled file. The builder must not be used after.
func (b *Builder) File() *File {
	return &b.f
}
