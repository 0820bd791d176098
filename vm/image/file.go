// Package image implements the on-disk module image format: a short
// header followed by a canonical CBOR body. All names inside a file are
// indexes into the file's own atom list; Decode maps them onto the
// machine's atom table.
package image

// File is the serialized form of one module.
type File struct {
	Atoms     []string      `cbor:"1,keyasint"` // index 0 is unused
	Name      uint32        `cbor:"2,keyasint"`
	Imports   []Import      `cbor:"3,keyasint,omitempty"`
	Exports   []Export      `cbor:"4,keyasint,omitempty"`
	Functions []Function    `cbor:"5,keyasint,omitempty"`
	Literals  []Literal     `cbor:"6,keyasint,omitempty"`
	Lambdas   []Lambda      `cbor:"7,keyasint,omitempty"`
	Code      []Instruction `cbor:"8,keyasint,omitempty"`
	Lines     []Line        `cbor:"9,keyasint,omitempty"`
	OnLoad    uint32        `cbor:"10,keyasint,omitempty"`
}

// Import references a function in another module.
type Import struct {
	Module   uint32 `cbor:"1,keyasint"`
	Function uint32 `cbor:"2,keyasint"`
	Arity    uint32 `cbor:"3,keyasint"`
}

type Export struct {
	Function uint32 `cbor:"1,keyasint"`
	Arity    uint32 `cbor:"2,keyasint"`
	Label    uint32 `cbor:"3,keyasint"`
}

// Function is a function table entry.
type Function struct {
	Name   uint32 `cbor:"1,keyasint"`
	Arity  uint32 `cbor:"2,keyasint"`
	Offset uint32 `cbor:"3,keyasint"`
}

// Literal mirrors vm.Literal with atoms as file-local indexes.
type Literal struct {
	Kind  uint8     `cbor:"1,keyasint"`
	Int   int64     `cbor:"2,keyasint,omitempty"`
	Float float64   `cbor:"3,keyasint,omitempty"`
	Atom  uint32    `cbor:"4,keyasint,omitempty"`
	Bytes []byte    `cbor:"5,keyasint,omitempty"`
	Elems []Literal `cbor:"6,keyasint,omitempty"`
}

type Lambda struct {
	Name    uint32 `cbor:"1,keyasint"`
	Arity   uint32 `cbor:"2,keyasint"`
	Offset  uint32 `cbor:"3,keyasint"`
	Index   uint32 `cbor:"4,keyasint"`
	NumFree uint32 `cbor:"5,keyasint"`
	OldUniq uint32 `cbor:"6,keyasint"`
}

type Instruction struct {
	Op   uint16  `cbor:"1,keyasint"`
	Args []int64 `cbor:"2,keyasint,omitempty"`
}

// Line is a debug line table entry.
type Line struct {
	Function uint32 `cbor:"1,keyasint"`
	Arity    uint32 `cbor:"2,keyasint"`
	Line     uint32 `cbor:"3,keyasint"`
	Offset   uint32 `cbor:"4,keyasint"`
}
