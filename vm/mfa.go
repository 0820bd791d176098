package vm

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// MFA: fully-qualified function reference
// ---------------------------------------------------------------------------

// MFA identifies a callable function by module, function name and arity.
// Two MFAs are equal iff all three components are equal, so MFA is usable
// directly as a map key.
type MFA struct {
	Module   Atom
	Function Atom
	Arity    uint32
}

// Compare orders MFAs by module, then function, then arity.
func (m MFA) Compare(o MFA) int {
	if c := cmp.Compare(m.Module, o.Module); c != 0 {
		return c
	}
	if c := cmp.Compare(m.Function, o.Function); c != 0 {
		return c
	}
	return cmp.Compare(m.Arity, o.Arity)
}

// Less reports whether m sorts before o.
func (m MFA) Less(o MFA) bool { return m.Compare(o) < 0 }

// Key returns the module-local part of the reference.
func (m MFA) Key() FunKey { return FunKey{Function: m.Function, Arity: m.Arity} }

// Format renders the reference as mod:fun/arity.
func (m MFA) Format(atoms *AtomTable) string {
	return atoms.Name(m.Module) + ":" + atoms.Name(m.Function) + "/" + strconv.FormatUint(uint64(m.Arity), 10)
}

// String renders the reference with raw atom ids.
func (m MFA) String() string {
	return fmt.Sprintf("#%d:#%d/%d", m.Module, m.Function, m.Arity)
}

// ParseMFA parses the mod:fun/arity form, interning both names.
func ParseMFA(atoms *AtomTable, s string) (MFA, error) {
	mod, rest, ok := strings.Cut(s, ":")
	if !ok || mod == "" {
		return MFA{}, fmt.Errorf("invalid function reference %q: missing module", s)
	}
	slash := strings.LastIndexByte(rest, '/')
	if slash <= 0 {
		return MFA{}, fmt.Errorf("invalid function reference %q: missing arity", s)
	}
	arity, err := strconv.ParseUint(rest[slash+1:], 10, 32)
	if err != nil {
		return MFA{}, fmt.Errorf("invalid function reference %q: %w", s, err)
	}
	return MFA{
		Module:   atoms.Intern(mod),
		Function: atoms.Intern(rest[:slash]),
		Arity:    uint32(arity),
	}, nil
}

// FunKey is a (function, arity) pair local to one module.
type FunKey struct {
	Function Atom
	Arity    uint32
}

// Export is one entry of a module's export list. Label is the code label
// the compiler attached to it; the entry offset always comes from the
// module's function table.
type Export struct {
	Function Atom
	Arity    uint32
	Label    uint32
}

// ---------------------------------------------------------------------------
// Lambda: closure template
// ---------------------------------------------------------------------------

// Lambda describes a closure template. OldUniq distinguishes structurally
// identical closures compiled into different versions of a module.
type Lambda struct {
	Name    Atom
	Arity   uint32
	Offset  uint32
	Index   uint32
	NumFree uint32 // captured free variables
	OldUniq uint32
}

// Instruction is one decoded bytecode instruction.
type Instruction struct {
	Op   uint16
	Args []int64
}

// FuncInfo is a debug line table entry.
type FuncInfo struct {
	Function Atom
	Arity    uint32
	Line     uint32
	Offset   uint32
}
