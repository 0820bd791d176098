package vm

import "slices"

// ---------------------------------------------------------------------------
// BIF overrides
// ---------------------------------------------------------------------------

// BifRegistry answers whether a native implementation overrides a
// bytecode function of the same name and arity.
type BifRegistry interface {
	IsOverride(mfa MFA) bool
}

// BifTable is a fixed set of overridden references, built once at
// machine start and never modified.
type BifTable map[MFA]struct{}

// NewBifTable builds a table from the given references.
func NewBifTable(mfas ...MFA) BifTable {
	t := make(BifTable, len(mfas))
	for _, m := range mfas {
		t[m] = struct{}{}
	}
	return t
}

// IsOverride implements BifRegistry.
func (t BifTable) IsOverride(mfa MFA) bool {
	_, ok := t[mfa]
	return ok
}

// MFAs returns the table contents in MFA order.
func (t BifTable) MFAs() []MFA {
	out := make([]MFA, 0, len(t))
	for m := range t {
		out = append(out, m)
	}
	slices.SortFunc(out, MFA.Compare)
	return out
}

type noBifs struct{}

func (noBifs) IsOverride(MFA) bool { return false }
