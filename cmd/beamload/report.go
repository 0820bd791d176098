package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/chazu/beamload/vm"
)

// printReport writes one line per loaded module and one per failure.
func printReport(w io.Writer, m *vm.Machine, r vm.BatchReport) {
	at := m.Atoms()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, mod := range r.Loaded {
		hash := mod.Hash()
		fmt.Fprintf(tw, "loaded\t%s\tv%d\t%d exports\t%x\n",
			at.Name(mod.Name()), mod.Version(), len(mod.Exports()), hash[:6])
	}
	for _, f := range r.Failed {
		fmt.Fprintf(tw, "failed\t%s\t\t\t%v\n", f.Module, f.Err)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d loaded, %d failed\n", len(r.Loaded), len(r.Failed))
}

// printExports writes every resolvable MFA in order, followed by the
// native overrides that shadow bytecode exports.
func printExports(w io.Writer, m *vm.Machine) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range m.Exports().Entries() {
		fmt.Fprintf(tw, "%s\tv%d\t@%d\n", m.FormatMFA(e.MFA), e.Entry.Module.Version(), e.Entry.Offset)
	}
	if bifs, ok := m.Bifs().(vm.BifTable); ok {
		for _, mfa := range bifs.MFAs() {
			fmt.Fprintf(tw, "%s\tnative\t\n", m.FormatMFA(mfa))
		}
	}
	tw.Flush()
}

// printModule dumps a resident module's tables.
func printModule(w io.Writer, m *vm.Machine, mod *vm.Module) {
	at := m.Atoms()
	fmt.Fprintf(w, "module %s\n", at.Name(mod.Name()))
	fmt.Fprintf(w, "  hash     %x\n", mod.Hash())
	fmt.Fprintf(w, "  code     %d instructions\n", len(mod.Instructions()))
	if fn := mod.OnLoad(); fn != vm.NoAtom {
		fmt.Fprintf(w, "  on_load  %s/0\n", at.Name(fn))
	}

	fmt.Fprintf(w, "exports\n")
	for _, e := range mod.Exports() {
		off, _ := mod.FunOffset(e.Function, e.Arity)
		fmt.Fprintf(w, "  %s/%d @%d\n", at.Name(e.Function), e.Arity, off)
	}
	if mod.NumImports() > 0 {
		fmt.Fprintf(w, "imports\n")
		for _, mfa := range mod.Imports() {
			fmt.Fprintf(w, "  %s\n", mfa.Format(at))
		}
	}
	if mod.NumLiterals() > 0 {
		fmt.Fprintf(w, "literals\n")
		for i := 0; i < mod.NumLiterals(); i++ {
			lit, _ := mod.Literal(i)
			fmt.Fprintf(w, "  %d: %s\n", i, lit)
		}
	}
	if lambdas := mod.Lambdas(); len(lambdas) > 0 {
		fmt.Fprintf(w, "lambdas\n")
		for _, l := range lambdas {
			fmt.Fprintf(w, "  #%d %s/%d @%d free=%d\n", l.Index, at.Name(l.Name), l.Arity, l.Offset, l.NumFree)
		}
	}
	if lines := mod.Lines(); len(lines) > 0 {
		fmt.Fprintf(w, "lines\n")
		for _, l := range lines {
			fmt.Fprintf(w, "  %s/%d line %d @%d\n", at.Name(l.Function), l.Arity, l.Line, l.Offset)
		}
	}
}
