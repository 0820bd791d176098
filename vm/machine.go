package vm

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Machine: per-VM loading context
// ---------------------------------------------------------------------------

// Decoder turns a module file into an Image. Errors should wrap ErrIO or
// ErrDecode.
type Decoder interface {
	Decode(path string) (*Image, error)
}

// OnLoadRunner runs a module's on_load hook against the staged module.
// The module is not yet resident while the hook runs.
type OnLoadRunner interface {
	RunOnLoad(m *Module, fn Atom) error
}

// OnLoadFunc adapts a function to OnLoadRunner.
type OnLoadFunc func(m *Module, fn Atom) error

// RunOnLoad calls f(m, fn).
func (f OnLoadFunc) RunOnLoad(m *Module, fn Atom) error { return f(m, fn) }

// Machine owns the module registry and exports table of one VM instance.
// Lock order across the install pipeline is registry, then exports; the
// two are never held at the same time.
type Machine struct {
	id      string
	atoms   *AtomTable
	bifs    BifRegistry
	modules *ModuleRegistry
	exports *ExportsTable
	decoder Decoder
	onLoad  OnLoadRunner
	log     commonlog.Logger
	stopped atomic.Bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithAtoms shares an existing atom table.
func WithAtoms(at *AtomTable) Option { return func(m *Machine) { m.atoms = at } }

// WithBifs sets the native override table.
func WithBifs(b BifRegistry) Option { return func(m *Machine) { m.bifs = b } }

// WithDecoder sets the module file decoder used by LoadModule.
func WithDecoder(d Decoder) Option { return func(m *Machine) { m.decoder = d } }

// WithOnLoad sets the runner for on_load hooks. Without one, hooks are
// skipped.
func WithOnLoad(r OnLoadRunner) Option { return func(m *Machine) { m.onLoad = r } }

// WithLogger replaces the default logger.
func WithLogger(l commonlog.Logger) Option { return func(m *Machine) { m.log = l } }

// NewMachine creates a started machine with an empty registry.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{id: uuid.NewString()}
	for _, opt := range opts {
		opt(m)
	}
	if m.atoms == nil {
		m.atoms = NewAtomTable()
	}
	if m.bifs == nil {
		m.bifs = noBifs{}
	}
	if m.log == nil {
		m.log = commonlog.GetLogger("beamload.vm")
	}
	m.modules = NewModuleRegistry()
	m.exports = NewExportsTable(m.bifs)
	m.log.Info("machine started", "machine", m.id)
	return m
}

// ID returns the machine's instance id, used to tell machines apart in logs.
func (m *Machine) ID() string { return m.id }

// Atoms returns the atom table shared with the decoder.
func (m *Machine) Atoms() *AtomTable { return m.atoms }

// Bifs returns the native override table.
func (m *Machine) Bifs() BifRegistry { return m.bifs }

// Modules returns the module registry.
func (m *Machine) Modules() *ModuleRegistry { return m.modules }

// Exports returns the exports table.
func (m *Machine) Exports() *ExportsTable { return m.exports }

// Stopped reports whether Stop has been called.
func (m *Machine) Stopped() bool { return m.stopped.Load() }

// Stop drains the registry and the exports table. Loads fail with
// ErrStopped afterwards. Entry points already handed out stay usable.
func (m *Machine) Stop() {
	if m.stopped.Swap(true) {
		return
	}
	mods := m.modules.Drain()
	exps := m.exports.Drain()
	m.log.Info("machine stopped", "machine", m.id, "modules", mods, "exports", exps)
}

// FormatMFA renders mfa with this machine's atom names.
func (m *Machine) FormatMFA(mfa MFA) string { return mfa.Format(m.atoms) }

// Resolve returns the entry point published for mfa.
func (m *Machine) Resolve(mfa MFA) (EntryPoint, bool) {
	return m.exports.Resolve(mfa)
}

// LookupModule returns the resident module called name.
func (m *Machine) LookupModule(name Atom) (*Module, bool) {
	return m.modules.Lookup(name)
}

// LookupModuleNamed is LookupModule by name string.
func (m *Machine) LookupModuleNamed(name string) (*Module, bool) {
	a, ok := m.atoms.Lookup(name)
	if !ok {
		return nil, false
	}
	return m.modules.Lookup(a)
}

// ResolveImport resolves the i-th import of mod through the exports
// table. Imports are bound at call time, so this reflects whatever is
// published now.
func (m *Machine) ResolveImport(mod *Module, i int) (EntryPoint, MFA, bool) {
	mfa, ok := mod.Import(i)
	if !ok {
		return EntryPoint{}, MFA{}, false
	}
	ep, ok := m.exports.Resolve(mfa)
	return ep, mfa, ok
}

// LambdaEntry returns the entry point of a closure template in mod. A
// closure runs against the module version it was created from.
func LambdaEntry(mod *Module, index uint32) (EntryPoint, Lambda, bool) {
	l, ok := mod.Lambda(index)
	if !ok {
		return EntryPoint{}, Lambda{}, false
	}
	return EntryPoint{Module: mod, Offset: l.Offset}, l, true
}

// ResolveFun finds a closure template in the resident version of module.
// It fails when the resident version no longer carries a template with
// the same index and uniq, i.e. the closure was created by other code.
func (m *Machine) ResolveFun(module Atom, index, uniq uint32) (EntryPoint, Lambda, bool) {
	mod, ok := m.modules.Lookup(module)
	if !ok {
		return EntryPoint{}, Lambda{}, false
	}
	ep, l, ok := LambdaEntry(mod, index)
	if !ok || l.OldUniq != uniq {
		return EntryPoint{}, Lambda{}, false
	}
	return ep, l, true
}
