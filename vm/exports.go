package vm

import (
	"slices"
	"sync"
)

// ---------------------------------------------------------------------------
// ExportsTable: MFA -> entry point
// ---------------------------------------------------------------------------

// ExportsTable maps function references to entry points. It is read on
// every cross-module call; writers hold the lock only for one entry at a
// time.
type ExportsTable struct {
	mu       sync.RWMutex
	entries  map[MFA]EntryPoint
	byModule map[Atom]map[MFA]struct{} // entries keys grouped by module
	latest   map[Atom]uint64           // newest module version published per name
	bifs     BifRegistry
	closed   bool // set by Drain; nothing registers afterwards
}

// NewExportsTable creates an empty table. A nil bifs means no overrides.
func NewExportsTable(bifs BifRegistry) *ExportsTable {
	if bifs == nil {
		bifs = noBifs{}
	}
	return &ExportsTable{
		entries:  make(map[MFA]EntryPoint),
		byModule: make(map[Atom]map[MFA]struct{}),
		latest:   make(map[Atom]uint64),
		bifs:     bifs,
	}
}

// Register inserts or overwrites the entry for mfa and reports whether it
// was published. Overridden references are never published, and neither
// are entries from a module version older than one already published
// under the same name. A drained table refuses everything.
func (et *ExportsTable) Register(mfa MFA, ep EntryPoint) bool {
	if ep.Module == nil || et.bifs.IsOverride(mfa) {
		return false
	}

	et.mu.Lock()
	defer et.mu.Unlock()

	if et.closed {
		return false
	}
	v := ep.Module.version
	if v < et.latest[mfa.Module] {
		return false
	}
	et.latest[mfa.Module] = v
	et.entries[mfa] = ep
	keys := et.byModule[mfa.Module]
	if keys == nil {
		keys = make(map[MFA]struct{})
		et.byModule[mfa.Module] = keys
	}
	keys[mfa] = struct{}{}
	return true
}

// Resolve returns the entry point for mfa. Absence is not an error here;
// the caller decides what an undefined function means.
func (et *ExportsTable) Resolve(mfa MFA) (EntryPoint, bool) {
	et.mu.RLock()
	defer et.mu.RUnlock()
	ep, ok := et.entries[mfa]
	return ep, ok
}

// Publish registers every entry of a module snapshot, then drops entries
// left behind by older versions of the same module. Concurrent resolvers
// may see the export set partially published while this runs. Returns the
// number of entries published.
func (et *ExportsTable) Publish(s ExportSnapshot) int {
	et.mu.Lock()
	if et.closed {
		et.mu.Unlock()
		return 0
	}
	if s.Version > et.latest[s.Module] {
		et.latest[s.Module] = s.Version
	}
	et.mu.Unlock()

	published := 0
	for _, e := range s.Entries {
		if et.Register(e.MFA, e.Entry) {
			published++
		}
	}

	et.mu.Lock()
	defer et.mu.Unlock()
	for mfa := range et.byModule[s.Module] {
		if et.entries[mfa].Module.version < s.Version {
			et.deleteLocked(mfa)
		}
	}
	return published
}

// Unpublish removes every entry belonging to module. Returns how many
// were removed.
func (et *ExportsTable) Unpublish(module Atom) int {
	et.mu.Lock()
	defer et.mu.Unlock()
	n := len(et.byModule[module])
	for mfa := range et.byModule[module] {
		delete(et.entries, mfa)
	}
	delete(et.byModule, module)
	return n
}

func (et *ExportsTable) deleteLocked(mfa MFA) {
	delete(et.entries, mfa)
	keys := et.byModule[mfa.Module]
	delete(keys, mfa)
	if len(keys) == 0 {
		delete(et.byModule, mfa.Module)
	}
}

// Len returns the number of published entries.
func (et *ExportsTable) Len() int {
	et.mu.RLock()
	defer et.mu.RUnlock()
	return len(et.entries)
}

// Closed reports whether the table has been drained.
func (et *ExportsTable) Closed() bool {
	et.mu.RLock()
	defer et.mu.RUnlock()
	return et.closed
}

// Entries returns all published entries in MFA order.
func (et *ExportsTable) Entries() []ExportEntry {
	et.mu.RLock()
	out := make([]ExportEntry, 0, len(et.entries))
	for mfa, ep := range et.entries {
		out = append(out, ExportEntry{MFA: mfa, Entry: ep})
	}
	et.mu.RUnlock()

	slices.SortFunc(out, func(a, b ExportEntry) int { return a.MFA.Compare(b.MFA) })
	return out
}

// Drain removes everything and closes the table.
func (et *ExportsTable) Drain() int {
	et.mu.Lock()
	defer et.mu.Unlock()
	et.closed = true
	n := len(et.entries)
	clear(et.entries)
	clear(et.byModule)
	clear(et.latest)
	return n
}
