package vm

import (
	"cmp"
	"slices"
	"sync"
)

// ---------------------------------------------------------------------------
// ModuleRegistry: resident modules by name
// ---------------------------------------------------------------------------

// ModuleRegistry is the sole authority over which modules are resident.
// Every install goes through one exclusive section; a module is either
// fully visible under its name or not visible at all.
type ModuleRegistry struct {
	mu         sync.RWMutex
	modules    map[Atom]*Module
	staged     map[*Module]struct{}
	generation uint64 // last version handed out
	closed     bool   // set by Drain; nothing installs afterwards
}

// NewModuleRegistry creates an empty registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{
		modules: make(map[Atom]*Module),
		staged:  make(map[*Module]struct{}),
	}
}

// InstallOrReplace validates img and makes it the resident module for its
// name, superseding whatever was there. Last writer wins.
func (r *ModuleRegistry) InstallOrReplace(img *Image) (*Module, error) {
	m, err := newModule(img)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrStopped
	}
	r.commitLocked(m)
	return m, nil
}

// Replace is InstallOrReplace guarded by the version the caller last saw.
// expected is 0 when the caller expects no resident module. A mismatch
// fails with ErrVersionConflict and leaves the registry untouched.
func (r *ModuleRegistry) Replace(img *Image, expected uint64) (*Module, error) {
	m, err := newModule(img)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrStopped
	}
	if err := r.checkVersionLocked(m.name, expected); err != nil {
		return nil, err
	}
	r.commitLocked(m)
	return m, nil
}

// Stage validates img and builds its module without making it visible.
// The module becomes resident only through Commit.
func (r *ModuleRegistry) Stage(img *Image) (*Module, error) {
	m, err := newModule(img)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrStopped
	}
	r.staged[m] = struct{}{}
	return m, nil
}

// Commit makes a staged module resident.
func (r *ModuleRegistry) Commit(m *Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrStopped
	}
	if _, ok := r.staged[m]; !ok {
		return ErrNotStaged
	}
	r.commitLocked(m)
	return nil
}

// CommitIfVersion is Commit guarded like Replace.
func (r *ModuleRegistry) CommitIfVersion(m *Module, expected uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrStopped
	}
	if _, ok := r.staged[m]; !ok {
		return ErrNotStaged
	}
	if err := r.checkVersionLocked(m.name, expected); err != nil {
		return err
	}
	r.commitLocked(m)
	return nil
}

// Discard drops a staged module that will never be committed.
func (r *ModuleRegistry) Discard(m *Module) {
	r.mu.Lock()
	delete(r.staged, m)
	r.mu.Unlock()
}

func (r *ModuleRegistry) checkVersionLocked(name Atom, expected uint64) error {
	var current uint64
	if prev := r.modules[name]; prev != nil {
		current = prev.version
	}
	if current != expected {
		return ErrVersionConflict
	}
	return nil
}

func (r *ModuleRegistry) commitLocked(m *Module) {
	delete(r.staged, m)
	r.generation++
	m.seal(r.generation)
	if prev := r.modules[m.name]; prev != nil {
		prev.superseded.Store(true)
	}
	r.modules[m.name] = m
}

// Lookup returns the resident module for name.
func (r *ModuleRegistry) Lookup(name Atom) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Version returns the version of the resident module for name, or 0.
func (r *ModuleRegistry) Version(name Atom) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m := r.modules[name]; m != nil {
		return m.version
	}
	return 0
}

// All returns the resident modules ordered by name.
func (r *ModuleRegistry) All() []*Module {
	r.mu.RLock()
	result := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		result = append(result, m)
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b *Module) int { return cmp.Compare(a.name, b.name) })
	return result
}

// Len returns the number of resident modules.
func (r *ModuleRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// Drain removes every module, marking each superseded, and closes the
// registry: later installs, stages and commits fail with ErrStopped.
// Returns how many were resident.
func (r *ModuleRegistry) Drain() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	n := len(r.modules)
	for name, m := range r.modules {
		m.superseded.Store(true)
		delete(r.modules, name)
	}
	clear(r.staged)
	return n
}
