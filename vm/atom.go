package vm

import "sync"

// ---------------------------------------------------------------------------
// AtomTable: Interned atoms
// ---------------------------------------------------------------------------

// Atom is the interned id of a name. Atom 0 is reserved and never names
// anything, so a zero Atom field means "absent".
type Atom uint32

// NoAtom is the reserved zero atom.
const NoAtom Atom = 0

// AtomTable interns names to small integer ids.
type AtomTable struct {
	mu     sync.RWMutex
	byName map[string]Atom // name -> ID
	byID   []string        // ID -> name
}

// NewAtomTable creates an atom table with only the reserved atom in it.
func NewAtomTable() *AtomTable {
	return &AtomTable{
		byName: make(map[string]Atom),
		byID:   append(make([]string, 0, 256), ""),
	}
}

// Intern returns the ID for a name, creating a new one if needed.
func (at *AtomTable) Intern(name string) Atom {
	// Fast path: read-only lookup
	at.mu.RLock()
	if id, ok := at.byName[name]; ok {
		at.mu.RUnlock()
		return id
	}
	at.mu.RUnlock()

	at.mu.Lock()
	defer at.mu.Unlock()

	// Double-check after acquiring write lock
	if id, ok := at.byName[name]; ok {
		return id
	}

	id := Atom(len(at.byID))
	at.byName[name] = id
	at.byID = append(at.byID, name)
	return id
}

// Lookup returns the ID for a name without interning it.
func (at *AtomTable) Lookup(name string) (Atom, bool) {
	at.mu.RLock()
	defer at.mu.RUnlock()
	id, ok := at.byName[name]
	return id, ok
}

// Name returns the name for an ID, or "" if invalid.
func (at *AtomTable) Name(id Atom) string {
	at.mu.RLock()
	defer at.mu.RUnlock()

	if int(id) >= len(at.byID) {
		return ""
	}
	return at.byID[id]
}

// Len returns the number of interned atoms, excluding the reserved one.
func (at *AtomTable) Len() int {
	at.mu.RLock()
	defer at.mu.RUnlock()
	return len(at.byID) - 1
}
