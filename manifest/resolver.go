package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ModuleExt is the file extension of module images.
const ModuleExt = ".beax"

// ResolvedModule is a release module mapped to a file.
type ResolvedModule struct {
	Name  string // module name
	Path  string // absolute file path
	Found bool   // false when no directory holds the file
}

// Resolver maps module names onto the release's directories. Directories
// are searched in order; the first match wins, like a code path.
type Resolver struct {
	dirs []string
}

// NewResolver creates a resolver over the manifest's directories.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{dirs: m.DirPaths()}
}

// Resolve maps one module name (or a path ending in ModuleExt) to a file.
// A module that is not found still gets a path in the first directory so
// the loader reports it as unreadable.
func (r *Resolver) Resolve(name string) ResolvedModule {
	if strings.HasSuffix(name, ModuleExt) {
		p := name
		if !filepath.IsAbs(p) && len(r.dirs) > 0 {
			p = filepath.Join(r.dirs[0], p)
		}
		_, err := os.Stat(p)
		return ResolvedModule{Name: strings.TrimSuffix(filepath.Base(name), ModuleExt), Path: p, Found: err == nil}
	}

	for _, d := range r.dirs {
		p := filepath.Join(d, name+ModuleExt)
		if _, err := os.Stat(p); err == nil {
			return ResolvedModule{Name: name, Path: p, Found: true}
		}
	}
	rm := ResolvedModule{Name: name}
	if len(r.dirs) > 0 {
		rm.Path = filepath.Join(r.dirs[0], name+ModuleExt)
	}
	return rm
}

// Modules resolves the release's module list. With no modules listed,
// every module file in the directories is taken, earlier directories
// shadowing later ones, in name order.
func (r *Resolver) Modules(m *Manifest) ([]ResolvedModule, error) {
	if len(m.Release.Modules) > 0 {
		out := make([]ResolvedModule, 0, len(m.Release.Modules))
		for _, name := range m.Release.Modules {
			out = append(out, r.Resolve(name))
		}
		return out, nil
	}
	return r.discover()
}

func (r *Resolver) discover() ([]ResolvedModule, error) {
	seen := make(map[string]bool)
	var out []ResolvedModule
	for _, d := range r.dirs {
		entries, err := os.ReadDir(d)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", d, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ModuleExt) {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ModuleExt)
			if seen[name] {
				continue // shadowed by an earlier directory
			}
			seen[name] = true
			out = append(out, ResolvedModule{Name: name, Path: filepath.Join(d, e.Name()), Found: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
