package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("BEAX"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResolverSearchOrder(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "ebin", "cart.beax"))
	touch(t, filepath.Join(dir, "patches", "cart.beax"))
	touch(t, filepath.Join(dir, "ebin", "billing.beax"))

	m := &Manifest{Dir: dir, Release: Release{Dirs: []string{"patches", "ebin"}}}
	r := NewResolver(m)

	got := r.Resolve("cart")
	if !got.Found || got.Path != filepath.Join(dir, "patches", "cart.beax") {
		t.Errorf("Resolve(cart) = %+v, want patches/cart.beax", got)
	}

	got = r.Resolve("billing")
	if !got.Found || got.Path != filepath.Join(dir, "ebin", "billing.beax") {
		t.Errorf("Resolve(billing) = %+v, want ebin/billing.beax", got)
	}
}

func TestResolverMissingModule(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{Dir: dir, Release: Release{Dirs: []string{"ebin"}}}

	got := NewResolver(m).Resolve("ghost")
	if got.Found {
		t.Error("ghost should not be found")
	}
	if got.Path != filepath.Join(dir, "ebin", "ghost.beax") {
		t.Errorf("path = %q, want candidate in first dir", got.Path)
	}
}

func TestResolverExplicitFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "ebin", "sub", "odd.beax"))
	m := &Manifest{Dir: dir, Release: Release{Dirs: []string{"ebin"}}}

	got := NewResolver(m).Resolve("sub/odd.beax")
	if !got.Found || got.Name != "odd" {
		t.Errorf("Resolve(sub/odd.beax) = %+v", got)
	}
}

func TestResolverDiscover(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "patches", "b.beax"))
	touch(t, filepath.Join(dir, "ebin", "b.beax"))
	touch(t, filepath.Join(dir, "ebin", "a.beax"))
	touch(t, filepath.Join(dir, "ebin", "notes.txt"))

	m := &Manifest{Dir: dir, Release: Release{Dirs: []string{"patches", "ebin", "missing"}}}
	mods, err := NewResolver(m).Modules(m)
	if err != nil {
		t.Fatalf("Modules failed: %v", err)
	}
	if len(mods) != 2 {
		t.Fatalf("got %d modules, want 2: %+v", len(mods), mods)
	}
	if mods[0].Name != "a" || mods[1].Name != "b" {
		t.Errorf("order = %s, %s; want a, b", mods[0].Name, mods[1].Name)
	}
	if mods[1].Path != filepath.Join(dir, "patches", "b.beax") {
		t.Errorf("b resolved to %q, want the patches copy", mods[1].Path)
	}
}
