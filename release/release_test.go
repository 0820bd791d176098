package release

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/beamload/vm"
	"github.com/chazu/beamload/vm/image"
)

// writeRelease lays out a release directory with the given manifest and
// module files under ebin/.
func writeRelease(t *testing.T, toml string, files map[string]*image.File) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "release.toml"), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "ebin"), 0755); err != nil {
		t.Fatal(err)
	}
	for name, f := range files {
		if err := image.WriteFile(filepath.Join(dir, "ebin", name+".beax"), f); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func cartModule() *image.File {
	b := image.NewBuilder("cart")
	b.Code(16).Function("add", 2, 3).Function("total", 1, 8)
	b.Export("add", 2).Export("total", 1)
	b.Import("billing", "charge", 1)
	return b.File()
}

func billingModule() *image.File {
	b := image.NewBuilder("billing")
	b.Code(8).Function("charge", 1, 2).Export("charge", 1)
	return b.File()
}

func resolve(t *testing.T, r *Release, ref string) (vm.EntryPoint, bool) {
	t.Helper()
	mfa, err := vm.ParseMFA(r.Machine.Atoms(), ref)
	if err != nil {
		t.Fatal(err)
	}
	return r.Machine.Resolve(mfa)
}

func TestBoot_LoadsRelease(t *testing.T) {
	dir := writeRelease(t, `
[release]
name = "shop"
version = "1.0.0"
modules = ["cart", "billing"]

[loader]
decode-concurrency = 2
`, map[string]*image.File{"cart": cartModule(), "billing": billingModule()})

	r, err := Boot(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer r.Stop()

	if !r.Report.OK() {
		t.Fatalf("report has failures: %v", r.Report.Err())
	}
	if len(r.Report.Loaded) != 2 {
		t.Errorf("loaded %d modules, want 2", len(r.Report.Loaded))
	}

	// cart imports billing: the batch publishes after both are resident.
	cart, ok := r.Machine.LookupModuleNamed("cart")
	if !ok {
		t.Fatal("cart should be resident")
	}
	if _, _, ok := r.Machine.ResolveImport(cart, 0); !ok {
		t.Error("cart's import of billing:charge/1 should resolve")
	}
	if ep, ok := resolve(t, r, "cart:total/1"); !ok || ep.Offset != 8 {
		t.Errorf("cart:total/1 = %+v, %v", ep, ok)
	}
}

func TestBoot_PartialFailure(t *testing.T) {
	dir := writeRelease(t, `
[release]
name = "shop"
modules = ["cart", "billing", "ghost"]
`, map[string]*image.File{"cart": cartModule(), "billing": billingModule()})

	// Corrupt billing on disk.
	if err := os.WriteFile(filepath.Join(dir, "ebin", "billing.beax"), []byte("BEAX\x01\xff"), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := Boot(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer r.Stop()

	if len(r.Report.Loaded) != 1 {
		t.Fatalf("loaded %d, want 1", len(r.Report.Loaded))
	}
	if len(r.Report.Failed) != 2 {
		t.Fatalf("failed %d, want 2: %v", len(r.Report.Failed), r.Report.Err())
	}
	if f := r.Report.Failed[0]; f.Module != "billing" || !errors.Is(f, vm.ErrDecode) {
		t.Errorf("first failure = %v, want billing decode error", f)
	}
	if f := r.Report.Failed[1]; f.Module != "ghost" || !errors.Is(f, vm.ErrIO) {
		t.Errorf("second failure = %v, want ghost io error", f)
	}
	if _, ok := resolve(t, r, "cart:add/2"); !ok {
		t.Error("cart:add/2 should resolve despite billing failing")
	}
}

func TestBoot_Overrides(t *testing.T) {
	dir := writeRelease(t, `
[release]
name = "shop"

[[override]]
mfa = "cart:add/2"
`, map[string]*image.File{"cart": cartModule()})

	r, err := Boot(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer r.Stop()

	if _, ok := resolve(t, r, "cart:add/2"); ok {
		t.Error("cart:add/2 is overridden and must not resolve to bytecode")
	}
	if _, ok := resolve(t, r, "cart:total/1"); !ok {
		t.Error("cart:total/1 should resolve")
	}
}

func TestBoot_BadOverride(t *testing.T) {
	dir := writeRelease(t, `
[[override]]
mfa = "not-an-mfa"
`, nil)
	if _, err := Boot(context.Background(), dir, nil); err == nil {
		t.Error("expected error for malformed override")
	}
}

func TestBoot_OnLoadPolicy(t *testing.T) {
	hooked := func() *image.File {
		b := image.NewBuilder("svc")
		b.Code(4).Function("start", 0, 1).Function("init", 0, 2).Export("start", 0).OnLoad("init")
		return b.File()
	}
	failing := vm.OnLoadFunc(func(*vm.Module, vm.Atom) error { return errors.New("init crashed") })

	t.Run("run", func(t *testing.T) {
		dir := writeRelease(t, "[release]\nname = \"r\"\n", map[string]*image.File{"svc": hooked()})
		r, err := Boot(context.Background(), dir, failing)
		if err != nil {
			t.Fatal(err)
		}
		defer r.Stop()
		if len(r.Report.Failed) != 1 || !errors.Is(r.Report.Failed[0], vm.ErrOnLoad) {
			t.Errorf("failures = %v, want one on_load failure", r.Report.Err())
		}
		if _, ok := r.Machine.LookupModuleNamed("svc"); ok {
			t.Error("svc must not be resident")
		}
	})

	t.Run("skip", func(t *testing.T) {
		dir := writeRelease(t, "[release]\nname = \"r\"\n[loader]\non-load = \"skip\"\n", map[string]*image.File{"svc": hooked()})
		r, err := Boot(context.Background(), dir, failing)
		if err != nil {
			t.Fatal(err)
		}
		defer r.Stop()
		if !r.Report.OK() {
			t.Errorf("skip policy should not run the hook: %v", r.Report.Err())
		}
		if _, ok := resolve(t, r, "svc:start/0"); !ok {
			t.Error("svc:start/0 should resolve")
		}
	})
}

func TestReload(t *testing.T) {
	dir := writeRelease(t, "[release]\nname = \"shop\"\n", map[string]*image.File{"billing": billingModule()})
	r, err := Boot(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	old, _ := resolve(t, r, "billing:charge/1")

	b := image.NewBuilder("billing")
	b.Code(8).Function("charge", 1, 5).Function("refund", 1, 6).Export("charge", 1).Export("refund", 1)
	if err := image.WriteFile(filepath.Join(dir, "ebin", "billing.beax"), b.File()); err != nil {
		t.Fatal(err)
	}

	mod, err := r.Reload("billing")
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if ep, ok := resolve(t, r, "billing:charge/1"); !ok || ep.Module != mod || ep.Offset != 5 {
		t.Errorf("billing:charge/1 = %+v after reload", ep)
	}
	if _, ok := resolve(t, r, "billing:refund/1"); !ok {
		t.Error("billing:refund/1 should resolve after reload")
	}
	if !old.Stale() {
		t.Error("entry point from before the reload should be stale")
	}
}

func TestStart_Cancelled(t *testing.T) {
	dir := writeRelease(t, "[release]\nname = \"shop\"\n", map[string]*image.File{"cart": cartModule()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Boot(ctx, dir, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
