package vm

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestConcurrentResolveDuringReload(t *testing.T) {
	m := NewMachine()
	at := m.Atoms()
	f := mfa(at, "hot", "f", 1)

	version := func(n int) *Image {
		off := uint32(n % 60)
		img := testImage(at, "hot", exported("f", 1, off))
		img.Literals = []Literal{{Kind: LitInt, Int: int64(n)}}
		img.Instructions[off] = Instruction{Op: uint16(n), Args: []int64{int64(n)}}
		return img
	}
	if _, err := m.LoadImage(version(0)); err != nil {
		t.Fatal(err)
	}

	const reloads = 200
	var done atomic.Bool
	var wg sync.WaitGroup
	var torn atomic.Int64

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				ep, ok := m.Resolve(f)
				if !ok {
					continue
				}
				// Whatever version we got, its code and literals agree.
				lit, _ := ep.Module.Literal(0)
				code := ep.Code()
				if len(code) == 0 || int64(code[0].Op) != lit.Int || code[0].Args[0] != lit.Int {
					torn.Add(1)
				}
			}
		}()
	}

	var last *Module
	for n := 1; n <= reloads; n++ {
		mod, err := m.LoadImage(version(n))
		if err != nil {
			t.Fatalf("reload %d: %v", n, err)
		}
		last = mod
	}
	done.Store(true)
	wg.Wait()

	if torn.Load() != 0 {
		t.Errorf("%d reads observed an inconsistent entry point", torn.Load())
	}
	ep, ok := m.Resolve(f)
	if !ok || ep.Module != last {
		t.Error("after reloads settle, resolve must return the newest version")
	}
}

func TestConcurrentInstallsSameNameConverge(t *testing.T) {
	m := NewMachine()
	at := m.Atoms()
	names := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for w := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				// Each version exports a different subset.
				funs := []testFun{exported("base", 0, 0)}
				funs = append(funs, exported(names[(w+i)%len(names)], 0, uint32(1+w)))
				if _, err := m.LoadImage(testImage(at, "shared", funs...)); err != nil {
					t.Errorf("LoadImage: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	resident, ok := m.LookupModuleNamed("shared")
	if !ok {
		t.Fatal("shared should be resident")
	}
	for _, e := range m.Exports().Entries() {
		if e.Entry.Module != resident {
			t.Errorf("%s resolves to %v, resident is %v", m.FormatMFA(e.MFA), e.Entry.Module, resident)
		}
	}
	if got, want := m.Exports().Len(), len(resident.Exports()); got != want {
		t.Errorf("exports table has %d entries, resident exports %d", got, want)
	}
}

func TestConcurrentBatchesDifferentNames(t *testing.T) {
	m := NewMachine()
	at := m.Atoms()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := string(rune('a' + w))
			report := m.FinishLoadingModules([]*Image{
				testImage(at, name+"1", exported("f", 0, 1)),
				testImage(at, name+"2", exported("g", 0, 2)),
			})
			if !report.OK() {
				t.Errorf("batch %s: %v", name, report.Err())
			}
		}()
	}
	wg.Wait()

	if m.Modules().Len() != 16 {
		t.Errorf("resident modules = %d, want 16", m.Modules().Len())
	}
	if m.Exports().Len() != 16 {
		t.Errorf("published exports = %d, want 16", m.Exports().Len())
	}
}
