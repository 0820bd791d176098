// Package release boots a machine from a release manifest: it configures
// logging, builds the override table, decodes every module of the release
// in parallel and batch-loads the result.
package release

import (
	"context"
	"fmt"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/beamload/manifest"
	"github.com/chazu/beamload/vm"
	"github.com/chazu/beamload/vm/image"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("beamload.release")

// Release is a booted release: its manifest, its machine and the outcome
// of the initial batch load.
type Release struct {
	Manifest *manifest.Manifest
	Machine  *vm.Machine
	Report   vm.BatchReport

	resolver *manifest.Resolver
	decoder  *image.Decoder
}

// Boot loads release.toml from dir and starts the release.
func Boot(ctx context.Context, dir string, onLoad vm.OnLoadRunner) (*Release, error) {
	m, err := manifest.Load(dir)
	if err != nil {
		return nil, err
	}
	return Start(ctx, m, onLoad)
}

// Start starts a release from an already loaded manifest. Individual
// module failures end up in Release.Report; only configuration problems
// and cancellation fail Start itself.
func Start(ctx context.Context, m *manifest.Manifest, onLoad vm.OnLoadRunner) (*Release, error) {
	commonlog.Configure(m.Log.Verbosity, m.LogFile())

	atoms := vm.NewAtomTable()
	bifs, err := overrides(atoms, m.Overrides)
	if err != nil {
		return nil, err
	}

	dec := image.NewDecoder(atoms)
	opts := []vm.Option{
		vm.WithAtoms(atoms),
		vm.WithBifs(bifs),
		vm.WithDecoder(dec),
	}
	switch {
	case m.Loader.OnLoad == manifest.OnLoadSkip:
		opts = append(opts, vm.WithOnLoad(vm.OnLoadFunc(skipOnLoad)))
	case onLoad != nil:
		opts = append(opts, vm.WithOnLoad(onLoad))
	}

	r := &Release{
		Manifest: m,
		Machine:  vm.NewMachine(opts...),
		resolver: manifest.NewResolver(m),
		decoder:  dec,
	}

	mods, err := r.resolver.Modules(m)
	if err != nil {
		r.Machine.Stop()
		return nil, err
	}

	images, failed, err := decodeAll(ctx, dec, mods, m.Loader.DecodeConcurrency)
	if err != nil {
		r.Machine.Stop()
		return nil, err
	}

	r.Report = r.Machine.FinishLoadingModules(images)
	r.Report.Failed = append(failed, r.Report.Failed...)

	log.Infof("release %s %s started: %d modules loaded, %d failed",
		m.Release.Name, m.Release.Version, len(r.Report.Loaded), len(r.Report.Failed))
	for _, f := range r.Report.Failed {
		log.Warning("module not loaded", "error", f.Error())
	}
	return r, nil
}

// Reload hot-loads one module of the release from its directories.
func (r *Release) Reload(name string) (*vm.Module, error) {
	rm := r.resolver.Resolve(name)
	return r.Machine.LoadModule(rm.Path)
}

// Stop stops the machine.
func (r *Release) Stop() {
	r.Machine.Stop()
}

// decodeAll decodes modules with at most limit decodes in flight. Results
// keep the manifest order. A module that fails to decode is reported and
// skipped; only cancellation aborts the whole batch.
func decodeAll(ctx context.Context, dec *image.Decoder, mods []manifest.ResolvedModule, limit int) ([]*vm.Image, []*vm.LoadError, error) {
	type result struct {
		img *vm.Image
		err error
	}
	results := make([]result, len(mods))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, rm := range mods {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := dec.Decode(rm.Path)
			results[i] = result{img: img, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("decoding release: %w", err)
	}

	var (
		images []*vm.Image
		failed []*vm.LoadError
	)
	for i, res := range results {
		if res.err != nil {
			failed = append(failed, &vm.LoadError{Module: mods[i].Name, Path: mods[i].Path, Err: res.err})
			continue
		}
		images = append(images, res.img)
	}
	return images, failed, nil
}

func overrides(atoms *vm.AtomTable, list []manifest.Override) (vm.BifTable, error) {
	mfas := make([]vm.MFA, 0, len(list))
	for _, o := range list {
		mfa, err := vm.ParseMFA(atoms, o.MFA)
		if err != nil {
			return nil, fmt.Errorf("override: %w", err)
		}
		mfas = append(mfas, mfa)
	}
	t := vm.NewBifTable(mfas...)
	for _, mfa := range t.MFAs() {
		log.Debugf("native override %s", mfa.Format(atoms))
	}
	return t, nil
}

func skipOnLoad(m *vm.Module, fn vm.Atom) error {
	log.Debugf("on_load skipped by policy for module %d", m.Name())
	return nil
}
