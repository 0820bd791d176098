package vm

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Load protocols
// ---------------------------------------------------------------------------

// LoadModule decodes the file at path and loads it. On success the module
// is resident and its exports are published.
func (m *Machine) LoadModule(path string) (*Module, error) {
	img, err := m.decode(path)
	if err != nil {
		return nil, err
	}
	return m.LoadImage(img)
}

// LoadImage installs an already decoded image and publishes its exports.
func (m *Machine) LoadImage(img *Image) (*Module, error) {
	return m.load(img, nil)
}

// ReplaceImage is LoadImage guarded by the resident version the caller
// expects (0 for none). If another install got there first it fails with
// ErrVersionConflict and nothing changes.
func (m *Machine) ReplaceImage(img *Image, expected uint64) (*Module, error) {
	return m.load(img, &expected)
}

func (m *Machine) load(img *Image, expected *uint64) (*Module, error) {
	mod, err := m.stage(img)
	if err != nil {
		return nil, err
	}
	if err := m.gateAndCommit(mod, expected); err != nil {
		return nil, err
	}
	if err := m.publish(mod); err != nil {
		return nil, err
	}
	return mod, nil
}

// BatchReport lists the outcome of a batch load. A failed module never
// undoes its siblings.
type BatchReport struct {
	Loaded []*Module
	Failed []*LoadError
}

// OK reports whether every module in the batch loaded.
func (r BatchReport) OK() bool { return len(r.Failed) == 0 }

// Err joins the individual failures, or returns nil.
func (r BatchReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// FinishLoadingModules installs every image first and only then publishes
// exports, so references between modules of the same batch resolve no
// matter the order of images.
func (m *Machine) FinishLoadingModules(images []*Image) BatchReport {
	return m.finishLoading(images, nil)
}

// LoadModules decodes each path and batch-loads the ones that decode.
// Decode failures are reported alongside install failures.
func (m *Machine) LoadModules(paths []string) BatchReport {
	var (
		images []*Image
		failed []*LoadError
	)
	for _, p := range paths {
		img, err := m.decode(p)
		if err != nil {
			failed = append(failed, asLoadError(err, "", p))
			continue
		}
		images = append(images, img)
	}
	return m.finishLoading(images, failed)
}

// finishLoading stages every image, commits and publishes the modules
// without an on_load hook, then gates the rest one by one. A hook thus sees
// every hook-free sibling already resolvable, while its own module stays
// invisible until the hook succeeds. Report entries keep input order.
func (m *Machine) finishLoading(images []*Image, failed []*LoadError) BatchReport {
	mods := make([]*Module, len(images))
	errs := make([]error, len(images))
	for i, img := range images {
		mods[i], errs[i] = m.stage(img)
	}

	var plain []int
	for i, mod := range mods {
		if errs[i] != nil || mod.OnLoad() != NoAtom {
			continue
		}
		if errs[i] = m.gateAndCommit(mod, nil); errs[i] == nil {
			plain = append(plain, i)
		}
	}
	for _, i := range plain {
		errs[i] = m.publish(mods[i])
	}

	for i, mod := range mods {
		if errs[i] != nil || mod.OnLoad() == NoAtom {
			continue
		}
		if errs[i] = m.gateAndCommit(mod, nil); errs[i] == nil {
			errs[i] = m.publish(mod)
		}
	}

	report := BatchReport{Failed: failed}
	for i, mod := range mods {
		if errs[i] != nil {
			report.Failed = append(report.Failed, asLoadError(errs[i], "", ""))
			continue
		}
		report.Loaded = append(report.Loaded, mod)
	}
	m.log.Info("batch loaded", "machine", m.id, "loaded", len(report.Loaded), "failed", len(report.Failed))
	return report
}

func (m *Machine) decode(path string) (*Image, error) {
	if m.stopped.Load() {
		return nil, &LoadError{Path: path, Err: ErrStopped}
	}
	if m.decoder == nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("%w: no decoder configured", ErrIO)}
	}
	img, err := m.decoder.Decode(path)
	if err != nil {
		m.log.Warning("module decode failed", "path", path, "error", err.Error())
		return nil, &LoadError{Path: path, Err: err}
	}
	if img.Path == "" {
		img.Path = path
	}
	return img, nil
}

// stage validates img and builds its module without making it visible.
func (m *Machine) stage(img *Image) (*Module, error) {
	name := m.atoms.Name(img.Name)
	if m.stopped.Load() {
		return nil, &LoadError{Module: name, Path: img.Path, Err: ErrStopped}
	}
	mod, err := m.modules.Stage(img)
	if err != nil {
		m.log.Warning("module rejected", "module", name, "error", err.Error())
		return nil, &LoadError{Module: name, Path: img.Path, Err: err}
	}
	return mod, nil
}

// gateAndCommit runs the staged module's on_load hook and commits it.
// With expected set, the commit is a compare-and-swap on the resident
// version. A stop that lands while the hook runs fails the commit with
// ErrStopped.
func (m *Machine) gateAndCommit(mod *Module, expected *uint64) error {
	name := m.atoms.Name(mod.Name())
	if m.stopped.Load() {
		m.modules.Discard(mod)
		return &LoadError{Module: name, Path: mod.Path(), Err: ErrStopped}
	}

	if err := m.runOnLoad(mod); err != nil {
		m.modules.Discard(mod)
		m.log.Warning("on_load failed, module discarded", "module", name, "error", err.Error())
		return &LoadError{Module: name, Path: mod.Path(), Err: err}
	}

	var err error
	if expected != nil {
		err = m.modules.CommitIfVersion(mod, *expected)
	} else {
		err = m.modules.Commit(mod)
	}
	if err != nil {
		m.modules.Discard(mod)
		return &LoadError{Module: name, Path: mod.Path(), Err: err}
	}

	m.log.Info("module installed", "module", name, "version", mod.Version())
	return nil
}

func (m *Machine) runOnLoad(mod *Module) (err error) {
	fn := mod.OnLoad()
	if fn == NoAtom {
		return nil
	}
	if m.onLoad == nil {
		m.log.Warningf("no on_load runner, skipping %s:%s/0", m.atoms.Name(mod.Name()), m.atoms.Name(fn))
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrOnLoad, r)
		}
	}()
	if err := m.onLoad.RunOnLoad(mod, fn); err != nil {
		return fmt.Errorf("%w: %w", ErrOnLoad, err)
	}
	return nil
}

// publish registers the module's export snapshot. Overridden references
// are left to native dispatch. It fails with ErrStopped when the machine
// was stopped before or during publication; the drain leaves nothing of
// the module behind.
func (m *Machine) publish(mod *Module) error {
	snap := mod.ExportSnapshot()
	n := m.exports.Publish(snap)
	if m.exports.Closed() {
		return &LoadError{Module: m.atoms.Name(mod.Name()), Path: mod.Path(), Err: ErrStopped}
	}
	if skipped := len(snap.Entries) - n; skipped > 0 && m.log.AllowLevel(commonlog.Debug) {
		for _, e := range snap.Entries {
			if m.Bifs().IsOverride(e.MFA) {
				m.log.Debugf("native override wins for %s", m.FormatMFA(e.MFA))
			}
		}
	}
	return nil
}

func asLoadError(err error, module, path string) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	return &LoadError{Module: module, Path: path, Err: err}
}
