// Package manifest handles release.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// FileName is the manifest file looked up in a release directory.
const FileName = "release.toml"

// On-load policies.
const (
	OnLoadRun  = "run"
	OnLoadSkip = "skip"
)

const defaultDecodeConcurrency = 4

// Manifest represents a release.toml configuration.
type Manifest struct {
	Release   Release    `toml:"release"`
	Loader    Loader     `toml:"loader"`
	Log       Log        `toml:"log"`
	Overrides []Override `toml:"override"`

	// Dir is the directory containing the release.toml file (set at load time).
	Dir string `toml:"-"`
}

// Release names the modules that make up the release.
type Release struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version"`
	Dirs    []string `toml:"dirs"`
	Modules []string `toml:"modules"`
}

// Loader configures the boot loader.
type Loader struct {
	DecodeConcurrency int    `toml:"decode-concurrency" env:"BEAMLOAD_DECODE_CONCURRENCY"`
	OnLoad            string `toml:"on-load" env:"BEAMLOAD_ON_LOAD"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity" env:"BEAMLOAD_LOG_VERBOSITY"`
	File      string `toml:"file" env:"BEAMLOAD_LOG_FILE"`
}

// Override declares a native implementation that wins over bytecode.
type Override struct {
	MFA string `toml:"mfa"` // mod:fun/arity
}

// Load parses release.toml from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m, err := Parse(data, abs)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes manifest text, applies environment overrides and
// defaults, and validates the result. dir becomes Manifest.Dir.
func Parse(data []byte, dir string) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m.Dir = dir

	if err := env.Parse(&m.Loader); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := env.Parse(&m.Log); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	// Defaults
	if len(m.Release.Dirs) == 0 {
		m.Release.Dirs = []string{"ebin"}
	}
	if m.Loader.DecodeConcurrency <= 0 {
		m.Loader.DecodeConcurrency = defaultDecodeConcurrency
	}
	if m.Loader.OnLoad == "" {
		m.Loader.OnLoad = OnLoadRun
	}

	switch m.Loader.OnLoad {
	case OnLoadRun, OnLoadSkip:
	default:
		return nil, fmt.Errorf("loader.on-load must be %q or %q, got %q", OnLoadRun, OnLoadSkip, m.Loader.OnLoad)
	}
	for i, o := range m.Overrides {
		if o.MFA == "" {
			return nil, fmt.Errorf("override %d has no mfa", i)
		}
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a release.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// DirPaths returns absolute paths for the configured module directories.
func (m *Manifest) DirPaths() []string {
	var paths []string
	for _, d := range m.Release.Dirs {
		if filepath.IsAbs(d) {
			paths = append(paths, d)
			continue
		}
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// LogFile returns the log file path, or nil for stderr.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.Log.File
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.Dir, p)
	}
	return &p
}
