// Package manifest handles ivars.toml (or ivars.yaml) configuration.
package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"github.com/chazu/ivars/vm"
	"github.com/sasha-s/go-deadlock"
	"github.com/tliron/commonlog"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when a configuration file does not match the
// schema.
var ErrInvalid = errors.New("manifest: invalid configuration")

// FileNames are the configuration file names Load looks for, in order.
var FileNames = []string{"ivars.toml", "ivars.yaml", "ivars.yml"}

//go:embed schema.cue
var schemaSource string

// Manifest represents an ivars configuration.
type Manifest struct {
	Storage Storage `toml:"storage" yaml:"storage"`
	Debug   Debug   `toml:"debug" yaml:"debug"`
	Log     Log     `toml:"log" yaml:"log"`
	Persist Persist `toml:"persist" yaml:"persist"`

	// Dir is the directory containing the configuration file (set at load
	// time). Relative paths in the file are resolved against it.
	Dir string `toml:"-" yaml:"-"`
	// Path is the file the manifest was read from, empty for defaults.
	Path string `toml:"-" yaml:"-"`
}

// Storage selects how attribute tables are managed.
type Storage struct {
	Strategy     string `toml:"strategy" yaml:"strategy"`
	IdentitySeed uint64 `toml:"identity-seed" yaml:"identity-seed"`
}

// Debug configures lock diagnostics.
type Debug struct {
	DeadlockDetection bool   `toml:"deadlock-detection" yaml:"deadlock-detection"`
	DeadlockTimeout   string `toml:"deadlock-timeout" yaml:"deadlock-timeout"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"`
}

// Persist configures the snapshot store.
type Persist struct {
	Path string `toml:"path" yaml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	if wd, err := os.Getwd(); err == nil {
		m.Dir = wd
	}
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Storage.Strategy == "" {
		m.Storage.Strategy = "stamped"
	}
	if m.Debug.DeadlockTimeout == "" {
		m.Debug.DeadlockTimeout = "30s"
	}
	if m.Persist.Path == "" {
		m.Persist.Path = "ivars.db"
	}
}

// Load reads the first configuration file found in dir.
func Load(dir string) (*Manifest, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("manifest: no %s in %s: %w", strings.Join(FileNames, " or "), dir, os.ErrNotExist)
}

// LoadFile parses and validates one configuration file. The format is
// chosen by extension.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	unmarshal := toml.Unmarshal
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	}

	// Validate the generic form first so type mismatches are reported
	// against the schema rather than as decode errors.
	var raw map[string]any
	if err := unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var m Manifest
	if err := unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Path = path
	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a configuration file, then
// loads and returns it. Returns nil if none is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return Load(dir)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks decoded configuration data against the embedded CUE
// schema. Unknown sections and keys are rejected.
func Validate(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("manifest: schema: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	v := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Applying the configuration
// ---------------------------------------------------------------------------

// VMOptions converts the storage section to VM options.
func (m *Manifest) VMOptions() ([]vm.Option, error) {
	st, err := vm.ParseStrategy(m.Storage.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	opts := []vm.Option{vm.WithStrategy(st)}
	if m.Storage.IdentitySeed > 0 {
		opts = append(opts, vm.WithIdentitySeed(m.Storage.IdentitySeed))
	}
	return opts, nil
}

// ApplyDebug configures lock-order and timeout detection for the shape and
// object locks. Detection is process-wide.
func (m *Manifest) ApplyDebug() error {
	deadlock.Opts.Disable = !m.Debug.DeadlockDetection
	if m.Debug.DeadlockTimeout != "" {
		d, err := time.ParseDuration(m.Debug.DeadlockTimeout)
		if err != nil {
			return fmt.Errorf("%w: deadlock-timeout: %v", ErrInvalid, err)
		}
		deadlock.Opts.DeadlockTimeout = d
	}
	return nil
}

// ConfigureLogging sets up commonlog. extraVerbosity is added to the
// configured verbosity (for command-line -v flags). A log file path is
// resolved against the manifest directory.
func (m *Manifest) ConfigureLogging(extraVerbosity int) {
	var path *string
	if m.Log.File != "" {
		p := m.resolve(m.Log.File)
		path = &p
	}
	commonlog.Configure(m.Log.Verbosity+extraVerbosity, path)
}

// PersistPath returns the absolute path of the snapshot database.
func (m *Manifest) PersistPath() string {
	return m.resolve(m.Persist.Path)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}
