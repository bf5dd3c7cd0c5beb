// Package manifest handles ember.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by FindAndLoad.
const FileName = "ember.toml"

// Manifest represents an ember.toml project configuration.
type Manifest struct {
	Project Project        `toml:"project"`
	Run     Run            `toml:"run"`
	Globals map[string]any `toml:"globals"`
	Log     Log            `toml:"log"`
	Cache   Cache          `toml:"cache"`

	// Dir is the directory containing the ember.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// Run limits script execution. Zero means unlimited.
type Run struct {
	MaxSteps int    `toml:"max-steps"`
	Timeout  string `toml:"timeout"`

	timeout time.Duration
}

// Log configures commonlog output.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Cache enables the compiled image cache when Path is set.
type Cache struct {
	Path string `toml:"path"`
}

// Load parses an ember.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes and validates manifest text. Keys outside the known
// sections are rejected so typos do not pass silently.
func Parse(text string) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(text, &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	if m.Run.MaxSteps < 0 {
		return nil, fmt.Errorf("run.max-steps must not be negative, got %d", m.Run.MaxSteps)
	}
	if m.Run.Timeout != "" {
		d, err := time.ParseDuration(m.Run.Timeout)
		if err != nil {
			return nil, fmt.Errorf("run.timeout: %w", err)
		}
		m.Run.timeout = d
	}
	for name, v := range m.Globals {
		if _, nested := v.(map[string]any); nested {
			return nil, fmt.Errorf("globals.%s: tables are not supported, use a scalar or an array", name)
		}
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find an ember.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the entry script, or "" if none is
// configured.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	if filepath.IsAbs(m.Project.Entry) {
		return m.Project.Entry
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}

// TimeoutDuration returns the parsed run.timeout.
func (m *Manifest) TimeoutDuration() time.Duration {
	return m.Run.timeout
}

// LogPath returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogPath() string {
	if m.Log.File == "" || filepath.IsAbs(m.Log.File) {
		return m.Log.File
	}
	return filepath.Join(m.Dir, m.Log.File)
}

// CachePath returns the absolute cache database path, or "" when caching is
// off.
func (m *Manifest) CachePath() string {
	if m.Cache.Path == "" || filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}
