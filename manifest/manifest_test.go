package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "calc"
entry = "src/main.js"

[run]
max-steps = 100000
timeout = "250ms"

[globals]
debug = true
scale = 1.5
name = "demo"
limits = [1, 2, 3]

[log]
verbosity = 2
file = "ember.log"

[cache]
path = ".ember/cache.db"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "calc" {
		t.Errorf("project name = %q, want calc", m.Project.Name)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "src", "main.js"); got != want {
		t.Errorf("EntryPath() = %q, want %q", got, want)
	}
	if m.Run.MaxSteps != 100000 {
		t.Errorf("max-steps = %d, want 100000", m.Run.MaxSteps)
	}
	if m.TimeoutDuration() != 250*time.Millisecond {
		t.Errorf("timeout = %v, want 250ms", m.TimeoutDuration())
	}
	if len(m.Globals) != 4 {
		t.Errorf("globals count = %d, want 4", len(m.Globals))
	}
	if v, ok := m.Globals["debug"].(bool); !ok || !v {
		t.Errorf("globals.debug = %#v, want true", m.Globals["debug"])
	}
	if v, ok := m.Globals["limits"].([]any); !ok || len(v) != 3 {
		t.Errorf("globals.limits = %#v, want 3 elements", m.Globals["limits"])
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if got := m.LogPath(); got != filepath.Join(m.Dir, "ember.log") {
		t.Errorf("LogPath() = %q", got)
	}
	if got := m.CachePath(); got != filepath.Join(m.Dir, ".ember", "cache.db") {
		t.Errorf("CachePath() = %q", got)
	}
}

func TestManifestDefaults(t *testing.T) {
	m, err := Parse("[project]\nname = \"minimal\"\n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.EntryPath() != "" {
		t.Errorf("EntryPath() = %q, want empty", m.EntryPath())
	}
	if m.TimeoutDuration() != 0 || m.Run.MaxSteps != 0 {
		t.Errorf("run limits = %v / %d, want unlimited", m.TimeoutDuration(), m.Run.MaxSteps)
	}
	if m.LogPath() != "" {
		t.Errorf("LogPath() = %q, want empty", m.LogPath())
	}
	if m.CachePath() != "" {
		t.Errorf("CachePath() = %q, want empty", m.CachePath())
	}
}

func TestManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"syntax", "[project\nname = 1", "parse error"},
		{"unknown key", "[project]\nnmae = \"typo\"", "unknown keys: project.nmae"},
		{"negative steps", "[run]\nmax-steps = -1", "must not be negative"},
		{"bad timeout", "[run]\ntimeout = \"soon\"", "run.timeout"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.text)
			if err == nil {
				t.Fatalf("Parse should fail")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want %q", err, tc.want)
			}
		})
	}

	if _, err := Parse("[globals.nested]\nx = 1"); err == nil {
		t.Error("nested global tables should be rejected")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `[project]
name = "found-project"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no ember.toml exists")
	}
}
